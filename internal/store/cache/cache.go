// Package cache keeps hot document snapshots in Redis in front of a slower
// DocumentStore. Redis failures are logged and fall through to the backing
// store; they never fail a request on their own.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"collabtext/internal/models"
	"collabtext/internal/store"
)

const keyPrefix = "document:"

type Store struct {
	next store.DocumentStore
	rdb  *redis.Client
	ttl  time.Duration
	log  *zap.Logger
}

var _ store.DocumentStore = (*Store)(nil)

func New(next store.DocumentStore, rdb *redis.Client, ttl time.Duration, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{next: next, rdb: rdb, ttl: ttl, log: log}
}

func key(documentID string) string { return keyPrefix + documentID }

func (s *Store) Get(ctx context.Context, documentID string) (*models.Document, error) {
	if doc, ok := s.lookup(ctx, documentID); ok {
		return doc, nil
	}
	doc, err := s.next.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	s.fill(ctx, doc)
	return doc, nil
}

func (s *Store) GetOrCreate(ctx context.Context, documentID string) (*models.Document, error) {
	if doc, ok := s.lookup(ctx, documentID); ok {
		return doc, nil
	}
	doc, err := s.next.GetOrCreate(ctx, documentID)
	if err != nil {
		return nil, err
	}
	s.fill(ctx, doc)
	return doc, nil
}

func (s *Store) Upsert(ctx context.Context, documentID, content string) (*models.Document, error) {
	doc, err := s.next.Upsert(ctx, documentID, content)
	if err != nil {
		// the backing write may have partially applied; drop the cached copy
		s.evict(ctx, documentID)
		return nil, err
	}
	s.fill(ctx, doc)
	return doc, nil
}

func (s *Store) List(ctx context.Context) ([]models.Document, error) {
	return s.next.List(ctx)
}

func (s *Store) Delete(ctx context.Context, documentID string) error {
	err := s.next.Delete(ctx, documentID)
	s.evict(ctx, documentID)
	return err
}

func (s *Store) Clear(ctx context.Context) (int64, error) {
	n, err := s.next.Clear(ctx)
	if err != nil {
		return 0, err
	}

	iter := s.rdb.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		s.log.Warn("cache scan failed", zap.Error(err))
	}
	if len(keys) > 0 {
		if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
			s.log.Warn("cache clear failed", zap.Int("keys", len(keys)), zap.Error(err))
		}
	}
	return n, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.next.Ping(ctx); err != nil {
		return err
	}
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (s *Store) lookup(ctx context.Context, documentID string) (*models.Document, bool) {
	fields, err := s.rdb.HGetAll(ctx, key(documentID)).Result()
	if err != nil {
		s.log.Warn("cache read failed", zap.String("documentId", documentID), zap.Error(err))
		return nil, false
	}
	content, ok := fields["content"]
	if !ok {
		return nil, false
	}
	modified, err := time.Parse(time.RFC3339Nano, fields["lastModified"])
	if err != nil {
		return nil, false
	}
	return &models.Document{DocumentID: documentID, Content: content, LastModified: modified}, true
}

func (s *Store) fill(ctx context.Context, doc *models.Document) {
	k := key(doc.DocumentID)
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, k, map[string]interface{}{
		"content":      doc.Content,
		"lastModified": doc.LastModified.UTC().Format(time.RFC3339Nano),
	})
	if s.ttl > 0 {
		pipe.Expire(ctx, k, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn("cache write failed", zap.String("documentId", doc.DocumentID), zap.Error(err))
	}
}

func (s *Store) evict(ctx context.Context, documentID string) {
	if err := s.rdb.Del(ctx, key(documentID)).Err(); err != nil {
		s.log.Warn("cache evict failed", zap.String("documentId", documentID), zap.Error(err))
	}
}

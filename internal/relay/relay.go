// Package relay applies socket and HTTP document operations to the live rooms
// and hands accepted snapshots to the persistence writer.
package relay

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"collabtext/internal/metrics"
	"collabtext/internal/models"
	"collabtext/internal/persist"
	"collabtext/internal/session"
	"collabtext/internal/store"
)

const loadTimeout = 5 * time.Second

type EditRelay struct {
	hub          *session.Hub
	store        store.DocumentStore
	writer       persist.Writer
	log          *zap.Logger
	defaultDocID string
}

func New(hub *session.Hub, s store.DocumentStore, w persist.Writer, log *zap.Logger, defaultDocID string) *EditRelay {
	if log == nil {
		log = zap.NewNop()
	}
	if defaultDocID == "" {
		defaultDocID = models.DefaultDocumentID
	}
	return &EditRelay{hub: hub, store: s, writer: w, log: log, defaultDocID: defaultDocID}
}

// WriterHooks reports persistence outcomes to metrics and the log.
func WriterHooks(log *zap.Logger) persist.Hooks {
	return persist.Hooks{
		OnWrite: func(string) { metrics.ObserveWrite(metrics.ResultOK) },
		OnError: func(documentID string, err error) {
			metrics.ObserveWrite(metrics.ResultError)
			log.Error("persist snapshot failed", zap.String("documentId", documentID), zap.Error(err))
		},
	}
}

func (r *EditRelay) Hub() *session.Hub { return r.hub }

func (r *EditRelay) Store() store.DocumentStore { return r.store }

func (r *EditRelay) documentID(id string) string {
	if id = strings.TrimSpace(id); id == "" {
		return r.defaultDocID
	}
	return id
}

// Join admits c to the requested document. On success the hub has already
// sent c exactly one load-document frame.
func (r *EditRelay) Join(ctx context.Context, c *session.Client, req models.JoinRequest) error {
	username := strings.TrimSpace(req.Username)
	if username == "" {
		metrics.ObserveJoin(metrics.ResultRejected)
		return &ValidationError{Field: "username", Message: msgUsernameRequired}
	}
	documentID := r.documentID(req.DocumentID)
	c.SetName(username)

	_, err := r.hub.Join(c, documentID, func() (string, error) {
		return r.load(ctx, documentID)
	})
	if err != nil {
		metrics.ObserveJoin(metrics.ResultError)
		r.log.Error("join failed",
			zap.String("documentId", documentID),
			zap.String("client", c.ID),
			zap.Error(err))
		return &PersistenceError{Op: "load document", Err: err}
	}

	metrics.ObserveJoin(metrics.ResultOK)
	r.log.Info("user joined document",
		zap.String("documentId", documentID),
		zap.String("username", username),
		zap.String("client", c.ID))
	return nil
}

// load seeds an empty room. A snapshot still waiting for (or in the middle
// of) its delayed write is newer than the stored record.
func (r *EditRelay) load(ctx context.Context, documentID string) (string, error) {
	if pending, ok := r.writer.Pending(documentID); ok {
		return pending, nil
	}

	ctx, cancel := context.WithTimeout(ctx, loadTimeout)
	defer cancel()
	doc, err := r.store.GetOrCreate(ctx, documentID)
	if err != nil {
		return "", err
	}
	return doc.Content, nil
}

// Edit replaces the document snapshot with req.Content. Blank edits and
// anonymous edits are dropped without a reply.
func (r *EditRelay) Edit(_ context.Context, c *session.Client, req models.EditRequest) {
	if strings.TrimSpace(req.Username) == "" || strings.TrimSpace(req.Content) == "" {
		metrics.ObserveEdit(metrics.ResultIgnored)
		return
	}
	documentID := r.documentID(req.DocumentID)

	// scheduling under the room lock keeps the store in broadcast order
	_, _, _ = r.hub.Commit(documentID, c, func() (string, error) {
		r.writer.Schedule(documentID, req.Content)
		return req.Content, nil
	})
	metrics.ObserveEdit(metrics.ResultBroadcast)
	metrics.SetPendingWrites(r.writer.PendingCount())
}

// Save persists content immediately and pushes it to every live member.
func (r *EditRelay) Save(ctx context.Context, req models.SaveRequest) (*models.Document, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, &ValidationError{Field: "username", Message: msgUsernameRequired}
	}
	documentID := r.documentID(req.DocumentID)

	var doc *models.Document
	_, _, err := r.hub.Commit(documentID, nil, func() (string, error) {
		var err error
		if doc, err = r.writer.Write(ctx, documentID, req.Content); err != nil {
			return "", err
		}
		if doc == nil {
			// a newer write landed first; members get what the store holds
			if doc, err = r.store.Get(ctx, documentID); err != nil {
				return "", err
			}
		}
		return doc.Content, nil
	})
	if err != nil {
		return nil, &PersistenceError{Op: "save document", Err: err}
	}
	metrics.SetPendingWrites(r.writer.PendingCount())
	r.log.Info("document saved",
		zap.String("documentId", documentID),
		zap.String("username", username))
	return doc, nil
}

// ClearHistory drops every stored document and resets all live rooms to "".
// Edits and joins wait until the reset is done, so no older snapshot can be
// written or broadcast afterwards.
func (r *EditRelay) ClearHistory(ctx context.Context) (int64, error) {
	var n int64
	rooms, err := r.hub.ResetAll("", func() error {
		r.writer.CancelAll()
		var err error
		n, err = r.store.Clear(ctx)
		return err
	})
	metrics.SetPendingWrites(r.writer.PendingCount())
	if err != nil {
		return 0, &PersistenceError{Op: "clear history", Err: err}
	}
	r.log.Info("history cleared", zap.Int64("documents", n), zap.Strings("rooms", rooms))
	return n, nil
}

// Connect registers a socket so Close can shut it down. It reports false
// once the relay is closing.
func (r *EditRelay) Connect(c *session.Client) bool {
	return r.hub.Connect(c)
}

func (r *EditRelay) Disconnect(c *session.Client) {
	rooms := r.hub.Disconnect(c)
	r.log.Info("user disconnected",
		zap.String("client", c.ID),
		zap.String("username", c.Name()),
		zap.Strings("rooms", rooms))
}

// Close shuts every connected socket, waits for their read loops to leave,
// then flushes scheduled writes. The relay must not be used afterwards.
func (r *EditRelay) Close(ctx context.Context) error {
	sockErr := r.hub.CloseAll(ctx)
	if sockErr != nil {
		r.log.Warn("sockets still open at shutdown", zap.Error(sockErr))
	}
	err := r.writer.Close(ctx)
	metrics.SetPendingWrites(0)
	return errors.Join(sockErr, err)
}

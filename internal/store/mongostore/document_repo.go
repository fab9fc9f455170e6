package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"collabtext/internal/models"
	"collabtext/internal/store"
)

// Repo wraps the documents collection
type Repo struct {
	client *Client
	col    *mongo.Collection
}

var _ store.DocumentStore = (*Repo)(nil)

// NewDocumentRepo binds the collection and ensures a unique index on documentId
func NewDocumentRepo(ctx context.Context, c *Client, dbName, colName string) (*Repo, error) {
	db, err := c.DB(dbName)
	if err != nil {
		return nil, err
	}
	if colName == "" {
		colName = "documents"
	}

	r := &Repo{client: c, col: db.Collection(colName)}

	_, err = r.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "documentId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("create documentId index: %w", err)
	}
	return r, nil
}

func (r *Repo) Get(ctx context.Context, documentID string) (*models.Document, error) {
	var doc models.Document
	err := r.col.FindOne(ctx, bson.M{"documentId": documentID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find document %q: %w", documentID, err)
	}
	return &doc, nil
}

// GetOrCreate inserts an empty record on first sight of documentID
func (r *Repo) GetOrCreate(ctx context.Context, documentID string) (*models.Document, error) {
	update := bson.M{"$setOnInsert": bson.M{
		"content":      "",
		"lastModified": time.Now().UTC(),
	}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc models.Document
	err := r.col.FindOneAndUpdate(ctx, bson.M{"documentId": documentID}, update, opts).Decode(&doc)
	if mongo.IsDuplicateKeyError(err) {
		// a concurrent upsert won the insert
		return r.Get(ctx, documentID)
	}
	if err != nil {
		return nil, fmt.Errorf("get or create document %q: %w", documentID, err)
	}
	return &doc, nil
}

func (r *Repo) Upsert(ctx context.Context, documentID, content string) (*models.Document, error) {
	update := bson.M{"$set": bson.M{
		"content":      content,
		"lastModified": time.Now().UTC(),
	}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc models.Document
	if err := r.col.FindOneAndUpdate(ctx, bson.M{"documentId": documentID}, update, opts).Decode(&doc); err != nil {
		return nil, fmt.Errorf("upsert document %q: %w", documentID, err)
	}
	return &doc, nil
}

func (r *Repo) List(ctx context.Context) ([]models.Document, error) {
	opts := options.Find().SetSort(bson.D{{Key: "documentId", Value: 1}})
	cur, err := r.col.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer cur.Close(ctx)

	out := []models.Document{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode documents: %w", err)
	}
	return out, nil
}

func (r *Repo) Delete(ctx context.Context, documentID string) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"documentId": documentID})
	if err != nil {
		return fmt.Errorf("delete document %q: %w", documentID, err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Clear removes every document record
func (r *Repo) Clear(ctx context.Context) (int64, error) {
	res, err := r.col.DeleteMany(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("clear documents: %w", err)
	}
	return res.DeletedCount, nil
}

func (r *Repo) Ping(ctx context.Context) error {
	return r.client.Ping(ctx)
}

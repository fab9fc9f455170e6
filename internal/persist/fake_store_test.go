package persist

import (
	"context"
	"errors"
	"sync"
	"time"

	"collabtext/internal/models"
	"collabtext/internal/store"
)

// fakeStore records upserts and can block or fail them on demand.
type fakeStore struct {
	mu      sync.Mutex
	docs    map[string]models.Document
	upserts []string
	fail    error
	gate    chan struct{} // when non-nil, Upsert blocks until it is closed
	entered chan string
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: make(map[string]models.Document), entered: make(chan string, 64)}
}

func (f *fakeStore) Get(_ context.Context, id string) (*models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &doc, nil
}

func (f *fakeStore) GetOrCreate(ctx context.Context, id string) (*models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		doc = models.Document{DocumentID: id, LastModified: time.Now()}
		f.docs[id] = doc
	}
	return &doc, nil
}

func (f *fakeStore) Upsert(_ context.Context, id, content string) (*models.Document, error) {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	f.entered <- content
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	doc := models.Document{DocumentID: id, Content: content, LastModified: time.Now()}
	f.docs[id] = doc
	f.upserts = append(f.upserts, content)
	return &doc, nil
}

func (f *fakeStore) List(context.Context) ([]models.Document, error) { return nil, nil }

func (f *fakeStore) Delete(context.Context, string) error { return nil }

func (f *fakeStore) Clear(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := int64(len(f.docs))
	f.docs = make(map[string]models.Document)
	return n, nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) content(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs[id].Content
}

func (f *fakeStore) writes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.upserts))
	copy(out, f.upserts)
	return out
}

var errStoreDown = errors.New("store down")

// Package persist decides when edited snapshots reach the DocumentStore.
//
// Every write for a document is tagged with a sequence number taken when the
// edit was accepted, and writes for one document are serialized. A write whose
// sequence is older than the last completed write is skipped, so the stored
// value always converges to the most recently accepted snapshot regardless of
// how timers and store calls interleave.
package persist

import (
	"context"
	"sync"
	"time"

	"collabtext/internal/models"
	"collabtext/internal/store"
)

const defaultWriteTimeout = 5 * time.Second

// Writer persists document snapshots on behalf of the relay.
type Writer interface {
	// Schedule records content as the newest snapshot of documentID.
	Schedule(documentID, content string)
	// Write persists content immediately, superseding anything scheduled.
	Write(ctx context.Context, documentID, content string) (*models.Document, error)
	// Pending returns a scheduled-but-unwritten snapshot, if any.
	Pending(documentID string) (string, bool)
	PendingCount() int
	Cancel(documentID string)
	// CancelAll drops every scheduled write and waits for in-flight ones.
	CancelAll()
	Flush(ctx context.Context) error
	Close(ctx context.Context) error
}

// Hooks observe write outcomes. Both are optional.
type Hooks struct {
	OnWrite func(documentID string)
	OnError func(documentID string, err error)
}

type docState struct {
	mu      sync.Mutex
	written uint64
	fence   uint64
}

// wait returns once no write holds the document.
func (st *docState) wait() {
	st.mu.Lock()
	defer st.mu.Unlock()
}

// sequencer hands out edit sequence numbers and serializes store writes per document.
type sequencer struct {
	store   store.DocumentStore
	timeout time.Duration
	hooks   Hooks

	mu    sync.Mutex
	seq   uint64
	fence uint64
	docs  map[string]*docState
}

func newSequencer(s store.DocumentStore, hooks Hooks) *sequencer {
	return &sequencer{
		store:   s,
		timeout: defaultWriteTimeout,
		hooks:   hooks,
		docs:    make(map[string]*docState),
	}
}

func (s *sequencer) next() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

func (s *sequencer) state(documentID string) *docState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.docs[documentID]
	if !ok {
		st = &docState{}
		s.docs[documentID] = st
	}
	return st
}

// cancel makes every sequence handed out so far unwritable for documentID.
func (s *sequencer) cancel(documentID string) {
	st := s.state(documentID)
	s.mu.Lock()
	defer s.mu.Unlock()
	st.fence = s.seq
}

// cancelAll is cancel for every document, including ones not yet seen.
func (s *sequencer) cancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fence = s.seq
}

func (s *sequencer) fenced(st *docState, seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return seq <= s.fence || seq <= st.fence
}

// write upserts content unless a newer snapshot already landed or the
// sequence was cancelled. A skipped write returns (nil, nil).
func (s *sequencer) write(ctx context.Context, documentID, content string, seq uint64) (*models.Document, error) {
	st := s.state(documentID)
	st.mu.Lock()
	defer st.mu.Unlock()
	if seq <= st.written || s.fenced(st, seq) {
		return nil, nil
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	doc, err := s.store.Upsert(ctx, documentID, content)
	if err != nil {
		if s.hooks.OnError != nil {
			s.hooks.OnError(documentID, err)
		}
		return nil, err
	}
	st.written = seq
	if s.hooks.OnWrite != nil {
		s.hooks.OnWrite(documentID)
	}
	return doc, nil
}

// drain blocks until no write is in flight for any known document.
func (s *sequencer) drain() {
	s.mu.Lock()
	states := make([]*docState, 0, len(s.docs))
	for _, st := range s.docs {
		states = append(states, st)
	}
	s.mu.Unlock()

	for _, st := range states {
		st.wait()
	}
}

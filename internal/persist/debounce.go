package persist

import (
	"context"
	"errors"
	"sync"
	"time"

	"collabtext/internal/models"
	"collabtext/internal/store"
)

type pendingWrite struct {
	content string
	seq     uint64
	timer   *time.Timer
}

// Debouncer keeps one pending write per document. A newer Schedule within the
// delay replaces the pending content and restarts the timer, so a burst of
// edits produces a single store write carrying the last snapshot.
type Debouncer struct {
	seq   *sequencer
	delay time.Duration

	mu      sync.Mutex
	pending map[string]*pendingWrite
	closed  bool
}

var _ Writer = (*Debouncer)(nil)

func NewDebouncer(s store.DocumentStore, delay time.Duration, hooks Hooks) *Debouncer {
	return &Debouncer{
		seq:     newSequencer(s, hooks),
		delay:   delay,
		pending: make(map[string]*pendingWrite),
	}
}

func (d *Debouncer) Schedule(documentID, content string) {
	d.mu.Lock()
	seq := d.seq.next()
	if d.closed {
		d.mu.Unlock()
		// shutting down: no timer will be flushed any more
		_, _ = d.seq.write(context.Background(), documentID, content, seq)
		return
	}
	if prev, ok := d.pending[documentID]; ok {
		prev.timer.Stop()
	}
	entry := &pendingWrite{content: content, seq: seq}
	entry.timer = time.AfterFunc(d.delay, func() { d.fire(documentID, entry) })
	d.pending[documentID] = entry
	d.mu.Unlock()
}

func (d *Debouncer) fire(documentID string, entry *pendingWrite) {
	d.mu.Lock()
	if d.pending[documentID] != entry {
		// superseded or cancelled after the timer had already fired
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	// the entry stays visible to Pending until the store holds it
	_, _ = d.seq.write(context.Background(), documentID, entry.content, entry.seq)

	d.mu.Lock()
	if d.pending[documentID] == entry {
		delete(d.pending, documentID)
	}
	d.mu.Unlock()
}

func (d *Debouncer) Write(ctx context.Context, documentID, content string) (*models.Document, error) {
	d.mu.Lock()
	if prev, ok := d.pending[documentID]; ok {
		prev.timer.Stop()
		delete(d.pending, documentID)
	}
	seq := d.seq.next()
	d.mu.Unlock()

	return d.seq.write(ctx, documentID, content, seq)
}

func (d *Debouncer) Pending(documentID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pending[documentID]
	if !ok {
		return "", false
	}
	return p.content, true
}

func (d *Debouncer) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func (d *Debouncer) Cancel(documentID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.pending[documentID]; ok {
		p.timer.Stop()
		delete(d.pending, documentID)
	}
	d.seq.cancel(documentID)
}

// CancelAll also stops timers that already fired but have not reached the
// store yet.
func (d *Debouncer) CancelAll() {
	d.mu.Lock()
	for id, p := range d.pending {
		p.timer.Stop()
		delete(d.pending, id)
	}
	d.seq.cancelAll()
	d.mu.Unlock()
	d.seq.drain()
}

// Flush writes every pending snapshot now and waits for in-flight writes.
func (d *Debouncer) Flush(ctx context.Context) error {
	d.mu.Lock()
	batch := make(map[string]*pendingWrite, len(d.pending))
	for id, p := range d.pending {
		p.timer.Stop()
		batch[id] = p
		delete(d.pending, id)
	}
	d.mu.Unlock()

	var errs []error
	for id, p := range batch {
		if _, err := d.seq.write(ctx, id, p.content, p.seq); err != nil {
			errs = append(errs, err)
		}
	}
	d.seq.drain()
	return errors.Join(errs...)
}

// Close flushes and switches to synchronous writes for late edits.
func (d *Debouncer) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return d.Flush(ctx)
}

package persist

import (
	"context"

	"collabtext/internal/models"
	"collabtext/internal/store"
)

// WriteThrough persists every snapshot synchronously inside Schedule, trading
// edit latency for a store that never lags the last broadcast.
type WriteThrough struct {
	seq *sequencer
}

var _ Writer = (*WriteThrough)(nil)

func NewWriteThrough(s store.DocumentStore, hooks Hooks) *WriteThrough {
	return &WriteThrough{seq: newSequencer(s, hooks)}
}

func (w *WriteThrough) Schedule(documentID, content string) {
	_, _ = w.seq.write(context.Background(), documentID, content, w.seq.next())
}

func (w *WriteThrough) Write(ctx context.Context, documentID, content string) (*models.Document, error) {
	return w.seq.write(ctx, documentID, content, w.seq.next())
}

func (w *WriteThrough) Pending(string) (string, bool) { return "", false }

func (w *WriteThrough) PendingCount() int { return 0 }

func (w *WriteThrough) Cancel(string) {}

func (w *WriteThrough) CancelAll() {
	w.seq.cancelAll()
	w.seq.drain()
}

func (w *WriteThrough) Flush(context.Context) error {
	w.seq.drain()
	return nil
}

func (w *WriteThrough) Close(ctx context.Context) error { return w.Flush(ctx) }

package session

import (
	"sync"

	"collabtext/internal/models"
)

// Snapshot is the room's latest known content. Seq counts the snapshots the
// room has accepted.
type Snapshot struct {
	Content string
	Seq     uint64
}

// Room holds the latest snapshot and connected clients for one documentId.
type Room struct {
	ID      string
	mu      sync.Mutex
	clients map[*Client]struct{}
	doc     Snapshot
	seeded  bool
}

func NewRoom(id string) *Room {
	return &Room{
		ID:      id,
		clients: make(map[*Client]struct{}),
	}
}

// Admit sends the joining client exactly one load-document frame and adds it
// to the room. load is consulted only while the room has no snapshot yet.
// Broadcasts share the room lock, so no update reaches c before its snapshot.
func (r *Room) Admit(c *Client, load func() (string, error)) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.seeded {
		content, err := load()
		if err != nil {
			return Snapshot{}, err
		}
		r.doc.Content = content
		r.seeded = true
	}
	c.Send(models.WSFrame{Type: models.EventLoadDocument, Data: r.doc.Content})
	r.clients[c] = struct{}{}
	return r.doc, nil
}

func (r *Room) Has(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.clients[c]
	return ok
}

func (r *Room) GetClientCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

func (r *Room) Members() []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		out = append(out, c)
	}
	return out
}

func (r *Room) Leave(c *Client) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, c)
	return len(r.clients)
}

func (r *Room) Snapshot() (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.doc, r.seeded
}

// Publish replaces the snapshot wholesale and sends update-document to every
// member except sender (which may be nil).
func (r *Room) Publish(sender *Client, content string) Snapshot {
	snap, _ := r.Commit(sender, func() (string, error) { return content, nil })
	return snap
}

// Commit runs fn under the room lock and publishes the content it returns.
// Nothing is published when fn fails. Commits, joins and resets of one room
// never interleave.
func (r *Room) Commit(sender *Client, fn func() (string, error)) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	content, err := fn()
	if err != nil {
		return r.doc, err
	}
	r.publishLocked(sender, content)
	return r.doc, nil
}

func (r *Room) publishLocked(sender *Client, content string) {
	r.doc.Content = content
	r.doc.Seq++
	r.seeded = true
	r.broadcastLocked(sender, models.WSFrame{Type: models.EventUpdateDocument, Data: content})
}

func (r *Room) Broadcast(sender *Client, frame models.WSFrame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcastLocked(sender, frame)
}

func (r *Room) broadcastLocked(sender *Client, frame models.WSFrame) {
	for c := range r.clients {
		if c == sender {
			continue
		}
		c.Send(frame)
	}
}

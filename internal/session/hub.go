package session

import (
	"context"
	"sort"
	"sync"

	"collabtext/internal/models"
)

// Hub manages all active rooms and which rooms each client belongs to.
// One Hub lives for the lifetime of a server process.
//
// Lock order is hub then room. Commits hold the hub read lock for their whole
// run, so a room cannot be created, pruned or reset under them.
type Hub struct {
	mu          sync.RWMutex
	rooms       map[string]*Room
	joining     map[*Room]int
	memberships map[*Client]map[string]struct{}

	conns   map[*Client]struct{}
	closing bool
	live    sync.WaitGroup
}

func NewHub() *Hub {
	return &Hub{
		rooms:       make(map[string]*Room),
		joining:     make(map[*Room]int),
		memberships: make(map[*Client]map[string]struct{}),
		conns:       make(map[*Client]struct{}),
	}
}

func (h *Hub) GetOrCreate(id string) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.getOrCreateLocked(id)
}

func (h *Hub) getOrCreateLocked(id string) *Room {
	if r, ok := h.rooms[id]; ok {
		return r
	}
	r := NewRoom(id)
	h.rooms[id] = r
	return r
}

func (h *Hub) Get(id string) (*Room, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.rooms[id]
	return r, ok
}

func (h *Hub) Delete(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rooms, id)
}

// Connect tracks a live socket until Disconnect. It reports false once
// CloseAll has started.
func (h *Hub) Connect(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	if _, ok := h.conns[c]; !ok {
		h.conns[c] = struct{}{}
		h.live.Add(1)
	}
	return true
}

// CloseAll closes every tracked socket and waits until each one has been
// disconnected, or ctx ends.
func (h *Hub) CloseAll(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	conns := make([]*Client, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}

	done := make(chan struct{})
	go func() {
		h.live.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Join admits c to room id. Repeated joins re-send the snapshot but keep a
// single membership.
func (h *Hub) Join(c *Client, id string, load func() (string, error)) (Snapshot, error) {
	h.mu.Lock()
	room := h.getOrCreateLocked(id)
	h.joining[room]++
	h.mu.Unlock()

	snap, err := room.Admit(c, load)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.joining[room]--; h.joining[room] == 0 {
		delete(h.joining, room)
	}
	if err != nil {
		h.pruneLocked(room)
		return Snapshot{}, err
	}
	rooms, ok := h.memberships[c]
	if !ok {
		rooms = make(map[string]struct{})
		h.memberships[c] = rooms
	}
	rooms[id] = struct{}{}
	return snap, nil
}

// Leave removes c from one room.
func (h *Hub) Leave(c *Client, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if rooms, ok := h.memberships[c]; ok {
		delete(rooms, id)
		if len(rooms) == 0 {
			delete(h.memberships, c)
		}
	}
	if room, ok := h.rooms[id]; ok {
		room.Leave(c)
		h.pruneLocked(room)
	}
}

// Disconnect removes c from every room it joined and stops tracking it.
// Peers are not notified.
func (h *Hub) Disconnect(c *Client) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[c]; ok {
		delete(h.conns, c)
		h.live.Done()
	}
	rooms := h.memberships[c]
	delete(h.memberships, c)

	left := make([]string, 0, len(rooms))
	for id := range rooms {
		left = append(left, id)
		room, ok := h.rooms[id]
		if !ok {
			continue
		}
		room.Leave(c)
		h.pruneLocked(room)
	}
	sort.Strings(left)
	return left
}

// pruneLocked drops an empty room unless a join is in flight on it.
func (h *Hub) pruneLocked(room *Room) {
	if h.joining[room] > 0 || room.GetClientCount() > 0 {
		return
	}
	if h.rooms[room.ID] == room {
		delete(h.rooms, room.ID)
	}
}

// Commit runs fn and publishes its content to room id as one step. Without a
// live room fn still runs, but nothing is published and no room is created.
// It reports whether a room received the content.
func (h *Hub) Commit(id string, sender *Client, fn func() (string, error)) (Snapshot, bool, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	room, ok := h.rooms[id]
	if !ok {
		content, err := fn()
		return Snapshot{Content: content}, false, err
	}
	snap, err := room.Commit(sender, fn)
	return snap, true, err
}

// Publish records content as the snapshot of a live room and sends
// update-document to every member except sender.
func (h *Hub) Publish(id string, sender *Client, content string) (Snapshot, bool) {
	snap, ok, _ := h.Commit(id, sender, func() (string, error) { return content, nil })
	return snap, ok
}

// Broadcast delivers frame to every member of room id except exclude.
func (h *Hub) Broadcast(id string, exclude *Client, frame models.WSFrame) {
	room, ok := h.Get(id)
	if !ok {
		return
	}
	room.Broadcast(exclude, frame)
}

// ResetAll runs during with every room frozen, then replaces each room's
// snapshot with content and notifies all members. No commit or join can
// interleave. When during fails the rooms are left untouched.
func (h *Hub) ResetAll(content string, during func() error) ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ids := make([]string, 0, len(h.rooms))
	for id := range h.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rooms := make([]*Room, 0, len(ids))
	for _, id := range ids {
		r := h.rooms[id]
		r.mu.Lock()
		rooms = append(rooms, r)
	}
	defer func() {
		for _, r := range rooms {
			r.mu.Unlock()
		}
	}()

	if during != nil {
		if err := during(); err != nil {
			return nil, err
		}
	}
	for _, r := range rooms {
		r.publishLocked(nil, content)
	}
	return ids, nil
}

func (h *Hub) GetDoc(id string) (string, bool) {
	room, ok := h.Get(id)
	if !ok {
		return "", false
	}
	snap, seeded := room.Snapshot()
	if !seeded {
		return "", false
	}
	return snap.Content, true
}

func (h *Hub) Rooms() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.rooms))
	for id := range h.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.memberships)
}

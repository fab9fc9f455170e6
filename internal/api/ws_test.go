package api

import (
	"context"
	"fmt"
	"sync"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabtext/internal/models"
	"collabtext/internal/testhelpers"
)

func dialWS(t *testing.T, h *Handlers) func() *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(h.DocumentWS))
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	return func() *websocket.Conn {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = conn.Close() })
		return conn
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) models.WSFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame models.WSFrame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func send(t *testing.T, conn *websocket.Conn, typ string, data interface{}) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(models.WSFrame{Type: typ, Data: data}))
}

func TestDocumentWSJoinAndEdit(t *testing.T) {
	h, repo := newTestHandlers(t)
	dial := dialWS(t, h)

	alice := dial()
	send(t, alice, models.EventJoinDocument, models.JoinRequest{DocumentID: "default-document", Username: "alice"})
	frame := readFrame(t, alice)
	assert.Equal(t, models.EventLoadDocument, frame.Type)
	assert.Equal(t, "", frame.Data)

	bob := dial()
	send(t, bob, models.EventJoinDocument, models.JoinRequest{DocumentID: "default-document", Username: "bob"})
	frame = readFrame(t, bob)
	assert.Equal(t, models.EventLoadDocument, frame.Type)

	send(t, alice, models.EventEditDocument, models.EditRequest{DocumentID: "default-document", Content: "[alice]: hi", Username: "alice"})
	frame = readFrame(t, bob)
	assert.Equal(t, models.EventUpdateDocument, frame.Type)
	assert.Equal(t, "[alice]: hi", frame.Data)

	assert.Eventually(t, func() bool {
		doc, err := repo.Get(context.Background(), "default-document")
		return err == nil && doc.Content == "[alice]: hi"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDocumentWSRejectsMissingUsername(t *testing.T) {
	h, repo := newTestHandlers(t)
	conn := dialWS(t, h)()

	send(t, conn, models.EventJoinDocument, models.JoinRequest{DocumentID: "default-document"})
	frame := readFrame(t, conn)
	assert.Equal(t, models.EventError, frame.Type)
	assert.Equal(t, "Username is required!", frame.Data)

	docs, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestDocumentWSUnknownType(t *testing.T) {
	h, _ := newTestHandlers(t)
	conn := dialWS(t, h)()

	send(t, conn, "cursor", map[string]int{"line": 1})
	frame := readFrame(t, conn)
	assert.Equal(t, models.EventError, frame.Type)
	assert.Equal(t, "unknown_type", frame.Data)
}

func TestDocumentWSLoadFailure(t *testing.T) {
	h, repo := newTestHandlers(t)
	conn := dialWS(t, h)()
	testhelpers.DropDocumentTable(t, repo.DB)

	send(t, conn, models.EventJoinDocument, models.JoinRequest{Username: "alice"})
	frame := readFrame(t, conn)
	assert.Equal(t, models.EventError, frame.Type)
	assert.Equal(t, "Failed to load document", frame.Data)
}

func TestDocumentWSTwoEditorsInterleave(t *testing.T) {
	h, repo := newTestHandlers(t)
	dial := dialWS(t, h)

	alice, bob, watcher := dial(), dial(), dial()
	for name, conn := range map[string]*websocket.Conn{"alice": alice, "bob": bob, "watcher": watcher} {
		send(t, conn, models.EventJoinDocument, models.JoinRequest{Username: name})
		require.Equal(t, models.EventLoadDocument, readFrame(t, conn).Type)
	}

	const perEditor = 20
	var wg sync.WaitGroup
	for name, conn := range map[string]*websocket.Conn{"alice": alice, "bob": bob} {
		wg.Add(1)
		go func(name string, conn *websocket.Conn) {
			defer wg.Done()
			for i := 0; i < perEditor; i++ {
				err := conn.WriteJSON(models.WSFrame{
					Type: models.EventEditDocument,
					Data: models.EditRequest{Content: fmt.Sprintf("[%s]: %d", name, i), Username: name},
				})
				if !assert.NoError(t, err) {
					return
				}
			}
		}(name, conn)
	}
	wg.Wait()

	var last string
	for i := 0; i < 2*perEditor; i++ {
		frame := readFrame(t, watcher)
		require.Equal(t, models.EventUpdateDocument, frame.Type)
		last, _ = frame.Data.(string)
	}

	doc, ok := h.relay.Hub().GetDoc(models.DefaultDocumentID)
	require.True(t, ok)
	assert.Equal(t, last, doc)
	assert.Eventually(t, func() bool {
		stored, err := repo.Get(context.Background(), models.DefaultDocumentID)
		return err == nil && stored.Content == last
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRelayCloseShutsOpenSockets(t *testing.T) {
	h, _ := newTestHandlers(t)
	conn := dialWS(t, h)()
	send(t, conn, models.EventJoinDocument, models.JoinRequest{Username: "alice"})
	require.Equal(t, models.EventLoadDocument, readFrame(t, conn).Type)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.relay.Close(ctx))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "server side closed the socket")
	assert.Equal(t, 0, h.relay.Hub().ClientCount())
	assert.Empty(t, h.relay.Hub().Rooms())

	late, _, err := websocket.DefaultDialer.Dial("ws://"+conn.RemoteAddr().String(), nil)
	require.NoError(t, err)
	defer late.Close()
	require.NoError(t, late.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = late.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"collabtext/internal/client"
	"collabtext/internal/models"
	"collabtext/internal/persist"
	"collabtext/internal/relay"
	"collabtext/internal/routers"
	"collabtext/internal/session"
	"collabtext/internal/store/sqlstore"
	"collabtext/internal/testhelpers"
)

func startServer(t *testing.T) (string, *sqlstore.DocumentRepository) {
	t.Helper()
	repo := testhelpers.SetupDocumentStore(t)
	rel := relay.New(session.NewHub(), repo, persist.NewWriteThrough(repo, persist.Hooks{}), zap.NewNop(), models.DefaultDocumentID)
	t.Cleanup(func() { _ = rel.Close(context.Background()) })
	srv := httptest.NewServer(routers.New(zap.NewNop(), rel, []string{"*"}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws", repo
}

func setFlags(t *testing.T, url, name, doc string) {
	t.Helper()
	origURL, origName, origDoc := serverURL, username, documentID
	t.Cleanup(func() { serverURL, username, documentID = origURL, origName, origDoc })
	serverURL, username, documentID = url, name, doc
}

// scriptedConn replays frames, then blocks reads until closed.
type scriptedConn struct {
	mu     sync.Mutex
	frames []models.WSFrame
	closed chan struct{}
	once   sync.Once
}

func (c *scriptedConn) ReadJSON(v interface{}) error {
	c.mu.Lock()
	if len(c.frames) > 0 {
		*v.(*models.WSFrame) = c.frames[0]
		c.frames = c.frames[1:]
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	<-c.closed
	return errors.New("use of closed connection")
}

func (c *scriptedConn) WriteJSON(interface{}) error { return nil }

func (c *scriptedConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

type scriptedDialer struct{ conn *scriptedConn }

func (d scriptedDialer) Dial(context.Context, string) (client.Conn, error) { return d.conn, nil }

func TestRunClientPrintsServerErrorsBeforeReturning(t *testing.T) {
	setFlags(t, "ws://unused/ws", "alice", models.DefaultDocumentID)
	conn := &scriptedConn{
		closed: make(chan struct{}),
		frames: []models.WSFrame{
			{Type: models.EventLoadDocument, Data: ""},
			{Type: models.EventError, Data: "Failed to load document"},
		},
	}
	orig := dialer
	dialer = scriptedDialer{conn: conn}
	t.Cleanup(func() { dialer = orig })

	var out bytes.Buffer
	require.NoError(t, runClient(context.Background(), strings.NewReader("hello\n"), &out))

	assert.Contains(t, out.String(), "error: Failed to load document")
	select {
	case <-conn.closed:
	default:
		t.Fatal("connection left open")
	}
}

func TestRootCmdFlags(t *testing.T) {
	assert.Equal(t, "collabtext-client", rootCmd.Use)
	for _, name := range []string{"server", "name", "document"} {
		assert.NotNil(t, rootCmd.Flags().Lookup(name), name)
	}
	assert.Equal(t, models.DefaultDocumentID, rootCmd.Flags().Lookup("document").DefValue)
}

func TestRunClientPromptsForNameAndSends(t *testing.T) {
	url, repo := startServer(t)
	setFlags(t, url, "", models.DefaultDocumentID)

	in := strings.NewReader("\n  alice \nhello\n   \nworld\n")
	var out bytes.Buffer
	require.NoError(t, runClient(context.Background(), in, &out))

	assert.Contains(t, out.String(), "Enter your name: ")
	assert.Eventually(t, func() bool {
		doc, err := repo.Get(context.Background(), models.DefaultDocumentID)
		return err == nil && doc.Content == "[alice]: hello\n[alice]: world"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRunClientNeedsName(t *testing.T) {
	setFlags(t, "ws://127.0.0.1:1/ws", "", models.DefaultDocumentID)

	err := runClient(context.Background(), strings.NewReader(""), &bytes.Buffer{})
	assert.Error(t, err)
}

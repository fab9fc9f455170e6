// Package client is the terminal-side editor session: one user, one
// document, a composition box and the shared content.
package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"collabtext/internal/models"
)

type State int

const (
	NameEntry State = iota
	AwaitingSnapshot
	Ready
)

func (s State) String() string {
	switch s {
	case NameEntry:
		return "name-entry"
	case AwaitingSnapshot:
		return "awaiting-snapshot"
	case Ready:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	ErrUsernameRequired = errors.New("username is required")
	ErrAlreadyStarted   = errors.New("session already started")
	ErrNotReady         = errors.New("document not loaded yet")
)

// Conn is the subset of *websocket.Conn the session uses.
type Conn interface {
	ReadJSON(v interface{}) error
	WriteJSON(v interface{}) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebsocketDialer dials with gorilla/websocket.
type WebsocketDialer struct {
	Dialer *websocket.Dialer
}

func (d WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return conn, nil
}

type Session struct {
	url        string
	documentID string
	dialer     Dialer

	mu       sync.Mutex
	state    State
	username string
	content  string
	message  string
	loaded   bool
	lastErr  string
	conn     Conn
	onChange func(string)

	writeMu    sync.Mutex
	errs       chan string
	errsClosed bool
}

func NewSession(url string, dialer Dialer) *Session {
	if dialer == nil {
		dialer = WebsocketDialer{}
	}
	return &Session{
		url:        url,
		documentID: models.DefaultDocumentID,
		dialer:     dialer,
		errs:       make(chan string, 16),
	}
}

// SetDocumentID picks the document to join. It has no effect after Start.
func (s *Session) SetDocumentID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == NameEntry && strings.TrimSpace(id) != "" {
		s.documentID = id
	}
}

// OnChange registers fn to run with the new content after every change.
func (s *Session) OnChange(fn func(content string)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Start connects as username and asks for the document snapshot.
func (s *Session) Start(ctx context.Context, username string) error {
	s.mu.Lock()
	if s.state != NameEntry {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	username = strings.TrimSpace(username)
	if username == "" {
		s.mu.Unlock()
		return ErrUsernameRequired
	}
	documentID := s.documentID
	s.mu.Unlock()

	conn, err := s.dialer.Dial(ctx, s.url)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.username = username
	s.state = AwaitingSnapshot
	s.mu.Unlock()

	return s.write(models.WSFrame{
		Type: models.EventJoinDocument,
		Data: models.JoinRequest{DocumentID: documentID, Username: username},
	})
}

// Handle applies one server frame.
func (s *Session) Handle(frame models.WSFrame) {
	switch frame.Type {
	case models.EventLoadDocument:
		s.mu.Lock()
		if s.state != AwaitingSnapshot || s.loaded {
			s.mu.Unlock()
			return
		}
		s.content = payloadString(frame.Data)
		s.loaded = true
		s.state = Ready
		s.notifyLocked()

	case models.EventUpdateDocument:
		s.mu.Lock()
		if s.state != Ready {
			s.mu.Unlock()
			return
		}
		s.content = payloadString(frame.Data)
		s.notifyLocked()

	case models.EventError:
		msg := payloadString(frame.Data)
		s.mu.Lock()
		defer s.mu.Unlock()
		s.lastErr = msg
		if s.errsClosed {
			return
		}
		select {
		case s.errs <- msg:
		default:
		}
	}
}

// notifyLocked releases s.mu before running the callback.
func (s *Session) notifyLocked() {
	fn, content := s.onChange, s.content
	s.mu.Unlock()
	if fn != nil {
		fn(content)
	}
}

func (s *Session) SetMessage(text string) {
	s.mu.Lock()
	s.message = text
	s.mu.Unlock()
}

// Send appends the composition as "[username]: message" and publishes the
// full content. A blank composition is a no-op.
func (s *Session) Send() error {
	s.mu.Lock()
	if s.state != Ready {
		s.mu.Unlock()
		return ErrNotReady
	}
	msg := strings.TrimSpace(s.message)
	if msg == "" {
		s.mu.Unlock()
		return nil
	}
	line := "[" + s.username + "]: " + msg
	if s.content == "" {
		s.content = line
	} else {
		s.content += "\n" + line
	}
	s.message = ""
	req := models.EditRequest{DocumentID: s.documentID, Content: s.content, Username: s.username}
	s.notifyLocked()

	return s.write(models.WSFrame{Type: models.EventEditDocument, Data: req})
}

// Run reads frames until the connection fails or ctx is done. Errors() is
// closed when it returns.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotReady
	}
	defer s.closeErrors()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		var frame models.WSFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		s.Handle(frame)
	}
}

func (s *Session) closeErrors() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.errsClosed {
		s.errsClosed = true
		close(s.errs)
	}
}

// Close drops the connection without telling the server anything.
func (s *Session) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (s *Session) write(frame models.WSFrame) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotReady
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteJSON(frame)
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Content() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.content
}

func (s *Session) Message() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.message
}

func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

func (s *Session) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Errors delivers server error messages until Run returns. Messages are
// dropped when nobody reads.
func (s *Session) Errors() <-chan string { return s.errs }

func payloadString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

package relay

import "fmt"

// ValidationError is a request the relay refuses before touching any state.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// PersistenceError wraps a DocumentStore failure with the operation that hit it.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *PersistenceError) Unwrap() error { return e.Err }

const (
	msgUsernameRequired = "Username is required!"
	// MsgLoadFailed is what a socket client sees when its snapshot cannot be read.
	MsgLoadFailed = "Failed to load document"
)

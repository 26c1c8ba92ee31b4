package messaging

import "errors"

var (
	// ErrNotFound: no conversation with that id.
	ErrNotFound = errors.New("conversation not found")
	// ErrArchived: the conversation exists but is archived, a terminal state.
	ErrArchived = errors.New("conversation archived")
	// ErrInvalidInput: the router refused arguments the adapters should have rejected.
	ErrInvalidInput = errors.New("invalid input")
)

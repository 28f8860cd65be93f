package chatlog

import (
	"errors"
	"fmt"
)

var (
	ErrMissingFile          = errors.New("no file attached")
	ErrMissingUser          = errors.New("no user identifier attached")
	ErrUserNotFound         = errors.New("user not found")
	ErrConversationNotFound = errors.New("conversation not found")
)

// PersistenceError reports a failed write. The surrounding transaction has
// been rolled back by the time it is returned.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

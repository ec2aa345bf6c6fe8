package stream

import (
	"errors"
	"fmt"
)

// Terminal conditions, resolved at connection-open time. No session is ever
// created when one of these fires.
var (
	ErrUnauthorized = errors.New("no authenticated identity")
	ErrForbidden    = errors.New("not a participant in this conversation")
	ErrNotFound     = errors.New("conversation not found")
)

// FetchError wraps a data-access failure. During an open session it is
// non-terminal: the session reports it as an error frame and keeps polling.
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

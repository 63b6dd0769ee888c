package models

import (
	"errors"
	"fmt"
)

// Kind classifies errors surfaced to the user
type Kind int

const (
	KindOther Kind = iota
	// KindInput covers unreadable uploads and empty document sets
	KindInput
	// KindService covers failures of the embedding or chat model
	KindService
	// KindState covers calls made while the session cannot serve them
	KindState
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindService:
		return "service"
	case KindState:
		return "state"
	default:
		return "other"
	}
}

var (
	ErrNoDocuments       = &Error{Kind: KindInput, Msg: "no documents uploaded"}
	ErrNoChunks          = &Error{Kind: KindInput, Msg: "cannot build index over zero chunks"}
	ErrUnsupportedFormat = &Error{Kind: KindInput, Msg: "unsupported file format"}
	ErrEmptyQuestion     = &Error{Kind: KindInput, Msg: "question must not be empty"}
	ErrNotReady          = &Error{Kind: KindState, Msg: "process documents first"}
	ErrBusy              = &Error{Kind: KindState, Msg: "session is busy, try again when processing is done"}
)

// Error is the error type returned across the pipeline. Op names the
// failing step, Err carries the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func InputError(op string, err error) error {
	return &Error{Kind: KindInput, Op: op, Err: err}
}

func ServiceError(op string, err error) error {
	return &Error{Kind: KindService, Op: op, Err: err}
}

// IsKind reports whether any error in err's chain has the given kind
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// KindOf returns the kind of the outermost *Error in err's chain
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindOther
}

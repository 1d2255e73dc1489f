// Package errs defines the typed error taxonomy shared by the searchers and the fusion engine.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	KindNotInitialized  Kind = "not_initialized"
	KindInvalidOptions  Kind = "invalid_options"
	KindUnavailable     Kind = "unavailable"
	KindEmbeddingFailed Kind = "embedding_failed"
	KindQueryFailed     Kind = "query_failed"
	KindTimeout         Kind = "timeout"
	KindNoResults       Kind = "no_results"
)

// Error is the structured error returned by search components.
type Error struct {
	Kind    Kind
	Op      string // component operation, e.g. "lexical.search"
	Message string
	// Hint is an operator-facing suggestion such as an install command.
	Hint string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: [%s] %s", e.Op, e.Kind, msg)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind, so errors.Is(err, errs.ErrTimeout) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Message == ""
}

// WithHint sets the operator hint and returns e.
func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

// Sentinels for errors.Is.
var (
	ErrNotInitialized  = &Error{Kind: KindNotInitialized}
	ErrInvalidOptions  = &Error{Kind: KindInvalidOptions}
	ErrUnavailable     = &Error{Kind: KindUnavailable}
	ErrEmbeddingFailed = &Error{Kind: KindEmbeddingFailed}
	ErrQueryFailed     = &Error{Kind: KindQueryFailed}
	ErrTimeout         = &Error{Kind: KindTimeout}
	ErrNoResults       = &Error{Kind: KindNoResults}
)

// New creates an error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap creates an error of the given kind around err. Returns nil when err is nil.
func Wrap(kind Kind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HintOf returns the first non-empty hint in err's chain.
func HintOf(err error) string {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return ""
		}
		if e.Hint != "" {
			return e.Hint
		}
		err = e.Err
	}
	return ""
}

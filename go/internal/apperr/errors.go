package apperr

import (
	"context"
	"errors"
	"fmt"

	"connectrpc.com/connect"
)

// Kind categorizes an error by how callers are expected to react to it
type Kind string

const (
	KindNotFound        Kind = "not_found"
	KindInvalidState    Kind = "invalid_state"
	KindInvalidArgument Kind = "invalid_argument"
	KindConflict        Kind = "conflict"
	KindNetwork         Kind = "network"
	KindTimeout         Kind = "timeout"
	KindExhausted       Kind = "exhausted"
	KindRateLimited     Kind = "rate_limited"
	KindUnauthenticated Kind = "unauthenticated"
	KindInternal        Kind = "internal"
)

// Error carries a Kind alongside the operation that failed
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
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap attaches a kind to an existing error
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in the chain. Context errors are
// treated as timeouts; anything else unclassified is internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindInternal
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Retryable reports whether the failure is transient (network or timeout)
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindNetwork, KindTimeout:
		return true
	default:
		return false
	}
}

// ConnectCode maps a kind to the connect status code used by the management API
func ConnectCode(kind Kind) connect.Code {
	switch kind {
	case KindNotFound:
		return connect.CodeNotFound
	case KindInvalidState:
		return connect.CodeFailedPrecondition
	case KindInvalidArgument:
		return connect.CodeInvalidArgument
	case KindConflict:
		return connect.CodeAborted
	case KindNetwork:
		return connect.CodeUnavailable
	case KindTimeout:
		return connect.CodeDeadlineExceeded
	case KindExhausted:
		return connect.CodeResourceExhausted
	case KindRateLimited:
		return connect.CodeResourceExhausted
	case KindUnauthenticated:
		return connect.CodeUnauthenticated
	default:
		return connect.CodeInternal
	}
}

// ToConnect converts err into a *connect.Error with the matching code
func ToConnect(err error) error {
	if err == nil {
		return nil
	}
	return connect.NewError(ConnectCode(KindOf(err)), err)
}

// FromConnect converts an error returned by a connect client back into an *Error
func FromConnect(op string, err error) error {
	if err == nil {
		return nil
	}
	var kind Kind
	switch connect.CodeOf(err) {
	case connect.CodeNotFound:
		kind = KindNotFound
	case connect.CodeFailedPrecondition:
		kind = KindInvalidState
	case connect.CodeInvalidArgument:
		kind = KindInvalidArgument
	case connect.CodeAborted:
		kind = KindConflict
	case connect.CodeUnavailable:
		kind = KindNetwork
	case connect.CodeDeadlineExceeded:
		kind = KindTimeout
	case connect.CodeResourceExhausted:
		kind = KindExhausted
	case connect.CodeUnauthenticated:
		kind = KindUnauthenticated
	default:
		kind = KindInternal
	}
	return Wrap(kind, op, err)
}

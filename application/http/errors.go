package http

import (
	"github.com/pkg/errors"
)

// Kind tags every error an exchange can end with.
type Kind uint8

const (
	KindUnknown Kind = iota

	// Transport.
	KindConnect
	KindWrite
	KindRead

	// Caller input, rejected before any I/O.
	KindInvalidMethodOrTarget
	KindInvalidHeader

	// Protocol, raised after some bytes were read.
	KindMalformedStatusLine
	KindMalformedHeaderLine
	KindMalformedChunk
	KindTruncatedBody
	KindBodyTooLarge
)

func (k Kind) String() string {
	switch k {
	case KindConnect:
		return "connect failed"
	case KindWrite:
		return "write failed"
	case KindRead:
		return "read failed"
	case KindInvalidMethodOrTarget:
		return "invalid method or target"
	case KindInvalidHeader:
		return "invalid header"
	case KindMalformedStatusLine:
		return "malformed status line"
	case KindMalformedHeaderLine:
		return "malformed header line"
	case KindMalformedChunk:
		return "malformed chunk"
	case KindTruncatedBody:
		return "truncated body"
	case KindBodyTooLarge:
		return "body too large"
	default:
		return "unknown error"
	}
}

// Class groups kinds by how far the exchange got.
type Class uint8

const (
	ClassUnknown Class = iota
	// ClassInput: request was rejected before anything was sent.
	ClassInput
	// ClassUnreached: the request never made it to the server.
	ClassUnreached
	// ClassTransport: the server was reached but the stream broke.
	ClassTransport
	// ClassProtocol: the server answered with something that is not valid HTTP/1.1.
	ClassProtocol
)

func (k Kind) Class() Class {
	switch k {
	case KindInvalidMethodOrTarget, KindInvalidHeader:
		return ClassInput
	case KindConnect, KindWrite:
		return ClassUnreached
	case KindRead:
		return ClassTransport
	case KindMalformedStatusLine, KindMalformedHeaderLine, KindMalformedChunk,
		KindTruncatedBody, KindBodyTooLarge:
		return ClassProtocol
	default:
		return ClassUnknown
	}
}

type Error struct {
	Kind  Kind
	cause error
}

func NewError(kind Kind, cause error) *Error {
	return &Error{Kind: kind, cause: cause}
}

func (e *Error) Error() string {
	if e.cause == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.cause.Error()
}

func (e *Error) Cause() error  { return e.cause }
func (e *Error) Unwrap() error { return e.cause }

// Is matches sentinels of the same kind, so errors.Is(err, ErrTruncatedBody) works
// no matter what the cause was.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.cause == nil && t.Kind == e.Kind
}

var (
	ErrConnect               = &Error{Kind: KindConnect}
	ErrWrite                 = &Error{Kind: KindWrite}
	ErrRead                  = &Error{Kind: KindRead}
	ErrInvalidMethodOrTarget = &Error{Kind: KindInvalidMethodOrTarget}
	ErrInvalidHeader         = &Error{Kind: KindInvalidHeader}
	ErrMalformedStatusLine   = &Error{Kind: KindMalformedStatusLine}
	ErrMalformedHeaderLine   = &Error{Kind: KindMalformedHeaderLine}
	ErrMalformedChunk        = &Error{Kind: KindMalformedChunk}
	ErrTruncatedBody         = &Error{Kind: KindTruncatedBody}
	ErrBodyTooLarge          = &Error{Kind: KindBodyTooLarge}
)

// KindOf returns the kind of the first [*Error] in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

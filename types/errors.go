package types

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can decide whether to retry with
// different input (most kinds) or give up (UnresolvableResult, KeyProviderFailure).
type Kind int

const (
	KindUnknown Kind = iota
	KindMalformedLog
	KindInvalidLog
	KindAuthorizationMismatch
	KindTemporalViolation
	KindAlreadyDeactivated
	KindUnresolvableResult
	KindKeyProviderFailure
	KindInvalidInput

	KindUnsupportedAlgorithm
	KindNonceMismatch
	KindTokenExpired
	KindUnknownKid
	KindInvalidSignature
	KindMalformedToken
)

var kindNames = map[Kind]string{
	KindUnknown:               "Unknown",
	KindMalformedLog:          "MalformedLog",
	KindInvalidLog:            "InvalidLog",
	KindAuthorizationMismatch: "AuthorizationMismatch",
	KindTemporalViolation:     "TemporalViolation",
	KindAlreadyDeactivated:    "AlreadyDeactivated",
	KindUnresolvableResult:    "UnresolvableResult",
	KindKeyProviderFailure:    "KeyProviderFailure",
	KindInvalidInput:          "InvalidInput",
	KindUnsupportedAlgorithm:  "UnsupportedAlgorithm",
	KindNonceMismatch:         "NonceMismatch",
	KindTokenExpired:          "TokenExpired",
	KindUnknownKid:            "UnknownKid",
	KindInvalidSignature:      "InvalidSignature",
	KindMalformedToken:        "MalformedToken",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind is the inverse of Kind.String, used to carry kinds across HTTP.
func ParseKind(name string) Kind {
	for k, n := range kindNames {
		if n == name {
			return k
		}
	}
	return KindUnknown
}

// Sentinels for errors.Is. Any *Error of the same Kind matches.
var (
	ErrMalformedLog          = &Error{Kind: KindMalformedLog}
	ErrInvalidLog            = &Error{Kind: KindInvalidLog}
	ErrAuthorizationMismatch = &Error{Kind: KindAuthorizationMismatch}
	ErrTemporalViolation     = &Error{Kind: KindTemporalViolation}
	ErrAlreadyDeactivated    = &Error{Kind: KindAlreadyDeactivated}
	ErrUnresolvableResult    = &Error{Kind: KindUnresolvableResult}
	ErrKeyProviderFailure    = &Error{Kind: KindKeyProviderFailure}
	ErrInvalidInput          = &Error{Kind: KindInvalidInput}

	ErrUnsupportedAlgorithm = &Error{Kind: KindUnsupportedAlgorithm}
	ErrNonceMismatch        = &Error{Kind: KindNonceMismatch}
	ErrTokenExpired         = &Error{Kind: KindTokenExpired}
	ErrUnknownKid           = &Error{Kind: KindUnknownKid}
	ErrInvalidSignature     = &Error{Kind: KindInvalidSignature}
	ErrMalformedToken       = &Error{Kind: KindMalformedToken}
)

// Error is the typed failure returned by every package in this module.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Errorf builds an *Error of the given kind.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given kind around cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// KindOf reports the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

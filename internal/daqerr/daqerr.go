// Package daqerr defines the closed error-kind enum shared by every layer of
// the runtime (value kernel, property system, component tree, readers, and
// the remote mirror RPC). Every public operation that can fail returns one of
// these kinds wrapped with an optional human-readable message, the way
// machine.Error carries a VertexID/VertexType/Time alongside the underlying
// error.
package daqerr

import "fmt"

// Kind is one of the closed set of error kinds from the spec's error model.
type Kind string

const (
	ArgumentNull     Kind = "ArgumentNull"
	InvalidParameter Kind = "InvalidParameter"
	NoInterface      Kind = "NoInterface"
	NotFound         Kind = "NotFound"
	AlreadyExists    Kind = "AlreadyExists"
	DuplicateItem    Kind = "DuplicateItem"
	OutOfRange       Kind = "OutOfRange"
	Frozen           Kind = "Frozen"
	AccessDenied     Kind = "AccessDenied"
	InvalidType      Kind = "InvalidType"
	InvalidState     Kind = "InvalidState"
	InvalidValue     Kind = "InvalidValue"
	InvalidProperty  Kind = "InvalidProperty"
	ConversionFailed Kind = "ConversionFailed"
	CoercionFailed   Kind = "CoercionFailed"
	ValidateFailed   Kind = "ValidateFailed"
	ResolveFailed    Kind = "ResolveFailed"
	CalcFailed       Kind = "CalcFailed"
	ParseFailed      Kind = "ParseFailed"
	NotSerializable  Kind = "NotSerializable"
	NotImplemented   Kind = "NotImplemented"
	NotSupported     Kind = "NotSupported"
	NoMemory         Kind = "NoMemory"
	GeneralError     Kind = "GeneralError"

	// Ignored is a non-error advisory: duplicate-add, no-op clears,
	// already-frozen freezes, and same-value writes resolve here instead of
	// propagating as a failure.
	Ignored Kind = "Ignored"
)

// Error is the typed error value every exported operation returns on
// failure. It supports errors.Is against daqerr.Of(kind) (any *Error of the
// same Kind) and errors.As to recover the Kind and message together.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.Cause.Error())
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is(err, daqerr.Of(daqerr.Frozen)) match any *Error of the
// same Kind: the target is a bare Kind wrapped as an *Error with no message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Of is a convenience for errors.Is(err, daqerr.Of(daqerr.Frozen)).
func Of(kind Kind) *Error {
	return &Error{Kind: kind}
}

// KindOf extracts the Kind from err, defaulting to GeneralError for
// non-daqerr errors so RPC replies always carry a recognised kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return GeneralError
}

// IsIgnored reports whether err is the Ignored advisory, the recoverable
// no-op case the property system and value kernel use instead of failing.
func IsIgnored(err error) bool {
	return KindOf(err) == Ignored
}

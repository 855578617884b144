// Package result provides the success/failure value returned by service operations.
//
// A Result is either a success (payload plus SuccessKind) or a failure (message plus
// ErrorKind), never both. Expected outcomes such as "unknown user" or "bad signature" are
// failures; infrastructure faults travel separately as a Go error.
package result

// SuccessKind distinguishes successful outcomes.
type SuccessKind int

const (
	KindOK SuccessKind = iota + 1
	KindCreated
	KindNoContent
)

// ErrorKind distinguishes failed outcomes.
type ErrorKind int

const (
	// ErrInternal is first so that the zero Result reads as an internal failure.
	ErrInternal ErrorKind = iota
	ErrBadRequest
	ErrUnauthorized
	ErrForbidden
	ErrNotFound
	ErrConflict
)

func (k ErrorKind) String() string {
	switch k {
	case ErrBadRequest:
		return "bad_request"
	case ErrUnauthorized:
		return "unauthorized"
	case ErrForbidden:
		return "forbidden"
	case ErrNotFound:
		return "not_found"
	case ErrConflict:
		return "conflict"
	default:
		return "internal"
	}
}

func (k SuccessKind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindCreated:
		return "created"
	case KindNoContent:
		return "no_content"
	default:
		return "unknown"
	}
}

const internalMessage = "An unexpected error occurred. Please try again later"

// Result is a tagged union of a success payload and a failure message.
type Result[T any] struct {
	value   T
	success SuccessKind // zero for failures
	kind    ErrorKind
	message string
}

// OK wraps a payload with KindOK.
func OK[T any](v T) Result[T] { return Result[T]{value: v, success: KindOK} }

// Created wraps a payload with KindCreated.
func Created[T any](v T) Result[T] { return Result[T]{value: v, success: KindCreated} }

// NoContent is a payload-free success.
func NoContent[T any]() Result[T] { return Result[T]{success: KindNoContent} }

// Fail builds a failure. An empty message is replaced with a generic one.
func Fail[T any](kind ErrorKind, message string) Result[T] {
	if message == "" {
		message = internalMessage
	}
	return Result[T]{kind: kind, message: message}
}

// IsSuccess reports whether r carries a success.
func (r Result[T]) IsSuccess() bool { return r.success != 0 }

// Value returns the payload. ok is false for failures and for NoContent.
func (r Result[T]) Value() (v T, ok bool) {
	if r.success == 0 || r.success == KindNoContent {
		return v, false
	}
	return r.value, true
}

// SuccessKind returns the success kind, or zero for failures.
func (r Result[T]) SuccessKind() SuccessKind { return r.success }

// ErrorKind returns the failure kind. It is meaningless for successes.
func (r Result[T]) ErrorKind() ErrorKind { return r.kind }

// Message returns the failure message, empty for successes.
func (r Result[T]) Message() string {
	if r.IsSuccess() {
		return ""
	}
	if r.message == "" {
		return internalMessage
	}
	return r.message
}

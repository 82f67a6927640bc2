// Package outcome distinguishes a produced value, a legitimately empty
// result, and a fatal failure without inspecting error text.
package outcome

import "fmt"

// Kind enumerates the three result shapes.
type Kind int

const (
	KindOk Kind = iota
	KindEmpty
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindOk:
		return "ok"
	case KindEmpty:
		return "empty"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Result carries one of Ok(value), Empty(reason) or Fatal(err).
type Result[T any] struct {
	kind   Kind
	value  T
	reason string
	err    error
}

// Ok wraps a produced value.
func Ok[T any](value T) Result[T] {
	return Result[T]{kind: KindOk, value: value}
}

// Empty reports that nothing was produced, which callers treat as a skip.
func Empty[T any](reason string) Result[T] {
	return Result[T]{kind: KindEmpty, reason: reason}
}

// Emptyf is Empty with formatting.
func Emptyf[T any](format string, args ...any) Result[T] {
	return Empty[T](fmt.Sprintf(format, args...))
}

// Fatal wraps an error that must abort the caller.
func Fatal[T any](err error) Result[T] {
	if err == nil {
		err = fmt.Errorf("fatal outcome without error")
	}
	return Result[T]{kind: KindFatal, err: err}
}

func (r Result[T]) Kind() Kind     { return r.kind }
func (r Result[T]) IsOk() bool     { return r.kind == KindOk }
func (r Result[T]) IsEmpty() bool  { return r.kind == KindEmpty }
func (r Result[T]) IsFatal() bool  { return r.kind == KindFatal }
func (r Result[T]) Reason() string { return r.reason }
func (r Result[T]) Err() error     { return r.err }

// Value returns the wrapped value and whether the result is Ok.
func (r Result[T]) Value() (T, bool) {
	return r.value, r.kind == KindOk
}

// ValueOr returns the value when Ok, otherwise fallback.
func (r Result[T]) ValueOr(fallback T) T {
	if r.kind == KindOk {
		return r.value
	}
	return fallback
}

// Unwrap converts the result into Go's (value, error) convention; Empty maps
// to the zero value with a nil error.
func (r Result[T]) Unwrap() (T, error) {
	return r.value, r.err
}

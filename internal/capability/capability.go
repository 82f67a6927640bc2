// Package capability models an optional external collaborator (TTS backend,
// renderer, ffmpeg) as either a ready handle or an explicit unavailable value.
package capability

import "fmt"

// Capability holds a ready collaborator or the reason it is unavailable.
type Capability[T any] struct {
	value  T
	ready  bool
	reason string
}

// Ready wraps a usable collaborator.
func Ready[T any](value T) Capability[T] {
	return Capability[T]{value: value, ready: true}
}

// Unavailable records why a collaborator could not be constructed.
func Unavailable[T any](reason string) Capability[T] {
	return Capability[T]{reason: reason}
}

// Unavailablef is Unavailable with formatting.
func Unavailablef[T any](format string, args ...any) Capability[T] {
	return Unavailable[T](fmt.Sprintf(format, args...))
}

// FromResult turns a constructor's (value, error) pair into a Capability.
func FromResult[T any](value T, err error) Capability[T] {
	if err != nil {
		return Unavailable[T](err.Error())
	}
	return Ready(value)
}

// Get returns the collaborator and whether it is ready.
func (c Capability[T]) Get() (T, bool) {
	return c.value, c.ready
}

// IsReady reports whether the collaborator can be used.
func (c Capability[T]) IsReady() bool {
	return c.ready
}

// Reason explains an unavailable collaborator; empty when ready.
func (c Capability[T]) Reason() string {
	return c.reason
}

// Status renders a one-line availability label for summaries.
func (c Capability[T]) Status() string {
	if c.ready {
		return "available"
	}
	if c.reason == "" {
		return "unavailable"
	}
	return "unavailable: " + c.reason
}

// Map converts a ready collaborator with fn and carries an unavailable
// reason through unchanged.
func Map[T, U any](c Capability[T], fn func(T) U) Capability[U] {
	if !c.ready {
		return Unavailable[U](c.reason)
	}
	return Ready(fn(c.value))
}

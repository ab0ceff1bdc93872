package blob

import (
	"errors"
	"fmt"

	"podforge/internal/services"
)

// ErrObjectNotFound is returned by ObjectStore implementations when the
// bucket or key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ResolveErrorKind distinguishes absent assets from retryable failures.
type ResolveErrorKind string

const (
	KindNotFound  ResolveErrorKind = "not_found"
	KindTransient ResolveErrorKind = "transient"
)

// ResolveError describes why a reference could not be made readable.
type ResolveError struct {
	Kind     ResolveErrorKind
	Ref      Ref
	Attempts int
	Err      error
}

func (e *ResolveError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resolve %s (%s after %d attempt(s)): %v", e.Ref, e.Kind, e.Attempts, e.Err)
	}
	return fmt.Sprintf("resolve %s: %s", e.Ref, e.Kind)
}

// Unwrap exposes the services marker alongside the cause so callers can
// classify with services.Kind.
func (e *ResolveError) Unwrap() []error {
	marker := services.ErrTransientIO
	if e.Kind == KindNotFound {
		marker = services.ErrNotFound
	}
	if e.Err != nil {
		return []error{marker, e.Err}
	}
	return []error{marker}
}

// Result is the outcome of Resolve. Exactly one of Path or Err is set.
type Result struct {
	Path string
	Err  *ResolveError
}

// OK reports whether the reference resolved.
func (r Result) OK() bool {
	return r.Err == nil
}

// Error returns Err as an error interface, nil when resolution succeeded.
func (r Result) Error() error {
	if r.Err == nil {
		return nil
	}
	return r.Err
}

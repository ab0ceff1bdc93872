package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTransientIO         = errors.New("transient io error")
	ErrNotFound            = errors.New("not found")
	ErrMissingContent      = errors.New("missing content")
	ErrSynthesisTimeout    = errors.New("synthesis timeout")
	ErrTimeout             = errors.New("timeout")
	ErrUnresolvedDirective = errors.New("unresolved directive")
	ErrBudgetExceeded      = errors.New("budget exceeded")
	ErrCancelled           = errors.New("cancelled")
	ErrValidation          = errors.New("validation error")
	ErrConfiguration       = errors.New("configuration error")
	ErrExternalTool        = errors.New("external tool error")
)

// Stable error_kind values surfaced to the UI layer.
const (
	KindTransientIO         = "transient_io"
	KindNotFound            = "not_found"
	KindMissingContent      = "missing_content"
	KindSynthesisTimeout    = "synthesis_timeout"
	KindTimeout             = "timeout"
	KindUnresolvedDirective = "unresolved_directive"
	KindBudgetExceeded      = "budget_exceeded"
	KindCancelled           = "cancelled"
	KindInvalidInput        = "invalid_input"
	KindConfiguration       = "configuration"
	KindRenderFailed        = "render_failed"
	KindAbandoned           = "abandoned"
	KindInternal            = "internal"
)

var kindByMarker = []struct {
	marker error
	kind   string
}{
	{ErrCancelled, KindCancelled},
	{ErrBudgetExceeded, KindBudgetExceeded},
	{ErrMissingContent, KindMissingContent},
	{ErrSynthesisTimeout, KindSynthesisTimeout},
	{ErrNotFound, KindNotFound},
	{ErrTransientIO, KindTransientIO},
	{ErrTimeout, KindTimeout},
	{ErrUnresolvedDirective, KindUnresolvedDirective},
	{ErrValidation, KindInvalidInput},
	{ErrConfiguration, KindConfiguration},
	{ErrExternalTool, KindRenderFailed},
}

var retryableKinds = map[string]struct{}{
	KindTransientIO:      {},
	KindSynthesisTimeout: {},
	KindTimeout:          {},
	KindRenderFailed:     {},
}

// ErrorDetails is the structured view of an error built with Wrap.
type ErrorDetails struct {
	Kind      string
	Stage     string
	Operation string
	Message   string
	Cause     error
}

type wrappedError struct {
	marker    error
	stage     string
	operation string
	message   string
	cause     error
}

func (e *wrappedError) Error() string {
	detail := buildDetail(e.stage, e.operation, e.message)
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.marker, detail, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.marker, detail)
}

func (e *wrappedError) Unwrap() []error {
	if e.cause != nil {
		return []error{e.marker, e.cause}
	}
	return []error{e.marker}
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	if marker == nil {
		marker = ErrTransientIO
	}
	return &wrappedError{
		marker:    marker,
		stage:     strings.TrimSpace(stage),
		operation: strings.TrimSpace(operation),
		message:   strings.TrimSpace(message),
		cause:     err,
	}
}

// Details extracts the outermost Wrap context from err.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	details := ErrorDetails{Kind: Kind(err)}
	var wrapped *wrappedError
	if errors.As(err, &wrapped) {
		details.Stage = wrapped.stage
		details.Operation = wrapped.operation
		details.Message = wrapped.message
		details.Cause = wrapped.cause
	}
	return details
}

// Kind maps an error to its stable error_kind string.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, entry := range kindByMarker {
		if errors.Is(err, entry.marker) {
			return entry.kind
		}
	}
	return KindInternal
}

// Retryable reports whether the orchestrator may spend another attempt on err.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	_, ok := retryableKinds[Kind(err)]
	return ok
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage != "" {
		parts = append(parts, stage)
	}
	if operation != "" {
		parts = append(parts, operation)
	}
	if message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

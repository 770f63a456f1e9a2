package llm

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies why a generation produced no usable text.
type ErrorKind string

const (
	KindTimeout     ErrorKind = "timeout"     // Call exceeded its deadline
	KindUnavailable ErrorKind = "unavailable" // Service unreachable or client disabled
	KindStatus      ErrorKind = "status"      // Non-2xx response
	KindEmpty       ErrorKind = "empty"       // Response had no usable text
	KindDecode      ErrorKind = "decode"      // Response body was not the expected JSON
)

// GenerationError is the typed failure carried in a Result.
type GenerationError struct {
	Kind ErrorKind
	Err  error
}

func (e *GenerationError) Error() string {
	if e.Err == nil {
		return "generation " + string(e.Kind)
	}
	return fmt.Sprintf("generation %s: %v", e.Kind, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a generation failure, or "" for nil.
// Errors that are not GenerationErrors are classified by their cause.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnavailable
}

func classify(err error) *GenerationError {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge
	}
	return &GenerationError{Kind: KindOf(err), Err: err}
}

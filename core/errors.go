package core

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes failures crossing component boundaries.
type ErrorCode string

const (
	// ErrBackendExhausted means every candidate backend, primary and backup,
	// failed for one generation step.
	ErrBackendExhausted ErrorCode = "backend_exhausted"
	// ErrContentPolicy means a backend refused the request on policy grounds.
	ErrContentPolicy ErrorCode = "content_policy"
	// ErrClassification means the target/intent classification step failed.
	ErrClassification ErrorCode = "classification"
	// ErrRetrieval means retrieval or re-ranking failed; recovered locally.
	ErrRetrieval ErrorCode = "retrieval"
	// ErrTimeout means the aggregate turn deadline elapsed.
	ErrTimeout ErrorCode = "timeout"
	// ErrValidation means an inbound event payload was malformed.
	ErrValidation ErrorCode = "validation"
	// ErrBackend is any other backend invocation failure.
	ErrBackend ErrorCode = "backend_error"
	// ErrInternal is the fallback for unexpected failures.
	ErrInternal ErrorCode = "internal"
)

// ChatError provides categorized context for orchestration errors.
type ChatError struct {
	Code    ErrorCode
	Message string
	wrapped error
}

func (e *ChatError) Error() string {
	if e == nil {
		return ""
	}
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.wrapped)
	}
	return e.Message
}

func (e *ChatError) Unwrap() error { return e.wrapped }

// NewError builds a ChatError.
func NewError(code ErrorCode, message string) *ChatError {
	return &ChatError{Code: code, Message: message}
}

// WrapError attaches a code to an existing error. Errors that already carry a
// ChatError keep their original code.
func WrapError(err error, code ErrorCode) *ChatError {
	if err == nil {
		return nil
	}
	var ce *ChatError
	if errors.As(err, &ce) {
		return ce
	}
	return &ChatError{Code: code, Message: err.Error(), wrapped: err}
}

func classify(code ErrorCode) func(error) bool {
	return func(err error) bool {
		if err == nil {
			return false
		}
		var ce *ChatError
		if errors.As(err, &ce) {
			return ce.Code == code
		}
		return false
	}
}

// Predicates for common error handling paths.
var (
	IsBackendExhausted = classify(ErrBackendExhausted)
	IsContentPolicy    = classify(ErrContentPolicy)
	IsClassification   = classify(ErrClassification)
	IsTimeout          = classify(ErrTimeout)
	IsValidation       = classify(ErrValidation)
)

package backend

import (
	"errors"
	"fmt"
)

const (
	KindNotFound          = "NOT_FOUND"
	KindAlreadyClosed     = "ALREADY_CLOSED"
	KindNoHistory         = "NO_HISTORY"
	KindSelectorNotFound  = "SELECTOR_NOT_FOUND"
	KindNavigationFailed  = "NAVIGATION_FAILED"
	KindCaptureFailed     = "CAPTURE_FAILED"
	KindGenerationFailed  = "GENERATION_FAILED"
	KindResourceExhausted = "RESOURCE_EXHAUSTED"
	KindValidation        = "VALIDATION_ERROR"
	KindBackend           = "BACKEND_ERROR"
)

// CodedError is a typed error used for stable API mapping.
type CodedError struct {
	Kind    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

// NewError builds a CodedError with an optional cause.
func NewError(kind, msg string, cause error) error {
	return &CodedError{Kind: kind, Message: msg, Cause: cause}
}

// KindOf extracts the error kind, classifying anything unstructured as
// BACKEND_ERROR so no error crosses the tool boundary without a kind.
func KindOf(err error) string {
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Kind
	}
	return KindBackend
}

// MessageOf extracts the human-readable message from a coded error, falling
// back to the raw error text for unstructured failures.
func MessageOf(err error) string {
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Message
	}
	return err.Error()
}

// Classify wraps unstructured errors as BACKEND_ERROR while passing coded
// errors through untouched.
func Classify(err error, msg string) error {
	if err == nil {
		return nil
	}
	var coded *CodedError
	if errors.As(err, &coded) {
		return err
	}
	return NewError(KindBackend, msg, err)
}

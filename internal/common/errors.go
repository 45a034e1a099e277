package common

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	ErrValidation   = errors.New("validation failed")
	ErrExtraction   = errors.New("text extraction failed")
	ErrStructuring  = errors.New("structuring failed")
	ErrStorage      = errors.New("storage error")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Kind classifies a pipeline failure.
type Kind string

const (
	KindValidation  Kind = "VALIDATION"
	KindExtraction  Kind = "EXTRACTION"
	KindStructuring Kind = "STRUCTURING"
	KindStorage     Kind = "STORAGE"
)

func (k Kind) sentinel() error {
	switch k {
	case KindValidation:
		return ErrValidation
	case KindExtraction:
		return ErrExtraction
	case KindStructuring:
		return ErrStructuring
	case KindStorage:
		return ErrStorage
	}
	return ErrInternal
}

// PipelineError carries the caller-facing status/message pair of a failed
// batch task or finalize call. Message is what the HTTP layer returns.
type PipelineError struct {
	Kind    Kind
	Status  int
	Message string
	Cause   error
}

func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *PipelineError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind.sentinel()}
	}
	return []error{e.Kind.sentinel(), e.Cause}
}

func ValidationErr(message string) *PipelineError {
	return &PipelineError{Kind: KindValidation, Status: http.StatusBadRequest, Message: message}
}

func ExtractionErr(message string, cause error) *PipelineError {
	return &PipelineError{Kind: KindExtraction, Status: http.StatusBadRequest, Message: message, Cause: cause}
}

func StructuringErr(status int, message string, cause error) *PipelineError {
	return &PipelineError{Kind: KindStructuring, Status: status, Message: message, Cause: cause}
}

func StorageErr(message string, cause error) *PipelineError {
	return &PipelineError{Kind: KindStorage, Status: http.StatusInternalServerError, Message: message, Cause: cause}
}

// StatusOf returns the HTTP status for err, 500 when it carries none.
func StatusOf(err error) int {
	var pe *PipelineError
	if errors.As(err, &pe) && pe.Status != 0 {
		return pe.Status
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrInvalidInput) {
		return http.StatusBadRequest
	}
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// MessageOf returns the caller-facing message for err.
func MessageOf(err error) string {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Message
	}
	return err.Error()
}

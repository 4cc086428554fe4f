package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/draftworx/statement-translator/pkg/log"
)

type ErrorType int

const (
	ErrFileNotFound ErrorType = iota
	ErrFileRead
	ErrFileWrite
	ErrSchema
	ErrAPI
	ErrValidation
	ErrConfig
	ErrCheckpoint
	ErrTranslation
	ErrUnknown
)

// RunError classifies run-level failures so the CLI can print actionable
// advice instead of a bare error chain.
type RunError struct {
	Type    ErrorType
	Message string
	Context map[string]any
	Cause   error
}

func NewError(errorType ErrorType, message string) *RunError {
	return &RunError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
	}
}

func WrapError(err error, errorType ErrorType, message string) *RunError {
	return &RunError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
		Cause:   err,
	}
}

func (e *RunError) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s] %s", e.Type.String(), e.Message))

	if len(e.Context) > 0 {
		var ctxParts []string
		for k, v := range e.Context {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("context: %s", strings.Join(ctxParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

func (e *RunError) Unwrap() error {
	return e.Cause
}

func (e *RunError) WithContext(key string, value any) *RunError {
	e.Context[key] = value
	return e
}

func (t ErrorType) String() string {
	switch t {
	case ErrFileNotFound:
		return "FileNotFound"
	case ErrFileRead:
		return "FileRead"
	case ErrFileWrite:
		return "FileWrite"
	case ErrSchema:
		return "Schema"
	case ErrAPI:
		return "API"
	case ErrValidation:
		return "Validation"
	case ErrConfig:
		return "Config"
	case ErrCheckpoint:
		return "Checkpoint"
	case ErrTranslation:
		return "Translation"
	default:
		return "Unknown"
	}
}

// ErrorHandler logs a failure together with recovery advice. Handle reports
// whether the error carried a classification.
type ErrorHandler interface {
	Handle(err error) bool
	GetAdvice(err *RunError) string
}

type DefaultErrorHandler struct{}

func NewDefaultErrorHandler() ErrorHandler {
	return &DefaultErrorHandler{}
}

func (h *DefaultErrorHandler) Handle(err error) bool {
	var runErr *RunError
	if !errors.As(err, &runErr) {
		log.Error("Unknown Error: %v", err)
		return false
	}

	advice := h.GetAdvice(runErr)
	log.Error("Error Detail: %v\n advice: %s", err, advice)

	return true
}

// GetAdvice returns error handling advice
func (h *DefaultErrorHandler) GetAdvice(err *RunError) string {
	switch err.Type {
	case ErrFileNotFound:
		return "Please check that the input path is correct and ensure the file exists with read permissions"
	case ErrFileRead:
		return "Please check file permissions to ensure read access and verify the file is not corrupted"
	case ErrFileWrite:
		return "Please ensure the output and backup directories exist and have write permissions"
	case ErrSchema:
		return "Please verify the input table has the source-language value and formula columns for the configured source language"
	case ErrAPI:
		return "Please check if the API key is correct, network connectivity is normal, or review the API service status"
	case ErrValidation:
		return "Please verify input parameters are correct. File paths cannot be empty"
	case ErrConfig:
		return "Please check that configuration files or environment variables are set correctly"
	case ErrCheckpoint:
		return "The selected checkpoint cannot be resumed from. Pick an older checkpoint or restart from the source table"
	case ErrTranslation:
		return "An issue occurred during translation. Review the per-row failures in the output; failed rows keep their source text"
	default:
		return "Please review detailed error information and check relevant configuration and files"
	}
}

func IsErrorType(err error, errorType ErrorType) bool {
	var runErr *RunError
	if errors.As(err, &runErr) {
		return runErr.Type == errorType
	}
	return false
}

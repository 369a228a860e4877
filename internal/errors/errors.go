package errors

import (
	"errors"
	"fmt"
)

// Error codes for programmatic handling.
const (
	CodeStorageUnavailable       = "STORAGE_UNAVAILABLE"
	CodeEmbeddingUnavailable     = "EMBEDDING_UNAVAILABLE"
	CodeEmbeddingVersionMismatch = "EMBEDDING_VERSION_MISMATCH"
	CodeBackendUnavailable       = "BACKEND_UNAVAILABLE"
	CodeBudgetExceededByPreamble = "BUDGET_EXCEEDED_BY_PREAMBLE"
	CodeInputTooLarge            = "INPUT_TOO_LARGE"

	CodeConfigNotFound = "CONFIG_NOT_FOUND"
	CodeConfigInvalid  = "CONFIG_INVALID"
	CodeAPIKeyMissing  = "API_KEY_MISSING"
	CodePersonaInvalid = "PERSONA_INVALID"
)

// Sentinels for errors.Is checks. Matching is by code only.
var (
	ErrStorageUnavailable       = New(CodeStorageUnavailable, "durable storage unavailable")
	ErrEmbeddingUnavailable     = New(CodeEmbeddingUnavailable, "embedding function unavailable")
	ErrEmbeddingVersionMismatch = New(CodeEmbeddingVersionMismatch, "stored embeddings use a different version")
	ErrBackendUnavailable       = New(CodeBackendUnavailable, "no language-model backend produced a reply")
	ErrBudgetExceededByPreamble = New(CodeBudgetExceededByPreamble, "persona preamble exceeds the token budget")
	ErrInputTooLarge            = New(CodeInputTooLarge, "input does not fit in the token budget")
)

// HearthError is a structured error with a code and actionable suggestion.
type HearthError struct {
	Code       string // machine-readable code (e.g. STORAGE_UNAVAILABLE)
	Message    string // human-readable description
	Suggestion string // actionable fix
	Err        error  // wrapped underlying error
}

// Error implements the error interface.
func (e *HearthError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap supports errors.Is / errors.As.
func (e *HearthError) Unwrap() error {
	return e.Err
}

// New creates a HearthError with the given code and message.
func New(code, message string) *HearthError {
	return &HearthError{Code: code, Message: message}
}

// Wrap creates a HearthError wrapping an existing error.
func Wrap(code, message string, err error) *HearthError {
	return &HearthError{Code: code, Message: message, Err: err}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(code string, err error, format string, args ...interface{}) *HearthError {
	return &HearthError{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// WithSuggestion returns a copy with the suggestion set.
func (e *HearthError) WithSuggestion(suggestion string) *HearthError {
	cp := *e
	cp.Suggestion = suggestion
	return &cp
}

// Is checks whether target matches this error's code.
func (e *HearthError) Is(target error) bool {
	var he *HearthError
	if errors.As(target, &he) {
		return e.Code == he.Code
	}
	return false
}

// AsCode extracts the HearthError code from an error, or "" if not a HearthError.
func AsCode(err error) string {
	var he *HearthError
	if errors.As(err, &he) {
		return he.Code
	}
	return ""
}

// Suggestion extracts the suggestion from an error, or "" if not a HearthError.
func Suggestion(err error) string {
	var he *HearthError
	if errors.As(err, &he) {
		return he.Suggestion
	}
	return ""
}

// IsDegradable reports whether err describes a memory tier failure that a turn
// should survive.
func IsDegradable(err error) bool {
	switch AsCode(err) {
	case CodeStorageUnavailable, CodeEmbeddingUnavailable, CodeEmbeddingVersionMismatch:
		return true
	}
	return false
}

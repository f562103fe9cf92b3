package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors matched with errors.Is.
var (
	ErrNotFound      = errors.New("not found")
	ErrAmbiguousName = errors.New("ambiguous name")
	ErrValidation    = errors.New("validation failed")
)

// Error codes used in API error envelopes.
const (
	CodeInvalidInput  = "INVALID_INPUT"
	CodeNotFound      = "NOT_FOUND"
	CodeAmbiguousName = "AMBIGUOUS_NAME"
	CodeValidation    = "VALIDATION_ERROR"
	CodeRateLimit     = "RATE_LIMIT_EXCEEDED"
	CodeTimeout       = "REQUEST_TIMEOUT"
	CodeUnavailable   = "SERVICE_UNAVAILABLE"
	CodeInternal      = "INTERNAL_SERVER_ERROR"
)

// APIError is the error envelope returned by the HTTP and MCP surfaces.
type APIError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   any       `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewAPIError creates a new APIError with timestamp
func NewAPIError(code, message string, details any, requestID string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// NotFoundError reports a drug name or alias that resolves to no drug.
type NotFoundError struct {
	Name        string   `json:"name"`
	Suggestions []string `json:"suggestions,omitempty"`
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("drug not found: %s", e.Name)
	if len(e.Suggestions) > 0 {
		msg += fmt.Sprintf(" (did you mean: %s?)", strings.Join(e.Suggestions, ", "))
	}
	return msg
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// AmbiguousNameError reports a name that maps to more than one drug. It is a
// data-quality condition and is never resolved heuristically.
type AmbiguousNameError struct {
	Name       string   `json:"name"`
	Candidates []string `json:"candidates"`
}

func (e *AmbiguousNameError) Error() string {
	return fmt.Sprintf("ambiguous drug name %q matches %s", e.Name, strings.Join(e.Candidates, ", "))
}

func (e *AmbiguousNameError) Is(target error) bool {
	return target == ErrAmbiguousName
}

// ValidationError represents a structural invariant violation in a rule, a
// knowledge base row or a request.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value any) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// ValidationErrors collects every violation found during a load so they can
// be reported together.
type ValidationErrors []*ValidationError

// Add appends a violation.
func (v *ValidationErrors) Add(field, message string, value any) {
	*v = append(*v, NewValidationError(field, message, value))
}

// Append merges another error into the list, flattening nested lists.
func (v *ValidationErrors) Append(err error) {
	if err == nil {
		return
	}
	var list ValidationErrors
	if errors.As(err, &list) {
		*v = append(*v, list...)
		return
	}
	var single *ValidationError
	if errors.As(err, &single) {
		*v = append(*v, single)
		return
	}
	*v = append(*v, NewValidationError("", err.Error(), nil))
}

// Prefix qualifies every field in the list with prefix.
func (v ValidationErrors) Prefix(prefix string) ValidationErrors {
	out := make(ValidationErrors, len(v))
	for i, e := range v {
		field := prefix
		if e.Field != "" {
			field = prefix + "." + e.Field
		}
		out[i] = &ValidationError{Field: field, Message: e.Message, Value: e.Value}
	}
	return out
}

// Err returns nil when no violation was recorded.
func (v ValidationErrors) Err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

func (v ValidationErrors) Error() string {
	switch len(v) {
	case 0:
		return "no validation errors"
	case 1:
		return v[0].Error()
	}
	lines := make([]string, len(v))
	for i, e := range v {
		lines[i] = e.Error()
	}
	return fmt.Sprintf("%d validation errors:\n  %s", len(v), strings.Join(lines, "\n  "))
}

func (v ValidationErrors) Is(target error) bool {
	return target == ErrValidation
}

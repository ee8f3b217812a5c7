package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrNotFound indicates that a requested entity was not found.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates that an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates that the input data is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrMissingInput indicates that a required request field is absent.
	ErrMissingInput = errors.New("missing input")

	// ErrRateLimited indicates that the request was rate limited.
	ErrRateLimited = errors.New("rate limited")

	// ErrSourceUnavailable indicates that an academic search provider failed
	// or exhausted its retries.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrProviderResponseInvalid indicates that the text-generation provider
	// returned text that could not be parsed where strict JSON was required.
	ErrProviderResponseInvalid = errors.New("provider response invalid")

	// ErrStreamTransport indicates that the incremental channel to the caller broke.
	ErrStreamTransport = errors.New("stream transport error")
)

// ValidationError represents a validation error for a specific field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Unwrap returns ErrInvalidInput for use with errors.Is.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// MissingInputError reports an absent required field.
type MissingInputError struct {
	Field string
}

// Error implements the error interface.
func (e *MissingInputError) Error() string {
	return fmt.Sprintf("missing required field: %s", e.Field)
}

// Unwrap returns ErrMissingInput for use with errors.Is.
func (e *MissingInputError) Unwrap() error {
	return ErrMissingInput
}

// NotFoundError provides details about a not found entity.
type NotFoundError struct {
	Entity string
	ID     string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// AlreadyExistsError provides details about a duplicate entity.
type AlreadyExistsError struct {
	Entity string
	ID     string
}

// Error implements the error interface.
func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Entity, e.ID)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *AlreadyExistsError) Unwrap() error {
	return ErrAlreadyExists
}

// ExternalAPIError provides details about an external API error.
type ExternalAPIError struct {
	Source     string
	StatusCode int
	Message    string
	Cause      error
}

// Error implements the error interface.
func (e *ExternalAPIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Source, e.StatusCode, e.Message)
}

// Unwrap returns the underlying cause error.
func (e *ExternalAPIError) Unwrap() error {
	return e.Cause
}

// SourceUnavailableError reports that one academic provider could not serve a search.
// It matches both ErrSourceUnavailable and its cause under errors.Is.
type SourceUnavailableError struct {
	Source string
	Cause  error
}

// Error implements the error interface.
func (e *SourceUnavailableError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: source unavailable", e.Source)
	}
	return fmt.Sprintf("%s: source unavailable: %v", e.Source, e.Cause)
}

// Unwrap exposes the sentinel and the cause.
func (e *SourceUnavailableError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrSourceUnavailable}
	}
	return []error{ErrSourceUnavailable, e.Cause}
}

// ProviderResponseError reports unparsable text from the text-generation provider.
type ProviderResponseError struct {
	// Operation names the call that expected structured output (e.g. "evaluate").
	Operation string
	// Raw is the offending response text, truncated for logging.
	Raw   string
	Cause error
}

// Error implements the error interface.
func (e *ProviderResponseError) Error() string {
	return fmt.Sprintf("%s: invalid provider response: %v", e.Operation, e.Cause)
}

// Unwrap exposes the sentinel and the cause.
func (e *ProviderResponseError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrProviderResponseInvalid}
	}
	return []error{ErrProviderResponseInvalid, e.Cause}
}

// StageError wraps a failure with the pipeline stage in which it happened.
type StageError struct {
	Stage Stage
	Err   error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *StageError) Unwrap() error {
	return e.Err
}

// StreamTransportError reports that events can no longer be delivered to the caller.
type StreamTransportError struct {
	Cause error
}

// Error implements the error interface.
func (e *StreamTransportError) Error() string {
	return fmt.Sprintf("stream transport error: %v", e.Cause)
}

// Unwrap exposes the sentinel and the cause.
func (e *StreamTransportError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrStreamTransport}
	}
	return []error{ErrStreamTransport, e.Cause}
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{
		Entity: entity,
		ID:     id,
	}
}

// NewAlreadyExistsError creates a new AlreadyExistsError.
func NewAlreadyExistsError(entity, id string) *AlreadyExistsError {
	return &AlreadyExistsError{
		Entity: entity,
		ID:     id,
	}
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewMissingInputError creates a new MissingInputError.
func NewMissingInputError(field string) *MissingInputError {
	return &MissingInputError{Field: field}
}

// NewExternalAPIError creates a new ExternalAPIError.
func NewExternalAPIError(source string, statusCode int, message string, cause error) *ExternalAPIError {
	return &ExternalAPIError{
		Source:     source,
		StatusCode: statusCode,
		Message:    message,
		Cause:      cause,
	}
}

// NewSourceUnavailableError creates a new SourceUnavailableError.
func NewSourceUnavailableError(source string, cause error) *SourceUnavailableError {
	return &SourceUnavailableError{
		Source: source,
		Cause:  cause,
	}
}

// NewProviderResponseError creates a new ProviderResponseError. Raw is
// truncated to keep log lines bounded.
func NewProviderResponseError(operation, raw string, cause error) *ProviderResponseError {
	const maxRaw = 512
	if len(raw) > maxRaw {
		raw = raw[:maxRaw]
	}
	return &ProviderResponseError{
		Operation: operation,
		Raw:       raw,
		Cause:     cause,
	}
}

// NewStageError creates a new StageError.
func NewStageError(stage Stage, err error) *StageError {
	return &StageError{
		Stage: stage,
		Err:   err,
	}
}

// NewStreamTransportError creates a new StreamTransportError.
func NewStreamTransportError(cause error) *StreamTransportError {
	return &StreamTransportError{Cause: cause}
}

package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ValidationError reports malformed client input. Violations enumerate each
// offending field with an actionable message.
type ValidationError struct {
	Violations map[string]string
}

func NewValidation() *ValidationError {
	return &ValidationError{Violations: map[string]string{}}
}

// Add records a field-level violation and returns the error for chaining.
func (e *ValidationError) Add(field, message string) *ValidationError {
	e.Violations[field] = message
	return e
}

func (e *ValidationError) Empty() bool {
	return len(e.Violations) == 0
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Violations))
	for f := range e.Violations {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f, e.Violations[f]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// ExternalAPIError means an upstream dependency was unavailable or returned
// a malformed payload. Message is a safe summary; raw upstream bodies are
// never carried here.
type ExternalAPIError struct {
	Source  string
	Message string
	Err     error
}

func (e *ExternalAPIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream %s: %s: %v", e.Source, e.Message, e.Err)
	}
	return fmt.Sprintf("upstream %s: %s", e.Source, e.Message)
}

func (e *ExternalAPIError) Unwrap() error {
	return e.Err
}

func External(source, message string, err error) *ExternalAPIError {
	return &ExternalAPIError{Source: source, Message: message, Err: err}
}

// FatalAggregationError means the load-bearing P2P source (or its analysis)
// failed and no rate can be produced at all.
type FatalAggregationError struct {
	Err error
}

func (e *FatalAggregationError) Error() string {
	return fmt.Sprintf("market data aggregation failed: %v", e.Err)
}

func (e *FatalAggregationError) Unwrap() error {
	return e.Err
}

func Fatal(err error) *FatalAggregationError {
	return &FatalAggregationError{Err: err}
}

// AsValidation unwraps err into a ValidationError if it is one.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	ok := errors.As(err, &ve)
	return ve, ok
}

// AsExternal unwraps err into an ExternalAPIError if it is one.
func AsExternal(err error) (*ExternalAPIError, bool) {
	var ee *ExternalAPIError
	ok := errors.As(err, &ee)
	return ee, ok
}

// AsFatal unwraps err into a FatalAggregationError if it is one.
func AsFatal(err error) (*FatalAggregationError, bool) {
	var fe *FatalAggregationError
	ok := errors.As(err, &fe)
	return fe, ok
}

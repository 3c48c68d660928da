// Package apperr classifies errors that reach a caller: what to show the
// user, what to log, whether retrying can help and which HTTP status fits.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies a class of caller-visible failure.
type Kind string

// Known kinds.
const (
	KindValidation   Kind = "validation"
	KindResourceLoad Kind = "resource_load"
	KindNoResources  Kind = "no_resources"
	KindNotFound     Kind = "not_found"
	KindInternal     Kind = "internal"
)

// Error is a classified failure.
type Error struct {
	Kind         Kind
	UserMessage  string
	Technical    string
	RetryAllowed bool
	HTTPStatus   int
	Err          error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Technical, e.Err)
	}
	return e.Technical
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind, so callers can compare
// against the Err* sentinels below.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrValidation   = &Error{Kind: KindValidation}
	ErrResourceLoad = &Error{Kind: KindResourceLoad}
	ErrNoResources  = &Error{Kind: KindNoResources}
	ErrNotFound     = &Error{Kind: KindNotFound}
)

// Validation reports bad caller input.
func Validation(field, issue string) *Error {
	return &Error{
		Kind:         KindValidation,
		UserMessage:  fmt.Sprintf("Please check your %s: %s", field, issue),
		Technical:    fmt.Sprintf("validation error: %s - %s", field, issue),
		RetryAllowed: true,
		HTTPStatus:   http.StatusBadRequest,
	}
}

// ResourceLoad reports that the catalog could not be read.
func ResourceLoad(domain string, err error) *Error {
	return &Error{
		Kind: KindResourceLoad,
		UserMessage: "We're having trouble loading our resource directory. " +
			"Please try again in a few minutes.",
		Technical:    fmt.Sprintf("resource load failed for domain=%s", domain),
		RetryAllowed: true,
		HTTPStatus:   http.StatusServiceUnavailable,
		Err:          err,
	}
}

// NoResources reports that nothing usable exists for a domain. Retrying the
// same request will not change the outcome.
func NoResources(domain string) *Error {
	return &Error{
		Kind:         KindNoResources,
		UserMessage:  fmt.Sprintf("We don't have resources for '%s' yet. Please check back soon!", domain),
		Technical:    fmt.Sprintf("no resources found for domain=%s", domain),
		RetryAllowed: false,
		HTTPStatus:   http.StatusNotFound,
	}
}

// NotFound reports a lookup of a single resource that does not exist.
func NotFound(id string) *Error {
	return &Error{
		Kind:         KindNotFound,
		UserMessage:  fmt.Sprintf("We couldn't find the resource '%s'.", id),
		Technical:    fmt.Sprintf("resource not found: id=%s", id),
		RetryAllowed: false,
		HTTPStatus:   http.StatusNotFound,
	}
}

// From returns the classified error inside err, or an internal error
// wrapping it when err carries no classification.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return &Error{
		Kind:         KindInternal,
		UserMessage:  "We encountered an error processing your request. Please try again.",
		Technical:    "internal error",
		RetryAllowed: true,
		HTTPStatus:   http.StatusInternalServerError,
		Err:          err,
	}
}

package models

import (
	"errors"
	"fmt"
)

// Error codes used in API responses and internal error handling.
const (
	ErrCodeTimeout      = "SCRAPE_TIMEOUT"
	ErrCodeTransport    = "TRANSPORT_FAILED"
	ErrCodeDataShape    = "DATA_SHAPE"
	ErrCodeSeed         = "SEED_FAILED"
	ErrCodeSession      = "SESSION_FAILED"
	ErrCodeBrowserCrash = "BROWSER_CRASH"
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeInternal     = "INTERNAL_ERROR"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	URL     string `json:"url,omitempty"`
}

// ScrapeError is the internal error type carrying an error code.
// URL is the page or API endpoint the error originated from, when known.
type ScrapeError struct {
	Code    string
	Message string
	URL     string
	Err     error // wrapped original error
}

func (e *ScrapeError) Error() string {
	msg := e.Code + ": " + e.Message
	if e.URL != "" {
		msg += " (" + e.URL + ")"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// NewScrapeError creates a new ScrapeError.
func NewScrapeError(code, message string, err error) *ScrapeError {
	return &ScrapeError{Code: code, Message: message, Err: err}
}

// NewDataShapeError reports that a response did not have the expected
// structure: a hidden-data node, key path or results array was missing.
// These are never retried.
func NewDataShapeError(url, message string, err error) *ScrapeError {
	return &ScrapeError{Code: ErrCodeDataShape, Message: message, URL: url, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *ScrapeError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message, URL: e.URL}
}

// CodeOf returns the code of the first ScrapeError in err's chain,
// or ErrCodeInternal if there is none.
func CodeOf(err error) string {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Code
	}
	return ErrCodeInternal
}

// IsDataShape reports whether err is a DATA_SHAPE error.
func IsDataShape(err error) bool {
	return CodeOf(err) == ErrCodeDataShape
}

// AsScrapeError returns err as a *ScrapeError, wrapping it as an internal
// error when it is not one already.
func AsScrapeError(err error) *ScrapeError {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se
	}
	return NewScrapeError(ErrCodeInternal, err.Error(), err)
}

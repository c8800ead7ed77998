package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrMissingCredentials is returned when the access id or key is empty.
	ErrMissingCredentials = errors.New("access id and access key are required")

	// ErrTrailingSlash is returned when an endpoint ends with "/".
	ErrTrailingSlash = errors.New("endpoint must not end with a trailing slash")

	// ErrNoJobID is returned when a job submission response carries no id.
	ErrNoJobID = errors.New("export job submission returned no job id")

	// ErrPollExhausted marks a job that did not reach Success within its poll
	// budget. PollExport and RunExport never return it; the batch runner
	// attaches it to the failed entry.
	ErrPollExhausted = errors.New("poll attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled while waiting.
	ErrContextCancelled = errors.New("context cancelled")
)

// APIError is a failed Sumo Logic API call. Message holds the response body
// for HTTP failures.
type APIError struct {
	StatusCode int
	Class      ErrorClass
	Method     string
	Path       string
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sumo %s error (status %d) %s %s: %s: %v",
			e.Class, e.StatusCode, e.Method, e.Path, e.Message, e.Err)
	}
	return fmt.Sprintf("sumo %s error (status %d) %s %s: %s",
		e.Class, e.StatusCode, e.Method, e.Path, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

// Reason returns the most useful one-line diagnostic for err: the response
// body for HTTP failures, the error text otherwise.
func Reason(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode > 0 && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}

// classifyStatus maps an HTTP status code to an error class. Codes below 400
// have no class.
func classifyStatus(code int) ErrorClass {
	switch {
	case code >= 400 && code < 500:
		return ErrorClassClient
	case code >= 500 && code < 600:
		return ErrorClassServer
	default:
		return ""
	}
}

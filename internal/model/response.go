package model

import "fmt"

// StatusConnectionError marks a Response for which no HTTP response was ever obtained.
const StatusConnectionError = -1

// Response is the outcome of posting one batch.
type Response struct {
	// Status is the HTTP status code, or StatusConnectionError.
	Status int

	// Error is the failure description; empty when none was reported.
	Error string
}

// NewResponse creates a Response from a status and an optional error text.
func NewResponse(status int, errText string) Response {
	return Response{Status: status, Error: errText}
}

// ConnectionError creates the sentinel Response returned once retries are exhausted.
func ConnectionError(err error) Response {
	return Response{
		Status: StatusConnectionError,
		Error:  fmt.Sprintf("Connection error: %v", err),
	}
}

// OK reports whether the remote accepted the batch without reporting an error.
func (r Response) OK() bool {
	return r.Status >= 200 && r.Status < 300 && r.Error == ""
}

// HasError reports whether an error was produced locally or reported by the remote.
func (r Response) HasError() bool {
	return r.Error != ""
}

func (r Response) String() string {
	if r.Error == "" {
		return fmt.Sprintf("status=%d", r.Status)
	}
	return fmt.Sprintf("status=%d error=%q", r.Status, r.Error)
}

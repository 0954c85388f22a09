package http

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrHeaderTooLarge is wrapped when the request line and headers exceed the limit
	ErrHeaderTooLarge = errors.New("request header too large")
	// ErrBodyTooLarge is wrapped when the body exceeds the limit
	ErrBodyTooLarge = errors.New("request body too large")
)

// MalformedRequestError reports wire input that cannot be parsed into a
// Request. Status is the client-error status the server answers with.
type MalformedRequestError struct {
	Status int
	Reason string
	Err    error
}

func (e *MalformedRequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed request: %s: %v", e.Reason, e.Err)
	}
	return "malformed request: " + e.Reason
}

func (e *MalformedRequestError) Unwrap() error {
	return e.Err
}

// Response returns the response sent to the client for this error
func (e *MalformedRequestError) Response() *Response {
	status := e.Status
	if status == 0 {
		status = StatusBadRequest
	}
	return Error(status)
}

func malformed(reason string) error {
	return &MalformedRequestError{Status: StatusBadRequest, Reason: reason}
}

func malformedf(status int, reason string, err error) error {
	return &MalformedRequestError{Status: status, Reason: reason, Err: err}
}

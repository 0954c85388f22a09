package http

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"golang.org/x/net/http/httpguts"
	"google.golang.org/protobuf/proto"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Response is produced by a Handler and serialized by the worker that
// invoked it. It must not be modified after being returned.
type Response struct {
	Status  int
	Headers map[string]string
	Body    []byte
}

// NewResponse creates a response with the given status, headers and body
func NewResponse(status int, headers map[string]string, body []byte) *Response {
	return &Response{
		Status:  status,
		Headers: headers,
		Body:    body,
	}
}

// Empty creates a response without a body
func Empty(status int) *Response {
	return &Response{Status: status}
}

// Text creates a text/plain response
func Text(status int, s string) *Response {
	return Data(status, "text/plain; charset=utf-8", []byte(s))
}

// Bytes creates an application/octet-stream response
func Bytes(status int, data []byte) *Response {
	return Data(status, "application/octet-stream", data)
}

// Data creates a response with an explicit content type
func Data(status int, contentType string, data []byte) *Response {
	return &Response{
		Status:  status,
		Headers: map[string]string{"Content-Type": contentType},
		Body:    data,
	}
}

// JSON creates an application/json response. Encoding failures yield a 500.
func JSON(status int, v any) *Response {
	data, err := json.Marshal(v)
	if err != nil {
		return Text(StatusInternalServerError, "JSON marshal error")
	}
	return Data(status, "application/json", data)
}

// Proto creates an application/x-protobuf response from a protobuf message
func Proto(status int, msg proto.Message) *Response {
	data, err := proto.Marshal(msg)
	if err != nil {
		return Text(StatusInternalServerError, "protobuf marshal error")
	}
	return Data(status, "application/x-protobuf", data)
}

// Error creates a plain-text error response carrying the status reason phrase
func Error(status int) *Response {
	return Text(status, fmt.Sprintf("%d %s", status, StatusText(status)))
}

// Header gets a response header, case-insensitively
func (r *Response) Header(key string) string {
	if r.Headers == nil {
		return ""
	}
	if v, ok := r.Headers[key]; ok {
		return v
	}
	canonical := CanonicalHeaderKey(key)
	for k, v := range r.Headers {
		if CanonicalHeaderKey(k) == canonical {
			return v
		}
	}
	return ""
}

// DecodeJSON decodes a JSON request body into v
func (r *Request) DecodeJSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// DecodeProto decodes a protobuf request body into msg
func (r *Request) DecodeProto(msg proto.Message) error {
	return proto.Unmarshal(r.Body, msg)
}

// Validate checks that r can be put on the wire as-is
func (r *Response) Validate() error {
	if !ValidStatus(r.Status) {
		return errors.Errorf("status %d out of range 100-599", r.Status)
	}
	// Interim responses cannot end an exchange
	if r.Status < 200 {
		return errors.Errorf("status %d is informational, not a final response", r.Status)
	}
	for k, v := range r.Headers {
		if !httpguts.ValidHeaderFieldName(k) {
			return errors.Errorf("invalid response header name %q", k)
		}
		if !httpguts.ValidHeaderFieldValue(v) {
			return errors.Errorf("invalid value for response header %q", k)
		}
	}
	return nil
}

package http

import (
	"strings"

	"golang.org/x/net/http/httpguts"
)

// Request is a parsed HTTP request. It is built by ReadRequest and must not
// be modified once handed to a Handler.
type Request struct {
	Method   Method
	Path     string
	RawQuery string
	Proto    string

	// Headers are keyed by canonical name, repeated fields joined with ", "
	Headers map[string]string

	// Query parameters
	Query map[string]string

	// Path parameters, filled by the router for pattern routes
	Params map[string]string

	// Request body
	Body []byte

	ContentLength int64
	Chunked       bool
}

// Header gets a request header, case-insensitively
func (r *Request) Header(key string) string {
	if r.Headers == nil {
		return ""
	}
	return r.Headers[CanonicalHeaderKey(key)]
}

// Param gets a path parameter
func (r *Request) Param(key string) string {
	if r.Params == nil {
		return ""
	}
	return r.Params[key]
}

// QueryValue gets a query parameter
func (r *Request) QueryValue(key string) string {
	if r.Query == nil {
		return ""
	}
	return r.Query[key]
}

// ProtoAtLeast reports whether the request protocol is at least HTTP/major.minor
func (r *Request) ProtoAtLeast(major, minor int) bool {
	maj, min, ok := parseProto(r.Proto)
	if !ok {
		return false
	}
	return maj > major || (maj == major && min >= minor)
}

// WantsClose reports whether the client asked for the connection to be closed
// after this request
func (r *Request) WantsClose() bool {
	conn := r.Header("Connection")
	if r.ProtoAtLeast(1, 1) {
		return httpguts.HeaderValuesContainsToken([]string{conn}, "close")
	}
	// HTTP/1.0 closes unless keep-alive is requested explicitly
	return !httpguts.HeaderValuesContainsToken([]string{conn}, "keep-alive")
}

// WithParams returns a shallow copy of r carrying params
func (r *Request) WithParams(params map[string]string) *Request {
	if len(params) == 0 {
		return r
	}
	cp := *r
	cp.Params = params
	return &cp
}

// CanonicalHeaderKey returns the canonical form of a header name:
// the first letter and each letter after a hyphen upper-cased.
func CanonicalHeaderKey(key string) string {
	upper := true
	needsChange := false
	for i := 0; i < len(key); i++ {
		c := key[i]
		if (upper && 'a' <= c && c <= 'z') || (!upper && 'A' <= c && c <= 'Z') {
			needsChange = true
			break
		}
		upper = c == '-'
	}
	if !needsChange {
		return key
	}

	b := []byte(key)
	upper = true
	for i, c := range b {
		if upper && 'a' <= c && c <= 'z' {
			b[i] = c - ('a' - 'A')
		} else if !upper && 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
		upper = c == '-'
	}
	return string(b)
}

func parseProto(proto string) (major, minor int, ok bool) {
	rest, found := strings.CutPrefix(proto, "HTTP/")
	if !found || len(rest) != 3 || rest[1] != '.' {
		return 0, 0, false
	}
	if rest[0] < '0' || rest[0] > '9' || rest[2] < '0' || rest[2] > '9' {
		return 0, 0, false
	}
	return int(rest[0] - '0'), int(rest[2] - '0'), true
}

package http

import "golang.org/x/net/http/httpguts"

// Method is an HTTP request method
type Method string

// Standard methods. Any other RFC 7230 token is accepted as an extension method.
const (
	MethodGet     Method = "GET"
	MethodHead    Method = "HEAD"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodPatch   Method = "PATCH"
	MethodDelete  Method = "DELETE"
	MethodOptions Method = "OPTIONS"
	MethodConnect Method = "CONNECT"
	MethodTrace   Method = "TRACE"
)

// Methods lists the standard methods in the order they are reported in Allow headers
var Methods = []Method{
	MethodGet,
	MethodHead,
	MethodPost,
	MethodPut,
	MethodPatch,
	MethodDelete,
	MethodOptions,
	MethodConnect,
	MethodTrace,
}

// ValidMethod reports whether m is a syntactically valid method token
func ValidMethod(m string) bool {
	// Method tokens share the header field name grammar
	return len(m) > 0 && httpguts.ValidHeaderFieldName(m)
}

func (m Method) String() string {
	return string(m)
}

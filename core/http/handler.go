package http

// Handler produces a Response for a Request. It runs synchronously inside
// exactly one worker and must not retain the request after returning.
type Handler interface {
	Handle(req *Request) *Response
}

// HandlerFunc adapts an ordinary function to a Handler
type HandlerFunc func(req *Request) *Response

// Handle calls f(req)
func (f HandlerFunc) Handle(req *Request) *Response {
	return f(req)
}

package http

import (
	"bufio"
	"bytes"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/indigo-web/chunkedbody"
	"github.com/pkg/errors"
	"golang.org/x/net/http/httpguts"
)

// Limits bounds what ReadRequest accepts from a client
type Limits struct {
	MaxHeaderBytes int
	MaxBodyBytes   int64
}

// DefaultLimits are used for zero fields of Limits
var DefaultLimits = Limits{
	MaxHeaderBytes: 1 << 20,
	MaxBodyBytes:   10 << 20,
}

// ReadRequest reads one HTTP/1.x request from br.
//
// io.EOF is returned untouched when the peer closed the connection before
// sending anything. Unparseable input yields a *MalformedRequestError. Any
// other error comes from the underlying reader (timeouts, resets).
func ReadRequest(br *bufio.Reader, limits Limits) (*Request, error) {
	if limits.MaxHeaderBytes <= 0 {
		limits.MaxHeaderBytes = DefaultLimits.MaxHeaderBytes
	}
	if limits.MaxBodyBytes <= 0 {
		limits.MaxBodyBytes = DefaultLimits.MaxBodyBytes
	}

	lr := &lineReader{br: br, budget: limits.MaxHeaderBytes}

	// Skip empty lines preceding the request line
	var line []byte
	var err error
	for first := true; ; first = false {
		line, err = lr.readLine()
		if err != nil {
			if first && err == io.EOF {
				return nil, io.EOF
			}
			return nil, lineError(err)
		}
		if len(line) > 0 {
			break
		}
	}

	req := &Request{}
	if err := parseRequestLine(req, line); err != nil {
		return nil, err
	}

	if err := readHeaders(req, lr); err != nil {
		return nil, err
	}

	// An empty Host value is allowed; only its absence is an error
	if _, ok := req.Headers["Host"]; !ok && req.ProtoAtLeast(1, 1) {
		return nil, malformed("missing Host header")
	}

	if err := readBody(req, br, limits.MaxBodyBytes); err != nil {
		return nil, err
	}

	return req, nil
}

// parseRequestLine parses METHOD SP TARGET SP PROTO
func parseRequestLine(req *Request, line []byte) error {
	sp1 := bytes.IndexByte(line, ' ')
	if sp1 == -1 {
		return malformed("invalid request line")
	}

	sp2 := bytes.IndexByte(line[sp1+1:], ' ')
	if sp2 == -1 {
		return malformed("invalid request line")
	}
	sp2 += sp1 + 1

	method := string(line[:sp1])
	target := string(line[sp1+1 : sp2])
	proto := string(line[sp2+1:])

	if !ValidMethod(method) {
		return malformed("invalid method")
	}
	req.Method = Method(method)

	major, _, ok := parseProto(proto)
	if !ok {
		return malformed("invalid protocol version")
	}
	if major != 1 {
		return malformed("unsupported protocol version " + proto)
	}
	req.Proto = proto

	return parseTarget(req, target)
}

// parseTarget accepts origin-form, absolute-form and the asterisk form
func parseTarget(req *Request, target string) error {
	switch {
	case target == "*":
		req.Path = target
		return nil
	case strings.HasPrefix(target, "/"):
	case strings.Contains(target, "://"):
		u, err := url.ParseRequestURI(target)
		if err != nil {
			return malformedf(StatusBadRequest, "invalid request target", err)
		}
		target = u.RequestURI()
	default:
		return malformed("invalid request target")
	}

	rawPath, rawQuery, _ := strings.Cut(target, "?")
	path, err := url.PathUnescape(rawPath)
	if err != nil {
		return malformedf(StatusBadRequest, "invalid path escape", err)
	}
	req.Path = path
	req.RawQuery = rawQuery

	if rawQuery != "" {
		req.Query = parseQuery(rawQuery)
	}
	return nil
}

// parseQuery parses query parameters, keeping the first value of repeated keys
func parseQuery(raw string) map[string]string {
	query := make(map[string]string)
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(k)
		if err != nil {
			continue
		}
		value, err := url.QueryUnescape(v)
		if err != nil {
			continue
		}
		if _, exists := query[key]; !exists {
			query[key] = value
		}
	}
	return query
}

func readHeaders(req *Request, lr *lineReader) error {
	for {
		line, err := lr.readLine()
		if err != nil {
			return lineError(err)
		}
		if len(line) == 0 {
			return nil
		}

		// Obsolete line folding is rejected
		if line[0] == ' ' || line[0] == '\t' {
			return malformed("obsolete header line folding")
		}

		colon := bytes.IndexByte(line, ':')
		if colon <= 0 {
			return malformed("invalid header line")
		}

		name := string(line[:colon])
		if !httpguts.ValidHeaderFieldName(name) {
			return malformed("invalid header name " + strconv.Quote(name))
		}

		value := string(bytes.Trim(line[colon+1:], " \t"))
		if !httpguts.ValidHeaderFieldValue(value) {
			return malformed("invalid value for header " + name)
		}

		if req.Headers == nil {
			req.Headers = make(map[string]string)
		}
		key := CanonicalHeaderKey(name)
		if prev, ok := req.Headers[key]; ok {
			value = prev + ", " + value
		}
		req.Headers[key] = value
	}
}

func readBody(req *Request, br *bufio.Reader, maxBody int64) error {
	te := req.Header("Transfer-Encoding")
	cl := req.Header("Content-Length")

	if te != "" {
		if cl != "" {
			return malformed("both Transfer-Encoding and Content-Length present")
		}
		if !strings.EqualFold(strings.TrimSpace(te), "chunked") {
			return malformed("unsupported transfer encoding " + strconv.Quote(te))
		}
		req.Chunked = true
		req.ContentLength = -1
		return readChunkedBody(req, br, maxBody)
	}

	if cl == "" {
		return nil
	}

	n, err := parseContentLength(cl)
	if err != nil {
		return err
	}
	if n > maxBody {
		return malformedf(StatusRequestEntityTooLarge, "content length exceeds limit", ErrBodyTooLarge)
	}

	req.ContentLength = n
	if n == 0 {
		return nil
	}

	req.Body = make([]byte, n)
	if _, err := io.ReadFull(br, req.Body); err != nil {
		return bodyError(err)
	}
	return nil
}

// parseContentLength accepts repeated identical values joined with ", "
func parseContentLength(cl string) (int64, error) {
	var n int64 = -1
	for _, part := range strings.Split(cl, ",") {
		part = strings.TrimSpace(part)
		if part == "" || strings.TrimLeft(part, "0123456789") != "" {
			return 0, malformed("invalid Content-Length")
		}
		v, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return 0, malformedf(StatusBadRequest, "invalid Content-Length", err)
		}
		if n != -1 && v != n {
			return 0, malformed("conflicting Content-Length values")
		}
		n = v
	}
	return n, nil
}

func readChunkedBody(req *Request, br *bufio.Reader, maxBody int64) error {
	parser := chunkedbody.NewParser(chunkedbody.DefaultSettings())
	hasTrailer := req.Header("Trailer") != ""

	for {
		if _, err := br.Peek(1); err != nil {
			return bodyError(err)
		}

		data, _ := br.Peek(br.Buffered())
		chunk, extra, err := parser.Parse(data, hasTrailer)
		switch err {
		case nil, io.EOF:
		default:
			return malformedf(StatusBadRequest, "invalid chunked body", err)
		}

		if int64(len(req.Body)+len(chunk)) > maxBody {
			return malformedf(StatusRequestEntityTooLarge, "chunked body exceeds limit", ErrBodyTooLarge)
		}
		req.Body = append(req.Body, chunk...)

		if _, discardErr := br.Discard(len(data) - len(extra)); discardErr != nil {
			return bodyError(discardErr)
		}

		if err == io.EOF {
			req.ContentLength = int64(len(req.Body))
			return nil
		}
	}
}

func bodyError(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return malformedf(StatusBadRequest, "truncated body", io.ErrUnexpectedEOF)
	}
	return errors.Wrap(err, "read body")
}

func lineError(err error) error {
	switch {
	case errors.Is(err, ErrHeaderTooLarge):
		return malformedf(StatusRequestHeaderFieldsTooLarge, "header section exceeds limit", err)
	case err == io.EOF || err == io.ErrUnexpectedEOF:
		return malformedf(StatusBadRequest, "truncated header section", io.ErrUnexpectedEOF)
	}
	return errors.Wrap(err, "read header")
}

// lineReader reads CRLF or LF terminated lines while charging them against
// a shared byte budget.
type lineReader struct {
	br     *bufio.Reader
	budget int
	buf    []byte
}

// readLine returns the next line without its terminator. The returned slice
// is valid until the next call.
func (lr *lineReader) readLine() ([]byte, error) {
	lr.buf = lr.buf[:0]
	for {
		frag, err := lr.br.ReadSlice('\n')
		lr.budget -= len(frag)
		if lr.budget < 0 {
			return nil, ErrHeaderTooLarge
		}

		lr.buf = append(lr.buf, frag...)
		if err == bufio.ErrBufferFull {
			continue
		}
		if err != nil {
			if err == io.EOF && len(lr.buf) > 0 {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		break
	}

	line := lr.buf[:len(lr.buf)-1]
	if len(line) > 0 && line[len(line)-1] == '\r' {
		line = line[:len(line)-1]
	}
	return line, nil
}

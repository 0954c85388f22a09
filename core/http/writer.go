package http

import (
	"bufio"
	"sort"
	"strconv"
	"time"
)

// ServerName is sent in the Server header of every response
const ServerName = "poolserver"

// Headers the writer owns; values supplied by handlers are ignored
var managedHeaders = map[string]bool{
	"Content-Length":    true,
	"Connection":        true,
	"Transfer-Encoding": true,
}

// WriteOptions controls connection-level fields of a serialized response
type WriteOptions struct {
	// KeepAlive selects "Connection: keep-alive" instead of "close"
	KeepAlive bool
	// OmitBody drops the body while keeping its Content-Length (HEAD requests)
	OmitBody bool
	// Now stamps the Date header; zero means time.Now
	Now time.Time
}

// WriteResponse serializes resp as an HTTP/1.1 response and flushes bw
func WriteResponse(bw *bufio.Writer, resp *Response, opts WriteOptions) error {
	// Heads usually fit in bw's free space, so this does not allocate
	buf := AppendResponseHead(bw.AvailableBuffer(), resp, opts)

	if _, err := bw.Write(buf); err != nil {
		return err
	}

	if !opts.OmitBody && bodyAllowed(resp.Status) && len(resp.Body) > 0 {
		if _, err := bw.Write(resp.Body); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// AppendResponseHead appends the status line and header section of resp to b
func AppendResponseHead(b []byte, resp *Response, opts WriteOptions) []byte {
	b = append(b, "HTTP/1.1 "...)
	b = strconv.AppendInt(b, int64(resp.Status), 10)
	b = append(b, ' ')
	b = append(b, StatusText(resp.Status)...)
	b = append(b, "\r\n"...)

	// Deterministic order makes responses reproducible
	keys := make([]string, 0, len(resp.Headers))
	for k := range resp.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	hasDate, hasServer := false, false
	for _, k := range keys {
		name := CanonicalHeaderKey(k)
		if managedHeaders[name] {
			continue
		}
		switch name {
		case "Date":
			hasDate = true
		case "Server":
			hasServer = true
		}
		b = appendHeader(b, name, resp.Headers[k])
	}

	if !hasDate {
		now := opts.Now
		if now.IsZero() {
			now = time.Now()
		}
		b = append(b, "Date: "...)
		b = now.UTC().AppendFormat(b, "Mon, 02 Jan 2006 15:04:05 GMT")
		b = append(b, "\r\n"...)
	}
	if !hasServer {
		b = appendHeader(b, "Server", ServerName)
	}

	if bodyAllowed(resp.Status) {
		b = append(b, "Content-Length: "...)
		b = strconv.AppendInt(b, int64(len(resp.Body)), 10)
		b = append(b, "\r\n"...)
	}

	if opts.KeepAlive {
		b = appendHeader(b, "Connection", "keep-alive")
	} else {
		b = appendHeader(b, "Connection", "close")
	}

	return append(b, "\r\n"...)
}

func appendHeader(b []byte, name, value string) []byte {
	b = append(b, name...)
	b = append(b, ": "...)
	b = append(b, value...)
	return append(b, "\r\n"...)
}

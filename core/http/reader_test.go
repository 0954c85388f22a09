package http

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/dchest/uniuri"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readString(t *testing.T, raw string, limits Limits) (*Request, error) {
	t.Helper()
	return ReadRequest(bufio.NewReader(strings.NewReader(raw)), limits)
}

func requireMalformed(t *testing.T, err error, status int) {
	t.Helper()
	require.Error(t, err)
	var me *MalformedRequestError
	require.ErrorAs(t, err, &me)
	require.Equal(t, status, me.Status, me.Error())
}

func TestReadRequest(t *testing.T) {
	t.Run("simple GET", func(t *testing.T) {
		req, err := readString(t, "GET / HTTP/1.1\r\nHost: localhost\r\n\r\n", Limits{})
		require.NoError(t, err)
		assert.Equal(t, MethodGet, req.Method)
		assert.Equal(t, "/", req.Path)
		assert.Equal(t, "HTTP/1.1", req.Proto)
		assert.Equal(t, "localhost", req.Header("host"))
		assert.Empty(t, req.Body)
	})

	t.Run("bare LF line endings", func(t *testing.T) {
		req, err := readString(t, "GET /hello HTTP/1.1\nHost: x\n\n", Limits{})
		require.NoError(t, err)
		assert.Equal(t, "/hello", req.Path)
	})

	t.Run("leading empty lines", func(t *testing.T) {
		req, err := readString(t, "\r\n\r\nGET /a HTTP/1.1\r\nHost: x\r\n\r\n", Limits{})
		require.NoError(t, err)
		assert.Equal(t, "/a", req.Path)
	})

	t.Run("query and escaped path", func(t *testing.T) {
		req, err := readString(t, "GET /hello%20world?name=go&lang=en%21&flag HTTP/1.1\r\nHost: x\r\n\r\n", Limits{})
		require.NoError(t, err)
		assert.Equal(t, "/hello world", req.Path)
		assert.Equal(t, "name=go&lang=en%21&flag", req.RawQuery)
		assert.Equal(t, "go", req.QueryValue("name"))
		assert.Equal(t, "en!", req.QueryValue("lang"))
		_, ok := req.Query["flag"]
		assert.True(t, ok)
	})

	t.Run("absolute form", func(t *testing.T) {
		req, err := readString(t, "GET http://example.com/path?x=1 HTTP/1.1\r\nHost: example.com\r\n\r\n", Limits{})
		require.NoError(t, err)
		assert.Equal(t, "/path", req.Path)
		assert.Equal(t, "1", req.QueryValue("x"))
	})

	t.Run("repeated headers are joined", func(t *testing.T) {
		raw := "GET / HTTP/1.1\r\nHost: x\r\nAccept: text/html\r\naccept: application/json\r\n\r\n"
		req, err := readString(t, raw, Limits{})
		require.NoError(t, err)
		assert.Equal(t, "text/html, application/json", req.Header("Accept"))
	})

	t.Run("many random headers", func(t *testing.T) {
		var sb strings.Builder
		sb.WriteString("GET / HTTP/1.1\r\nHost: x\r\n")
		values := make(map[string]string)
		for i := 0; i < 20; i++ {
			name := fmt.Sprintf("X-Header-%d", i)
			value := uniuri.NewLen(16)
			values[name] = value
			sb.WriteString(name + ": " + value + "\r\n")
		}
		sb.WriteString("\r\n")

		req, err := readString(t, sb.String(), Limits{})
		require.NoError(t, err)
		for name, value := range values {
			assert.Equal(t, value, req.Header(name))
		}
	})

	t.Run("content length body", func(t *testing.T) {
		raw := "POST /submit HTTP/1.1\r\nHost: x\r\nContent-Length: 13\r\n\r\nHello, world!"
		req, err := readString(t, raw, Limits{})
		require.NoError(t, err)
		assert.Equal(t, MethodPost, req.Method)
		assert.Equal(t, int64(13), req.ContentLength)
		assert.Equal(t, "Hello, world!", string(req.Body))
	})

	t.Run("empty host value", func(t *testing.T) {
		req, err := readString(t, "GET / HTTP/1.1\r\nHost:\r\n\r\n", Limits{})
		require.NoError(t, err)
		assert.Equal(t, "", req.Header("Host"))
	})

	t.Run("pipelined requests", func(t *testing.T) {
		raw := "POST /a HTTP/1.1\r\nHost: x\r\nContent-Length: 3\r\n\r\nabc" +
			"GET /b HTTP/1.1\r\nHost: x\r\n\r\n"
		br := bufio.NewReader(strings.NewReader(raw))

		first, err := ReadRequest(br, Limits{})
		require.NoError(t, err)
		assert.Equal(t, "/a", first.Path)
		assert.Equal(t, "abc", string(first.Body))

		second, err := ReadRequest(br, Limits{})
		require.NoError(t, err)
		assert.Equal(t, "/b", second.Path)

		_, err = ReadRequest(br, Limits{})
		require.ErrorIs(t, err, io.EOF)
	})

	t.Run("HTTP/1.0 without host", func(t *testing.T) {
		req, err := readString(t, "GET / HTTP/1.0\r\n\r\n", Limits{})
		require.NoError(t, err)
		assert.True(t, req.WantsClose())
	})

	t.Run("empty input", func(t *testing.T) {
		_, err := readString(t, "", Limits{})
		require.Equal(t, io.EOF, err)
	})
}

func TestReadRequest_Chunked(t *testing.T) {
	const head = "POST /upload HTTP/1.1\r\nHost: x\r\nTransfer-Encoding: chunked\r\n"
	const chunks = "5\r\nhello\r\n6\r\n world\r\n0\r\n\r\n"

	tests := []struct {
		name   string
		raw    string
		wrap   func(io.Reader) io.Reader
		limits Limits
		body   string
		status int    // expected MalformedRequestError status, 0 for success
		next   string // path of a request pipelined after the chunked one
	}{
		{name: "single read", raw: head + "\r\n" + chunks, body: "hello world"},
		{name: "one byte per read", raw: head + "\r\n" + chunks, wrap: iotest.OneByteReader, body: "hello world"},
		{name: "half reads", raw: head + "\r\n" + chunks, wrap: iotest.HalfReader, body: "hello world"},
		{
			name: "trailer",
			raw: head + "Trailer: X-Checksum\r\n\r\n" +
				"5\r\nhello\r\n6\r\n world\r\n0\r\nX-Checksum: abc\r\n\r\n",
			body: "hello world",
		},
		{
			name: "trailer with pipelined request",
			raw: head + "Trailer: X-Checksum\r\n\r\n" +
				"5\r\nhello\r\n0\r\nX-Checksum: abc\r\n\r\n" +
				"GET /after-trailer HTTP/1.1\r\nHost: x\r\n\r\n",
			body: "hello",
			next: "/after-trailer",
		},
		{
			name: "pipelined request",
			raw:  head + "\r\n" + chunks + "GET /next HTTP/1.1\r\nHost: x\r\n\r\n",
			body: "hello world",
			next: "/next",
		},
		{
			name: "pipelined request one byte per read",
			raw:  head + "\r\n" + chunks + "GET /next HTTP/1.1\r\nHost: x\r\n\r\n",
			wrap: iotest.OneByteReader,
			body: "hello world",
			next: "/next",
		},
		{name: "body at limit", raw: head + "\r\n" + chunks, limits: Limits{MaxBodyBytes: 11}, body: "hello world"},
		{name: "body over limit", raw: head + "\r\n" + chunks, limits: Limits{MaxBodyBytes: 8}, status: StatusRequestEntityTooLarge},
		{
			name:   "body over limit one byte per read",
			raw:    head + "\r\n" + chunks,
			wrap:   iotest.OneByteReader,
			limits: Limits{MaxBodyBytes: 8},
			status: StatusRequestEntityTooLarge,
		},
		{name: "truncated", raw: head + "\r\n" + "5\r\nhel", status: StatusBadRequest},
		{name: "bad chunk size", raw: head + "\r\n" + "zz\r\nhello\r\n0\r\n\r\n", status: StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r io.Reader = strings.NewReader(tt.raw)
			if tt.wrap != nil {
				r = tt.wrap(r)
			}
			br := bufio.NewReader(r)

			req, err := ReadRequest(br, tt.limits)
			if tt.status != 0 {
				requireMalformed(t, err, tt.status)
				if tt.status == StatusRequestEntityTooLarge {
					require.ErrorIs(t, err, ErrBodyTooLarge)
				}
				return
			}

			require.NoError(t, err)
			assert.True(t, req.Chunked)
			assert.Equal(t, tt.body, string(req.Body))
			assert.Equal(t, int64(len(tt.body)), req.ContentLength)

			if tt.next != "" {
				next, err := ReadRequest(br, Limits{})
				require.NoError(t, err)
				assert.Equal(t, tt.next, next.Path)
			}
			_, err = ReadRequest(br, Limits{})
			require.ErrorIs(t, err, io.EOF)
		})
	}
}

func TestReadRequest_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		status int
	}{
		{"garbage", "this is not http\r\n\r\n", StatusBadRequest},
		{"missing proto", "GET /\r\n\r\n", StatusBadRequest},
		{"bad proto", "GET / HTTX/1.1\r\nHost: x\r\n\r\n", StatusBadRequest},
		{"http2 version", "GET / HTTP/2.0\r\nHost: x\r\n\r\n", StatusBadRequest},
		{"bad method", "G(T / HTTP/1.1\r\nHost: x\r\n\r\n", StatusBadRequest},
		{"relative target", "GET index.html HTTP/1.1\r\nHost: x\r\n\r\n", StatusBadRequest},
		{"bad escape", "GET /%zz HTTP/1.1\r\nHost: x\r\n\r\n", StatusBadRequest},
		{"missing host", "GET / HTTP/1.1\r\n\r\n", StatusBadRequest},
		{"no colon", "GET / HTTP/1.1\r\nHost x\r\n\r\n", StatusBadRequest},
		{"space in name", "GET / HTTP/1.1\r\nHost : x\r\n\r\n", StatusBadRequest},
		{"folded header", "GET / HTTP/1.1\r\nHost: x\r\nX-A: a\r\n b\r\n\r\n", StatusBadRequest},
		{"truncated headers", "GET / HTTP/1.1\r\nHost: x\r\n", StatusBadRequest},
		{"negative length", "POST / HTTP/1.1\r\nHost: x\r\nContent-Length: -1\r\n\r\n", StatusBadRequest},
		{"conflicting lengths", "POST / HTTP/1.1\r\nHost: x\r\nContent-Length: 1\r\nContent-Length: 2\r\n\r\nab", StatusBadRequest},
		{"truncated body", "POST / HTTP/1.1\r\nHost: x\r\nContent-Length: 10\r\n\r\nabc", StatusBadRequest},
		{"te and cl", "POST / HTTP/1.1\r\nHost: x\r\nContent-Length: 1\r\nTransfer-Encoding: chunked\r\n\r\n", StatusBadRequest},
		{"gzip te", "POST / HTTP/1.1\r\nHost: x\r\nTransfer-Encoding: gzip\r\n\r\n", StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readString(t, tt.raw, Limits{})
			requireMalformed(t, err, tt.status)
		})
	}
}

func TestReadRequest_Limits(t *testing.T) {
	t.Run("header section", func(t *testing.T) {
		raw := "GET / HTTP/1.1\r\nHost: x\r\nX-Big: " + strings.Repeat("a", 8192) + "\r\n\r\n"
		_, err := readString(t, raw, Limits{MaxHeaderBytes: 1024})
		requireMalformed(t, err, StatusRequestHeaderFieldsTooLarge)
		require.ErrorIs(t, err, ErrHeaderTooLarge)
	})

	t.Run("content length", func(t *testing.T) {
		raw := "POST / HTTP/1.1\r\nHost: x\r\nContent-Length: 100\r\n\r\n" + strings.Repeat("a", 100)
		_, err := readString(t, raw, Limits{MaxBodyBytes: 10})
		requireMalformed(t, err, StatusRequestEntityTooLarge)
		require.ErrorIs(t, err, ErrBodyTooLarge)
	})

	t.Run("body at limit", func(t *testing.T) {
		raw := "POST / HTTP/1.1\r\nHost: x\r\nContent-Length: 10\r\n\r\n" + strings.Repeat("a", 10)
		req, err := readString(t, raw, Limits{MaxBodyBytes: 10})
		require.NoError(t, err)
		require.Len(t, req.Body, 10)
	})
}

func TestRequest_WantsClose(t *testing.T) {
	tests := []struct {
		proto, connection string
		want              bool
	}{
		{"HTTP/1.1", "", false},
		{"HTTP/1.1", "close", true},
		{"HTTP/1.1", "Keep-Alive, Close", true},
		{"HTTP/1.0", "", true},
		{"HTTP/1.0", "keep-alive", false},
	}

	for _, tt := range tests {
		req := &Request{Proto: tt.proto, Headers: map[string]string{}}
		if tt.connection != "" {
			req.Headers["Connection"] = tt.connection
		}
		assert.Equal(t, tt.want, req.WantsClose(), "%s %q", tt.proto, tt.connection)
	}
}

func TestCanonicalHeaderKey(t *testing.T) {
	assert.Equal(t, "Content-Type", CanonicalHeaderKey("content-type"))
	assert.Equal(t, "Content-Type", CanonicalHeaderKey("CONTENT-TYPE"))
	assert.Equal(t, "X-Request-Id", CanonicalHeaderKey("x-request-id"))
	assert.Equal(t, "Host", CanonicalHeaderKey("Host"))
}

func BenchmarkReadRequest(b *testing.B) {
	raw := "GET /api/users/42?fields=name HTTP/1.1\r\nHost: localhost\r\nUser-Agent: bench\r\nAccept: */*\r\n\r\n"
	r := strings.NewReader(raw)
	br := bufio.NewReader(r)

	b.SetBytes(int64(len(raw)))
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		r.Reset(raw)
		br.Reset(r)
		if _, err := ReadRequest(br, Limits{}); err != nil {
			b.Fatal(err)
		}
	}
}

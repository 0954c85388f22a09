package core

import (
	"bufio"
	"io"
	"net"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/searchktools/poolserver/core/http"
	"github.com/searchktools/poolserver/core/pools"
)

// serveConn drives one connection through read, resolve, handle and write.
// Everything derived from a request lives on this call's stack and is gone
// once it returns.
func (s *Server) serveConn(w *pools.Worker, conn net.Conn) {
	connID := uuid.NewString()
	defer conn.Close()

	br := s.bufs.GetReader(conn)
	defer s.bufs.PutReader(br)
	bw := s.bufs.GetWriter(conn)
	defer s.bufs.PutWriter(bw)

	limits := http.Limits{
		MaxHeaderBytes: s.cfg.MaxHeaderBytes,
		MaxBodyBytes:   s.cfg.MaxBodyBytes,
	}

	for n := 0; ; n++ {
		if n > 0 && !s.awaitNext(conn, br) {
			return
		}

		s.setReadDeadline(conn)
		req, err := http.ReadRequest(br, limits)
		if err != nil {
			s.handleReadError(w, connID, conn, bw, err)
			return
		}

		resp := s.respond(w, connID, req)

		keepAlive := s.cfg.KeepAlive && !req.WantsClose() && !s.dispatcher.Draining()
		if !s.writeResponse(w, connID, conn, bw, resp, http.WriteOptions{
			KeepAlive: keepAlive,
			OmitBody:  req.Method == http.MethodHead,
		}) {
			return
		}

		if !keepAlive {
			return
		}
	}
}

// respond resolves req and runs its handler behind the fault boundary
func (s *Server) respond(w *pools.Worker, connID string, req *http.Request) *http.Response {
	m, ok := s.router.Resolve(req.Method, req.Path)
	if !ok && req.Method == http.MethodHead {
		m, ok = s.router.Resolve(http.MethodGet, req.Path)
	}

	if !ok {
		if allowed := s.router.Allowed(req.Path); len(allowed) > 0 {
			s.stats.methodNotAllowed.Add(1)
			resp := http.Error(http.StatusMethodNotAllowed)
			resp.Headers["Allow"] = joinMethods(allowed)
			return resp
		}
		s.stats.notFound.Add(1)
		return http.Error(http.StatusNotFound)
	}

	started := time.Now()
	resp, fault := invoke(m.Route.Handler, req.WithParams(m.Params))
	s.monitor.Record(string(m.Route.Method)+" "+m.Route.Pattern, time.Since(started), fault != nil)

	if fault != nil {
		fault.Method = string(req.Method)
		fault.Pattern = m.Route.Pattern
		s.stats.handlerFaults.Add(1)
		s.logger.Printf("worker %d: conn %s: %v\n%s", w.ID, connID, fault, fault.Stack)
		return http.Error(http.StatusInternalServerError)
	}
	return resp
}

// invoke calls h, turning panics and unusable responses into a HandlerFault
func invoke(h http.Handler, req *http.Request) (resp *http.Response, fault *HandlerFault) {
	defer func() {
		if r := recover(); r != nil {
			resp = nil
			fault = &HandlerFault{Value: r, Stack: debug.Stack()}
		}
	}()

	resp = h.Handle(req)
	if resp == nil {
		return nil, &HandlerFault{Value: errors.New("handler returned nil response")}
	}
	if err := resp.Validate(); err != nil {
		return nil, &HandlerFault{Value: err}
	}
	return resp, nil
}

// handleReadError turns a failed read into the connection's final outcome
func (s *Server) handleReadError(w *pools.Worker, connID string, conn net.Conn, bw *bufio.Writer, err error) {
	var me *http.MalformedRequestError
	var ne net.Error

	switch {
	case errors.Is(err, io.EOF):
		// Peer closed before sending a request
		s.stats.silentCloses.Add(1)

	case errors.As(err, &me):
		s.stats.malformed.Add(1)
		s.writeResponse(w, connID, conn, bw, me.Response(), http.WriteOptions{})

	case errors.As(err, &ne) && ne.Timeout():
		s.writeResponse(w, connID, conn, bw, http.Error(http.StatusRequestTimeout), http.WriteOptions{})

	default:
		s.stats.silentCloses.Add(1)
		s.logger.Printf("worker %d: conn %s: read: %v", w.ID, connID, err)
	}
}

// writeResponse serializes resp and reports whether the connection is still usable
func (s *Server) writeResponse(w *pools.Worker, connID string, conn net.Conn, bw *bufio.Writer, resp *http.Response, opts http.WriteOptions) bool {
	if s.cfg.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}

	s.stats.recordResponse(resp.Status)
	if err := http.WriteResponse(bw, resp, opts); err != nil {
		s.stats.writeErrors.Add(1)
		s.logger.Printf("worker %d: conn %s: write: %v", w.ID, connID, err)
		return false
	}
	return true
}

// awaitNext waits for the first byte of the next request on a persistent
// connection. It reports false when the connection should be closed.
func (s *Server) awaitNext(conn net.Conn, br *bufio.Reader) bool {
	timeout := s.cfg.IdleTimeout
	if timeout <= 0 {
		timeout = s.cfg.ReadTimeout
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	if !s.idle.track(conn, deadline) {
		return false
	}
	_, err := br.Peek(1)
	s.idle.untrack(conn)

	if err != nil {
		s.stats.silentCloses.Add(1)
		return false
	}
	return true
}

func (s *Server) setReadDeadline(conn net.Conn) {
	if s.cfg.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	} else {
		_ = conn.SetReadDeadline(time.Time{})
	}
}

func joinMethods(methods []http.Method) string {
	names := make([]string, len(methods))
	for i, m := range methods {
		names[i] = string(m)
	}
	return strings.Join(names, ", ")
}

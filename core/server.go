package core

import (
	"bufio"
	"log"
	"net"
	"os"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"github.com/pkg/errors"

	"github.com/searchktools/poolserver/config"
	"github.com/searchktools/poolserver/core/http"
	"github.com/searchktools/poolserver/core/observability"
	"github.com/searchktools/poolserver/core/pools"
	"github.com/searchktools/poolserver/core/router"
)

// Routes above these are reported as bottlenecks when the server stops
const (
	slowRouteThreshold = 100 * time.Millisecond
	faultRateThreshold = 0.05
)

// Stop reports once when draining takes longer than this
const drainReportInterval = 5 * time.Second

// Server owns the listener, the dispatcher, the worker pool and the router
type Server struct {
	cfg    config.Config
	logger *log.Logger

	// Routes queued by Handle and the method shorthands
	pending []router.Route

	router     *router.Router
	ln         net.Listener
	dispatcher *Dispatcher
	pool       *pools.WorkerPool[net.Conn]
	bufs       *pools.BufioPool
	idle       *idleTracker
	stats      serverStats
	monitor    *observability.Monitor

	mu        sync.Mutex // serializes lifecycle transitions
	lifecycle *fsm.FSM
	stopped   chan struct{}
}

// Option configures a Server
type Option func(*Server)

// WithLogger replaces the default logger
func WithLogger(logger *log.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a server in the Created state
func NewServer(cfg config.Config, opts ...Option) *Server {
	s := &Server{
		cfg:       cfg,
		logger:    log.New(os.Stderr, "poolserver: ", log.LstdFlags),
		bufs:      pools.NewBufioPool(pools.DefaultReaderSize, pools.DefaultWriterSize),
		idle:      newIdleTracker(),
		monitor:   observability.NewMonitor(),
		lifecycle: newLifecycle(),
		stopped:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle queues a route to be registered by Start
func (s *Server) Handle(method http.Method, pattern string, handler http.Handler) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = append(s.pending, router.Route{Method: method, Pattern: pattern, Handler: handler})
	return s
}

// GET registers a GET route
func (s *Server) GET(pattern string, fn http.HandlerFunc) *Server {
	return s.Handle(http.MethodGet, pattern, fn)
}

// POST registers a POST route
func (s *Server) POST(pattern string, fn http.HandlerFunc) *Server {
	return s.Handle(http.MethodPost, pattern, fn)
}

// PUT registers a PUT route
func (s *Server) PUT(pattern string, fn http.HandlerFunc) *Server {
	return s.Handle(http.MethodPut, pattern, fn)
}

// PATCH registers a PATCH route
func (s *Server) PATCH(pattern string, fn http.HandlerFunc) *Server {
	return s.Handle(http.MethodPatch, pattern, fn)
}

// DELETE registers a DELETE route
func (s *Server) DELETE(pattern string, fn http.HandlerFunc) *Server {
	return s.Handle(http.MethodDelete, pattern, fn)
}

// HEAD registers a HEAD route
func (s *Server) HEAD(pattern string, fn http.HandlerFunc) *Server {
	return s.Handle(http.MethodHead, pattern, fn)
}

// OPTIONS registers an OPTIONS route
func (s *Server) OPTIONS(pattern string, fn http.HandlerFunc) *Server {
	return s.Handle(http.MethodOptions, pattern, fn)
}

// Start registers the queued routes followed by routes, opens the listener
// and starts exactly PoolSize workers. It returns once the server accepts
// connections. Any error leaves the server in the Created state.
func (s *Server) Start(routes ...router.Route) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.lifecycle.Can(eventStart) {
		return errors.Wrapf(ErrInvalidState, "%s from %s", eventStart, s.State())
	}

	if err := s.cfg.Validate(); err != nil {
		return err
	}

	rt := router.New()
	all := append(append([]router.Route(nil), s.pending...), routes...)
	for _, r := range all {
		if err := rt.Register(r.Method, r.Pattern, r.Handler); err != nil {
			return errors.Wrap(err, "register routes")
		}
	}
	rt.Freeze()

	ln, err := listen(s.cfg)
	if err != nil {
		return err
	}

	s.router = rt
	s.ln = ln
	s.dispatcher = newDispatcher(ln, s.reject, s.logger, &s.stats)
	s.pool = pools.NewWorkerPool[net.Conn](s.cfg.PoolSize)

	if err := s.pool.Start(s.dispatcher, s.serveConn); err != nil {
		_ = ln.Close()
		return err
	}
	go s.dispatcher.Run()

	if err := s.transition(eventStart); err != nil {
		_ = s.dispatcher.Close()
		return err
	}
	s.logger.Printf("listening on %s: %d workers, %d routes", ln.Addr(), s.cfg.PoolSize, rt.Len())
	return nil
}

// Stop closes the listener and waits until every worker has finished its
// current connection. Calls after the first wait for that one and return nil.
func (s *Server) Stop() error {
	s.mu.Lock()
	if state := s.State(); state == StateDraining || state == StateStopped {
		s.mu.Unlock()
		<-s.stopped
		return nil
	}
	err := s.transition(eventDrain)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	started := time.Now()
	s.logger.Printf("draining %d busy workers", s.pool.Stats().Busy)

	if err := s.dispatcher.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.logger.Printf("close listener: %v", err)
	}
	s.idle.drain()

	<-s.dispatcher.Done()
	if !s.pool.WaitTimeout(drainReportInterval) {
		s.logger.Printf("still waiting for %d busy workers", s.pool.Stats().Busy)
		s.pool.Wait()
	}

	if err := s.transition(eventStop); err != nil {
		s.logger.Printf("stop: %v", err)
	}
	close(s.stopped)
	s.logger.Printf("stopped after %v, %d requests handled", time.Since(started).Round(time.Millisecond), s.monitor.Total())
	for _, b := range s.monitor.Bottlenecks(slowRouteThreshold, faultRateThreshold) {
		s.logger.Printf("bottleneck: %s %s: %s", b.Type, b.Route, b.Details)
	}
	return nil
}

// reject answers a connection that arrived after draining began
func (s *Server) reject(conn net.Conn) {
	defer conn.Close()
	s.stats.rejected.Add(1)

	if s.cfg.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}

	resp := http.Error(http.StatusServiceUnavailable)
	resp.Headers["Retry-After"] = "1"

	bw := bufio.NewWriter(conn)
	s.stats.recordResponse(resp.Status)
	if err := http.WriteResponse(bw, resp, http.WriteOptions{}); err != nil {
		s.stats.writeErrors.Add(1)
	}
}

// State returns the current lifecycle state
func (s *Server) State() State {
	return State(s.lifecycle.Current())
}

// Addr returns the listener address, or nil before Start
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Config returns the server configuration
func (s *Server) Config() config.Config {
	return s.cfg
}

// Router returns the frozen route table, or nil before Start
func (s *Server) Router() *router.Router {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.router
}

// Done is closed once Stop has completed
func (s *Server) Done() <-chan struct{} {
	return s.stopped
}

// Stats returns a snapshot of the server counters
func (s *Server) Stats() Stats {
	stats := s.stats.snapshot()
	stats.State = s.State().String()
	stats.Bufio = s.bufs.Stats()
	stats.Routes = s.monitor.Snapshot()

	s.mu.Lock()
	pool := s.pool
	s.mu.Unlock()

	if pool != nil {
		stats.Workers = workerStats(pool.Stats())
	}
	return stats
}

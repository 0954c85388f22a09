package core

import (
	"net"
	"sync"
	"time"
)

// idleTracker knows which persistent connections are waiting between
// requests, so Stop can wake them instead of waiting for the idle timeout.
// Only used when keep-alive is enabled.
type idleTracker struct {
	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	draining bool
}

func newIdleTracker() *idleTracker {
	return &idleTracker{conns: make(map[net.Conn]struct{})}
}

// track marks conn idle and arms its read deadline. It returns false once
// draining has started; the caller must then close the connection.
func (t *idleTracker) track(conn net.Conn, deadline time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.draining {
		return false
	}
	t.conns[conn] = struct{}{}
	_ = conn.SetReadDeadline(deadline)
	return true
}

// untrack marks conn busy again. A deadline set by drain before this call
// is overwritten by the caller afterwards, never the other way round.
func (t *idleTracker) untrack(conn net.Conn) {
	t.mu.Lock()
	delete(t.conns, conn)
	t.mu.Unlock()
}

// drain expires the read deadline of every idle connection
func (t *idleTracker) drain() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.draining = true
	now := time.Now()
	for conn := range t.conns {
		_ = conn.SetReadDeadline(now)
	}
}

package core

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chanListener is a net.Listener fed by a channel of in-memory connections
type chanListener struct {
	conns     chan net.Conn
	closed    chan struct{}
	closeOnce sync.Once
}

func newChanListener() *chanListener {
	return &chanListener{
		conns:  make(chan net.Conn),
		closed: make(chan struct{}),
	}
}

func (l *chanListener) Accept() (net.Conn, error) {
	select {
	case conn := <-l.conns:
		return conn, nil
	case <-l.closed:
		return nil, net.ErrClosed
	}
}

func (l *chanListener) Close() error {
	l.closeOnce.Do(func() { close(l.closed) })
	return nil
}

func (l *chanListener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)}
}

// dial pushes the server side of a pipe into the listener
func (l *chanListener) dial(t *testing.T) net.Conn {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { client.Close() })

	select {
	case l.conns <- server:
	case <-time.After(5 * time.Second):
		t.Fatal("accept loop did not take the connection")
	}
	return client
}

type rejectRecorder struct {
	mu    sync.Mutex
	conns []net.Conn
}

func (r *rejectRecorder) reject(conn net.Conn) {
	r.mu.Lock()
	r.conns = append(r.conns, conn)
	r.mu.Unlock()
	conn.Close()
}

func (r *rejectRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

func newTestDispatcher(ln net.Listener, rec *rejectRecorder) (*Dispatcher, *serverStats) {
	stats := &serverStats{}
	d := newDispatcher(ln, rec.reject, quietLogger(), stats)
	go d.Run()
	return d, stats
}

func TestDispatcher_HandsOffInOrder(t *testing.T) {
	ln := newChanListener()
	rec := &rejectRecorder{}
	d, stats := newTestDispatcher(ln, rec)
	defer d.Close()

	got := make(chan net.Conn, 3)
	go func() {
		for i := 0; i < 3; i++ {
			conn, err := d.Next()
			if err != nil {
				return
			}
			got <- conn
		}
	}()

	for i := 0; i < 3; i++ {
		ln.dial(t)
		select {
		case conn := <-got:
			assert.NotNil(t, conn)
		case <-time.After(5 * time.Second):
			t.Fatal("connection not handed to Next")
		}
	}

	assert.Equal(t, uint64(3), stats.accepted.Load())
	assert.Zero(t, rec.count())
}

func TestDispatcher_NextAfterClose(t *testing.T) {
	ln := newChanListener()
	d, _ := newTestDispatcher(ln, &rejectRecorder{})

	assert.False(t, d.Draining())
	require.NoError(t, d.Close())
	assert.True(t, d.Draining())
	require.NoError(t, d.Close(), "Close is idempotent")

	select {
	case <-d.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("accept loop did not exit")
	}

	for i := 0; i < 3; i++ {
		conn, err := d.Next()
		assert.Nil(t, conn)
		assert.ErrorIs(t, err, ErrListenerClosed)
	}
}

func TestDispatcher_BlockedNextWakesOnClose(t *testing.T) {
	d, _ := newTestDispatcher(newChanListener(), &rejectRecorder{})

	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		go func() {
			_, err := d.Next()
			errs <- err
		}()
	}

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, d.Close())

	for i := 0; i < 4; i++ {
		select {
		case err := <-errs:
			assert.ErrorIs(t, err, ErrListenerClosed)
		case <-time.After(5 * time.Second):
			t.Fatal("Next still blocked after Close")
		}
	}
}

func TestDispatcher_RejectsPendingOnClose(t *testing.T) {
	ln := newChanListener()
	rec := &rejectRecorder{}
	d, stats := newTestDispatcher(ln, rec)

	// Nobody calls Next, so the accepted connection waits in the accept loop
	ln.dial(t)
	require.Eventually(t, func() bool {
		return stats.accepted.Load() == 1
	}, 5*time.Second, time.Millisecond)

	require.NoError(t, d.Close())
	<-d.Done()

	assert.Equal(t, 1, rec.count())
	_, err := d.Next()
	assert.ErrorIs(t, err, ErrListenerClosed)
}

// flakyListener fails a fixed number of times before delegating
type flakyListener struct {
	*chanListener
	mu       sync.Mutex
	failures int
}

type tempError struct{}

func (tempError) Error() string   { return "too many open files" }
func (tempError) Timeout() bool   { return false }
func (tempError) Temporary() bool { return true }

func (l *flakyListener) Accept() (net.Conn, error) {
	l.mu.Lock()
	if l.failures > 0 {
		l.failures--
		l.mu.Unlock()
		return nil, tempError{}
	}
	l.mu.Unlock()
	return l.chanListener.Accept()
}

func TestDispatcher_AcceptErrorBackoff(t *testing.T) {
	ln := &flakyListener{chanListener: newChanListener(), failures: 3}
	d, _ := newTestDispatcher(ln, &rejectRecorder{})
	defer d.Close()

	got := make(chan net.Conn, 1)
	go func() {
		conn, err := d.Next()
		if err == nil {
			got <- conn
		}
	}()

	// 5ms + 10ms + 20ms of backoff before the real accept
	ln.dial(t)
	select {
	case conn := <-got:
		assert.NotNil(t, conn)
	case <-time.After(5 * time.Second):
		t.Fatal("accept loop did not recover from temporary errors")
	}
}

package core

import (
	"log"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Dispatcher accepts connections and hands each one to whichever worker
// calls Next first. The hand-off channel is unbuffered: an accepted
// connection is either owned by a worker or still held by the accept loop,
// never parked in a queue.
type Dispatcher struct {
	ln     net.Listener
	conns  chan net.Conn
	reject func(net.Conn)
	logger *log.Logger
	stats  *serverStats

	closing   chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

func newDispatcher(ln net.Listener, reject func(net.Conn), logger *log.Logger, stats *serverStats) *Dispatcher {
	return &Dispatcher{
		ln:      ln,
		conns:   make(chan net.Conn),
		reject:  reject,
		logger:  logger,
		stats:   stats,
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Run is the accept loop. It returns after Close, once the hand-off
// channel has been closed.
func (d *Dispatcher) Run() {
	defer close(d.done)
	defer close(d.conns)

	var backoff time.Duration
	for {
		conn, err := d.ln.Accept()
		if err != nil {
			if d.Draining() || errors.Is(err, net.ErrClosed) {
				return
			}

			// Same backoff as net/http for EMFILE and friends
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else {
				backoff *= 2
			}
			if backoff > time.Second {
				backoff = time.Second
			}
			d.logger.Printf("accept error: %v; retrying in %v", err, backoff)

			select {
			case <-time.After(backoff):
				continue
			case <-d.closing:
				return
			}
		}
		backoff = 0
		d.stats.accepted.Add(1)

		// Closing takes priority over a ready worker
		select {
		case <-d.closing:
			d.reject(conn)
			return
		default:
		}

		select {
		case d.conns <- conn:
		case <-d.closing:
			d.reject(conn)
			return
		}
	}
}

// Next blocks until a connection is available. It returns ErrListenerClosed
// once the dispatcher is closed.
func (d *Dispatcher) Next() (net.Conn, error) {
	conn, ok := <-d.conns
	if !ok {
		return nil, ErrListenerClosed
	}
	return conn, nil
}

// Close stops accepting. Connections already handed to workers are not touched.
func (d *Dispatcher) Close() error {
	var err error
	d.closeOnce.Do(func() {
		close(d.closing)
		err = d.ln.Close()
	})
	return err
}

// Draining reports whether Close has been called
func (d *Dispatcher) Draining() bool {
	select {
	case <-d.closing:
		return true
	default:
		return false
	}
}

// Done is closed when the accept loop has exited
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

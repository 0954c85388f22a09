package core

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error definitions
var (
	// ErrListenerClosed is returned by Dispatcher.Next once the listener is
	// closed and no connection is left to hand over. It ends a worker's loop.
	ErrListenerClosed = errors.New("listener closed")

	// ErrInvalidState is returned by Start and Stop when called from a
	// state that does not allow them
	ErrInvalidState = errors.New("invalid server state")
)

// HandlerFault is a panic, nil response or unserializable response
// produced by a handler. The worker answers 500 and keeps running.
type HandlerFault struct {
	Method  string
	Pattern string
	Value   any
	Stack   []byte
}

func (f *HandlerFault) Error() string {
	return fmt.Sprintf("handler fault in %s %s: %v", f.Method, f.Pattern, f.Value)
}

// Unwrap returns the fault value when it is an error
func (f *HandlerFault) Unwrap() error {
	if err, ok := f.Value.(error); ok {
		return err
	}
	return nil
}

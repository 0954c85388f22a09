package core

import (
	"context"

	"github.com/looplab/fsm"
	"github.com/pkg/errors"
)

// State is a server lifecycle state
type State string

// Lifecycle: Created -> Running -> Draining -> Stopped
const (
	StateCreated  State = "created"
	StateRunning  State = "running"
	StateDraining State = "draining"
	StateStopped  State = "stopped"
)

func (s State) String() string {
	return string(s)
}

// Lifecycle events
const (
	eventStart = "start"
	eventDrain = "drain"
	eventStop  = "stop"
)

func newLifecycle() *fsm.FSM {
	return fsm.NewFSM(
		string(StateCreated),
		fsm.Events{
			{Name: eventStart, Src: []string{string(StateCreated)}, Dst: string(StateRunning)},
			{Name: eventDrain, Src: []string{string(StateRunning)}, Dst: string(StateDraining)},
			{Name: eventStop, Src: []string{string(StateDraining)}, Dst: string(StateStopped)},
		},
		fsm.Callbacks{},
	)
}

// transition fires event, reporting a transition the current state does
// not allow as ErrInvalidState
func (s *Server) transition(event string) error {
	err := s.lifecycle.Event(context.Background(), event)
	if err == nil {
		return nil
	}

	var invalid fsm.InvalidEventError
	if errors.As(err, &invalid) {
		return errors.Wrapf(ErrInvalidState, "%s from %s", event, invalid.State)
	}
	return errors.Wrapf(err, "lifecycle %s", event)
}

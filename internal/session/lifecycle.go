package session

import (
	"context"
	"errors"

	"fleet-adapter/internal/utils"

	"github.com/looplab/fsm"
)

// Lifecycle states of a command session.
const (
	StateIdle        = "Idle"
	StateTraveling   = "Traveling"
	StateInterrupted = "Interrupted"
	StateDocking     = "Docking"
)

const (
	eventFollowPath = "follow_path"
	eventDock       = "dock"
	eventFault      = "fault"
	eventFinish     = "finish"
)

// newLifecycle builds the session's state machine. Callbacks only log; they
// run inside the FSM and must never call back into it.
func newLifecycle(robot string) *fsm.FSM {
	all := []string{StateIdle, StateTraveling, StateInterrupted, StateDocking}
	return fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: eventFollowPath, Src: all, Dst: StateTraveling},
			{Name: eventDock, Src: all, Dst: StateDocking},
			{Name: eventFault, Src: []string{StateTraveling}, Dst: StateInterrupted},
			{Name: eventFinish, Src: []string{StateTraveling, StateInterrupted, StateDocking}, Dst: StateIdle},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				utils.Logger.Debugf("ROBOT '%s': state changed from %s -> %s (Event: %s)", robot, e.Src, e.Dst, e.Event)
			},
		},
	)
}

// transition fires event on the lifecycle. Re-entering the current state is
// not an error.
func (s *Session) transition(event string) {
	err := s.lifecycle.Event(context.Background(), event)
	if err == nil {
		return
	}
	var same fsm.NoTransitionError
	if errors.As(err, &same) {
		return
	}
	utils.Logger.WithFields(s.fields()).Warnf("Lifecycle event %s rejected in state %s: %v", event, s.lifecycle.Current(), err)
}

package graph

import "time"

// LaneEvent is an activity attached to the entry or exit of a lane. The set of
// implementations is closed; use a type switch over the concrete types below.
type LaneEvent interface {
	laneEvent()
}

type Dock struct {
	Name     string
	Duration time.Duration
}

type Wait struct {
	Duration time.Duration
}

type DoorOpen struct {
	Door     string
	Duration time.Duration
}

type DoorClose struct {
	Door     string
	Duration time.Duration
}

type LiftSessionBegin struct {
	Lift  string
	Floor string
}

type LiftMove struct {
	Lift  string
	Floor string
}

type LiftDoorOpen struct {
	Lift  string
	Floor string
}

type LiftSessionEnd struct {
	Lift  string
	Floor string
}

func (Dock) laneEvent()             {}
func (Wait) laneEvent()             {}
func (DoorOpen) laneEvent()         {}
func (DoorClose) laneEvent()        {}
func (LiftSessionBegin) laneEvent() {}
func (LiftMove) laneEvent()         {}
func (LiftDoorOpen) laneEvent()     {}
func (LiftSessionEnd) laneEvent()   {}

// DockName reports the dock served by e, if e is a Dock event.
func DockName(e LaneEvent) (string, bool) {
	switch ev := e.(type) {
	case Dock:
		return ev.Name, true
	case Wait, DoorOpen, DoorClose, LiftSessionBegin, LiftMove, LiftDoorOpen, LiftSessionEnd, nil:
		return "", false
	default:
		panic("graph: unhandled lane event type")
	}
}

// EventDuration is the scheduled time the event holds the robot in place.
func EventDuration(e LaneEvent) time.Duration {
	switch ev := e.(type) {
	case Dock:
		return ev.Duration
	case Wait:
		return ev.Duration
	case DoorOpen:
		return ev.Duration
	case DoorClose:
		return ev.Duration
	case LiftSessionBegin, LiftMove, LiftDoorOpen, LiftSessionEnd, nil:
		return 0
	default:
		panic("graph: unhandled lane event type")
	}
}

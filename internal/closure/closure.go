// Package closure decides how a robot's plan is affected when lanes of the
// navigation graph are closed.
package closure

import (
	"sort"

	"fleet-adapter/internal/graph"
	"fleet-adapter/internal/scheduler"
)

// LaneSet is a set of lane indices.
type LaneSet map[int]struct{}

func NewLaneSet(lanes ...int) LaneSet {
	s := make(LaneSet, len(lanes))
	for _, l := range lanes {
		s[l] = struct{}{}
	}
	return s
}

func (s LaneSet) Has(l int) bool {
	_, ok := s[l]
	return ok
}

func (s LaneSet) Add(l int) { s[l] = struct{}{} }

func (s LaneSet) Remove(l int) { delete(s, l) }

// Sorted returns the members in ascending order.
func (s LaneSet) Sorted() []int {
	out := make([]int, 0, len(s))
	for l := range s {
		out = append(out, l)
	}
	sort.Ints(out)
	return out
}

func (s LaneSet) Clone() LaneSet {
	out := make(LaneSet, len(s))
	for l := range s {
		out[l] = struct{}{}
	}
	return out
}

// Side is where a point lies relative to a lane segment.
type Side int

const (
	Before Side = iota
	Within
	After
)

func (s Side) String() string {
	switch s {
	case Before:
		return "before"
	case Within:
		return "within"
	case After:
		return "after"
	}
	return "unknown"
}

// Classify places p relative to the segment entry→exit: before the entry,
// past the exit, or between them.
func Classify(p, entry, exit graph.Vec2) Side {
	v := exit.Sub(entry)
	if p.Sub(entry).Dot(v) < 0 {
		return Before
	}
	if p.Sub(exit).Dot(v) >= 0 {
		return After
	}
	return Within
}

// Fallback is the position to report for a robot caught inside a closed lane.
type Fallback struct {
	Position scheduler.Position
	Anchor   scheduler.Anchor
}

// Decision is the reactor's verdict for one robot.
type Decision struct {
	Replan   bool
	Fallback *Fallback
}

// Input is the part of a session's state the reactor reads.
type Input struct {
	Plan      []scheduler.Waypoint
	Target    int
	HasTarget bool
	// Pose is the last reported pose; HasPose is false before any report.
	Pose    scheduler.Position
	Map     string
	HasPose bool
}

// Evaluate checks a robot's plan against newly closed lanes (delta) and the
// complete set of closed lanes. A robot without a target is not following a
// plan and is never asked to replan.
func Evaluate(g *graph.Graph, in Input, delta, closed LaneSet) Decision {
	var d Decision
	if !in.HasTarget || in.Target < 0 || in.Target >= len(in.Plan) {
		return d
	}

	for _, l := range in.Plan[in.Target].ApproachLanes {
		if !delta.Has(l) || !g.HasLane(l) {
			continue
		}
		d.Replan = true
		if d.Fallback == nil && in.HasPose {
			d.Fallback = reversal(g, g.Lane(l), in)
		}
	}
	if d.Replan {
		return d
	}

	for i := in.Target; i < len(in.Plan); i++ {
		for _, l := range in.Plan[i].ApproachLanes {
			if closed.Has(l) || delta.Has(l) {
				d.Replan = true
				return d
			}
		}
	}
	return d
}

// reversal computes where a robot inside the closed lane should say it is.
// nil means the robot is not inside the lane.
func reversal(g *graph.Graph, lane graph.Lane, in Input) *Fallback {
	wp0 := g.Waypoint(lane.Entry.Waypoint)
	wp1 := g.Waypoint(lane.Exit.Waypoint)
	if Classify(in.Pose.Point(), wp0.Location, wp1.Location) != Within {
		return nil
	}

	if back, ok := g.LaneFrom(wp1.Index, wp0.Index); ok {
		return &Fallback{
			Position: in.Pose,
			Anchor:   scheduler.Anchor{Kind: scheduler.AnchorLanes, Map: in.Map, Lanes: []int{back.Index}},
		}
	}
	return &Fallback{
		Position: in.Pose,
		Anchor:   scheduler.Anchor{Kind: scheduler.AnchorTowardWaypoint, Map: in.Map, Waypoint: wp0.Index},
	}
}

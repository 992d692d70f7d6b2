// Package estimation localises a robot against its stored plan, or against the
// raw navigation graph when there is no usable plan, and reports the result
// to the scheduler.
package estimation

import (
	"math"
	"time"

	"fleet-adapter/internal/graph"
	"fleet-adapter/internal/models"
	"fleet-adapter/internal/scheduler"
	"fleet-adapter/internal/utils"
)

// WaypointSnapDistance is how close a robot must be to a waypoint to be
// reported as standing on it.
const WaypointSnapDistance = 0.5

// TravelState is what a session knows about the plan the robot follows.
type TravelState struct {
	Waypoints   []scheduler.Waypoint
	Interrupted bool

	target       int
	hasTarget    bool
	lastKnown    int
	hasLastKnown bool
}

// Reset stores a new plan and clears everything derived from the old one.
func (t *TravelState) Reset(waypoints []scheduler.Waypoint) {
	t.Waypoints = waypoints
	t.Interrupted = false
	t.ClearTarget()
}

func (t *TravelState) SetTarget(i int) {
	t.target = i
	t.hasTarget = true
}

func (t *TravelState) ClearTarget() {
	t.target = 0
	t.hasTarget = false
}

// Target returns the plan index the robot is heading for, if known.
func (t *TravelState) Target() (int, bool) {
	return t.target, t.hasTarget
}

func (t *TravelState) SetLastKnownWaypoint(wp int) {
	t.lastKnown = wp
	t.hasLastKnown = true
}

// LastKnownWaypoint is the last graph waypoint the robot was confirmed at.
func (t *TravelState) LastKnownWaypoint() (int, bool) {
	return t.lastKnown, t.hasLastKnown
}

// Progress is the outcome of a plan-relative estimate.
type Progress struct {
	TargetIndex int
	Remaining   time.Duration
	// Delay is how far behind the plan's timing the robot is expected to
	// arrive at the target. Negative means ahead of schedule.
	Delay   time.Duration
	OffPlan bool
}

type Estimator struct {
	graph     *graph.Graph
	traits    graph.Traits
	tolerance float64
	updater   scheduler.RobotUpdater
}

// New creates an estimator reporting to updater. tolerance is the distance a
// robot may stray from its plan segments before it is treated as off-plan; a
// non-positive tolerance disables the check.
func New(g *graph.Graph, traits graph.Traits, tolerance float64, updater scheduler.RobotUpdater) *Estimator {
	return &Estimator{
		graph:     g,
		traits:    traits,
		tolerance: tolerance,
		updater:   updater,
	}
}

func position(loc models.Location) scheduler.Position {
	return scheduler.Position{X: loc.X, Y: loc.Y, Yaw: loc.Yaw}
}

// EstimateState localises loc against the raw graph and pushes the result.
func (e *Estimator) EstimateState(loc models.Location, ts *TravelState) (Distance, bool) {
	pos := position(loc)
	d, ok := DistanceFromGraph(e.graph, loc)
	if !ok {
		e.updater.UpdatePosition(pos, scheduler.Anchor{Kind: scheduler.AnchorOffGraph, Map: loc.LevelName})
		return d, false
	}

	switch d.Kind {
	case FeatureWaypoint:
		if d.Value <= WaypointSnapDistance {
			ts.SetLastKnownWaypoint(d.Index)
			e.updater.UpdatePosition(pos, scheduler.Anchor{Kind: scheduler.AnchorWaypoint, Map: loc.LevelName, Waypoint: d.Index})
		} else {
			e.updater.UpdatePosition(pos, scheduler.Anchor{Kind: scheduler.AnchorTowardWaypoint, Map: loc.LevelName, Waypoint: d.Index})
		}
	case FeatureLane:
		e.updater.UpdatePosition(pos, scheduler.Anchor{Kind: scheduler.AnchorLanes, Map: loc.LevelName, Lanes: []int{d.Index}})
	}
	return d, true
}

// EstimateWaypoint pins the robot to waypoint wp.
func (e *Estimator) EstimateWaypoint(loc models.Location, wp int, ts *TravelState) {
	ts.SetLastKnownWaypoint(wp)
	e.updater.UpdatePosition(position(loc), scheduler.Anchor{
		Kind:     scheduler.AnchorWaypoint,
		Map:      e.graph.Waypoint(wp).Map,
		Waypoint: wp,
	})
}

// EstimatePathTraveling matches a robot that reports remaining path entries
// against the stored plan. The target is the first plan waypoint the robot
// has not yet reached: len(plan) - len(remaining).
func (e *Estimator) EstimatePathTraveling(state models.RobotState, ts *TravelState) Progress {
	loc := state.Location
	n := len(ts.Waypoints)
	remaining := len(state.Path)
	if remaining == 0 || remaining > n {
		// The robot is following something other than our plan.
		ts.ClearTarget()
		e.EstimateState(loc, ts)
		return Progress{OffPlan: true}
	}

	i := n - remaining
	ts.SetTarget(i)
	target := ts.Waypoints[i]
	p := graph.Vec2{X: loc.X, Y: loc.Y}

	if e.tolerance > 0 && e.deviation(p, ts.Waypoints, i) > e.tolerance {
		utils.Logger.WithField("target_index", i).Debugf("Robot at (%.2f, %.2f) is off its plan", loc.X, loc.Y)
		e.EstimateState(loc, ts)
		return Progress{TargetIndex: i, OffPlan: true}
	}

	if i > 0 {
		if prev := ts.Waypoints[i-1].GraphIndex; prev != nil {
			ts.SetLastKnownWaypoint(*prev)
		}
	}

	pos := position(loc)
	targetPoint := target.Position.Point()
	switch {
	case len(target.ApproachLanes) > 0 && i > 0:
		e.updater.UpdatePosition(pos, scheduler.Anchor{
			Kind:  scheduler.AnchorLanes,
			Map:   loc.LevelName,
			Lanes: append([]int(nil), target.ApproachLanes...),
		})
	case target.GraphIndex != nil:
		kind := scheduler.AnchorTowardWaypoint
		if targetPoint.Sub(p).Norm() <= WaypointSnapDistance {
			kind = scheduler.AnchorWaypoint
		}
		e.updater.UpdatePosition(pos, scheduler.Anchor{Kind: kind, Map: loc.LevelName, Waypoint: *target.GraphIndex})
	default:
		e.updater.UpdatePosition(pos, scheduler.Anchor{Kind: scheduler.AnchorOffGraph, Map: loc.LevelName})
	}

	left := e.traits.TravelTime(p, loc.Yaw, targetPoint, target.Position.Yaw)
	progress := Progress{TargetIndex: i, Remaining: left}
	if !target.Time.IsZero() && !loc.T.IsZero() {
		progress.Delay = loc.T.Add(left).Sub(target.Time)
	}
	return progress
}

// CheckPathFinish localises a robot that believes it has reached the end of
// its plan.
func (e *Estimator) CheckPathFinish(loc models.Location, ts *TravelState) {
	if len(ts.Waypoints) == 0 {
		e.EstimateState(loc, ts)
		return
	}
	last := ts.Waypoints[len(ts.Waypoints)-1]
	if last.GraphIndex == nil {
		e.EstimateState(loc, ts)
		return
	}

	wp := *last.GraphIndex
	dist := last.Position.Point().Sub(graph.Vec2{X: loc.X, Y: loc.Y}).Norm()
	ts.SetLastKnownWaypoint(wp)
	if dist <= WaypointSnapDistance {
		e.updater.UpdatePosition(position(loc), scheduler.Anchor{Kind: scheduler.AnchorWaypoint, Map: loc.LevelName, Waypoint: wp})
		return
	}

	utils.Logger.Warnf("Robot reports its path finished %.2fm away from the final waypoint [%s]",
		dist, e.graph.Waypoint(wp).DisplayName())
	e.updater.UpdatePosition(position(loc), scheduler.Anchor{Kind: scheduler.AnchorTowardWaypoint, Map: loc.LevelName, Waypoint: wp})
}

// deviation is the distance from p to the nearest plan segment touching
// waypoint i.
func (e *Estimator) deviation(p graph.Vec2, plan []scheduler.Waypoint, i int) float64 {
	best := plan[i].Position.Point().Sub(p).Norm()
	if i > 0 {
		d, _ := graph.DistanceToSegment(p, plan[i-1].Position.Point(), plan[i].Position.Point())
		best = math.Min(best, d)
	}
	if i+1 < len(plan) {
		d, _ := graph.DistanceToSegment(p, plan[i].Position.Point(), plan[i+1].Position.Point())
		best = math.Min(best, d)
	}
	return best
}

// Package scheduler defines the contract between the fleet adapter and the
// traffic scheduler that plans routes and tracks robots.
package scheduler

import (
	"time"

	"fleet-adapter/internal/graph"
)

// Position is a planar pose.
type Position struct {
	X   float64 `json:"x"`
	Y   float64 `json:"y"`
	Yaw float64 `json:"yaw"`
}

func (p Position) Point() graph.Vec2 { return graph.Vec2{X: p.X, Y: p.Y} }

// Waypoint is one step of a planned path.
type Waypoint struct {
	Time          time.Time
	Position      Position
	GraphIndex    *int
	ApproachLanes []int
}

// Start is a feasible starting point for planning.
type Start struct {
	Time        time.Time
	Waypoint    int
	Orientation float64
	Location    *graph.Vec2
	Lane        *int
}

// Profile describes the robot's footprint for conflict checking.
type Profile struct {
	FootprintRadius float64
	VicinityRadius  float64
}

// AnchorKind says how an UpdatePosition call relates the pose to the graph.
type AnchorKind int

const (
	// AnchorWaypoint: the robot is at Waypoint.
	AnchorWaypoint AnchorKind = iota
	// AnchorLanes: the robot is travelling along one of Lanes.
	AnchorLanes
	// AnchorTowardWaypoint: the robot is off the lanes, heading for Waypoint.
	AnchorTowardWaypoint
	// AnchorOffGraph: only the map is known.
	AnchorOffGraph
)

func (k AnchorKind) String() string {
	switch k {
	case AnchorWaypoint:
		return "waypoint"
	case AnchorLanes:
		return "lanes"
	case AnchorTowardWaypoint:
		return "toward_waypoint"
	case AnchorOffGraph:
		return "off_graph"
	}
	return "unknown"
}

type Anchor struct {
	Kind     AnchorKind
	Map      string
	Waypoint int
	Lanes    []int
}

// TrajectoryPoint is a timed pose.
type TrajectoryPoint struct {
	Time     time.Time
	Position Position
}

// Route is a trajectory on one map.
type Route struct {
	Map        string
	Trajectory []TrajectoryPoint
}

// ArrivalEstimator receives the plan index the robot is heading for, the
// estimated time remaining until it arrives there, and how late that arrival
// is against the waypoint's planned time. delay is zero when the plan or the
// report carries no time; it is negative when the robot is ahead.
type ArrivalEstimator func(targetIndex int, remaining, delay time.Duration)

// RequestCompleted is called once when a command finishes.
type RequestCompleted func()

// RobotUpdater is the scheduler's per-robot handle.
type RobotUpdater interface {
	UpdateBattery(fraction float64)
	UpdatePosition(pos Position, anchor Anchor)
	Interrupted()
	ScheduleUpdate(route Route)
}

// ReadyFunc is invoked once the scheduler has accepted a robot.
type ReadyFunc func(updater RobotUpdater)

// Scheduler is the fleet-level collaborator.
type Scheduler interface {
	// ComputeAdmissionStarts returns feasible starts near pos. Empty means the
	// robot cannot be admitted.
	ComputeAdmissionStarts(mapName string, pos Position, at time.Time) []Start
	Register(robot string, profile Profile, starts []Start, onReady ReadyFunc)
	SetClosedLanes(closed []int)
}

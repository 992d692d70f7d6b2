package api

import (
	"fmt"
	"math"
	"time"

	"fleet-adapter/internal/graph"
	"fleet-adapter/internal/scheduler"
)

// planPath turns a sequence of graph waypoints into a timed plan. Each step
// after the first must be joined to the previous one by a lane, which becomes
// its approach lane.
func planPath(g *graph.Graph, traits graph.Traits, indices []int, start time.Time) ([]scheduler.Waypoint, error) {
	for _, idx := range indices {
		if !g.HasWaypoint(idx) {
			return nil, fmt.Errorf("%w: %d", graph.ErrUnknownWaypoint, idx)
		}
	}

	plan := make([]scheduler.Waypoint, 0, len(indices))
	at := start
	for i, idx := range indices {
		wp := g.Waypoint(idx)
		yaw := heading(g, indices, i)
		step := scheduler.Waypoint{
			Time:     at,
			Position: scheduler.Position{X: wp.Location.X, Y: wp.Location.Y, Yaw: yaw},
		}
		gi := idx
		step.GraphIndex = &gi

		if i > 0 {
			prev := plan[i-1]
			lane, ok := g.LaneFrom(indices[i-1], idx)
			if !ok {
				return nil, fmt.Errorf("no lane from %s to %s",
					g.Waypoint(indices[i-1]).DisplayName(), wp.DisplayName())
			}
			step.ApproachLanes = []int{lane.Index}
			at = at.Add(traits.TravelTime(prev.Position.Point(), prev.Position.Yaw, wp.Location, yaw))
			step.Time = at
		}
		plan = append(plan, step)
	}
	return plan, nil
}

// heading is the direction of travel at step i: toward the next waypoint, or
// along the last segment at the end of the path.
func heading(g *graph.Graph, indices []int, i int) float64 {
	var from, to graph.Vec2
	switch {
	case i+1 < len(indices):
		from, to = g.Waypoint(indices[i]).Location, g.Waypoint(indices[i+1]).Location
	case i > 0:
		from, to = g.Waypoint(indices[i-1]).Location, g.Waypoint(indices[i]).Location
	default:
		return 0
	}
	d := to.Sub(from)
	if d.Norm() == 0 {
		return 0
	}
	return math.Atan2(d.Y, d.X)
}

// resolveWaypoints maps waypoint names to graph indices.
func resolveWaypoints(g *graph.Graph, names []string) ([]int, error) {
	indices := make([]int, 0, len(names))
	for _, name := range names {
		wp, ok := g.FindWaypoint(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", graph.ErrUnknownWaypoint, name)
		}
		indices = append(indices, wp.Index)
	}
	return indices, nil
}

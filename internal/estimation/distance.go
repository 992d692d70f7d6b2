package estimation

import (
	"fmt"

	"fleet-adapter/internal/graph"
	"fleet-adapter/internal/models"
)

// FeatureKind tells which kind of graph element a Distance refers to.
type FeatureKind int

const (
	FeatureWaypoint FeatureKind = iota
	FeatureLane
)

func (k FeatureKind) String() string {
	if k == FeatureLane {
		return "lane"
	}
	return "waypoint"
}

// Distance is the closest graph feature to a location.
type Distance struct {
	Value float64
	Index int
	Kind  FeatureKind
}

// DistanceFromGraph finds the waypoint or lane closest to loc. Only waypoints
// on loc's map, and lanes with at least one endpoint on it, are considered.
// Lane distance is measured to the projection of loc clamped onto the lane
// segment. Waypoints win ties. ok is false when nothing is on the map.
func DistanceFromGraph(g *graph.Graph, loc models.Location) (best Distance, ok bool) {
	p := graph.Vec2{X: loc.X, Y: loc.Y}

	for i := 0; i < g.NumWaypoints(); i++ {
		wp := g.Waypoint(i)
		if wp.Map != loc.LevelName {
			continue
		}
		dist := wp.Location.Sub(p).Norm()
		if !ok || dist < best.Value {
			best = Distance{Value: dist, Index: i, Kind: FeatureWaypoint}
			ok = true
		}
	}

	for i := 0; i < g.NumLanes(); i++ {
		lane := g.Lane(i)
		wp0 := g.Waypoint(lane.Entry.Waypoint)
		wp1 := g.Waypoint(lane.Exit.Waypoint)
		if wp0.Map != loc.LevelName && wp1.Map != loc.LevelName {
			continue
		}
		if wp1.Location.Sub(wp0.Location).Norm() < 1e-8 {
			continue
		}
		dist, _ := graph.DistanceToSegment(p, wp0.Location, wp1.Location)
		if !ok || dist < best.Value {
			best = Distance{Value: dist, Index: i, Kind: FeatureLane}
			ok = true
		}
	}

	return best, ok
}

// Hint describes the closest graph feature to loc for diagnostics.
func Hint(g *graph.Graph, loc models.Location) string {
	d, ok := DistanceFromGraph(g, loc)
	if !ok {
		return fmt.Sprintf("None of the waypoints in the graph are on a map called [%s].", loc.LevelName)
	}
	if d.Kind == FeatureLane {
		lane := g.Lane(d.Index)
		return fmt.Sprintf(
			"The closest lane on the navigation graph [%d] connects waypoint [%s] to [%s] and is a distance of [%.3fm] from the robot.",
			d.Index,
			g.Waypoint(lane.Entry.Waypoint).DisplayName(),
			g.Waypoint(lane.Exit.Waypoint).DisplayName(),
			d.Value)
	}
	return fmt.Sprintf(
		"The closest waypoint on the navigation graph [%s] is a distance of [%.3fm] from the robot.",
		g.Waypoint(d.Index).DisplayName(), d.Value)
}

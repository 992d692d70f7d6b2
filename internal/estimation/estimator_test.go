package estimation

import (
	"math"
	"strings"
	"testing"
	"time"

	"fleet-adapter/internal/graph"
	"fleet-adapter/internal/models"
	"fleet-adapter/internal/scheduler"
)

type positionCall struct {
	pos    scheduler.Position
	anchor scheduler.Anchor
}

type recordingUpdater struct {
	positions []positionCall
}

func (u *recordingUpdater) UpdateBattery(float64) {}
func (u *recordingUpdater) UpdatePosition(pos scheduler.Position, anchor scheduler.Anchor) {
	u.positions = append(u.positions, positionCall{pos, anchor})
}
func (u *recordingUpdater) Interrupted()                   {}
func (u *recordingUpdater) ScheduleUpdate(scheduler.Route) {}

func (u *recordingUpdater) last(t *testing.T) positionCall {
	t.Helper()
	if len(u.positions) == 0 {
		t.Fatal("Expected a position update")
	}
	return u.positions[len(u.positions)-1]
}

func twoWaypointGraph(withLane bool) *graph.Graph {
	g := graph.New()
	g.AddWaypoint("L1", graph.Vec2{X: 0, Y: 0})
	g.AddWaypoint("L1", graph.Vec2{X: 10, Y: 0})
	if withLane {
		g.AddSimpleLane(0, 1)
	}
	return g
}

func TestDistanceFromGraph(t *testing.T) {
	loc := models.Location{X: 4, Y: 0, LevelName: "L1"}

	t.Run("nearest waypoint without lanes", func(t *testing.T) {
		d, ok := DistanceFromGraph(twoWaypointGraph(false), loc)
		if !ok {
			t.Fatal("Expected a feature")
		}
		if d.Kind != FeatureWaypoint || d.Index != 0 || math.Abs(d.Value-4) > 1e-9 {
			t.Errorf("Expected waypoint 0 at distance 4, got %+v", d)
		}
	})

	t.Run("lane projection beats waypoint", func(t *testing.T) {
		d, ok := DistanceFromGraph(twoWaypointGraph(true), loc)
		if !ok {
			t.Fatal("Expected a feature")
		}
		if d.Kind != FeatureLane || d.Index != 0 || d.Value != 0 {
			t.Errorf("Expected lane 0 at distance 0, got %+v", d)
		}
	})

	t.Run("other map", func(t *testing.T) {
		if _, ok := DistanceFromGraph(twoWaypointGraph(true), models.Location{X: 4, LevelName: "L2"}); ok {
			t.Error("Expected no feature on an unknown map")
		}
	})

	t.Run("projection clamps to lane ends", func(t *testing.T) {
		g := twoWaypointGraph(true)
		d, _ := DistanceFromGraph(g, models.Location{X: 13, Y: 4, LevelName: "L1"})
		if math.Abs(d.Value-5) > 1e-9 {
			t.Errorf("Expected distance 5 to the lane end, got %+v", d)
		}
	})
}

func TestHint(t *testing.T) {
	g := twoWaypointGraph(false)
	g.SetWaypointName(0, "start")

	if h := Hint(g, models.Location{X: 4, LevelName: "L1"}); !strings.Contains(h, "[start]") {
		t.Errorf("Expected hint to name waypoint start, got %q", h)
	}
	if h := Hint(g, models.Location{LevelName: "B3"}); !strings.Contains(h, "[B3]") {
		t.Errorf("Expected hint to name the missing map, got %q", h)
	}

	g = twoWaypointGraph(true)
	if h := Hint(g, models.Location{X: 4, Y: 1, LevelName: "L1"}); !strings.Contains(h, "lane on the navigation graph [0]") {
		t.Errorf("Expected lane hint, got %q", h)
	}
}

func TestEstimateStateRaw(t *testing.T) {
	u := &recordingUpdater{}
	e := New(twoWaypointGraph(true), graph.DefaultTraits(), 2, u)
	ts := &TravelState{}

	e.EstimateState(models.Location{X: 4, Y: 0.2, LevelName: "L1"}, ts)
	if got := u.last(t).anchor; got.Kind != scheduler.AnchorLanes || len(got.Lanes) != 1 || got.Lanes[0] != 0 {
		t.Errorf("Expected lane anchor [0], got %+v", got)
	}

	noLanes := New(twoWaypointGraph(false), graph.DefaultTraits(), 2, u)
	noLanes.EstimateState(models.Location{X: 10.2, Y: 0.1, LevelName: "L1"}, ts)
	if got := u.last(t).anchor; got.Kind != scheduler.AnchorWaypoint || got.Waypoint != 1 {
		t.Errorf("Expected waypoint anchor 1, got %+v", got)
	}
	if wp, ok := ts.LastKnownWaypoint(); !ok || wp != 1 {
		t.Errorf("Expected last known waypoint 1, got %d ok=%v", wp, ok)
	}

	noLanes.EstimateState(models.Location{X: 7, Y: 0, LevelName: "L1"}, ts)
	if got := u.last(t).anchor; got.Kind != scheduler.AnchorTowardWaypoint || got.Waypoint != 1 {
		t.Errorf("Expected toward-waypoint anchor 1, got %+v", got)
	}

	e.EstimateState(models.Location{X: 1, Y: 1, LevelName: "nowhere"}, ts)
	if got := u.last(t).anchor; got.Kind != scheduler.AnchorOffGraph || got.Map != "nowhere" {
		t.Errorf("Expected off-graph anchor on map nowhere, got %+v", got)
	}
}

func intPtr(i int) *int { return &i }

// straightPlan is A(0,0) -> B(5,0) -> C(10,0) over lanes 0 (A->B) and 1 (B->C).
func straightPlan() (*graph.Graph, []scheduler.Waypoint) {
	g := graph.New()
	g.AddWaypoint("L1", graph.Vec2{X: 0, Y: 0})
	g.AddWaypoint("L1", graph.Vec2{X: 5, Y: 0})
	g.AddWaypoint("L1", graph.Vec2{X: 10, Y: 0})
	g.AddSimpleLane(0, 1)
	g.AddSimpleLane(1, 2)

	start := time.Unix(1000, 0)
	plan := []scheduler.Waypoint{
		{Time: start, Position: scheduler.Position{X: 0}, GraphIndex: intPtr(0)},
		{Time: start.Add(10 * time.Second), Position: scheduler.Position{X: 5}, GraphIndex: intPtr(1), ApproachLanes: []int{0}},
		{Time: start.Add(20 * time.Second), Position: scheduler.Position{X: 10}, GraphIndex: intPtr(2), ApproachLanes: []int{1}},
	}
	return g, plan
}

func TestEstimatePathTraveling(t *testing.T) {
	g, plan := straightPlan()

	t.Run("on plan", func(t *testing.T) {
		u := &recordingUpdater{}
		e := New(g, graph.DefaultTraits(), 2, u)
		ts := &TravelState{}
		ts.Reset(plan)

		state := models.RobotState{
			Location: models.Location{T: time.Unix(1005, 0), X: 2, Y: 0, LevelName: "L1"},
			Path:     []models.Location{{X: 5}, {X: 10}},
		}
		progress := e.EstimatePathTraveling(state, ts)
		if progress.OffPlan {
			t.Fatal("Expected an on-plan estimate")
		}
		if progress.TargetIndex != 1 {
			t.Errorf("Expected target index 1, got %d", progress.TargetIndex)
		}
		if target, ok := ts.Target(); !ok || target != 1 {
			t.Errorf("Expected travel target 1, got %d ok=%v", target, ok)
		}
		if progress.Remaining <= 0 {
			t.Errorf("Expected positive remaining time, got %v", progress.Remaining)
		}
		anchor := u.last(t).anchor
		if anchor.Kind != scheduler.AnchorLanes || anchor.Lanes[0] != 0 {
			t.Errorf("Expected approach lane anchor [0], got %+v", anchor)
		}
		if wp, ok := ts.LastKnownWaypoint(); !ok || wp != 0 {
			t.Errorf("Expected last known waypoint 0, got %d ok=%v", wp, ok)
		}
	})

	t.Run("off plan", func(t *testing.T) {
		u := &recordingUpdater{}
		e := New(g, graph.DefaultTraits(), 2, u)
		ts := &TravelState{}
		ts.Reset(plan)

		state := models.RobotState{
			Location: models.Location{X: 2, Y: 9, LevelName: "L1"},
			Path:     []models.Location{{X: 5}, {X: 10}},
		}
		progress := e.EstimatePathTraveling(state, ts)
		if !progress.OffPlan {
			t.Fatal("Expected an off-plan estimate")
		}
		if target, ok := ts.Target(); !ok || target != 1 {
			t.Errorf("Expected target index 1 to be kept while off plan, got %d ok=%v", target, ok)
		}
		if len(u.positions) != 1 {
			t.Errorf("Expected exactly one raw position update, got %d", len(u.positions))
		}
	})

	t.Run("longer remaining path than plan", func(t *testing.T) {
		u := &recordingUpdater{}
		e := New(g, graph.DefaultTraits(), 2, u)
		ts := &TravelState{}
		ts.Reset(plan[:1])

		state := models.RobotState{
			Location: models.Location{X: 0, LevelName: "L1"},
			Path:     []models.Location{{X: 5}, {X: 10}},
		}
		if progress := e.EstimatePathTraveling(state, ts); !progress.OffPlan {
			t.Error("Expected off-plan for a path longer than the plan")
		}
		if _, ok := ts.Target(); ok {
			t.Error("Expected no target index")
		}
	})
}

func TestCheckPathFinish(t *testing.T) {
	g, plan := straightPlan()
	u := &recordingUpdater{}
	e := New(g, graph.DefaultTraits(), 2, u)
	ts := &TravelState{}
	ts.Reset(plan)

	e.CheckPathFinish(models.Location{X: 10.1, LevelName: "L1"}, ts)
	if anchor := u.last(t).anchor; anchor.Kind != scheduler.AnchorWaypoint || anchor.Waypoint != 2 {
		t.Errorf("Expected waypoint anchor 2, got %+v", anchor)
	}

	e.CheckPathFinish(models.Location{X: 8, LevelName: "L1"}, ts)
	if anchor := u.last(t).anchor; anchor.Kind != scheduler.AnchorTowardWaypoint || anchor.Waypoint != 2 {
		t.Errorf("Expected toward-waypoint anchor 2, got %+v", anchor)
	}
	if wp, ok := ts.LastKnownWaypoint(); !ok || wp != 2 {
		t.Errorf("Expected last known waypoint 2, got %d", wp)
	}
}

package graph

import (
	"errors"
	"math"
	"testing"
)

const sampleBuilding = `
building_name: test_building
levels:
  L1:
    vertices:
    - [0.0, 0.0, {name: origin, is_holding_point: true}]
    - [10.0, 0.0, {name: east}]
    - [10.0, 5.0, east_dock]
    lanes:
    - [0, 1, {bidirectional: true}]
    - [1, 2, {dock_name: dock_east}]
  L2:
    vertices:
    - [3.0, 4.0]
    - [3.0, 8.0, {is_charger: true, name: charger}]
    lanes:
    - [0, 1, {door_name: door_l2, bidirectional: true}]
`

func TestParseBuilding(t *testing.T) {
	g, err := Parse([]byte(sampleBuilding))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	t.Run("waypoints", func(t *testing.T) {
		if g.NumWaypoints() != 5 {
			t.Fatalf("Expected 5 waypoints, got %d", g.NumWaypoints())
		}
		origin, ok := g.FindWaypoint("origin")
		if !ok {
			t.Fatal("Expected waypoint 'origin'")
		}
		if origin.Index != 0 || origin.Map != "L1" || !origin.HoldingPoint {
			t.Errorf("Unexpected origin waypoint: %+v", origin)
		}
		dock, ok := g.FindWaypoint("east_dock")
		if !ok || dock.Location != (Vec2{10, 5}) {
			t.Errorf("Expected scalar-named waypoint east_dock at (10,5), got %+v", dock)
		}
		charger, ok := g.FindWaypoint("charger")
		if !ok || charger.Index != 4 || charger.Map != "L2" || !charger.ChargerSpot {
			t.Errorf("Unexpected charger waypoint: %+v", charger)
		}
		if got := g.Waypoint(3).DisplayName(); got != "#3" {
			t.Errorf("Expected anonymous display name #3, got %s", got)
		}
	})

	t.Run("lanes", func(t *testing.T) {
		// L1: 0->1, 1->0, 1->2. L2: 3->4, 4->3.
		if g.NumLanes() != 5 {
			t.Fatalf("Expected 5 lanes, got %d", g.NumLanes())
		}
		back, ok := g.LaneFrom(1, 0)
		if !ok || back.Index != 1 {
			t.Errorf("Expected reverse lane 1->0 at index 1, got %+v ok=%v", back, ok)
		}
		if _, ok := g.LaneFrom(2, 1); ok {
			t.Error("Dock lane is not bidirectional")
		}
		door, _ := g.LaneFrom(3, 4)
		if _, ok := door.Entry.Event.(DoorOpen); !ok {
			t.Errorf("Expected DoorOpen entry event, got %T", door.Entry.Event)
		}
		if _, ok := door.Exit.Event.(DoorClose); !ok {
			t.Errorf("Expected DoorClose exit event, got %T", door.Exit.Event)
		}
	})

	t.Run("dock lookup", func(t *testing.T) {
		wp, ok := g.FindDockEntry("dock_east")
		if !ok || wp != 1 {
			t.Errorf("Expected dock_east entry at waypoint 1, got %d ok=%v", wp, ok)
		}
		if _, ok := g.FindDockEntry("missing"); ok {
			t.Error("Expected no entry for an unknown dock")
		}
	})

	t.Run("keys", func(t *testing.T) {
		keys := g.Keys()
		want := []string{"charger", "east", "east_dock", "origin"}
		if len(keys) != len(want) {
			t.Fatalf("Expected keys %v, got %v", want, keys)
		}
		for i := range want {
			if keys[i] != want[i] {
				t.Errorf("Expected key[%d] = %s, got %s", i, want[i], keys[i])
			}
		}
	})
}

func TestParseRejectsBadGraphs(t *testing.T) {
	cases := map[string]string{
		"no levels":     "building_name: x\n",
		"lane overflow": "levels:\n  L1:\n    vertices:\n    - [0, 0]\n    lanes:\n    - [0, 3]\n",
		"short vertex":  "levels:\n  L1:\n    vertices:\n    - [0]\n",
		"duplicate":     "levels:\n  L1:\n    vertices:\n    - [0, 0, a]\n    - [1, 0, a]\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc)); err == nil {
				t.Error("Expected an error")
			}
		})
	}

	_, err := Parse([]byte(cases["lane overflow"]))
	if !errors.Is(err, ErrUnknownWaypoint) {
		t.Errorf("Expected ErrUnknownWaypoint, got %v", err)
	}
}

func TestDistanceToSegment(t *testing.T) {
	a, b := Vec2{0, 0}, Vec2{10, 0}

	tests := []struct {
		p         Vec2
		dist      float64
		alongWant float64
	}{
		{Vec2{4, 0}, 0, 4},
		{Vec2{4, 3}, 3, 4},
		{Vec2{-3, 4}, 5, 0},
		{Vec2{13, 4}, 5, 10},
	}
	for _, tt := range tests {
		dist, along := DistanceToSegment(tt.p, a, b)
		if math.Abs(dist-tt.dist) > 1e-9 || math.Abs(along-tt.alongWant) > 1e-9 {
			t.Errorf("DistanceToSegment(%v) = (%v, %v), want (%v, %v)", tt.p, dist, along, tt.dist, tt.alongWant)
		}
	}
}

func TestEventHelpers(t *testing.T) {
	if name, ok := DockName(Dock{Name: "d1"}); !ok || name != "d1" {
		t.Errorf("Expected dock name d1, got %q ok=%v", name, ok)
	}
	if _, ok := DockName(nil); ok {
		t.Error("nil event is not a dock")
	}
	if _, ok := DockName(LiftMove{Lift: "l1"}); ok {
		t.Error("LiftMove is not a dock")
	}
	if d := EventDuration(Wait{Duration: 3}); d != 3 {
		t.Errorf("Expected wait duration 3, got %v", d)
	}
}

func TestTravelTime(t *testing.T) {
	tr := Traits{LinearVelocity: 1, AngularVelocity: 1}
	got := tr.TravelTime(Vec2{0, 0}, 0, Vec2{3, 4}, math.Pi/2)
	want := 5 + math.Pi/2
	if math.Abs(got.Seconds()-want) > 1e-6 {
		t.Errorf("Expected %.4fs, got %v", want, got)
	}
}

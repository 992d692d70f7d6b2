package traffic

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"fleet-adapter/internal/graph"
	"fleet-adapter/internal/models"
	"fleet-adapter/internal/scheduler"
	"fleet-adapter/internal/utils"
)

type memoryStore struct {
	mu        sync.Mutex
	snapshots map[string]models.RobotSnapshot
	closed    map[string][]int
	fail      bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{snapshots: make(map[string]models.RobotSnapshot), closed: make(map[string][]int)}
}

func (m *memoryStore) SaveSnapshot(_ context.Context, snap *models.RobotSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("store down")
	}
	m.snapshots[snap.Fleet+"/"+snap.Robot] = *snap
	return nil
}

func (m *memoryStore) SaveClosedLanes(_ context.Context, fleet string, lanes []int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed[fleet] = append([]int(nil), lanes...)
	return nil
}

func (m *memoryStore) snapshot(key string) (models.RobotSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snapshots[key]
	return snap, ok
}

func lineGraph() *graph.Graph {
	g := graph.New()
	g.AddWaypoint("L1", graph.Vec2{X: 0})
	g.AddWaypoint("L1", graph.Vec2{X: 10})
	g.AddSimpleLane(0, 1)
	return g
}

func TestComputeAdmissionStarts(t *testing.T) {
	s := NewScheduler("tinyRobot", lineGraph(), 1.5, newMemoryStore(), utils.SystemClock)
	at := time.Unix(100, 0)

	t.Run("on a waypoint", func(t *testing.T) {
		starts := s.ComputeAdmissionStarts("L1", scheduler.Position{X: -0.1, Yaw: 0.3}, at)
		if len(starts) != 1 || starts[0].Waypoint != 0 || starts[0].Location != nil || starts[0].Lane != nil {
			t.Fatalf("Expected a start at waypoint 0, got %+v", starts)
		}
		if starts[0].Orientation != 0.3 || !starts[0].Time.Equal(at) {
			t.Errorf("Expected orientation and time to be carried, got %+v", starts[0])
		}
	})

	t.Run("on a lane", func(t *testing.T) {
		starts := s.ComputeAdmissionStarts("L1", scheduler.Position{X: 4, Y: 1}, at)
		if len(starts) != 1 || starts[0].Lane == nil || *starts[0].Lane != 0 || starts[0].Waypoint != 1 {
			t.Fatalf("Expected a start on lane 0 toward waypoint 1, got %+v", starts)
		}
		if starts[0].Location == nil || starts[0].Location.X != 4 {
			t.Errorf("Expected the reported location, got %+v", starts[0].Location)
		}
	})

	t.Run("too far", func(t *testing.T) {
		if starts := s.ComputeAdmissionStarts("L1", scheduler.Position{X: 4, Y: 3}, at); len(starts) != 0 {
			t.Errorf("Expected no starts, got %+v", starts)
		}
	})

	t.Run("unknown map", func(t *testing.T) {
		if starts := s.ComputeAdmissionStarts("L9", scheduler.Position{}, at); len(starts) != 0 {
			t.Errorf("Expected no starts, got %+v", starts)
		}
	})
}

func TestUpdaterWritesSnapshots(t *testing.T) {
	store := newMemoryStore()
	s := NewScheduler("tinyRobot", lineGraph(), 1.5, store, utils.SystemClock)

	var got scheduler.RobotUpdater
	s.Register("r1", scheduler.Profile{FootprintRadius: 0.5}, []scheduler.Start{{Waypoint: 1}}, func(u scheduler.RobotUpdater) { got = u })
	if got == nil {
		t.Fatal("Expected onReady to be called during Register")
	}

	got.UpdateBattery(0.75)
	got.UpdatePosition(scheduler.Position{X: 4, Y: 0.2}, scheduler.Anchor{Kind: scheduler.AnchorLanes, Map: "L1", Lanes: []int{0}})
	got.Interrupted()
	got.ScheduleUpdate(scheduler.Route{Map: "L1", Trajectory: make([]scheduler.TrajectoryPoint, 3)})
	if n := s.writer.pending(); n != 1 {
		t.Fatalf("Expected updates to coalesce into one pending write, got %d", n)
	}
	s.writer.flush()

	snap, ok := store.snapshot("tinyRobot/r1")
	if !ok {
		t.Fatal("Expected a stored snapshot")
	}
	if snap.Battery != 0.75 || snap.X != 4 || snap.Anchor != "lanes" || !reflect.DeepEqual(snap.Lanes, []int{0}) {
		t.Errorf("Unexpected snapshot %+v", snap)
	}
	if snap.Interrupted != 1 || snap.RouteMap != "L1" || snap.RoutePoints != 3 || snap.Waypoint != -1 {
		t.Errorf("Unexpected snapshot %+v", snap)
	}

	u, ok := s.Updater("r1")
	if !ok || u.Snapshot().Battery != 0.75 {
		t.Errorf("Expected updater lookup to return the live handle")
	}

	got.UpdatePosition(scheduler.Position{X: 10}, scheduler.Anchor{Kind: scheduler.AnchorWaypoint, Map: "L1", Waypoint: 1})
	s.writer.flush()
	if snap, _ := store.snapshot("tinyRobot/r1"); snap.Waypoint != 1 || snap.Lanes != nil {
		t.Errorf("Expected waypoint anchor to replace lanes, got %+v", snap)
	}
}

func TestStoreFailureDoesNotPanic(t *testing.T) {
	store := newMemoryStore()
	store.fail = true
	s := NewScheduler("tinyRobot", lineGraph(), 1.5, store, utils.SystemClock)
	s.Register("r1", scheduler.Profile{}, nil, func(u scheduler.RobotUpdater) {
		u.UpdateBattery(0.5)
	})
	s.writer.flush()
	u, _ := s.Updater("r1")
	if u.Snapshot().Battery != 0.5 {
		t.Error("Expected the in-memory snapshot to be kept when the store fails")
	}
}

func TestSetClosedLanes(t *testing.T) {
	store := newMemoryStore()
	s := NewScheduler("tinyRobot", lineGraph(), 1.5, store, utils.SystemClock)
	s.SetClosedLanes([]int{0, 3})
	s.writer.flush()
	if !reflect.DeepEqual(store.closed["tinyRobot"], []int{0, 3}) || !reflect.DeepEqual(s.ClosedLanes(), []int{0, 3}) {
		t.Errorf("Expected closed lanes [0 3], got %v / %v", store.closed["tinyRobot"], s.ClosedLanes())
	}
}

// gatedStore blocks every write until open is closed.
type gatedStore struct {
	*memoryStore
	open    chan struct{}
	entered chan struct{}
	once    sync.Once
}

func (g *gatedStore) SaveSnapshot(ctx context.Context, snap *models.RobotSnapshot) error {
	g.once.Do(func() { close(g.entered) })
	<-g.open
	return g.memoryStore.SaveSnapshot(ctx, snap)
}

func TestSlowStoreDoesNotBlockUpdates(t *testing.T) {
	store := &gatedStore{memoryStore: newMemoryStore(), open: make(chan struct{}), entered: make(chan struct{})}
	s := NewScheduler("tinyRobot", lineGraph(), 1.5, store, utils.SystemClock)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()

	var u scheduler.RobotUpdater
	s.Register("r1", scheduler.Profile{}, nil, func(ru scheduler.RobotUpdater) { u = ru })
	u.UpdateBattery(0.1)
	<-store.entered

	updated := make(chan struct{})
	go func() {
		defer close(updated)
		for i := 2; i <= 9; i++ {
			u.UpdateBattery(float64(i) / 10)
		}
		s.SetClosedLanes([]int{0})
	}()
	select {
	case <-updated:
	case <-time.After(time.Second):
		t.Fatal("Expected updates to return while the store is blocked")
	}

	close(store.open)
	cancel()
	<-done

	snap, ok := store.snapshot("tinyRobot/r1")
	if !ok || snap.Battery != 0.9 {
		t.Errorf("Expected the latest battery to be stored, got %+v", snap)
	}
	store.mu.Lock()
	closed := store.closed["tinyRobot"]
	store.mu.Unlock()
	if !reflect.DeepEqual(closed, []int{0}) {
		t.Errorf("Expected closed lanes [0] after shutdown, got %v", closed)
	}
}

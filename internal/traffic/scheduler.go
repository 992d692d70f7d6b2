// Package traffic is a standalone scheduler collaborator. It admits robots
// that report close to the navigation graph and keeps the latest position,
// battery and route the fleet adapter pushes for each robot. A background
// writer mirrors that state into a snapshot store.
package traffic

import (
	"context"
	"sync"
	"time"

	"fleet-adapter/internal/estimation"
	"fleet-adapter/internal/graph"
	"fleet-adapter/internal/models"
	"fleet-adapter/internal/scheduler"
	"fleet-adapter/internal/utils"
)

// SnapshotStore persists what the scheduler knows about robots.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap *models.RobotSnapshot) error
	SaveClosedLanes(ctx context.Context, fleet string, lanes []int) error
}

const storeTimeout = time.Second

// Scheduler admits robots within a radius of the graph.
type Scheduler struct {
	mu sync.Mutex

	fleet  string
	graph  *graph.Graph
	radius float64
	writer *writer
	clock  utils.Clock

	updaters map[string]*Updater
	closed   []int
}

func NewScheduler(fleet string, g *graph.Graph, admissionRadius float64, store SnapshotStore, clock utils.Clock) *Scheduler {
	if clock == nil {
		clock = utils.SystemClock
	}
	return &Scheduler{
		fleet:    fleet,
		graph:    g,
		radius:   admissionRadius,
		writer:   newWriter(fleet, store),
		clock:    clock,
		updaters: make(map[string]*Updater),
	}
}

// ComputeAdmissionStarts returns a start on the closest graph feature when it
// lies within the admission radius of pos.
func (s *Scheduler) ComputeAdmissionStarts(mapName string, pos scheduler.Position, at time.Time) []scheduler.Start {
	loc := models.Location{X: pos.X, Y: pos.Y, Yaw: pos.Yaw, LevelName: mapName}
	d, ok := estimation.DistanceFromGraph(s.graph, loc)
	if !ok || d.Value > s.radius {
		return nil
	}

	start := scheduler.Start{Time: at, Orientation: pos.Yaw}
	p := pos.Point()
	switch d.Kind {
	case estimation.FeatureWaypoint:
		start.Waypoint = d.Index
		if d.Value > estimation.WaypointSnapDistance {
			start.Location = &p
		}
	case estimation.FeatureLane:
		lane := s.graph.Lane(d.Index)
		idx := d.Index
		start.Waypoint = lane.Exit.Waypoint
		start.Lane = &idx
		start.Location = &p
	}
	return []scheduler.Start{start}
}

// Register creates the robot's updater and hands it to onReady before
// returning.
func (s *Scheduler) Register(robot string, profile scheduler.Profile, starts []scheduler.Start, onReady scheduler.ReadyFunc) {
	u := &Updater{
		fleet:   s.fleet,
		robot:   robot,
		profile: profile,
		writer:  s.writer,
		clock:   s.clock,
		snap:    models.RobotSnapshot{Fleet: s.fleet, Robot: robot, Waypoint: -1},
	}
	if len(starts) > 0 {
		u.snap.Waypoint = starts[0].Waypoint
	}

	s.mu.Lock()
	s.updaters[robot] = u
	s.mu.Unlock()

	utils.Logger.WithFields(utils.RobotFields(s.fleet, robot)).Infof("Registered robot with %d start(s)", len(starts))
	onReady(u)
}

// SetClosedLanes records the fleet's closed lanes and queues them for the
// store.
func (s *Scheduler) SetClosedLanes(closed []int) {
	s.mu.Lock()
	s.closed = append([]int(nil), closed...)
	s.mu.Unlock()
	s.writer.enqueueClosed(closed)
}

// Run writes queued snapshots and closed lanes to the store until ctx is
// cancelled. Writes queued before Run starts are applied first.
func (s *Scheduler) Run(ctx context.Context) {
	s.writer.run(ctx)
}

func (s *Scheduler) ClosedLanes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.closed...)
}

// Updater returns the handle of a registered robot.
func (s *Scheduler) Updater(robot string) (*Updater, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.updaters[robot]
	return u, ok
}

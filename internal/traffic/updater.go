package traffic

import (
	"sync"

	"fleet-adapter/internal/models"
	"fleet-adapter/internal/scheduler"
	"fleet-adapter/internal/utils"
)

// Updater is the per-robot scheduler handle. Updates stay in memory and are
// queued for the snapshot store, so callers never wait on it.
type Updater struct {
	mu sync.Mutex

	fleet   string
	robot   string
	profile scheduler.Profile
	writer  *writer
	clock   utils.Clock
	snap    models.RobotSnapshot
	route   scheduler.Route
}

func (u *Updater) UpdateBattery(fraction float64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.snap.Battery = fraction
	u.save()
}

func (u *Updater) UpdatePosition(pos scheduler.Position, anchor scheduler.Anchor) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.snap.X, u.snap.Y, u.snap.Yaw = pos.X, pos.Y, pos.Yaw
	u.snap.Map = anchor.Map
	u.snap.Anchor = anchor.Kind.String()
	u.snap.Lanes = nil
	u.snap.Waypoint = -1
	switch anchor.Kind {
	case scheduler.AnchorWaypoint, scheduler.AnchorTowardWaypoint:
		u.snap.Waypoint = anchor.Waypoint
	case scheduler.AnchorLanes:
		u.snap.Lanes = append([]int(nil), anchor.Lanes...)
	}
	u.save()
}

func (u *Updater) Interrupted() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.snap.Interrupted++
	utils.Logger.WithFields(utils.RobotFields(u.fleet, u.robot)).Warnf("Robot interrupted (%d so far); its plan needs replanning", u.snap.Interrupted)
	u.save()
}

func (u *Updater) ScheduleUpdate(route scheduler.Route) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.route = route
	u.snap.RouteMap = route.Map
	u.snap.RoutePoints = len(route.Trajectory)
	u.save()
}

// Snapshot returns the latest state held for the robot.
func (u *Updater) Snapshot() models.RobotSnapshot {
	u.mu.Lock()
	defer u.mu.Unlock()
	snap := u.snap
	snap.Lanes = append([]int(nil), u.snap.Lanes...)
	return snap
}

func (u *Updater) Route() scheduler.Route {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.route
}

// save queues the snapshot for the store. Callers hold u.mu.
func (u *Updater) save() {
	u.snap.UpdatedAt = u.clock.Now()
	u.writer.enqueueSnapshot(u.snap)
}

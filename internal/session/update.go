package session

import (
	"fmt"
	"time"

	"fleet-adapter/internal/closure"
	"fleet-adapter/internal/graph"
	"fleet-adapter/internal/models"
	"fleet-adapter/internal/scheduler"
	"fleet-adapter/internal/utils"
)

// UpdateState processes one state report from the robot.
func (s *Session) UpdateState(state models.RobotState) {
	s.lock()
	defer s.unlock()

	last := state
	s.lastState = &last
	s.updateBattery(state.Battery)

	// The target is re-derived from every report.
	s.travel.ClearTarget()

	c := s.active
	switch {
	case c == nil:
		s.estimator.EstimateState(state.Location, &s.travel)
	case c.kind == KindPath:
		s.updatePath(c, state)
	case c.kind == KindDock:
		s.updateDock(c, state)
	}
}

func (s *Session) updateBattery(fraction float64) {
	if fraction < 0 || fraction > 1 {
		utils.Logger.WithFields(s.fields()).Errorf(
			"Battery fraction %.3f reported by the robot is outside of [0, 1]; battery state not updated", fraction)
		return
	}
	s.updater.UpdateBattery(fraction)
}

func (s *Session) updatePath(c *activeCommand, state models.RobotState) {
	if state.TaskID != c.wireID {
		s.retransmitIfDue(c)
		s.estimator.EstimateState(state.Location, &s.travel)
		return
	}
	c.acknowledged = true

	if state.Mode == models.ModeAdapterError {
		if s.travel.Interrupted {
			return
		}
		utils.Logger.WithFields(s.fields()).Infof("Fleet driver reported interruption for task %d", c.taskID)
		s.travel.Interrupted = true
		s.transition(eventFault)
		s.estimator.EstimateState(state.Location, &s.travel)
		s.record(c, models.EventInterrupted, "adapter error")
		s.later(s.updater.Interrupted)
		return
	}

	if len(state.Path) == 0 {
		s.estimator.CheckPathFinish(state.Location, &s.travel)
		s.finish(c)
		return
	}

	progress := s.estimator.EstimatePathTraveling(state, &s.travel)
	if progress.OffPlan || c.onArrival == nil {
		return
	}
	arrival := c.onArrival
	s.later(func() { arrival(progress.TargetIndex, progress.Remaining, progress.Delay) })
}

func (s *Session) updateDock(c *activeCommand, state models.RobotState) {
	if state.TaskID != c.wireID {
		s.retransmitIfDue(c)
		s.estimator.EstimateState(state.Location, &s.travel)
		return
	}
	c.acknowledged = true

	if state.Mode != models.ModeDocking {
		s.estimator.EstimateWaypoint(state.Location, c.dockWaypoint, &s.travel)
		s.finish(c)
		return
	}

	now := s.opts.Clock.Now()
	if len(state.Path) == 0 || now.Sub(s.dockScheduleTime) <= s.opts.DockScheduleInterval {
		return
	}
	s.updater.ScheduleUpdate(dockRoute(s.traits, state, now))
	s.dockScheduleTime = now
}

// dockRoute interpolates a trajectory through the robot's current pose and
// the interim path it reports while docking.
func dockRoute(traits graph.Traits, state models.RobotState, now time.Time) scheduler.Route {
	loc := state.Location
	t := loc.T
	if t.IsZero() {
		t = now
	}

	prev := scheduler.Position{X: loc.X, Y: loc.Y, Yaw: loc.Yaw}
	route := scheduler.Route{
		Map:        loc.LevelName,
		Trajectory: []scheduler.TrajectoryPoint{{Time: t, Position: prev}},
	}
	for _, p := range state.Path {
		next := scheduler.Position{X: p.X, Y: p.Y, Yaw: p.Yaw}
		t = t.Add(traits.TravelTime(prev.Point(), prev.Yaw, next.Point(), next.Yaw))
		route.Trajectory = append(route.Trajectory, scheduler.TrajectoryPoint{Time: t, Position: next})
		prev = next
	}
	return route
}

// retransmitIfDue resends c when the retry interval has passed since it was
// last sent. Once the retransmission bound is reached the command is marked
// stalled and the scheduler is told the robot was interrupted.
func (s *Session) retransmitIfDue(c *activeCommand) {
	if c.stalled {
		return
	}
	now := s.opts.Clock.Now()
	due := c.lastSent.Add(s.opts.RetryInterval)
	if now.Before(due) {
		return
	}

	if s.opts.MaxRetransmits > 0 && c.retransmits >= s.opts.MaxRetransmits {
		c.stalled = true
		utils.Logger.WithFields(s.fields()).Errorf(
			"❌ Task %d (%s) still unacknowledged after %d retransmissions since %s; giving up",
			c.taskID, c.kind, c.retransmits, c.dispatched.Format(time.RFC3339))
		s.record(c, models.EventRetransmitStalled, fmt.Sprintf("%d retransmissions", c.retransmits))
		if c.kind == KindPath {
			s.travel.Interrupted = true
			s.transition(eventFault)
		}
		s.later(s.updater.Interrupted)
		return
	}

	// Keep the cadence anchored to the schedule unless a whole interval was missed.
	c.lastSent = due
	if now.Sub(due) >= s.opts.RetryInterval {
		c.lastSent = now
	}
	c.retransmits++
	utils.Logger.WithFields(s.fields()).Debugf("🔁 Retransmitting task %d (%s), attempt %d", c.taskID, c.kind, c.retransmits)
	s.send(c)
	s.record(c, models.EventRetransmitted, "")
}

// Tick runs the retransmission check for a command the robot has not yet
// acknowledged, without waiting for the next state report.
func (s *Session) Tick() {
	s.lock()
	defer s.unlock()

	if c := s.active; c != nil && !c.acknowledged {
		s.retransmitIfDue(c)
	}
}

// NewlyClosedLanes reacts to lanes that were just closed. closed is the
// complete set of closed lanes, delta included.
func (s *Session) NewlyClosedLanes(delta, closed closure.LaneSet) {
	s.lock()
	defer s.unlock()

	target, ok := s.travel.Target()
	if !ok {
		return
	}

	in := closure.Input{
		Plan:      s.travel.Waypoints,
		Target:    target,
		HasTarget: true,
	}
	if s.lastState != nil {
		loc := s.lastState.Location
		in.Pose = scheduler.Position{X: loc.X, Y: loc.Y, Yaw: loc.Yaw}
		in.Map = loc.LevelName
		in.HasPose = true
	}

	d := closure.Evaluate(s.graph, in, delta, closed)
	if d.Fallback != nil {
		s.updater.UpdatePosition(d.Fallback.Position, d.Fallback.Anchor)
	}
	if !d.Replan {
		return
	}

	utils.Logger.WithFields(s.fields()).Infof("Lane closure %v invalidates the current plan; requesting a replan", delta.Sorted())
	s.record(s.active, models.EventLanesClosed, fmt.Sprint(delta.Sorted()))
	s.later(s.updater.Interrupted)
}

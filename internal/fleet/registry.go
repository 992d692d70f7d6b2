// Package fleet owns the command sessions of one fleet: it admits robots the
// first time they report, routes their state reports and fans lane closures
// out to every session.
package fleet

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"fleet-adapter/internal/closure"
	"fleet-adapter/internal/estimation"
	"fleet-adapter/internal/graph"
	"fleet-adapter/internal/models"
	"fleet-adapter/internal/scheduler"
	"fleet-adapter/internal/session"
	"fleet-adapter/internal/utils"
)

// ErrUnknownRobot is returned when no session exists for a robot name.
var ErrUnknownRobot = errors.New("unknown robot")

// ClosedLanesPublisher announces the fleet's closed lanes to outside
// listeners.
type ClosedLanesPublisher interface {
	PublishClosedLanes(status models.ClosedLanes) error
}

type Options struct {
	Session session.Options
	Profile scheduler.Profile
	// ReadmissionInterval is the minimum time between admission attempts for
	// a robot that could not be admitted.
	ReadmissionInterval time.Duration
	// MaxReadmissions bounds retries after the first failed admission; 0
	// excludes the robot after one failure.
	MaxReadmissions int
}

type admissionRecord struct {
	attempts    int
	lastAttempt time.Time
}

// Registry is the fleet-wide view. The session map and the closed lane set
// are guarded by mu, which is never held while calling into a session or the
// scheduler. closureMu serializes lane requests end to end so statuses are
// published in the order the closed set changed.
type Registry struct {
	mu        sync.Mutex
	closureMu sync.Mutex

	name      string
	graph     *graph.Graph
	traits    graph.Traits
	scheduler scheduler.Scheduler
	transport session.Transport
	listener  ClosedLanesPublisher
	opts      Options

	sessions  map[string]*session.Session
	admitting map[string]bool
	rejected  map[string]*admissionRecord
	closed    closure.LaneSet
}

// NewRegistry creates an empty registry for fleet name. listener may be nil.
func NewRegistry(name string, g *graph.Graph, traits graph.Traits, sched scheduler.Scheduler, transport session.Transport, listener ClosedLanesPublisher, opts Options) *Registry {
	if opts.Session.Clock == nil {
		opts.Session.Clock = utils.SystemClock
	}
	return &Registry{
		name:      name,
		graph:     g,
		traits:    traits,
		scheduler: sched,
		transport: transport,
		listener:  listener,
		opts:      opts,
		sessions:  make(map[string]*session.Session),
		admitting: make(map[string]bool),
		rejected:  make(map[string]*admissionRecord),
		closed:    closure.NewLaneSet(),
	}
}

func (r *Registry) Name() string { return r.name }

func (r *Registry) Graph() *graph.Graph { return r.graph }

func (r *Registry) Traits() graph.Traits { return r.traits }

func (r *Registry) now() time.Time { return r.opts.Session.Clock.Now() }

func (r *Registry) record(robot, event, detail string) {
	if r.opts.Session.Recorder == nil {
		return
	}
	r.opts.Session.Recorder.Record(&models.FleetEvent{Fleet: r.name, Robot: robot, Event: event, Detail: detail})
}

// OnFleetState handles a fleet state message. Messages for other fleets are
// ignored.
func (r *Registry) OnFleetState(state models.FleetState) {
	if state.Name != r.name {
		utils.Logger.Debugf("Ignoring fleet state for fleet [%s]", state.Name)
		return
	}
	for _, robot := range state.Robots {
		r.OnState(robot)
	}
}

// OnState routes one robot report, admitting the robot first if it has not
// been seen before.
func (r *Registry) OnState(state models.RobotState) {
	r.mu.Lock()
	if s, ok := r.sessions[state.Name]; ok {
		r.mu.Unlock()
		s.UpdateState(state)
		return
	}
	if r.admitting[state.Name] || !r.admissionDue(state.Name) {
		r.mu.Unlock()
		return
	}
	r.admitting[state.Name] = true
	r.mu.Unlock()

	r.admit(state)
}

// admissionDue reports whether a robot may attempt admission now. Callers
// hold r.mu.
func (r *Registry) admissionDue(robot string) bool {
	rec, ok := r.rejected[robot]
	if !ok {
		return true
	}
	if rec.attempts > r.opts.MaxReadmissions {
		return false
	}
	return r.now().Sub(rec.lastAttempt) >= r.opts.ReadmissionInterval
}

func (r *Registry) admit(state models.RobotState) {
	loc := state.Location
	pos := scheduler.Position{X: loc.X, Y: loc.Y, Yaw: loc.Yaw}
	fields := utils.RobotFields(r.name, state.Name)

	starts := r.scheduler.ComputeAdmissionStarts(loc.LevelName, pos, r.now())
	if len(starts) == 0 {
		r.mu.Lock()
		delete(r.admitting, state.Name)
		rec, ok := r.rejected[state.Name]
		if !ok {
			rec = &admissionRecord{}
			r.rejected[state.Name] = rec
		}
		rec.attempts++
		rec.lastAttempt = r.now()
		attempts := rec.attempts
		r.mu.Unlock()

		hint := estimation.Hint(r.graph, loc)
		utils.Logger.WithFields(fields).Errorf(
			"Unable to compute a start set for robot [%s] using level_name [%s] and location [%f, %f, %f]. "+
				"This robot will not be added to the fleet [%s] (attempt %d of %d). Hint: %s",
			state.Name, loc.LevelName, loc.X, loc.Y, loc.Yaw, r.name, attempts, r.opts.MaxReadmissions+1, hint)
		r.record(state.Name, models.EventAdmissionFailed, hint)
		return
	}

	id := models.RobotIdentity{Fleet: r.name, Robot: state.Name}
	r.scheduler.Register(state.Name, r.opts.Profile, starts, func(updater scheduler.RobotUpdater) {
		s := session.New(id, r.graph, r.traits, r.transport, updater, r.opts.Session)

		r.mu.Lock()
		delete(r.admitting, state.Name)
		delete(r.rejected, state.Name)
		r.sessions[state.Name] = s
		r.mu.Unlock()

		utils.Logger.WithFields(fields).Infof("🤖 Robot [%s] added to fleet [%s] with %d start(s)", state.Name, r.name, len(starts))
		r.record(state.Name, models.EventAdmitted, fmt.Sprintf("%d starts", len(starts)))
		s.UpdateState(state)
	})
}

// OnLaneClosure applies a lane request. open is applied before close, so a
// lane named in both ends up closed. It returns false when the request is
// addressed to another fleet.
func (r *Registry) OnLaneClosure(req models.LaneRequest) bool {
	if req.FleetName != "" && req.FleetName != r.name {
		return false
	}

	r.closureMu.Lock()
	defer r.closureMu.Unlock()

	r.mu.Lock()
	before := r.closed.Clone()
	for _, l := range req.OpenLanes {
		r.closed.Remove(l)
	}
	delta := closure.NewLaneSet()
	for _, l := range req.CloseLanes {
		if !r.graph.HasLane(l) {
			utils.Logger.Warnf("Ignoring closure of lane %d which is not on the navigation graph of fleet [%s]", l, r.name)
			continue
		}
		if !before.Has(l) {
			delta.Add(l)
		}
		r.closed.Add(l)
	}
	closed := r.closed.Clone()
	sessions := r.sessionsLocked()
	r.mu.Unlock()

	if len(delta) > 0 {
		for _, s := range sessions {
			s.NewlyClosedLanes(delta, closed)
		}
		r.record("", models.EventLanesClosed, fmt.Sprint(delta.Sorted()))
	}

	sorted := closed.Sorted()
	r.scheduler.SetClosedLanes(sorted)
	utils.Logger.Infof("🚧 Fleet [%s] closed lanes: %v (newly closed: %v)", r.name, sorted, delta.Sorted())
	if r.listener != nil {
		if err := r.listener.PublishClosedLanes(models.ClosedLanes{FleetName: r.name, ClosedLanes: sorted}); err != nil {
			utils.Logger.Errorf("❌ Failed to publish closed lanes for fleet [%s]: %v", r.name, err)
		}
	}
	return true
}

// ClosedLanes returns the currently closed lanes in ascending order.
func (r *Registry) ClosedLanes() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed.Sorted()
}

func (r *Registry) sessionsLocked() []*session.Session {
	names := make([]string, 0, len(r.sessions))
	for name := range r.sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*session.Session, 0, len(names))
	for _, name := range names {
		out = append(out, r.sessions[name])
	}
	return out
}

// Sessions returns every admitted robot's session ordered by robot name.
func (r *Registry) Sessions() []*session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionsLocked()
}

func (r *Registry) Session(robot string) (*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[robot]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRobot, robot)
	}
	return s, nil
}

// Tick runs the periodic retransmission check on every session.
func (r *Registry) Tick() {
	for _, s := range r.Sessions() {
		s.Tick()
	}
}

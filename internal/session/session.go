// Package session keeps one robot's commands in sync with what the robot
// reports: it dispatches path and dock commands, retransmits them until they
// are acknowledged, and turns state reports into scheduler updates.
package session

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"fleet-adapter/internal/estimation"
	"fleet-adapter/internal/graph"
	"fleet-adapter/internal/models"
	"fleet-adapter/internal/scheduler"
	"fleet-adapter/internal/utils"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"github.com/sirupsen/logrus"
)

// ErrUnknownDock is returned by Dock when no lane on the graph carries the
// requested dock.
var ErrUnknownDock = errors.New("unknown dock")

// Transport sends commands to the robot's fleet driver.
type Transport interface {
	PublishPath(req models.PathRequest) error
	PublishMode(req models.ModeRequest) error
}

// Recorder receives audit events. Implementations must not block.
type Recorder interface {
	Record(event *models.FleetEvent)
}

type noopRecorder struct{}

func (noopRecorder) Record(*models.FleetEvent) {}

// Options tune a session.
type Options struct {
	RetryInterval time.Duration
	// MaxRetransmits bounds retransmissions of one command; 0 means unbounded.
	MaxRetransmits       int
	DockScheduleInterval time.Duration
	OffPlanTolerance     float64
	Clock                utils.Clock
	Recorder             Recorder
}

func DefaultOptions() Options {
	return Options{
		RetryInterval:        200 * time.Millisecond,
		MaxRetransmits:       50,
		DockScheduleInterval: time.Second,
		OffPlanTolerance:     2.0,
		Clock:                utils.SystemClock,
		Recorder:             noopRecorder{},
	}
}

// CommandKind is the kind of the active command.
type CommandKind int

const (
	KindPath CommandKind = iota
	KindDock
)

func (k CommandKind) String() string {
	if k == KindDock {
		return "dock"
	}
	return "path"
}

type activeCommand struct {
	taskID        uint64
	wireID        string
	kind          CommandKind
	correlationID string
	dispatched    time.Time
	lastSent      time.Time
	retransmits   int
	acknowledged  bool
	stalled       bool

	onFinished scheduler.RequestCompleted
	onArrival  scheduler.ArrivalEstimator

	path         models.PathRequest
	mode         models.ModeRequest
	dockWaypoint int
}

// Session is the command handle of one robot. All methods are safe for
// concurrent use.
type Session struct {
	mu sync.Mutex

	identity  models.RobotIdentity
	graph     *graph.Graph
	traits    graph.Traits
	transport Transport
	updater   scheduler.RobotUpdater
	estimator *estimation.Estimator
	opts      Options
	lifecycle *fsm.FSM

	travel           estimation.TravelState
	active           *activeCommand
	lastTaskID       uint64
	lastState        *models.RobotState
	dockScheduleTime time.Time

	// deferred holds scheduler callbacks to run once mu is released.
	deferred []func()
}

// New creates an idle session. The graph and traits are shared and never
// modified.
func New(id models.RobotIdentity, g *graph.Graph, traits graph.Traits, transport Transport, updater scheduler.RobotUpdater, opts Options) *Session {
	def := DefaultOptions()
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = def.RetryInterval
	}
	if opts.DockScheduleInterval <= 0 {
		opts.DockScheduleInterval = def.DockScheduleInterval
	}
	if opts.Clock == nil {
		opts.Clock = def.Clock
	}
	if opts.Recorder == nil {
		opts.Recorder = def.Recorder
	}

	return &Session{
		identity:  id,
		graph:     g,
		traits:    traits,
		transport: transport,
		updater:   updater,
		estimator: estimation.New(g, traits, opts.OffPlanTolerance, updater),
		opts:      opts,
		lifecycle: newLifecycle(id.Robot),
	}
}

func (s *Session) Identity() models.RobotIdentity { return s.identity }

func (s *Session) fields() logrus.Fields {
	return utils.RobotFields(s.identity.Fleet, s.identity.Robot)
}

func (s *Session) lock() { s.mu.Lock() }

// unlock releases the session and then runs the callbacks queued while it
// was held, so a callback may issue a new command on the same session.
func (s *Session) unlock() {
	calls := s.deferred
	s.deferred = nil
	s.mu.Unlock()
	for _, fn := range calls {
		fn()
	}
}

func (s *Session) later(fn func()) {
	s.deferred = append(s.deferred, fn)
}

func (s *Session) record(c *activeCommand, event, detail string) {
	ev := &models.FleetEvent{
		Fleet:  s.identity.Fleet,
		Robot:  s.identity.Robot,
		Event:  event,
		Detail: detail,
	}
	if c != nil {
		ev.CorrelationID = c.correlationID
		ev.TaskID = c.taskID
		ev.Command = c.kind.String()
	}
	s.opts.Recorder.Record(ev)
}

// supersede drops the active command without invoking its callbacks.
func (s *Session) supersede() {
	if s.active == nil {
		return
	}
	old := s.active
	s.active = nil
	utils.Logger.WithFields(s.fields()).Infof("Task %d (%s) superseded", old.taskID, old.kind)
	s.record(old, models.EventSuperseded, "")
}

func (s *Session) newCommand(kind CommandKind) *activeCommand {
	s.lastTaskID++
	now := s.opts.Clock.Now()
	return &activeCommand{
		taskID:        s.lastTaskID,
		wireID:        strconv.FormatUint(s.lastTaskID, 10),
		kind:          kind,
		correlationID: uuid.New().String(),
		dispatched:    now,
		lastSent:      now,
	}
}

// FollowNewPath replaces any active command with a path along waypoints.
// onArrival receives progress estimates; onFinished is called once when the
// robot reports the path complete.
func (s *Session) FollowNewPath(waypoints []scheduler.Waypoint, onArrival scheduler.ArrivalEstimator, onFinished scheduler.RequestCompleted) {
	s.lock()
	defer s.unlock()

	s.supersede()
	c := s.newCommand(KindPath)
	c.onArrival = onArrival
	c.onFinished = onFinished
	c.path = models.PathRequest{
		FleetName: s.identity.Fleet,
		RobotName: s.identity.Robot,
		TaskID:    c.wireID,
		Path:      s.pathLocations(waypoints),
	}

	s.travel.Reset(append([]scheduler.Waypoint(nil), waypoints...))
	s.active = c
	s.transition(eventFollowPath)

	utils.Logger.WithFields(s.fields()).Infof("📤 Sending path task %d with %d waypoints", c.taskID, len(waypoints))
	s.send(c)
	s.record(c, models.EventDispatched, fmt.Sprintf("%d waypoints", len(waypoints)))
}

// pathLocations converts plan waypoints to wire locations. Waypoints off the
// graph carry an empty level name.
func (s *Session) pathLocations(waypoints []scheduler.Waypoint) []models.Location {
	out := make([]models.Location, 0, len(waypoints))
	for _, wp := range waypoints {
		loc := models.Location{T: wp.Time, X: wp.Position.X, Y: wp.Position.Y, Yaw: wp.Position.Yaw}
		if wp.GraphIndex != nil && s.graph.HasWaypoint(*wp.GraphIndex) {
			loc.LevelName = s.graph.Waypoint(*wp.GraphIndex).Map
		}
		out = append(out, loc)
	}
	return out
}

// Dock replaces any active command with a docking request. An unknown dock
// leaves the session untouched and returns ErrUnknownDock.
func (s *Session) Dock(dockName string, onFinished scheduler.RequestCompleted) error {
	wp, ok := s.graph.FindDockEntry(dockName)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDock, dockName)
	}

	s.lock()
	defer s.unlock()

	s.supersede()
	c := s.newCommand(KindDock)
	c.onFinished = onFinished
	c.dockWaypoint = wp
	c.mode = models.ModeRequest{
		FleetName:  s.identity.Fleet,
		RobotName:  s.identity.Robot,
		TaskID:     c.wireID,
		Mode:       models.ModeDocking,
		Parameters: []models.ModeParameter{{Name: "docking", Value: dockName}},
	}

	s.travel.Reset(nil)
	s.active = c
	s.transition(eventDock)

	utils.Logger.WithFields(s.fields()).Infof("📤 Requesting dock [%s] into waypoint [%s] as task %d",
		dockName, s.graph.Waypoint(wp).DisplayName(), c.taskID)
	s.send(c)
	s.record(c, models.EventDispatched, "dock "+dockName)
	return nil
}

// send publishes the stored payload of c. The payload never changes after the
// command is created.
func (s *Session) send(c *activeCommand) {
	var err error
	switch c.kind {
	case KindPath:
		err = s.transport.PublishPath(c.path)
	case KindDock:
		err = s.transport.PublishMode(c.mode)
	}
	if err != nil {
		utils.Logger.WithFields(s.fields()).Errorf("❌ Failed to send task %d: %v", c.taskID, err)
	}
}

// finish completes the active command and returns the session to idle.
func (s *Session) finish(c *activeCommand) {
	s.active = nil
	s.transition(eventFinish)
	utils.Logger.WithFields(s.fields()).Infof("✅ Task %d (%s) finished", c.taskID, c.kind)
	s.record(c, models.EventFinished, "")
	if c.onFinished != nil {
		s.later(c.onFinished)
	}
}

// Status is a point-in-time view of a session.
type Status struct {
	Fleet             string             `json:"fleet_name"`
	Robot             string             `json:"robot_name"`
	State             string             `json:"state"`
	TaskID            uint64             `json:"task_id"`
	Command           string             `json:"command,omitempty"`
	Acknowledged      bool               `json:"acknowledged"`
	Retransmits       int                `json:"retransmits"`
	Interrupted       bool               `json:"interrupted"`
	TargetIndex       *int               `json:"target_index,omitempty"`
	// LastKnownWaypoint is the last graph waypoint the robot was confirmed at.
	LastKnownWaypoint *int               `json:"last_known_waypoint,omitempty"`
	LastState         *models.RobotState `json:"last_state,omitempty"`
}

func (s *Session) Status() Status {
	s.lock()
	defer s.unlock()

	st := Status{
		Fleet:       s.identity.Fleet,
		Robot:       s.identity.Robot,
		State:       s.lifecycle.Current(),
		TaskID:      s.lastTaskID,
		Interrupted: s.travel.Interrupted,
	}
	if c := s.active; c != nil {
		st.Command = c.kind.String()
		st.Acknowledged = c.acknowledged
		st.Retransmits = c.retransmits
	}
	if i, ok := s.travel.Target(); ok {
		st.TargetIndex = &i
	}
	if wp, ok := s.travel.LastKnownWaypoint(); ok {
		st.LastKnownWaypoint = &wp
	}
	if s.lastState != nil {
		last := *s.lastState
		st.LastState = &last
	}
	return st
}

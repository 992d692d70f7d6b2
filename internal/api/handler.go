// Package api is the operator HTTP API of the fleet adapter.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"fleet-adapter/internal/fleet"
	"fleet-adapter/internal/graph"
	"fleet-adapter/internal/models"
	"fleet-adapter/internal/service"
	"fleet-adapter/internal/session"
	"fleet-adapter/internal/utils"

	"github.com/labstack/echo/v4"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

// Fleet is the registry view the API works on.
type Fleet interface {
	Name() string
	Graph() *graph.Graph
	Traits() graph.Traits
	Sessions() []*session.Session
	Session(robot string) (*session.Session, error)
	ClosedLanes() []int
	OnLaneClosure(req models.LaneRequest) bool
}

// EventSource reads the audit log.
type EventSource interface {
	Recent(fleet, robot string, limit int) ([]models.FleetEvent, error)
}

// SnapshotSource reads what the scheduler last stored for a robot.
type SnapshotSource interface {
	GetSnapshot(ctx context.Context, fleet, robot string) (*models.RobotSnapshot, error)
}

// ConnectionChecker reports broker connectivity.
type ConnectionChecker interface {
	IsConnected() bool
}

// PathCommand selects the waypoints of a path either by graph index or by
// name. Indices win when both are given.
type PathCommand struct {
	Waypoints     []int    `json:"waypoints"`
	WaypointNames []string `json:"waypoint_names"`
}

type DockCommand struct {
	DockName string `json:"dock_name"`
}

type Handler struct {
	fleet     Fleet
	events    EventSource
	snapshots SnapshotSource
	broker    ConnectionChecker
	clock     utils.Clock
}

// NewHandler creates the API handler. events, snapshots and broker may be nil;
// the endpoints that need them then answer 503.
func NewHandler(f Fleet, events EventSource, snapshots SnapshotSource, broker ConnectionChecker) *Handler {
	return &Handler{
		fleet:     f,
		events:    events,
		snapshots: snapshots,
		broker:    broker,
		clock:     utils.SystemClock,
	}
}

// Register mounts every route on e.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/health", h.Health)

	api := e.Group("/api/v1")
	api.GET("/robots", h.ListRobots)
	api.GET("/robots/:name", h.GetRobot)
	api.GET("/robots/:name/events", h.GetRobotEvents)
	api.GET("/robots/:name/snapshot", h.GetRobotSnapshot)
	api.POST("/robots/:name/path", h.SendPath)
	api.POST("/robots/:name/dock", h.SendDock)
	api.GET("/lanes/closed", h.GetClosedLanes)
	api.POST("/lanes", h.RequestLanes)
}

func (h *Handler) Health(c echo.Context) error {
	connected := h.broker != nil && h.broker.IsConnected()
	return c.JSON(http.StatusOK, utils.SuccessResponse("running", map[string]interface{}{
		"fleet_name":     h.fleet.Name(),
		"robots":         len(h.fleet.Sessions()),
		"mqtt_connected": connected,
		"timestamp":      h.clock.Now().Format(time.RFC3339),
	}))
}

func (h *Handler) ListRobots(c echo.Context) error {
	sessions := h.fleet.Sessions()
	statuses := make([]session.Status, 0, len(sessions))
	for _, s := range sessions {
		statuses = append(statuses, s.Status())
	}
	return c.JSON(http.StatusOK, utils.SuccessResponse(fmt.Sprintf("%d robots", len(statuses)), statuses))
}

func (h *Handler) GetRobot(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, utils.SuccessResponse("robot status", s.Status()))
}

func (h *Handler) GetRobotEvents(c echo.Context) error {
	if h.events == nil {
		return utils.NewUnavailableError("Event log is not configured")
	}
	name := c.Param("name")
	limit := defaultEventLimit
	if raw := c.QueryParam("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			return utils.NewBadRequestError("Invalid limit parameter: must be a positive integer", err)
		}
		limit = v
	}
	if limit > maxEventLimit {
		limit = maxEventLimit
	}

	events, err := h.events.Recent(h.fleet.Name(), name, limit)
	if err != nil {
		return utils.NewInternalServerError("Failed to read events", err)
	}
	return c.JSON(http.StatusOK, utils.SuccessResponse(fmt.Sprintf("%d events", len(events)), events))
}

func (h *Handler) GetRobotSnapshot(c echo.Context) error {
	if h.snapshots == nil {
		return utils.NewUnavailableError("Snapshot store is not configured")
	}
	name := c.Param("name")
	snap, err := h.snapshots.GetSnapshot(c.Request().Context(), h.fleet.Name(), name)
	if errors.Is(err, service.ErrSnapshotNotFound) {
		return utils.NewNotFoundError(fmt.Sprintf("No snapshot for robot %s", name), err)
	} else if err != nil {
		return utils.NewInternalServerError("Failed to read snapshot", err)
	}
	return c.JSON(http.StatusOK, utils.SuccessResponse("robot snapshot", snap))
}

func (h *Handler) SendPath(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	var cmd PathCommand
	if err := c.Bind(&cmd); err != nil {
		return utils.NewBadRequestError("Invalid path command", err)
	}

	g := h.fleet.Graph()
	indices := cmd.Waypoints
	if len(indices) == 0 && len(cmd.WaypointNames) > 0 {
		if indices, err = resolveWaypoints(g, cmd.WaypointNames); err != nil {
			return utils.NewBadRequestError(err.Error(), err)
		}
	}
	if len(indices) == 0 {
		return utils.NewBadRequestError("A path needs at least one waypoint", nil)
	}

	plan, err := planPath(g, h.fleet.Traits(), indices, h.clock.Now())
	if err != nil {
		return utils.NewBadRequestError(err.Error(), err)
	}

	s.FollowNewPath(plan, nil, nil)
	utils.Logger.WithFields(utils.RobotFields(h.fleet.Name(), c.Param("name"))).
		Infof("🧭 Operator path with %d waypoints", len(plan))
	return c.JSON(http.StatusAccepted, utils.SuccessResponse("path dispatched", s.Status()))
}

func (h *Handler) SendDock(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	var cmd DockCommand
	if err := c.Bind(&cmd); err != nil {
		return utils.NewBadRequestError("Invalid dock command", err)
	}
	if cmd.DockName == "" {
		return utils.NewBadRequestError("dock_name is required", nil)
	}

	if err := s.Dock(cmd.DockName, nil); err != nil {
		if errors.Is(err, session.ErrUnknownDock) {
			return utils.NewBadRequestError(err.Error(), err)
		}
		return utils.NewInternalServerError("Failed to dock", err)
	}
	return c.JSON(http.StatusAccepted, utils.SuccessResponse("dock dispatched", s.Status()))
}

func (h *Handler) GetClosedLanes(c echo.Context) error {
	return c.JSON(http.StatusOK, utils.SuccessResponse("closed lanes", models.ClosedLanes{
		FleetName:   h.fleet.Name(),
		ClosedLanes: h.fleet.ClosedLanes(),
	}))
}

func (h *Handler) RequestLanes(c echo.Context) error {
	var req models.LaneRequest
	if err := c.Bind(&req); err != nil {
		return utils.NewBadRequestError("Invalid lane request", err)
	}
	if !h.fleet.OnLaneClosure(req) {
		return utils.NewBadRequestError(fmt.Sprintf("Lane request addressed to fleet %s, this is %s", req.FleetName, h.fleet.Name()), nil)
	}
	return c.JSON(http.StatusOK, utils.SuccessResponse("lane request applied", models.ClosedLanes{
		FleetName:   h.fleet.Name(),
		ClosedLanes: h.fleet.ClosedLanes(),
	}))
}

func (h *Handler) session(c echo.Context) (*session.Session, error) {
	name := c.Param("name")
	s, err := h.fleet.Session(name)
	if errors.Is(err, fleet.ErrUnknownRobot) {
		return nil, utils.NewNotFoundError(fmt.Sprintf("Robot %s is not part of fleet %s", name, h.fleet.Name()), err)
	} else if err != nil {
		return nil, utils.NewInternalServerError("Failed to look up robot", err)
	}
	return s, nil
}

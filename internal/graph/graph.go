// Package graph holds the navigation graph robots travel on. A Graph is built
// once at startup and then shared read-only by every command session; nothing
// may call the Add methods after the graph has been handed out.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
)

var (
	ErrUnknownWaypoint = errors.New("unknown waypoint")
	ErrInvalidGraph    = errors.New("invalid navigation graph")
)

// Waypoint is a node of the navigation graph.
type Waypoint struct {
	Index         int
	Name          string
	Map           string
	Location      Vec2
	HoldingPoint  bool
	ParkingSpot   bool
	ChargerSpot   bool
	PassthroughOK bool
}

// DisplayName is the waypoint name, or "#<index>" for anonymous waypoints.
func (w Waypoint) DisplayName() string {
	if w.Name != "" {
		return w.Name
	}
	return "#" + strconv.Itoa(w.Index)
}

// LaneNode is one end of a lane.
type LaneNode struct {
	Waypoint int
	Event    LaneEvent
}

// Lane is a directed edge from Entry to Exit.
type Lane struct {
	Index      int
	Entry      LaneNode
	Exit       LaneNode
	SpeedLimit float64
}

type Graph struct {
	waypoints []Waypoint
	lanes     []Lane
	keys      map[string]int
	byEnds    map[[2]int]int
}

func New() *Graph {
	return &Graph{
		keys:   make(map[string]int),
		byEnds: make(map[[2]int]int),
	}
}

// AddWaypoint appends a waypoint and returns its index.
func (g *Graph) AddWaypoint(mapName string, loc Vec2) int {
	idx := len(g.waypoints)
	g.waypoints = append(g.waypoints, Waypoint{Index: idx, Map: mapName, Location: loc})
	return idx
}

// SetWaypointName registers a unique key for an existing waypoint.
func (g *Graph) SetWaypointName(idx int, name string) error {
	if idx < 0 || idx >= len(g.waypoints) {
		return fmt.Errorf("%w: %d", ErrUnknownWaypoint, idx)
	}
	if other, ok := g.keys[name]; ok && other != idx {
		return fmt.Errorf("%w: waypoint name %q used by #%d and #%d", ErrInvalidGraph, name, other, idx)
	}
	g.waypoints[idx].Name = name
	g.keys[name] = idx
	return nil
}

func (g *Graph) waypointPtr(idx int) *Waypoint {
	return &g.waypoints[idx]
}

// AddLane appends a lane from entry to exit and returns its index.
func (g *Graph) AddLane(entry, exit LaneNode) (int, error) {
	n := len(g.waypoints)
	if entry.Waypoint < 0 || entry.Waypoint >= n || exit.Waypoint < 0 || exit.Waypoint >= n {
		return 0, fmt.Errorf("%w: lane %d -> %d", ErrUnknownWaypoint, entry.Waypoint, exit.Waypoint)
	}
	idx := len(g.lanes)
	g.lanes = append(g.lanes, Lane{Index: idx, Entry: entry, Exit: exit})
	if _, ok := g.byEnds[[2]int{entry.Waypoint, exit.Waypoint}]; !ok {
		g.byEnds[[2]int{entry.Waypoint, exit.Waypoint}] = idx
	}
	return idx, nil
}

// AddSimpleLane is AddLane without events.
func (g *Graph) AddSimpleLane(entry, exit int) (int, error) {
	return g.AddLane(LaneNode{Waypoint: entry}, LaneNode{Waypoint: exit})
}

func (g *Graph) NumWaypoints() int { return len(g.waypoints) }

func (g *Graph) NumLanes() int { return len(g.lanes) }

func (g *Graph) Waypoint(idx int) Waypoint { return g.waypoints[idx] }

func (g *Graph) Lane(idx int) Lane { return g.lanes[idx] }

// HasWaypoint reports whether idx is a valid waypoint index.
func (g *Graph) HasWaypoint(idx int) bool { return idx >= 0 && idx < len(g.waypoints) }

// HasLane reports whether idx is a valid lane index.
func (g *Graph) HasLane(idx int) bool { return idx >= 0 && idx < len(g.lanes) }

// LaneFrom returns the first lane going from one waypoint to another.
func (g *Graph) LaneFrom(from, to int) (Lane, bool) {
	idx, ok := g.byEnds[[2]int{from, to}]
	if !ok {
		return Lane{}, false
	}
	return g.lanes[idx], true
}

// FindWaypoint looks up a waypoint by name.
func (g *Graph) FindWaypoint(name string) (Waypoint, bool) {
	idx, ok := g.keys[name]
	if !ok {
		return Waypoint{}, false
	}
	return g.waypoints[idx], true
}

// Keys lists the named waypoints in name order.
func (g *Graph) Keys() []string {
	names := make([]string, 0, len(g.keys))
	for name := range g.keys {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FindDockEntry scans the lanes for one whose entry event is the named dock
// and returns the entry waypoint.
func (g *Graph) FindDockEntry(dockName string) (int, bool) {
	for _, lane := range g.lanes {
		if name, ok := DockName(lane.Entry.Event); ok && name == dockName {
			return lane.Entry.Waypoint, true
		}
	}
	return 0, false
}

package graph

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Default durations for events declared in a graph file.
const (
	DefaultDockDuration = 5 * time.Second
	DefaultDoorDuration = 4 * time.Second
)

type buildingFile struct {
	BuildingName string               `yaml:"building_name"`
	Levels       map[string]levelFile `yaml:"levels"`
}

type levelFile struct {
	Vertices []yaml.Node `yaml:"vertices"`
	Lanes    []yaml.Node `yaml:"lanes"`
}

type vertexOptions struct {
	Name               string `yaml:"name"`
	IsHoldingPoint     bool   `yaml:"is_holding_point"`
	IsParkingSpot      bool   `yaml:"is_parking_spot"`
	IsCharger          bool   `yaml:"is_charger"`
	IsPassthroughPoint bool   `yaml:"is_passthrough_point"`
}

type laneOptions struct {
	Bidirectional bool    `yaml:"bidirectional"`
	DockName      string  `yaml:"dock_name"`
	DoorName      string  `yaml:"door_name"`
	SpeedLimit    float64 `yaml:"speed_limit"`
}

// LoadFile parses a building navigation graph YAML file.
func LoadFile(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read nav graph %s: %w", path, err)
	}
	g, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse nav graph %s: %w", path, err)
	}
	return g, nil
}

// Parse builds a Graph from the building YAML format:
//
//	levels:
//	  L1:
//	    vertices:
//	    - [x, y, {name: wp, is_charger: true}]
//	    lanes:
//	    - [0, 1, {bidirectional: true, dock_name: dock_a}]
//
// Lane vertex indices are local to their level. Levels are loaded in name
// order, so waypoint indices are stable for a given file.
func Parse(data []byte) (*Graph, error) {
	var file buildingFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	if len(file.Levels) == 0 {
		return nil, fmt.Errorf("%w: no levels", ErrInvalidGraph)
	}

	levels := make([]string, 0, len(file.Levels))
	for name := range file.Levels {
		levels = append(levels, name)
	}
	sort.Strings(levels)

	g := New()
	for _, levelName := range levels {
		level := file.Levels[levelName]
		offset := g.NumWaypoints()

		for i := range level.Vertices {
			if err := g.addVertex(levelName, &level.Vertices[i]); err != nil {
				return nil, fmt.Errorf("level %s vertex %d: %w", levelName, i, err)
			}
		}
		count := g.NumWaypoints() - offset

		for i := range level.Lanes {
			if err := g.addLaneNode(offset, count, &level.Lanes[i]); err != nil {
				return nil, fmt.Errorf("level %s lane %d: %w", levelName, i, err)
			}
		}
	}
	return g, nil
}

func (g *Graph) addVertex(levelName string, node *yaml.Node) error {
	if node.Kind != yaml.SequenceNode || len(node.Content) < 2 {
		return fmt.Errorf("%w: vertex must be [x, y, ...]", ErrInvalidGraph)
	}
	var loc Vec2
	if err := node.Content[0].Decode(&loc.X); err != nil {
		return err
	}
	if err := node.Content[1].Decode(&loc.Y); err != nil {
		return err
	}

	var opts vertexOptions
	for _, extra := range node.Content[2:] {
		switch extra.Kind {
		case yaml.ScalarNode:
			if err := extra.Decode(&opts.Name); err != nil {
				return err
			}
		case yaml.MappingNode:
			name := opts.Name
			if err := extra.Decode(&opts); err != nil {
				return err
			}
			if opts.Name == "" {
				opts.Name = name
			}
		}
	}

	idx := g.AddWaypoint(levelName, loc)
	wp := g.waypointPtr(idx)
	wp.HoldingPoint = opts.IsHoldingPoint
	wp.ParkingSpot = opts.IsParkingSpot
	wp.ChargerSpot = opts.IsCharger
	wp.PassthroughOK = opts.IsPassthroughPoint
	if opts.Name != "" {
		return g.SetWaypointName(idx, opts.Name)
	}
	return nil
}

func (g *Graph) addLaneNode(offset, count int, node *yaml.Node) error {
	if node.Kind != yaml.SequenceNode || len(node.Content) < 2 {
		return fmt.Errorf("%w: lane must be [begin, end, ...]", ErrInvalidGraph)
	}
	var begin, end int
	if err := node.Content[0].Decode(&begin); err != nil {
		return err
	}
	if err := node.Content[1].Decode(&end); err != nil {
		return err
	}
	if begin < 0 || begin >= count || end < 0 || end >= count {
		return fmt.Errorf("%w: lane %d -> %d outside level", ErrUnknownWaypoint, begin, end)
	}

	var opts laneOptions
	if len(node.Content) > 2 && node.Content[2].Kind == yaml.MappingNode {
		if err := node.Content[2].Decode(&opts); err != nil {
			return err
		}
	}

	var entryEvent, exitEvent LaneEvent
	if opts.DoorName != "" {
		entryEvent = DoorOpen{Door: opts.DoorName, Duration: DefaultDoorDuration}
		exitEvent = DoorClose{Door: opts.DoorName, Duration: DefaultDoorDuration}
	}
	if opts.DockName != "" {
		entryEvent = Dock{Name: opts.DockName, Duration: DefaultDockDuration}
	}

	forward, err := g.AddLane(
		LaneNode{Waypoint: offset + begin, Event: entryEvent},
		LaneNode{Waypoint: offset + end, Event: exitEvent},
	)
	if err != nil {
		return err
	}
	g.lanes[forward].SpeedLimit = opts.SpeedLimit

	if !opts.Bidirectional {
		return nil
	}

	// The way back out of a dock carries no dock event.
	var backEntry, backExit LaneEvent
	if opts.DoorName != "" {
		backEntry = DoorOpen{Door: opts.DoorName, Duration: DefaultDoorDuration}
		backExit = DoorClose{Door: opts.DoorName, Duration: DefaultDoorDuration}
	}
	reverse, err := g.AddLane(
		LaneNode{Waypoint: offset + end, Event: backEntry},
		LaneNode{Waypoint: offset + begin, Event: backExit},
	)
	if err != nil {
		return err
	}
	g.lanes[reverse].SpeedLimit = opts.SpeedLimit
	return nil
}

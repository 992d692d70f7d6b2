package service

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"

	"fleet-adapter/internal/models"

	"github.com/go-redis/redis/v8"
)

// scriptedHook answers commands before they reach the network and records
// what was sent.
type scriptedHook struct {
	mu       sync.Mutex
	replies  map[string]error
	pipeline error
	sent     [][]interface{}
}

func (h *scriptedHook) BeforeProcess(ctx context.Context, cmd redis.Cmder) (context.Context, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent = append(h.sent, cmd.Args())
	if err, ok := h.replies[cmd.Name()]; ok {
		return ctx, err
	}
	return ctx, errors.New("unscripted command " + cmd.Name())
}

func (h *scriptedHook) AfterProcess(context.Context, redis.Cmder) error { return nil }

func (h *scriptedHook) BeforeProcessPipeline(ctx context.Context, cmds []redis.Cmder) (context.Context, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, cmd := range cmds {
		if name := cmd.Name(); name == "multi" || name == "exec" {
			continue
		}
		h.sent = append(h.sent, cmd.Args())
	}
	return ctx, h.pipeline
}

func (h *scriptedHook) AfterProcessPipeline(context.Context, []redis.Cmder) error { return nil }

func newScriptedService(h *scriptedHook) *SnapshotService {
	client := redis.NewClient(&redis.Options{Addr: "localhost:0", MaxRetries: -1})
	client.AddHook(h)
	return NewSnapshotService(client)
}

var errStoreDown = errors.New("store down")

func TestParseClosedLanes(t *testing.T) {
	tests := []struct {
		name    string
		members []string
		want    []int
	}{
		{"empty", nil, []int{}},
		{"sorted", []string{"12", "0", "3"}, []int{0, 3, 12}},
		{"malformed members skipped", []string{"4", "x", "-1", "", "2"}, []int{2, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseClosedLanes("tinyRobot", tt.members); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestGetSnapshot(t *testing.T) {
	t.Run("missing key", func(t *testing.T) {
		s := newScriptedService(&scriptedHook{replies: map[string]error{"get": redis.Nil}})
		_, err := s.GetSnapshot(context.Background(), "tinyRobot", "r1")
		if !errors.Is(err, ErrSnapshotNotFound) {
			t.Fatalf("Expected ErrSnapshotNotFound, got %v", err)
		}
	})

	t.Run("store failure", func(t *testing.T) {
		s := newScriptedService(&scriptedHook{replies: map[string]error{"get": errStoreDown}})
		_, err := s.GetSnapshot(context.Background(), "tinyRobot", "r1")
		if !errors.Is(err, errStoreDown) || errors.Is(err, ErrSnapshotNotFound) {
			t.Fatalf("Expected the store error, got %v", err)
		}
	})
}

func TestSaveSnapshot(t *testing.T) {
	h := &scriptedHook{pipeline: errStoreDown}
	s := newScriptedService(h)
	snap := &models.RobotSnapshot{Fleet: "tinyRobot", Robot: "r1", Battery: 0.5, Waypoint: 2}

	if err := s.SaveSnapshot(context.Background(), snap); !errors.Is(err, errStoreDown) {
		t.Fatalf("Expected the store error to be wrapped, got %v", err)
	}
	if len(h.sent) != 2 {
		t.Fatalf("Expected SET and SADD in one transaction, got %v", h.sent)
	}
	if set := h.sent[0]; set[0] != "set" || set[1] != "fleet_robot:tinyRobot:r1" {
		t.Errorf("Unexpected SET %v", set)
	} else {
		data, _ := set[2].([]byte)
		var stored models.RobotSnapshot
		if err := json.Unmarshal(data, &stored); err != nil || stored.Battery != 0.5 || stored.Waypoint != 2 {
			t.Errorf("Expected the snapshot as JSON, got %v (%v)", set[2], err)
		}
	}
	if sadd := h.sent[1]; !reflect.DeepEqual(sadd, []interface{}{"sadd", "fleet_robots:tinyRobot", "r1"}) {
		t.Errorf("Unexpected SADD %v", sadd)
	}
}

func TestSaveClosedLanes(t *testing.T) {
	t.Run("replaces the set", func(t *testing.T) {
		h := &scriptedHook{pipeline: errStoreDown}
		s := newScriptedService(h)
		if err := s.SaveClosedLanes(context.Background(), "tinyRobot", []int{0, 3}); !errors.Is(err, errStoreDown) {
			t.Fatalf("Expected the store error to be wrapped, got %v", err)
		}
		want := [][]interface{}{
			{"del", "fleet_closed_lanes:tinyRobot"},
			{"sadd", "fleet_closed_lanes:tinyRobot", 0, 3},
		}
		if !reflect.DeepEqual(h.sent, want) {
			t.Errorf("Expected %v, got %v", want, h.sent)
		}
	})

	t.Run("empty set only deletes", func(t *testing.T) {
		h := &scriptedHook{pipeline: errStoreDown}
		s := newScriptedService(h)
		_ = s.SaveClosedLanes(context.Background(), "tinyRobot", nil)
		want := [][]interface{}{{"del", "fleet_closed_lanes:tinyRobot"}}
		if !reflect.DeepEqual(h.sent, want) {
			t.Errorf("Expected %v, got %v", want, h.sent)
		}
	})
}

func TestReadFailures(t *testing.T) {
	s := newScriptedService(&scriptedHook{replies: map[string]error{"smembers": errStoreDown}})

	if _, err := s.GetClosedLanes(context.Background(), "tinyRobot"); !errors.Is(err, errStoreDown) {
		t.Errorf("Expected GetClosedLanes to return the store error, got %v", err)
	}
	if _, err := s.ListSnapshots(context.Background(), "tinyRobot"); !errors.Is(err, errStoreDown) {
		t.Errorf("Expected ListSnapshots to return the store error, got %v", err)
	}
}

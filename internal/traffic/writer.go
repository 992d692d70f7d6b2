package traffic

import (
	"context"
	"sort"
	"sync"

	"fleet-adapter/internal/models"
	"fleet-adapter/internal/utils"
)

// writer queues store writes and applies them off the caller's goroutine.
// Pending writes coalesce: only the latest snapshot per robot and the latest
// closed lane set are kept.
type writer struct {
	store SnapshotStore
	fleet string

	mu          sync.Mutex
	snapshots   map[string]models.RobotSnapshot
	closed      []int
	closedDirty bool

	notify chan struct{}
}

func newWriter(fleet string, store SnapshotStore) *writer {
	return &writer{
		store:     store,
		fleet:     fleet,
		snapshots: make(map[string]models.RobotSnapshot),
		notify:    make(chan struct{}, 1),
	}
}

func (w *writer) enqueueSnapshot(snap models.RobotSnapshot) {
	snap.Lanes = append([]int(nil), snap.Lanes...)
	w.mu.Lock()
	w.snapshots[snap.Robot] = snap
	w.mu.Unlock()
	w.wake()
}

func (w *writer) enqueueClosed(lanes []int) {
	w.mu.Lock()
	w.closed = append([]int(nil), lanes...)
	w.closedDirty = true
	w.mu.Unlock()
	w.wake()
}

func (w *writer) wake() {
	select {
	case w.notify <- struct{}{}:
	default:
	}
}

// pending reports how many writes are waiting.
func (w *writer) pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := len(w.snapshots)
	if w.closedDirty {
		n++
	}
	return n
}

// flush writes everything queued so far.
func (w *writer) flush() {
	w.mu.Lock()
	snaps := w.snapshots
	w.snapshots = make(map[string]models.RobotSnapshot)
	closed, dirty := w.closed, w.closedDirty
	w.closedDirty = false
	w.mu.Unlock()

	robots := make([]string, 0, len(snaps))
	for robot := range snaps {
		robots = append(robots, robot)
	}
	sort.Strings(robots)
	for _, robot := range robots {
		snap := snaps[robot]
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		if err := w.store.SaveSnapshot(ctx, &snap); err != nil {
			utils.Logger.WithFields(utils.RobotFields(w.fleet, robot)).Errorf("Failed to store robot snapshot: %v", err)
		}
		cancel()
	}

	if dirty {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		if err := w.store.SaveClosedLanes(ctx, w.fleet, closed); err != nil {
			utils.Logger.Errorf("Failed to store closed lanes for fleet [%s]: %v", w.fleet, err)
		}
		cancel()
	}
}

// run applies queued writes until ctx is cancelled, then flushes once more.
func (w *writer) run(ctx context.Context) {
	w.flush()
	for {
		select {
		case <-w.notify:
			w.flush()
		case <-ctx.Done():
			w.flush()
			return
		}
	}
}

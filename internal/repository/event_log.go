package repository

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"fleet-adapter/internal/models"
	"fleet-adapter/internal/utils"

	"gorm.io/gorm"
)

const defaultBuffer = 1024

// EventLog persists fleet events. Record never blocks: events are queued and
// written by Run, and dropped when the queue is full.
type EventLog struct {
	db      *gorm.DB
	events  chan *models.FleetEvent
	dropped atomic.Int64
}

func NewEventLog(db *gorm.DB, buffer int) *EventLog {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &EventLog{
		db:     db,
		events: make(chan *models.FleetEvent, buffer),
	}
}

// Record queues an event.
func (l *EventLog) Record(event *models.FleetEvent) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	select {
	case l.events <- event:
	default:
		if n := l.dropped.Add(1); n == 1 || n%100 == 0 {
			utils.Logger.Warnf("Fleet event queue full; %d events dropped so far", n)
		}
	}
}

// Dropped is the number of events discarded because the queue was full.
func (l *EventLog) Dropped() int64 { return l.dropped.Load() }

// Run writes queued events until ctx is done, then flushes what is left.
func (l *EventLog) Run(ctx context.Context) {
	for {
		select {
		case ev := <-l.events:
			l.write(ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-l.events:
					l.write(ev)
				default:
					return
				}
			}
		}
	}
}

func (l *EventLog) write(ev *models.FleetEvent) {
	if err := l.db.Create(ev).Error; err != nil {
		utils.Logger.Errorf("Failed to store fleet event %s for %s/%s: %v", ev.Event, ev.Fleet, ev.Robot, err)
	}
}

// Recent returns the newest events of a robot, newest first. An empty robot
// name returns events of the whole fleet.
func (l *EventLog) Recent(fleet, robot string, limit int) ([]models.FleetEvent, error) {
	var events []models.FleetEvent

	query := l.db.Where("fleet = ?", fleet)
	if robot != "" {
		query = query.Where("robot = ?", robot)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Order("id DESC").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("query fleet events: %w", err)
	}
	return events, nil
}

package models

import "time"

// Fleet event types stored in the audit log.
const (
	EventAdmitted          = "admitted"
	EventAdmissionFailed   = "admission_failed"
	EventDispatched        = "dispatched"
	EventRetransmitted     = "retransmitted"
	EventRetransmitStalled = "retransmit_stalled"
	EventSuperseded        = "superseded"
	EventFinished          = "finished"
	EventInterrupted       = "interrupted"
	EventLanesClosed       = "lanes_closed"
)

// FleetEvent 명령 및 admission 이력 (DB 저장용)
type FleetEvent struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	CorrelationID string    `gorm:"size:36;index" json:"correlation_id"`
	Fleet         string    `gorm:"size:100;not null;index" json:"fleet"`
	Robot         string    `gorm:"size:100;index" json:"robot"`
	TaskID        uint64    `json:"task_id"`
	Command       string    `gorm:"size:20" json:"command"`
	Event         string    `gorm:"size:40;not null" json:"event"`
	Detail        string    `gorm:"type:text" json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

// RobotSnapshot 스케줄러 updater가 마지막으로 받은 로봇 정보 (Redis 저장용)
type RobotSnapshot struct {
	Fleet       string    `json:"fleet"`
	Robot       string    `json:"robot"`
	Battery     float64   `json:"battery"`
	X           float64   `json:"x"`
	Y           float64   `json:"y"`
	Yaw         float64   `json:"yaw"`
	Map         string    `json:"map"`
	Anchor      string    `json:"anchor"`
	Waypoint    int       `json:"waypoint"`
	Lanes       []int     `json:"lanes,omitempty"`
	Interrupted int       `json:"interrupted_count"`
	RouteMap    string    `json:"route_map,omitempty"`
	RoutePoints int       `json:"route_points,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

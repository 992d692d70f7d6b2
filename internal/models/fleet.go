package models

import "time"

// RobotMode 로봇이 보고하는 운영 모드. 값은 fleet driver 메시지와 동일하다.
type RobotMode uint32

const (
	ModeIdle RobotMode = iota
	ModeCharging
	ModeMoving
	ModePaused
	ModeWaiting
	ModeEmergency
	ModeGoingHome
	ModeDocking
	ModeAdapterError
)

var robotModeNames = map[RobotMode]string{
	ModeIdle:         "IDLE",
	ModeCharging:     "CHARGING",
	ModeMoving:       "MOVING",
	ModePaused:       "PAUSED",
	ModeWaiting:      "WAITING",
	ModeEmergency:    "EMERGENCY",
	ModeGoingHome:    "GOING_HOME",
	ModeDocking:      "DOCKING",
	ModeAdapterError: "ADAPTER_ERROR",
}

func (m RobotMode) String() string {
	if name, ok := robotModeNames[m]; ok {
		return name
	}
	return "UNKNOWN"
}

// RobotIdentity uniquely identifies a robot across fleets.
type RobotIdentity struct {
	Fleet string `json:"fleet_name"`
	Robot string `json:"robot_name"`
}

func (id RobotIdentity) String() string {
	return id.Fleet + "/" + id.Robot
}

// Location 로봇 위치 (map 좌표계)
type Location struct {
	T         time.Time `json:"t"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Yaw       float64   `json:"yaw"`
	LevelName string    `json:"level_name"`
}

// RobotState 로봇이 주기적으로 보고하는 상태
type RobotState struct {
	Name     string     `json:"name"`
	Model    string     `json:"model"`
	TaskID   string     `json:"task_id"`
	Mode     RobotMode  `json:"mode"`
	Battery  float64    `json:"battery"` // fraction in [0,1]
	Location Location   `json:"location"`
	Path     []Location `json:"path"`
}

// FleetState fleet driver가 발행하는 robot 상태 묶음
type FleetState struct {
	Name   string       `json:"name"`
	Robots []RobotState `json:"robots"`
}

// PathRequest 경로 추종 명령
type PathRequest struct {
	FleetName string     `json:"fleet_name"`
	RobotName string     `json:"robot_name"`
	TaskID    string     `json:"task_id"`
	Path      []Location `json:"path"`
}

// ModeParameter 모드 명령 파라미터
type ModeParameter struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ModeRequest 모드 변경 명령 (docking 등)
type ModeRequest struct {
	FleetName  string          `json:"fleet_name"`
	RobotName  string          `json:"robot_name"`
	TaskID     string          `json:"task_id"`
	Mode       RobotMode       `json:"mode"`
	Parameters []ModeParameter `json:"parameters"`
}

// LaneRequest 차선 개방/폐쇄 요청. FleetName이 비어 있으면 모든 fleet 대상.
type LaneRequest struct {
	FleetName  string `json:"fleet_name"`
	OpenLanes  []int  `json:"open_lanes"`
	CloseLanes []int  `json:"close_lanes"`
}

// ClosedLanes 현재 폐쇄된 차선 목록 (latched)
type ClosedLanes struct {
	FleetName   string `json:"fleet_name"`
	ClosedLanes []int  `json:"closed_lanes"`
}

package redis

import "fmt"

// Redis 키 패턴
const (
	// fleet_robot:{fleet}:{robot}
	RobotSnapshotPattern = "fleet_robot:%s:%s"

	// fleet_closed_lanes:{fleet}
	ClosedLanesPattern = "fleet_closed_lanes:%s"

	// fleet_robots:{fleet} 로봇 이름 집합
	FleetRobotsPattern = "fleet_robots:%s"
)

// RobotSnapshot 로봇 스냅샷 키 생성
func RobotSnapshot(fleet, robot string) string {
	return fmt.Sprintf(RobotSnapshotPattern, fleet, robot)
}

// ClosedLanes 닫힌 차선 키 생성
func ClosedLanes(fleet string) string {
	return fmt.Sprintf(ClosedLanesPattern, fleet)
}

// FleetRobots fleet 로봇 목록 키 생성
func FleetRobots(fleet string) string {
	return fmt.Sprintf(FleetRobotsPattern, fleet)
}

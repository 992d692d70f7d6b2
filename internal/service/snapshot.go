// internal/service/snapshot.go
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"fleet-adapter/internal/models"
	rediskeys "fleet-adapter/internal/redis"
	"fleet-adapter/internal/utils"

	"github.com/go-redis/redis/v8"
)

// ErrSnapshotNotFound Redis에 스냅샷이 없을 때
var ErrSnapshotNotFound = errors.New("snapshot not found")

// SnapshotService 스케줄러 updater가 받은 로봇 정보와 닫힌 차선을 Redis에 보관한다.
type SnapshotService struct {
	redisClient *redis.Client
}

func NewSnapshotService(redisClient *redis.Client) *SnapshotService {
	return &SnapshotService{redisClient: redisClient}
}

// SaveSnapshot 로봇 스냅샷 저장 (TTL 없음, 마지막 값 유지)
func (s *SnapshotService) SaveSnapshot(ctx context.Context, snap *models.RobotSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	pipe := s.redisClient.TxPipeline()
	pipe.Set(ctx, rediskeys.RobotSnapshot(snap.Fleet, snap.Robot), data, 0)
	pipe.SAdd(ctx, rediskeys.FleetRobots(snap.Fleet), snap.Robot)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save snapshot %s/%s: %w", snap.Fleet, snap.Robot, err)
	}
	return nil
}

// GetSnapshot 로봇 스냅샷 조회
func (s *SnapshotService) GetSnapshot(ctx context.Context, fleet, robot string) (*models.RobotSnapshot, error) {
	data, err := s.redisClient.Get(ctx, rediskeys.RobotSnapshot(fleet, robot)).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrSnapshotNotFound, fleet, robot)
	} else if err != nil {
		return nil, fmt.Errorf("get snapshot %s/%s: %w", fleet, robot, err)
	}

	var snap models.RobotSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot %s/%s: %w", fleet, robot, err)
	}
	return &snap, nil
}

// ListSnapshots fleet의 모든 로봇 스냅샷 조회 (로봇 이름 순)
func (s *SnapshotService) ListSnapshots(ctx context.Context, fleet string) ([]models.RobotSnapshot, error) {
	robots, err := s.redisClient.SMembers(ctx, rediskeys.FleetRobots(fleet)).Result()
	if err != nil {
		return nil, fmt.Errorf("list robots of %s: %w", fleet, err)
	}
	sort.Strings(robots)

	snaps := make([]models.RobotSnapshot, 0, len(robots))
	for _, robot := range robots {
		snap, err := s.GetSnapshot(ctx, fleet, robot)
		if errors.Is(err, ErrSnapshotNotFound) {
			continue
		} else if err != nil {
			utils.Logger.Warnf("Skipping snapshot of %s/%s: %v", fleet, robot, err)
			continue
		}
		snaps = append(snaps, *snap)
	}
	return snaps, nil
}

// SaveClosedLanes 닫힌 차선 저장. 집합 전체를 교체한다.
func (s *SnapshotService) SaveClosedLanes(ctx context.Context, fleet string, lanes []int) error {
	key := rediskeys.ClosedLanes(fleet)
	pipe := s.redisClient.TxPipeline()
	pipe.Del(ctx, key)
	if len(lanes) > 0 {
		members := make([]interface{}, len(lanes))
		for i, l := range lanes {
			members[i] = l
		}
		pipe.SAdd(ctx, key, members...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save closed lanes of %s: %w", fleet, err)
	}
	return nil
}

// GetClosedLanes 닫힌 차선 조회 (오름차순)
func (s *SnapshotService) GetClosedLanes(ctx context.Context, fleet string) ([]int, error) {
	members, err := s.redisClient.SMembers(ctx, rediskeys.ClosedLanes(fleet)).Result()
	if err != nil {
		return nil, fmt.Errorf("get closed lanes of %s: %w", fleet, err)
	}
	return parseClosedLanes(fleet, members), nil
}

// parseClosedLanes 집합 멤버를 차선 번호로 변환한다. 잘못된 멤버는 건너뛴다.
func parseClosedLanes(fleet string, members []string) []int {
	lanes := make([]int, 0, len(members))
	for _, m := range members {
		l, err := strconv.Atoi(m)
		if err != nil || l < 0 {
			utils.Logger.Warnf("Ignoring malformed closed lane %q for fleet %s", m, fleet)
			continue
		}
		lanes = append(lanes, l)
	}
	sort.Ints(lanes)
	return lanes
}

// internal/di/container.go
package di

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fleet-adapter/internal/api"
	"fleet-adapter/internal/config"
	"fleet-adapter/internal/database"
	"fleet-adapter/internal/fleet"
	"fleet-adapter/internal/graph"
	"fleet-adapter/internal/messaging"
	"fleet-adapter/internal/models"
	"fleet-adapter/internal/redis"
	"fleet-adapter/internal/repository"
	"fleet-adapter/internal/service"
	"fleet-adapter/internal/session"
	"fleet-adapter/internal/traffic"
	"fleet-adapter/internal/utils"

	goredis "github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

const shutdownTimeout = 5 * time.Second

// Container 의존성 주입 컨테이너
type Container struct {
	Config *config.Config
	Graph  *graph.Graph

	// Infrastructure
	DB          *gorm.DB
	RedisClient *goredis.Client
	MQTTClient  *messaging.MQTTClient

	// Stores
	EventLog  *repository.EventLog
	Snapshots *service.SnapshotService

	// Fleet
	Scheduler  *traffic.Scheduler
	Publisher  *messaging.Publisher
	Registry   *fleet.Registry
	Subscriber *messaging.Subscriber
	APIServer  *api.Server

	// Service
	FleetService *FleetService
}

// NewContainer 새로운 컨테이너 생성
func NewContainer(cfg *config.Config) (*Container, error) {
	c := &Container{Config: cfg}

	// 1. 내비게이션 그래프 로드
	g, err := graph.LoadFile(cfg.NavGraphFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load navigation graph: %w", err)
	}
	c.Graph = g

	// 2. 인프라 서비스들 초기화
	if err := c.initInfraServices(cfg); err != nil {
		c.Cleanup()
		return nil, fmt.Errorf("failed to init infra services: %w", err)
	}

	// 3. fleet 구성
	c.initFleet(cfg)

	// 4. fleet 서비스
	c.FleetService = NewFleetService(c)

	return c, nil
}

// initInfraServices 인프라 서비스들 초기화
func (c *Container) initInfraServices(cfg *config.Config) error {
	db, err := database.NewPostgresDB(cfg)
	if err != nil {
		return fmt.Errorf("database init failed: %w", err)
	}
	c.DB = db
	c.EventLog = repository.NewEventLog(db, 0)

	redisClient, err := redis.NewRedisClient(cfg)
	if err != nil {
		return fmt.Errorf("redis init failed: %w", err)
	}
	c.RedisClient = redisClient
	c.Snapshots = service.NewSnapshotService(redisClient)

	mqttClient, err := messaging.NewMQTTClient(cfg)
	if err != nil {
		return fmt.Errorf("mqtt init failed: %w", err)
	}
	c.MQTTClient = mqttClient
	return nil
}

func (c *Container) initFleet(cfg *config.Config) {
	topics := messaging.NewTopics(cfg.TopicPrefix)
	c.Publisher = messaging.NewPublisher(c.MQTTClient, topics)
	c.Scheduler = traffic.NewScheduler(cfg.FleetName, c.Graph, cfg.AdmissionRadius, c.Snapshots, utils.SystemClock)

	traits := graph.Traits{
		LinearVelocity:      cfg.LinearVelocity,
		LinearAcceleration:  cfg.LinearAcceleration,
		AngularVelocity:     cfg.AngularVelocity,
		AngularAcceleration: cfg.AngularAcceleration,
		FootprintRadius:     cfg.FootprintRadius,
		VicinityRadius:      cfg.VicinityRadius,
	}
	c.Registry = fleet.NewRegistry(cfg.FleetName, c.Graph, traits, c.Scheduler, c.Publisher, c.Publisher, registryOptions(cfg, c.EventLog))

	router := messaging.NewRouter(c.Registry, topics)
	c.Subscriber = messaging.NewSubscriber(c.MQTTClient, router, topics)

	h := api.NewHandler(c.Registry, c.EventLog, c.Snapshots, c.MQTTClient)
	c.APIServer = api.NewServer(cfg.HTTPAddr, h)
}

func registryOptions(cfg *config.Config, recorder session.Recorder) fleet.Options {
	opts := fleet.Options{
		Session: session.Options{
			RetryInterval:        cfg.RetryInterval,
			MaxRetransmits:       cfg.MaxRetransmits,
			DockScheduleInterval: cfg.DockScheduleInterval,
			OffPlanTolerance:     cfg.OffPlanTolerance,
			Clock:                utils.SystemClock,
			Recorder:             recorder,
		},
		ReadmissionInterval: cfg.ReadmissionInterval,
		MaxReadmissions:     cfg.MaxReadmissions,
	}
	opts.Profile.FootprintRadius = cfg.FootprintRadius
	opts.Profile.VicinityRadius = cfg.VicinityRadius
	return opts
}

// Cleanup 리소스 정리
func (c *Container) Cleanup() {
	if c.MQTTClient != nil {
		c.MQTTClient.Disconnect(250)
	}
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			utils.Logger.Warnf("Failed to close redis client: %v", err)
		}
	}
	if c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			sqlDB.Close()
		}
	}
	utils.Logger.Infof("Container cleanup completed")
}

// =============================================================================
// Fleet Service
// =============================================================================

// FleetService runs the adapter's background work: MQTT subscriptions, the
// snapshot and event log writers, the retransmission ticker and the operator
// API.
type FleetService struct {
	container *Container
	wg        sync.WaitGroup
}

func NewFleetService(container *Container) *FleetService {
	return &FleetService{container: container}
}

// Start 서비스 시작. ctx가 취소되면 백그라운드 작업을 멈춘다.
func (s *FleetService) Start(ctx context.Context) error {
	c := s.container

	s.restoreClosedLanes(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		c.Scheduler.Run(ctx)
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		c.EventLog.Run(ctx)
	}()

	if err := c.Subscriber.SubscribeAll(); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.tick(ctx, c.Config.RetryInterval/2)
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := c.APIServer.Start(); err != nil {
			utils.Logger.Errorf("❌ Operator API stopped: %v", err)
		}
	}()

	utils.Logger.Infof("🚀 Fleet adapter for fleet [%s] started successfully", c.Config.FleetName)
	return nil
}

// Stop shuts the API down and waits for the background work to finish. ctx
// passed to Start must already be cancelled.
func (s *FleetService) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.container.APIServer.Shutdown(ctx); err != nil {
		utils.Logger.Warnf("Operator API shutdown: %v", err)
	}
	s.wg.Wait()
	utils.Logger.Infof("💤 Fleet service stopped")
}

// tick polls sessions at a fraction of the retry interval so a retransmission
// falls due no later than half an interval after its deadline.
func (s *FleetService) tick(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.container.Registry.Tick()
		}
	}
}

// restoreClosedLanes re-applies the closed lanes stored by a previous run.
func (s *FleetService) restoreClosedLanes(ctx context.Context) {
	c := s.container
	lanes, err := c.Snapshots.GetClosedLanes(ctx, c.Config.FleetName)
	if err != nil {
		utils.Logger.Warnf("Could not restore closed lanes: %v", err)
		return
	}
	if len(lanes) == 0 {
		return
	}
	utils.Logger.Infof("🚧 Restoring %d closed lanes from a previous run", len(lanes))
	c.Registry.OnLaneClosure(models.LaneRequest{FleetName: c.Config.FleetName, CloseLanes: lanes})
}

// cmd/main.go - fleet adapter 메인
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"fleet-adapter/internal/config"
	"fleet-adapter/internal/di"
	"fleet-adapter/internal/utils"

	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var envFile, navGraph, fleetName string

	flagSet := pflag.NewFlagSet("fleet-adapter", pflag.ContinueOnError)
	flagSet.StringVar(&envFile, "env-file", ".env", "path to the environment file")
	flagSet.StringVar(&navGraph, "nav-graph", "", "navigation graph YAML file (overrides NAV_GRAPH_FILE)")
	flagSet.StringVar(&fleetName, "fleet", "", "fleet name (overrides FLEET_NAME)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	// 설정 로드
	cfg, err := config.Load(envFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if navGraph != "" {
		cfg.NavGraphFile = navGraph
	}
	if fleetName != "" {
		cfg.FleetName = fleetName
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	utils.SetupLogger(cfg.LogLevel)

	// DI 컨테이너 생성
	container, err := di.NewContainer(cfg)
	if err != nil {
		return fmt.Errorf("failed to create DI container: %w", err)
	}
	defer container.Cleanup()

	utils.Logger.Infof("🗺️ Navigation graph %s: %d waypoints, %d lanes",
		cfg.NavGraphFile, container.Graph.NumWaypoints(), container.Graph.NumLanes())
	for _, name := range container.Graph.Keys() {
		wp, _ := container.Graph.FindWaypoint(name)
		utils.Logger.Infof("   📍 %s [%s #%d] (%.2f, %.2f)", name, wp.Map, wp.Index, wp.Location.X, wp.Location.Y)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := container.FleetService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start fleet service: %w", err)
	}

	utils.Logger.Infof("🎯 Fleet adapter [%s] ready", cfg.FleetName)
	utils.Logger.Infof("📊 Services initialized:")
	utils.Logger.Infof("   ✅ Event Log (postgres)")
	utils.Logger.Infof("   ✅ Snapshot Store (redis)")
	utils.Logger.Infof("   ✅ MQTT Transport")
	utils.Logger.Infof("   ✅ Fleet Registry")
	utils.Logger.Infof("   ✅ Operator API on %s", cfg.HTTPAddr)

	// 우아한 종료 처리
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	utils.Logger.Infof("🛑 Shutdown signal received")
	cancel()
	container.FleetService.Stop()

	utils.Logger.Infof("✅ Fleet adapter shutdown completed")
	return nil
}

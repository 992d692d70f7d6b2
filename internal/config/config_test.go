package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Expected a missing env file to be tolerated: %v", err)
	}
	if cfg.RetryInterval != 200*time.Millisecond || cfg.MaxRetransmits != 50 || cfg.DockScheduleInterval != time.Second {
		t.Errorf("Unexpected command defaults %+v", cfg)
	}
	if cfg.LinearVelocity != 0.7 || cfg.AngularAcceleration != 1.5 || cfg.AdmissionRadius != 1.5 {
		t.Errorf("Unexpected vehicle defaults %+v", cfg)
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	content := strings.Join([]string{
		"FLEET_NAME=tinyRobot",
		"NAV_GRAPH_FILE=/tmp/nav.yaml",
		"RETRY_INTERVAL=500ms",
		"MAX_READMISSIONS=3",
		"OFF_PLAN_TOLERANCE=1.25",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		for _, key := range []string{"FLEET_NAME", "NAV_GRAPH_FILE", "RETRY_INTERVAL", "MAX_READMISSIONS", "OFF_PLAN_TOLERANCE"} {
			os.Unsetenv(key)
		}
	})

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.FleetName != "tinyRobot" || cfg.NavGraphFile != "/tmp/nav.yaml" {
		t.Errorf("Unexpected fleet settings %+v", cfg)
	}
	if cfg.RetryInterval != 500*time.Millisecond || cfg.MaxReadmissions != 3 || cfg.OffPlanTolerance != 1.25 {
		t.Errorf("Unexpected tuning %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected a valid config: %v", err)
	}
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("RETRY_INTERVAL", "soon")
	t.Setenv("MAX_RETRANSMITS", "many")
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err == nil || !strings.Contains(err.Error(), "RETRY_INTERVAL") {
		t.Errorf("Expected the first malformed key to be reported, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{FleetName: "f", NavGraphFile: "g.yaml", RetryInterval: time.Second, LinearVelocity: 1, AngularVelocity: 1}
	}
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing fleet", func(c *Config) { c.FleetName = "" }},
		{"missing graph", func(c *Config) { c.NavGraphFile = "" }},
		{"zero retry interval", func(c *Config) { c.RetryInterval = 0 }},
		{"zero velocity", func(c *Config) { c.LinearVelocity = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected a validation error")
			}
		})
	}
	if err := valid().Validate(); err != nil {
		t.Errorf("Expected a valid config: %v", err)
	}
}

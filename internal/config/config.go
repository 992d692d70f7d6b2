package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Fleet
	FleetName    string
	NavGraphFile string

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// MQTT
	MQTTBroker   string
	MQTTClientID string
	MQTTUsername string
	MQTTPassword string
	TopicPrefix  string

	// HTTP
	HTTPAddr string

	// Command synchronisation
	RetryInterval        time.Duration
	MaxRetransmits       int
	DockScheduleInterval time.Duration
	OffPlanTolerance     float64

	// Admission
	AdmissionRadius     float64
	ReadmissionInterval time.Duration
	MaxReadmissions     int

	// Vehicle traits
	LinearVelocity      float64
	LinearAcceleration  float64
	AngularVelocity     float64
	AngularAcceleration float64
	FootprintRadius     float64
	VicinityRadius      float64

	// Application
	LogLevel string
}

// Load reads envFile (if present) into the process environment and builds the
// configuration from it. A missing env file is not an error.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	p := &parser{}
	cfg := &Config{
		FleetName:    getEnv("FLEET_NAME", ""),
		NavGraphFile: getEnv("NAV_GRAPH_FILE", ""),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "password"),
		DBName:     getEnv("DB_NAME", "fleet_adapter"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       p.integer("REDIS_DB", 0),

		MQTTBroker:   getEnv("MQTT_BROKER", "tcp://localhost:1883"),
		MQTTClientID: getEnv("MQTT_CLIENT_ID", ""),
		MQTTUsername: getEnv("MQTT_USERNAME", ""),
		MQTTPassword: getEnv("MQTT_PASSWORD", ""),
		TopicPrefix:  getEnv("TOPIC_PREFIX", "rmf"),

		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		RetryInterval:        p.duration("RETRY_INTERVAL", 200*time.Millisecond),
		MaxRetransmits:       p.integer("MAX_RETRANSMITS", 50),
		DockScheduleInterval: p.duration("DOCK_SCHEDULE_INTERVAL", time.Second),
		OffPlanTolerance:     p.float("OFF_PLAN_TOLERANCE", 2.0),

		AdmissionRadius:     p.float("ADMISSION_RADIUS", 1.5),
		ReadmissionInterval: p.duration("READMISSION_INTERVAL", 10*time.Second),
		MaxReadmissions:     p.integer("MAX_READMISSIONS", 30),

		LinearVelocity:      p.float("LINEAR_VELOCITY", 0.7),
		LinearAcceleration:  p.float("LINEAR_ACCELERATION", 0.3),
		AngularVelocity:     p.float("ANGULAR_VELOCITY", 0.5),
		AngularAcceleration: p.float("ANGULAR_ACCELERATION", 1.5),
		FootprintRadius:     p.float("FOOTPRINT_RADIUS", 0.5),
		VicinityRadius:      p.float("VICINITY_RADIUS", 1.5),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
	if p.err != nil {
		return nil, p.err
	}
	return cfg, nil
}

// Validate checks the settings the adapter cannot run without.
func (c *Config) Validate() error {
	if c.FleetName == "" {
		return errors.New("missing FLEET_NAME")
	}
	if c.NavGraphFile == "" {
		return errors.New("missing NAV_GRAPH_FILE")
	}
	if c.RetryInterval <= 0 {
		return fmt.Errorf("RETRY_INTERVAL must be positive, got %s", c.RetryInterval)
	}
	if c.LinearVelocity <= 0 || c.AngularVelocity <= 0 {
		return errors.New("vehicle velocities must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parser keeps the first conversion error so Load can report it once.
type parser struct {
	err error
}

func (p *parser) fail(key, value string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s=%q: %w", key, value, err)
	}
}

func (p *parser) integer(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

func (p *parser) float(key string, def float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

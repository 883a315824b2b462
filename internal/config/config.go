package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"minigolf/engine/internal/physics"
)

const (
	// DefaultAddr is where the WebSocket hub and operational HTTP endpoints listen.
	DefaultAddr = ":43127"
	// DefaultGRPCAddr is where the simulation gRPC service listens.
	DefaultGRPCAddr = ":43128"
	// DefaultTickHz paces live shots for observers.
	DefaultTickHz = 60.0
	// DefaultMaxShotTicks stops a shot that never settles.
	DefaultMaxShotTicks = 20000

	// DefaultPingInterval controls the keepalive cadence for WebSocket connections.
	DefaultPingInterval = 30 * time.Second
	// DefaultMaxPayloadBytes limits inbound WebSocket frame size.
	DefaultMaxPayloadBytes int64 = 64 << 10
	// DefaultMaxClients bounds concurrent WebSocket observers. Zero disables the limit.
	DefaultMaxClients = 64

	// DefaultReplayMaxShots is how many recorded shots the cleaner keeps.
	DefaultReplayMaxShots = 50
	// DefaultReplayMaxAge is how long recorded shots are kept.
	DefaultReplayMaxAge = 7 * 24 * time.Hour

	// DefaultLogLevel controls verbosity.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "golfsim.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true
)

// Config captures all runtime tunables for the simulator.
type Config struct {
	Address         string
	GRPCAddress     string
	GRPCSecret      string
	AdminToken      string
	AllowedOrigins  []string
	MaxPayloadBytes int64
	PingInterval    time.Duration
	MaxClients      int

	TickHz       float64
	MaxShotTicks int
	CoursePath   string

	ReplayDir      string
	ReplayMaxShots int
	ReplayMaxAge   time.Duration

	Gravity        float64
	BounceFactor   float64
	FrictionFactor float64
	MaxLaunchSpeed float64

	Logging LoggingConfig
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Load reads the configuration from GOLF_* environment variables. Every invalid override
// is reported in a single error.
func Load() (*Config, error) {
	defaults := physics.DefaultConfig()
	cfg := &Config{
		Address:         getString("GOLF_ADDR", DefaultAddr),
		GRPCAddress:     getString("GOLF_GRPC_ADDR", DefaultGRPCAddr),
		GRPCSecret:      strings.TrimSpace(os.Getenv("GOLF_GRPC_SHARED_SECRET")),
		AdminToken:      strings.TrimSpace(os.Getenv("GOLF_ADMIN_TOKEN")),
		AllowedOrigins:  parseList(os.Getenv("GOLF_ALLOWED_ORIGINS")),
		MaxPayloadBytes: DefaultMaxPayloadBytes,
		PingInterval:    DefaultPingInterval,
		MaxClients:      DefaultMaxClients,
		TickHz:          DefaultTickHz,
		MaxShotTicks:    DefaultMaxShotTicks,
		CoursePath:      strings.TrimSpace(os.Getenv("GOLF_COURSE_PATH")),
		ReplayDir:       strings.TrimSpace(os.Getenv("GOLF_REPLAY_DIR")),
		ReplayMaxShots:  DefaultReplayMaxShots,
		ReplayMaxAge:    DefaultReplayMaxAge,
		Gravity:         defaults.Gravity,
		BounceFactor:    defaults.BounceFactor,
		FrictionFactor:  defaults.FrictionFactor,
		MaxLaunchSpeed:  defaults.MaxLaunchSpeed,
		Logging: LoggingConfig{
			Level:      getString("GOLF_LOG_LEVEL", DefaultLogLevel),
			Path:       getString("GOLF_LOG_PATH", DefaultLogPath),
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},
	}

	p := &parser{}
	p.int64Var("GOLF_MAX_PAYLOAD_BYTES", &cfg.MaxPayloadBytes, positive64, "a positive integer")
	p.durationVar("GOLF_PING_INTERVAL", &cfg.PingInterval)
	p.intVar("GOLF_MAX_CLIENTS", &cfg.MaxClients, nonNegative, "a non-negative integer")
	p.floatVar("GOLF_TICK_HZ", &cfg.TickHz)
	p.intVar("GOLF_MAX_SHOT_TICKS", &cfg.MaxShotTicks, positive, "a positive integer")
	p.intVar("GOLF_REPLAY_MAX_SHOTS", &cfg.ReplayMaxShots, nonNegative, "a non-negative integer")
	p.durationVar("GOLF_REPLAY_MAX_AGE", &cfg.ReplayMaxAge)
	p.floatVar("GOLF_GRAVITY", &cfg.Gravity)
	p.floatVar("GOLF_BOUNCE_FACTOR", &cfg.BounceFactor)
	p.floatVar("GOLF_FRICTION_FACTOR", &cfg.FrictionFactor)
	p.floatVar("GOLF_MAX_LAUNCH_SPEED", &cfg.MaxLaunchSpeed)
	p.intVar("GOLF_LOG_MAX_SIZE_MB", &cfg.Logging.MaxSizeMB, positive, "a positive integer")
	p.intVar("GOLF_LOG_MAX_BACKUPS", &cfg.Logging.MaxBackups, nonNegative, "a non-negative integer")
	p.intVar("GOLF_LOG_MAX_AGE_DAYS", &cfg.Logging.MaxAgeDays, nonNegative, "a non-negative integer")
	p.boolVar("GOLF_LOG_COMPRESS", &cfg.Logging.Compress)

	//1.- Physics overrides are checked together so a bad combination is reported once.
	if len(p.problems) == 0 {
		if _, err := cfg.Physics(); err != nil {
			p.problems = append(p.problems, err.Error())
		}
	}

	if len(p.problems) > 0 {
		return nil, errors.New(strings.Join(p.problems, "; "))
	}
	return cfg, nil
}

// Physics returns the validated physics tunables derived from the configuration.
func (c *Config) Physics() (physics.Config, error) {
	pc := physics.DefaultConfig()
	pc.Gravity = c.Gravity
	pc.BounceFactor = c.BounceFactor
	pc.FrictionFactor = c.FrictionFactor
	pc.MaxLaunchSpeed = c.MaxLaunchSpeed
	if err := pc.Validate(); err != nil {
		return physics.Config{}, fmt.Errorf("physics: %w", err)
	}
	return pc, nil
}

// ReplayEnabled reports whether shots should be recorded to disk.
func (c *Config) ReplayEnabled() bool {
	return c != nil && c.ReplayDir != ""
}

type parser struct {
	problems []string
}

func (p *parser) intVar(key string, dst *int, ok func(int) bool, want string) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	value, err := strconv.Atoi(raw)
	if err != nil || !ok(value) {
		p.problems = append(p.problems, fmt.Sprintf("%s must be %s, got %q", key, want, raw))
		return
	}
	*dst = value
}

func (p *parser) int64Var(key string, dst *int64, ok func(int64) bool, want string) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || !ok(value) {
		p.problems = append(p.problems, fmt.Sprintf("%s must be %s, got %q", key, want, raw))
		return
	}
	*dst = value
}

func (p *parser) floatVar(key string, dst *float64) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || value <= 0 {
		p.problems = append(p.problems, fmt.Sprintf("%s must be a positive number, got %q", key, raw))
		return
	}
	*dst = value
}

func (p *parser) durationVar(key string, dst *time.Duration) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		p.problems = append(p.problems, fmt.Sprintf("%s must be a positive duration, got %q", key, raw))
		return
	}
	*dst = value
}

func (p *parser) boolVar(key string, dst *bool) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		p.problems = append(p.problems, fmt.Sprintf("%s must be a boolean value, got %q", key, raw))
		return
	}
	*dst = value
}

func positive(v int) bool     { return v > 0 }
func nonNegative(v int) bool  { return v >= 0 }
func positive64(v int64) bool { return v > 0 }

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			values = append(values, item)
		}
	}
	return values
}

package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roomsync/roomsync/server/internal/ratelimit"
)

// Default values for the server configuration.
const (
	DefaultHTTPPort       = 3001
	DefaultGRPCPort       = 50051
	DefaultLogLevel       = "info"
	DefaultStateTTL       = time.Hour
	DefaultSweepInterval  = 10 * time.Minute
	DefaultMaxRooms       = 10000
	DefaultRateLimitPerIP = 20
	DefaultMaxBodyBytes   = 64 << 10
)

// Config holds the server-side configuration parsed from the `server:` section
// of the config file.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// HTTPPort is the port the HTTP API listens on.
	HTTPPort int `yaml:"http_port"`

	// GRPCPort is the port the gRPC API listens on. Zero disables it.
	GRPCPort int `yaml:"grpc_port"`

	// LogLevel is one of: debug | info | warn | error.
	LogLevel string `yaml:"log_level"`

	// State controls room register retention.
	State StateConfig `yaml:"state"`

	// HTTP holds settings for the HTTP transport.
	HTTP HTTPConfig `yaml:"http"`
}

// StateConfig controls the in-memory room state store.
type StateConfig struct {
	// TTL is how long a room's register survives after its last write timestamp.
	TTL time.Duration `yaml:"ttl"`

	// SweepInterval is how often expired registers are removed.
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// MaxRooms caps the number of tracked rooms. -1 disables the cap; 0 is
	// rejected.
	MaxRooms int `yaml:"max_rooms"`

	// LazyExpiry reports registers older than TTL as unknown on read, even
	// before the next sweep.
	LazyExpiry bool `yaml:"lazy_expiry"`
}

// HTTPConfig holds HTTP transport settings.
type HTTPConfig struct {
	// RateLimitPerIP is the sustained number of state writes per second allowed
	// from one client IP. Zero disables rate limiting.
	RateLimitPerIP float64 `yaml:"rate_limit_per_ip"`

	// MaxBodyBytes bounds the size of a state write request body.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// CORSOrigins lists allowed origins. "*" allows all.
	CORSOrigins []string `yaml:"cors_origins"`

	// TrustedProxies lists the addresses or CIDR ranges of reverse proxies
	// whose X-Forwarded-For and X-Real-IP headers identify the client. Empty
	// means the connection's remote address is always used.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// Level returns LogLevel as an slog.Level. Unknown values map to info.
func (s ServerConfig) Level() slog.Level {
	switch strings.ToLower(s.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load reads and parses the config file at path, returning the server configuration.
// Missing fields are filled with sensible defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overrides file settings from the environment, read through getenv.
// PORT replaces http_port. The result is validated again.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("server config: PORT %q is not a number", v)
		}
		c.Server.HTTPPort = port
	}
	if err := validate(c); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	return nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return defaults()
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: DefaultHTTPPort,
			GRPCPort: DefaultGRPCPort,
			LogLevel: DefaultLogLevel,
			State: StateConfig{
				TTL:           DefaultStateTTL,
				SweepInterval: DefaultSweepInterval,
				MaxRooms:      DefaultMaxRooms,
			},
			HTTP: HTTPConfig{
				RateLimitPerIP: DefaultRateLimitPerIP,
				MaxBodyBytes:   DefaultMaxBodyBytes,
				CORSOrigins:    []string{"*"},
			},
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	if s.GRPCPort < 0 || s.GRPCPort > 65535 {
		return fmt.Errorf("server.grpc_port %d is out of range [0, 65535]", s.GRPCPort)
	}
	if s.GRPCPort != 0 && s.GRPCPort == s.HTTPPort {
		return fmt.Errorf("server.grpc_port and server.http_port must differ (both %d)", s.HTTPPort)
	}
	switch strings.ToLower(s.LogLevel) {
	case "debug", "info", "warn", "warning", "error", "":
	default:
		return fmt.Errorf("server.log_level %q unknown: want debug|info|warn|error", s.LogLevel)
	}
	if s.State.TTL < 0 {
		return fmt.Errorf("server.state.ttl must not be negative")
	}
	if s.State.SweepInterval < 0 {
		return fmt.Errorf("server.state.sweep_interval must not be negative")
	}
	if s.State.TTL > 0 && s.State.SweepInterval > s.State.TTL {
		return fmt.Errorf("server.state.sweep_interval %v exceeds server.state.ttl %v",
			s.State.SweepInterval, s.State.TTL)
	}
	if s.State.MaxRooms == 0 || s.State.MaxRooms < -1 {
		return fmt.Errorf("server.state.max_rooms %d invalid: want -1 (unlimited) or >= 1", s.State.MaxRooms)
	}
	if s.HTTP.RateLimitPerIP < 0 {
		return fmt.Errorf("server.http.rate_limit_per_ip must not be negative")
	}
	if s.HTTP.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.http.max_body_bytes must be positive")
	}
	if _, err := ratelimit.ParseTrustedProxies(s.HTTP.TrustedProxies); err != nil {
		return fmt.Errorf("server.http.trusted_proxies: %w", err)
	}
	return nil
}

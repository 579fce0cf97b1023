package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoad_Defaults(t *testing.T) {
	p := writeConfig(t, "server: {}\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := cfg.Server
	if s.HTTPPort != DefaultHTTPPort {
		t.Errorf("http_port: got %d, want %d", s.HTTPPort, DefaultHTTPPort)
	}
	if s.GRPCPort != DefaultGRPCPort {
		t.Errorf("grpc_port: got %d, want %d", s.GRPCPort, DefaultGRPCPort)
	}
	if s.State.TTL != DefaultStateTTL {
		t.Errorf("state.ttl: got %v, want %v", s.State.TTL, DefaultStateTTL)
	}
	if s.State.SweepInterval != DefaultSweepInterval {
		t.Errorf("state.sweep_interval: got %v, want %v", s.State.SweepInterval, DefaultSweepInterval)
	}
	if s.State.MaxRooms != DefaultMaxRooms {
		t.Errorf("state.max_rooms: got %d, want %d", s.State.MaxRooms, DefaultMaxRooms)
	}
	if len(s.HTTP.CORSOrigins) != 1 || s.HTTP.CORSOrigins[0] != "*" {
		t.Errorf("http.cors_origins: got %v, want [*]", s.HTTP.CORSOrigins)
	}
	if s.Level() != slog.LevelInfo {
		t.Errorf("Level: got %v, want info", s.Level())
	}
}

func TestLoad_FullServer(t *testing.T) {
	p := writeConfig(t, `server:
  http_port: 8080
  grpc_port: 0
  log_level: debug
  state:
    ttl: 30m
    sweep_interval: 1m
    max_rooms: -1
    lazy_expiry: true
  http:
    rate_limit_per_ip: 5
    max_body_bytes: 1024
    cors_origins:
      - https://jam.example.com
    trusted_proxies: [10.0.0.0/8, 192.0.2.10]
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := cfg.Server
	if s.HTTPPort != 8080 || s.GRPCPort != 0 {
		t.Errorf("ports: got %d/%d, want 8080/0", s.HTTPPort, s.GRPCPort)
	}
	if s.Level() != slog.LevelDebug {
		t.Errorf("Level: got %v, want debug", s.Level())
	}
	if s.State.TTL != 30*time.Minute || s.State.SweepInterval != time.Minute {
		t.Errorf("state durations: got %v/%v", s.State.TTL, s.State.SweepInterval)
	}
	if s.State.MaxRooms != -1 || !s.State.LazyExpiry {
		t.Errorf("state: got max_rooms=%d lazy=%v", s.State.MaxRooms, s.State.LazyExpiry)
	}
	if s.HTTP.RateLimitPerIP != 5 || s.HTTP.MaxBodyBytes != 1024 {
		t.Errorf("http: got %+v", s.HTTP)
	}
	if len(s.HTTP.CORSOrigins) != 1 || s.HTTP.CORSOrigins[0] != "https://jam.example.com" {
		t.Errorf("cors_origins: got %v", s.HTTP.CORSOrigins)
	}
	if len(s.HTTP.TrustedProxies) != 2 || s.HTTP.TrustedProxies[1] != "192.0.2.10" {
		t.Errorf("trusted_proxies: got %v", s.HTTP.TrustedProxies)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := map[string]string{
		"http port":      "server:\n  http_port: 70000\n",
		"same ports":     "server:\n  http_port: 9000\n  grpc_port: 9000\n",
		"log level":      "server:\n  log_level: chatty\n",
		"negative ttl":   "server:\n  state:\n    ttl: -1m\n",
		"sweep over ttl": "server:\n  state:\n    ttl: 5m\n    sweep_interval: 10m\n",
		"max rooms":      "server:\n  state:\n    max_rooms: -5\n",
		"zero max rooms": "server:\n  state:\n    max_rooms: 0\n",
		"trusted proxy":  "server:\n  http:\n    trusted_proxies: [\"not-an-ip\"]\n",
		"rate limit":     "server:\n  http:\n    rate_limit_per_ip: -1\n",
		"body size":      "server:\n  http:\n    max_body_bytes: 0\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, content)); err == nil {
				t.Fatal("expected validation error, got nil")
			}
		})
	}
}

func TestApplyEnv_Port(t *testing.T) {
	env := func(v string) func(string) string {
		return func(key string) string {
			if key == "PORT" {
				return v
			}
			return ""
		}
	}

	cfg := Default()
	if err := cfg.ApplyEnv(env("")); err != nil {
		t.Fatalf("ApplyEnv without PORT: %v", err)
	}
	if cfg.Server.HTTPPort != DefaultHTTPPort {
		t.Errorf("http_port without PORT: got %d, want %d", cfg.Server.HTTPPort, DefaultHTTPPort)
	}

	if err := cfg.ApplyEnv(env("8080")); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Server.HTTPPort != 8080 {
		t.Errorf("http_port: got %d, want 8080", cfg.Server.HTTPPort)
	}

	for _, bad := range []string{"http", "0", "70000", "50051"} {
		if err := Default().ApplyEnv(env(bad)); err == nil {
			t.Errorf("PORT=%q: expected error", bad)
		}
	}
}

func TestLoad_BadYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "server: [unterminated\n")); err == nil {
		t.Fatal("expected parse error, got nil")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

// startWatch runs Watch on p in the background and returns the channel of
// reloaded configs. The watcher is stopped when the test ends.
func startWatch(t *testing.T, p string) <-chan *Config {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	got := make(chan *Config, 16)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, p, func(c *Config) {
			select {
			case got <- c:
			default:
			}
		})
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Watch returned %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("Watch did not return after cancel")
		}
	})

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	return got
}

// waitForMaxRooms drains got until a config with the wanted max_rooms shows
// up. A truncating write can surface an intermediate empty file first.
func waitForMaxRooms(t *testing.T, got <-chan *Config, want int) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case c := <-got:
			if c.Server.State.MaxRooms == want {
				return
			}
		case <-deadline:
			t.Fatalf("Watch did not report max_rooms %d", want)
		}
	}
}

func maxRoomsYAML(n int) []byte {
	return []byte(fmt.Sprintf("server:\n  state:\n    max_rooms: %d\n", n))
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	p := writeConfig(t, string(maxRoomsYAML(10)))
	got := startWatch(t, p)

	if err := os.WriteFile(p, maxRoomsYAML(20), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	waitForMaxRooms(t, got, 20)
}

func TestWatch_ReloadsAfterRenameOver(t *testing.T) {
	p := writeConfig(t, string(maxRoomsYAML(10)))
	got := startWatch(t, p)

	tmp := filepath.Join(filepath.Dir(p), ".config.yaml.tmp")
	if err := os.WriteFile(tmp, maxRoomsYAML(30), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		t.Fatalf("rename over config: %v", err)
	}
	waitForMaxRooms(t, got, 30)

	// The watch survives the replacement.
	if err := os.WriteFile(p, maxRoomsYAML(40), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	waitForMaxRooms(t, got, 40)
}

func TestWatch_IgnoresSiblingFiles(t *testing.T) {
	p := writeConfig(t, string(maxRoomsYAML(10)))
	got := startWatch(t, p)

	sibling := filepath.Join(filepath.Dir(p), "other.yaml")
	if err := os.WriteFile(sibling, maxRoomsYAML(50), 0o600); err != nil {
		t.Fatalf("write sibling: %v", err)
	}
	select {
	case c := <-got:
		t.Fatalf("unexpected reload from sibling file: max_rooms %d", c.Server.State.MaxRooms)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatch_MissingFile(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "absent.yaml"), func(*Config) {})
	if err == nil {
		t.Fatal("expected error watching a missing file")
	}
}

package config

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DB_HOST", "")
	t.Setenv("MONGO_URI", "")
	t.Setenv("SERVER_PORT", "4445")
	t.Setenv("MULTICAST_ADDRESS", "230.0.0.0")
	t.Setenv("GAME_START_DELAY", "5s")
	t.Setenv("MIN_PLAYERS", "2")

	cfg := LoadConfig()
	if cfg.ServerPort != 4445 {
		t.Fatalf("ServerPort = %d, want 4445", cfg.ServerPort)
	}
	if cfg.GameStartDelay != 5*time.Second {
		t.Fatalf("GameStartDelay = %s, want 5s", cfg.GameStartDelay)
	}
	if cfg.PostgresEnabled() || cfg.MongoEnabled() {
		t.Fatalf("stores should be disabled with empty DB_HOST and MONGO_URI")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestGetEnvFallsBackOnGarbage(t *testing.T) {
	t.Setenv("PROGRESS_TICK", "soon")
	t.Setenv("MULTICAST_PORT", "abc")
	cfg := LoadConfig()
	if cfg.ProgressTick != 2*time.Second {
		t.Fatalf("ProgressTick = %s, want 2s default", cfg.ProgressTick)
	}
	if cfg.MulticastPort != 4446 {
		t.Fatalf("MulticastPort = %d, want 4446 default", cfg.MulticastPort)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		t.Setenv("MULTICAST_ADDRESS", "230.0.0.0")
		t.Setenv("SERVER_HOST", "localhost")
		t.Setenv("MIN_PLAYERS", "2")
		return LoadConfig()
	}

	cfg := base()
	cfg.MulticastAddress = "not-an-ip"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for bad multicast address")
	}

	cfg = base()
	cfg.MinPlayers = 1
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for MinPlayers < 2")
	}

	cfg = base()
	cfg.ProgressTick = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for zero tick")
	}

	cfg = base()
	cfg.ServerPort = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for out-of-range port")
	}
}

func TestUnicastAddr(t *testing.T) {
	cfg := &Config{ServerHost: "127.0.0.1", ServerPort: 9000}
	if got := cfg.UnicastAddr(); got != "127.0.0.1:9000" {
		t.Fatalf("UnicastAddr = %q", got)
	}
}

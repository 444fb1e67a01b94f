package config

import (
	"testing"
	"time"
)

func TestLoadConfigRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error when JWT_SECRET is empty")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("REALTIME_DRIVER", "")
	t.Setenv("TYPING_TIMEOUT", "")
	t.Setenv("APP_ENV", "dev")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.RealtimeDriver != RealtimeDriverMemory {
		t.Fatalf("expected memory driver, got %q", cfg.RealtimeDriver)
	}
	if cfg.TypingTimeout != 3*time.Second {
		t.Fatalf("expected 3s typing timeout, got %s", cfg.TypingTimeout)
	}
	if !cfg.IsDevelopment() {
		t.Fatalf("expected development env, got %q", cfg.AppEnv)
	}
}

func TestLoadConfigRejectsUnknownDriver(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("REALTIME_DRIVER", "kafka")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
}

func TestGetEnvDurationFallsBackOnGarbage(t *testing.T) {
	t.Setenv("TYPING_TIMEOUT", "soon")

	if got := getEnvDuration("TYPING_TIMEOUT", time.Second); got != time.Second {
		t.Fatalf("expected fallback, got %s", got)
	}

	t.Setenv("TYPING_TIMEOUT", "250ms")
	if got := getEnvDuration("TYPING_TIMEOUT", time.Second); got != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %s", got)
	}
}

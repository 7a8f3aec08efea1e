package config

import (
	"errors"
	"os"
	"testing"
	"time"
)

// chdir changes into dir for the duration of the test. It stands in for
// t.Chdir, which requires Go 1.24.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd() error = %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir(%q) error = %v", dir, err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatalf("Chdir(%q) error = %v", old, err)
		}
	})
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != ":8080" {
		t.Errorf("Port = %q, want :8080", cfg.Port)
	}
	if cfg.RoutingPolicy != RoutingGlobal {
		t.Errorf("RoutingPolicy = %q, want global", cfg.RoutingPolicy)
	}
	if cfg.MaxMessageSize != 4096 {
		t.Errorf("MaxMessageSize = %d, want 4096", cfg.MaxMessageSize)
	}
	if cfg.RateLimit.Burst != 5 || cfg.RateLimit.RefillInterval != time.Second {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
	if cfg.Auth.Secret != "" || cfg.Auth.StrictClaims {
		t.Errorf("Auth = %+v, want empty lax defaults", cfg.Auth)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CHATRELAY_PORT", ":9090")
	t.Setenv("CHATRELAY_ROUTING_POLICY", "room")
	t.Setenv("CHATRELAY_AUTH_SECRET", "super-secret")
	t.Setenv("CHATRELAY_AUTH_STRICT_CLAIMS", "true")
	t.Setenv("CHATRELAY_ALLOWED_ORIGINS", "http://a.example.com, http://b.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != ":9090" {
		t.Errorf("Port = %q, want :9090", cfg.Port)
	}
	if cfg.RoutingPolicy != RoutingRoom {
		t.Errorf("RoutingPolicy = %q, want room", cfg.RoutingPolicy)
	}
	if cfg.Auth.Secret != "super-secret" {
		t.Errorf("Auth.Secret = %q", cfg.Auth.Secret)
	}
	if !cfg.Auth.StrictClaims {
		t.Error("Auth.StrictClaims = false, want true")
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[0] != "http://a.example.com" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
}

func TestLoadRejectsInvalidRoutingPolicy(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CHATRELAY_ROUTING_POLICY", "multicast")

	if _, err := Load(); !errors.Is(err, ErrInvalidRoutingPolicy) {
		t.Errorf("Load() error = %v, want ErrInvalidRoutingPolicy", err)
	}
}

func TestSanitize(t *testing.T) {
	cfg := &Config{
		Port:          "9090",
		RoutingPolicy: RoutingGlobal,
	}
	if err := cfg.sanitize(); err != nil {
		t.Fatalf("sanitize() error = %v", err)
	}

	if cfg.Port != ":9090" {
		t.Errorf("Port = %q, want :9090", cfg.Port)
	}
	if cfg.MaxMessageSize != 4096 {
		t.Errorf("MaxMessageSize = %d, want default 4096", cfg.MaxMessageSize)
	}
	if cfg.RateLimit.Burst != 5 {
		t.Errorf("RateLimit.Burst = %d, want default 5", cfg.RateLimit.Burst)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v, want default 10s", cfg.ShutdownTimeout)
	}
}

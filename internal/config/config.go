// Package config loads and sanitizes the runtime configuration for the
// chatrelay service. Values come from defaults, an optional config file, and
// CHATRELAY_-prefixed environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// RoutingPolicy selects how chat messages are scoped for delivery. The two
// policies are mutually exclusive per deployment.
type RoutingPolicy string

const (
	// RoutingGlobal delivers every chat message to all registered
	// connections, including the sender.
	RoutingGlobal RoutingPolicy = "global"
	// RoutingRoom delivers chat messages only to members of the tagged
	// room, excluding the sender.
	RoutingRoom RoutingPolicy = "room"
)

// ErrInvalidRoutingPolicy is returned when the configured routing policy is
// neither "global" nor "room".
var ErrInvalidRoutingPolicy = errors.New("routing policy must be \"global\" or \"room\"")

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// AuthConfig holds the token verification settings.
type AuthConfig struct {
	// Secret is the HMAC signing secret shared with the identity issuer.
	// An empty secret makes the whole service refuse to start.
	Secret string
	// Issuer and Audience, when set, are compared against the token's
	// registered claims. Mismatches are logged as warnings unless
	// StrictClaims promotes them to hard failures.
	Issuer       string
	Audience     string
	StrictClaims bool
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port            string
	AllowedOrigins  []string
	MaxMessageSize  int64
	RateLimit       RateLimitConfig
	Auth            AuthConfig
	RoutingPolicy   RoutingPolicy
	ShutdownTimeout time.Duration
	Debug           bool
}

func defaults() *Config {
	return &Config{
		Port: ":8080",
		AllowedOrigins: []string{
			"http://localhost:3000",
		},
		MaxMessageSize: 4096,
		RateLimit: RateLimitConfig{
			Burst:          5,
			RefillInterval: time.Second,
		},
		RoutingPolicy:   RoutingGlobal,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Load reads the configuration from an optional config.yaml in the working
// directory and from the environment, then validates and sanitizes it.
func Load() (*Config, error) {
	v := viper.New()

	def := defaults()
	v.SetDefault("port", def.Port)
	v.SetDefault("allowed_origins", def.AllowedOrigins)
	v.SetDefault("max_message_size", def.MaxMessageSize)
	v.SetDefault("rate_limit.burst", def.RateLimit.Burst)
	v.SetDefault("rate_limit.refill_interval", def.RateLimit.RefillInterval)
	v.SetDefault("routing_policy", string(def.RoutingPolicy))
	v.SetDefault("shutdown_timeout", def.ShutdownTimeout)
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.audience", "")
	v.SetDefault("auth.strict_claims", false)
	v.SetDefault("debug", false)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("chatrelay")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := &Config{
		Port:           v.GetString("port"),
		AllowedOrigins: splitOrigins(v.GetStringSlice("allowed_origins")),
		MaxMessageSize: v.GetInt64("max_message_size"),
		RateLimit: RateLimitConfig{
			Burst:          v.GetInt("rate_limit.burst"),
			RefillInterval: v.GetDuration("rate_limit.refill_interval"),
		},
		Auth: AuthConfig{
			Secret:       v.GetString("auth.secret"),
			Issuer:       v.GetString("auth.issuer"),
			Audience:     v.GetString("auth.audience"),
			StrictClaims: v.GetBool("auth.strict_claims"),
		},
		RoutingPolicy:   RoutingPolicy(v.GetString("routing_policy")),
		ShutdownTimeout: v.GetDuration("shutdown_timeout"),
		Debug:           v.GetBool("debug"),
	}

	if err := cfg.sanitize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// splitOrigins accepts both repeated values and a single comma-separated
// value, which is how the origins arrive from an environment variable.
func splitOrigins(values []string) []string {
	var origins []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				origins = append(origins, part)
			}
		}
	}
	return origins
}

func (c *Config) sanitize() error {
	def := defaults()

	if c.Port == "" {
		c.Port = def.Port
	}
	if !strings.HasPrefix(c.Port, ":") {
		c.Port = ":" + c.Port
	}

	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = def.MaxMessageSize
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = def.RateLimit.Burst
	}
	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = def.RateLimit.RefillInterval
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}

	switch c.RoutingPolicy {
	case RoutingGlobal, RoutingRoom:
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidRoutingPolicy, c.RoutingPolicy)
	}

	return nil
}

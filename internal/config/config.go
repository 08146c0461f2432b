package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// AppConfig holds everything the session service needs at startup.
// Values come from an optional YAML file (CONFIG_FILE) overridden by
// environment variables.
type AppConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	// WSListenAddr serves the websocket state stream. The JSON API runs on
	// fasthttp, which cannot hand a connection to the websocket upgrader,
	// so the stream gets its own listener.
	WSListenAddr string `yaml:"ws_listen_addr"`

	RedisURL    string `yaml:"redis_url"`
	DatabaseURL string `yaml:"database_url"`

	BotThinkTimeMS     int `yaml:"bot_think_time_ms"`
	SnapshotDebounceMS int `yaml:"snapshot_debounce_ms"`
	SnapshotTTLHours   int `yaml:"snapshot_ttl_hours"`
	StatsTTLDays       int `yaml:"stats_ttl_days"`
	ReplayStepMS       int `yaml:"replay_step_ms"`
	SignupPromptPlies  int `yaml:"signup_prompt_plies"`

	LeaderboardLimit      int `yaml:"leaderboard_limit"`
	LeaderboardMinMatches int `yaml:"leaderboard_min_matches"`
}

func defaults() *AppConfig {
	return &AppConfig{
		ListenAddr:            ":8090",
		WSListenAddr:          ":8091",
		BotThinkTimeMS:        300,
		SnapshotDebounceMS:    750,
		SnapshotTTLHours:      24,
		StatsTTLDays:          30,
		ReplayStepMS:          150,
		SignupPromptPlies:     20,
		LeaderboardLimit:      10,
		LeaderboardMinMatches: 5,
	}
}

func Load() (*AppConfig, error) {
	cfg := defaults()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("WS_LISTEN_ADDR")); v != "" {
		cfg.WSListenAddr = v
	}
	cfg.RedisURL = envOr("REDIS_URL", cfg.RedisURL)
	cfg.DatabaseURL = envOr("DATABASE_URL", cfg.DatabaseURL)

	envInt("BOT_THINK_TIME_MS", &cfg.BotThinkTimeMS)
	envInt("SNAPSHOT_DEBOUNCE_MS", &cfg.SnapshotDebounceMS)
	envInt("SNAPSHOT_TTL_HOURS", &cfg.SnapshotTTLHours)
	envInt("STATS_TTL_DAYS", &cfg.StatsTTLDays)
	envInt("REPLAY_STEP_MS", &cfg.ReplayStepMS)
	envInt("SIGNUP_PROMPT_PLIES", &cfg.SignupPromptPlies)
	envInt("LEADERBOARD_LIMIT", &cfg.LeaderboardLimit)
	envInt("LEADERBOARD_MIN_MATCHES", &cfg.LeaderboardMinMatches)

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	// DATABASE_URL stays optional: without it the service runs guest-only
	// and authenticated stats/leaderboard features are disabled.

	return cfg, nil
}

func (c *AppConfig) BotThinkTime() time.Duration {
	return time.Duration(c.BotThinkTimeMS) * time.Millisecond
}

func (c *AppConfig) SnapshotDebounce() time.Duration {
	return time.Duration(c.SnapshotDebounceMS) * time.Millisecond
}

func (c *AppConfig) SnapshotTTL() time.Duration { return time.Duration(c.SnapshotTTLHours) * time.Hour }

func (c *AppConfig) StatsTTL() time.Duration { return time.Duration(c.StatsTTLDays) * 24 * time.Hour }

func (c *AppConfig) ReplayStep() time.Duration {
	return time.Duration(c.ReplayStepMS) * time.Millisecond
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, dst *int) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = n
		}
	}
}

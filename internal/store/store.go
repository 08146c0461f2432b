package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alissanguyen/chess-ai/internal/domain"
)

// Store is the device-local durable KV layer: guest stats, the session
// snapshot, and cosmetic preference flags. Every blob embeds a lastUpdated
// timestamp; entries past their TTL are treated as absent even when the
// redis expiry has not yet fired.
type Store struct {
	rdb         *redis.Client
	statsTTL    time.Duration
	snapshotTTL time.Duration
}

func NewStore(rdb *redis.Client, statsTTL, snapshotTTL time.Duration) *Store {
	return &Store{rdb: rdb, statsTTL: statsTTL, snapshotTTL: snapshotTTL}
}

// NewClient connects to redis given a redis:// URL and verifies the
// connection with a ping.
func NewClient(redisURL string) (*redis.Client, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required")
	}
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

const keyDevice = "chess:device"

func keyStats(device string) string    { return "chess:stats:" + strings.TrimSpace(device) }
func keySnapshot(device string) string { return "chess:snapshot:" + strings.TrimSpace(device) }
func keyPrefs(device string) string    { return "chess:prefs:" + strings.TrimSpace(device) }

// LoadStats returns the guest scoreboard, or nil when none exists or the
// stored record has gone stale. Stale records are deleted on read.
func (s *Store) LoadStats(ctx context.Context, device string) (*domain.GameStats, error) {
	raw, err := s.rdb.Get(ctx, keyStats(device)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var stats domain.GameStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return nil, err
	}
	if time.Since(stats.LastUpdated) > s.statsTTL {
		_ = s.rdb.Del(ctx, keyStats(device)).Err()
		return nil, nil
	}
	return &stats, nil
}

func (s *Store) SaveStats(ctx context.Context, device string, stats *domain.GameStats) error {
	raw, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, keyStats(device), raw, s.statsTTL).Err()
}

func (s *Store) DeleteStats(ctx context.Context, device string) error {
	return s.rdb.Del(ctx, keyStats(device)).Err()
}

// LoadSnapshot returns the recovery snapshot, or nil when none exists or it
// has expired.
func (s *Store) LoadSnapshot(ctx context.Context, device string) (*domain.Snapshot, error) {
	raw, err := s.rdb.Get(ctx, keySnapshot(device)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, err
	}
	if time.Since(snap.LastUpdated) > s.snapshotTTL {
		_ = s.rdb.Del(ctx, keySnapshot(device)).Err()
		return nil, nil
	}
	return &snap, nil
}

func (s *Store) SaveSnapshot(ctx context.Context, device string, snap *domain.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, keySnapshot(device), raw, s.snapshotTTL).Err()
}

func (s *Store) DeleteSnapshot(ctx context.Context, device string) error {
	return s.rdb.Del(ctx, keySnapshot(device)).Err()
}

// RehomeSnapshot moves an in-flight snapshot from one identity to another.
// Used when a guest signs in mid-game so the running game is not lost.
func (s *Store) RehomeSnapshot(ctx context.Context, fromDevice, toDevice string) error {
	snap, err := s.LoadSnapshot(ctx, fromDevice)
	if err != nil || snap == nil {
		return err
	}
	if err := s.SaveSnapshot(ctx, toDevice, snap); err != nil {
		return err
	}
	return s.DeleteSnapshot(ctx, fromDevice)
}

// DeviceID returns this installation's stable identifier, creating one on
// first use. It keys all device-scoped state across restarts.
func (s *Store) DeviceID(ctx context.Context) (string, error) {
	id, err := s.rdb.Get(ctx, keyDevice).Result()
	if err == nil && strings.TrimSpace(id) != "" {
		return id, nil
	}
	if err != nil && err != redis.Nil {
		return "", err
	}
	id = uuid.NewString()
	if err := s.rdb.Set(ctx, keyDevice, id, 0).Err(); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) LoadPrefs(ctx context.Context, device string) (*domain.Prefs, error) {
	raw, err := s.rdb.Get(ctx, keyPrefs(device)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var prefs domain.Prefs
	if err := json.Unmarshal(raw, &prefs); err != nil {
		return nil, err
	}
	return &prefs, nil
}

func (s *Store) SavePrefs(ctx context.Context, device string, prefs *domain.Prefs) error {
	prefs.LastUpdated = time.Now()
	raw, err := json.Marshal(prefs)
	if err != nil {
		return err
	}
	// Preferences have no expiry policy; they live as long as the device.
	return s.rdb.Set(ctx, keyPrefs(device), raw, 0).Err()
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}

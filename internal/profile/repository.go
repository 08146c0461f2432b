package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/alissanguyen/chess-ai/internal/domain"
)

var ErrNoDatabase = errors.New("profile repository not configured")

// Metric selects the leaderboard ordering.
type Metric string

const (
	MetricWinRate Metric = "win_rate"
	MetricStreak  Metric = "streak"
)

// Repository is the remote persistence authority for authenticated players.
// Aggregate counters, win rate, and streak arithmetic live behind this
// boundary; the session core only appends result events and re-reads.
type Repository interface {
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)
	AppendGameResult(ctx context.Context, ev *domain.GameResultEvent) error
	MergeGuestStats(ctx context.Context, userID string, stats *domain.GameStats) error
	Leaderboard(ctx context.Context, metric Metric, minMatches, limit int) ([]domain.LeaderboardEntry, error)
	UsernameTaken(ctx context.Context, username string) (bool, error)
	Close() error
}

type repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &repository{db: db}, nil
}

func (r *repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// GetProfile returns the player's aggregate profile, or nil when no profile
// row exists yet (the caller then runs the profile-creation flow).
func (r *repository) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	const query = `
		SELECT
			user_id,
			username,
			avatar_color,
			wins,
			losses,
			draws,
			total_matches,
			win_rate,
			current_win_streak,
			longest_win_streak,
			created_at,
			updated_at
		FROM profiles
		WHERE user_id = $1`

	var p domain.Profile
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&p.UserID,
		&p.Username,
		&p.AvatarColor,
		&p.Wins,
		&p.Losses,
		&p.Draws,
		&p.TotalMatches,
		&p.WinRate,
		&p.CurrentWinStreak,
		&p.LongestWinStreak,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select profile: %w", err)
	}
	return &p, nil
}

// AppendGameResult inserts one immutable result event. The event ID makes
// the insert idempotent against retried calls; aggregate recomputation runs
// in the database, not here.
func (r *repository) AppendGameResult(ctx context.Context, ev *domain.GameResultEvent) error {
	if ev == nil {
		return fmt.Errorf("nil game result event")
	}
	const query = `
		INSERT INTO game_history (
			id,
			user_id,
			result,
			player_color,
			move_count,
			final_fen,
			ended_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query,
		ev.ID,
		ev.UserID,
		string(ev.Result),
		string(ev.PlayerColor),
		ev.MoveCount,
		ev.FinalFEN,
		ev.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("append game result: %w", err)
	}
	return nil
}

// MergeGuestStats folds a guest scoreboard into the authenticated profile
// once, at sign-in. Streak columns are left to the database triggers; only
// the raw counters move across.
func (r *repository) MergeGuestStats(ctx context.Context, userID string, stats *domain.GameStats) error {
	if stats == nil || (stats.Wins == 0 && stats.Losses == 0 && stats.Draws == 0) {
		return nil
	}
	const query = `
		UPDATE profiles SET
			wins = wins + $2,
			losses = losses + $3,
			draws = draws + $4,
			total_matches = total_matches + $5,
			win_rate = CASE
				WHEN total_matches + $5 > 0
				THEN (wins + $2)::float / (total_matches + $5)
				ELSE 0
			END,
			updated_at = NOW()
		WHERE user_id = $1`

	total := stats.Wins + stats.Losses + stats.Draws
	if _, err := r.db.ExecContext(ctx, query, userID, stats.Wins, stats.Losses, stats.Draws, total); err != nil {
		return fmt.Errorf("merge guest stats: %w", err)
	}
	return nil
}

func (r *repository) Leaderboard(ctx context.Context, metric Metric, minMatches, limit int) ([]domain.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}

	var query string
	var args []any
	switch metric {
	case MetricStreak:
		query = `
			SELECT username, avatar_color, win_rate, longest_win_streak, total_matches
			FROM profiles
			ORDER BY longest_win_streak DESC
			LIMIT $1`
		args = []any{limit}
	default:
		// Win-rate board carries a minimum-matches floor so one lucky game
		// does not top the list.
		query = `
			SELECT username, avatar_color, win_rate, longest_win_streak, total_matches
			FROM profiles
			WHERE total_matches >= $1
			ORDER BY win_rate DESC
			LIMIT $2`
		args = []any{minMatches, limit}
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select leaderboard: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.LeaderboardEntry, 0, limit)
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.Username, &e.AvatarColor, &e.WinRate, &e.LongestWinStreak, &e.TotalMatches); err != nil {
			return nil, fmt.Errorf("scan leaderboard row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *repository) UsernameTaken(ctx context.Context, username string) (bool, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return false, nil
	}
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM profiles WHERE LOWER(username) = LOWER($1))`, username,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check username: %w", err)
	}
	return exists, nil
}

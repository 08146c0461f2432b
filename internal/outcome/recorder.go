package outcome

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/alissanguyen/chess-ai/internal/domain"
	"github.com/alissanguyen/chess-ai/internal/profile"
	"github.com/alissanguyen/chess-ai/internal/session"
)

// LocalStats is the slice of the device-local store the recorder needs.
type LocalStats interface {
	LoadStats(ctx context.Context, device string) (*domain.GameStats, error)
	SaveStats(ctx context.Context, device string, stats *domain.GameStats) error
}

// IdentityFunc reports who to credit the result to: the local storage key,
// the authenticated user ID, and whether the player is authenticated.
type IdentityFunc func() (storageKey, userID string, authenticated bool)

// Recorder maps a terminal result onto a stat update exactly once per
// session. Redundant terminal notifications are absorbed by a one-shot
// latch keyed on the session ID; the latch clears naturally when a new
// session begins under a fresh ID.
type Recorder struct {
	mu         sync.Mutex
	recordedID string

	local    LocalStats
	remote   profile.Repository
	identity IdentityFunc
	logger   *zap.Logger
}

func NewRecorder(local LocalStats, remote profile.Repository, identity IdentityFunc, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{local: local, remote: remote, identity: identity, logger: logger}
}

func (r *Recorder) SessionChanged(session.View) {}

func (r *Recorder) SessionEnded(view session.View, result domain.Result) {
	r.record(view, result)
}

func (r *Recorder) record(view session.View, result domain.Result) {
	if result == domain.ResultNone {
		return
	}
	r.mu.Lock()
	if r.recordedID == view.SessionID {
		r.mu.Unlock()
		return
	}
	r.recordedID = view.SessionID
	r.mu.Unlock()

	storageKey, userID, authenticated := r.identity()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if authenticated && r.remote != nil {
		r.recordRemote(ctx, view, result, userID)
		return
	}
	r.recordLocal(ctx, view, result, storageKey)
}

// recordRemote appends one immutable result event; the backend owns streak
// and win-rate arithmetic, so the profile is re-read rather than computed.
// A failed append degrades stats only and never blocks play.
func (r *Recorder) recordRemote(ctx context.Context, view session.View, result domain.Result, userID string) {
	ev := &domain.GameResultEvent{
		ID:          view.SessionID,
		UserID:      userID,
		Result:      result,
		PlayerColor: view.HumanColor,
		MoveCount:   len(view.Moves),
		FinalFEN:    view.FEN,
		EndedAt:     time.Now(),
	}
	if err := r.remote.AppendGameResult(ctx, ev); err != nil {
		r.logger.Error("game result append failed",
			zap.String("session_id", view.SessionID),
			zap.String("user_id", userID),
			zap.String("result", string(result)),
			zap.Error(err),
		)
		return
	}
	p, err := r.remote.GetProfile(ctx, userID)
	if err != nil {
		r.logger.Warn("profile refresh after result failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	fields := []zap.Field{
		zap.String("session_id", view.SessionID),
		zap.String("user_id", userID),
		zap.String("result", string(result)),
	}
	if p != nil {
		fields = append(fields,
			zap.Int("total_matches", p.TotalMatches),
			zap.Int("current_streak", p.CurrentWinStreak),
		)
	}
	r.logger.Info("game_result_recorded", fields...)
}

func (r *Recorder) recordLocal(ctx context.Context, view session.View, result domain.Result, storageKey string) {
	stats, err := r.local.LoadStats(ctx, storageKey)
	if err != nil {
		r.logger.Warn("guest stats load failed", zap.Error(err))
		stats = nil
	}
	if stats == nil {
		stats = &domain.GameStats{Username: "Guest"}
	}
	switch result {
	case domain.ResultWin:
		stats.Wins++
	case domain.ResultLoss:
		stats.Losses++
	case domain.ResultDraw:
		stats.Draws++
	}
	stats.LastUpdated = time.Now()
	if err := r.local.SaveStats(ctx, storageKey, stats); err != nil {
		r.logger.Warn("guest stats save failed", zap.Error(err))
		return
	}
	r.logger.Info("game_result_recorded",
		zap.String("session_id", view.SessionID),
		zap.String("result", string(result)),
		zap.Int("wins", stats.Wins),
		zap.Int("losses", stats.Losses),
		zap.Int("draws", stats.Draws),
	)
}

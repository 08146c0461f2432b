package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/alissanguyen/chess-ai/internal/domain"
	"github.com/alissanguyen/chess-ai/internal/profile"
	"github.com/alissanguyen/chess-ai/internal/session"
	"github.com/alissanguyen/chess-ai/internal/store"
)

// Mode is the player's identity state.
type Mode string

const (
	ModeSignedOut Mode = "signed_out"
	ModeGuest     Mode = "guest"
	ModeSignedIn  Mode = "signed_in"
)

// Handler reacts to sign-in, sign-out, and guest-entry events, migrating or
// discarding in-flight session and stats state. It also watches session
// progress to fire the one-shot sign-up nudge for guests.
type Handler struct {
	mu          sync.Mutex
	mode        Mode
	userID      string
	promptShown bool

	deviceID        string
	promptThreshold int

	store   *store.Store
	remote  profile.Repository
	machine *session.Machine
	logger  *zap.Logger

	// OnSignupPrompt fires at most once per session when a guest crosses
	// the ply threshold. Optional; declining has no functional effect.
	OnSignupPrompt func()
}

func NewHandler(deviceID string, st *store.Store, remote profile.Repository, machine *session.Machine, promptThreshold int, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if promptThreshold <= 0 {
		promptThreshold = 20
	}
	return &Handler{
		mode:            ModeSignedOut,
		deviceID:        strings.TrimSpace(deviceID),
		promptThreshold: promptThreshold,
		store:           st,
		remote:          remote,
		machine:         machine,
		logger:          logger,
	}
}

// Snapshot reports the current identity for outcome crediting and storage
// keying: results resolving after a later transition no longer match and
// are effectively cancelled.
func (h *Handler) Snapshot() (storageKey, userID string, authenticated bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.storageKeyLocked(), h.userID, h.mode == ModeSignedIn
}

// StorageKey returns the key the session snapshot and guest stats live
// under: the user ID once signed in, the device ID otherwise.
func (h *Handler) StorageKey() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.storageKeyLocked()
}

func (h *Handler) storageKeyLocked() string {
	if h.mode == ModeSignedIn && h.userID != "" {
		return h.userID
	}
	return h.deviceID
}

func (h *Handler) Mode() Mode {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.mode
}

// EnterGuest starts guest play: stamp a local stats record if none exists
// and proceed without contacting the backend.
func (h *Handler) EnterGuest(ctx context.Context, username string) error {
	h.mu.Lock()
	h.mode = ModeGuest
	h.userID = ""
	h.mu.Unlock()

	stats, err := h.store.LoadStats(ctx, h.deviceID)
	if err != nil {
		return err
	}
	if stats == nil {
		username = strings.TrimSpace(username)
		if username == "" {
			username = "Guest"
		}
		stats = &domain.GameStats{Username: username, LastUpdated: time.Now()}
		if err := h.store.SaveStats(ctx, h.deviceID, stats); err != nil {
			return err
		}
	}
	h.logger.Info("guest_enter", zap.String("username", stats.Username))
	return nil
}

// SignIn transitions to the authenticated identity. A guest's in-progress
// game is carried forward: the snapshot is re-homed under the new identity
// and the local scoreboard is merged into the remote profile exactly once.
func (h *Handler) SignIn(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil
	}
	h.mu.Lock()
	fromGuest := h.mode == ModeGuest
	h.mode = ModeSignedIn
	h.userID = userID
	h.mu.Unlock()

	if fromGuest {
		if len(h.machine.View().Moves) > 0 {
			if err := h.store.RehomeSnapshot(ctx, h.deviceID, userID); err != nil {
				h.logger.Warn("snapshot rehome failed", zap.String("user_id", userID), zap.Error(err))
			}
		}
		h.migrateGuestStats(ctx, userID)
	}
	h.logger.Info("sign_in", zap.String("user_id", userID), zap.Bool("from_guest", fromGuest))
	return nil
}

// migrateGuestStats is the one-time merge point between the two persistence
// authorities. Failure degrades stats only; the local record is deleted
// only after a successful merge so a retry on next sign-in stays possible.
func (h *Handler) migrateGuestStats(ctx context.Context, userID string) {
	if h.remote == nil {
		return
	}
	stats, err := h.store.LoadStats(ctx, h.deviceID)
	if err != nil || stats == nil {
		return
	}
	if err := h.remote.MergeGuestStats(ctx, userID, stats); err != nil {
		h.logger.Warn("guest stats migration failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	if err := h.store.DeleteStats(ctx, h.deviceID); err != nil {
		h.logger.Warn("guest stats cleanup failed", zap.Error(err))
	}
	h.logger.Info("guest_stats_migrated",
		zap.String("user_id", userID),
		zap.Int("wins", stats.Wins),
		zap.Int("losses", stats.Losses),
		zap.Int("draws", stats.Draws),
	)
}

// SignOut clears local caches, deletes the snapshot, forces a full session
// reset, and returns to the identity-choice state.
func (h *Handler) SignOut(ctx context.Context) {
	h.mu.Lock()
	key := h.storageKeyLocked()
	h.mode = ModeSignedOut
	h.userID = ""
	h.promptShown = false
	h.mu.Unlock()

	if err := h.store.DeleteSnapshot(ctx, key); err != nil {
		h.logger.Warn("snapshot delete on sign-out failed", zap.Error(err))
	}
	h.machine.Reset()
	h.logger.Info("sign_out")
}

// TokenRefreshed is acknowledged but carries no session-core behavior.
func (h *Handler) TokenRefreshed() {
	h.logger.Debug("token_refreshed")
}

// SessionChanged implements session.Sink: it counts plies to trigger the
// guest sign-up nudge.
func (h *Handler) SessionChanged(view session.View) {
	h.mu.Lock()
	fire := h.mode == ModeGuest && !h.promptShown && len(view.Moves) >= h.promptThreshold
	if fire {
		h.promptShown = true
	}
	cb := h.OnSignupPrompt
	h.mu.Unlock()

	if fire {
		h.logger.Info("signup_prompt", zap.Int("plies", len(view.Moves)))
		if cb != nil {
			cb()
		}
	}
}

func (h *Handler) SessionEnded(session.View, domain.Result) {}

// PromptShown reports whether the nudge already fired this session.
func (h *Handler) PromptShown() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.promptShown
}

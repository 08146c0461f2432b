package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alissanguyen/chess-ai/internal/domain"
)

// SnapshotStore is the slice of the local KV layer the syncer needs.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, device string, snap *domain.Snapshot) error
	DeleteSnapshot(ctx context.Context, device string) error
}

// Syncer persists the live session to durable storage with a debounced
// quiescence window: a new move arriving before the window elapses restarts
// the timer, so only the last state of a burst is written. An empty move
// list deletes the snapshot immediately (reset, fresh session).
type Syncer struct {
	mu       sync.Mutex
	store    SnapshotStore
	keyFn    func() string
	debounce time.Duration
	timer    *time.Timer
	closed   bool
	logger   *zap.Logger
}

func NewSyncer(store SnapshotStore, keyFn func() string, debounce time.Duration, logger *zap.Logger) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = 750 * time.Millisecond
	}
	return &Syncer{store: store, keyFn: keyFn, debounce: debounce, logger: logger}
}

func (s *Syncer) SessionChanged(view View) {
	if view.Replaying {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if len(view.Moves) == 0 {
		s.mu.Unlock()
		s.delete()
		return
	}
	v := view
	s.timer = time.AfterFunc(s.debounce, func() { s.write(v) })
	s.mu.Unlock()
}

func (s *Syncer) SessionEnded(View, domain.Result) {}

// Close invalidates any pending write. Used on component teardown.
func (s *Syncer) Close() {
	s.mu.Lock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
}

func (s *Syncer) write(view View) {
	moves := make([]string, len(view.Moves))
	for i := range view.Moves {
		moves[i] = view.Moves[i].UCI
	}
	snap := &domain.Snapshot{
		FEN:         view.FEN,
		MovesUCI:    moves,
		HumanColor:  view.HumanColor,
		LastUpdated: time.Now(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.store.SaveSnapshot(ctx, s.keyFn(), snap); err != nil {
		// The in-memory session stays authoritative; the next move offers
		// another write opportunity.
		s.logger.Warn("snapshot write failed", zap.Error(err))
	}
}

func (s *Syncer) delete() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.store.DeleteSnapshot(ctx, s.keyFn()); err != nil {
		s.logger.Warn("snapshot delete failed", zap.Error(err))
	}
}

// StartReplay rebuilds a session from a stored snapshot. Moves are
// re-applied one at a time at a fixed cadence through the normal apply
// path; human input and bot scheduling are suppressed until done. A move
// that fails to re-apply is skipped, not fatal.
func (m *Machine) StartReplay(snap *domain.Snapshot) error {
	if snap == nil || len(snap.MovesUCI) == 0 {
		return nil
	}
	m.mu.Lock()
	if m.replaying {
		m.mu.Unlock()
		return ErrReplaying
	}
	m.gen++
	if m.botTimer != nil {
		m.botTimer.Stop()
		m.botTimer = nil
	}
	m.engine.Reset()
	if snap.HumanColor == domain.White || snap.HumanColor == domain.Black {
		m.humanColor = snap.HumanColor
	}
	m.sessionID = uuid.NewString()
	m.moves = nil
	m.origin = ""
	m.dests = nil
	m.pending = nil
	m.marks = make(map[string]struct{})
	m.terminal = false
	m.result = domain.ResultNone
	m.replaying = true
	m.state = StateReplaying
	gen := m.gen
	moves := make([]string, len(snap.MovesUCI))
	copy(moves, snap.MovesUCI)
	view := m.viewLocked()
	m.mu.Unlock()

	m.logger.Info("replay_start", zap.String("session_id", view.SessionID), zap.Int("moves", len(moves)))
	m.notifyChanged(view)
	go m.replayLoop(gen, moves)
	return nil
}

func (m *Machine) replayLoop(gen uint64, moves []string) {
	ticker := time.NewTicker(m.cfg.ReplayStep)
	defer ticker.Stop()
	for _, uci := range moves {
		<-ticker.C
		m.mu.Lock()
		if gen != m.gen || !m.replaying {
			m.mu.Unlock()
			return
		}
		rec, err := m.engine.ApplyUCI(uci)
		if err != nil {
			// Best-effort reconstruction: skip the desynced move.
			m.logger.Warn("replay move skipped", zap.String("uci", uci), zap.Error(err))
		} else {
			m.moves = append(m.moves, *rec)
		}
		view := m.viewLocked()
		m.mu.Unlock()
		m.notifyChanged(view)
	}

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.replaying = false
	m.state = StateAwaitingSelection
	var schedule bool
	if m.engine.IsGameOver() {
		// The pre-interruption session already recorded this outcome;
		// restoring it must not count the result again.
		m.terminal = true
		if m.engine.IsDraw() {
			m.result = domain.ResultDraw
		} else if winner, ok := m.engine.Winner(); ok && winner == m.humanColor {
			m.result = domain.ResultWin
		} else {
			m.result = domain.ResultLoss
		}
	} else {
		schedule = m.engine.Turn() != m.humanColor
	}
	view := m.viewLocked()
	m.mu.Unlock()

	m.logger.Info("replay_done",
		zap.String("session_id", view.SessionID),
		zap.Int("moves", len(view.Moves)),
		zap.Bool("terminal", view.Terminal),
	)
	if schedule {
		m.scheduleBot(gen)
	}
	m.notifyChanged(view)
}

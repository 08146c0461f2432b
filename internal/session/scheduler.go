package session

import (
	"crypto/rand"
	"math/big"
	"time"

	"go.uber.org/zap"
)

// scheduleBot arms the automated side's think-time timer. At most one timer
// is pending; a reset or a newer scheduling request invalidates it through
// the generation counter so a move is never applied against a stale
// position.
func (m *Machine) scheduleBot(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.terminal || m.replaying {
		m.mu.Unlock()
		return
	}
	if m.botTimer != nil {
		m.botTimer.Stop()
	}
	m.botTimer = time.AfterFunc(m.cfg.BotThinkTime, func() { m.playAutomatedMove(gen) })
	m.mu.Unlock()
}

// playAutomatedMove picks a uniform-random legal move at fire time and
// funnels it through the same terminal check as human moves.
func (m *Machine) playAutomatedMove(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.terminal || m.replaying || m.engine.Turn() == m.humanColor {
		m.mu.Unlock()
		return
	}
	legal := m.engine.LegalMoves()
	if len(legal) == 0 {
		m.logger.Warn("automated side has no legal moves", zap.String("fen", m.engine.FEN()))
		m.terminal = true
		view := m.viewLocked()
		m.mu.Unlock()
		m.notifyChanged(view)
		return
	}
	mv := legal[randIntn(len(legal))]
	promo := ""
	if mv.Promotion {
		promo = promotionPieces[randIntn(len(promotionPieces))]
	}
	rec, err := m.engine.Apply(mv.From, mv.To, promo)
	if err != nil {
		m.logger.Error("automated move rejected by engine",
			zap.String("uci", mv.UCI),
			zap.Error(err),
		)
		m.mu.Unlock()
		return
	}
	m.applyRecordLocked(rec)
	ended, _ := m.afterAppliedMoveLocked()
	view := m.viewLocked()
	m.mu.Unlock()

	m.logger.Info("bot_move",
		zap.String("session_id", view.SessionID),
		zap.String("uci", rec.UCI),
		zap.String("san", rec.SAN),
		zap.Int("ply", len(view.Moves)),
	)
	m.notifyChanged(view)
	if ended {
		m.notifyEnded(view, view.Result)
	}
}

// randIntn returns a uniform int in [0,n) using crypto/rand, falling back
// to 0 when the randomness source errors.
func randIntn(n int) int {
	if n <= 1 {
		return 0
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}

package session

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alissanguyen/chess-ai/internal/domain"
	"github.com/alissanguyen/chess-ai/internal/rules"
)

// Config tunes the machine's two timers.
type Config struct {
	BotThinkTime      time.Duration
	ReplayStep        time.Duration
	InitialHumanColor domain.Color
}

// Machine owns the single live session: the canonical position, the move
// list, turn ownership, and terminal detection. All mutation funnels through
// the rules engine; the move list is append-only and single-writer.
type Machine struct {
	mu     sync.Mutex
	engine rules.Engine
	cfg    Config
	logger *zap.Logger

	sessionID  string
	humanColor domain.Color
	moves      []rules.MoveRecord
	state      State
	origin     string
	dests      []rules.LegalMove
	pending    *PendingPromotion
	marks      map[string]struct{}
	terminal   bool
	result     domain.Result
	replaying  bool

	// gen invalidates pending bot timers and replay loops across resets.
	gen      uint64
	botTimer *time.Timer

	sinks []Sink
}

func NewMachine(engine rules.Engine, cfg Config, logger *zap.Logger) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BotThinkTime <= 0 {
		cfg.BotThinkTime = 300 * time.Millisecond
	}
	if cfg.ReplayStep <= 0 {
		cfg.ReplayStep = 150 * time.Millisecond
	}
	color := cfg.InitialHumanColor
	if color != domain.White && color != domain.Black {
		color = domain.White
	}
	return &Machine{
		engine:     engine,
		cfg:        cfg,
		logger:     logger,
		sessionID:  uuid.NewString(),
		humanColor: color,
		state:      StateAwaitingSelection,
		marks:      make(map[string]struct{}),
	}
}

// AddSink registers an observer. Not safe to call once gestures are flowing.
func (m *Machine) AddSink(s Sink) {
	if s != nil {
		m.sinks = append(m.sinks, s)
	}
}

// Start kicks off the first automated move when the human plays black.
func (m *Machine) Start() {
	m.mu.Lock()
	schedule := !m.terminal && !m.replaying && m.engine.Turn() != m.humanColor
	gen := m.gen
	view := m.viewLocked()
	m.mu.Unlock()
	if schedule {
		m.scheduleBot(gen)
	}
	m.notifyChanged(view)
}

// View returns an immutable copy of the current session.
func (m *Machine) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.viewLocked()
}

// ClickSquare handles the view layer's "square selected" gesture. Depending
// on the machine state it either offers destinations from the square or
// attempts the move from the previously selected origin. An illegal
// destination is silently reinterpreted as a fresh origin selection.
func (m *Machine) ClickSquare(square string) error {
	m.mu.Lock()
	if m.replaying {
		m.mu.Unlock()
		return ErrReplaying
	}
	if m.terminal {
		m.mu.Unlock()
		return ErrGameOver
	}
	if m.engine.Turn() != m.humanColor {
		m.mu.Unlock()
		return ErrNotYourTurn
	}
	if m.state == StateAwaitingPromotion {
		// The promotion dialog is modal; board clicks wait for the choice.
		m.mu.Unlock()
		return nil
	}

	var ended, schedule bool
	if m.state == StateAwaitingSelection || m.origin == "" {
		m.selectOriginLocked(square)
	} else {
		ended, schedule = m.selectDestinationLocked(square)
	}
	gen := m.gen
	view := m.viewLocked()
	m.mu.Unlock()

	if schedule {
		m.scheduleBot(gen)
	}
	m.notifyChanged(view)
	if ended {
		m.notifyEnded(view, view.Result)
	}
	return nil
}

// selectOriginLocked queries legal destinations from square. A square with
// no moves is simply not selectable.
func (m *Machine) selectOriginLocked(square string) {
	m.marks = make(map[string]struct{})
	legal := m.engine.LegalMovesFrom(square)
	if len(legal) == 0 {
		m.origin = ""
		m.dests = nil
		m.state = StateAwaitingSelection
		return
	}
	m.origin = square
	m.dests = legal
	m.state = StateAwaitingDestination
}

func (m *Machine) selectDestinationLocked(square string) (ended, schedule bool) {
	for i := range m.dests {
		if m.dests[i].To == square && m.dests[i].Promotion {
			// Defer the piece choice to the user; a human promotion is
			// never silently defaulted.
			m.pending = &PendingPromotion{From: m.origin, To: square}
			m.state = StateAwaitingPromotion
			return false, false
		}
	}

	rec, err := m.engine.Apply(m.origin, square, "")
	if err != nil {
		// Treat the click as a fresh origin attempt so the user can
		// redirect a move without an extra click.
		m.selectOriginLocked(square)
		return false, false
	}
	m.applyRecordLocked(rec)
	return m.afterAppliedMoveLocked()
}

// ResolvePromotion applies the pending move with the chosen piece. The
// pending state is cleared whether or not the apply succeeds so the UI is
// never stuck on a dead prompt.
func (m *Machine) ResolvePromotion(piece string) error {
	m.mu.Lock()
	if m.replaying {
		m.mu.Unlock()
		return ErrReplaying
	}
	if m.state != StateAwaitingPromotion || m.pending == nil {
		m.mu.Unlock()
		return ErrNoPendingPromotion
	}
	pending := *m.pending
	m.pending = nil
	m.origin = ""
	m.dests = nil
	m.state = StateAwaitingSelection

	if !validPromotionPiece(piece) {
		view := m.viewLocked()
		m.mu.Unlock()
		m.notifyChanged(view)
		return ErrBadPromotionPiece
	}

	var ended, schedule bool
	rec, err := m.engine.Apply(pending.From, pending.To, piece)
	if err != nil {
		m.logger.Warn("promotion apply failed",
			zap.String("from", pending.From),
			zap.String("to", pending.To),
			zap.String("piece", piece),
			zap.Error(err),
		)
	} else {
		m.applyRecordLocked(rec)
		ended, schedule = m.afterAppliedMoveLocked()
	}
	gen := m.gen
	view := m.viewLocked()
	m.mu.Unlock()

	if schedule {
		m.scheduleBot(gen)
	}
	m.notifyChanged(view)
	if ended {
		m.notifyEnded(view, view.Result)
	}
	return nil
}

// ToggleMark flips the right-click marking of a square. Marks are pure UI
// state: they never touch the move machine and are cleared when a new
// origin is selected.
func (m *Machine) ToggleMark(square string) {
	m.mu.Lock()
	if _, ok := m.marks[square]; ok {
		delete(m.marks, square)
	} else {
		m.marks[square] = struct{}{}
	}
	view := m.viewLocked()
	m.mu.Unlock()
	m.notifyChanged(view)
}

// Reset starts a fresh session. The human's color flips on every reset and
// any pending automated move or replay is invalidated.
func (m *Machine) Reset() {
	m.mu.Lock()
	m.gen++
	if m.botTimer != nil {
		m.botTimer.Stop()
		m.botTimer = nil
	}
	m.engine.Reset()
	m.humanColor = m.humanColor.Opposite()
	m.sessionID = uuid.NewString()
	m.moves = nil
	m.origin = ""
	m.dests = nil
	m.pending = nil
	m.marks = make(map[string]struct{})
	m.terminal = false
	m.result = domain.ResultNone
	m.replaying = false
	m.state = StateAwaitingSelection
	schedule := m.engine.Turn() != m.humanColor
	gen := m.gen
	view := m.viewLocked()
	m.mu.Unlock()

	m.logger.Info("session_reset",
		zap.String("session_id", view.SessionID),
		zap.String("human_color", string(view.HumanColor)),
	)
	if schedule {
		m.scheduleBot(gen)
	}
	m.notifyChanged(view)
}

func (m *Machine) applyRecordLocked(rec *rules.MoveRecord) {
	m.moves = append(m.moves, *rec)
	m.origin = ""
	m.dests = nil
	m.pending = nil
	m.state = StateAwaitingSelection
}

// afterAppliedMoveLocked is the single terminal check shared by the human
// and automated move paths.
func (m *Machine) afterAppliedMoveLocked() (ended, schedule bool) {
	if m.engine.IsGameOver() {
		m.terminal = true
		if m.engine.IsDraw() {
			m.result = domain.ResultDraw
		} else if winner, ok := m.engine.Winner(); ok && winner == m.humanColor {
			m.result = domain.ResultWin
		} else {
			m.result = domain.ResultLoss
		}
		return true, false
	}
	if len(m.engine.LegalMoves()) == 0 {
		// Engine reports no moves but no outcome; stop the session without
		// classifying a result.
		m.logger.Warn("no legal moves without reported outcome", zap.String("fen", m.engine.FEN()))
		m.terminal = true
		m.result = domain.ResultNone
		return false, false
	}
	return false, !m.replaying && m.engine.Turn() != m.humanColor
}

func (m *Machine) viewLocked() View {
	moves := make([]rules.MoveRecord, len(m.moves))
	copy(moves, m.moves)
	dests := make([]rules.LegalMove, len(m.dests))
	copy(dests, m.dests)
	marks := make([]string, 0, len(m.marks))
	for sq := range m.marks {
		marks = append(marks, sq)
	}
	sort.Strings(marks)
	var pending *PendingPromotion
	if m.pending != nil {
		p := *m.pending
		pending = &p
	}
	return View{
		SessionID:    m.sessionID,
		FEN:          m.engine.FEN(),
		HumanColor:   m.humanColor,
		Moves:        moves,
		State:        m.state,
		Origin:       m.origin,
		Destinations: dests,
		Pending:      pending,
		Marks:        marks,
		Terminal:     m.terminal,
		Result:       m.result,
		InCheck:      m.engine.InCheck(),
		HumanToMove:  !m.terminal && !m.replaying && m.engine.Turn() == m.humanColor,
		Replaying:    m.replaying,
	}
}

func (m *Machine) notifyChanged(view View) {
	for _, s := range m.sinks {
		s.SessionChanged(view)
	}
}

func (m *Machine) notifyEnded(view View, result domain.Result) {
	if result == domain.ResultNone {
		return
	}
	for _, s := range m.sinks {
		s.SessionEnded(view, result)
	}
}

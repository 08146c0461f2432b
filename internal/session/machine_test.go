package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alissanguyen/chess-ai/internal/domain"
	"github.com/alissanguyen/chess-ai/internal/rules"
)

func newTestMachine(t *testing.T, fen string, cfg Config) *Machine {
	t.Helper()
	var engine *rules.GameEngine
	if fen == "" {
		engine = rules.NewGameEngine()
	} else {
		var err error
		engine, err = rules.NewGameEngineFromFEN(fen)
		if err != nil {
			t.Fatalf("engine from fen: %v", err)
		}
	}
	return NewMachine(engine, cfg, nil)
}

func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", d)
}

type captureSink struct {
	mu      sync.Mutex
	changed int
	ended   int
	results []domain.Result
}

func (c *captureSink) SessionChanged(View) {
	c.mu.Lock()
	c.changed++
	c.mu.Unlock()
}

func (c *captureSink) SessionEnded(_ View, result domain.Result) {
	c.mu.Lock()
	c.ended++
	c.results = append(c.results, result)
	c.mu.Unlock()
}

func (c *captureSink) endedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ended
}

func TestHumanMoveThenAutomatedReply(t *testing.T) {
	m := newTestMachine(t, "", Config{BotThinkTime: 20 * time.Millisecond})

	if err := m.ClickSquare("e2"); err != nil {
		t.Fatalf("select origin: %v", err)
	}
	view := m.View()
	if view.State != StateAwaitingDestination || view.Origin != "e2" || len(view.Destinations) != 2 {
		t.Fatalf("unexpected state after origin: %+v", view)
	}

	if err := m.ClickSquare("e4"); err != nil {
		t.Fatalf("select destination: %v", err)
	}
	view = m.View()
	if len(view.Moves) != 1 || view.Moves[0].UCI != "e2e4" {
		t.Fatalf("expected e2e4 applied, got %+v", view.Moves)
	}
	if view.State != StateAwaitingSelection || view.Origin != "" {
		t.Fatalf("transient selection not cleared: %+v", view)
	}

	waitFor(t, time.Second, func() bool { return len(m.View().Moves) == 2 })
	view = m.View()
	if view.Terminal {
		t.Fatalf("game unexpectedly terminal after two plies")
	}
	if view.Moves[1].Color != domain.Black {
		t.Fatalf("automated reply should be black, got %+v", view.Moves[1])
	}
}

func TestUnselectableSquareIsNoOp(t *testing.T) {
	m := newTestMachine(t, "", Config{BotThinkTime: time.Hour})
	before := m.View()

	if err := m.ClickSquare("e5"); err != nil {
		t.Fatalf("click empty square: %v", err)
	}
	view := m.View()
	if view.State != StateAwaitingSelection || view.Origin != "" {
		t.Fatalf("empty square became selectable: %+v", view)
	}
	if view.FEN != before.FEN || len(view.Moves) != 0 {
		t.Fatalf("no-op click changed session")
	}
}

func TestIllegalDestinationReinterpretedAsOrigin(t *testing.T) {
	m := newTestMachine(t, "", Config{BotThinkTime: time.Hour})
	before := m.View().FEN

	if err := m.ClickSquare("e2"); err != nil {
		t.Fatalf("select e2: %v", err)
	}
	// g1 is not a legal destination for the e2 pawn but has moves of its
	// own, so the click redirects the selection.
	if err := m.ClickSquare("g1"); err != nil {
		t.Fatalf("redirect to g1: %v", err)
	}
	view := m.View()
	if view.Origin != "g1" || view.State != StateAwaitingDestination {
		t.Fatalf("expected origin redirect to g1, got %+v", view)
	}
	if len(view.Moves) != 0 || view.FEN != before {
		t.Fatalf("illegal destination mutated the session")
	}
}

func TestClickRejectedOffTurn(t *testing.T) {
	m := newTestMachine(t, "", Config{BotThinkTime: time.Hour, InitialHumanColor: domain.Black})

	if err := m.ClickSquare("e2"); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("expected ErrNotYourTurn, got %v", err)
	}
}

func TestPromotionChoiceDeferred(t *testing.T) {
	m := newTestMachine(t, "8/P7/8/8/8/8/7k/K7 w - - 0 1", Config{BotThinkTime: time.Hour})

	if err := m.ClickSquare("a7"); err != nil {
		t.Fatalf("select pawn: %v", err)
	}
	if err := m.ClickSquare("a8"); err != nil {
		t.Fatalf("select last rank: %v", err)
	}
	view := m.View()
	if view.State != StateAwaitingPromotion || view.Pending == nil {
		t.Fatalf("expected pending promotion, got %+v", view)
	}
	if len(view.Moves) != 0 {
		t.Fatalf("move applied before the piece was chosen")
	}

	// Board clicks wait while the dialog is up.
	if err := m.ClickSquare("a1"); err != nil {
		t.Fatalf("click during promotion: %v", err)
	}
	if m.View().State != StateAwaitingPromotion {
		t.Fatalf("promotion prompt dismissed by board click")
	}

	if err := m.ResolvePromotion("n"); err != nil {
		t.Fatalf("resolve promotion: %v", err)
	}
	view = m.View()
	if len(view.Moves) != 1 || view.Moves[0].Promotion != "n" {
		t.Fatalf("expected knight promotion, got %+v", view.Moves)
	}
	if view.Pending != nil || view.State == StateAwaitingPromotion {
		t.Fatalf("pending promotion not cleared")
	}

	if err := m.ResolvePromotion("q"); !errors.Is(err, ErrNoPendingPromotion) {
		t.Fatalf("expected ErrNoPendingPromotion, got %v", err)
	}
}

func TestMatingMoveEndsSessionOnce(t *testing.T) {
	// White mates in one with Ra8; the g8 king is boxed in by its pawns.
	m := newTestMachine(t, "6k1/5ppp/8/8/8/8/8/R3K3 w - - 0 1", Config{BotThinkTime: 20 * time.Millisecond})
	sink := &captureSink{}
	m.AddSink(sink)

	if err := m.ClickSquare("a1"); err != nil {
		t.Fatalf("select rook: %v", err)
	}
	if err := m.ClickSquare("a8"); err != nil {
		t.Fatalf("mate: %v", err)
	}
	view := m.View()
	if !view.Terminal || view.Result != domain.ResultWin {
		t.Fatalf("expected terminal win, got terminal=%v result=%q", view.Terminal, view.Result)
	}
	if sink.endedCount() != 1 {
		t.Fatalf("SessionEnded fired %d times", sink.endedCount())
	}

	if err := m.ClickSquare("e1"); !errors.Is(err, ErrGameOver) {
		t.Fatalf("expected ErrGameOver after mate, got %v", err)
	}

	// No automated reply sneaks in after the terminal position.
	time.Sleep(60 * time.Millisecond)
	if got := len(m.View().Moves); got != 1 {
		t.Fatalf("moves after mate: %d", got)
	}
}

func TestResetAlternatesHumanColor(t *testing.T) {
	m := newTestMachine(t, "", Config{BotThinkTime: 20 * time.Millisecond})
	if m.View().HumanColor != domain.White {
		t.Fatalf("expected initial white assignment")
	}

	m.Reset()
	view := m.View()
	if view.HumanColor != domain.Black {
		t.Fatalf("expected black after first reset, got %s", view.HumanColor)
	}
	// The automated side now owns white and opens the game.
	waitFor(t, time.Second, func() bool { return len(m.View().Moves) == 1 })
	if m.View().Moves[0].Color != domain.White {
		t.Fatalf("automated opening move should be white")
	}

	m.Reset()
	if m.View().HumanColor != domain.White {
		t.Fatalf("expected white after second reset")
	}
}

func TestStaleAutomatedMoveDropped(t *testing.T) {
	m := newTestMachine(t, "", Config{BotThinkTime: time.Hour})

	if err := m.ClickSquare("e2"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := m.ClickSquare("e4"); err != nil {
		t.Fatalf("move: %v", err)
	}
	m.mu.Lock()
	staleGen := m.gen
	m.mu.Unlock()

	m.Reset()

	// The pre-reset timer firing now must not touch the new session.
	m.playAutomatedMove(staleGen)
	if got := len(m.View().Moves); got != 0 {
		t.Fatalf("stale automated move applied: %d moves", got)
	}
}

func TestMarksToggleAndClearOnSelection(t *testing.T) {
	m := newTestMachine(t, "", Config{BotThinkTime: time.Hour})

	m.ToggleMark("d4")
	m.ToggleMark("e5")
	m.ToggleMark("d4")
	view := m.View()
	if len(view.Marks) != 1 || view.Marks[0] != "e5" {
		t.Fatalf("unexpected marks: %v", view.Marks)
	}

	if err := m.ClickSquare("e2"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(m.View().Marks) != 0 {
		t.Fatalf("marks survived a new origin selection")
	}
}

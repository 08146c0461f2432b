package outcome

import (
	"context"
	"sync"
	"testing"

	"github.com/alissanguyen/chess-ai/internal/domain"
	"github.com/alissanguyen/chess-ai/internal/profile"
	"github.com/alissanguyen/chess-ai/internal/session"
)

type memStats struct {
	mu    sync.Mutex
	stats map[string]*domain.GameStats
	saves int
}

func newMemStats() *memStats { return &memStats{stats: make(map[string]*domain.GameStats)} }

func (m *memStats) LoadStats(_ context.Context, device string) (*domain.GameStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.stats[device]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, nil
}

func (m *memStats) SaveStats(_ context.Context, device string, stats *domain.GameStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *stats
	m.stats[device] = &copied
	m.saves++
	return nil
}

type fakeRemote struct {
	mu      sync.Mutex
	events  []*domain.GameResultEvent
	reads   int
	profile *domain.Profile
}

func (f *fakeRemote) GetProfile(context.Context, string) (*domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	return f.profile, nil
}

func (f *fakeRemote) AppendGameResult(_ context.Context, ev *domain.GameResultEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeRemote) MergeGuestStats(context.Context, string, *domain.GameStats) error { return nil }

func (f *fakeRemote) Leaderboard(context.Context, profile.Metric, int, int) ([]domain.LeaderboardEntry, error) {
	return nil, nil
}

func (f *fakeRemote) UsernameTaken(context.Context, string) (bool, error) { return false, nil }

func (f *fakeRemote) Close() error { return nil }

func guestIdentity() (string, string, bool) { return "dev1", "", false }

func TestGuestResultIncrementsCounters(t *testing.T) {
	stats := newMemStats()
	r := NewRecorder(stats, nil, guestIdentity, nil)

	r.SessionEnded(session.View{SessionID: "g1"}, domain.ResultWin)
	saved, _ := stats.LoadStats(context.Background(), "dev1")
	if saved == nil || saved.Wins != 1 || saved.Losses != 0 {
		t.Fatalf("unexpected stats: %+v", saved)
	}
	if saved.LastUpdated.IsZero() {
		t.Fatalf("timestamp not refreshed")
	}

	r.SessionEnded(session.View{SessionID: "g2"}, domain.ResultDraw)
	saved, _ = stats.LoadStats(context.Background(), "dev1")
	if saved.Wins != 1 || saved.Draws != 1 {
		t.Fatalf("second game not counted: %+v", saved)
	}
}

func TestLatchAbsorbsDuplicateTerminalDetection(t *testing.T) {
	stats := newMemStats()
	r := NewRecorder(stats, nil, guestIdentity, nil)

	// The same terminal position reported twice (human path plus a
	// redundant check) counts once.
	r.SessionEnded(session.View{SessionID: "g1"}, domain.ResultLoss)
	r.SessionEnded(session.View{SessionID: "g1"}, domain.ResultLoss)
	saved, _ := stats.LoadStats(context.Background(), "dev1")
	if saved.Losses != 1 {
		t.Fatalf("duplicate detection double-counted: %+v", saved)
	}

	// A fresh session ID clears the latch.
	r.SessionEnded(session.View{SessionID: "g2"}, domain.ResultLoss)
	saved, _ = stats.LoadStats(context.Background(), "dev1")
	if saved.Losses != 2 {
		t.Fatalf("new session not counted: %+v", saved)
	}
}

func TestUnclassifiedTerminalIgnored(t *testing.T) {
	stats := newMemStats()
	r := NewRecorder(stats, nil, guestIdentity, nil)

	r.SessionEnded(session.View{SessionID: "g1"}, domain.ResultNone)
	if stats.saves != 0 {
		t.Fatalf("unclassified terminal recorded")
	}
}

func TestAuthenticatedResultAppendsEventAndRereads(t *testing.T) {
	stats := newMemStats()
	remote := &fakeRemote{profile: &domain.Profile{UserID: "u1", TotalMatches: 4}}
	r := NewRecorder(stats, remote, func() (string, string, bool) { return "u1", "u1", true }, nil)

	v := session.View{SessionID: "s-9", HumanColor: domain.Black, FEN: "final-fen"}
	r.SessionEnded(v, domain.ResultWin)

	if len(remote.events) != 1 {
		t.Fatalf("expected one event, got %d", len(remote.events))
	}
	ev := remote.events[0]
	if ev.ID != "s-9" || ev.UserID != "u1" || ev.Result != domain.ResultWin || ev.PlayerColor != domain.Black {
		t.Fatalf("event mismatch: %+v", ev)
	}
	if remote.reads != 1 {
		t.Fatalf("profile not re-read after append")
	}
	if stats.saves != 0 {
		t.Fatalf("authenticated result leaked into guest stats")
	}

	r.SessionEnded(v, domain.ResultWin)
	if len(remote.events) != 1 {
		t.Fatalf("latch failed on authenticated path")
	}
}

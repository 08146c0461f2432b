package httpapi

import (
	"encoding/json"

	"github.com/alissanguyen/chess-ai/internal/domain"
	"github.com/alissanguyen/chess-ai/internal/profile"
	"github.com/alissanguyen/chess-ai/internal/session"
	"github.com/alissanguyen/chess-ai/pkg/chessdto"
)

type stateFrame struct {
	Type  string                 `json:"type"`
	State *chessdto.SessionState `json:"state"`
}

func marshalFrame(state *chessdto.SessionState) ([]byte, error) {
	return json.Marshal(stateFrame{Type: "session_state", State: state})
}

func viewToState(v session.View) *chessdto.SessionState {
	state := &chessdto.SessionState{
		SessionID:   v.SessionID,
		FEN:         v.FEN,
		HumanColor:  string(v.HumanColor),
		State:       string(v.State),
		Moves:       make([]chessdto.Move, 0, len(v.Moves)),
		Origin:      v.Origin,
		Marks:       v.Marks,
		Terminal:    v.Terminal,
		Result:      string(v.Result),
		InCheck:     v.InCheck,
		HumanToMove: v.HumanToMove,
		Replaying:   v.Replaying,
	}
	for _, m := range v.Moves {
		state.Moves = append(state.Moves, chessdto.Move{
			From:      m.From,
			To:        m.To,
			UCI:       m.UCI,
			SAN:       m.SAN,
			Color:     string(m.Color),
			Piece:     m.Piece,
			Promotion: m.Promotion,
			Capture:   m.Capture,
			Check:     m.Check,
			Checkmate: m.Checkmate,
			Castle:    m.Castle,
			EnPassant: m.EnPassant,
		})
	}
	for _, d := range v.Destinations {
		state.Destinations = append(state.Destinations, chessdto.Destination{
			Square:    d.To,
			UCI:       d.UCI,
			SAN:       d.SAN,
			Promotion: d.Promotion,
			Capture:   d.Capture,
		})
	}
	if v.Pending != nil {
		state.Pending = &chessdto.PendingPromotion{From: v.Pending.From, To: v.Pending.To}
	}
	return state
}

func statsToDTO(s *domain.GameStats) *chessdto.StatsResponse {
	if s == nil {
		return &chessdto.StatsResponse{Username: "Guest"}
	}
	return &chessdto.StatsResponse{
		Username: s.Username,
		Wins:     s.Wins,
		Losses:   s.Losses,
		Draws:    s.Draws,
	}
}

func profileToDTO(p *domain.Profile) *chessdto.Profile {
	if p == nil {
		return nil
	}
	return &chessdto.Profile{
		UserID:           p.UserID,
		Username:         p.Username,
		AvatarColor:      p.AvatarColor,
		Wins:             p.Wins,
		Losses:           p.Losses,
		Draws:            p.Draws,
		TotalMatches:     p.TotalMatches,
		WinRate:          p.WinRate,
		CurrentWinStreak: p.CurrentWinStreak,
		LongestWinStreak: p.LongestWinStreak,
		UpdatedAt:        p.UpdatedAt,
		CreatedAt:        p.CreatedAt,
	}
}

func leaderboardToDTO(metric profile.Metric, entries []domain.LeaderboardEntry) *chessdto.LeaderboardResponse {
	resp := &chessdto.LeaderboardResponse{
		Metric:  string(metric),
		Entries: make([]chessdto.LeaderboardEntry, 0, len(entries)),
	}
	for i, e := range entries {
		resp.Entries = append(resp.Entries, chessdto.LeaderboardEntry{
			Rank:             i + 1,
			Username:         e.Username,
			AvatarColor:      e.AvatarColor,
			TotalMatches:     e.TotalMatches,
			WinRate:          e.WinRate,
			LongestWinStreak: e.LongestWinStreak,
		})
	}
	return resp
}

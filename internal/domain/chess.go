package domain

import "time"

// Color identifies a chess side.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Opposite returns the other side.
func (c Color) Opposite() Color {
	if c == White {
		return Black
	}
	return White
}

// Result classifies a finished game from the human player's perspective.
type Result string

const (
	ResultNone Result = ""
	ResultWin  Result = "win"
	ResultLoss Result = "loss"
	ResultDraw Result = "draw"
)

// GameStats is the guest-local scoreboard, one per device. Entries older
// than the stats TTL are discarded on load.
type GameStats struct {
	Username    string    `json:"username"`
	Wins        int       `json:"wins"`
	Losses      int       `json:"losses"`
	Draws       int       `json:"draws"`
	LastUpdated time.Time `json:"last_updated"`
}

// Profile is the authenticated aggregate owned by the backend. The session
// core never computes streaks or win rate itself; it re-reads this after
// appending a result event.
type Profile struct {
	UserID           string
	Username         string
	AvatarColor      string
	Wins             int
	Losses           int
	Draws            int
	TotalMatches     int
	WinRate          float64
	CurrentWinStreak int
	LongestWinStreak int
	UpdatedAt        time.Time
	CreatedAt        time.Time
}

// GameResultEvent is one immutable row appended to the remote history when
// an authenticated game ends.
type GameResultEvent struct {
	ID          string
	UserID      string
	Result      Result
	PlayerColor Color
	MoveCount   int
	FinalFEN    string
	EndedAt     time.Time
}

// LeaderboardEntry is one row of a leaderboard query.
type LeaderboardEntry struct {
	Username         string
	AvatarColor      string
	WinRate          float64
	LongestWinStreak int
	TotalMatches     int
}

// Snapshot is the durable recovery copy of the live session. At most one
// exists per device; it expires after the snapshot TTL.
type Snapshot struct {
	FEN         string    `json:"fen"`
	MovesUCI    []string  `json:"moves_uci"`
	HumanColor  Color     `json:"human_color"`
	LastUpdated time.Time `json:"last_updated"`
}

// Prefs carries cosmetic pass-through flags for the view layer.
type Prefs struct {
	DarkMode      bool      `json:"dark_mode"`
	AssignedColor Color     `json:"assigned_color"`
	LastUpdated   time.Time `json:"last_updated"`
}

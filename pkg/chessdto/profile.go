package chessdto

import "time"

type Profile struct {
	UserID           string    `json:"user_id"`
	Username         string    `json:"username"`
	AvatarColor      string    `json:"avatar_color"`
	Wins             int       `json:"wins"`
	Losses           int       `json:"losses"`
	Draws            int       `json:"draws"`
	TotalMatches     int       `json:"total_matches"`
	WinRate          float64   `json:"win_rate"`
	CurrentWinStreak int       `json:"current_win_streak"`
	LongestWinStreak int       `json:"longest_win_streak"`
	UpdatedAt        time.Time `json:"updated_at"`
	CreatedAt        time.Time `json:"created_at"`
}

type LeaderboardEntry struct {
	Rank             int     `json:"rank"`
	Username         string  `json:"username"`
	AvatarColor      string  `json:"avatar_color"`
	TotalMatches     int     `json:"total_matches"`
	WinRate          float64 `json:"win_rate"`
	LongestWinStreak int     `json:"longest_win_streak"`
}

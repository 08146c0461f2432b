package chessdto

// SquareRequest is a board gesture: a tap on one square. The server decides
// whether it selects an origin, plays a move, or is ignored.
type SquareRequest struct {
	Square string `json:"square"`
}

// MarkRequest toggles a right-click annotation on a square.
type MarkRequest struct {
	Square string `json:"square"`
}

// PromotionRequest resolves a pending pawn promotion.
type PromotionRequest struct {
	Piece string `json:"piece"`
}

// StateResponse wraps the session view for HTTP responses.
type StateResponse struct {
	State *SessionState `json:"state"`
}

// AuthEventRequest mirrors the auth lifecycle events the identity layer
// consumes: "guest", "sign_in", "sign_out", "token_refresh".
type AuthEventRequest struct {
	Event    string `json:"event"`
	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
}

type AuthEventResponse struct {
	Mode        string `json:"mode"`
	PromptShown bool   `json:"prompt_shown"`
}

// StatsResponse is the guest scoreboard. Authenticated players read their
// aggregate profile instead.
type StatsResponse struct {
	Username string `json:"username"`
	Wins     int    `json:"wins"`
	Losses   int    `json:"losses"`
	Draws    int    `json:"draws"`
}

type ProfileResponse struct {
	Profile *Profile `json:"profile"`
}

type LeaderboardResponse struct {
	Metric  string             `json:"metric"`
	Entries []LeaderboardEntry `json:"entries"`
}

type UsernameCheckResponse struct {
	Username  string `json:"username"`
	Available bool   `json:"available"`
}

// Prefs carries the browser's persisted UI preferences.
type Prefs struct {
	DarkMode      bool   `json:"dark_mode"`
	AssignedColor string `json:"assigned_color,omitempty"`
}

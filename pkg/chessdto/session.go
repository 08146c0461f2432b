package chessdto

// SessionState is the full view of the live session as sent to the browser,
// both as HTTP responses and as websocket frames.
type SessionState struct {
	SessionID    string            `json:"session_id"`
	FEN          string            `json:"fen"`
	HumanColor   string            `json:"human_color"`
	State        string            `json:"state"`
	Moves        []Move            `json:"moves"`
	Origin       string            `json:"origin,omitempty"`
	Destinations []Destination     `json:"destinations,omitempty"`
	Pending      *PendingPromotion `json:"pending_promotion,omitempty"`
	Marks        []string          `json:"marks,omitempty"`
	Terminal     bool              `json:"terminal"`
	Result       string            `json:"result,omitempty"`
	InCheck      bool              `json:"in_check"`
	HumanToMove  bool              `json:"human_to_move"`
	Replaying    bool              `json:"replaying"`
}

// Destination is one legal landing square for the selected piece.
type Destination struct {
	Square    string `json:"square"`
	UCI       string `json:"uci"`
	SAN       string `json:"san"`
	Promotion bool   `json:"promotion"`
	Capture   bool   `json:"capture"`
}

type PendingPromotion struct {
	From string `json:"from"`
	To   string `json:"to"`
}

package chessdto

// Move is one applied half-move in the session's history.
type Move struct {
	From      string `json:"from"`
	To        string `json:"to"`
	UCI       string `json:"uci"`
	SAN       string `json:"san"`
	Color     string `json:"color"`
	Piece     string `json:"piece"`
	Promotion string `json:"promotion,omitempty"`
	Capture   bool   `json:"capture"`
	Check     bool   `json:"check"`
	Checkmate bool   `json:"checkmate"`
	Castle    bool   `json:"castle"`
	EnPassant bool   `json:"en_passant"`
}

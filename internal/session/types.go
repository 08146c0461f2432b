package session

import (
	"errors"

	"github.com/alissanguyen/chess-ai/internal/domain"
	"github.com/alissanguyen/chess-ai/internal/rules"
)

var (
	ErrNotYourTurn        = errors.New("not the human side's turn")
	ErrGameOver           = errors.New("game already finished")
	ErrReplaying          = errors.New("session replay in progress")
	ErrNoPendingPromotion = errors.New("no promotion awaiting a choice")
	ErrBadPromotionPiece  = errors.New("invalid promotion piece")
)

// State is the interactive phase of the session state machine.
type State string

const (
	StateAwaitingSelection   State = "awaiting_selection"
	StateAwaitingDestination State = "awaiting_destination"
	StateAwaitingPromotion   State = "awaiting_promotion"
	StateReplaying           State = "replaying"
)

// PendingPromotion is the transient substate entered when a human move
// needs a promotion piece chosen. It is never persisted.
type PendingPromotion struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// View is an immutable copy of the live session handed to sinks and the
// transport layer. No caller can mutate machine state through it.
type View struct {
	SessionID    string
	FEN          string
	HumanColor   domain.Color
	Moves        []rules.MoveRecord
	State        State
	Origin       string
	Destinations []rules.LegalMove
	Pending      *PendingPromotion
	Marks        []string
	Terminal     bool
	Result       domain.Result
	InCheck      bool
	HumanToMove  bool
	Replaying    bool
}

// Sink observes session transitions. SessionChanged fires after every
// accepted move, reset, and replay completion. SessionEnded may fire more
// than once for one terminal position; consumers latch on SessionID.
type Sink interface {
	SessionChanged(view View)
	SessionEnded(view View, result domain.Result)
}

// promotionPieces are the choices offered for a pawn reaching the last
// rank, for both the dialog and the automated side's random pick.
var promotionPieces = []string{"q", "r", "b", "n"}

func validPromotionPiece(piece string) bool {
	for _, p := range promotionPieces {
		if p == piece {
			return true
		}
	}
	return false
}

package rules

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/alissanguyen/chess-ai/internal/domain"
)

var ErrIllegalMove = errors.New("illegal chess move")

// LegalMove describes one legal move in verbose form.
type LegalMove struct {
	From      string
	To        string
	UCI       string
	SAN       string
	Promotion bool
	Capture   bool
}

// MoveRecord is one applied, validated move with full metadata. Records are
// immutable once returned; callers append them to the session move list.
type MoveRecord struct {
	From      string
	To        string
	Promotion string
	Color     domain.Color
	Piece     string
	SAN       string
	UCI       string
	Capture   bool
	Check     bool
	Castle    bool
	EnPassant bool
	Checkmate bool
	FENBefore string
	FENAfter  string
}

// Engine is the rules-engine contract consumed by the session core. The
// concrete implementation wraps corentings/chess; tests may substitute any
// implementation honoring the same semantics.
type Engine interface {
	LegalMoves() []LegalMove
	LegalMovesFrom(square string) []LegalMove
	Apply(from, to, promotion string) (*MoveRecord, error)
	ApplyUCI(uci string) (*MoveRecord, error)
	Turn() domain.Color
	InCheck() bool
	IsGameOver() bool
	IsDraw() bool
	Winner() (domain.Color, bool)
	FEN() string
	PieceAt(square string) (piece string, color domain.Color, ok bool)
	Reset()
}

// GameEngine adapts corentings/chess/v2 to the Engine contract.
type GameEngine struct {
	game    *nchess.Game
	inCheck bool
}

func NewGameEngine() *GameEngine {
	return &GameEngine{game: nchess.NewGame()}
}

// NewGameEngineFromFEN builds an engine positioned at fen. Used by tests and
// nowhere else; live sessions always reconstruct by replaying moves.
func NewGameEngineFromFEN(fen string) (*GameEngine, error) {
	opt, err := nchess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("parse fen: %w", err)
	}
	e := &GameEngine{game: nchess.NewGame(opt)}
	e.inCheck = e.computeInCheck()
	return e, nil
}

// computeInCheck reports whether the side to move's king is attacked. The
// library has no position-level check predicate, so the position is
// re-read with the turn flipped and the opponent's replies are scanned for
// a move landing on the king's square.
func (e *GameEngine) computeInCheck() bool {
	pos := e.game.Position()
	me := pos.Turn()
	var kingSq nchess.Square
	found := false
	for _, sq := range squareIndex {
		p := pos.Board().Piece(sq)
		if p != nchess.NoPiece && p.Type() == nchess.King && p.Color() == me {
			kingSq = sq
			found = true
			break
		}
	}
	if !found {
		return false
	}
	fields := strings.Fields(e.game.FEN())
	if len(fields) < 4 {
		return false
	}
	if me == nchess.White {
		fields[1] = "b"
	} else {
		fields[1] = "w"
	}
	fields[3] = "-"
	opt, err := nchess.FEN(strings.Join(fields, " "))
	if err != nil {
		return false
	}
	flipped := nchess.NewGame(opt)
	for _, mv := range flipped.ValidMoves() {
		if mv.S2() == kingSq {
			return true
		}
	}
	return false
}

func (e *GameEngine) Reset() {
	e.game = nchess.NewGame()
	e.inCheck = false
}

func (e *GameEngine) LegalMoves() []LegalMove {
	return e.legalMoves("")
}

func (e *GameEngine) LegalMovesFrom(square string) []LegalMove {
	square = strings.ToLower(strings.TrimSpace(square))
	if square == "" {
		return nil
	}
	return e.legalMoves(square)
}

func (e *GameEngine) legalMoves(origin string) []LegalMove {
	pos := e.game.Position()
	valid := e.game.ValidMoves()
	var out []LegalMove
	notationSAN := nchess.AlgebraicNotation{}
	for i := range valid {
		mv := valid[i]
		from := mv.S1().String()
		if origin != "" && from != origin {
			continue
		}
		out = append(out, LegalMove{
			From:      from,
			To:        mv.S2().String(),
			UCI:       uciString(&mv),
			SAN:       notationSAN.Encode(pos, &mv),
			Promotion: mv.Promo() != nchess.NoPieceType,
			Capture:   mv.HasTag(nchess.Capture) || mv.HasTag(nchess.EnPassant),
		})
	}
	return out
}

func (e *GameEngine) Apply(from, to, promotion string) (*MoveRecord, error) {
	uci := strings.ToLower(strings.TrimSpace(from) + strings.TrimSpace(to) + strings.TrimSpace(promotion))
	return e.ApplyUCI(uci)
}

// ApplyUCI validates and applies one move in UCI form ("e2e4", "e7e8q").
// The engine position advances on success only.
func (e *GameEngine) ApplyUCI(uci string) (*MoveRecord, error) {
	uci = strings.ToLower(strings.TrimSpace(uci))
	if len(uci) < 4 {
		return nil, ErrIllegalMove
	}
	pos := e.game.Position()
	mv, err := nchess.UCINotation{}.Decode(pos, uci)
	if err != nil {
		return nil, ErrIllegalMove
	}
	fenBefore := e.game.FEN()
	san := nchess.AlgebraicNotation{}.Encode(pos, mv)
	mover := colorFrom(pos.Turn())
	piece := pieceLetter(pos.Board().Piece(mv.S1()).Type())
	if err := e.game.Move(mv, nil); err != nil {
		return nil, ErrIllegalMove
	}

	e.inCheck = mv.HasTag(nchess.Check)
	return &MoveRecord{
		From:      mv.S1().String(),
		To:        mv.S2().String(),
		Promotion: pieceLetter(mv.Promo()),
		Color:     mover,
		Piece:     piece,
		SAN:       san,
		UCI:       uci,
		Capture:   mv.HasTag(nchess.Capture) || mv.HasTag(nchess.EnPassant),
		Check:     mv.HasTag(nchess.Check),
		Castle:    mv.HasTag(nchess.KingSideCastle) || mv.HasTag(nchess.QueenSideCastle),
		EnPassant: mv.HasTag(nchess.EnPassant),
		Checkmate: e.game.Method() == nchess.Checkmate,
		FENBefore: fenBefore,
		FENAfter:  e.game.FEN(),
	}, nil
}

func (e *GameEngine) Turn() domain.Color { return colorFrom(e.game.Position().Turn()) }

// InCheck reports whether the side to move is in check. Tracked from the
// last applied move's check tag and computed directly on FEN load.
func (e *GameEngine) InCheck() bool { return e.inCheck }

func (e *GameEngine) IsGameOver() bool { return e.game.Outcome() != nchess.NoOutcome }

func (e *GameEngine) IsDraw() bool { return e.game.Outcome() == nchess.Draw }

// Winner returns the winning side when the game has a decisive outcome.
func (e *GameEngine) Winner() (domain.Color, bool) {
	switch e.game.Outcome() {
	case nchess.WhiteWon:
		return domain.White, true
	case nchess.BlackWon:
		return domain.Black, true
	default:
		return "", false
	}
}

func (e *GameEngine) FEN() string { return e.game.FEN() }

func (e *GameEngine) PieceAt(square string) (string, domain.Color, bool) {
	sq, ok := squareIndex[strings.ToLower(strings.TrimSpace(square))]
	if !ok {
		return "", "", false
	}
	piece := e.game.Position().Board().Piece(sq)
	if piece == nchess.NoPiece {
		return "", "", false
	}
	return pieceLetter(piece.Type()), colorFrom(piece.Color()), true
}

var squareIndex = func() map[string]nchess.Square {
	m := make(map[string]nchess.Square, 64)
	for file := nchess.FileA; file <= nchess.FileH; file++ {
		for rank := nchess.Rank1; rank <= nchess.Rank8; rank++ {
			sq := nchess.NewSquare(file, rank)
			m[sq.String()] = sq
		}
	}
	return m
}()

func uciString(mv *nchess.Move) string {
	return mv.S1().String() + mv.S2().String() + pieceLetter(mv.Promo())
}

func colorFrom(c nchess.Color) domain.Color {
	if c == nchess.White {
		return domain.White
	}
	return domain.Black
}

func pieceLetter(pt nchess.PieceType) string {
	switch pt {
	case nchess.Pawn:
		return "p"
	case nchess.Knight:
		return "n"
	case nchess.Bishop:
		return "b"
	case nchess.Rook:
		return "r"
	case nchess.Queen:
		return "q"
	case nchess.King:
		return "k"
	default:
		return ""
	}
}

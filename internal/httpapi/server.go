package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/alissanguyen/chess-ai/internal/domain"
	"github.com/alissanguyen/chess-ai/internal/identity"
	"github.com/alissanguyen/chess-ai/internal/profile"
	"github.com/alissanguyen/chess-ai/internal/session"
	"github.com/alissanguyen/chess-ai/internal/store"
	"github.com/alissanguyen/chess-ai/pkg/chessdto"
)

const requestTimeout = 5 * time.Second

// Server exposes the session over a JSON API. It holds no game state; every
// request is delegated to the machine, the store, or the identity handler.
type Server struct {
	machine  *session.Machine
	store    *store.Store
	identity *identity.Handler
	remote   profile.Repository

	leaderboardLimit      int
	leaderboardMinMatches int

	httpServer *fasthttp.Server
	logger     *zap.Logger
}

type Options struct {
	Machine               *session.Machine
	Store                 *store.Store
	Identity              *identity.Handler
	Remote                profile.Repository
	LeaderboardLimit      int
	LeaderboardMinMatches int
	Logger                *zap.Logger
}

func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.LeaderboardLimit <= 0 {
		opts.LeaderboardLimit = 10
	}
	if opts.LeaderboardMinMatches <= 0 {
		opts.LeaderboardMinMatches = 5
	}
	s := &Server{
		machine:               opts.Machine,
		store:                 opts.Store,
		identity:              opts.Identity,
		remote:                opts.Remote,
		leaderboardLimit:      opts.LeaderboardLimit,
		leaderboardMinMatches: opts.LeaderboardMinMatches,
		logger:                logger,
	}
	s.httpServer = &fasthttp.Server{
		Handler:      s.handleRequest,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		Name:         "chess-session",
	}
	return s
}

func (s *Server) ListenAndServe(addr string) error {
	s.logger.Info("http api listening", zap.String("addr", addr))
	return s.httpServer.ListenAndServe(addr)
}

func (s *Server) Shutdown() error {
	return s.httpServer.Shutdown()
}

func (s *Server) handleRequest(ctx *fasthttp.RequestCtx) {
	path := string(ctx.Path())
	method := string(ctx.Method())

	ctx.Response.Header.Set("Access-Control-Allow-Origin", "*")
	ctx.Response.Header.Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
	ctx.Response.Header.Set("Access-Control-Allow-Headers", "Content-Type")
	if method == fasthttp.MethodOptions {
		ctx.SetStatusCode(fasthttp.StatusNoContent)
		return
	}

	switch {
	case path == "/healthz" && method == fasthttp.MethodGet:
		s.handleHealth(ctx)
	case path == "/api/state" && method == fasthttp.MethodGet:
		s.handleState(ctx)
	case path == "/api/square" && method == fasthttp.MethodPost:
		s.handleSquare(ctx)
	case path == "/api/square/mark" && method == fasthttp.MethodPost:
		s.handleMark(ctx)
	case path == "/api/promotion" && method == fasthttp.MethodPost:
		s.handlePromotion(ctx)
	case path == "/api/reset" && method == fasthttp.MethodPost:
		s.handleReset(ctx)
	case path == "/api/stats" && method == fasthttp.MethodGet:
		s.handleStats(ctx)
	case path == "/api/profile" && method == fasthttp.MethodGet:
		s.handleProfile(ctx)
	case path == "/api/leaderboard" && method == fasthttp.MethodGet:
		s.handleLeaderboard(ctx)
	case path == "/api/username/check" && method == fasthttp.MethodGet:
		s.handleUsernameCheck(ctx)
	case path == "/api/auth/event" && method == fasthttp.MethodPost:
		s.handleAuthEvent(ctx)
	case path == "/api/prefs" && method == fasthttp.MethodGet:
		s.handleGetPrefs(ctx)
	case path == "/api/prefs" && method == fasthttp.MethodPut:
		s.handlePutPrefs(ctx)
	default:
		s.writeError(ctx, fasthttp.StatusNotFound, "not_found", "unknown route")
	}
}

func (s *Server) handleHealth(ctx *fasthttp.RequestCtx) {
	s.writeJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleState(ctx *fasthttp.RequestCtx) {
	s.writeJSON(ctx, fasthttp.StatusOK, chessdto.StateResponse{State: viewToState(s.machine.View())})
}

func (s *Server) handleSquare(ctx *fasthttp.RequestCtx) {
	var req chessdto.SquareRequest
	if !s.readJSON(ctx, &req) {
		return
	}
	if err := s.machine.ClickSquare(strings.TrimSpace(req.Square)); err != nil {
		s.writeSessionError(ctx, err)
		return
	}
	s.writeJSON(ctx, fasthttp.StatusOK, chessdto.StateResponse{State: viewToState(s.machine.View())})
}

func (s *Server) handleMark(ctx *fasthttp.RequestCtx) {
	var req chessdto.MarkRequest
	if !s.readJSON(ctx, &req) {
		return
	}
	s.machine.ToggleMark(strings.TrimSpace(req.Square))
	s.writeJSON(ctx, fasthttp.StatusOK, chessdto.StateResponse{State: viewToState(s.machine.View())})
}

func (s *Server) handlePromotion(ctx *fasthttp.RequestCtx) {
	var req chessdto.PromotionRequest
	if !s.readJSON(ctx, &req) {
		return
	}
	if err := s.machine.ResolvePromotion(strings.TrimSpace(req.Piece)); err != nil {
		s.writeSessionError(ctx, err)
		return
	}
	s.writeJSON(ctx, fasthttp.StatusOK, chessdto.StateResponse{State: viewToState(s.machine.View())})
}

func (s *Server) handleReset(ctx *fasthttp.RequestCtx) {
	s.machine.Reset()
	s.writeJSON(ctx, fasthttp.StatusOK, chessdto.StateResponse{State: viewToState(s.machine.View())})
}

func (s *Server) handleStats(ctx *fasthttp.RequestCtx) {
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	stats, err := s.store.LoadStats(reqCtx, s.identity.StorageKey())
	if err != nil {
		s.writeError(ctx, fasthttp.StatusInternalServerError, "stats_unavailable", err.Error())
		return
	}
	s.writeJSON(ctx, fasthttp.StatusOK, statsToDTO(stats))
}

func (s *Server) handleProfile(ctx *fasthttp.RequestCtx) {
	_, userID, authed := s.identity.Snapshot()
	if !authed || s.remote == nil {
		s.writeError(ctx, fasthttp.StatusUnauthorized, "not_authenticated", "sign in to read a profile")
		return
	}
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	p, err := s.remote.GetProfile(reqCtx, userID)
	if err != nil {
		s.writeError(ctx, fasthttp.StatusInternalServerError, "profile_unavailable", err.Error())
		return
	}
	s.writeJSON(ctx, fasthttp.StatusOK, chessdto.ProfileResponse{Profile: profileToDTO(p)})
}

func (s *Server) handleLeaderboard(ctx *fasthttp.RequestCtx) {
	if s.remote == nil {
		s.writeError(ctx, fasthttp.StatusServiceUnavailable, "leaderboard_unavailable", "no database configured")
		return
	}
	metric := profile.MetricWinRate
	if string(ctx.QueryArgs().Peek("metric")) == string(profile.MetricStreak) {
		metric = profile.MetricStreak
	}
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	entries, err := s.remote.Leaderboard(reqCtx, metric, s.leaderboardMinMatches, s.leaderboardLimit)
	if err != nil {
		s.writeError(ctx, fasthttp.StatusInternalServerError, "leaderboard_unavailable", err.Error())
		return
	}
	s.writeJSON(ctx, fasthttp.StatusOK, leaderboardToDTO(metric, entries))
}

func (s *Server) handleUsernameCheck(ctx *fasthttp.RequestCtx) {
	username := strings.TrimSpace(string(ctx.QueryArgs().Peek("username")))
	if username == "" {
		s.writeError(ctx, fasthttp.StatusBadRequest, "bad_request", "username is required")
		return
	}
	if s.remote == nil {
		s.writeJSON(ctx, fasthttp.StatusOK, chessdto.UsernameCheckResponse{Username: username, Available: true})
		return
	}
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	taken, err := s.remote.UsernameTaken(reqCtx, username)
	if err != nil {
		s.writeError(ctx, fasthttp.StatusInternalServerError, "check_unavailable", err.Error())
		return
	}
	s.writeJSON(ctx, fasthttp.StatusOK, chessdto.UsernameCheckResponse{Username: username, Available: !taken})
}

func (s *Server) handleAuthEvent(ctx *fasthttp.RequestCtx) {
	var req chessdto.AuthEventRequest
	if !s.readJSON(ctx, &req) {
		return
	}
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var err error
	switch strings.ToLower(strings.TrimSpace(req.Event)) {
	case "guest":
		err = s.identity.EnterGuest(reqCtx, req.Username)
	case "sign_in":
		if strings.TrimSpace(req.UserID) == "" {
			s.writeError(ctx, fasthttp.StatusBadRequest, "bad_request", "user_id is required for sign_in")
			return
		}
		err = s.identity.SignIn(reqCtx, req.UserID)
	case "sign_out":
		s.identity.SignOut(reqCtx)
	case "token_refresh":
		s.identity.TokenRefreshed()
	default:
		s.writeError(ctx, fasthttp.StatusBadRequest, "bad_request", "unknown auth event")
		return
	}
	if err != nil {
		s.writeError(ctx, fasthttp.StatusInternalServerError, "auth_event_failed", err.Error())
		return
	}
	s.writeJSON(ctx, fasthttp.StatusOK, chessdto.AuthEventResponse{
		Mode:        string(s.identity.Mode()),
		PromptShown: s.identity.PromptShown(),
	})
}

func (s *Server) handleGetPrefs(ctx *fasthttp.RequestCtx) {
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	prefs, err := s.store.LoadPrefs(reqCtx, s.identity.StorageKey())
	if err != nil {
		s.writeError(ctx, fasthttp.StatusInternalServerError, "prefs_unavailable", err.Error())
		return
	}
	if prefs == nil {
		prefs = &domain.Prefs{}
	}
	s.writeJSON(ctx, fasthttp.StatusOK, chessdto.Prefs{
		DarkMode:      prefs.DarkMode,
		AssignedColor: string(prefs.AssignedColor),
	})
}

func (s *Server) handlePutPrefs(ctx *fasthttp.RequestCtx) {
	var req chessdto.Prefs
	if !s.readJSON(ctx, &req) {
		return
	}
	prefs := &domain.Prefs{
		DarkMode:      req.DarkMode,
		AssignedColor: domain.Color(req.AssignedColor),
		LastUpdated:   time.Now(),
	}
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	if err := s.store.SavePrefs(reqCtx, s.identity.StorageKey(), prefs); err != nil {
		s.writeError(ctx, fasthttp.StatusInternalServerError, "prefs_save_failed", err.Error())
		return
	}
	s.writeJSON(ctx, fasthttp.StatusOK, req)
}

func (s *Server) readJSON(ctx *fasthttp.RequestCtx, dst any) bool {
	if err := json.Unmarshal(ctx.PostBody(), dst); err != nil {
		s.writeError(ctx, fasthttp.StatusBadRequest, "bad_request", "malformed JSON body")
		return false
	}
	return true
}

// writeSessionError maps machine sentinels onto stable API codes. Gesture
// rejections are conflicts, not failures: the browser re-syncs from /api/state.
func (s *Server) writeSessionError(ctx *fasthttp.RequestCtx, err error) {
	switch {
	case errors.Is(err, session.ErrNotYourTurn):
		s.writeError(ctx, fasthttp.StatusConflict, "not_your_turn", err.Error())
	case errors.Is(err, session.ErrGameOver):
		s.writeError(ctx, fasthttp.StatusConflict, "game_over", err.Error())
	case errors.Is(err, session.ErrReplaying):
		s.writeError(ctx, fasthttp.StatusConflict, "replaying", err.Error())
	case errors.Is(err, session.ErrNoPendingPromotion):
		s.writeError(ctx, fasthttp.StatusConflict, "no_pending_promotion", err.Error())
	case errors.Is(err, session.ErrBadPromotionPiece):
		s.writeError(ctx, fasthttp.StatusBadRequest, "bad_promotion_piece", err.Error())
	default:
		s.writeError(ctx, fasthttp.StatusInternalServerError, "internal", err.Error())
	}
}

func (s *Server) writeJSON(ctx *fasthttp.RequestCtx, status int, body any) {
	payload, err := json.Marshal(body)
	if err != nil {
		s.logger.Error("response encode failed", zap.Error(err))
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(payload)
}

func (s *Server) writeError(ctx *fasthttp.RequestCtx, status int, code, message string) {
	s.writeJSON(ctx, status, chessdto.ErrorResponse{Code: code, Message: message})
}

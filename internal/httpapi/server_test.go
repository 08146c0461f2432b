package httpapi

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/alissanguyen/chess-ai/internal/domain"
	"github.com/alissanguyen/chess-ai/internal/rules"
	"github.com/alissanguyen/chess-ai/internal/session"
	"github.com/alissanguyen/chess-ai/pkg/chessdto"
)

func newTestServer(t *testing.T) (*Server, *session.Machine) {
	t.Helper()
	m := session.NewMachine(rules.NewGameEngine(), session.Config{
		BotThinkTime: time.Hour,
	}, nil)
	return NewServer(Options{Machine: m}), m
}

func doRequest(t *testing.T, s *Server, method, uri, body string) *fasthttp.RequestCtx {
	t.Helper()
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(uri)
	if body != "" {
		ctx.Request.SetBodyString(body)
	}
	s.handleRequest(ctx)
	return ctx
}

func decodeState(t *testing.T, ctx *fasthttp.RequestCtx) *chessdto.SessionState {
	t.Helper()
	var resp chessdto.StateResponse
	if err := json.Unmarshal(ctx.Response.Body(), &resp); err != nil {
		t.Fatalf("decode state: %v (%s)", err, ctx.Response.Body())
	}
	if resp.State == nil {
		t.Fatalf("empty state in response: %s", ctx.Response.Body())
	}
	return resp.State
}

func decodeError(t *testing.T, ctx *fasthttp.RequestCtx) chessdto.ErrorResponse {
	t.Helper()
	var resp chessdto.ErrorResponse
	if err := json.Unmarshal(ctx.Response.Body(), &resp); err != nil {
		t.Fatalf("decode error: %v (%s)", err, ctx.Response.Body())
	}
	return resp
}

func TestStateRouteReturnsLiveSession(t *testing.T) {
	s, m := newTestServer(t)
	ctx := doRequest(t, s, fasthttp.MethodGet, "/api/state", "")
	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("status = %d", ctx.Response.StatusCode())
	}
	state := decodeState(t, ctx)
	if state.SessionID != m.View().SessionID {
		t.Fatalf("session id mismatch")
	}
	if state.HumanColor != "white" || !state.HumanToMove {
		t.Fatalf("unexpected initial state: %+v", state)
	}
}

func TestSquareGestureSelectsOrigin(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := doRequest(t, s, fasthttp.MethodPost, "/api/square", `{"square":"e2"}`)
	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("status = %d: %s", ctx.Response.StatusCode(), ctx.Response.Body())
	}
	state := decodeState(t, ctx)
	if state.Origin != "e2" || len(state.Destinations) != 2 {
		t.Fatalf("origin not selected: %+v", state)
	}
}

func TestGestureOffTurnIsConflict(t *testing.T) {
	m := session.NewMachine(rules.NewGameEngine(), session.Config{
		BotThinkTime:      time.Hour,
		InitialHumanColor: domain.Black,
	}, nil)
	s := NewServer(Options{Machine: m})
	ctx := doRequest(t, s, fasthttp.MethodPost, "/api/square", `{"square":"e7"}`)
	if ctx.Response.StatusCode() != fasthttp.StatusConflict {
		t.Fatalf("status = %d", ctx.Response.StatusCode())
	}
	if decodeError(t, ctx).Code != "not_your_turn" {
		t.Fatalf("code = %q", decodeError(t, ctx).Code)
	}
}

func TestPromotionWithoutPendingIsConflict(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := doRequest(t, s, fasthttp.MethodPost, "/api/promotion", `{"piece":"q"}`)
	if ctx.Response.StatusCode() != fasthttp.StatusConflict {
		t.Fatalf("status = %d", ctx.Response.StatusCode())
	}
	if decodeError(t, ctx).Code != "no_pending_promotion" {
		t.Fatalf("unexpected code")
	}
}

func TestMalformedBodyIsBadRequest(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := doRequest(t, s, fasthttp.MethodPost, "/api/square", `{"square":`)
	if ctx.Response.StatusCode() != fasthttp.StatusBadRequest {
		t.Fatalf("status = %d", ctx.Response.StatusCode())
	}
}

func TestUnknownRouteIsNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := doRequest(t, s, fasthttp.MethodGet, "/api/nope", "")
	if ctx.Response.StatusCode() != fasthttp.StatusNotFound {
		t.Fatalf("status = %d", ctx.Response.StatusCode())
	}
}

func TestResetStartsFreshSession(t *testing.T) {
	s, m := newTestServer(t)
	if err := m.ClickSquare("e2"); err != nil {
		t.Fatalf("click: %v", err)
	}
	if err := m.ClickSquare("e4"); err != nil {
		t.Fatalf("click: %v", err)
	}
	before := m.View().SessionID

	ctx := doRequest(t, s, fasthttp.MethodPost, "/api/reset", "")
	state := decodeState(t, ctx)
	if state.SessionID == before || len(state.Moves) != 0 {
		t.Fatalf("reset did not start over: %+v", state)
	}
	if state.HumanColor != "black" {
		t.Fatalf("color did not alternate: %q", state.HumanColor)
	}
}

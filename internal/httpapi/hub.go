package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/alissanguyen/chess-ai/internal/domain"
	"github.com/alissanguyen/chess-ai/internal/session"
	"github.com/alissanguyen/chess-ai/pkg/chessdto"
)

// Hub pushes session-state frames to every connected browser. It implements
// session.Sink, so the machine drives it like any other observer. A
// subscriber that cannot keep up is closed rather than buffered without
// bound.
type Hub struct {
	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
	last        []byte

	writeTimeout time.Duration
	logger       *zap.Logger
}

type subscriber struct {
	frames chan []byte
	close  func()
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subscribers:  make(map[*subscriber]struct{}),
		writeTimeout: 5 * time.Second,
		logger:       logger,
	}
}

func (h *Hub) SessionChanged(view session.View) {
	h.broadcast(viewToState(view))
}

func (h *Hub) SessionEnded(view session.View, _ domain.Result) {
	h.broadcast(viewToState(view))
}

func (h *Hub) broadcast(state *chessdto.SessionState) {
	frame, err := marshalFrame(state)
	if err != nil {
		h.logger.Error("state frame encode failed", zap.Error(err))
		return
	}
	h.mu.Lock()
	h.last = frame
	for s := range h.subscribers {
		select {
		case s.frames <- frame:
		default:
			// Stalled subscriber: drop it now so later broadcasts do not
			// keep retrying a dead channel.
			delete(h.subscribers, s)
			s.close()
		}
	}
	h.mu.Unlock()
}

// ServeHTTP upgrades the connection and streams state frames until the
// client goes away. The newest known state is sent immediately so a
// reconnecting browser never renders stale squares.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode:    websocket.CompressionNoContextTakeover,
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closed")

	ctx := conn.CloseRead(r.Context())
	sub := h.subscribe(ctx)
	defer h.unsubscribe(sub)

	for {
		select {
		case frame := <-sub.frames:
			if err := h.writeFrame(ctx, conn, frame); err != nil {
				return
			}
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		}
	}
}

func (h *Hub) writeFrame(ctx context.Context, conn *websocket.Conn, frame []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, frame)
}

func (h *Hub) subscribe(ctx context.Context) *subscriber {
	ctx, cancel := context.WithCancel(ctx)
	sub := &subscriber{frames: make(chan []byte, 8), close: cancel}
	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	if h.last != nil {
		sub.frames <- h.last
	}
	h.mu.Unlock()
	return sub
}

func (h *Hub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	delete(h.subscribers, sub)
	h.mu.Unlock()
	sub.close()
}

// SubscriberCount is used by tests and the health endpoint.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

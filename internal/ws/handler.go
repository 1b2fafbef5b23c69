package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/ashureev/emojirooms/internal/actor"
	"github.com/ashureev/emojirooms/internal/directory"
	"github.com/ashureev/emojirooms/internal/domain"
	"github.com/ashureev/emojirooms/internal/identity"
	"github.com/ashureev/emojirooms/internal/matchmaking"
	"github.com/ashureev/emojirooms/internal/room"
)

const detachTimeout = 5 * time.Second

// Resolver maps identifiers to live actors.
type Resolver interface {
	Room(id string) (*room.Actor, error)
	Matchmaker() *matchmaking.Actor
}

// Options configures the WebSocket handlers. Zero values select defaults.
type Options struct {
	AllowedOrigin     string
	IsDev             bool
	SendQueue         int
	WriteTimeout      time.Duration
	MaxMessageBytes   int64
	MessagesPerSecond float64
	Burst             int
	Logger            *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.SendQueue <= 0 {
		o.SendQueue = 64
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = 16 << 10
	}
	if o.MessagesPerSecond <= 0 {
		o.MessagesPerSecond = 5
	}
	if o.Burst <= 0 {
		o.Burst = 10
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Handler serves the room and waiting-room WebSocket endpoints.
type Handler struct {
	actors Resolver
	opts   Options
	logger *slog.Logger
}

// NewHandler creates a new WebSocket handler.
func NewHandler(actors Resolver, opts Options) *Handler {
	opts = opts.withDefaults()
	return &Handler{actors: actors, opts: opts, logger: opts.Logger}
}

// ServeRoom upgrades the request and attaches the connection to the room
// named by the roomId URL parameter.
func (h *Handler) ServeRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	if !directory.ValidRoomID(roomID) {
		http.Error(w, "invalid room id", http.StatusBadRequest)
		return
	}
	who := identity.FromRequest(r)
	logger := h.logger.With("room_id", roomID, "user_id", who.UserID)

	s, c, ok := h.accept(w, r, logger)
	if !ok {
		return
	}
	defer s.Close(websocket.StatusNormalClosure, "session ended")

	ctx := r.Context()
	rm, err := h.attachRoom(ctx, roomID, s, who)
	if err != nil {
		logger.Error("Failed to attach to room", "error", err)
		s.Close(websocket.StatusInternalError, "room unavailable")
		return
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), detachTimeout)
		defer cancel()
		if err := rm.Detach(dctx, s); err != nil && !errors.Is(err, actor.ErrStopped) {
			logger.Warn("Failed to detach from room", "error", err)
		}
	}()

	logger.Info("Room session started", "session_id", s.ID())
	h.readLoop(ctx, c, s, logger, func(payload []byte) error {
		return rm.ReceiveText(ctx, s, payload)
	})
	logger.Info("Room session ended", "session_id", s.ID())
}

// attachRoom resolves the room and attaches s. A handle evicted between
// resolve and attach is resolved again once.
func (h *Handler) attachRoom(ctx context.Context, roomID string, s *Session, who domain.Identity) (*room.Actor, error) {
	var lastErr error
	for range 2 {
		rm, err := h.actors.Room(roomID)
		if err != nil {
			return nil, err
		}
		lastErr = rm.Attach(ctx, s, who)
		if lastErr == nil {
			return rm, nil
		}
		if !errors.Is(lastErr, actor.ErrStopped) {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// ServeWaitingRoom upgrades the request and attaches the connection to the
// matchmaking actor.
func (h *Handler) ServeWaitingRoom(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With("actor", "matchmaking")

	s, c, ok := h.accept(w, r, logger)
	if !ok {
		return
	}
	defer s.Close(websocket.StatusNormalClosure, "session ended")

	ctx := r.Context()
	mm := h.actors.Matchmaker()
	if err := mm.Attach(ctx, s); err != nil {
		logger.Error("Failed to attach to waiting room", "error", err)
		s.Close(websocket.StatusInternalError, "waiting room unavailable")
		return
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), detachTimeout)
		defer cancel()
		if err := mm.Detach(dctx, s); err != nil && !errors.Is(err, actor.ErrStopped) {
			logger.Warn("Failed to detach from waiting room", "error", err)
		}
	}()

	logger.Info("Waiting session started", "session_id", s.ID())
	h.readLoop(ctx, c, s, logger, func(payload []byte) error {
		return mm.ReceiveText(ctx, s, payload)
	})
	logger.Info("Waiting session ended", "session_id", s.ID())
}

func (h *Handler) accept(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*Session, *websocket.Conn, bool) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return nil, nil, false
	}

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		logger.Error("Failed to accept WebSocket", "error", err, "ip", identity.IPFromRequest(r))
		return nil, nil, false
	}
	c.SetReadLimit(h.opts.MaxMessageBytes)

	return newSession(c, h.opts.SendQueue, h.opts.WriteTimeout, logger), c, true
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.opts.IsDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.opts.AllowedOrigin == "*" {
		return true
	}
	if origin == h.opts.AllowedOrigin {
		return true
	}
	h.logger.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.opts.AllowedOrigin)
	return false
}

// readLoop feeds text frames to handle until the connection or the actor
// goes away. Frames beyond the rate limit are dropped like malformed input.
func (h *Handler) readLoop(ctx context.Context, c *websocket.Conn, s *Session, logger *slog.Logger, handle func([]byte) error) {
	limiter := rate.NewLimiter(rate.Limit(h.opts.MessagesPerSecond), h.opts.Burst)
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || !s.Alive() {
				logger.Debug("WebSocket closed", "session_id", s.ID())
			} else {
				logger.Warn("WebSocket read error", "error", err, "session_id", s.ID())
			}
			return
		}
		if typ != websocket.MessageText {
			logger.Debug("Dropping non-text frame", "session_id", s.ID())
			continue
		}
		if !limiter.Allow() {
			logger.Debug("Dropping frame over rate limit", "session_id", s.ID())
			continue
		}
		if err := handle(data); err != nil {
			logger.Warn("Actor rejected payload", "error", err, "session_id", s.ID())
			return
		}
	}
}

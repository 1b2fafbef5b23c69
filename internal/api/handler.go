// Package api provides the REST handlers for rooms, the waiting room and
// service health.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/emojirooms/internal/domain"
	"github.com/ashureev/emojirooms/internal/matchmaking"
	"github.com/ashureev/emojirooms/internal/room"
)

const defaultHealthTimeout = 5 * time.Second

// Rooms resolves the live actors behind the REST surface.
type Rooms interface {
	Room(id string) (*room.Actor, error)
	Matchmaker() *matchmaking.Actor
	KnownRooms(ctx context.Context) ([]string, error)
}

// PairReader looks up pair audit records. A missing record is nil, nil.
type PairReader interface {
	GetPairRecord(ctx context.Context, roomID string) (*domain.PairRecord, error)
}

// Pinger is a dependency reported by the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Check names a dependency for the health endpoint.
type Check struct {
	Name   string
	Pinger Pinger
}

// Handler serves the REST API.
type Handler struct {
	rooms         Rooms
	pairs         PairReader
	checks        []Check
	healthTimeout time.Duration
	logger        *slog.Logger
}

// NewHandler creates a Handler. pairs may be nil, in which case pair lookups
// report 404.
func NewHandler(rooms Rooms, pairs PairReader, logger *slog.Logger, checks ...Check) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		rooms:         rooms,
		pairs:         pairs,
		checks:        checks,
		healthTimeout: defaultHealthTimeout,
		logger:        logger,
	}
}

// RegisterRoutes mounts every API route on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Get("/chat/rooms", h.ListRooms)
		r.Route("/chat/room/{roomId}", func(r chi.Router) {
			r.Get("/messages", h.Messages)
			r.Get("/game/state", h.GameState)
			r.Post("/game/start", h.StartGame)
			r.Post("/game/submit-emoji", h.SubmitEmoji)
		})

		r.Get("/waiting-room/status", h.WaitingStatus)
		r.Get("/pairs/{roomId}", h.Pair)
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

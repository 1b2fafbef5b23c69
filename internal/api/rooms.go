package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/emojirooms/internal/actor"
	"github.com/ashureev/emojirooms/internal/directory"
	"github.com/ashureev/emojirooms/internal/domain"
	"github.com/ashureev/emojirooms/internal/identity"
	"github.com/ashureev/emojirooms/internal/room"
)

const maxSubmitBody = 4 << 10

type submitRequest struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Emoji    string `json:"emoji"`
}

// ListRooms returns every room id with a live actor or persisted state.
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	ids, err := h.rooms.KnownRooms(r.Context())
	if err != nil {
		h.logger.Error("Failed to list rooms", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list rooms")
		return
	}
	JSON(w, http.StatusOK, map[string]any{"rooms": ids})
}

// Messages returns the room's current message log.
func (h *Handler) Messages(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, map[string]any{"messages": snap.Messages})
}

// GameState returns the room's game state.
func (h *Handler) GameState(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, map[string]any{"gameState": snap.GameState})
}

// StartGame asks the room to start a round. The room announces when too few
// players are connected.
func (h *Handler) StartGame(w http.ResponseWriter, r *http.Request) {
	err := h.withRoom(r, func(rm *room.Actor) error {
		return rm.StartRound(r.Context())
	})
	if err != nil {
		h.roomError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"success": true})
}

// SubmitEmoji records an answer for the open round on behalf of a player.
func (h *Handler) SubmitEmoji(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmitBody)).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	answer := strings.TrimSpace(req.Emoji)
	if answer == "" {
		Error(w, http.StatusBadRequest, "emoji is required")
		return
	}

	who := domain.Identity{UserID: req.UserID, UserName: req.UserName}
	if who.UserID == "" {
		who = identity.FromRequest(r)
	}
	if who.UserID == "" {
		Error(w, http.StatusBadRequest, "userId is required")
		return
	}
	if who.UserName == "" {
		who.UserName = who.UserID
	}

	err := h.withRoom(r, func(rm *room.Actor) error {
		return rm.Submit(r.Context(), who, answer)
	})
	if err != nil {
		h.roomError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) (room.Snapshot, bool) {
	var snap room.Snapshot
	err := h.withRoom(r, func(rm *room.Actor) error {
		var err error
		snap, err = rm.Snapshot(r.Context())
		return err
	})
	if err != nil {
		h.roomError(w, r, err)
		return room.Snapshot{}, false
	}
	return snap, true
}

// withRoom runs fn against the room named in the path. A handle evicted
// between resolve and use is resolved again once.
func (h *Handler) withRoom(r *http.Request, fn func(*room.Actor) error) error {
	roomID := chi.URLParam(r, "roomId")
	var err error
	for range 2 {
		var rm *room.Actor
		rm, err = h.rooms.Room(roomID)
		if err != nil {
			return err
		}
		if err = fn(rm); !errors.Is(err, actor.ErrStopped) {
			return err
		}
	}
	return err
}

func (h *Handler) roomError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, directory.ErrInvalidRoomID):
		Error(w, http.StatusBadRequest, "invalid room id")
	case errors.Is(err, directory.ErrClosed), errors.Is(err, actor.ErrStopped):
		Error(w, http.StatusServiceUnavailable, "room unavailable")
	case errors.Is(err, r.Context().Err()):
		Error(w, http.StatusServiceUnavailable, "request cancelled")
	default:
		h.logger.Error("Room operation failed", "room_id", chi.URLParam(r, "roomId"), "error", err)
		Error(w, http.StatusInternalServerError, "room operation failed")
	}
}

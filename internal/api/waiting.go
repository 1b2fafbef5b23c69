package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// WaitingStatus reports how many participants are queued for pairing.
func (h *Handler) WaitingStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.rooms.Matchmaker().Status(r.Context())
	if err != nil {
		h.logger.Error("Failed to read waiting room status", "error", err)
		Error(w, http.StatusServiceUnavailable, "waiting room unavailable")
		return
	}
	JSON(w, http.StatusOK, st)
}

// Pair returns the audit record of the pair that created a room.
func (h *Handler) Pair(w http.ResponseWriter, r *http.Request) {
	if h.pairs == nil {
		Error(w, http.StatusNotFound, "pair not found")
		return
	}
	rec, err := h.pairs.GetPairRecord(r.Context(), chi.URLParam(r, "roomId"))
	if err != nil {
		h.logger.Error("Failed to read pair record", "room_id", chi.URLParam(r, "roomId"), "error", err)
		Error(w, http.StatusInternalServerError, "failed to read pair record")
		return
	}
	if rec == nil {
		Error(w, http.StatusNotFound, "pair not found")
		return
	}
	JSON(w, http.StatusOK, rec)
}

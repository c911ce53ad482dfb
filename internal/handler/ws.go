package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/heirloom/internal/access"
	"github.com/dukerupert/heirloom/internal/auth"
	"github.com/dukerupert/heirloom/internal/websocket"
)

type WSHandler struct {
	base
	originPatterns []string
}

func NewWSHandler(originPatterns []string, gate *access.Gate, hub *websocket.Hub, logger *slog.Logger) *WSHandler {
	return &WSHandler{base: base{gate: gate, hub: hub, logger: logger}, originPatterns: originPatterns}
}

// Serve upgrades to a websocket that receives the live updates of the
// family given by the family_id query parameter.
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	familyID, err := strconv.ParseInt(r.URL.Query().Get("family_id"), 10, 64)
	if err != nil || familyID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid family_id")
		return
	}
	if !h.authorize(w, r, familyID, access.View) {
		return
	}
	h.hub.Serve(w, r, familyID, auth.UserID(r.Context()), h.originPatterns)
}

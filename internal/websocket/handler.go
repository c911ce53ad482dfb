package websocket

import (
	"net/http"

	ws "github.com/coder/websocket"
)

// Serve upgrades the request to a WebSocket and runs it as a client of
// familyID until the connection closes. The caller has already checked that
// userID may view the family.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, familyID, userID int64, originPatterns []string) {
	conn, err := ws.Accept(w, r, &ws.AcceptOptions{
		OriginPatterns: originPatterns,
	})
	if err != nil {
		h.logger.Warn("accept failed", "family_id", familyID, "error", err)
		return
	}

	h.logger.Debug("client connected", "family_id", familyID, "user_id", userID)
	client := NewClient(h, conn, familyID, userID)
	client.Run(r.Context())
	h.logger.Debug("client disconnected", "family_id", familyID, "user_id", userID)
}

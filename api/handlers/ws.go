package handlers

import (
	"net/http"
	"time"
)

const maxClientMessage = 512

// handleWebSocket registers the connection with the hub, which sends the
// current stations payload, and then only reads so that client closes are noticed
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	sub, err := h.hub.Subscribe(conn, h.client.Snapshot())
	if err != nil {
		h.logger.Error("subscribe websocket client", "error", err)
		_ = conn.Close()
		return
	}
	defer h.hub.Unsubscribe(sub)

	// The server read timeout would otherwise still apply to the hijacked connection
	_ = conn.SetReadDeadline(time.Time{})
	conn.SetReadLimit(maxClientMessage)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

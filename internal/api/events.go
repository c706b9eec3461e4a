package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// eventsHandler upgrades the request to a WebSocket and streams agent events
// as JSON text frames until the client disconnects.
func eventsHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			slog.Debug("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
			return
		}

		id, ch := svc.SubscribeEvents()
		slog.Debug("event subscriber connected", "subscriber_id", id, "remote", r.RemoteAddr)

		go func() {
			defer func() {
				svc.UnsubscribeEvents(id)
				_ = conn.Close()
				slog.Debug("event subscriber disconnected", "subscriber_id", id)
			}()

			// Drain client frames so close and ping frames get handled.
			done := make(chan struct{})
			go func() {
				defer close(done)
				for {
					if _, err := wsutil.ReadClientText(conn); err != nil {
						return
					}
				}
			}()

			for {
				select {
				case <-done:
					return
				case evt, ok := <-ch:
					if !ok {
						return
					}
					payload, err := json.Marshal(evt)
					if err != nil {
						slog.Debug("event marshal failed", "error", err)
						continue
					}
					if err := wsutil.WriteServerText(conn, payload); err != nil {
						return
					}
				}
			}
		}()
	}
}

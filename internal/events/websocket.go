package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

// writeTimeout bounds a single frame write to a slow client.
const writeTimeout = 5 * time.Second

// Handler streams every event published on h as a JSON text frame over a
// WebSocket. The connection closes when the client goes away or the request
// context ends.
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			slog.Debug("events: websocket accept failed", "err", err)
			return
		}
		defer conn.CloseNow()

		// The feed is one-way; CloseRead handles control frames and cancels
		// ctx when the peer closes.
		ctx := conn.CloseRead(r.Context())
		ch, cancel := h.Subscribe(128)
		defer cancel()

		slog.Debug("events: subscriber connected", "remote", r.RemoteAddr)
		for {
			select {
			case <-ctx.Done():
				conn.Close(websocket.StatusNormalClosure, "")
				return
			case e, ok := <-ch:
				if !ok {
					return
				}
				data, err := json.Marshal(e)
				if err != nil {
					slog.Warn("events: marshal failed", "kind", e.Kind, "err", err)
					continue
				}
				wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
				err = conn.Write(wctx, websocket.MessageText, data)
				wcancel()
				if err != nil {
					slog.Debug("events: subscriber gone", "remote", r.RemoteAddr, "err", err)
					return
				}
			}
		}
	})
}

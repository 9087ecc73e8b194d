// Package server exposes HTTP handlers: the SockJS streams endpoint, health
// and status checks, and static files.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	rice "github.com/GeertJohan/go.rice"
	"github.com/gorilla/websocket"
	"github.com/igm/sockjs-go/v3/sockjs"
)

// NewStreamsHandler returns the SockJS handler mounted at the hub's streams
// prefix. All SockJS transports are enabled, plus the raw websocket endpoint
// at <prefix>/websocket. No JSESSIONID cookie is set.
func NewStreamsHandler(h *Hub) http.Handler {
	cfg := h.Config()
	policy := newOriginPolicy(cfg.AllowedOrigins)

	opts := sockjs.DefaultOptions
	opts.JSessionID = nil
	opts.RawWebsocket = true
	opts.HeartbeatDelay = cfg.HeartbeatDelay
	opts.DisconnectDelay = cfg.DisconnectDelay
	opts.WebsocketUpgrader = &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     policy.checkOrigin,
	}

	return sockjs.NewHandler(cfg.StreamsPrefix, opts, func(sess sockjs.Session) {
		h.ServeSession(sess, sess.Request().RemoteAddr)
	})
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "streams server is running!")
}

// StatusHandler serves the hub's ServerStatus as indented JSON.
func StatusHandler(h *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(h.Status()); err != nil {
			logger().Error("error writing status response", "error", err)
		}
	}
}

// StaticHandler serves files from the rice box named dir, looked up relative
// to the working directory first and then in a box appended to the binary.
// When no box can be found every request gets a 404.
func StaticHandler(dir string) http.Handler {
	conf := rice.Config{
		LocateOrder: []rice.LocateMethod{rice.LocateWorkingDirectory, rice.LocateAppended},
	}
	box, err := conf.FindBox(dir)
	if err != nil {
		logger().Warn("static root not found; static files disabled", "dir", dir, "error", err)
		return http.NotFoundHandler()
	}
	return http.FileServer(box.HTTPBox())
}

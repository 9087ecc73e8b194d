// Package server wires HTTP handlers into a gorilla/mux router for the
// streams application.
package server

import (
	"net/http"

	"github.com/gorilla/mux"
)

// SetupRoutes configures and returns a router with all application routes:
// health, status and metrics endpoints, the SockJS streams endpoint, and
// static files for every other path.
func SetupRoutes(h *Hub) *mux.Router {
	cfg := h.Config()

	r := mux.NewRouter()
	r.HandleFunc("/health", HealthHandler).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/status", StatusHandler(h)).Methods(http.MethodGet)
	r.Handle("/metrics", h.Metrics().Handler()).Methods(http.MethodGet)
	r.PathPrefix(cfg.StreamsPrefix).Handler(NewStreamsHandler(h))
	r.PathPrefix("/").Handler(StaticHandler(cfg.StaticDir)).Methods(http.MethodGet, http.MethodHead)
	return r
}

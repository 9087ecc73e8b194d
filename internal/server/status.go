package server

import (
	"fmt"
	"os"
	"time"
)

// ServerStatus is a snapshot of metadata describing the status of a Hub.
//
// It is serialized to JSON by the /status endpoint.
type ServerStatus struct {
	Node        string `json:"node"`
	Status      string `json:"status"`
	Reported    int64  `json:"reported_at"`
	StartupTime int64  `json:"startup_time"`
	Ticks       uint64 `json:"msgs_broadcast"`
	Deliveries  uint64 `json:"deliveries"`
	Sessions    int    `json:"sessions"`
	Registered  int    `json:"registered_connections"`
	Timer       string `json:"timer_state"`
}

// Status returns a snapshot of status metadata for the Hub.
func (h *Hub) Status() ServerStatus {
	return ServerStatus{
		Node:        fmt.Sprintf("%s-%s-%s", platform(), env(), nodeName()),
		Status:      "OK",
		Reported:    time.Now().Unix(),
		StartupTime: h.startupTime.Unix(),
		Ticks:       h.ticks.Load(),
		Deliveries:  h.deliveries.Load(),
		Sessions:    h.SessionCount(),
		Registered:  h.registry.Len(),
		Timer:       h.TimerState().String(),
	}
}

func platform() string {
	return "go"
}

// nodeName prefers a Heroku style $DYNO name and falls back to the hostname.
func nodeName() string {
	if dyno := os.Getenv("DYNO"); dyno != "" {
		return dyno
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "unknown.X"
}

// A string representing the environment (dev/staging/prod), for reporting.
func env() string {
	if env := os.Getenv("GO_ENV"); env != "" {
		return env
	}
	return "development"
}

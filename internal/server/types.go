// Package server defines the session abstraction and shared helpers that
// are reused across the hub and the HTTP handlers.
package server

import (
	"errors"
	"io"
	"strings"

	"github.com/igm/sockjs-go/v3/sockjs"
)

// Session is the subset of a SockJS session the hub needs. sockjs.Session
// satisfies it.
type Session interface {
	Recv() (string, error)
	Send(msg string) error
	Close(status uint32, reason string) error
}

// SockJS close frame used when the server goes away.
const (
	closeGoingAway       = 3000
	closeGoingAwayReason = "Go away!"
)

// TimerState is the state of the broadcast timer.
type TimerState int32

const (
	TimerScheduled TimerState = iota
	TimerFiring
	TimerStopped
)

func (s TimerState) String() string {
	switch s {
	case TimerScheduled:
		return "scheduled"
	case TimerFiring:
		return "firing"
	case TimerStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, sockjs.ErrSessionNotOpen) || errors.Is(err, io.EOF) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}

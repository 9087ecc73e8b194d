package server

import (
	"time"
)

// connection is one SockJS session as seen by the hub. Its id is the
// identifier used in the broadcast registry.
type connection struct {
	id      string
	session Session
	addr    string
	created time.Time
	limiter *rateLimiter
}

func newConnection(id string, session Session, addr string, limiter *rateLimiter) *connection {
	return &connection{
		id:      id,
		session: session,
		addr:    addr,
		created: time.Now(),
		limiter: limiter,
	}
}

// Send implements registry.Sender. SockJS queues the frame, so this does
// not block on the network.
func (c *connection) Send(msg string) error {
	return c.session.Send(msg)
}

func (c *connection) close() {
	if err := c.session.Close(closeGoingAway, closeGoingAwayReason); err != nil && !isExpectedCloseError(err) {
		logger().Warn("error closing session", "connectionId", c.id, "addr", c.addr, "error", err)
	}
}

// Package server coordinates connection registration, echo, and the periodic
// timestamp fanout for the streams endpoint via the Hub type.
package server

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/azer/debug"
	"github.com/google/uuid"

	"github.com/Tyrowin/gostreams/internal/registry"
)

// ErrHubStopped is returned when a session arrives after Shutdown.
var ErrHubStopped = errors.New("server: hub stopped")

// Hub owns the broadcast registry, tracks every open session, and runs the
// broadcast timer. Session handlers mutate the registry directly; the
// registry does its own locking.
type Hub struct {
	cfg      Config
	registry *registry.Registry
	metrics  *Metrics

	sessions map[*connection]struct{}
	mutex    sync.Mutex
	wg       sync.WaitGroup

	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	running atomic.Bool

	state       atomic.Int32
	startupTime time.Time
	ticks       atomic.Uint64
	deliveries  atomic.Uint64
	newID       func() string
}

// NewHub creates a Hub around reg using cfg. The returned Hub accepts
// sessions immediately; call Run to start the broadcast timer.
func NewHub(reg *registry.Registry, cfg Config) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		cfg:         cfg.Sanitize(),
		registry:    reg,
		metrics:     newMetrics(),
		sessions:    make(map[*connection]struct{}),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
		startupTime: time.Now(),
		newID:       uuid.NewString,
	}
}

// Config returns the sanitized configuration the hub runs with.
func (h *Hub) Config() Config {
	return h.cfg
}

// Registry returns the broadcast registry.
func (h *Hub) Registry() *registry.Registry {
	return h.registry
}

// Metrics returns the hub's Prometheus collectors.
func (h *Hub) Metrics() *Metrics {
	return h.metrics
}

// TimerState reports what the broadcast timer is doing right now.
func (h *Hub) TimerState() TimerState {
	return TimerState(h.state.Load())
}

// Run drives the broadcast timer until Shutdown is called. It should be
// called in its own goroutine.
func (h *Hub) Run() {
	h.running.Store(true)
	defer close(h.done)

	ticker := time.NewTicker(h.cfg.BroadcastInterval)
	defer ticker.Stop()

	h.state.Store(int32(TimerScheduled))
	logger().Info("broadcast timer started", "interval", h.cfg.BroadcastInterval)

	for {
		select {
		case <-h.ctx.Done():
			h.state.Store(int32(TimerStopped))
			return
		case t := <-ticker.C:
			h.broadcastTick(t)
		}
	}
}

// broadcastTick delivers the timestamp of t to every connection in a
// snapshot of the registry. A failed delivery is logged and skipped.
func (h *Hub) broadcastTick(t time.Time) {
	h.state.Store(int32(TimerFiring))
	defer h.state.CompareAndSwap(int32(TimerFiring), int32(TimerScheduled))

	payload := strconv.FormatInt(t.UnixMilli(), 10)
	ids := h.registry.Snapshot()

	delivered := 0
	for _, id := range ids {
		if err := h.deliver(id, payload); err != nil {
			h.metrics.broadcastDeliveries.WithLabelValues("failed").Inc()
			debug.Debug(fmt.Sprintf("broadcast to %s failed: %v", id, err))
			continue
		}
		delivered++
		h.metrics.broadcastDeliveries.WithLabelValues("ok").Inc()
	}

	h.ticks.Add(1)
	h.deliveries.Add(uint64(delivered))
	h.metrics.broadcastTicks.Inc()

	if failed := len(ids) - delivered; failed > 0 {
		logger().Debug("broadcast pass finished with failures", "targets", len(ids), "failed", failed)
	}
}

// deliver sends one broadcast message. A panicking sender counts as a
// failed delivery and never takes the timer down.
func (h *Hub) deliver(id, payload string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recovered from panic in deliver: %v", r)
		}
	}()
	return h.registry.Send(id, payload)
}

// ServeSession runs the echo loop for one session until it ends. Every
// inbound message registers the connection for the broadcast and is written
// back unchanged to the same session.
func (h *Hub) ServeSession(sess Session, addr string) {
	c := newConnection(h.newID(), sess, addr, newRateLimiter(h.cfg.RateLimit))
	if err := h.track(c); err != nil {
		c.close()
		return
	}
	defer h.untrack(c)

	logger().Info("session opened", "connectionId", c.id, "addr", c.addr)

	if h.cfg.RegisterOnConnect {
		h.register(c)
	}

	for {
		msg, err := sess.Recv()
		if err != nil {
			if !isExpectedCloseError(err) {
				logger().Warn("session receive error", "connectionId", c.id, "error", err)
			}
			return
		}

		if !c.limiter.allow() {
			h.metrics.messagesThrottled.Inc()
			logger().Warn("rate limit exceeded; discarding message",
				"connectionId", c.id, "burst", h.cfg.RateLimit.Burst, "interval", h.cfg.RateLimit.RefillInterval)
			continue
		}

		debug.Debug(fmt.Sprintf("received %d bytes from %s", len(msg), c.id))
		h.register(c)

		if err := sess.Send(msg); err != nil {
			if !isExpectedCloseError(err) {
				logger().Warn("echo failed", "connectionId", c.id, "error", err)
			}
			continue
		}
		h.metrics.messagesEchoed.Inc()
	}
}

func (h *Hub) register(c *connection) {
	if h.registry.Register(c.id, c) {
		count := h.registry.Len()
		h.metrics.registeredConnections.Set(float64(count))
		logger().Info("connection registered", "connectionId", c.id, "registered", count)
	}
}

func (h *Hub) deregister(c *connection) {
	if h.registry.Deregister(c.id) {
		count := h.registry.Len()
		h.metrics.registeredConnections.Set(float64(count))
		logger().Info("connection deregistered", "connectionId", c.id, "registered", count)
	}
}

func (h *Hub) track(c *connection) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.ctx.Err() != nil {
		return ErrHubStopped
	}
	h.sessions[c] = struct{}{}
	h.wg.Add(1)
	h.metrics.activeSessions.Set(float64(len(h.sessions)))
	return nil
}

func (h *Hub) untrack(c *connection) {
	h.deregister(c)

	h.mutex.Lock()
	delete(h.sessions, c)
	count := len(h.sessions)
	h.mutex.Unlock()

	h.metrics.activeSessions.Set(float64(count))
	logger().Info("session closed", "connectionId", c.id, "addr", c.addr, "sessions", count)
	h.wg.Done()
}

// SessionCount returns the number of open sessions, registered or not.
func (h *Hub) SessionCount() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.sessions)
}

// closeSessions closes every open session; their handlers then deregister.
func (h *Hub) closeSessions() {
	logger().Info("closing all sessions")

	h.mutex.Lock()
	conns := make([]*connection, 0, len(h.sessions))
	for c := range h.sessions {
		conns = append(conns, c)
	}
	h.mutex.Unlock()

	for _, c := range conns {
		c.close()
	}

	logger().Info("closed sessions", "count", len(conns))
}

// Shutdown stops the broadcast timer, closes all sessions and waits for
// their handlers to return, or until the timeout is reached. Calling it more
// than once is safe.
func (h *Hub) Shutdown(timeout time.Duration) error {
	logger().Info("initiating hub shutdown")

	h.mutex.Lock()
	h.cancel()
	h.mutex.Unlock()

	h.closeSessions()

	deadline := time.After(timeout)

	if h.running.Load() {
		select {
		case <-h.done:
		case <-deadline:
			logger().Warn("hub shutdown timeout reached waiting for timer")
			return context.DeadlineExceeded
		}
	} else {
		h.state.Store(int32(TimerStopped))
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger().Info("hub shutdown completed")
		return nil
	case <-deadline:
		logger().Warn("hub shutdown timeout reached, some sessions may still be running")
		return context.DeadlineExceeded
	}
}

package server

import (
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/igm/sockjs-go/v3/sockjs"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gostreams/internal/registry"
)

const waitTimeout = 2 * time.Second

// fakeSession is an in-memory Session. Messages pushed with deliver come out
// of Recv; everything written with Send is recorded and signalled on sentCh.
type fakeSession struct {
	inbox     chan string
	closed    chan struct{}
	closeOnce sync.Once
	sentCh    chan string

	mu      sync.Mutex
	sent    []string
	sendErr error
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		inbox:  make(chan string, 16),
		closed: make(chan struct{}),
		sentCh: make(chan string, 64),
	}
}

func (f *fakeSession) Recv() (string, error) {
	select {
	case msg := <-f.inbox:
		return msg, nil
	case <-f.closed:
		return "", sockjs.ErrSessionNotOpen
	}
}

func (f *fakeSession) Send(msg string) error {
	select {
	case <-f.closed:
		return sockjs.ErrSessionNotOpen
	default:
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, msg)
	f.sentCh <- msg
	return nil
}

func (f *fakeSession) Close(uint32, string) error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeSession) deliver(msg string) {
	f.inbox <- msg
}

func (f *fakeSession) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeSession) getSent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func (f *fakeSession) next(t *testing.T) string {
	t.Helper()
	select {
	case msg := <-f.sentCh:
		return msg
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for a message on the session")
		return ""
	}
}

func (f *fakeSession) expectNothing(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case msg := <-f.sentCh:
		t.Fatalf("expected no message, got %q", msg)
	case <-time.After(wait):
	}
}

// recordingSender is a registry.Sender used to drive the broadcast pass
// without sessions.
type recordingSender struct {
	mu       sync.Mutex
	received []string
	sendErr  error
	onSend   func()
	panics   bool
}

func (r *recordingSender) Send(msg string) error {
	if r.panics {
		panic("sender exploded")
	}
	if r.onSend != nil {
		r.onSend()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sendErr != nil {
		return r.sendErr
	}
	r.received = append(r.received, msg)
	return nil
}

func (r *recordingSender) getReceived() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.received...)
}

func newTestHub(t *testing.T, customize func(cfg *Config)) *Hub {
	t.Helper()
	cfg := NewConfig()
	cfg.BroadcastInterval = time.Hour
	if customize != nil {
		customize(cfg)
	}
	h := NewHub(registry.New(), *cfg)
	t.Cleanup(func() { _ = h.Shutdown(waitTimeout) })
	return h
}

// serve runs ServeSession for sess and returns a channel closed when it returns.
func serve(h *Hub, sess Session) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.ServeSession(sess, "127.0.0.1:12345")
	}()
	return done
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return "conn-" + strconv.Itoa(n)
	}
}

// TestHub_EchoIdentity verifies that every payload comes back unchanged and
// in order on the session that sent it.
func TestHub_EchoIdentity(t *testing.T) {
	h := newTestHub(t, nil)
	sess := newFakeSession()
	serve(h, sess)

	payloads := []string{
		"hello",
		"",
		`{"content":"json stays json"}`,
		"ünïcødé ✓",
		"100%s literal",
		strings.Repeat("x", 64*1024),
	}

	for _, p := range payloads {
		sess.deliver(p)
	}
	for _, p := range payloads {
		assert.Equal(t, p, sess.next(t))
	}

	assert.Equal(t, float64(len(payloads)), testutil.ToFloat64(h.metrics.messagesEchoed))
}

// TestHub_RegistersLazilyOnFirstMessage verifies that a session that has not
// sent anything is not part of the broadcast.
func TestHub_RegistersLazilyOnFirstMessage(t *testing.T) {
	h := newTestHub(t, nil)
	h.newID = sequentialIDs()

	sess := newFakeSession()
	serve(h, sess)

	require.Eventually(t, func() bool { return h.SessionCount() == 1 }, waitTimeout, 5*time.Millisecond)
	assert.Equal(t, 0, h.Registry().Len())

	h.broadcastTick(time.UnixMilli(1000))
	sess.expectNothing(t, 50*time.Millisecond)

	sess.deliver("hi")
	assert.Equal(t, "hi", sess.next(t))
	assert.True(t, h.Registry().Contains("conn-1"))

	sess.deliver("again")
	assert.Equal(t, "again", sess.next(t))
	assert.Equal(t, []string{"conn-1"}, h.Registry().Snapshot())

	h.broadcastTick(time.UnixMilli(2000))
	assert.Equal(t, "2000", sess.next(t))
}

func TestHub_RegisterOnConnect(t *testing.T) {
	h := newTestHub(t, func(cfg *Config) { cfg.RegisterOnConnect = true })
	sess := newFakeSession()
	serve(h, sess)

	require.Eventually(t, func() bool { return h.Registry().Len() == 1 }, waitTimeout, 5*time.Millisecond)

	h.broadcastTick(time.UnixMilli(42))
	assert.Equal(t, "42", sess.next(t))
}

// TestHub_DeregistersOnClose verifies that an ended session leaves the
// registry and receives no further broadcasts.
func TestHub_DeregistersOnClose(t *testing.T) {
	h := newTestHub(t, nil)
	h.newID = sequentialIDs()

	sess := newFakeSession()
	done := serve(h, sess)

	sess.deliver("hi")
	sess.next(t)
	require.True(t, h.Registry().Contains("conn-1"))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.registeredConnections))

	require.NoError(t, sess.Close(0, ""))
	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatal("ServeSession did not return after close")
	}

	assert.False(t, h.Registry().Contains("conn-1"))
	assert.Empty(t, h.Registry().Snapshot())
	assert.Equal(t, 0, h.SessionCount())
	assert.Equal(t, float64(0), testutil.ToFloat64(h.metrics.registeredConnections))

	h.broadcastTick(time.UnixMilli(5))
	assert.Equal(t, []string{"hi"}, sess.getSent())
}

// TestHub_BroadcastFanout verifies that three registered sessions each get
// exactly one identical timestamp per tick.
func TestHub_BroadcastFanout(t *testing.T) {
	h := newTestHub(t, nil)

	sessions := []*fakeSession{newFakeSession(), newFakeSession(), newFakeSession()}
	for i, sess := range sessions {
		serve(h, sess)
		msg := "register-" + strconv.Itoa(i)
		sess.deliver(msg)
		require.Equal(t, msg, sess.next(t))
	}
	require.Equal(t, 3, h.Registry().Len())

	tick := time.UnixMilli(1700000000123)
	h.broadcastTick(tick)

	for _, sess := range sessions {
		assert.Equal(t, "1700000000123", sess.next(t))
		sess.expectNothing(t, 20*time.Millisecond)
	}

	assert.Equal(t, float64(3), testutil.ToFloat64(h.metrics.broadcastDeliveries.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.broadcastTicks))
	assert.Equal(t, uint64(3), h.Status().Deliveries)
}

// TestHub_BroadcastPartialFailure verifies that failing or vanished
// connections do not stop delivery to the others.
func TestHub_BroadcastPartialFailure(t *testing.T) {
	tests := []struct {
		name  string
		setup func(reg *registry.Registry) (a, c *recordingSender)
	}{
		{
			name: "closed between snapshot and send",
			setup: func(reg *registry.Registry) (*recordingSender, *recordingSender) {
				c := &recordingSender{}
				a := &recordingSender{onSend: func() { reg.Deregister("b") }}
				reg.Register("a", a)
				reg.Register("b", &recordingSender{})
				reg.Register("c", c)
				return a, c
			},
		},
		{
			name: "send error",
			setup: func(reg *registry.Registry) (*recordingSender, *recordingSender) {
				a, c := &recordingSender{}, &recordingSender{}
				reg.Register("a", a)
				reg.Register("b", &recordingSender{sendErr: sockjs.ErrSessionNotOpen})
				reg.Register("c", c)
				return a, c
			},
		},
		{
			name: "sender panics",
			setup: func(reg *registry.Registry) (*recordingSender, *recordingSender) {
				a, c := &recordingSender{}, &recordingSender{}
				reg.Register("a", a)
				reg.Register("b", &recordingSender{panics: true})
				reg.Register("c", c)
				return a, c
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHub(t, nil)
			a, c := tt.setup(h.Registry())

			h.broadcastTick(time.UnixMilli(77))

			assert.Equal(t, []string{"77"}, a.getReceived())
			assert.Equal(t, []string{"77"}, c.getReceived())
			assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.broadcastDeliveries.WithLabelValues("failed")))
			assert.Equal(t, float64(2), testutil.ToFloat64(h.metrics.broadcastDeliveries.WithLabelValues("ok")))
			assert.Equal(t, TimerScheduled, h.TimerState())
		})
	}
}

func TestHub_RateLimitDiscardsExcessMessages(t *testing.T) {
	h := newTestHub(t, func(cfg *Config) {
		cfg.RateLimit = RateLimitConfig{Burst: 1, RefillInterval: time.Hour}
	})
	sess := newFakeSession()
	serve(h, sess)

	sess.deliver("first")
	sess.deliver("second")
	assert.Equal(t, "first", sess.next(t))

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(h.metrics.messagesThrottled) == 1
	}, waitTimeout, 5*time.Millisecond)
	sess.expectNothing(t, 20*time.Millisecond)
}

func TestHub_EchoFailureKeepsSession(t *testing.T) {
	h := newTestHub(t, nil)
	sess := newFakeSession()
	sess.sendErr = errors.New("write failed")
	done := serve(h, sess)

	sess.deliver("lost")
	require.Eventually(t, func() bool { return h.Registry().Len() == 1 }, waitTimeout, 5*time.Millisecond)

	select {
	case <-done:
		t.Fatal("session ended after a failed echo")
	case <-time.After(20 * time.Millisecond):
	}
	assert.Equal(t, float64(0), testutil.ToFloat64(h.metrics.messagesEchoed))
}

// TestHub_RunBroadcastsPeriodically starts the timer with a short interval and
// checks that numeric millisecond timestamps arrive.
func TestHub_RunBroadcastsPeriodically(t *testing.T) {
	h := newTestHub(t, func(cfg *Config) { cfg.BroadcastInterval = 10 * time.Millisecond })
	sender := &recordingSender{}
	h.Registry().Register("listener", sender)

	before := time.Now().UnixMilli()
	go h.Run()

	require.Eventually(t, func() bool { return len(sender.getReceived()) >= 3 }, waitTimeout, 5*time.Millisecond)

	for _, msg := range sender.getReceived() {
		ms, err := strconv.ParseInt(msg, 10, 64)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, ms, before)
	}

	require.NoError(t, h.Shutdown(waitTimeout))
	assert.Equal(t, TimerStopped, h.TimerState())
	assert.GreaterOrEqual(t, h.Status().Ticks, uint64(3))
}

// TestHub_ShutdownClosesSessions verifies that Shutdown ends every session
// and rejects sessions arriving afterwards.
func TestHub_ShutdownClosesSessions(t *testing.T) {
	h := newTestHub(t, nil)
	go h.Run()

	sessions := []*fakeSession{newFakeSession(), newFakeSession()}
	var dones []<-chan struct{}
	for _, sess := range sessions {
		dones = append(dones, serve(h, sess))
	}
	sessions[0].deliver("registered")
	sessions[0].next(t)
	require.Eventually(t, func() bool { return h.SessionCount() == 2 }, waitTimeout, 5*time.Millisecond)

	require.NoError(t, h.Shutdown(waitTimeout))

	for i, done := range dones {
		select {
		case <-done:
		case <-time.After(waitTimeout):
			t.Fatalf("session %d still running after shutdown", i)
		}
		assert.True(t, sessions[i].isClosed())
	}
	assert.Equal(t, 0, h.Registry().Len())

	late := newFakeSession()
	<-serve(h, late)
	assert.True(t, late.isClosed())
	assert.Equal(t, 0, h.SessionCount())

	// calling Shutdown again is safe
	assert.NoError(t, h.Shutdown(waitTimeout))
}

func TestHub_ShutdownWithoutRun(t *testing.T) {
	h := NewHub(registry.New(), *NewConfig())
	assert.NoError(t, h.Shutdown(100*time.Millisecond))
	assert.Equal(t, TimerStopped, h.TimerState())
}

func TestTimerState_String(t *testing.T) {
	assert.Equal(t, "scheduled", TimerScheduled.String())
	assert.Equal(t, "firing", TimerFiring.String())
	assert.Equal(t, "stopped", TimerStopped.String())
	assert.Equal(t, "unknown", TimerState(99).String())
}

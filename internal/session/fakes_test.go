package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"joydance-bridge/internal/controller"
	"joydance-bridge/internal/pairing"
	"joydance-bridge/internal/protocol"
)

type fakeController struct {
	mu sync.Mutex

	serial  string
	events  []controller.ButtonEvent
	stick   controller.Stick
	accelX  float64
	rumble  bool
	calls   []string
	closes  int
	reconns int
	polls   int
	reads   int

	// accelsPerRead samples are produced on every Accels call.
	accelsPerRead int
	reconnectErr  error
	connected     bool
}

func newFakeController() *fakeController {
	return &fakeController{serial: "98:b6:e9:00:00:01", rumble: true, connected: true}
}

func (f *fakeController) Serial() string { return f.serial }
func (f *fakeController) IsLeft() bool   { return false }

func (f *fakeController) Events() ([]controller.ButtonEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	ev := f.events
	f.events = nil
	return ev, nil
}

// press queues a press of each button for the next poll.
func (f *fakeController) press(buttons ...controller.Button) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range buttons {
		f.events = append(f.events, controller.ButtonEvent{Button: b, Pressed: true})
	}
}

func (f *fakeController) setStick(st controller.Stick) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stick = st
}

func (f *fakeController) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

func (f *fakeController) readCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

func (f *fakeController) Stick() controller.Stick {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stick
}

func (f *fakeController) Accels() ([]controller.AccelSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	out := make([]controller.AccelSample, f.accelsPerRead)
	for i := range out {
		f.accelX++
		out[i] = controller.AccelSample{f.accelX, 0, 1}
	}
	return out, nil
}

func (f *fakeController) Rumble(freq, amp float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "rumble")
	return nil
}

func (f *fakeController) StopRumble() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "stop")
	return nil
}

func (f *fakeController) RumbleEnabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rumble
}

func (f *fakeController) SetRumbleEnabled(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rumble = enabled
}

func (f *fakeController) Reconnect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconns++
	if f.reconnectErr != nil {
		return f.reconnectErr
	}
	f.connected = true
	return nil
}

func (f *fakeController) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeController) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	f.connected = false
	return nil
}

func (f *fakeController) rumbleCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// blockingPairer never finishes pairing on its own.
type blockingPairer struct {
	mu    sync.Mutex
	calls int
}

func (p *blockingPairer) Pair(ctx context.Context, _ pairing.Request, onState func(pairing.State)) (*pairing.Result, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	onState(pairing.StateGettingToken)
	<-ctx.Done()
	return nil, ctx.Err()
}

func (p *blockingPairer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type staticPairer struct{ url string }

func (p staticPairer) Pair(_ context.Context, _ pairing.Request, onState func(pairing.State)) (*pairing.Result, error) {
	onState(pairing.StateConnecting)
	return &pairing.Result{URL: p.url}, nil
}

var errFakeClosed = errors.New("fake conn closed")

// fakeConn records outbound frames and serves queued inbound ones.
type fakeConn struct {
	mu     sync.Mutex
	sent   [][]byte
	in     chan []byte
	closed chan struct{}
	once   sync.Once

	// writeLimit > 0 fails every write after that many.
	writeLimit int
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *fakeConn) ReadText() ([]byte, error) {
	select {
	case b := <-c.in:
		return b, nil
	case <-c.closed:
		return nil, errFakeClosed
	}
}

func (c *fakeConn) WriteText(b []byte) error {
	select {
	case <-c.closed:
		return errFakeClosed
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeLimit > 0 && len(c.sent) >= c.writeLimit {
		return errFakeClosed
	}
	c.sent = append(c.sent, append([]byte(nil), b...))
	return nil
}

func (c *fakeConn) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func (c *fakeConn) waitSent(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for c.sentCount() < n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d frames, got %d", n, c.sentCount())
		}
		time.Sleep(time.Millisecond)
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) messages(t *testing.T) []protocol.Message {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.Message, 0, len(c.sent))
	for _, b := range c.sent {
		m, err := protocol.Decode(b)
		if err != nil {
			t.Fatalf("decode sent frame %s: %v", b, err)
		}
		out = append(out, m)
	}
	return out
}

// recorder collects the updates a session publishes.
type recorder struct {
	mu      sync.Mutex
	updates []Update
}

func (r *recorder) record(_ string, u Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *recorder) states() []pairing.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []pairing.State
	for _, u := range r.updates {
		if st, ok := u["state"].(int); ok {
			out = append(out, pairing.State(st))
		}
	}
	return out
}

func (r *recorder) waitState(t *testing.T, want pairing.State) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		for _, st := range r.states() {
			if st == want {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state %s never reached, saw %v", want, r.states())
}

func newTestSupervisor(t *testing.T, ctrl controller.Controller, pairer Pairer, rec *recorder) *Supervisor {
	t.Helper()
	return newSupervisorWith(t, ctrl, pairer, rec, protocol.V2, 2*time.Millisecond)
}

func newSupervisorWith(t *testing.T, ctrl controller.Controller, pairer Pairer, rec *recorder, v protocol.Version, frame time.Duration) *Supervisor {
	t.Helper()
	s := New(Options{
		Controller:     ctrl,
		Version:        v,
		PairingCode:    "123456",
		Pairer:         pairer,
		FrameDuration:  frame,
		Backoff:        Backoff{Initial: time.Hour, Max: time.Hour},
		OnStateChanged: rec.record,
	})
	t.Cleanup(func() {
		s.Stop()
		s.Wait()
	})
	return s
}

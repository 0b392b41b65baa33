// Package session runs one controller's pairing session: it pairs with the
// console, holds the transport, runs the receive, accelerometer and input
// loops, and reconnects the controller with backoff after a disconnect.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"joydance-bridge/internal/controller"
	"joydance-bridge/internal/metrics"
	"joydance-bridge/internal/pairing"
	"joydance-bridge/internal/protocol"
	"joydance-bridge/internal/transport"
)

const (
	DefaultFrameDuration = 15 * time.Millisecond
	DefaultAccelFreqHz   = 200
	DefaultAccelMaxRange = 8

	accelWarmupFrames   = 3
	maxAccelBatch       = 10
	inputCooldownFrames = 10
)

// Update is a partial controller info update keyed by UI field name.
type Update map[string]any

type Pairer interface {
	Pair(ctx context.Context, req pairing.Request, onState func(pairing.State)) (*pairing.Result, error)
}

// Conn is the console transport as the session uses it.
type Conn interface {
	ReadText() ([]byte, error)
	WriteText(b []byte) error
	Close() error
}

type DialFunc func(ctx context.Context, opts transport.Options) (Conn, error)

// DialTransport is the production DialFunc.
func DialTransport(ctx context.Context, opts transport.Options) (Conn, error) {
	s, err := transport.Dial(ctx, opts)
	if err != nil {
		return nil, err
	}
	return s, nil
}

type Options struct {
	Controller  controller.Controller
	Version     protocol.Version
	PairingCode string
	HostIP      string
	ConsoleIP   string

	Pairer Pairer
	Dial   DialFunc

	AccelFreqHz    float64
	AccelLatencyMS float64
	AccelMaxRange  float64
	FrameDuration  time.Duration
	PingEvery      time.Duration
	Backoff        Backoff

	OnStateChanged func(serial string, u Update)
	OnGameMessage  func(serial string, m protocol.Message)
	Logger         *slog.Logger
}

type Supervisor struct {
	opts   Options
	ctrl   controller.Controller
	serial string
	pre    protocol.Preprocessor
	log    *slog.Logger

	rumbleQ chan int
	wg      sync.WaitGroup

	mu              sync.Mutex
	ctx             context.Context
	cancel          context.CancelFunc
	attemptCancel   context.CancelFunc
	conn            Conn
	state           pairing.State
	ui              protocol.UIState
	streaming       bool
	accelSent       int
	disconnected    bool
	shouldReconnect bool
	reconnecting    bool
	reconnects      int
}

func New(opts Options) *Supervisor {
	if opts.FrameDuration <= 0 {
		opts.FrameDuration = DefaultFrameDuration
	}
	if opts.AccelFreqHz <= 0 {
		opts.AccelFreqHz = DefaultAccelFreqHz
	}
	if opts.AccelMaxRange <= 0 {
		opts.AccelMaxRange = DefaultAccelMaxRange
	}
	if opts.Backoff.Initial <= 0 {
		opts.Backoff = DefaultBackoff()
	}
	if opts.Dial == nil {
		opts.Dial = DialTransport
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	serial := opts.Controller.Serial()
	return &Supervisor{
		opts:            opts,
		ctrl:            opts.Controller,
		serial:          serial,
		pre:             protocol.NewPreprocessor(opts.Version),
		log:             log.With("serial", serial, "protocol", opts.Version.String()),
		rumbleQ:         make(chan int, 8),
		state:           pairing.StateIdle,
		shouldReconnect: true,
	}
}

func (s *Supervisor) Serial() string { return s.serial }

func (s *Supervisor) State() pairing.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start begins pairing in the background. It is a no-op when already
// started.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	if s.ctx != nil {
		s.mu.Unlock()
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	runCtx := s.ctx
	s.mu.Unlock()

	s.wg.Add(2)
	go s.rumbleWorker(runCtx)
	go s.run(runCtx)
}

// Stop disconnects and disables reconnection. The session cannot be
// restarted afterwards.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	s.shouldReconnect = false
	cancel := s.cancel
	s.mu.Unlock()

	s.disconnect()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until every goroutine of the session has exited.
func (s *Supervisor) Wait() { s.wg.Wait() }

func (s *Supervisor) setState(st pairing.State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	metrics.StateTransitions.WithLabelValues(st.String()).Inc()
	if st.IsError() {
		s.log.Warn("pairing state", "state", st.String())
	} else {
		s.log.Info("pairing state", "state", st.String())
	}
	s.notify(Update{"state": int(st)})
}

func (s *Supervisor) notify(u Update) {
	if s.opts.OnStateChanged != nil {
		s.opts.OnStateChanged(s.serial, u)
	}
}

// SetRumbleEnabled toggles vibration and gives a short buzz when enabling.
func (s *Supervisor) SetRumbleEnabled(enabled bool) {
	s.ctrl.SetRumbleEnabled(enabled)
	s.notify(Update{"rumble_enabled": enabled})
	if enabled {
		s.queueRumble(0)
	}
}

// SendSearchText submits text to the console's search keyboard. It does
// nothing unless the keyboard is open; a failed send disconnects.
func (s *Supervisor) SendSearchText(text string) bool {
	s.mu.Lock()
	open, conn := s.ui.SearchOpen, s.conn
	s.mu.Unlock()
	if !open || conn == nil {
		return false
	}
	if err := s.send(conn, protocol.ClassSubmitKeyboardCmd, protocol.SubmitKeyboard(text)); err != nil {
		s.log.Warn("search text not sent", "error", err)
		s.disconnect()
		return false
	}
	return true
}

// consoleError marks the console side of the transport going away.
type consoleError struct{ err error }

func (e *consoleError) Error() string { return "console connection: " + e.err.Error() }
func (e *consoleError) Unwrap() error { return e.err }

// deviceError marks a controller read failure.
type deviceError struct{ err error }

func (e *deviceError) Error() string { return "controller: " + e.err.Error() }
func (e *deviceError) Unwrap() error { return e.err }

func (s *Supervisor) run(ctx context.Context) {
	defer s.wg.Done()

	log := s.log.With("attempt", uuid.NewString())
	actx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.attemptCancel = cancel
	s.mu.Unlock()

	err := s.attempt(actx, log)
	if actx.Err() != nil {
		// Stopped or already disconnected by someone else.
		return
	}
	if err != nil {
		log.Error("session ended", "error", err)
	}
	s.disconnect()
}

func (s *Supervisor) attempt(ctx context.Context, log *slog.Logger) error {
	res, err := s.opts.Pairer.Pair(ctx, pairing.Request{
		Version:     s.opts.Version,
		PairingCode: s.opts.PairingCode,
		HostIP:      s.opts.HostIP,
		ConsoleIP:   s.opts.ConsoleIP,
	}, s.setState)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		var se *pairing.StepError
		if errors.As(err, &se) {
			s.setState(se.State)
		} else {
			s.setState(pairing.StateErrorConnection)
		}
		return fmt.Errorf("pair: %w", err)
	}

	conn, err := s.opts.Dial(ctx, transport.Options{
		URL:         res.URL,
		Subprotocol: s.opts.Version.Subprotocol(),
		Conn:        res.Conn,
		Certificate: res.Certificate,
		PingEvery:   s.opts.PingEvery,
		Logger:      log,
	})
	if err != nil {
		if ctx.Err() == nil {
			s.setState(pairing.StateErrorConsoleConnection)
		}
		return fmt.Errorf("dial console: %w", err)
	}

	s.mu.Lock()
	if s.disconnected {
		s.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	s.conn = conn
	s.mu.Unlock()
	log.Info("console transport up", "url", res.URL)

	err = s.serve(ctx, conn, log)
	var ce *consoleError
	if errors.As(err, &ce) && ctx.Err() == nil {
		s.setState(pairing.StateErrorConsoleConnection)
	}
	return err
}

// serve runs the three session loops until one fails or ctx ends.
func (s *Supervisor) serve(ctx context.Context, conn Conn, log *slog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	// Unblocks the pending read once any loop gives up.
	stop := context.AfterFunc(gctx, func() { _ = conn.Close() })
	defer stop()

	g.Go(func() error { return s.receiveLoop(gctx, conn, log) })
	g.Go(func() error { return s.tickLoop(gctx, conn) })
	g.Go(func() error { return s.inputLoop(gctx, conn, log) })
	return g.Wait()
}

// disconnect tears the session down and schedules one reconnection unless
// reconnection was disabled. Repeated calls are no-ops until the controller
// has reconnected.
func (s *Supervisor) disconnect() {
	s.mu.Lock()
	if s.disconnected {
		s.mu.Unlock()
		return
	}
	s.disconnected = true
	s.streaming = false
	conn := s.conn
	s.conn = nil
	cancel := s.attemptCancel
	s.attemptCancel = nil
	runCtx := s.ctx
	schedule := s.shouldReconnect && !s.reconnecting && runCtx != nil && runCtx.Err() == nil
	if schedule {
		s.reconnecting = true
		s.reconnects++
		s.wg.Add(1)
	}
	s.mu.Unlock()

	s.setState(pairing.StateDisconnected)
	if cancel != nil {
		cancel()
	}
	if err := s.ctrl.Close(); err != nil {
		s.log.Debug("controller close", "error", err)
	}
	if conn != nil {
		_ = conn.Close()
	}
	if schedule {
		go s.reconnectLoop(runCtx)
	}
}

func (s *Supervisor) wantsReconnect() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shouldReconnect
}

func (s *Supervisor) reconnectLoop(ctx context.Context) {
	defer s.wg.Done()
	giveUp := func() {
		s.mu.Lock()
		s.reconnecting = false
		s.mu.Unlock()
	}

	b := s.opts.Backoff
	b.Reset()
	for {
		if ctx.Err() != nil || !s.wantsReconnect() {
			giveUp()
			return
		}
		metrics.ReconnectAttempts.Inc()
		err := s.ctrl.Reconnect(ctx)
		if err == nil && s.ctrl.IsConnected() {
			s.mu.Lock()
			s.disconnected = false
			s.reconnecting = false
			s.ui = protocol.UIState{}
			s.wg.Add(1)
			s.mu.Unlock()

			s.log.Info("controller reconnected")
			s.setState(pairing.StateIdle)
			go s.run(ctx)
			return
		}

		d := b.Next()
		s.log.Debug("controller reconnect failed", "error", err, "retry_in", d)
		if sleepCtx(ctx, d) != nil {
			giveUp()
			return
		}
	}
}

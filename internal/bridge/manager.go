// Package bridge owns the controller lifecycle for the host application:
// discovery, connect and disconnect requests from the UI, and fan-out of
// session updates to UI subscribers.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"joydance-bridge/internal/config"
	"joydance-bridge/internal/controller"
	"joydance-bridge/internal/metrics"
	"joydance-bridge/internal/pairing"
	"joydance-bridge/internal/protocol"
	"joydance-bridge/internal/registry"
	"joydance-bridge/internal/session"
)

var (
	ErrUnknownController = errors.New("unknown controller")
	ErrNotConnected      = errors.New("controller is not connected")
)

type EventKind int

const (
	EventControllerUpdated EventKind = iota
	EventShowSearch
	EventHideSearch
)

// Event is pushed to every subscriber. Info is only set for
// EventControllerUpdated.
type Event struct {
	Kind   EventKind
	Serial string
	Info   registry.Info
}

// SessionConfig is applied to every session the manager starts.
type SessionConfig struct {
	FrameDuration  time.Duration
	AccelFreqHz    float64
	AccelLatencyMS float64
	AccelMaxRange  float64
	PingEvery      time.Duration
}

type Options struct {
	Devices  controller.Devices
	Store    *config.Store
	Pairer   session.Pairer
	Registry *registry.Registry
	Session  SessionConfig
	// Dial overrides the console transport; nil uses the real one.
	Dial   session.DialFunc
	Logger *slog.Logger
}

type Manager struct {
	opts Options
	reg  *registry.Registry
	log  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	devices map[string]controller.DeviceInfo
	subs    map[int]func(Event)
	nextSub int
	closed  bool
}

func New(opts Options) *Manager {
	if opts.Registry == nil {
		opts.Registry = registry.New()
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		opts:    opts,
		reg:     opts.Registry,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		devices: map[string]controller.DeviceInfo{},
		subs:    map[int]func(Event){},
	}
}

func (m *Manager) Registry() *registry.Registry { return m.reg }

// Subscribe registers fn for every future event. fn must not block.
func (m *Manager) Subscribe(fn func(Event)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

func (m *Manager) emit(ev Event) {
	m.mu.Lock()
	fns := make([]func(Event), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// List discovers the attached controllers and returns their info, sorted by
// name then serial. Known controllers keep their current state.
func (m *Manager) List(ctx context.Context) ([]registry.Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	found, err := m.opts.Devices.Discover()
	if err != nil {
		return nil, fmt.Errorf("discover controllers: %w", err)
	}
	serials := make([]string, 0, len(found))
	m.mu.Lock()
	for _, d := range found {
		m.devices[d.Serial] = d
		serials = append(serials, d.Serial)
	}
	m.mu.Unlock()
	for _, d := range found {
		m.reg.Observe(d)
	}
	return m.reg.List(serials), nil
}

// Connect validates the settings, persists them and starts pairing the
// controller. Nothing touches the network when validation fails.
func (m *Manager) Connect(serial string, set config.Settings) error {
	if err := set.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	dev, ok := m.devices[serial]
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return errors.New("bridge is shutting down")
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownController, serial)
	}

	if m.opts.Store != nil {
		if err := m.opts.Store.Save(set); err != nil {
			m.log.Warn("pairing settings not saved", "error", err)
		}
	}

	consoleIP, code := set.ConsoleIP, ""
	if set.Method.UsesPairingCode() {
		consoleIP, code = "", set.PairingCode
	}
	m.update(serial, session.Update{"pairing_code": code})

	if prev, ok := m.reg.Session(serial); ok {
		m.log.Info("replacing running session", "serial", serial)
		m.stopSession(prev)
	}

	ctrl, err := m.opts.Devices.Open(dev)
	if err != nil {
		m.update(serial, session.Update{"state": int(pairing.StateErrorJoycon)})
		return fmt.Errorf("open controller %s: %w", serial, err)
	}

	sc := m.opts.Session
	sup := session.New(session.Options{
		Controller:     ctrl,
		Version:        set.Method.ProtocolVersion(),
		PairingCode:    code,
		HostIP:         set.HostIP,
		ConsoleIP:      consoleIP,
		Pairer:         m.opts.Pairer,
		Dial:           m.opts.Dial,
		AccelFreqHz:    sc.AccelFreqHz,
		AccelLatencyMS: sc.AccelLatencyMS,
		AccelMaxRange:  sc.AccelMaxRange,
		FrameDuration:  sc.FrameDuration,
		PingEvery:      sc.PingEvery,
		OnStateChanged: m.update,
		OnGameMessage:  m.gameMessage,
		Logger:         m.log,
	})
	m.reg.SetSession(sup)
	metrics.ActiveSessions.Set(float64(m.reg.SessionCount()))
	m.update(serial, session.Update{"rumble_enabled": ctrl.RumbleEnabled()})

	m.log.Info("connecting controller", "serial", serial, "method", string(set.Method))
	sup.Start(m.ctx)
	return nil
}

// Disconnect stops the controller's session for good; it does not
// reconnect.
func (m *Manager) Disconnect(serial string) error {
	s, ok := m.reg.Session(serial)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotConnected, serial)
	}
	m.stopSession(s)
	return nil
}

func (m *Manager) stopSession(s registry.Session) {
	s.Stop()
	m.reg.RemoveSession(s)
	metrics.ActiveSessions.Set(float64(m.reg.SessionCount()))
}

func (m *Manager) SetRumbleEnabled(serial string, enabled bool) error {
	s, ok := m.reg.Session(serial)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotConnected, serial)
	}
	s.SetRumbleEnabled(enabled)
	return nil
}

// SendSearchText types into the console's search keyboard through the
// first connected controller. sent is false when the keyboard is closed.
func (m *Manager) SendSearchText(text string) (sent bool, err error) {
	s, ok := m.reg.FirstSession()
	if !ok {
		return false, ErrNotConnected
	}
	return s.SendSearchText(text), nil
}

func (m *Manager) update(serial string, u session.Update) {
	info, ok := m.reg.Apply(serial, u)
	if !ok {
		return
	}
	m.emit(Event{Kind: EventControllerUpdated, Serial: serial, Info: info})
}

func (m *Manager) gameMessage(serial string, msg protocol.Message) {
	switch msg.Class {
	case protocol.ClassOpenPhoneKeyboard:
		m.emit(Event{Kind: EventShowSearch, Serial: serial})
	case protocol.ClassCancelKeyboard:
		m.emit(Event{Kind: EventHideSearch, Serial: serial})
	}
}

// Close stops every session and waits for them to exit.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	sessions := m.reg.Sessions()
	for _, s := range sessions {
		m.stopSession(s)
	}
	m.cancel()
	for _, s := range sessions {
		s.Wait()
	}
}

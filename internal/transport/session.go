// Package transport holds the WebSocket connection to the console (or the
// cloud relay) for one pairing session.
package transport

// WebSocket client with:
// - dialing over a pre-accepted socket (hole punching) or plain TCP
// - TLS done by us so the console's certificate quirks can be tolerated
// - subprotocol selected per protocol version
// - a ping ticker to keep NATs open
// - serialized writes and an idempotent Close

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	writeWait               = 5 * time.Second
	maxMessageSize          = 1 << 20
)

// ErrClosed is returned by reads and writes after Close.
var ErrClosed = errors.New("transport: session closed")

type Options struct {
	URL         string
	Subprotocol string

	// Conn, when set, is used instead of dialing URL's host. It is the socket
	// accepted during hole punching.
	Conn net.Conn

	// Certificate is the console certificate from the pairing service, PEM
	// or base64 DER. Only used for wss.
	Certificate string

	HandshakeTimeout time.Duration
	// PingEvery enables keepalive pings when > 0.
	PingEvery time.Duration

	Logger *slog.Logger
}

type Session struct {
	conn *websocket.Conn
	mu   sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Dial opens the WebSocket and negotiates opts.Subprotocol. It fails if the
// server picks a different one.
func Dial(ctx context.Context, opts Options) (*Session, error) {
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	timeout := opts.HandshakeTimeout
	if timeout <= 0 {
		timeout = defaultHandshakeTimeout
	}

	netDial := func(ctx context.Context, network, addr string) (net.Conn, error) {
		if opts.Conn != nil {
			return opts.Conn, nil
		}
		return (&net.Dialer{Timeout: timeout, KeepAlive: 15 * time.Second}).DialContext(ctx, network, addr)
	}

	d := websocket.Dialer{
		HandshakeTimeout: timeout,
		NetDialContext:   netDial,
		Subprotocols:     []string{opts.Subprotocol},
	}
	if u.Scheme == "wss" {
		cfg, err := tlsConfig(opts.Certificate, ServerName(opts.URL, opts.Conn), log)
		if err != nil {
			return nil, err
		}
		d.NetDialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			raw, err := netDial(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			tc := tls.Client(raw, cfg)
			if err := tc.HandshakeContext(ctx); err != nil {
				raw.Close()
				return nil, fmt.Errorf("tls handshake: %w", err)
			}
			return tc, nil
		}
	}

	conn, _, err := d.DialContext(ctx, u.String(), nil)
	if err != nil {
		if opts.Conn != nil {
			opts.Conn.Close()
		}
		return nil, err
	}
	// A console that does not echo the header is accepted; only a
	// different protocol is rejected.
	if got := conn.Subprotocol(); got != "" && got != opts.Subprotocol {
		conn.Close()
		return nil, fmt.Errorf("server selected subprotocol %q, want %q", got, opts.Subprotocol)
	}
	conn.SetReadLimit(maxMessageSize)

	s := &Session{
		conn: conn,
		done: make(chan struct{}),
	}
	if opts.PingEvery > 0 {
		go s.pingLoop(opts.PingEvery, log)
	}
	return s, nil
}

func (s *Session) Subprotocol() string { return s.conn.Subprotocol() }

// ReadText blocks for the next text frame. Binary frames are skipped.
func (s *Session) ReadText() ([]byte, error) {
	for {
		typ, b, err := s.conn.ReadMessage()
		if err != nil {
			if s.isClosed() {
				return nil, ErrClosed
			}
			return nil, err
		}
		if typ == websocket.TextMessage {
			return b, nil
		}
	}
}

// WriteText sends one text frame. Safe for concurrent use.
func (s *Session) WriteText(b []byte) error {
	if s.isClosed() {
		return ErrClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, b)
}

func (s *Session) isClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Close sends a close frame (best effort) and closes the socket. Calling it
// more than once is a no-op.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.mu.Unlock()
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

func (s *Session) pingLoop(every time.Duration, log *slog.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-t.C:
			s.mu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			s.mu.Unlock()
			if err != nil {
				log.Debug("ping failed", "error", err)
				_ = s.Close()
				return
			}
		}
	}
}

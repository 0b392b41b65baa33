package pairing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"joydance-bridge/internal/protocol"
)

const (
	consolePort          = 8080
	defaultAcceptTimeout = 10 * time.Second

	punchPortMin = 39000
	punchPortMax = 39999
)

// Request describes one pairing attempt. A non-empty ConsoleIP selects
// direct mode and skips every HTTP step.
type Request struct {
	Version     protocol.Version
	PairingCode string
	HostIP      string
	ConsoleIP   string
}

// Result is what the transport needs to reach the console.
type Result struct {
	URL         string
	Certificate string
	// Conn is the socket the console opened during hole punching, nil
	// otherwise.
	Conn net.Conn
}

type Options struct {
	HTTPClient    *http.Client
	Endpoints     Endpoints
	AcceptTimeout time.Duration
	// ListenHost is the address the hole-punch listener binds to.
	ListenHost string
	Logger     *slog.Logger
	Tracer     trace.Tracer
}

// Coordinator runs pairing attempts. It is safe for concurrent use; every
// session shares the same HTTP client.
type Coordinator struct {
	client        *http.Client
	endpoints     Endpoints
	acceptTimeout time.Duration
	listenHost    string
	log           *slog.Logger
	tracer        trace.Tracer

	port func() int
}

func NewCoordinator(opts Options) *Coordinator {
	c := &Coordinator{
		client:        opts.HTTPClient,
		endpoints:     opts.Endpoints,
		acceptTimeout: opts.AcceptTimeout,
		listenHost:    opts.ListenHost,
		log:           opts.Logger,
		tracer:        opts.Tracer,
		port:          randomPort,
	}
	if c.client == nil {
		c.client = NewHTTPClient(10 * time.Second)
	}
	if c.endpoints == (Endpoints{}) {
		c.endpoints = EndpointsFor(DefaultAuthURL, DefaultPairingBase)
	}
	if c.acceptTimeout <= 0 {
		c.acceptTimeout = defaultAcceptTimeout
	}
	if c.listenHost == "" {
		c.listenHost = "0.0.0.0"
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer("joydance-bridge/pairing")
	}
	return c
}

func randomPort() int {
	return punchPortMin + rand.IntN(punchPortMax-punchPortMin+1)
}

// Pair runs the pairing sequence. onState is called with GETTING_TOKEN,
// PAIRING and CONNECTING as the steps start. Failures are *StepError values
// carrying the error state to report.
func (c *Coordinator) Pair(ctx context.Context, req Request, onState func(State)) (res *Result, err error) {
	if onState == nil {
		onState = func(State) {}
	}
	ctx, span := c.tracer.Start(ctx, "pairing.attempt", trace.WithAttributes(
		attribute.String("pairing.version", req.Version.String()),
		attribute.Bool("pairing.direct", req.ConsoleIP != ""),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if req.ConsoleIP != "" {
		onState(StateConnecting)
		return &Result{URL: DirectURL(req.Version, req.ConsoleIP)}, nil
	}

	onState(StateGettingToken)
	c.log.Info("getting authorization token")
	ticket, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	onState(StatePairing)
	c.log.Info("sending pairing code")
	info, err := c.pairingInfo(ctx, ticket, req.PairingCode)
	if err != nil {
		return nil, err
	}
	res = &Result{
		URL:         NormalizePairingURL(info.PairingURL),
		Certificate: info.TLSCertificate,
	}

	onState(StateConnecting)
	if !info.RequiresPunchPairing {
		return res, nil
	}

	port := c.port()
	ln, err := c.listen(ctx, port)
	if err != nil {
		return nil, err
	}
	defer ln.Close()

	c.log.Info("initiating punch pairing", "mobile_ip", req.HostIP, "mobile_port", port)
	if err := c.initiatePunch(ctx, ticket, req.PairingCode, req.HostIP, port); err != nil {
		return nil, err
	}

	conn, err := c.accept(ctx, ln)
	if err != nil {
		return nil, err
	}
	c.log.Info("console connected", "remote", conn.RemoteAddr().String())
	res.Conn = conn
	return res, nil
}

// DirectURL is the console endpoint used when its IP is known: plain ws for
// V1, wss for V2.
func DirectURL(v protocol.Version, consoleIP string) string {
	scheme := "wss"
	if v == protocol.V1 {
		scheme = "ws"
	}
	return fmt.Sprintf("%s://%s/smartphone", scheme, net.JoinHostPort(consoleIP, strconv.Itoa(consolePort)))
}

// NormalizePairingURL turns the pairing service URL into the websocket
// endpoint: https becomes wss and "smartphone" is appended as a path segment.
func NormalizePairingURL(u string) string {
	u = strings.Replace(u, "https://", "wss://", 1)
	if !strings.HasSuffix(u, "/") {
		u += "/"
	}
	return u + "smartphone"
}

func (c *Coordinator) step(ctx context.Context, name string) (context.Context, func(error)) {
	ctx, span := c.tracer.Start(ctx, name)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

func (c *Coordinator) accessToken(ctx context.Context) (ticket string, err error) {
	ctx, end := c.step(ctx, "pairing.auth")
	defer func() { end(err) }()

	status, body, err := c.do(ctx, http.MethodPost, c.endpoints.Auth, func(h http.Header) {
		h.Set("Authorization", guestAuthorization)
		h.Set("Ubi-AppId", ubiAppID)
		h.Set("User-Agent", ubiUserAgent)
		h.Set("Ubi-RequestedPlatformType", "ubimobile")
	}, struct{}{})
	if err != nil {
		return "", &StepError{State: StateErrorConnection, Err: fmt.Errorf("auth request: %w", err)}
	}
	if status != http.StatusOK {
		return "", stepErr(StateErrorConnection, "auth: unexpected status %d", status)
	}
	var ar authResponse
	if err := json.Unmarshal(body, &ar); err != nil || ar.Ticket == "" {
		return "", stepErr(StateErrorConnection, "auth: no ticket in response")
	}
	return ar.Ticket, nil
}

func (c *Coordinator) pairingInfo(ctx context.Context, ticket, code string) (info pairingInfo, err error) {
	ctx, end := c.step(ctx, "pairing.info")
	defer func() { end(err) }()

	u := c.endpoints.PairingInfo + "?code=" + url.QueryEscape(code)
	status, body, err := c.do(ctx, http.MethodGet, u, func(h http.Header) {
		baseHeaders(h)
		h.Set("Authorization", "Ubi_v1 "+ticket)
	}, nil)
	if err != nil {
		return info, &StepError{State: StateErrorInvalidPairingCode, Err: fmt.Errorf("pairing-info request: %w", err)}
	}
	if status != http.StatusOK {
		return info, stepErr(StateErrorInvalidPairingCode, "pairing-info: unexpected status %d", status)
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return info, &StepError{State: StateErrorInvalidPairingCode, Err: fmt.Errorf("pairing-info: %w", err)}
	}
	if info.PairingURL == "" {
		return info, stepErr(StateErrorInvalidPairingCode, "pairing-info: no pairing url")
	}
	return info, nil
}

func (c *Coordinator) initiatePunch(ctx context.Context, ticket, code, hostIP string, port int) (err error) {
	ctx, end := c.step(ctx, "pairing.punch")
	defer func() { end(err) }()

	_, body, err := c.do(ctx, http.MethodPost, c.endpoints.PunchPairing, func(h http.Header) {
		baseHeaders(h)
		h.Set("Authorization", "Ubi_v1 "+ticket)
	}, punchRequest{PairingCode: code, MobileIP: hostIP, MobilePort: port})
	if err != nil {
		return &StepError{State: StateErrorPunchPairing, Err: fmt.Errorf("punch request: %w", err)}
	}
	if string(body) != "OK" {
		return stepErr(StateErrorPunchPairing, "punch pairing rejected: %q", truncate(string(body), 64))
	}
	return nil
}

func (c *Coordinator) listen(ctx context.Context, port int) (*net.TCPListener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp4", net.JoinHostPort(c.listenHost, strconv.Itoa(port)))
	if err != nil {
		return nil, &StepError{State: StateErrorHolePunching, Err: fmt.Errorf("listen: %w", err)}
	}
	return ln.(*net.TCPListener), nil
}

// accept waits for exactly one inbound connection from the console.
func (c *Coordinator) accept(ctx context.Context, ln *net.TCPListener) (conn net.Conn, err error) {
	_, end := c.step(ctx, "pairing.hole_punch")
	defer func() { end(err) }()

	_ = ln.SetDeadline(time.Now().Add(c.acceptTimeout))
	stop := context.AfterFunc(ctx, func() { _ = ln.SetDeadline(time.Now()) })
	defer stop()

	conn, err = ln.Accept()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			err = fmt.Errorf("no connection from console within %s", c.acceptTimeout)
		}
		return nil, &StepError{State: StateErrorHolePunching, Err: err}
	}
	return conn, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

package pairing

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"joydance-bridge/internal/protocol"
)

type fakeServices struct {
	authStatus   int
	infoStatus   int
	requirePunch bool
	punchBody    string
	// dialBack makes the punch handler connect to the announced port.
	dialBack bool

	authCalls  int32
	infoCalls  int32
	punchCalls int32

	mu        sync.Mutex
	code      string
	ticketHdr string
	punch     punchRequest
}

func (f *fakeServices) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/profiles/sessions", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.authCalls, 1)
		if r.Method != http.MethodPost || r.Header.Get("Authorization") != guestAuthorization {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Header.Get("Ubi-AppId") != ubiAppID {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if f.authStatus != 0 {
			w.WriteHeader(f.authStatus)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ticket": "tkt"})
	})
	mux.HandleFunc("/sessions/v1/pairing-info", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.infoCalls, 1)
		f.mu.Lock()
		f.code = r.URL.Query().Get("code")
		f.ticketHdr = r.Header.Get("Authorization")
		f.mu.Unlock()
		if f.infoStatus != 0 {
			w.WriteHeader(f.infoStatus)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"pairingUrl":           "https://192.168.1.50:1234/abc",
			"tlsCertificate":       "CERT",
			"requiresPunchPairing": f.requirePunch,
		})
	})
	mux.HandleFunc("/sessions/v1/initiate-punch-pairing", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.punchCalls, 1)
		var req punchRequest
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &req)
		f.mu.Lock()
		f.punch = req
		f.mu.Unlock()
		_, _ = io.WriteString(w, f.punchBody)
		if f.dialBack {
			go func() {
				c, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(req.MobilePort)))
				if err == nil {
					time.Sleep(200 * time.Millisecond)
					c.Close()
				}
			}()
		}
	})
	ts := httptest.NewTLSServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func newTestCoordinator(t *testing.T, ts *httptest.Server) *Coordinator {
	t.Helper()
	c := NewCoordinator(Options{
		HTTPClient:    NewHTTPClient(5 * time.Second),
		Endpoints:     EndpointsFor(ts.URL+"/v1/profiles/sessions", ts.URL),
		AcceptTimeout: 300 * time.Millisecond,
		ListenHost:    "127.0.0.1",
	})
	port := freePort(t)
	c.port = func() int { return port }
	return c
}

type stateLog struct {
	mu     sync.Mutex
	states []State
}

func (l *stateLog) add(s State) {
	l.mu.Lock()
	l.states = append(l.states, s)
	l.mu.Unlock()
}

func (l *stateLog) equal(want ...State) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.states) != len(want) {
		return false
	}
	for i := range want {
		if l.states[i] != want[i] {
			return false
		}
	}
	return true
}

func stepState(t *testing.T, err error) State {
	t.Helper()
	var se *StepError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StepError, got %v", err)
	}
	return se.State
}

func TestPair_DefaultWithoutPunch(t *testing.T) {
	f := &fakeServices{}
	ts := f.server(t)
	c := newTestCoordinator(t, ts)

	var log stateLog
	res, err := c.Pair(context.Background(), Request{Version: protocol.V2, PairingCode: "123456", HostIP: "192.168.1.10"}, log.add)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.URL != "wss://192.168.1.50:1234/abc/smartphone" {
		t.Fatalf("unexpected url %q", res.URL)
	}
	if res.Certificate != "CERT" || res.Conn != nil {
		t.Fatalf("unexpected result %#v", res)
	}
	if !log.equal(StateGettingToken, StatePairing, StateConnecting) {
		t.Fatalf("unexpected states %v", log.states)
	}
	if f.authCalls != 1 || f.infoCalls != 1 || f.punchCalls != 0 {
		t.Fatalf("unexpected calls auth=%d info=%d punch=%d", f.authCalls, f.infoCalls, f.punchCalls)
	}
	if f.code != "123456" || f.ticketHdr != "Ubi_v1 tkt" {
		t.Fatalf("unexpected pairing-info request code=%q auth=%q", f.code, f.ticketHdr)
	}
}

func TestPair_AuthFailure(t *testing.T) {
	f := &fakeServices{authStatus: http.StatusForbidden}
	ts := f.server(t)
	c := newTestCoordinator(t, ts)

	var log stateLog
	_, err := c.Pair(context.Background(), Request{Version: protocol.V2, PairingCode: "123456"}, log.add)
	if got := stepState(t, err); got != StateErrorConnection {
		t.Fatalf("expected ERROR_CONNECTION, got %s", got)
	}
	if f.infoCalls != 0 {
		t.Fatalf("pairing-info must not be called after auth failure")
	}
	if !log.equal(StateGettingToken) {
		t.Fatalf("unexpected states %v", log.states)
	}
}

func TestPair_InvalidCode(t *testing.T) {
	f := &fakeServices{infoStatus: http.StatusNotFound}
	ts := f.server(t)
	c := newTestCoordinator(t, ts)

	_, err := c.Pair(context.Background(), Request{Version: protocol.V2, PairingCode: "000000"}, nil)
	if got := stepState(t, err); got != StateErrorInvalidPairingCode {
		t.Fatalf("expected ERROR_INVALID_PAIRING_CODE, got %s", got)
	}
}

func TestPair_PunchRejected(t *testing.T) {
	f := &fakeServices{requirePunch: true, punchBody: "NOPE"}
	ts := f.server(t)
	c := newTestCoordinator(t, ts)

	_, err := c.Pair(context.Background(), Request{Version: protocol.V2, PairingCode: "123456", HostIP: "192.168.1.10"}, nil)
	if got := stepState(t, err); got != StateErrorPunchPairing {
		t.Fatalf("expected ERROR_PUNCH_PAIRING, got %s", got)
	}
}

func TestPair_HolePunchTimeout(t *testing.T) {
	f := &fakeServices{requirePunch: true, punchBody: "OK"}
	ts := f.server(t)
	c := newTestCoordinator(t, ts)

	start := time.Now()
	_, err := c.Pair(context.Background(), Request{Version: protocol.V2, PairingCode: "123456", HostIP: "192.168.1.10"}, nil)
	if got := stepState(t, err); got != StateErrorHolePunching {
		t.Fatalf("expected ERROR_HOLE_PUNCHING, got %s", got)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("accept timeout not honoured")
	}
}

func TestPair_HolePunchAccepts(t *testing.T) {
	f := &fakeServices{requirePunch: true, punchBody: "OK", dialBack: true}
	ts := f.server(t)
	c := newTestCoordinator(t, ts)
	c.acceptTimeout = 5 * time.Second

	res, err := c.Pair(context.Background(), Request{Version: protocol.V2, PairingCode: "123456", HostIP: "192.168.1.10"}, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.Conn == nil {
		t.Fatalf("expected accepted connection")
	}
	res.Conn.Close()

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.punch.PairingCode != "123456" || f.punch.MobileIP != "192.168.1.10" || f.punch.MobilePort == 0 {
		t.Fatalf("unexpected punch request %#v", f.punch)
	}
}

func TestPair_DirectIPSkipsHTTP(t *testing.T) {
	f := &fakeServices{}
	ts := f.server(t)
	c := newTestCoordinator(t, ts)

	var log stateLog
	res, err := c.Pair(context.Background(), Request{Version: protocol.V2, ConsoleIP: "192.168.1.77"}, log.add)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.URL != "wss://192.168.1.77:8080/smartphone" {
		t.Fatalf("unexpected url %q", res.URL)
	}
	if !log.equal(StateConnecting) {
		t.Fatalf("unexpected states %v", log.states)
	}
	if f.authCalls+f.infoCalls+f.punchCalls != 0 {
		t.Fatalf("direct mode must not call any HTTP endpoint")
	}

	res, _ = c.Pair(context.Background(), Request{Version: protocol.V1, ConsoleIP: "10.0.0.5"}, nil)
	if res.URL != "ws://10.0.0.5:8080/smartphone" {
		t.Fatalf("unexpected v1 url %q", res.URL)
	}
}

func TestNormalizePairingURL(t *testing.T) {
	cases := map[string]string{
		"https://host/path":  "wss://host/path/smartphone",
		"https://host/path/": "wss://host/path/smartphone",
		"wss://host":         "wss://host/smartphone",
	}
	for in, want := range cases {
		if got := NormalizePairingURL(in); got != want {
			t.Fatalf("NormalizePairingURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRandomPortRange(t *testing.T) {
	for i := 0; i < 2000; i++ {
		p := randomPort()
		if p < punchPortMin || p > punchPortMax {
			t.Fatalf("port %d out of range", p)
		}
	}
}

func TestStateString(t *testing.T) {
	if StateErrorHolePunching.String() != "ERROR_HOLE_PUNCHING" || !StateErrorHolePunching.IsError() {
		t.Fatalf("unexpected state naming")
	}
	if StateConnected.IsError() {
		t.Fatalf("CONNECTED is not an error")
	}
	if int(StateDisconnected) != 10 || int(StateErrorConsoleConnection) != 106 {
		t.Fatalf("state values changed")
	}
}

package transport

import (
	"context"
	"encoding/pem"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

const testSubprotocol = "v2.phonescoring.jd.ubisoft.com"

func echoServer(t *testing.T, subprotocols []string) http.Handler {
	t.Helper()
	up := websocket.Upgrader{Subprotocols: subprotocols}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for {
			typ, b, err := c.ReadMessage()
			if err != nil {
				return
			}
			if err := c.WriteMessage(typ, b); err != nil {
				return
			}
		}
	})
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http") + "/smartphone"
}

func dialTest(t *testing.T, opts Options) *Session {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := Dial(ctx, opts)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func roundTrip(t *testing.T, s *Session, msg string) {
	t.Helper()
	if err := s.WriteText([]byte(msg)); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := s.ReadText()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != msg {
		t.Fatalf("expected echo %q, got %q", msg, got)
	}
}

func TestDial_PlainWithSubprotocol(t *testing.T) {
	ts := httptest.NewServer(echoServer(t, []string{testSubprotocol}))
	defer ts.Close()

	s := dialTest(t, Options{URL: wsURL(ts.URL), Subprotocol: testSubprotocol})
	if s.Subprotocol() != testSubprotocol {
		t.Fatalf("unexpected subprotocol %q", s.Subprotocol())
	}
	roundTrip(t, s, `{"root":{"__class":"JD_PhoneDataCmdSync"}}`)
}

func TestDial_SubprotocolMismatch(t *testing.T) {
	ts := httptest.NewServer(echoServer(t, []string{"v1.phonescoring.jd.ubisoft.com"}))
	defer ts.Close()

	_, err := Dial(context.Background(), Options{URL: wsURL(ts.URL), Subprotocol: testSubprotocol})
	if err == nil {
		t.Fatalf("expected subprotocol error")
	}
}

func TestDial_ServerWithoutSubprotocol(t *testing.T) {
	ts := httptest.NewServer(echoServer(t, nil))
	defer ts.Close()

	s := dialTest(t, Options{URL: wsURL(ts.URL), Subprotocol: testSubprotocol})
	if s.Subprotocol() != "" {
		t.Fatalf("expected no subprotocol, got %q", s.Subprotocol())
	}
	roundTrip(t, s, `{"root":{"__class":"JD_PhoneDataCmdSync"}}`)
}

func TestDial_TLSWithPairingCertificate(t *testing.T) {
	ts := httptest.NewTLSServer(echoServer(t, []string{testSubprotocol}))
	defer ts.Close()

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: ts.Certificate().Raw})
	s := dialTest(t, Options{
		URL:         wsURL(ts.URL),
		Subprotocol: testSubprotocol,
		Certificate: string(certPEM),
	})
	roundTrip(t, s, "hello")
}

func TestDial_TLSWithoutCertificate(t *testing.T) {
	ts := httptest.NewTLSServer(echoServer(t, []string{testSubprotocol}))
	defer ts.Close()

	s := dialTest(t, Options{URL: wsURL(ts.URL), Subprotocol: testSubprotocol})
	roundTrip(t, s, "hello")
}

func TestDial_UsesAcceptedConn(t *testing.T) {
	ts := httptest.NewServer(echoServer(t, []string{testSubprotocol}))
	defer ts.Close()

	raw, err := net.Dial("tcp", ts.Listener.Addr().String())
	if err != nil {
		t.Fatalf("dial tcp: %v", err)
	}
	// The URL host is unreachable; only the supplied socket can work.
	s := dialTest(t, Options{
		URL:              "ws://10.255.255.1:8080/smartphone",
		Subprotocol:      testSubprotocol,
		Conn:             raw,
		HandshakeTimeout: 2 * time.Second,
	})
	roundTrip(t, s, "punched")
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	ts := httptest.NewServer(echoServer(t, []string{testSubprotocol}))
	defer ts.Close()

	s := dialTest(t, Options{URL: wsURL(ts.URL), Subprotocol: testSubprotocol, PingEvery: 10 * time.Millisecond})
	_ = s.Close()
	_ = s.Close()

	if err := s.WriteText([]byte("late")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed on write, got %v", err)
	}
	if _, err := s.ReadText(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed on read, got %v", err)
	}
}

func TestServerName(t *testing.T) {
	if got := ServerName("wss://public-relay.example.com:443/x/smartphone", nil); got != "public-relay.example.com" {
		t.Fatalf("unexpected server name %q", got)
	}

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()
	// net.Pipe has no TCP address, so the URL host is used.
	if got := ServerName("wss://192.168.1.20:8080/smartphone", client); got != "192.168.1.20" {
		t.Fatalf("unexpected server name %q", got)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	c, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()
	// Loopback is not a private LAN address.
	if got := ServerName("wss://relay.example.com/smartphone", c); got != "relay.example.com" {
		t.Fatalf("unexpected server name %q", got)
	}
}

func TestIsPrivateLAN(t *testing.T) {
	cases := map[string]bool{
		"192.168.0.10": true,
		"10.1.2.3":     true,
		"172.16.0.1":   false,
		"8.8.8.8":      false,
		"::1":          false,
	}
	for ip, want := range cases {
		if got := IsPrivateLAN(net.ParseIP(ip)); got != want {
			t.Fatalf("IsPrivateLAN(%s) = %v, want %v", ip, got, want)
		}
	}
}

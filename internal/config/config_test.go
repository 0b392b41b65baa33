package config

import (
	"errors"
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"joydance-bridge/internal/protocol"
)

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		set  Settings
		want error
	}{
		{"default ok", Settings{Method: MethodDefault, HostIP: "192.168.1.20", PairingCode: "123456"}, nil},
		{"default bad code", Settings{Method: MethodDefault, HostIP: "192.168.1.20", PairingCode: "12a45"}, ErrInvalidPairingCode},
		{"default short code", Settings{Method: MethodDefault, HostIP: "192.168.1.20", PairingCode: "12345"}, ErrInvalidPairingCode},
		{"default public host", Settings{Method: MethodDefault, HostIP: "8.8.8.8", PairingCode: "123456"}, ErrInvalidHostIP},
		{"stadia needs code", Settings{Method: MethodStadia, HostIP: "10.0.0.2"}, ErrInvalidPairingCode},
		{"fast ok", Settings{Method: MethodFast, ConsoleIP: "10.0.0.9"}, nil},
		{"fast missing console", Settings{Method: MethodFast, HostIP: "10.0.0.2", PairingCode: "123456"}, ErrInvalidConsoleIP},
		{"old ok", Settings{Method: MethodOld, ConsoleIP: "192.168.0.5"}, nil},
		{"unknown method", Settings{Method: "slow"}, ErrInvalidMethod},
	}
	for _, tc := range cases {
		err := tc.set.Validate()
		if tc.want == nil && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if tc.want != nil && !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestIsValidLocalIP(t *testing.T) {
	good := []string{"192.168.0.1", "192.168.255.255", "10.0.0.1", "10.250.3.4"}
	bad := []string{"", "172.16.0.1", "192.168.1", "192.168.1.256", "10.0.0", "10x1.2.3", "192.168.1.1 ", "11.0.0.1"}
	for _, ip := range good {
		if !IsValidLocalIP(ip) {
			t.Fatalf("expected %q to be accepted", ip)
		}
	}
	for _, ip := range bad {
		if IsValidLocalIP(ip) {
			t.Fatalf("expected %q to be rejected", ip)
		}
	}
}

func TestMethod_ProtocolVersion(t *testing.T) {
	if MethodOld.ProtocolVersion() != protocol.V1 {
		t.Fatalf("expected old to use V1")
	}
	for _, m := range []Method{MethodDefault, MethodFast, MethodStadia} {
		if m.ProtocolVersion() != protocol.V2 {
			t.Fatalf("expected %s to use V2", m)
		}
	}
	if !MethodStadia.UsesPairingCode() || MethodFast.UsesPairingCode() {
		t.Fatalf("unexpected pairing code usage")
	}
}

func TestSanitize(t *testing.T) {
	got := Settings{Method: "bogus", HostIP: "1.2.3.4", ConsoleIP: "10.0.0.3", PairingCode: "abc"}.Sanitize()
	want := Settings{Method: MethodDefault, ConsoleIP: "10.0.0.3"}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestStore_LoadMissingUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	s := NewStore(path)
	s.hostIP = func() string { return "192.168.1.77" }

	set, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if set.Method != MethodDefault || set.HostIP != "192.168.1.77" {
		t.Fatalf("unexpected settings %+v", set)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected settings file to be written: %v", err)
	}
}

func TestStore_SaveLoadSanitizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	s := NewStore(path)
	s.hostIP = func() string { return "" }

	if err := s.Save(Settings{Method: MethodFast, ConsoleIP: "10.1.2.3", PairingCode: "99"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(b), "pairing_method: fast") || !strings.Contains(string(b), "console_ip_addr: 10.1.2.3") {
		t.Fatalf("unexpected yaml:\n%s", b)
	}

	set, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := Settings{Method: MethodFast, ConsoleIP: "10.1.2.3"}
	if set != want {
		t.Fatalf("expected %+v, got %+v", want, set)
	}
}

func TestStore_LoadRejectsBrokenYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("pairing_method: [oops"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := NewStore(path).Load(); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestFromEnv_AndFlags(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":9999")
	t.Setenv("FRAME_MS", "20")
	t.Setenv("ACCEL_FREQ_HZ", "not-a-number")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := FromEnv("https://auth.example", "https://pair.example")
	if cfg.ListenAddr != ":9999" || cfg.FrameMS != 20 || cfg.AccelFreqHz != 200 {
		t.Fatalf("unexpected env config %+v", cfg)
	}
	if cfg.AuthURL != "https://auth.example" || cfg.SlogLevel() != slog.LevelDebug {
		t.Fatalf("unexpected defaults %+v", cfg)
	}

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg.RegisterFlags(fs)
	if err := fs.Parse([]string{"-frame-ms", "5", "-listen", ":1"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.FrameDuration() != 5*time.Millisecond || cfg.ListenAddr != ":1" {
		t.Fatalf("expected flags to override env, got %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	cfg.FrameMS = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for zero frame period")
	}
}

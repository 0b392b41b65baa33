// Package config holds the process configuration (env with flag overrides)
// and the persisted per-user pairing settings.
package config

import (
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"time"
)

// Config is the process configuration.
type Config struct {
	ListenAddr     string
	SettingsPath   string
	LogLevel       string
	AuthURL        string
	PairingBaseURL string

	AccelFreqHz    float64
	AccelLatencyMS float64
	AccelMaxRange  float64
	FrameMS        int

	HTTPTimeoutSeconds float64
	PingSeconds        float64
	AcceptTimeoutSecs  float64

	CORSOrigins []string
}

// FromEnv reads the configuration from the environment, falling back to
// defaults.
func FromEnv(defaultAuthURL, defaultPairingBase string) Config {
	return Config{
		ListenAddr:         getenvDefault("LISTEN_ADDR", ":32623"),
		SettingsPath:       getenvDefault("CONFIG_PATH", "config.yaml"),
		LogLevel:           getenvDefault("LOG_LEVEL", "info"),
		AuthURL:            getenvDefault("AUTH_URL", defaultAuthURL),
		PairingBaseURL:     getenvDefault("PAIRING_BASE_URL", defaultPairingBase),
		AccelFreqHz:        getenvFloatDefault("ACCEL_FREQ_HZ", 200),
		AccelLatencyMS:     getenvFloatDefault("ACCEL_LATENCY_MS", 0),
		AccelMaxRange:      getenvFloatDefault("ACCEL_MAX_RANGE", 8),
		FrameMS:            getenvIntDefault("FRAME_MS", 15),
		HTTPTimeoutSeconds: getenvFloatDefault("HTTP_TIMEOUT_SECONDS", 10),
		PingSeconds:        getenvFloatDefault("PING_SECONDS", 0),
		AcceptTimeoutSecs:  getenvFloatDefault("ACCEPT_TIMEOUT_SECONDS", 10),
		CORSOrigins:        splitList(getenvDefault("CORS_ORIGINS", "*")),
	}
}

// RegisterFlags binds every field to a flag whose default is the current
// value, so flags override env.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.ListenAddr, "listen", c.ListenAddr, "UI server listen address")
	fs.StringVar(&c.SettingsPath, "config", c.SettingsPath, "Pairing settings file (yaml)")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug|info|warn|error")
	fs.StringVar(&c.AuthURL, "auth-url", c.AuthURL, "Guest session endpoint")
	fs.StringVar(&c.PairingBaseURL, "pairing-url", c.PairingBaseURL, "Pairing service base URL")
	fs.Float64Var(&c.AccelFreqHz, "accel-freq-hz", c.AccelFreqHz, "Accelerometer acquisition frequency announced to the console")
	fs.Float64Var(&c.AccelLatencyMS, "accel-latency-ms", c.AccelLatencyMS, "Accelerometer acquisition latency announced to the console")
	fs.Float64Var(&c.AccelMaxRange, "accel-max-range", c.AccelMaxRange, "Accelerometer range in G announced to the console")
	fs.IntVar(&c.FrameMS, "frame-ms", c.FrameMS, "Session loop period (ms)")
	fs.Float64Var(&c.HTTPTimeoutSeconds, "http-timeout-seconds", c.HTTPTimeoutSeconds, "Timeout for each pairing HTTP call")
	fs.Float64Var(&c.PingSeconds, "ping-seconds", c.PingSeconds, "WebSocket ping interval to the console (0 disables)")
	fs.Float64Var(&c.AcceptTimeoutSecs, "accept-timeout-seconds", c.AcceptTimeoutSecs, "How long to wait for the console during hole punching")
}

func (c Config) Validate() error {
	if c.FrameMS <= 0 {
		return fmt.Errorf("frame-ms must be positive, got %d", c.FrameMS)
	}
	if c.AccelFreqHz <= 0 {
		return fmt.Errorf("accel-freq-hz must be positive, got %v", c.AccelFreqHz)
	}
	if c.HTTPTimeoutSeconds <= 0 {
		return fmt.Errorf("http-timeout-seconds must be positive, got %v", c.HTTPTimeoutSeconds)
	}
	return nil
}

func (c Config) FrameDuration() time.Duration { return time.Duration(c.FrameMS) * time.Millisecond }
func (c Config) HTTPTimeout() time.Duration   { return seconds(c.HTTPTimeoutSeconds) }
func (c Config) PingEvery() time.Duration     { return seconds(c.PingSeconds) }
func (c Config) AcceptTimeout() time.Duration { return seconds(c.AcceptTimeoutSecs) }

// SlogLevel maps LogLevel to a slog level; unknown names mean info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func seconds(s float64) time.Duration { return time.Duration(s * float64(time.Second)) }

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	var out int
	_, err := fmt.Sscanf(v, "%d", &out)
	if err != nil {
		return def
	}
	return out
}

func getenvFloatDefault(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	var out float64
	_, err := fmt.Sscanf(v, "%f", &out)
	if err != nil {
		return def
	}
	if math.IsNaN(out) || math.IsInf(out, 0) {
		return def
	}
	return out
}

package main

// JoyDance bridge entrypoint.
//
// A single binary that:
// - discovers Joy-Cons through the Linux input subsystem
// - pairs each one with a Just Dance console as a phone controller
// - serves the browser UI over a local websocket
//
// Code is split across internal/:
// - config: env/flag settings + persisted pairing settings
// - controller: Joy-Con discovery, input, IMU and rumble
// - pairing: guest auth, pairing-info, punch pairing, hole punching
// - transport: console websocket (TLS, ping, write lock)
// - session: per-controller supervisor, accel streaming, reconnect
// - bridge, registry, httpui: UI-facing lifecycle

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"joydance-bridge/internal/bridge"
	"joydance-bridge/internal/config"
	"joydance-bridge/internal/controller"
	"joydance-bridge/internal/httpui"
	"joydance-bridge/internal/observability"
	"joydance-bridge/internal/pairing"
)

const serviceName = "joydance-bridge"

var version = "dev"

func main() {
	cfg := config.FromEnv(pairing.DefaultAuthURL, pairing.DefaultPairingBase)
	cfg.RegisterFlags(flag.CommandLine)
	listDevices := flag.Bool("list-devices", false, "Print the detected Joy-Cons and exit")
	flag.Parse()

	if *listDevices {
		if err := printDevices(controller.System{}); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func printDevices(devs controller.Devices) error {
	found, err := devs.Discover()
	if err != nil {
		return err
	}
	if len(found) == 0 {
		fmt.Println("no Joy-Con found")
		return nil
	}
	for _, d := range found {
		side := "right"
		if d.IsLeft {
			side = "left"
		}
		fmt.Printf("%s\t%s\t%s\t%04x:%04x\t%s\n", d.Serial, d.Name, side, d.VendorID, d.ProductID, d.Path)
	}
	return nil
}

func run(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, tracer, err := observability.Setup(ctx, serviceName)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	store := config.NewStore(cfg.SettingsPath)
	if _, err := store.Load(); err != nil {
		// A broken settings file must not keep the UI from starting.
		log.Warn("pairing settings not loaded", "path", store.Path(), "error", err)
	}

	coord := pairing.NewCoordinator(pairing.Options{
		HTTPClient:    pairing.NewHTTPClient(cfg.HTTPTimeout()),
		Endpoints:     pairing.EndpointsFor(cfg.AuthURL, cfg.PairingBaseURL),
		AcceptTimeout: cfg.AcceptTimeout(),
		Logger:        log,
		Tracer:        tracer,
	})

	mgr := bridge.New(bridge.Options{
		Devices: controller.System{},
		Store:   store,
		Pairer:  coord,
		Session: bridge.SessionConfig{
			FrameDuration:  cfg.FrameDuration(),
			AccelFreqHz:    cfg.AccelFreqHz,
			AccelLatencyMS: cfg.AccelLatencyMS,
			AccelMaxRange:  cfg.AccelMaxRange,
			PingEvery:      cfg.PingEvery(),
		},
		Logger: log,
	})
	defer mgr.Close()

	ui := httpui.NewServer(httpui.Options{
		Bridge:      mgr,
		Store:       store,
		CORSOrigins: cfg.CORSOrigins,
		Tracer:      tracer,
		Logger:      log,
		Version:     version,
	})
	defer ui.Close()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           ui.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Info("joydance bridge starting", "version", version, "listen", cfg.ListenAddr, "settings", store.Path())
	err = httpui.Serve(ctx, srv, log)
	log.Info("joydance bridge stopped")
	return err
}

// Package httpui is the host application's control surface: a websocket
// command channel for the browser UI plus a few read-only HTTP endpoints.
package httpui

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"joydance-bridge/internal/bridge"
	"joydance-bridge/internal/config"
	"joydance-bridge/internal/metrics"
	"joydance-bridge/internal/observability"
	"joydance-bridge/internal/registry"
)

// UI command names; replies and pushes are prefixed with "resp_".
const (
	CmdGetJoyconList    = "get_joycon_list"
	CmdConnectJoycon    = "connect_joycon"
	CmdDisconnectJoycon = "disconnect_joycon"
	CmdSearchInput      = "search_input"
	CmdToggleRumble     = "toggle_rumble"
	CmdUpdateJoycon     = "update_joycon_state"
	CmdShowSearch       = "show_search"
	CmdHideSearch       = "hide_search"
)

func respName(cmd string) string { return "resp_" + cmd }

// Bridge is the controller lifecycle the UI drives.
type Bridge interface {
	List(ctx context.Context) ([]registry.Info, error)
	Connect(serial string, set config.Settings) error
	Disconnect(serial string) error
	SetRumbleEnabled(serial string, enabled bool) error
	SendSearchText(text string) (bool, error)
	Subscribe(fn func(bridge.Event)) (unsubscribe func())
}

type Options struct {
	Bridge      Bridge
	Store       *config.Store
	CORSOrigins []string
	Tracer      trace.Tracer
	Logger      *slog.Logger
	Version     string
}

type Server struct {
	bridge  Bridge
	store   *config.Store
	hub     *hub
	log     *slog.Logger
	tracer  trace.Tracer
	origins []string
	version string
	unsub   func()
}

func NewServer(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("httpui")
	}
	s := &Server{
		bridge:  opts.Bridge,
		store:   opts.Store,
		log:     log,
		tracer:  tracer,
		origins: opts.CORSOrigins,
		version: opts.Version,
	}
	if len(s.origins) == 0 {
		s.origins = []string{"*"}
	}
	s.hub = newHub(s.handle, log)
	s.unsub = s.bridge.Subscribe(s.onEvent)
	return s
}

// Close detaches from the bridge and drops every UI client.
func (s *Server) Close() {
	s.unsub()
	s.hub.closeAll()
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(observability.Middleware(s.tracer))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "version": s.version})
	})
	r.Handle("/metrics", metrics.Handler())
	r.Get("/ws", s.hub.ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/controllers", s.handleControllers)
		r.Get("/config", s.handleConfig)
	})
	return r
}

func (s *Server) handleControllers(w http.ResponseWriter, r *http.Request) {
	list, err := s.bridge.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleConfig serves the saved pairing settings used to prefill the UI.
func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusOK, config.DefaultSettings())
		return
	}
	set, err := s.store.Load()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func (s *Server) onEvent(ev bridge.Event) {
	switch ev.Kind {
	case bridge.EventControllerUpdated:
		s.hub.broadcast(Response{Cmd: respName(CmdUpdateJoycon), Data: ev.Info})
	case bridge.EventShowSearch:
		s.hub.broadcast(Response{Cmd: respName(CmdShowSearch), Data: map[string]string{"serial": ev.Serial}})
	case bridge.EventHideSearch:
		s.hub.broadcast(Response{Cmd: respName(CmdHideSearch), Data: map[string]string{"serial": ev.Serial}})
	}
}

type connectRequest struct {
	Serial      string `json:"joycon_serial"`
	Method      string `json:"pairing_method"`
	HostIP      string `json:"host_ip_addr"`
	ConsoleIP   string `json:"console_ip_addr"`
	PairingCode string `json:"pairing_code"`
}

type serialRequest struct {
	Serial string `json:"joycon_serial"`
}

type rumbleRequest struct {
	Serial  string `json:"joycon_serial"`
	Enabled bool   `json:"enabled"`
}

type searchRequest struct {
	Text string `json:"text"`
}

var errMissingSerial = errors.New("missing joycon_serial")

// handle runs one UI command. A failing command gets an error reply under
// its own response name.
func (s *Server) handle(c *client, req request) {
	ctx, span := s.tracer.Start(context.Background(), "ui."+req.Cmd)
	defer span.End()
	s.log.Debug("ui command", "cmd", req.Cmd)

	var (
		data any
		err  error
	)
	switch req.Cmd {
	case CmdGetJoyconList:
		data, err = s.bridge.List(ctx)

	case CmdConnectJoycon:
		var r connectRequest
		if err = decodeData(req.Data, &r); err == nil {
			err = requireSerial(r.Serial)
		}
		if err == nil {
			err = s.bridge.Connect(r.Serial, config.Settings{
				Method:      config.Method(r.Method),
				HostIP:      r.HostIP,
				ConsoleIP:   r.ConsoleIP,
				PairingCode: r.PairingCode,
			})
		}
		data = map[string]any{}

	case CmdDisconnectJoycon:
		var r serialRequest
		if err = decodeData(req.Data, &r); err == nil {
			err = requireSerial(r.Serial)
		}
		if err == nil {
			err = s.bridge.Disconnect(r.Serial)
		}
		data = map[string]any{}

	case CmdToggleRumble:
		var r rumbleRequest
		if err = decodeData(req.Data, &r); err == nil {
			err = requireSerial(r.Serial)
		}
		if err == nil {
			err = s.bridge.SetRumbleEnabled(r.Serial, r.Enabled)
		}
		if err == nil {
			return
		}

	case CmdSearchInput:
		var r searchRequest
		if err = decodeData(req.Data, &r); err == nil {
			_, err = s.bridge.SendSearchText(r.Text)
		}
		if err == nil {
			return
		}

	default:
		s.log.Warn("unknown ui command", "cmd", req.Cmd)
		return
	}

	if err != nil {
		s.log.Warn("ui command failed", "cmd", req.Cmd, "error", err)
		c.reply(Response{Cmd: respName(req.Cmd), Data: map[string]string{"error": err.Error(), "status": "error"}})
		return
	}
	c.reply(Response{Cmd: respName(req.Cmd), Data: data})
}

func decodeData(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func requireSerial(serial string) error {
	if serial == "" {
		return errMissingSerial
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg, "code": status})
}

// Serve runs srv until ctx ends, then shuts it down gracefully.
func Serve(ctx context.Context, srv *http.Server, log *slog.Logger) error {
	errc := make(chan error, 1)
	go func() {
		log.Info("ui server started", "addr", srv.Addr)
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("graceful shutdown failed", "error", err)
		return err
	}
	return nil
}

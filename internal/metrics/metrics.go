// Package metrics exposes the bridge's prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	StateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "joydance_state_transitions_total",
			Help: "Pairing state changes by target state.",
		},
		[]string{"state"},
	)
	CommandsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "joydance_commands_sent_total",
			Help: "Phone commands sent to the console by message class.",
		},
		[]string{"class"},
	)
	CommandsSuppressed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "joydance_commands_suppressed_total",
			Help: "Commands dropped by the preprocessor.",
		},
	)
	AccelSamples = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "joydance_accel_samples_total",
			Help: "Accelerometer samples streamed to the console.",
		},
	)
	AccelBatches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "joydance_accel_batches_total",
			Help: "JD_PhoneScoringData messages sent.",
		},
	)
	ReconnectAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "joydance_reconnect_attempts_total",
			Help: "Controller reconnection attempts.",
		},
	)
	GameMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "joydance_game_messages_total",
			Help: "Inbound console messages by class.",
		},
		[]string{"class"},
	)
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "joydance_http_requests_total",
			Help: "UI server requests by path, method and status.",
		},
		[]string{"path", "method", "status"},
	)
	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "joydance_active_sessions",
			Help: "Sessions currently managed by the bridge.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		StateTransitions,
		CommandsSent,
		CommandsSuppressed,
		AccelSamples,
		AccelBatches,
		ReconnectAttempts,
		GameMessages,
		HTTPRequests,
		ActiveSessions,
	)
}

func Handler() http.Handler { return promhttp.Handler() }

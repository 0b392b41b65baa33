package session

import (
	"context"
	"log/slog"
	"time"

	"joydance-bridge/internal/controller"
	"joydance-bridge/internal/metrics"
	"joydance-bridge/internal/protocol"
)

// splitBatches cuts samples into consecutive batches of at most n, keeping
// arrival order.
func splitBatches(samples []controller.AccelSample, n int) [][]controller.AccelSample {
	var out [][]controller.AccelSample
	for len(samples) > 0 {
		k := min(n, len(samples))
		out = append(out, samples[:k:k])
		samples = samples[k:]
	}
	return out
}

// flushAccels sends every buffered sample. Each batch is stamped with the
// number of samples sent before it in this streaming run.
func (s *Supervisor) flushAccels(conn Conn, buf []controller.AccelSample) error {
	for _, batch := range splitBatches(buf, maxAccelBatch) {
		s.mu.Lock()
		ts := s.accelSent
		s.mu.Unlock()

		if err := s.send(conn, protocol.ClassScoringData, protocol.ScoringData(batch, ts)); err != nil {
			return &consoleError{err: err}
		}

		s.mu.Lock()
		s.accelSent += len(batch)
		s.mu.Unlock()
		metrics.AccelBatches.Inc()
		metrics.AccelSamples.Add(float64(len(batch)))
	}
	return nil
}

// frameSleep is the sleep for the next frame: whatever the last frame took
// beyond its own sleep comes off the period.
func frameSleep(period, elapsed, slept time.Duration) time.Duration {
	return max(period-(elapsed-slept), 0)
}

// tickLoop paces accelerometer capture. While streaming is off it keeps
// draining the controller so stale samples never reach the console.
func (s *Supervisor) tickLoop(ctx context.Context, conn Conn) error {
	period := s.opts.FrameDuration
	var (
		buf        []controller.AccelSample
		enabled    int
		frameStart time.Time
		sleep      time.Duration
	)
	for {
		next := period
		if !frameStart.IsZero() {
			next = frameSleep(period, time.Since(frameStart), sleep)
		}
		sleep, frameStart = next, time.Now()
		if err := sleepCtx(ctx, sleep); err != nil {
			return nil
		}

		samples, err := s.ctrl.Accels()
		if err != nil {
			return &deviceError{err: err}
		}

		s.mu.Lock()
		streaming := s.streaming
		s.mu.Unlock()

		if !streaming {
			buf, enabled = buf[:0], 0
			continue
		}
		buf = append(buf, samples...)
		enabled = min(enabled+1, accelWarmupFrames)
		if enabled < accelWarmupFrames {
			continue
		}
		if len(buf) == 0 {
			continue
		}
		if err := s.flushAccels(conn, buf); err != nil {
			return err
		}
		buf = buf[:0]
	}
}

// inputLoop polls the controller once per frame and sends at most one
// command per frame.
func (s *Supervisor) inputLoop(ctx context.Context, conn Conn, log *slog.Logger) error {
	period := s.opts.FrameDuration
	for {
		if err := sleepCtx(ctx, period); err != nil {
			return nil
		}

		events, err := s.ctrl.Events()
		if err != nil {
			return &deviceError{err: err}
		}

		s.mu.Lock()
		allowed, streaming, shortcuts := s.ui.InputAllowed, s.streaming, s.ui.Shortcuts
		s.mu.Unlock()
		if !allowed && !streaming {
			continue
		}

		cmd := protocol.CommandForButtons(events, streaming, shortcuts)
		if cmd == protocol.CommandNone && !streaming {
			cmd = protocol.CommandForStick(s.ctrl.Stick())
		}
		if cmd == protocol.CommandNone {
			continue
		}

		s.mu.Lock()
		class, payload, ok := s.pre.Preprocess(cmd, &s.ui)
		// A screen change may have closed input while we were preprocessing.
		send := ok && s.ui.InputAllowed
		s.mu.Unlock()
		if !send {
			metrics.CommandsSuppressed.Inc()
			log.Debug("command suppressed", "command", cmd.String())
			continue
		}

		log.Debug(">>>", "command", cmd.String(), "class", class)
		if err := s.send(conn, class, payload); err != nil {
			return &consoleError{err: err}
		}
		metrics.CommandsSent.WithLabelValues(class).Inc()

		if err := sleepCtx(ctx, inputCooldownFrames*period); err != nil {
			return nil
		}
		// Presses during the cooldown are not replayed.
		if _, err := s.ctrl.Events(); err != nil {
			return &deviceError{err: err}
		}
	}
}

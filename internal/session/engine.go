package session

// Protocol message engine: the handshake and the dispatch table for inbound
// console messages. Unknown classes and undecodable bodies are logged and
// skipped; only transport failures end the loop.

import (
	"context"
	"fmt"
	"log/slog"

	"joydance-bridge/internal/metrics"
	"joydance-bridge/internal/pairing"
	"joydance-bridge/internal/protocol"
)

func (s *Supervisor) send(conn Conn, class string, payload protocol.Payload) error {
	b, err := protocol.Encode(class, payload)
	if err != nil {
		return err
	}
	if err := conn.WriteText(b); err != nil {
		return fmt.Errorf("send %s: %w", class, err)
	}
	return nil
}

func (s *Supervisor) receiveLoop(ctx context.Context, conn Conn, log *slog.Logger) error {
	hello := protocol.Hello(s.opts.AccelFreqHz, s.opts.AccelLatencyMS, s.opts.AccelMaxRange)
	if err := s.send(conn, protocol.ClassHandshakeHello, hello); err != nil {
		return err
	}

	for {
		frame, err := conn.ReadText()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return &consoleError{err: err}
		}
		msg, err := protocol.Decode(frame)
		if err != nil {
			log.Warn("skipping frame", "error", err)
			continue
		}
		metrics.GameMessages.WithLabelValues(msg.Class).Inc()
		if msg.Class != protocol.ClassPhoneUISetup {
			log.Debug("<<<", "class", msg.Class, "body", string(msg.Body))
		}

		err = s.dispatch(conn, msg, log)
		if s.opts.OnGameMessage != nil {
			s.opts.OnGameMessage(s.serial, msg)
		}
		if err != nil {
			return err
		}
	}
}

// dispatch applies one inbound message. The returned error is always a
// failed reply.
func (s *Supervisor) dispatch(conn Conn, msg protocol.Message, log *slog.Logger) error {
	skip := func(err error) error {
		log.Warn("skipping message", "class", msg.Class, "error", err)
		return nil
	}

	switch msg.Class {
	case protocol.ClassHandshakeContinue:
		var m protocol.PhoneSync
		if err := msg.Into(&m); err != nil {
			return skip(err)
		}
		return s.send(conn, protocol.ClassSync, protocol.EchoPhoneID(m.PhoneID))

	case protocol.ClassSyncEnd:
		var m protocol.PhoneSync
		if err := msg.Into(&m); err != nil {
			return skip(err)
		}
		if err := s.send(conn, protocol.ClassSyncEnd, protocol.EchoPhoneID(m.PhoneID)); err != nil {
			return err
		}
		s.setState(pairing.StateConnected)

	case protocol.ClassProfileUIData:
		var m protocol.ProfileData
		if err := msg.Into(&m); err != nil {
			return skip(err)
		}
		s.notify(profileUpdate(m.Profile()))

	case protocol.ClassPlaySound:
		var m protocol.PlaySound
		if err := msg.Into(&m); err != nil {
			return skip(err)
		}
		s.queueRumble(m.SoundIndex)

	case protocol.ClassEnableAccel:
		s.mu.Lock()
		s.streaming = true
		s.accelSent = 0
		s.mu.Unlock()

	case protocol.ClassDisableAccel:
		s.mu.Lock()
		s.streaming = false
		s.mu.Unlock()

	case protocol.ClassInputSetup:
		var m protocol.InputSetupCommand
		if err := msg.Into(&m); err != nil {
			return skip(err)
		}
		s.mu.Lock()
		err := s.ui.ApplyInputSetup(m, s.opts.Version)
		s.mu.Unlock()
		if err != nil {
			return skip(err)
		}

	case protocol.ClassEnableCarousel, protocol.ClassEnableLobbyStart, protocol.ClassShortcutSetup:
		var m protocol.Toggle
		if err := msg.Into(&m); err != nil {
			return skip(err)
		}
		s.mu.Lock()
		s.ui.ApplyToggle(m)
		s.mu.Unlock()

	case protocol.ClassPhoneUIShortcut:
		var m protocol.PhoneUIShortcuts
		if err := msg.Into(&m); err != nil {
			return skip(err)
		}
		s.mu.Lock()
		unknown := s.ui.ApplyShortcuts(m)
		s.mu.Unlock()
		for _, u := range unknown {
			log.Warn("unknown shortcut", "shortcut", u)
		}

	case protocol.ClassOpenPhoneKeyboard:
		s.mu.Lock()
		s.ui.SearchOpen = true
		s.mu.Unlock()

	case protocol.ClassCancelKeyboard, protocol.ClassClosePopup:
		s.mu.Lock()
		s.ui.SearchOpen = false
		s.mu.Unlock()

	case protocol.ClassPhoneUISetup:
		var m protocol.PhoneUISetup
		if err := msg.Into(&m); err != nil {
			return skip(err)
		}
		s.mu.Lock()
		skipped, err := s.ui.ApplySetup(m, s.opts.Version)
		s.mu.Unlock()
		for _, sc := range skipped {
			log.Warn("error adding shortcut", "command", sc)
		}
		if err != nil {
			return skip(err)
		}

	default:
		log.Debug("unhandled message class", "class", msg.Class)
	}
	return nil
}

func profileUpdate(p protocol.Profile) Update {
	return Update{
		"player_name":        p.PlayerName,
		"player_id":          p.PlayerID,
		"player_color":       p.PlayerColor,
		"player_image":       p.PlayerImage,
		"skin_image":         p.SkinImage,
		"additional_message": p.AdditionalMessage,
	}
}

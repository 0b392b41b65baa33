package session

import (
	"context"
	"time"

	"joydance-bridge/internal/controller"
)

// pulse vibrates for a duration then stops; pause is the silence after it.
type pulse struct {
	freq     float64
	amp      float64
	duration time.Duration
	pause    time.Duration
}

// rumblePattern maps a console sound index to a vibration pattern.
//
//	0    coach selection
//	1-5  star ratings, stronger and longer with more stars
//	6    megastar, three rising pulses
//	7    star move
//	8    start dance, double pulse
func rumblePattern(soundIndex int) []pulse {
	switch {
	case soundIndex == 0:
		return []pulse{{freq: 160, amp: 0.3, duration: 150 * time.Millisecond}}
	case soundIndex >= 1 && soundIndex <= 5:
		return []pulse{{
			freq:     240,
			amp:      0.3 + float64(soundIndex)*0.12,
			duration: 100*time.Millisecond + time.Duration(soundIndex)*50*time.Millisecond,
		}}
	case soundIndex == 6:
		var out []pulse
		for _, amp := range []float64{0.5, 0.7, 1.0} {
			out = append(out, pulse{freq: 320, amp: amp, duration: 150 * time.Millisecond, pause: 80 * time.Millisecond})
		}
		return out
	case soundIndex == 7:
		return []pulse{{freq: 280, amp: 0.8, duration: 200 * time.Millisecond}}
	case soundIndex == 8:
		return []pulse{
			{freq: 240, amp: 0.6, duration: 150 * time.Millisecond, pause: 100 * time.Millisecond},
			{freq: 320, amp: 0.8, duration: 200 * time.Millisecond},
		}
	}
	return nil
}

// playPattern runs a pattern to completion unless ctx ends first. The motor
// is always stopped after each pulse.
func playPattern(ctx context.Context, c controller.Controller, pattern []pulse) error {
	for _, p := range pattern {
		if err := c.Rumble(p.freq, p.amp); err != nil {
			return err
		}
		err := sleepCtx(ctx, p.duration)
		if serr := c.StopRumble(); serr != nil && err == nil {
			err = serr
		}
		if err != nil {
			return err
		}
		if p.pause > 0 {
			if err := sleepCtx(ctx, p.pause); err != nil {
				return err
			}
		}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// rumbleWorker plays queued sound indices one after another so pattern
// sleeps never hold up message dispatch.
func (s *Supervisor) rumbleWorker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case idx := <-s.rumbleQ:
			if !s.ctrl.RumbleEnabled() {
				continue
			}
			if err := playPattern(ctx, s.ctrl, rumblePattern(idx)); err != nil && ctx.Err() == nil {
				s.log.Debug("rumble failed", "sound_index", idx, "error", err)
			}
		}
	}
}

// queueRumble never blocks; patterns are dropped while the queue is full.
func (s *Supervisor) queueRumble(soundIndex int) {
	select {
	case s.rumbleQ <- soundIndex:
	default:
		s.log.Debug("rumble queue full, dropping pattern", "sound_index", soundIndex)
	}
}

package world

import (
	"context"
	"time"
)

// Run steps the world at TickRateHz until the episode ends, Stop is called or ctx is
// done. It returns nil unless ctx ends the run. Open actions are settled either way.
func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.Finish()
			return ctx.Err()
		case <-w.stop:
			w.Finish()
			return nil
		case <-ticker.C:
			if _, _, err := w.StepOnce(); err != nil {
				return nil
			}
			if w.over {
				return nil
			}
		}
	}
}

// RunToEnd steps as fast as possible. ctx and Stop are checked between ticks.
func (w *World) RunToEnd(ctx context.Context) error {
	for !w.over {
		select {
		case <-ctx.Done():
			w.Finish()
			return ctx.Err()
		case <-w.stop:
			w.Finish()
			return nil
		default:
		}
		w.stepInternal()
	}
	return nil
}

func (w *World) Stop() { w.stopOnce.Do(func() { close(w.stop) }) }

// StepOnce advances the world by a single tick using the same ordering semantics as Run.
// It is primarily intended for deterministic replays/tests.
func (w *World) StepOnce() (tick uint64, digest string, err error) {
	if w.over {
		return w.tick.Load(), "", ErrEpisodeOver
	}
	tick = w.tick.Load()
	w.stepInternal()
	return tick, w.lastDigest, nil
}

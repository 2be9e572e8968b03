package world

import (
	"time"

	"sugarscape.ai/internal/sim/agent"
	"sugarscape.ai/internal/sim/geom"
)

const (
	OverExtinct  = "population below minimum"
	OverMaxTicks = "max ticks reached"
)

// stepInternal advances one tick. Agents act in id order; everything an agent changes
// is visible to the agents after it in the same tick.
func (w *World) stepInternal() {
	stepStart := time.Now()
	nowTick := w.tick.Load()

	w.tickDecisions = w.tickDecisions[:0]
	w.tickDeaths = w.tickDeaths[:0]
	w.tickPatches = w.tickPatches[:0]
	w.tickFalse = w.tickFalse[:0]

	for _, a := range w.agents {
		a.Step(w, nowTick)
	}
	w.removeDead(nowTick)

	rc := w.cfg.Resources
	if nowTick > 0 && rc.NewPatchEvery > 0 && nowTick%rc.NewPatchEvery == 0 {
		if loc, ok := w.injectPatch(nowTick); ok {
			w.tickPatches = append(w.tickPatches, loc)
			w.stats.RecordPatch(nowTick)
		}
	}
	if nowTick > 0 && rc.RegenEvery > 0 && nowTick%rc.RegenEvery == 0 {
		w.regenerate()
	}

	w.checkOver(nowTick)

	digest := w.stateDigest(nowTick)
	w.lastDigest = digest
	if w.tickLogger != nil {
		entry := TickLogEntry{
			Tick:       nowTick,
			Alive:      len(w.agents),
			Decisions:  append([]agent.DecisionRecord(nil), w.tickDecisions...),
			Deaths:     append([]int(nil), w.tickDeaths...),
			NewPatches: append([]geom.Loc(nil), w.tickPatches...),
			NewFalse:   append([]geom.Loc(nil), w.tickFalse...),
			Over:       w.overReason,
			Digest:     digest,
		}
		if err := w.tickLogger.WriteTick(entry); err != nil {
			w.log.Printf("tick %d: tick log: %v", nowTick, err)
		}
	}

	// Snapshot every N ticks, starting after tick 0, and always at the end.
	if w.snapshotSink != nil {
		every := uint64(w.cfg.SnapshotEveryTicks)
		if w.over || (nowTick != 0 && every > 0 && nowTick%every == 0) {
			snap := w.ExportSnapshot(nowTick)
			select {
			case w.snapshotSink <- snap:
			default:
				// Drop snapshot if sink is backed up.
			}
		}
	}

	if w.observer != nil {
		w.observer.ObserveTick(w.frame(nowTick, digest))
	}

	stepMS := float64(time.Since(stepStart).Microseconds()) / 1000.0
	nextTick := w.tick.Add(1)
	w.metrics.Store(w.computeMetrics(nextTick, stepMS))
}

// removeDead drops agents that died this tick, keeps their summary and tells the
// survivors to forget their suppression state for them.
func (w *World) removeDead(nowTick uint64) {
	alive := w.agents[:0]
	var dead []*agent.Agent
	for _, a := range w.agents {
		if a.Alive() {
			alive = append(alive, a)
			continue
		}
		dead = append(dead, a)
	}
	if len(dead) == 0 {
		return
	}
	for i := len(alive); i < len(w.agents); i++ {
		w.agents[i] = nil
	}
	w.agents = alive
	for _, d := range dead {
		w.departed = append(w.departed, summarize(d, nowTick, w.eaten[d.ID]))
		w.tickDeaths = append(w.tickDeaths, d.ID)
		w.counters.Dead++
		w.stats.RecordDeath(nowTick)
		for _, a := range w.agents {
			a.ForgetPeer(d.ID)
		}
	}
}

func (w *World) checkOver(nowTick uint64) {
	if w.over {
		return
	}
	switch {
	case len(w.agents) == 0 || len(w.agents) < w.cfg.MinAlive:
		w.over, w.overReason = true, OverExtinct
	case nowTick+1 >= w.cfg.MaxTicks:
		w.over, w.overReason = true, OverMaxTicks
	default:
		return
	}
	for _, a := range w.agents {
		a.Abandon(nowTick)
	}
	w.log.Printf("episode %s over at tick %d: %s (alive=%d)", w.cfg.ID, nowTick, w.overReason, len(w.agents))
}

// Finish settles every survivor's open action as of the last completed tick. Unlike the
// end of an episode it leaves the world runnable. Settling is idempotent.
func (w *World) Finish() {
	now := w.tick.Load()
	if now > 0 {
		now--
	}
	for _, a := range w.agents {
		a.Abandon(now)
	}
}

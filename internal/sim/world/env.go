package world

import (
	"log"

	"github.com/paulmach/orb"

	"sugarscape.ai/internal/sim/agent"
	"sugarscape.ai/internal/sim/geom"
	"sugarscape.ai/internal/sim/policy"
)

var _ agent.Env = (*World)(nil)

func (w *World) Arena() geom.Arena   { return w.cfg.Arena }
func (w *World) Population() int     { return w.cfg.NumAgents }
func (w *World) Logger() *log.Logger { return w.log }

func (w *World) NearestResource(p orb.Point, radius float64) (geom.Loc, bool) {
	got := w.index.Nearest(p, radius, func(c orb.Pointer) bool {
		return !c.(*Patch).Depleted()
	})
	if got == nil {
		return geom.Loc{}, false
	}
	if geom.Distance(got.Point(), p) >= radius {
		return geom.Loc{}, false
	}
	return got.(*Patch).Loc, true
}

func (w *World) ResourceAt(loc geom.Loc) bool {
	return w.coveringPatch(loc) != nil
}

func (w *World) Consume(loc geom.Loc) bool {
	p := w.coveringPatch(loc)
	if p == nil {
		return false
	}
	p.Capacity--
	p.Consumed++
	return true
}

func (w *World) ClearOfResources(loc geom.Loc, minDist float64) bool {
	pt := loc.Point()
	for _, p := range w.patches {
		if geom.Distance(p.Point(), pt) < minDist {
			return false
		}
	}
	return true
}

func (w *World) Neighbors(a *agent.Agent, radius float64) []*agent.Agent {
	var out []*agent.Agent
	for _, o := range w.agents {
		if o == a || !o.Alive() {
			continue
		}
		if geom.Distance(o.Pos, a.Pos) <= radius {
			out = append(out, o)
		}
	}
	return out
}

func (w *World) IsHistoricalFalse(loc geom.Loc) bool {
	_, ok := w.historicalFalse[loc]
	return ok
}

func (w *World) RegisterFalseLocation(loc geom.Loc) {
	if _, ok := w.historicalFalse[loc]; ok {
		return
	}
	w.historicalFalse[loc] = struct{}{}
	w.tickFalse = append(w.tickFalse, loc)
}

func (w *World) RecordDecision(rec agent.DecisionRecord) {
	explore := rec.Kind == policy.KindExplore
	if explore {
		w.counters.Explores++
	} else {
		w.counters.Exploits++
		if rec.TruePositive {
			w.counters.TruePositives++
		}
		if rec.FalsePositive {
			w.counters.FalsePositives++
		}
	}
	w.decisions = append(w.decisions, rec)
	w.tickDecisions = append(w.tickDecisions, rec)
	w.stats.RecordDecision(rec.Tick, explore)
}

func (w *World) RecordConsumption(agentID int) {
	w.counters.Consumed++
	w.eaten[agentID]++
	w.stats.RecordConsumption(w.tick.Load())
}

package world

import (
	"sugarscape.ai/internal/sim/agent"
	"sugarscape.ai/internal/sim/geom"
)

// TickFrame is what observers see after each tick. It holds copies only.
type TickFrame struct {
	Tick    uint64         `json:"tick"`
	Digest  string         `json:"digest"`
	Agents  []AgentFrame   `json:"agents"`
	Patches []ResourceInfo `json:"patches"`
	Deaths  []int          `json:"deaths,omitempty"`
	// Decisions taken during this tick.
	Decisions []agent.DecisionRecord `json:"decisions,omitempty"`
	Counters  Counters               `json:"counters"`
	Over      string                 `json:"over,omitempty"`
}

type AgentFrame struct {
	ID               int       `json:"id"`
	X                float64   `json:"x"`
	Y                float64   `json:"y"`
	Heading          float64   `json:"heading"`
	Health           float64   `json:"health"`
	FalseBroadcaster bool      `json:"false_broadcaster,omitempty"`
	Phase            string    `json:"phase"`
	Target           *geom.Loc `json:"target,omitempty"`
	FalseClaim       *geom.Loc `json:"false_claim,omitempty"`
}

func (w *World) frame(nowTick uint64, digest string) TickFrame {
	f := TickFrame{
		Tick:      nowTick,
		Digest:    digest,
		Patches:   w.Resources(),
		Deaths:    append([]int(nil), w.tickDeaths...),
		Decisions: append([]agent.DecisionRecord(nil), w.tickDecisions...),
		Counters:  w.counters,
		Over:      w.overReason,
	}
	f.Agents = make([]AgentFrame, 0, len(w.agents))
	for _, a := range w.agents {
		ph := a.Phase()
		af := AgentFrame{
			ID:               a.ID,
			X:                a.Pos[0],
			Y:                a.Pos[1],
			Heading:          a.Heading,
			Health:           a.Health,
			FalseBroadcaster: a.FalseBroadcaster,
			Phase:            ph.Kind.String(),
		}
		if ph.HasTarget() {
			t := ph.Target
			af.Target = &t
		}
		if l, ok := a.FalseClaim(); ok {
			af.FalseClaim = &l
		}
		f.Agents = append(f.Agents, af)
	}
	return f
}

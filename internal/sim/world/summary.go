package world

import (
	"sort"

	"sugarscape.ai/internal/sim/agent"
	"sugarscape.ai/internal/sim/world/logic/mathx"
)

type AgentSummary struct {
	ID               int               `json:"id"`
	FalseBroadcaster bool              `json:"false_broadcaster,omitempty"`
	Lifespan         uint64            `json:"lifespan"`
	TotalReward      float64           `json:"total_reward"`
	Alive            bool              `json:"alive"`
	DiedAt           uint64            `json:"died_at,omitempty"`
	Eaten            uint64            `json:"eaten"`
	Actions          agent.ActionStats `json:"actions"`
}

// EpisodeSummary is the end-of-run report.
type EpisodeSummary struct {
	ID          string         `json:"id"`
	Seed        uint64         `json:"seed"`
	Policy      string         `json:"policy"`
	Ticks       uint64         `json:"ticks"`
	Alive       int            `json:"alive"`
	Reason      string         `json:"reason,omitempty"`
	Counters    Counters       `json:"counters"`
	AvgLifespan float64        `json:"avg_lifespan"`
	Patches     int            `json:"patches"`
	Agents      []AgentSummary `json:"agents"`
}

func summarize(a *agent.Agent, diedAt, eaten uint64) AgentSummary {
	return AgentSummary{
		ID:               a.ID,
		FalseBroadcaster: a.FalseBroadcaster,
		Lifespan:         a.Lifespan,
		TotalReward:      a.TotalReward,
		Alive:            a.Alive(),
		DiedAt:           diedAt,
		Eaten:            eaten,
		Actions:          a.Stats(),
	}
}

// AverageLifespan combines departed and living agents, with outliers beyond 1.5 IQR
// removed.
func (w *World) AverageLifespan() float64 {
	spans := make([]float64, 0, len(w.departed)+len(w.agents))
	for _, d := range w.departed {
		spans = append(spans, float64(d.Lifespan))
	}
	for _, a := range w.agents {
		spans = append(spans, float64(a.Lifespan))
	}
	return mathx.IQRMean(spans)
}

func (w *World) Summary() EpisodeSummary {
	s := EpisodeSummary{
		ID:          w.cfg.ID,
		Seed:        w.cfg.Seed,
		Policy:      w.cfg.PolicyKind,
		Ticks:       w.tick.Load(),
		Alive:       len(w.agents),
		Reason:      w.overReason,
		Counters:    w.counters,
		AvgLifespan: w.AverageLifespan(),
		Patches:     len(w.patches),
	}
	s.Agents = append(s.Agents, w.departed...)
	for _, a := range w.agents {
		s.Agents = append(s.Agents, summarize(a, 0, w.eaten[a.ID]))
	}
	sort.Slice(s.Agents, func(i, j int) bool { return s.Agents[i].ID < s.Agents[j].ID })
	return s
}

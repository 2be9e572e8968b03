package world

import (
	"sugarscape.ai/internal/sim/agent"
	"sugarscape.ai/internal/sim/geom"
	"sugarscape.ai/internal/sim/tuning"
)

type WorldConfig struct {
	ID         string
	Seed       uint64
	TickRateHz int

	Arena             geom.Arena
	NumAgents         int
	FalseBroadcasters int
	Agent             agent.Config

	Resources ResourceConfig

	MaxTicks uint64
	MinAlive int

	// Operational parameters. These are included in snapshots for deterministic replay.
	SnapshotEveryTicks int
	PolicyKind         string
	Tuning             tuning.Tuning
}

type ResourceConfig struct {
	InitialPadding   float64
	PatchSize        float64
	Capacity         int
	Radius           float64
	NewPatchEvery    uint64
	MinPatchDistance float64
	MinFalseDistance float64
	Attempts         int
	RegenEvery       uint64
}

// ConfigFromTuning maps a validated tuning document onto a world config.
func ConfigFromTuning(id string, t tuning.Tuning) WorldConfig {
	ag := t.Agents
	return WorldConfig{
		ID:                id,
		Seed:              t.Seed,
		TickRateHz:        t.TickRateHz,
		Arena:             geom.Arena{Width: t.Arena.Width, Height: t.Arena.Height},
		NumAgents:         ag.Count,
		FalseBroadcasters: ag.FalseBroadcasters,
		Agent: agent.Config{
			Speed:               ag.Speed,
			TurnAngle:           ag.TurnAngle,
			InitialHealth:       ag.InitialHealth,
			MaxHealth:           ag.MaxHealth,
			Decay:               ag.Decay,
			FalseDecay:          ag.FalseDecay,
			EatAmount:           ag.EatAmount,
			DetectionRadius:     ag.DetectionRadius,
			CommunicationRadius: ag.CommunicationRadius,
			LingerTicks:         uint64(ag.LingerTicks),
			DecisionMean:        ag.DecisionInterval.Mean,
			DecisionStd:         ag.DecisionInterval.Std,
			DecisionMin:         uint64(ag.DecisionInterval.Min),
			MaxCount:            t.Gossip.MaxCount,
			RecencyDecay:        t.Gossip.RecencyDecay,
			FalsePadding:        t.FalseClaims.Padding,
			FalseMinDistance:    t.FalseClaims.MinDistance,
			FalseHoldTicks:      uint64(t.FalseClaims.HoldTicks),
			FalseAttempts:       t.FalseClaims.Attempts,
			TimePenalty:         t.Credit.TimePenalty,
			DeathCredit:         t.Credit.DeathCredit,
		},
		Resources: ResourceConfig{
			InitialPadding:   t.Resources.InitialPadding,
			PatchSize:        t.Resources.PatchSize,
			Capacity:         t.Resources.Capacity,
			Radius:           t.Resources.Radius,
			NewPatchEvery:    uint64(t.Resources.NewPatchEvery),
			MinPatchDistance: t.Resources.MinPatchDistance,
			MinFalseDistance: t.Resources.MinFalseDistance,
			Attempts:         t.Resources.Attempts,
			RegenEvery:       uint64(t.Resources.RegenEveryTicks),
		},
		MaxTicks:           uint64(t.Episode.MaxTicks),
		MinAlive:           t.Episode.MinAlive,
		SnapshotEveryTicks: t.SnapshotEveryTicks,
		PolicyKind:         t.Policy.Kind,
		Tuning:             t,
	}
}

func (c *WorldConfig) applyDefaults() {
	if c.ID == "" {
		c.ID = "episode"
	}
	if c.TickRateHz <= 0 {
		c.TickRateHz = 60
	}
	if c.Arena.Width <= 0 {
		c.Arena.Width = 700
	}
	if c.Arena.Height <= 0 {
		c.Arena.Height = 700
	}
	if c.NumAgents <= 0 {
		c.NumAgents = 20
	}
	if c.FalseBroadcasters < 0 {
		c.FalseBroadcasters = 0
	}
	if c.FalseBroadcasters > c.NumAgents {
		c.FalseBroadcasters = c.NumAgents
	}
	c.Resources.applyDefaults()
	if c.MaxTicks == 0 {
		c.MaxTicks = 30000
	}
	if c.MinAlive < 0 {
		c.MinAlive = 0
	}
	if c.SnapshotEveryTicks < 0 {
		c.SnapshotEveryTicks = 0
	}
	if c.PolicyKind == "" {
		c.PolicyKind = "rule"
	}
}

func (rc *ResourceConfig) applyDefaults() {
	if rc.InitialPadding <= 0 {
		rc.InitialPadding = 120
	}
	if rc.PatchSize <= 0 {
		rc.PatchSize = 50
	}
	if rc.Capacity <= 0 {
		rc.Capacity = 70
	}
	if rc.Radius <= 0 {
		rc.Radius = 20
	}
	if rc.MinPatchDistance <= 0 {
		rc.MinPatchDistance = 180
	}
	if rc.MinFalseDistance <= 0 {
		rc.MinFalseDistance = 150
	}
	if rc.Attempts <= 0 {
		rc.Attempts = 100
	}
}

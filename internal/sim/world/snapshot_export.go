package world

import (
	"sugarscape.ai/internal/persistence/snapshot"
	"sugarscape.ai/internal/sim/agent"
	"sugarscape.ai/internal/sim/geom"
)

func (w *World) ExportSnapshot(nowTick uint64) snapshot.SnapshotV1 {
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version:   snapshot.Version,
			EpisodeID: w.cfg.ID,
			Tick:      nowTick,
			Digest:    w.stateDigest(nowTick),
		},
		Seed:       w.cfg.Seed,
		PolicyKind: w.cfg.PolicyKind,
		Tuning:     w.cfg.Tuning,
		Counters: snapshot.CountersV1{
			TruePositives:  w.counters.TruePositives,
			FalsePositives: w.counters.FalsePositives,
			Explores:       w.counters.Explores,
			Exploits:       w.counters.Exploits,
			Consumed:       w.counters.Consumed,
			Dead:           w.counters.Dead,
			PatchesAdded:   w.counters.PatchesAdded,
		},
	}
	for _, p := range w.patches {
		snap.Patches = append(snap.Patches, snapshot.PatchV1{
			ID:       p.ID,
			X:        p.Loc.X,
			Y:        p.Loc.Y,
			Radius:   p.Radius,
			Capacity: p.Capacity,
			Initial:  p.Initial,
			Created:  p.Created,
		})
	}
	for _, a := range w.agents {
		snap.Agents = append(snap.Agents, exportAgent(a))
	}
	for _, d := range w.departed {
		snap.Departed = append(snap.Departed, snapshot.AgentSummaryV1{
			ID:               d.ID,
			FalseBroadcaster: d.FalseBroadcaster,
			Lifespan:         d.Lifespan,
			TotalReward:      d.TotalReward,
			DiedAt:           d.DiedAt,
		})
	}
	for _, l := range w.HistoricalFalse() {
		snap.HistoricalFalse = append(snap.HistoricalFalse, pair(l))
	}
	return snap
}

func exportAgent(a *agent.Agent) snapshot.AgentV1 {
	ph := a.Phase()
	out := snapshot.AgentV1{
		ID:               a.ID,
		X:                a.Pos[0],
		Y:                a.Pos[1],
		Heading:          a.Heading,
		Health:           a.Health,
		Lifespan:         a.Lifespan,
		FalseBroadcaster: a.FalseBroadcaster,
		TotalReward:      a.TotalReward,
		Phase:            ph.Kind.String(),
		ActionOpen:       a.ActionInProgress(),
		NextDecide:       a.NextDecision(),
	}
	if ph.HasTarget() {
		out.Target = pairPtr(ph.Target)
	}
	if l, ok := a.LastVisited(); ok {
		out.LastVisited = pairPtr(l)
	}
	if l, ok := a.FalseClaim(); ok {
		out.FalseClaim = pairPtr(l)
	}
	for _, l := range a.ConfirmedTrueLocs() {
		out.True = append(out.True, pair(l))
	}
	for _, l := range a.ConfirmedFalseLocs() {
		out.False = append(out.False, pair(l))
	}
	for _, it := range a.Ledger().Items() {
		out.Ledger = append(out.Ledger, snapshot.LedgerEntryV1{
			X:         it.Loc.X,
			Y:         it.Loc.Y,
			Accepted:  it.Entry.Accepted,
			Confirmed: it.Entry.Confirmed,
			Rejected:  it.Entry.Rejected,
			LastHeard: it.Entry.LastHeard,
		})
	}
	return out
}

func pair(l geom.Loc) [2]int { return [2]int{l.X, l.Y} }

func pairPtr(l geom.Loc) *[2]int {
	p := pair(l)
	return &p
}

package agent

import (
	"math"

	"sugarscape.ai/internal/sim/geom"
	"sugarscape.ai/internal/sim/gossip"
	"sugarscape.ai/internal/sim/policy"
)

// Decision is what SelectTarget settled on.
type Decision struct {
	Kind policy.CandidateKind
	Loc  geom.Loc
}

// Candidates builds one option per ledger entry the agent has not visited, in random
// order, followed by Explore.
func (a *Agent) Candidates(env Env, now uint64) []policy.Candidate {
	diag := env.Arena().Diagonal()
	if diag <= 0 {
		diag = 1
	}
	var out []policy.Candidate
	a.ledger.Each(func(loc geom.Loc, e gossip.Entry) bool {
		if a.ConfirmedFalse(loc) || a.ConfirmedTrue(loc) {
			return true
		}
		d := geom.Distance(a.Pos, loc.Point())
		age := float64(0)
		if now > e.LastHeard {
			age = float64(now - e.LastHeard)
		}
		out = append(out, policy.Candidate{
			Kind: policy.KindTarget,
			Loc:  loc,
			Features: policy.Features{
				d / diag,
				float64(e.Confirmed) / a.cfg.MaxCount,
				float64(e.Accepted) / a.cfg.MaxCount,
				float64(e.Rejected) / a.cfg.MaxCount,
				math.Exp(-a.cfg.RecencyDecay * age),
			},
			Distance: d,
			Counts:   e,
		})
		return true
	})
	a.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return append(out, policy.Candidate{Kind: policy.KindExplore})
}

// SelectTarget consults the policy once and acts on the answer: a chosen location becomes
// the travel target and is announced as accepted; anything else starts an exploration.
// The new action stays open until its credit is attributed.
func (a *Agent) SelectTarget(env Env, now uint64) Decision {
	cands := a.Candidates(env, now)
	idx, tok := a.pol.Choose(a.ID, a.StateVector(env), cands, a.rng)

	choice := policy.Candidate{Kind: policy.KindExplore}
	if idx >= 0 && idx < len(cands) {
		choice = cands[idx]
	}
	// Never trust a policy with a location already visited.
	if choice.Kind == policy.KindTarget && (a.ConfirmedFalse(choice.Loc) || a.ConfirmedTrue(choice.Loc)) {
		choice = policy.Candidate{Kind: policy.KindExplore}
	}

	rec := DecisionRecord{Tick: now, Agent: a.ID, Kind: choice.Kind}
	if choice.Kind == policy.KindTarget {
		rec.Loc = choice.Loc
		rec.Distance = choice.Distance
		rec.Counts = choice.Counts
		rec.Predominant, _ = choice.Counts.Predominant()
		rec.IsFalse = env.IsHistoricalFalse(choice.Loc)
		rec.TruePositive = env.ResourceAt(choice.Loc)
		rec.FalsePositive = !rec.TruePositive && rec.IsFalse

		a.openAction(now, policy.KindTarget, choice.Loc, tok)
		a.phase = traveling(choice.Loc, FromLedger)
		a.outward = gossip.Accepted
		a.tell(env, choice.Loc, gossip.Accepted, now)
	} else {
		a.openAction(now, policy.KindExplore, geom.Loc{}, tok)
		a.phase = exploring()
	}
	env.RecordDecision(rec)
	return Decision{Kind: choice.Kind, Loc: choice.Loc}
}

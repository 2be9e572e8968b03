// Package agent implements one forager: perception, gossip, target decisions,
// travel and the credit bookkeeping that feeds decision policies.
package agent

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/paulmach/orb"

	"sugarscape.ai/internal/sim/geom"
	"sugarscape.ai/internal/sim/gossip"
	"sugarscape.ai/internal/sim/policy"
)

type falseClaim struct {
	Loc   geom.Loc
	Until uint64
}

type Agent struct {
	ID               int
	Pos              orb.Point
	Heading          float64
	Health           float64
	Lifespan         uint64
	FalseBroadcaster bool
	TotalReward      float64

	cfg *Config
	pol policy.Policy
	rng *rand.Rand

	phase       Phase
	lastVisited geom.Loc
	hasVisited  bool

	confirmedTrue  map[geom.Loc]struct{}
	confirmedFalse map[geom.Loc]struct{}

	ledger *gossip.Ledger
	sup    *gossip.Suppression

	// What the continuous broadcast said last tick.
	outward gossip.Characteristic

	claim     *falseClaim
	lastClaim geom.Loc
	hadClaim  bool

	action       *Action
	nextDecision uint64
	stats        ActionStats
}

// New places an agent at pos. cfg is shared by the whole population and must not be
// mutated afterwards; zero fields take defaults.
func New(id int, pos orb.Point, cfg *Config, pol policy.Policy, rng *rand.Rand, falseBroadcaster bool) *Agent {
	if cfg == nil {
		c := DefaultConfig()
		cfg = &c
	}
	cfg.applyDefaults()
	if pol == nil {
		pol = policy.RuleBased{}
	}
	a := &Agent{
		ID:               id,
		Pos:              pos,
		Heading:          rng.Float64() * 2 * math.Pi,
		Health:           cfg.InitialHealth,
		FalseBroadcaster: falseBroadcaster,
		cfg:              cfg,
		pol:              pol,
		rng:              rng,
		phase:            idle(),
		confirmedTrue:    map[geom.Loc]struct{}{},
		confirmedFalse:   map[geom.Loc]struct{}{},
		ledger:           gossip.NewLedger(),
		sup:              gossip.NewSuppression(),
	}
	a.nextDecision = a.decisionInterval()
	return a
}

func (a *Agent) PeerID() int { return a.ID }

func (a *Agent) Alive() bool { return a.Health > 0 }

// NeedsToEat is true below the starting health.
func (a *Agent) NeedsToEat() bool { return a.Health < a.cfg.InitialHealth }

func (a *Agent) Phase() Phase                     { return a.phase }
func (a *Agent) Ledger() *gossip.Ledger           { return a.ledger }
func (a *Agent) Suppression() *gossip.Suppression { return a.sup }
func (a *Agent) Stats() ActionStats               { return a.stats }
func (a *Agent) ActionInProgress() bool           { return a.action != nil }
func (a *Agent) NextDecision() uint64             { return a.nextDecision }

// CurrentAction returns a copy of the open action, if any.
func (a *Agent) CurrentAction() (Action, bool) {
	if a.action == nil {
		return Action{}, false
	}
	return *a.action, true
}

func (a *Agent) LastVisited() (geom.Loc, bool) { return a.lastVisited, a.hasVisited }

// FalseClaim returns the fabricated location currently being spread.
func (a *Agent) FalseClaim() (geom.Loc, bool) {
	if a.claim == nil {
		return geom.Loc{}, false
	}
	return a.claim.Loc, true
}

func (a *Agent) ConfirmedTrue(loc geom.Loc) bool {
	_, ok := a.confirmedTrue[loc]
	return ok
}

func (a *Agent) ConfirmedFalse(loc geom.Loc) bool {
	_, ok := a.confirmedFalse[loc]
	return ok
}

func sortedLocs(m map[geom.Loc]struct{}) []geom.Loc {
	out := make([]geom.Loc, 0, len(m))
	for l := range m {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

func (a *Agent) ConfirmedTrueLocs() []geom.Loc  { return sortedLocs(a.confirmedTrue) }
func (a *Agent) ConfirmedFalseLocs() []geom.Loc { return sortedLocs(a.confirmedFalse) }

// ReceiveBroadcast is the only way another agent mutates this one. Claims about a
// location this agent has confirmed false are refused.
func (a *Agent) ReceiveBroadcast(loc geom.Loc, prev, next gossip.Characteristic, now uint64) bool {
	if a.ConfirmedFalse(loc) {
		return false
	}
	a.ledger.Apply(loc, prev, next, now)
	return true
}

// ForgetPeer drops suppression records for an agent that left the arena.
func (a *Agent) ForgetPeer(id int) { a.sup.ForgetPeer(id) }

func (a *Agent) markTrue(loc geom.Loc) {
	delete(a.confirmedFalse, loc)
	a.confirmedTrue[loc] = struct{}{}
	assertf(!a.ConfirmedFalse(loc), "agent %d: %v in both confirmed sets", a.ID, loc)
}

func (a *Agent) markFalse(loc geom.Loc) {
	delete(a.confirmedTrue, loc)
	a.confirmedFalse[loc] = struct{}{}
	a.ledger.Remove(loc)
	assertf(!a.ConfirmedTrue(loc), "agent %d: %v in both confirmed sets", a.ID, loc)
}

// decisionInterval draws from N(mean, std) clipped below at the configured floor.
func (a *Agent) decisionInterval() uint64 {
	v := a.cfg.DecisionMean + a.rng.NormFloat64()*a.cfg.DecisionStd
	if v < float64(a.cfg.DecisionMin) {
		return a.cfg.DecisionMin
	}
	return uint64(v)
}

func (a *Agent) scheduleDecision(now uint64) {
	a.nextDecision = now + a.decisionInterval()
}

// StateVector is the agent's view of itself handed to policies.
func (a *Agent) StateVector(env Env) policy.State {
	ar := env.Arena()
	pop := env.Population()
	if pop <= 0 {
		pop = 1
	}
	nearby := len(env.Neighbors(a, a.cfg.DetectionRadius))
	var s policy.State
	s[0] = a.Health / a.cfg.MaxHealth
	s[1] = float64(nearby) / float64(pop)
	if ar.Width > 0 {
		s[2] = a.Pos[0] / ar.Width
	}
	if ar.Height > 0 {
		s[3] = a.Pos[1] / ar.Height
	}
	return s
}

package agent

import (
	"github.com/paulmach/orb"

	"sugarscape.ai/internal/sim/geom"
	"sugarscape.ai/internal/sim/gossip"
	"sugarscape.ai/internal/sim/policy"
)

// Step runs one tick for the agent: perception, broadcast, decision, movement and
// arrival, linger, vitals and finally death. Nothing here fails; a dead agent is left
// with its action closed and should be removed by the caller.
func (a *Agent) Step(env Env, now uint64) {
	if !a.Alive() {
		return
	}
	a.perceive(env, now)
	a.broadcast(env, now)
	if a.FalseBroadcaster {
		a.spreadFalseClaim(env, now)
	}
	a.decide(env, now)
	a.move(env, now)
	a.linger(env, now)
	a.vitals(env)

	if !a.Alive() {
		a.closeAction(now, Died)
	}
}

// perceive lets a nearby resource take over when the agent is hungry and either has no
// target or is following a communicated one. Lingering agents do not look around.
func (a *Agent) perceive(env Env, now uint64) {
	switch a.phase.Kind {
	case PhaseArrived:
		return
	case PhaseTraveling:
		if a.phase.Source == FromPerception {
			return
		}
	}
	if !a.NeedsToEat() {
		return
	}
	loc, ok := env.NearestResource(a.Pos, a.cfg.DetectionRadius)
	if !ok {
		return
	}
	if a.phase.HasTarget() && a.phase.Target == loc {
		return
	}
	if a.phase.HasTarget() && a.action != nil && a.action.Kind == policy.KindTarget {
		a.closeAction(now, Interrupted)
		a.scheduleDecision(now)
	}
	a.phase = traveling(loc, FromPerception)
}

// broadcast is the continuous claim about where the agent is heading or last stood.
func (a *Agent) broadcast(env Env, now uint64) {
	var loc geom.Loc
	switch {
	case a.phase.Kind == PhaseExploring:
		a.outward = gossip.None
		return
	case a.phase.HasTarget():
		loc = a.phase.Target
	case a.hasVisited:
		loc = a.lastVisited
	default:
		a.outward = gossip.None
		return
	}

	c := gossip.Accepted
	switch {
	case a.ConfirmedTrue(loc):
		c = gossip.Confirmed
	case a.ConfirmedFalse(loc):
		c = gossip.Rejected
	}
	a.outward = c
	a.tell(env, loc, c, now)
}

func (a *Agent) tell(env Env, loc geom.Loc, c gossip.Characteristic, now uint64) int {
	peers := env.Neighbors(a, a.cfg.CommunicationRadius)
	if len(peers) == 0 {
		return 0
	}
	recipients := make([]gossip.Recipient, len(peers))
	for i, p := range peers {
		recipients[i] = p
	}
	return gossip.Broadcast(a.sup, recipients, loc, c, now)
}

func (a *Agent) decide(env Env, now uint64) {
	// An exploration runs until the next decision is due, unless it ended at a resource.
	if a.action != nil && a.action.Kind == policy.KindExplore && a.phase.Kind != PhaseArrived && now >= a.nextDecision {
		a.closeAction(now, Completed)
		if a.phase.Kind == PhaseExploring {
			a.phase = idle()
		}
		a.scheduleDecision(now)
		return
	}
	if a.phase.HasTarget() || a.action != nil || !a.NeedsToEat() || now < a.nextDecision {
		return
	}
	a.SelectTarget(env, now)
	a.scheduleDecision(now)
}

func (a *Agent) move(env Env, now uint64) {
	if !a.phase.HasTarget() {
		if a.phase.Kind == PhaseArrived && a.phase.Feeding {
			return
		}
		a.Heading = geom.NormalizeAngle(a.Heading + (a.rng.Float64()*2-1)*a.cfg.TurnAngle)
		a.Pos = geom.Step(a.Pos, a.Heading, a.cfg.Speed)
		return
	}

	target := a.phase.Target.Point()
	if geom.Distance(a.Pos, target) >= a.cfg.Speed {
		a.Heading = geom.Heading(a.Pos, target)
		a.Pos = geom.Step(a.Pos, a.Heading, a.cfg.Speed)
		return
	}
	a.arrive(env, now, a.phase.Target)
}

func (a *Agent) arrive(env Env, now uint64, loc geom.Loc) {
	a.Pos = loc.Point()
	feeding := false
	if env.ResourceAt(loc) {
		a.markTrue(loc)
		if a.NeedsToEat() {
			a.eat(env, loc)
			feeding = a.NeedsToEat() && env.ResourceAt(loc)
		}
	} else {
		a.markFalse(loc)
	}
	a.lastVisited, a.hasVisited = loc, true
	a.phase = arrived(now, feeding)
	a.scheduleDecision(now)
}

func (a *Agent) eat(env Env, loc geom.Loc) bool {
	if !env.Consume(loc) {
		return false
	}
	a.Health += a.cfg.EatAmount
	if a.Health > a.cfg.MaxHealth {
		a.Health = a.cfg.MaxHealth
	}
	env.RecordConsumption(a.ID)
	return true
}

// linger holds the agent for a fixed window after arrival so the outcome shows up in
// its health before the action's credit is settled. A hungry agent standing on a
// resource keeps eating meanwhile.
func (a *Agent) linger(env Env, now uint64) {
	if a.phase.Kind != PhaseArrived {
		return
	}
	if a.phase.Feeding && now > a.phase.Since {
		loc := geom.LocOf(a.Pos)
		if a.NeedsToEat() && a.eat(env, loc) {
			a.phase.Feeding = a.NeedsToEat() && env.ResourceAt(loc)
		} else {
			a.phase.Feeding = false
		}
	}
	if now+1-a.phase.Since < a.cfg.LingerTicks {
		return
	}
	a.closeAction(now, Completed)
	a.phase = idle()
	a.scheduleDecision(now)
}

func (a *Agent) vitals(env Env) {
	if a.FalseBroadcaster {
		a.Health -= a.cfg.FalseDecay
	} else {
		a.Health -= a.cfg.Decay
	}
	if a.Health < 0 {
		a.Health = 0
	}
	a.Lifespan++
	a.Pos = env.Arena().Clamp(a.Pos)
}

func (a *Agent) openAction(now uint64, kind policy.CandidateKind, target geom.Loc, tok policy.Token) {
	assertf(a.action == nil, "agent %d: action opened over an open action", a.ID)
	if a.action != nil {
		a.closeAction(now, Interrupted)
	}
	a.action = &Action{
		Kind:          kind,
		Target:        target,
		Token:         tok,
		Started:       now,
		HealthAtStart: a.Health,
	}
	a.stats.Started++
}

// Credit is the health gained since the action started less a per-tick time penalty.
func (a *Agent) Credit(now uint64) float64 {
	if a.action == nil {
		return 0
	}
	dur := float64(now - a.action.Started)
	return a.Health - a.action.HealthAtStart - a.cfg.TimePenalty*dur
}

// closeAction attributes credit for the open action exactly once. Death pays the
// configured death credit instead of the health delta.
func (a *Agent) closeAction(now uint64, why CloseReason) {
	if a.action == nil {
		return
	}
	reward := a.Credit(now)
	if why == Died {
		reward = a.cfg.DeathCredit
	}
	tok := a.action.Token
	a.action = nil
	a.pol.AttributeCredit(a.ID, tok, reward)
	a.TotalReward += reward

	switch why {
	case Interrupted:
		a.stats.Interrupted++
	case Died:
		a.stats.Died++
	default:
		a.stats.Completed++
	}
}

// Kill drops health to zero and settles any open action. Used when the world removes an
// agent outside its own step.
func (a *Agent) Kill(now uint64) {
	a.Health = 0
	a.closeAction(now, Died)
}

// Place moves the agent without any other side effect.
func (a *Agent) Place(p orb.Point) { a.Pos = p }

// Abandon settles an open action as interrupted. The world calls it on every survivor
// when an episode ends so no credit token is left pending.
func (a *Agent) Abandon(now uint64) {
	a.closeAction(now, Interrupted)
}

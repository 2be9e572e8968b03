package agent

import (
	"github.com/paulmach/orb"

	"sugarscape.ai/internal/sim/geom"
	"sugarscape.ai/internal/sim/gossip"
)

// spreadFalseClaim keeps one fabricated location alive for FalseHoldTicks, claiming it
// confirmed to everyone in range, then retires it and fabricates the next one.
func (a *Agent) spreadFalseClaim(env Env, now uint64) {
	if a.claim != nil && now >= a.claim.Until {
		gossip.Retire(a.sup, a.claim.Loc)
		a.lastClaim, a.hadClaim = a.claim.Loc, true
		a.claim = nil
		return
	}
	if a.claim == nil {
		loc, ok := a.fabricate(env)
		if !ok {
			env.Logger().Printf("agent %d: no false location after %d attempts at tick %d", a.ID, a.cfg.FalseAttempts, now)
			return
		}
		a.claim = &falseClaim{Loc: loc, Until: now + a.cfg.FalseHoldTicks}
		env.RegisterFalseLocation(loc)
	}
	a.tell(env, a.claim.Loc, gossip.Confirmed, now)
}

func (a *Agent) fabricate(env Env) (geom.Loc, bool) {
	ar := env.Arena()
	pad := a.cfg.FalsePadding
	w, h := ar.Width-2*pad, ar.Height-2*pad
	if w < 0 || h < 0 {
		return geom.Loc{}, false
	}
	for i := 0; i < a.cfg.FalseAttempts; i++ {
		p := orb.Point{pad + a.rng.Float64()*w, pad + a.rng.Float64()*h}
		loc := geom.LocOf(p)
		if !env.ClearOfResources(loc, a.cfg.FalseMinDistance) {
			continue
		}
		if a.hadClaim && geom.Distance(loc.Point(), a.lastClaim.Point()) < a.cfg.FalseMinDistance {
			continue
		}
		return loc, true
	}
	return geom.Loc{}, false
}

package world

// ---- Debug/Test Helpers ----
//
// These let black-box tests in sibling packages (internal/sim/worldtest) set up
// preconditions without reaching into world internals. They are not safe to call
// concurrently with Run; drive the world with StepOnce from a single goroutine.

// DebugStateDigest returns the current state digest under the given tick label.
func (w *World) DebugStateDigest(nowTick uint64) string {
	if w == nil {
		return ""
	}
	return w.stateDigest(nowTick)
}

// DebugSetHealth overrides a living agent's health. Zero or less kills it on the spot,
// settling its open action; it is removed at the end of the next tick.
func (w *World) DebugSetHealth(agentID int, health float64) bool {
	a := w.Agent(agentID)
	if a == nil {
		return false
	}
	if health <= 0 {
		a.Kill(w.tick.Load())
		return true
	}
	if max := w.agentCfg.MaxHealth; health > max {
		health = max
	}
	a.Health = health
	return true
}

// DebugDrainPatch empties a patch. It stays on the map but no longer feeds anyone.
func (w *World) DebugDrainPatch(patchID int) bool {
	for _, p := range w.patches {
		if p.ID == patchID {
			p.Capacity = 0
			return true
		}
	}
	return false
}

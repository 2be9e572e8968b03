// Package worldtest drives whole episodes through the world's exported API so tests can
// check episode-level behavior from outside the world package.
package worldtest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sugarscape.ai/internal/persistence/snapshot"
	"sugarscape.ai/internal/sim/policy"
	"sugarscape.ai/internal/sim/tuning"
	world "sugarscape.ai/internal/sim/world"
)

// Harness is a small black-box test helper:
// - Step()/StepFor()/RunToEnd() advance the world via StepOnce()
// - every tick log entry and observer frame is kept in order
// - Snapshot() exports at the last completed tick
type Harness struct {
	T *testing.T
	W *world.World

	Entries []world.TickLogEntry
	Frames  []world.TickFrame
}

type recorder struct{ h *Harness }

func (r recorder) WriteTick(e world.TickLogEntry) error {
	r.h.Entries = append(r.h.Entries, e)
	return nil
}

func (r recorder) ObserveTick(f world.TickFrame) { r.h.Frames = append(r.h.Frames, f) }

// NewHarness builds an episode from tune. pol may be nil to use tune.Policy.Kind.
func NewHarness(t *testing.T, id string, tune tuning.Tuning, pol policy.Policy) *Harness {
	t.Helper()

	w, err := world.New(world.ConfigFromTuning(id, tune), pol, nil)
	require.NoError(t, err)
	h := &Harness{T: t, W: w}
	w.SetTickLogger(recorder{h})
	w.SetObserver(recorder{h})
	return h
}

// Step advances one tick and returns its digest.
func (h *Harness) Step() string {
	h.T.Helper()
	_, d, err := h.W.StepOnce()
	require.NoError(h.T, err, "StepOnce at tick %d", h.W.CurrentTick())
	return d
}

// StepFor advances up to n ticks, stopping early when the episode ends.
func (h *Harness) StepFor(n int) {
	h.T.Helper()
	for i := 0; i < n; i++ {
		if over, _ := h.W.Over(); over {
			return
		}
		h.Step()
	}
}

// RunToEnd steps until the episode is over and returns its summary.
func (h *Harness) RunToEnd() world.EpisodeSummary {
	h.T.Helper()
	for {
		if over, _ := h.W.Over(); over {
			return h.W.Summary()
		}
		h.Step()
	}
}

func (h *Harness) Digests() []string {
	out := make([]string, len(h.Entries))
	for i, e := range h.Entries {
		out[i] = e.Digest
	}
	return out
}

// LastFrame is the observer frame of the last completed tick.
func (h *Harness) LastFrame() world.TickFrame {
	h.T.Helper()
	require.NotEmpty(h.T, h.Frames, "no frames yet")
	return h.Frames[len(h.Frames)-1]
}

// Snapshot exports the episode as of the last completed tick.
func (h *Harness) Snapshot() (tick uint64, snap snapshot.SnapshotV1) {
	h.T.Helper()
	cur := h.W.CurrentTick()
	if cur == 0 {
		return 0, h.W.ExportSnapshot(0)
	}
	tick = cur - 1
	return tick, h.W.ExportSnapshot(tick)
}

func (h *Harness) SetHealth(agentID int, health float64) {
	h.T.Helper()
	require.True(h.T, h.W.DebugSetHealth(agentID, health), "no living agent %d", agentID)
}

func (h *Harness) DrainPatch(patchID int) {
	h.T.Helper()
	require.True(h.T, h.W.DebugDrainPatch(patchID), "no patch %d", patchID)
}

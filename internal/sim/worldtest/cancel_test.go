package worldtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"sugarscape.ai/internal/sim/policy"
	"sugarscape.ai/internal/sim/tuning"
	world "sugarscape.ai/internal/sim/world"
)

func openActions(w *world.World) int {
	n := 0
	for _, a := range w.Agents() {
		if a.ActionInProgress() {
			n++
		}
	}
	return n
}

func requireAllSettled(t *testing.T, sum world.EpisodeSummary) {
	t.Helper()
	for _, a := range sum.Agents {
		require.Equal(t, a.Actions.Started, a.Actions.Closed(), "agent %d", a.ID)
	}
}

func TestCancel_SettlesOpenActions(t *testing.T) {
	tune := tuning.Defaults()
	tune.Seed = 13
	lin := policy.NewLinear(policy.Config{})
	h := NewHarness(t, "cancel", tune, lin)
	h.StepFor(1200)

	over, _ := h.W.Over()
	require.False(t, over)
	last := h.Entries[len(h.Entries)-1]
	require.Equal(t, last.Digest, h.W.DebugStateDigest(last.Tick))
	open := openActions(h.W)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, h.W.RunToEnd(ctx), context.Canceled)

	over, _ = h.W.Over()
	require.False(t, over, "cancelling must not end the episode")
	require.Zero(t, openActions(h.W))
	require.Zero(t, lin.Pending())

	sum := h.W.Summary()
	requireAllSettled(t, sum)
	require.Equal(t, sum.Counters.Explores+sum.Counters.Exploits, lin.Updates())
	if open > 0 {
		require.NotEqual(t, last.Digest, h.W.DebugStateDigest(last.Tick), "settling left the state untouched")
	}
}

func TestStop_SettlesOpenActions(t *testing.T) {
	tune := tuning.Defaults()
	tune.Seed = 14
	lin := policy.NewLinear(policy.Config{})
	h := NewHarness(t, "stop", tune, lin)
	h.StepFor(800)

	h.W.Stop()
	require.NoError(t, h.W.Run(context.Background()))
	require.Zero(t, openActions(h.W))
	require.Zero(t, lin.Pending())
	requireAllSettled(t, h.W.Summary())

	// Settling twice is harmless.
	h.W.Finish()
	require.Zero(t, lin.Pending())
}

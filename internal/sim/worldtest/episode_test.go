package worldtest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sugarscape.ai/internal/sim/policy"
	"sugarscape.ai/internal/sim/tuning"
	world "sugarscape.ai/internal/sim/world"
)

func TestEpisode_BookkeepingInvariants(t *testing.T) {
	tune := tuning.Defaults()
	tune.Seed = 7
	tune.Episode.MaxTicks = 3000
	h := NewHarness(t, "inv", tune, nil)
	sum := h.RunToEnd()

	require.Len(t, h.Entries, int(sum.Ticks))
	require.Len(t, h.Frames, int(sum.Ticks))

	var explores, targets, deaths uint64
	for i, e := range h.Entries {
		require.EqualValues(t, i, e.Tick)
		if i != len(h.Entries)-1 {
			require.Empty(t, e.Over, "episode marked over at tick %d before the last entry", e.Tick)
		}
		for _, d := range e.Decisions {
			require.Equal(t, e.Tick, d.Tick)
			require.False(t, d.TruePositive && d.FalsePositive, "decision both true and false positive: %+v", d)
			if d.Kind == policy.KindExplore {
				explores++
				require.False(t, d.TruePositive || d.FalsePositive, "explore decision classified: %+v", d)
				continue
			}
			targets++
		}
		deaths += uint64(len(e.Deaths))
	}
	c := sum.Counters
	require.Equal(t, c.Explores, explores)
	require.Equal(t, c.Exploits, targets)
	require.LessOrEqual(t, c.TruePositives+c.FalsePositives, c.Exploits)
	require.Equal(t, c.Dead, deaths)

	maxHealth := tune.Agents.MaxHealth
	for _, f := range h.Frames {
		prev := -1
		liars := 0
		for _, a := range f.Agents {
			require.Greater(t, a.ID, prev, "tick %d: agents out of order", f.Tick)
			prev = a.ID
			require.Greater(t, a.Health, 0.0, "tick %d agent %d", f.Tick, a.ID)
			require.LessOrEqual(t, a.Health, maxHealth, "tick %d agent %d", f.Tick, a.ID)
			require.True(t, a.X >= 0 && a.X <= tune.Arena.Width && a.Y >= 0 && a.Y <= tune.Arena.Height,
				"tick %d: agent %d outside the arena at (%.2f,%.2f)", f.Tick, a.ID, a.X, a.Y)
			if a.FalseBroadcaster {
				liars++
			}
		}
		require.LessOrEqual(t, liars, tune.Agents.FalseBroadcasters, "tick %d", f.Tick)
	}
	if first := h.Frames[0]; len(first.Agents) == tune.Agents.Count {
		liars := 0
		for _, a := range first.Agents {
			if a.FalseBroadcaster {
				liars++
			}
		}
		require.Equal(t, tune.Agents.FalseBroadcasters, liars)
	}

	require.Len(t, sum.Agents, tune.Agents.Count)
	var eaten uint64
	for _, a := range sum.Agents {
		require.Equal(t, a.Actions.Started, a.Actions.Closed(), "agent %d left an action open", a.ID)
		if a.Alive {
			require.Zero(t, a.Actions.Died, "living agent %d has a death-closed action", a.ID)
		}
		eaten += a.Eaten
	}
	require.Equal(t, c.Consumed, eaten, "per-agent consumption does not add up")
	patchConsumed := 0
	for _, p := range h.LastFrame().Patches {
		patchConsumed += p.Consumed
	}
	require.EqualValues(t, c.Consumed, patchConsumed, "per-patch consumption does not add up")
	require.NotNil(t, h.W.Policy())
}

func TestEpisode_LinearPolicySettlesEveryToken(t *testing.T) {
	tune := tuning.Defaults()
	tune.Seed = 11
	tune.Episode.MaxTicks = 2500
	lin := policy.NewLinear(policy.Config{})
	h := NewHarness(t, "lin", tune, lin)
	sum := h.RunToEnd()

	require.Zero(t, lin.Pending(), "decisions still waiting for credit after the episode")
	require.Equal(t, sum.Counters.Explores+sum.Counters.Exploits, lin.Updates())
}

func TestEpisode_KilledAgentIsRemovedAndSettled(t *testing.T) {
	tune := tuning.Defaults()
	tune.Seed = 3
	h := NewHarness(t, "kill", tune, nil)
	h.StepFor(10)

	h.SetHealth(4, 0)
	h.Step()

	last := h.Entries[len(h.Entries)-1]
	require.Equal(t, []int{4}, last.Deaths)
	require.Nil(t, h.W.Agent(4), "dead agent still in the roster")
	require.Equal(t, tune.Agents.Count-1, last.Alive)

	var found bool
	for _, a := range h.W.Summary().Agents {
		if a.ID != 4 {
			continue
		}
		found = true
		require.False(t, a.Alive)
		require.Equal(t, last.Tick, a.DiedAt)
		require.EqualValues(t, 10, a.Lifespan)
		require.Equal(t, a.Actions.Started, a.Actions.Closed(), "dead agent left an action open")
	}
	require.True(t, found, "dead agent missing from the summary")
}

func TestEpisode_EndsBelowMinimumPopulation(t *testing.T) {
	tune := tuning.Defaults()
	tune.Seed = 5
	tune.Agents.Count = 6
	tune.Agents.FalseBroadcasters = 1
	tune.Episode.MinAlive = 3
	h := NewHarness(t, "ext", tune, nil)
	h.StepFor(5)

	for id := 0; id < 4; id++ {
		h.SetHealth(id, 0)
	}
	h.Step()

	over, reason := h.W.Over()
	require.True(t, over)
	require.Equal(t, world.OverExtinct, reason)
	last := h.Entries[len(h.Entries)-1]
	require.Equal(t, world.OverExtinct, last.Over)
	require.Equal(t, 2, last.Alive)

	_, _, err := h.W.StepOnce()
	require.ErrorIs(t, err, world.ErrEpisodeOver)
}

func TestEpisode_DrainedPatchesFeedNobody(t *testing.T) {
	tune := tuning.Defaults()
	tune.Seed = 9
	tune.Episode.MaxTicks = 1500
	tune.Resources.NewPatchEvery = 0
	h := NewHarness(t, "drain", tune, nil)
	h.DrainPatch(1)
	h.DrainPatch(2)

	sum := h.RunToEnd()
	require.Zero(t, sum.Counters.Consumed)
	require.Zero(t, sum.Counters.TruePositives, "true positives with no food anywhere")
	for _, p := range h.LastFrame().Patches {
		require.Zero(t, p.Capacity, "patch %d refilled", p.ID)
		require.Zero(t, p.Consumed, "patch %d", p.ID)
	}
}

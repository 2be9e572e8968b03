package worldtest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sugarscape.ai/internal/sim/tuning"
)

func determinismTuning(kind string) tuning.Tuning {
	tune := tuning.Defaults()
	tune.Seed = 42
	tune.Episode.MaxTicks = 4000
	tune.Resources.NewPatchEvery = 500
	tune.Policy.Kind = kind
	return tune
}

func TestDeterminism_SameSeedSameStream(t *testing.T) {
	for _, kind := range []string{"rule", "linear"} {
		t.Run(kind, func(t *testing.T) {
			tune := determinismTuning(kind)
			h1 := NewHarness(t, "a", tune, nil)
			h2 := NewHarness(t, "a", tune, nil)

			s1 := h1.RunToEnd()
			s2 := h2.RunToEnd()

			d1, d2 := h1.Digests(), h2.Digests()
			require.Len(t, d2, len(d1))
			for i := range d1 {
				require.Equal(t, d1[i], d2[i], "digest mismatch at tick %d", i)
			}
			require.Equal(t, s1.Counters, s2.Counters)
			require.Equal(t, s1.Reason, s2.Reason)
			require.Equal(t, s1.Ticks, s2.Ticks)
			require.NotEmpty(t, h1.W.Decisions(), "no decisions in %d ticks", s1.Ticks)
		})
	}
}

func TestDeterminism_SeedChangesEpisode(t *testing.T) {
	a := determinismTuning("rule")
	b := a
	b.Seed = 43

	h1 := NewHarness(t, "a", a, nil)
	h2 := NewHarness(t, "a", b, nil)
	require.NotEqual(t, h1.Step(), h2.Step())
}

func TestDeterminism_EpisodeIDDoesNotMatter(t *testing.T) {
	tune := determinismTuning("rule")
	h1 := NewHarness(t, "first", tune, nil)
	h2 := NewHarness(t, "second", tune, nil)
	h1.StepFor(300)
	h2.StepFor(300)
	require.Equal(t, h1.W.LastDigest(), h2.W.LastDigest())
}

package tuning

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	got, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.Equal(t, Defaults(), got)
}

func TestParse_OverlaysDefaults(t *testing.T) {
	got, err := Parse([]byte(`
seed: 42
agents:
  count: 30
  decision_interval:
    mean: 200
policy:
  kind: linear
`))
	require.NoError(t, err)
	require.EqualValues(t, 42, got.Seed)
	require.Equal(t, 30, got.Agents.Count)
	require.Equal(t, "linear", got.Policy.Kind)
	require.EqualValues(t, 200, got.Agents.DecisionInterval.Mean)
	require.EqualValues(t, 300, got.Agents.DecisionInterval.Min)
	require.Equal(t, 2, got.Agents.FalseBroadcasters, "defaults lost")
	require.EqualValues(t, 700, got.Arena.Width, "defaults lost")
}

func TestParse_EmptyDocument(t *testing.T) {
	got, err := Parse(nil)
	require.NoError(t, err)
	require.Equal(t, Defaults(), got)
}

func TestParse_SchemaRejects(t *testing.T) {
	cases := map[string]string{
		"unknown key":     "arena:\n  depth: 3\n",
		"negative size":   "arena:\n  width: -1\n",
		"bad policy":      "policy:\n  kind: dqn\n",
		"wrong type":      "agents:\n  count: many\n",
		"fractional ints": "episode:\n  max_ticks: 1.5\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestParse_CrossFieldRules(t *testing.T) {
	cases := map[string]string{
		"too many liars": "agents:\n  count: 2\n  false_broadcasters: 3\nepisode:\n  min_alive: 1\n",
		"health cap":     "agents:\n  initial_health: 200\n",
		"min alive":      "agents:\n  count: 2\n  false_broadcasters: 0\n",
		"cramped arena":  "arena:\n  width: 100\n  height: 100\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoad_ShippedConfig(t *testing.T) {
	p := filepath.Join("..", "..", "..", "configs", "tuning.yaml")
	if _, err := os.Stat(p); err != nil {
		t.Skipf("no shipped config: %v", err)
	}
	got, err := Load(p)
	require.NoError(t, err, "Load(%s)", p)
	require.NoError(t, got.Validate())
}

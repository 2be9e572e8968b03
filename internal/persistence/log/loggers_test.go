package log

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sugarscape.ai/internal/sim/agent"
	"sugarscape.ai/internal/sim/geom"
	"sugarscape.ai/internal/sim/policy"
	"sugarscape.ai/internal/sim/world"
)

func TestTickLogger_RoundTripAcrossHours(t *testing.T) {
	dir := t.TempDir()
	tl := NewTickLogger(dir)
	clock := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	tl.w.now = func() time.Time { return clock }

	for i := uint64(0); i < 6; i++ {
		if i == 3 {
			clock = clock.Add(2 * time.Minute)
		}
		e := world.TickLogEntry{Tick: i, Alive: 20, Digest: "d"}
		if i == 4 {
			e.Deaths = []int{7}
			e.NewPatches = []geom.Loc{{X: 300, Y: 400}}
		}
		require.NoError(t, tl.WriteTick(e))
	}
	require.NoError(t, tl.Close())

	files, err := ListFiles(filepath.Join(dir, "events"), "events")
	require.NoError(t, err)
	require.Len(t, files, 2, "want one file per hour")

	var got []world.TickLogEntry
	require.NoError(t, ReadTicks(dir, func(e world.TickLogEntry) error {
		got = append(got, e)
		return nil
	}))
	require.Len(t, got, 6)
	for i, e := range got {
		require.EqualValues(t, i, e.Tick)
	}
	require.Equal(t, []int{7}, got[4].Deaths)
	require.Equal(t, []geom.Loc{{X: 300, Y: 400}}, got[4].NewPatches)
}

func TestReadTicks_StopsOnCallbackError(t *testing.T) {
	dir := t.TempDir()
	tl := NewTickLogger(dir)
	for i := uint64(0); i < 3; i++ {
		require.NoError(t, tl.WriteTick(world.TickLogEntry{Tick: i}))
	}
	_ = tl.Close()

	stop := errors.New("stop")
	n := 0
	err := ReadTicks(dir, func(world.TickLogEntry) error {
		n++
		return stop
	})
	require.ErrorIs(t, err, stop)
	require.Equal(t, 1, n)
}

func TestReadTicks_EmptyDir(t *testing.T) {
	err := ReadTicks(t.TempDir(), func(world.TickLogEntry) error { return nil })
	require.Error(t, err, "a missing log must be reported")
}

func TestDecisionLogger_FlattensTicks(t *testing.T) {
	dir := t.TempDir()
	dl := NewDecisionLogger(dir)
	entry := world.TickLogEntry{
		Tick: 9,
		Decisions: []agent.DecisionRecord{
			{Tick: 9, Agent: 1, Kind: policy.KindTarget, Loc: geom.Loc{X: 145, Y: 145}, TruePositive: true},
			{Tick: 9, Agent: 2, Kind: policy.KindExplore},
		},
	}
	require.NoError(t, Multi{dl}.WriteTick(entry))
	_ = dl.Close()

	files, err := ListFiles(filepath.Join(dir, "decisions"), "decisions")
	require.NoError(t, err)
	var got []agent.DecisionRecord
	require.NoError(t, ReadJSONL(files, func(d agent.DecisionRecord) error {
		got = append(got, d)
		return nil
	}))
	require.Len(t, got, 2)
	require.Equal(t, 1, got[0].Agent)
	require.True(t, got[0].TruePositive)
	require.Equal(t, policy.KindExplore, got[1].Kind)
}

type failLogger struct{ err error }

func (f failLogger) WriteTick(world.TickLogEntry) error { return f.err }

func TestMulti_JoinsErrors(t *testing.T) {
	e1, e2 := errors.New("a"), errors.New("b")
	err := Multi{failLogger{e1}, failLogger{nil}, failLogger{e2}}.WriteTick(world.TickLogEntry{})
	require.ErrorIs(t, err, e1)
	require.ErrorIs(t, err, e2)
	require.NoError(t, Multi{failLogger{nil}}.WriteTick(world.TickLogEntry{}))
}

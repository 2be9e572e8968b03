package indexdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sugarscape.ai/internal/persistence/snapshot"
	"sugarscape.ai/internal/sim/agent"
	"sugarscape.ai/internal/sim/geom"
	"sugarscape.ai/internal/sim/policy"
	"sugarscape.ai/internal/sim/tuning"
	"sugarscape.ai/internal/sim/world"
)

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqTick, tick: world.TickLogEntry{Tick: 1}}

	_ = s.WriteTick(world.TickLogEntry{Tick: 2})
	s.RecordSnapshot("/tmp/2.snap.zst", snapshot.SnapshotV1{})
	s.RecordSummary(world.EpisodeSummary{}, time.Millisecond)

	st := s.Stats()
	require.EqualValues(t, 1, st.DropTickTotal)
	require.EqualValues(t, 1, st.DropSnapshotTotal)
	require.EqualValues(t, 1, st.DropSummaryTotal)
	require.EqualValues(t, 1, st.QueueDepth)
	require.EqualValues(t, 1, st.QueueCapacity)
}

func TestOpenSQLite_RequiresEpisode(t *testing.T) {
	_, err := OpenSQLite(filepath.Join(t.TempDir(), "x.sqlite"), "")
	require.Error(t, err)
}

func TestSQLiteIndex_EpisodeLifecycle(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "index", "episodes.sqlite")
	idx, err := OpenSQLite(dbPath, "ep-1")
	require.NoError(t, err)
	tune := tuning.Defaults()
	tune.Seed = 9
	require.NoError(t, idx.UpsertEpisode(9, "rule", tune))

	_ = idx.WriteTick(world.TickLogEntry{Tick: 0, Alive: 20, Digest: "d0"})
	_ = idx.WriteTick(world.TickLogEntry{
		Tick:   1,
		Alive:  19,
		Digest: "d1",
		Decisions: []agent.DecisionRecord{
			{Tick: 1, Agent: 3, Kind: policy.KindTarget, Loc: geom.Loc{X: 145, Y: 145}, TruePositive: true},
			{Tick: 1, Agent: 4, Kind: policy.KindExplore},
		},
		Deaths: []int{11},
	})
	idx.RecordSnapshot("/data/ep-1/snapshots/1.snap.zst", snapshot.SnapshotV1{
		Header:  snapshot.Header{Tick: 1, Digest: "d1"},
		Agents:  make([]snapshot.AgentV1, 19),
		Patches: make([]snapshot.PatchV1, 2),
	})
	idx.RecordSummary(world.EpisodeSummary{
		ID:          "ep-1",
		Ticks:       2,
		Alive:       19,
		Reason:      world.OverMaxTicks,
		AvgLifespan: 1.5,
		Counters:    world.Counters{Exploits: 1, Explores: 1, TruePositives: 1, Dead: 1},
		Agents: []world.AgentSummary{
			{ID: 3, Lifespan: 2, Alive: true, TotalReward: 4.5, Actions: agent.ActionStats{Started: 1, Completed: 1}},
			{ID: 11, Lifespan: 1, DiedAt: 1, Actions: agent.ActionStats{Started: 1, Died: 1}},
		},
	}, time.Second)
	require.NoError(t, idx.Close())

	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM ticks WHERE episode='ep-1'`).Scan(&n))
	require.Equal(t, 2, n)

	var kind string
	var tp int
	require.NoError(t, db.QueryRow(`SELECT kind,true_positive FROM decisions WHERE episode='ep-1' AND tick=1 AND seq=0`).Scan(&kind, &tp))
	require.Equal(t, "target", kind)
	require.Equal(t, 1, tp)

	require.NoError(t, db.QueryRow(`SELECT agent FROM deaths WHERE episode='ep-1' AND tick=1`).Scan(&n))
	require.Equal(t, 11, n)

	var path string
	require.NoError(t, db.QueryRow(`SELECT path FROM snapshots WHERE episode='ep-1' AND tick=1`).Scan(&path))
	require.NotEmpty(t, path)

	var reason string
	var ended int64
	require.NoError(t, db.QueryRow(`SELECT over_reason, ended_tick FROM episodes WHERE id='ep-1'`).Scan(&reason, &ended))
	require.Equal(t, world.OverMaxTicks, reason)
	require.EqualValues(t, 2, ended)

	var diedAt sql.NullInt64
	require.NoError(t, db.QueryRow(`SELECT died_at FROM agents WHERE episode='ep-1' AND agent=3`).Scan(&diedAt))
	require.False(t, diedAt.Valid, "living agent has died_at=%v", diedAt)

	idx2, err := OpenSQLite(dbPath, "ep-1")
	require.NoError(t, err)
	defer idx2.Close()
	ctx := context.Background()

	d, err := idx2.TickDigest(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "d1", d)
	_, err = idx2.TickDigest(ctx, 99)
	require.ErrorIs(t, err, sql.ErrNoRows)

	got, err := idx2.EpisodeTuning(ctx, "ep-1")
	require.NoError(t, err)
	require.Equal(t, tune, got)
	_, err = idx2.EpisodeTuning(ctx, "nope")
	require.Error(t, err)
}

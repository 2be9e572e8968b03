package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"sugarscape.ai/internal/persistence/snapshot"
	"sugarscape.ai/internal/sim/tuning"
	"sugarscape.ai/internal/sim/world"
)

const schemaVersion = "1"

// SQLiteIndex is a queryable secondary index of one or more episodes. Writes from the
// world loop never block: they are queued to a single writer goroutine and dropped when
// the queue is full. The JSONL logs remain the source of truth.
type SQLiteIndex struct {
	db      *sql.DB
	episode string

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick     atomic.Uint64
	dropSnapshot atomic.Uint64
	dropSummary  atomic.Uint64
}

type Stats struct {
	DropTickTotal     uint64 `json:"drop_tick_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
	DropSummaryTotal  uint64 `json:"drop_summary_total"`
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqSnapshot
	reqSummary
)

type req struct {
	kind reqKind

	tick     world.TickLogEntry
	snapshot snapshotRow
	summary  world.EpisodeSummary
}

type snapshotRow struct {
	Tick    uint64
	Path    string
	Digest  string
	Agents  int
	Patches int
}

func OpenSQLite(path, episodeID string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if episodeID == "" {
		return nil, fmt.Errorf("empty episode id")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db:      db,
		episode: episodeID,
		// One tick row plus its decisions per entry; a few minutes of fast-forward fits.
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS episodes (
			id TEXT PRIMARY KEY,
			seed INTEGER NOT NULL,
			policy TEXT NOT NULL,
			tuning_digest TEXT NOT NULL,
			tuning_json TEXT NOT NULL,
			started_at TEXT NOT NULL,
			ended_tick INTEGER,
			over_reason TEXT,
			alive INTEGER,
			avg_lifespan REAL,
			true_positives INTEGER,
			false_positives INTEGER,
			explores INTEGER,
			exploits INTEGER,
			consumed INTEGER,
			dead INTEGER,
			patches_added INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			episode TEXT NOT NULL,
			tick INTEGER NOT NULL,
			digest TEXT NOT NULL,
			alive INTEGER NOT NULL,
			decisions INTEGER NOT NULL,
			deaths INTEGER NOT NULL,
			new_patches INTEGER NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (episode, tick)
		);`,
		`CREATE TABLE IF NOT EXISTS decisions (
			episode TEXT NOT NULL,
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			agent INTEGER NOT NULL,
			kind TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			distance REAL NOT NULL,
			accepted INTEGER NOT NULL,
			confirmed INTEGER NOT NULL,
			rejected INTEGER NOT NULL,
			true_positive INTEGER NOT NULL,
			false_positive INTEGER NOT NULL,
			PRIMARY KEY (episode, tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_agent_tick ON decisions(episode, agent, tick);`,
		`CREATE TABLE IF NOT EXISTS deaths (
			episode TEXT NOT NULL,
			tick INTEGER NOT NULL,
			agent INTEGER NOT NULL,
			PRIMARY KEY (episode, agent)
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			episode TEXT NOT NULL,
			tick INTEGER NOT NULL,
			path TEXT NOT NULL,
			digest TEXT NOT NULL,
			agents INTEGER NOT NULL,
			patches INTEGER NOT NULL,
			PRIMARY KEY (episode, tick)
		);`,
		`CREATE TABLE IF NOT EXISTS agents (
			episode TEXT NOT NULL,
			agent INTEGER NOT NULL,
			false_broadcaster INTEGER NOT NULL,
			lifespan INTEGER NOT NULL,
			total_reward REAL NOT NULL,
			alive INTEGER NOT NULL,
			died_at INTEGER,
			actions_started INTEGER NOT NULL,
			actions_completed INTEGER NOT NULL,
			actions_interrupted INTEGER NOT NULL,
			actions_died INTEGER NOT NULL,
			PRIMARY KEY (episode, agent)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		DropTickTotal:     s.dropTick.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
		DropSummaryTotal:  s.dropSummary.Load(),
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
	}
}

func (s *SQLiteIndex) WriteTick(entry world.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, tick: entry}:
	default:
		// Drop if the indexer falls behind; JSONL logs remain the source of truth.
		s.dropTick.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		Tick:    snap.Header.Tick,
		Path:    path,
		Digest:  snap.Header.Digest,
		Agents:  len(snap.Agents),
		Patches: len(snap.Patches),
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

// RecordSummary queues the end-of-episode report. It waits up to timeout for room.
func (s *SQLiteIndex) RecordSummary(sum world.EpisodeSummary, timeout time.Duration) {
	if s == nil || s.closed.Load() {
		return
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case s.ch <- req{kind: reqSummary, summary: sum}:
	case <-t.C:
		s.dropSummary.Add(1)
	}
}

// UpsertEpisode records the episode row with the tuning actually applied.
func (s *SQLiteIndex) UpsertEpisode(seed uint64, policyKind string, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version',?)`, schemaVersion); err != nil {
		return err
	}
	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO episodes(id,seed,policy,tuning_digest,tuning_json,started_at) VALUES(?,?,?,?,?,?)`,
		s.episode, int64(seed), policyKind, hex.EncodeToString(sum[:]), string(b), now,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// TickDigest returns the indexed digest of tick, or sql.ErrNoRows.
func (s *SQLiteIndex) TickDigest(ctx context.Context, tick uint64) (string, error) {
	var d string
	err := s.db.QueryRowContext(ctx, `SELECT digest FROM ticks WHERE episode=? AND tick=?`, s.episode, int64(tick)).Scan(&d)
	return d, err
}

// EpisodeTuning loads the tuning stored for an episode.
func (s *SQLiteIndex) EpisodeTuning(ctx context.Context, episodeID string) (tuning.Tuning, error) {
	var raw string
	if err := s.db.QueryRowContext(ctx, `SELECT tuning_json FROM episodes WHERE id=?`, episodeID).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return tuning.Tuning{}, fmt.Errorf("episode %q not indexed", episodeID)
		}
		return tuning.Tuning{}, err
	}
	var t tuning.Tuning
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return tuning.Tuning{}, err
	}
	return t, nil
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	// Prepared statements (on db; executed within tx).
	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(episode,tick,digest,alive,decisions,deaths,new_patches,raw_json) VALUES(?,?,?,?,?,?,?,?)`)
	insertDecision, _ := s.db.Prepare(`INSERT OR REPLACE INTO decisions(episode,tick,seq,agent,kind,x,y,distance,accepted,confirmed,rejected,true_positive,false_positive) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertDeath, _ := s.db.Prepare(`INSERT OR REPLACE INTO deaths(episode,tick,agent) VALUES(?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(episode,tick,path,digest,agents,patches) VALUES(?,?,?,?,?,?)`)
	updateEpisode, _ := s.db.Prepare(`UPDATE episodes SET ended_tick=?,over_reason=?,alive=?,avg_lifespan=?,true_positives=?,false_positives=?,explores=?,exploits=?,consumed=?,dead=?,patches_added=? WHERE id=?`)
	insertAgent, _ := s.db.Prepare(`INSERT OR REPLACE INTO agents(episode,agent,false_broadcaster,lifespan,total_reward,alive,died_at,actions_started,actions_completed,actions_interrupted,actions_died) VALUES(?,?,?,?,?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertDecision, insertDeath, insertSnapshot, updateEpisode, insertAgent} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			// If we can't start a tx, we can't do much; sleep a bit.
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil {
			return true
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			t := r.tick
			b, _ := json.Marshal(t)
			if !exec(insertTick, s.episode, int64(t.Tick), t.Digest, t.Alive, len(t.Decisions), len(t.Deaths), len(t.NewPatches), string(b)) {
				continue
			}
			for i, d := range t.Decisions {
				if !exec(insertDecision,
					s.episode, int64(t.Tick), i, d.Agent,
					d.Kind.String(), d.Loc.X, d.Loc.Y, d.Distance,
					d.Counts.Accepted, d.Counts.Confirmed, d.Counts.Rejected,
					boolInt(d.TruePositive), boolInt(d.FalsePositive),
				) {
					break
				}
			}
			if tx == nil {
				continue
			}
			for _, id := range t.Deaths {
				if !exec(insertDeath, s.episode, int64(t.Tick), id) {
					break
				}
			}

		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, s.episode, int64(sn.Tick), sn.Path, sn.Digest, sn.Agents, sn.Patches)

		case reqSummary:
			sm := r.summary
			c := sm.Counters
			if !exec(updateEpisode,
				int64(sm.Ticks), sm.Reason, sm.Alive, sm.AvgLifespan,
				int64(c.TruePositives), int64(c.FalsePositives), int64(c.Explores), int64(c.Exploits),
				int64(c.Consumed), int64(c.Dead), int64(c.PatchesAdded), s.episode,
			) {
				continue
			}
			for _, a := range sm.Agents {
				var diedAt any
				if !a.Alive {
					diedAt = int64(a.DiedAt)
				}
				if !exec(insertAgent,
					s.episode, a.ID, boolInt(a.FalseBroadcaster), int64(a.Lifespan), a.TotalReward,
					boolInt(a.Alive), diedAt,
					int64(a.Actions.Started), int64(a.Actions.Completed), int64(a.Actions.Interrupted), int64(a.Actions.Died),
				) {
					break
				}
			}
			// The summary is the last thing an episode writes.
			commit()
			continue
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

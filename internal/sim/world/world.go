package world

import (
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/paulmach/orb"

	"sugarscape.ai/internal/persistence/snapshot"
	"sugarscape.ai/internal/sim/agent"
	"sugarscape.ai/internal/sim/geom"
	"sugarscape.ai/internal/sim/policy"
	"sugarscape.ai/internal/sim/world/logic/mathx"
)

// ErrEpisodeOver is returned when stepping a finished episode.
var ErrEpisodeOver = errors.New("episode over")

// World is a single-threaded authoritative simulation of one episode.
// All state must be accessed only from the goroutine that steps it.
type World struct {
	cfg WorldConfig
	log *log.Logger

	tick atomic.Uint64

	rng      *rand.Rand
	agentCfg *agent.Config
	pol      policy.Policy

	patches []*Patch
	index   *geom.Index

	// Living agents in id order.
	agents   []*agent.Agent
	departed []AgentSummary

	historicalFalse map[geom.Loc]struct{}

	counters  Counters
	decisions []agent.DecisionRecord
	// Units eaten per agent id, departed agents included.
	eaten map[int]uint64

	// Per-tick buffers for the tick log.
	tickDecisions []agent.DecisionRecord
	tickDeaths    []int
	tickPatches   []geom.Loc
	tickFalse     []geom.Loc

	over       bool
	overReason string
	lastDigest string

	// Optional sinks (may be nil). Implemented in internal/persistence/* and transport/*.
	tickLogger   TickLogger
	snapshotSink chan<- snapshot.SnapshotV1
	observer     TickObserver

	stats   *WorldStats
	metrics atomic.Value

	stop     chan struct{}
	stopOnce sync.Once
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

// TickObserver receives a frame after every tick. Implementations must not block.
type TickObserver interface {
	ObserveTick(f TickFrame)
}

type TickLogEntry struct {
	Tick       uint64                 `json:"tick"`
	Alive      int                    `json:"alive"`
	Decisions  []agent.DecisionRecord `json:"decisions,omitempty"`
	Deaths     []int                  `json:"deaths,omitempty"`
	NewPatches []geom.Loc             `json:"new_patches,omitempty"`
	NewFalse   []geom.Loc             `json:"new_false,omitempty"`
	Over       string                 `json:"over,omitempty"`
	Digest     string                 `json:"digest"`
}

// New builds an episode: initial patches, agents at random positions and the false
// broadcasters among them. A nil policy is built from cfg.PolicyKind and shared by
// every agent.
func New(cfg WorldConfig, pol policy.Policy, logger *log.Logger) (*World, error) {
	cfg.applyDefaults()
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if pol == nil {
		p, err := policy.New(cfg.PolicyKind, policy.Config{
			LearningRate:  cfg.Tuning.Policy.LearningRate,
			BaselineDecay: cfg.Tuning.Policy.BaselineDecay,
			Greedy:        cfg.Tuning.Policy.Greedy,
		})
		if err != nil {
			return nil, err
		}
		pol = p
	}

	ac := cfg.Agent
	w := &World{
		cfg:             cfg,
		log:             logger,
		rng:             mathx.Stream(cfg.Seed, 0),
		agentCfg:        &ac,
		pol:             pol,
		index:           geom.NewIndex(cfg.Arena),
		historicalFalse: map[geom.Loc]struct{}{},
		eaten:           map[int]uint64{},
		stats:           NewWorldStats(300, 3000),
		stop:            make(chan struct{}),
	}

	if err := w.placeInitialPatches(); err != nil {
		return nil, err
	}

	liars := map[int]bool{}
	for _, i := range w.rng.Perm(cfg.NumAgents)[:cfg.FalseBroadcasters] {
		liars[i] = true
	}
	for id := 0; id < cfg.NumAgents; id++ {
		pos := orb.Point{w.rng.Float64() * cfg.Arena.Width, w.rng.Float64() * cfg.Arena.Height}
		a := agent.New(id, pos, w.agentCfg, pol, mathx.Stream(cfg.Seed, uint64(id)+1), liars[id])
		w.agents = append(w.agents, a)
	}
	w.metrics.Store(WorldMetrics{Alive: len(w.agents), Patches: len(w.patches)})
	return w, nil
}

func (w *World) SetTickLogger(l TickLogger)                    { w.tickLogger = l }
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }
func (w *World) SetObserver(o TickObserver)                    { w.observer = o }

func (w *World) ID() string {
	if w == nil {
		return ""
	}
	return w.cfg.ID
}

func (w *World) Config() WorldConfig   { return w.cfg }
func (w *World) Policy() policy.Policy { return w.pol }
func (w *World) CurrentTick() uint64   { return w.tick.Load() }

func (w *World) TickRateHz() int {
	if w == nil {
		return 0
	}
	return w.cfg.TickRateHz
}

// LastDigest is the digest of the most recently completed tick.
func (w *World) LastDigest() string { return w.lastDigest }

// Over reports whether the episode has ended and why.
func (w *World) Over() (bool, string) { return w.over, w.overReason }

// Agents returns the living agents in id order. The slice is a copy; the agents are not.
func (w *World) Agents() []*agent.Agent {
	return append([]*agent.Agent(nil), w.agents...)
}

func (w *World) Agent(id int) *agent.Agent {
	i := sort.Search(len(w.agents), func(i int) bool { return w.agents[i].ID >= id })
	if i < len(w.agents) && w.agents[i].ID == id {
		return w.agents[i]
	}
	return nil
}

func (w *World) Counters() Counters { return w.counters }

// Decisions returns every decision taken so far, in order.
func (w *World) Decisions() []agent.DecisionRecord {
	return append([]agent.DecisionRecord(nil), w.decisions...)
}

// HistoricalFalse lists every fabricated location seen this episode, sorted.
func (w *World) HistoricalFalse() []geom.Loc {
	out := make([]geom.Loc, 0, len(w.historicalFalse))
	for l := range w.historicalFalse {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

func (w *World) String() string {
	return fmt.Sprintf("world %s tick=%d alive=%d patches=%d", w.cfg.ID, w.tick.Load(), len(w.agents), len(w.patches))
}

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"sugarscape.ai/internal/persistence/indexdb"
	persistlog "sugarscape.ai/internal/persistence/log"
	"sugarscape.ai/internal/persistence/snapshot"
	"sugarscape.ai/internal/sim/policy"
	"sugarscape.ai/internal/sim/tuning"
	"sugarscape.ai/internal/sim/world"
	"sugarscape.ai/internal/transport/observer"
)

type runConfig struct {
	EpisodeID string
	Episodes  int
	DataDir   string
	Realtime  bool
	DisableDB bool
}

// live holds the episode currently being stepped, for the HTTP handlers.
type live struct {
	world *atomic.Pointer[world.World]
	obs   *atomic.Pointer[observer.Server]
	index *atomic.Pointer[indexdb.SQLiteIndex]
}

func main() {
	var (
		addr       = flag.String("addr", "127.0.0.1:8080", "http listen address (empty to disable)")
		episodeID  = flag.String("episode", "episode_1", "episode id (suffixed with -<n> when running several)")
		episodes   = flag.Int("episodes", 1, "episodes to run back to back; a linear policy keeps learning across them")
		seed       = flag.Uint64("seed", 0, "override the tuning seed (0 keeps tuning.seed)")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml (missing file uses defaults)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		policyKind = flag.String("policy", "", "override policy.kind (rule|linear)")
		realtime   = flag.Bool("realtime", false, "pace ticks at tick_rate_hz instead of running flat out")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite episode index")
		paramsIn   = flag.String("params_in", "", "linear policy parameters to start from (json)")
		paramsOut  = flag.String("params_out", "", "write linear policy parameters here after the last episode")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[sim] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		logger.Fatalf("load tuning: %v", err)
	}
	if *seed != 0 {
		tune.Seed = *seed
	}
	if k := strings.TrimSpace(*policyKind); k != "" {
		tune.Policy.Kind = k
	}
	if err := tune.Validate(); err != nil {
		logger.Fatalf("tuning: %v", err)
	}

	pol, err := policy.New(tune.Policy.Kind, policy.Config{
		LearningRate:  tune.Policy.LearningRate,
		BaselineDecay: tune.Policy.BaselineDecay,
		Greedy:        tune.Policy.Greedy,
	})
	if err != nil {
		logger.Fatalf("policy: %v", err)
	}
	if p := strings.TrimSpace(*paramsIn); p != "" {
		if err := loadParams(p, pol); err != nil {
			logger.Fatalf("load params: %v", err)
		}
		logger.Printf("policy parameters loaded from %s", p)
	}

	ctx, cancel := signalContext()
	defer cancel()

	cur := live{
		world: &atomic.Pointer[world.World]{},
		obs:   &atomic.Pointer[observer.Server]{},
		index: &atomic.Pointer[indexdb.SQLiteIndex]{},
	}
	if a := strings.TrimSpace(*addr); a != "" {
		srv := &http.Server{
			Addr:              a,
			Handler:           newMux(cur, logger),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			<-ctx.Done()
			ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel2()
			_ = srv.Shutdown(ctx2)
		}()
		go func() {
			logger.Printf("listening on %s", a)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Printf("ListenAndServe: %v", err)
			}
		}()
	}

	rc := runConfig{
		EpisodeID: *episodeID,
		Episodes:  *episodes,
		DataDir:   *dataDir,
		Realtime:  *realtime,
		DisableDB: *disableDB,
	}
	if rc.Episodes < 1 {
		rc.Episodes = 1
	}

	for n := 0; n < rc.Episodes; n++ {
		id := rc.EpisodeID
		t := tune
		if rc.Episodes > 1 {
			id = fmt.Sprintf("%s-%d", rc.EpisodeID, n+1)
			t.Seed = tune.Seed + uint64(n)
		}
		sum, err := runEpisode(ctx, rc, id, t, pol, cur, logger)
		if err != nil {
			logger.Printf("episode %s: %v", id, err)
			break
		}
		logger.Printf("episode %s over: reason=%q ticks=%d alive=%d avg_lifespan=%.1f tp=%d fp=%d explores=%d exploits=%d consumed=%d dead=%d",
			sum.ID, sum.Reason, sum.Ticks, sum.Alive, sum.AvgLifespan,
			sum.Counters.TruePositives, sum.Counters.FalsePositives,
			sum.Counters.Explores, sum.Counters.Exploits,
			sum.Counters.Consumed, sum.Counters.Dead)
		if ctx.Err() != nil {
			break
		}
	}

	if p := strings.TrimSpace(*paramsOut); p != "" {
		if err := saveParams(p, pol); err != nil {
			logger.Printf("save params: %v", err)
		} else {
			logger.Printf("policy parameters written to %s", p)
		}
	}
}

// runEpisode builds one world, wires its sinks and steps it until it ends or ctx is done.
func runEpisode(ctx context.Context, rc runConfig, id string, tune tuning.Tuning, pol policy.Policy, cur live, logger *log.Logger) (world.EpisodeSummary, error) {
	episodeDir := filepath.Join(rc.DataDir, "episodes", id)
	if err := os.MkdirAll(episodeDir, 0o755); err != nil {
		return world.EpisodeSummary{}, err
	}

	cfg := world.ConfigFromTuning(id, tune)
	w, err := world.New(cfg, pol, logger)
	if err != nil {
		return world.EpisodeSummary{}, fmt.Errorf("world: %w", err)
	}

	// Optional: read-model index (does not affect sim determinism).
	idx, err := openRuntimeIndex(rc.DataDir, id, rc.DisableDB, logger)
	if err != nil {
		return world.EpisodeSummary{}, fmt.Errorf("open index backend: %w", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertEpisode(cfg.Seed, cfg.PolicyKind, tune); err != nil {
			logger.Printf("index backend: upsert episode: %v", err)
		}
	}

	tickLog := persistlog.NewTickLogger(episodeDir)
	decisionLog := persistlog.NewDecisionLogger(episodeDir)
	defer tickLog.Close()
	defer decisionLog.Close()
	sinks := persistlog.Multi{tickLog, decisionLog}
	if idx != nil {
		sinks = append(sinks, idx)
	}
	w.SetTickLogger(sinks)

	// Snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)
	snapDone := make(chan struct{})
	go func() {
		defer close(snapDone)
		for snap := range snapCh {
			path := filepath.Join(episodeDir, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.Tick))
			if err := snapshot.WriteSnapshot(path, snap); err != nil {
				logger.Printf("snapshot write: %v", err)
				continue
			}
			if idx != nil {
				idx.RecordSnapshot(path, snap)
			}
		}
	}()

	obs := observer.NewServer(cfg, log.New(logger.Writer(), "[observer] ", logger.Flags()))
	w.SetObserver(obs)
	cur.world.Store(w)
	cur.obs.Store(obs)
	cur.index.Store(idx)

	logger.Printf("episode %s start: seed=%d policy=%s agents=%d false=%d", id, cfg.Seed, cfg.PolicyKind, cfg.NumAgents, cfg.FalseBroadcasters)
	if rc.Realtime {
		err = w.Run(ctx)
	} else {
		err = w.RunToEnd(ctx)
	}
	// The world goroutine is done; no more snapshots will be sent.
	close(snapCh)
	<-snapDone
	if err != nil && err != context.Canceled {
		return world.EpisodeSummary{}, err
	}
	if err == context.Canceled {
		logger.Printf("episode %s cancelled at tick %d", id, w.CurrentTick())
	}

	sum := w.Summary()
	if err := writeSummary(filepath.Join(episodeDir, "summary.json"), sum); err != nil {
		logger.Printf("summary write: %v", err)
	}
	if idx != nil {
		idx.RecordSummary(sum, 5*time.Second)
	}
	return sum, nil
}

func writeSummary(path string, sum world.EpisodeSummary) error {
	b, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}

func newMux(cur live, logger *log.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		w := cur.world.Load()
		if w == nil {
			return
		}
		writeWorldMetrics(rw, w.ID(), w.Metrics())
		if idx := cur.index.Load(); idx != nil {
			writeIndexMetrics(rw, w.ID(), idx.Stats())
		}
	})

	enableAdminHTTP := envBool("SUGAR_ENABLE_ADMIN_HTTP", true)
	enablePprofHTTP := envBool("SUGAR_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		// Local-only admin endpoints (do not affect simulation determinism).
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			w := cur.world.Load()
			if w == nil {
				http.Error(rw, "no episode", http.StatusServiceUnavailable)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				EpisodeID string             `json:"episode_id"`
				Tick      uint64             `json:"tick"`
				Metrics   world.WorldMetrics `json:"metrics"`
			}{
				EpisodeID: w.ID(),
				Tick:      w.CurrentTick(),
				Metrics:   w.Metrics(),
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})
		mux.HandleFunc("/admin/v1/summary", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			w := cur.world.Load()
			if w == nil {
				http.Error(rw, "no episode", http.StatusServiceUnavailable)
				return
			}
			if over, _ := w.Over(); !over {
				http.Error(rw, "episode running", http.StatusConflict)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(w.Summary())
		})
		mux.HandleFunc("/observer/bootstrap", func(rw http.ResponseWriter, r *http.Request) {
			if obs := cur.obs.Load(); obs != nil {
				obs.BootstrapHandler()(rw, r)
				return
			}
			http.Error(rw, "no episode", http.StatusServiceUnavailable)
		})
		mux.HandleFunc("/observer/ws", func(rw http.ResponseWriter, r *http.Request) {
			if obs := cur.obs.Load(); obs != nil {
				obs.WSHandler()(rw, r)
				return
			}
			http.Error(rw, "no episode", http.StatusServiceUnavailable)
		})
	} else {
		logger.Printf("admin endpoints disabled (SUGAR_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	return mux
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"sugarscape.ai/internal/persistence/indexdb"
	persistlog "sugarscape.ai/internal/persistence/log"
	"sugarscape.ai/internal/persistence/snapshot"
	"sugarscape.ai/internal/sim/policy"
	"sugarscape.ai/internal/sim/tuning"
	"sugarscape.ai/internal/sim/world"
)

var errStop = errors.New("stop")

// source is what a replay needs to rebuild an episode from tick 0.
type source struct {
	EpisodeID string
	Tuning    tuning.Tuning
	From      string

	// Set when a snapshot was found; its digest is checked along the way.
	SnapTick   uint64
	SnapDigest string
}

func main() {
	var (
		episodeDir = flag.String("episode_dir", "", "episode directory containing events/ (required)")
		snapPath   = flag.String("snapshot", "", "snapshot to take tuning and seed from (default: latest in <episode_dir>/snapshots)")
		indexPath  = flag.String("index", "", "episodes.sqlite to take tuning from when there is no snapshot (default: <episode_dir>/../../index/episodes.sqlite)")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "tuning file, used when neither a snapshot nor the index knows the episode")
		paramsIn   = flag.String("params_in", "", "linear policy parameters the episode started from (json)")
		fromTick   = flag.Uint64("from_tick", 0, "start verifying from tick (inclusive, optional)")
		toTick     = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
	)
	flag.Parse()

	if *episodeDir == "" {
		fmt.Fprintln(os.Stderr, "missing -episode_dir")
		os.Exit(2)
	}

	src, err := resolveSource(*episodeDir, *snapPath, *indexPath, *tuningPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "resolve episode:", err)
		os.Exit(1)
	}
	fmt.Printf("episode=%s seed=%d policy=%s agents=%d false=%d (from %s)\n",
		src.EpisodeID, src.Tuning.Seed, src.Tuning.Policy.Kind,
		src.Tuning.Agents.Count, src.Tuning.Agents.FalseBroadcasters, src.From)

	var pol policy.Policy
	if p := strings.TrimSpace(*paramsIn); p != "" {
		lin := policy.NewLinear(policy.Config{
			LearningRate:  src.Tuning.Policy.LearningRate,
			BaselineDecay: src.Tuning.Policy.BaselineDecay,
			Greedy:        src.Tuning.Policy.Greedy,
		})
		if err := policy.LoadParams(p, lin); err != nil {
			fmt.Fprintln(os.Stderr, "load params:", err)
			os.Exit(1)
		}
		pol = lin
	} else if src.Tuning.Policy.Kind == policy.KindLinear {
		fmt.Println("note: linear episode replayed from initial weights; pass -params_in if it continued a training run")
	}

	w, err := world.New(world.ConfigFromTuning(src.EpisodeID, src.Tuning), pol, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "world:", err)
		os.Exit(1)
	}

	checked, err := replay(w, *episodeDir, src, *fromTick, *toTick)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: checked=%d ticks (through tick=%d)\n", checked, w.CurrentTick())
}

// resolveSource finds the tuning an episode ran with: snapshot first, then the index,
// then a tuning file.
func resolveSource(episodeDir, snapPath, indexPath, tuningPath string) (source, error) {
	id := filepath.Base(filepath.Clean(episodeDir))

	if snapPath == "" {
		snapPath = latestSnapshot(episodeDir)
	}
	if snapPath != "" {
		snap, err := snapshot.ReadSnapshot(snapPath)
		if err != nil {
			return source{}, fmt.Errorf("read snapshot: %w", err)
		}
		t := snap.Tuning
		t.Seed = snap.Seed
		t.Policy.Kind = snap.PolicyKind
		if snap.Header.EpisodeID != "" {
			id = snap.Header.EpisodeID
		}
		return source{
			EpisodeID:  id,
			Tuning:     t,
			From:       "snapshot " + filepath.Base(snapPath),
			SnapTick:   snap.Header.Tick,
			SnapDigest: snap.Header.Digest,
		}, nil
	}

	if indexPath == "" {
		indexPath = filepath.Join(filepath.Dir(filepath.Dir(filepath.Clean(episodeDir))), "index", "episodes.sqlite")
	}
	if _, err := os.Stat(indexPath); err == nil {
		idx, err := indexdb.OpenSQLite(indexPath, id)
		if err != nil {
			return source{}, fmt.Errorf("open index: %w", err)
		}
		defer idx.Close()
		t, err := idx.EpisodeTuning(context.Background(), id)
		if err == nil {
			return source{EpisodeID: id, Tuning: t, From: "index " + indexPath}, nil
		}
	}

	t, err := tuning.Load(tuningPath)
	if err != nil {
		return source{}, fmt.Errorf("load tuning: %w", err)
	}
	return source{EpisodeID: id, Tuning: t, From: "tuning " + tuningPath}, nil
}

// replay steps w once per logged tick and compares digests. It returns the number of
// ticks verified.
func replay(w *world.World, episodeDir string, src source, fromTick, toTick uint64) (uint64, error) {
	var checked uint64
	err := persistlog.ReadTicks(episodeDir, func(entry world.TickLogEntry) error {
		if toTick != 0 && entry.Tick > toTick {
			return errStop
		}
		if entry.Tick != w.CurrentTick() {
			return fmt.Errorf("tick mismatch: want=%d got=%d", w.CurrentTick(), entry.Tick)
		}
		tick, gotDigest, err := w.StepOnce()
		if err != nil {
			return fmt.Errorf("tick %d: %w", entry.Tick, err)
		}
		if tick != entry.Tick {
			return fmt.Errorf("internal tick mismatch: stepped=%d entry=%d", tick, entry.Tick)
		}
		if tick < fromTick {
			return nil
		}
		checked++
		if gotDigest != entry.Digest {
			return fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", tick, gotDigest, entry.Digest)
		}
		if src.SnapDigest != "" && tick == src.SnapTick && gotDigest != src.SnapDigest {
			return fmt.Errorf("snapshot digest mismatch at tick %d: got=%s want=%s", tick, gotDigest, src.SnapDigest)
		}
		if over, reason := w.Over(); over && reason != entry.Over {
			return fmt.Errorf("episode ended at tick %d with %q, log says %q", tick, reason, entry.Over)
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return checked, err
	}
	return checked, nil
}

func latestSnapshot(episodeDir string) string {
	dir := filepath.Join(episodeDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}

package main

import (
	"fmt"
	"io"

	"sugarscape.ai/internal/persistence/indexdb"
	"sugarscape.ai/internal/sim/world"
)

// writeWorldMetrics renders m in the Prometheus text exposition format.
func writeWorldMetrics(rw io.Writer, id string, m world.WorldMetrics) {
	fmt.Fprintf(rw, "# HELP sugarscape_episode_tick Current episode tick.\n")
	fmt.Fprintf(rw, "# TYPE sugarscape_episode_tick gauge\n")
	fmt.Fprintf(rw, "sugarscape_episode_tick{episode=%q} %d\n", id, m.Tick)

	fmt.Fprintf(rw, "# HELP sugarscape_agents_alive Living agents.\n")
	fmt.Fprintf(rw, "# TYPE sugarscape_agents_alive gauge\n")
	fmt.Fprintf(rw, "sugarscape_agents_alive{episode=%q} %d\n", id, m.Alive)
	fmt.Fprintf(rw, "sugarscape_agents_alive{episode=%q,role=%q} %d\n", id, "false_broadcaster", m.FalseBroadcasters)

	fmt.Fprintf(rw, "# HELP sugarscape_patches Resource patches.\n")
	fmt.Fprintf(rw, "# TYPE sugarscape_patches gauge\n")
	fmt.Fprintf(rw, "sugarscape_patches{episode=%q,state=%q} %d\n", id, "all", m.Patches)
	fmt.Fprintf(rw, "sugarscape_patches{episode=%q,state=%q} %d\n", id, "active", m.ActivePatches)

	fmt.Fprintf(rw, "# HELP sugarscape_capacity Units left across all patches.\n")
	fmt.Fprintf(rw, "# TYPE sugarscape_capacity gauge\n")
	fmt.Fprintf(rw, "sugarscape_capacity{episode=%q} %d\n", id, m.Capacity)

	fmt.Fprintf(rw, "# HELP sugarscape_historical_false Locations ever claimed by a false broadcaster.\n")
	fmt.Fprintf(rw, "# TYPE sugarscape_historical_false gauge\n")
	fmt.Fprintf(rw, "sugarscape_historical_false{episode=%q} %d\n", id, m.HistoricalFalse)

	fmt.Fprintf(rw, "# HELP sugarscape_total Cumulative episode counters.\n")
	fmt.Fprintf(rw, "# TYPE sugarscape_total counter\n")
	c := m.Counters
	for _, kv := range []struct {
		name string
		v    uint64
	}{
		{"true_positives", c.TruePositives},
		{"false_positives", c.FalsePositives},
		{"explores", c.Explores},
		{"exploits", c.Exploits},
		{"consumed", c.Consumed},
		{"dead", c.Dead},
		{"patches_added", c.PatchesAdded},
	} {
		fmt.Fprintf(rw, "sugarscape_total{episode=%q,counter=%q} %d\n", id, kv.name, kv.v)
	}

	fmt.Fprintf(rw, "# HELP sugarscape_mean_health Mean health of living agents.\n")
	fmt.Fprintf(rw, "# TYPE sugarscape_mean_health gauge\n")
	fmt.Fprintf(rw, "sugarscape_mean_health{episode=%q} %.3f\n", id, m.MeanHealth)

	fmt.Fprintf(rw, "# HELP sugarscape_avg_lifespan Outlier-filtered mean lifespan in ticks.\n")
	fmt.Fprintf(rw, "# TYPE sugarscape_avg_lifespan gauge\n")
	fmt.Fprintf(rw, "sugarscape_avg_lifespan{episode=%q} %.3f\n", id, m.AvgLifespan)

	fmt.Fprintf(rw, "# HELP sugarscape_step_ms Last tick step duration in milliseconds.\n")
	fmt.Fprintf(rw, "# TYPE sugarscape_step_ms gauge\n")
	fmt.Fprintf(rw, "sugarscape_step_ms{episode=%q} %.3f\n", id, m.StepMS)

	fmt.Fprintf(rw, "# HELP sugarscape_stats_window Rolling window stats.\n")
	fmt.Fprintf(rw, "# TYPE sugarscape_stats_window gauge\n")
	fmt.Fprintf(rw, "sugarscape_stats_window{episode=%q,metric=%q} %d\n", id, "decisions", m.StatsWindow.Decisions)
	fmt.Fprintf(rw, "sugarscape_stats_window{episode=%q,metric=%q} %d\n", id, "explores", m.StatsWindow.Explores)
	fmt.Fprintf(rw, "sugarscape_stats_window{episode=%q,metric=%q} %d\n", id, "consumed", m.StatsWindow.Consumed)
	fmt.Fprintf(rw, "sugarscape_stats_window{episode=%q,metric=%q} %d\n", id, "deaths", m.StatsWindow.Deaths)
	fmt.Fprintf(rw, "sugarscape_stats_window{episode=%q,metric=%q} %d\n", id, "patches", m.StatsWindow.Patches)

	fmt.Fprintf(rw, "# HELP sugarscape_stats_window_ticks Rolling window size in ticks.\n")
	fmt.Fprintf(rw, "# TYPE sugarscape_stats_window_ticks gauge\n")
	fmt.Fprintf(rw, "sugarscape_stats_window_ticks{episode=%q} %d\n", id, m.StatsWindowTicks)

	over := 0
	if m.Over {
		over = 1
	}
	fmt.Fprintf(rw, "# HELP sugarscape_episode_over 1 once the episode has ended.\n")
	fmt.Fprintf(rw, "# TYPE sugarscape_episode_over gauge\n")
	fmt.Fprintf(rw, "sugarscape_episode_over{episode=%q} %d\n", id, over)
}

func writeIndexMetrics(rw io.Writer, id string, s indexdb.Stats) {
	fmt.Fprintf(rw, "# HELP sugarscape_index_queue_depth Index writer queue depth.\n")
	fmt.Fprintf(rw, "# TYPE sugarscape_index_queue_depth gauge\n")
	fmt.Fprintf(rw, "sugarscape_index_queue_depth{episode=%q} %d\n", id, s.QueueDepth)

	fmt.Fprintf(rw, "# HELP sugarscape_index_queue_capacity Index writer queue capacity.\n")
	fmt.Fprintf(rw, "# TYPE sugarscape_index_queue_capacity gauge\n")
	fmt.Fprintf(rw, "sugarscape_index_queue_capacity{episode=%q} %d\n", id, s.QueueCapacity)

	fmt.Fprintf(rw, "# HELP sugarscape_index_dropped_total Index writes dropped on a full queue.\n")
	fmt.Fprintf(rw, "# TYPE sugarscape_index_dropped_total counter\n")
	fmt.Fprintf(rw, "sugarscape_index_dropped_total{episode=%q,kind=%q} %d\n", id, "tick", s.DropTickTotal)
	fmt.Fprintf(rw, "sugarscape_index_dropped_total{episode=%q,kind=%q} %d\n", id, "snapshot", s.DropSnapshotTotal)
	fmt.Fprintf(rw, "sugarscape_index_dropped_total{episode=%q,kind=%q} %d\n", id, "summary", s.DropSummaryTotal)
}

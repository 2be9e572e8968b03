package world

// WorldMetrics is a thread-safe read-only view of key episode signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Tick uint64 `json:"tick"`

	Alive             int `json:"alive"`
	FalseBroadcasters int `json:"false_broadcasters"`
	Patches           int `json:"patches"`
	ActivePatches     int `json:"active_patches"`
	Capacity          int `json:"capacity"`
	HistoricalFalse   int `json:"historical_false"`

	Counters Counters `json:"counters"`

	MeanHealth  float64 `json:"mean_health"`
	AvgLifespan float64 `json:"avg_lifespan"`

	StepMS float64 `json:"step_ms"`

	StatsWindowTicks uint64      `json:"stats_window_ticks"`
	StatsWindow      StatsBucket `json:"stats_window"`

	Over       bool   `json:"over"`
	OverReason string `json:"over_reason,omitempty"`
}

// Counters are cumulative per-episode totals.
type Counters struct {
	TruePositives  uint64 `json:"true_positives"`
	FalsePositives uint64 `json:"false_positives"`
	Explores       uint64 `json:"explores"`
	Exploits       uint64 `json:"exploits"`
	Consumed       uint64 `json:"consumed"`
	Dead           uint64 `json:"dead"`
	PatchesAdded   uint64 `json:"patches_added"`
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	v := w.metrics.Load()
	if v == nil {
		return WorldMetrics{}
	}
	m, ok := v.(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}

func (w *World) computeMetrics(nextTick uint64, stepMS float64) WorldMetrics {
	m := WorldMetrics{
		Tick:            nextTick,
		Alive:           len(w.agents),
		Patches:         len(w.patches),
		HistoricalFalse: len(w.historicalFalse),
		Counters:        w.counters,
		AvgLifespan:     w.AverageLifespan(),
		StepMS:          stepMS,
		Over:            w.over,
		OverReason:      w.overReason,
	}
	for _, p := range w.patches {
		if !p.Depleted() {
			m.ActivePatches++
			m.Capacity += p.Capacity
		}
	}
	var health float64
	for _, a := range w.agents {
		health += a.Health
		if a.FalseBroadcaster {
			m.FalseBroadcasters++
		}
	}
	if len(w.agents) > 0 {
		m.MeanHealth = health / float64(len(w.agents))
	}
	if w.stats != nil {
		m.StatsWindow = w.stats.Summarize(nextTick - 1)
		m.StatsWindowTicks = w.stats.WindowTicks()
	}
	return m
}

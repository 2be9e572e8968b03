package agent

import (
	"log"

	"github.com/paulmach/orb"

	"sugarscape.ai/internal/sim/geom"
	"sugarscape.ai/internal/sim/gossip"
	"sugarscape.ai/internal/sim/policy"
)

// Env is everything an agent may ask of the world during its step. The world passes
// itself in on every call; agents never hold on to it.
type Env interface {
	Arena() geom.Arena
	// Population is the configured agent count, used to normalize crowding.
	Population() int

	// NearestResource returns the centre of the closest patch with capacity left whose
	// centre lies strictly within radius of p.
	NearestResource(p orb.Point, radius float64) (geom.Loc, bool)
	// ResourceAt reports whether some patch with capacity left covers loc.
	ResourceAt(loc geom.Loc) bool
	// Consume takes one unit from the patch covering loc.
	Consume(loc geom.Loc) bool
	// ClearOfResources reports whether every patch centre is at least minDist from loc.
	ClearOfResources(loc geom.Loc, minDist float64) bool

	// Neighbors lists the living agents other than a within radius, in id order.
	Neighbors(a *Agent, radius float64) []*Agent

	IsHistoricalFalse(loc geom.Loc) bool
	RegisterFalseLocation(loc geom.Loc)

	RecordDecision(rec DecisionRecord)
	// RecordConsumption is called after a successful Consume by agentID.
	RecordConsumption(agentID int)

	Logger() *log.Logger
}

// DecisionRecord captures what an agent knew about the option it picked.
type DecisionRecord struct {
	Tick  uint64               `json:"tick"`
	Agent int                  `json:"agent"`
	Kind  policy.CandidateKind `json:"kind"`
	Loc   geom.Loc             `json:"loc"`

	Distance    float64               `json:"distance,omitempty"`
	Counts      gossip.Entry          `json:"counts"`
	Predominant gossip.Characteristic `json:"predominant,omitempty"`
	IsFalse     bool                  `json:"is_false,omitempty"`

	// Set for target decisions only.
	TruePositive  bool `json:"true_positive,omitempty"`
	FalsePositive bool `json:"false_positive,omitempty"`
}

// Config holds the per-agent tuning shared by the whole population.
type Config struct {
	Speed     float64
	TurnAngle float64

	InitialHealth float64
	MaxHealth     float64
	Decay         float64
	FalseDecay    float64
	EatAmount     float64

	DetectionRadius     float64
	CommunicationRadius float64
	LingerTicks         uint64

	DecisionMean float64
	DecisionStd  float64
	DecisionMin  uint64

	MaxCount     float64
	RecencyDecay float64

	FalsePadding     float64
	FalseMinDistance float64
	FalseHoldTicks   uint64
	FalseAttempts    int

	TimePenalty float64
	DeathCredit float64
}

func (c *Config) applyDefaults() {
	if c.Speed <= 0 {
		c.Speed = 1
	}
	if c.TurnAngle <= 0 {
		c.TurnAngle = 0.39269908169872414 // pi/8
	}
	if c.InitialHealth <= 0 {
		c.InitialHealth = 100
	}
	if c.MaxHealth < c.InitialHealth {
		c.MaxHealth = 150
		if c.MaxHealth < c.InitialHealth {
			c.MaxHealth = c.InitialHealth
		}
	}
	if c.Decay <= 0 {
		c.Decay = 0.07
	}
	if c.FalseDecay <= 0 {
		c.FalseDecay = 0.1
	}
	if c.EatAmount <= 0 {
		c.EatAmount = 10
	}
	if c.DetectionRadius <= 0 {
		c.DetectionRadius = 60
	}
	if c.CommunicationRadius <= 0 {
		c.CommunicationRadius = 7000
	}
	if c.LingerTicks == 0 {
		c.LingerTicks = 50
	}
	if c.DecisionMean <= 0 {
		c.DecisionMean = 500
	}
	if c.DecisionStd < 0 {
		c.DecisionStd = 0
	}
	if c.DecisionMin == 0 {
		c.DecisionMin = 300
	}
	if c.MaxCount <= 0 {
		c.MaxCount = 10
	}
	if c.RecencyDecay <= 0 {
		c.RecencyDecay = 0.001
	}
	if c.FalsePadding <= 0 {
		c.FalsePadding = 30
	}
	if c.FalseMinDistance <= 0 {
		c.FalseMinDistance = 150
	}
	if c.FalseHoldTicks == 0 {
		c.FalseHoldTicks = 800
	}
	if c.FalseAttempts <= 0 {
		c.FalseAttempts = 100
	}
	if c.TimePenalty < 0 {
		c.TimePenalty = 0
	}
}

// DefaultConfig returns the population defaults.
func DefaultConfig() Config {
	c := Config{DecisionStd: 100, TimePenalty: 0.02}
	c.applyDefaults()
	return c
}

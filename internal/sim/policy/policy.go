// Package policy holds the decision policies agents consult when choosing between
// communicated locations and exploring. The agent engine only sees the Policy interface;
// the numeric internals stay here.
package policy

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"sugarscape.ai/internal/sim/geom"
	"sugarscape.ai/internal/sim/gossip"
)

const (
	StateSize   = 4
	FeatureSize = 5
)

// State is the agent's own view: health, crowding and position, all in [0,1].
type State [StateSize]float64

// Features describe one candidate: distance, confirmed, accepted, rejected, recency.
type Features [FeatureSize]float64

type CandidateKind uint8

const (
	KindTarget CandidateKind = iota
	KindExplore
)

func (k CandidateKind) String() string {
	if k == KindExplore {
		return "explore"
	}
	return "target"
}

type Candidate struct {
	Kind     CandidateKind
	Loc      geom.Loc
	Features Features

	// Raw inputs, for policies that score counts directly.
	Distance float64
	Counts   gossip.Entry
}

// Token is handed back with every choice and must be returned untouched to
// AttributeCredit once the action is closed.
type Token struct {
	ID      uint64
	LogProb float64
}

type Policy interface {
	// Choose returns the index of the chosen candidate.
	Choose(agentID int, state State, cands []Candidate, rng *rand.Rand) (int, Token)
	// AttributeCredit closes the decision identified by tok with a scalar reward.
	AttributeCredit(agentID int, tok Token, reward float64)
}

const (
	KindRule   = "rule"
	KindLinear = "linear"
)

// Config tunes the learned policy. Randomness always comes from the caller's stream.
type Config struct {
	LearningRate  float64
	BaselineDecay float64
	Greedy        bool
}

func New(kind string, cfg Config) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", KindRule:
		return RuleBased{}, nil
	case KindLinear:
		return NewLinear(cfg), nil
	default:
		return nil, fmt.Errorf("policy: unknown kind %q", kind)
	}
}

func exploreIndex(cands []Candidate) int {
	for i := len(cands) - 1; i >= 0; i-- {
		if cands[i].Kind == KindExplore {
			return i
		}
	}
	return -1
}

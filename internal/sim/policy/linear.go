package policy

import (
	"math"
	"math/rand/v2"
	"sync"
)

// Parameter layout: target weights over Features, target bias, explore weights over State,
// explore bias.
const (
	paramTargetBias  = FeatureSize
	paramExploreBase = FeatureSize + 1
	paramExploreBias = paramExploreBase + StateSize
	ParamSize        = paramExploreBias + 1
)

type Params [ParamSize]float64

// Linear is a softmax policy over candidates trained with REINFORCE against a running
// reward baseline. Targets are scored from their features; exploring is scored from the
// agent's own state, so hunger and crowding can shift the explore/exploit balance.
type Linear struct {
	mu       sync.Mutex
	theta    Params
	lr       float64
	decay    float64
	greedy   bool
	baseline float64
	seeded   bool
	nextID   uint64
	pending  map[uint64]Params
	updates  uint64
}

func NewLinear(cfg Config) *Linear {
	lr := cfg.LearningRate
	if lr <= 0 {
		lr = 0.01
	}
	decay := cfg.BaselineDecay
	if decay <= 0 || decay >= 1 {
		decay = 0.95
	}
	l := &Linear{lr: lr, decay: decay, greedy: cfg.Greedy, pending: map[uint64]Params{}}
	// Start close to the rule of thumb: prefer confirmed, avoid rejected and far.
	l.theta[0] = -2
	l.theta[1] = 2
	l.theta[2] = 1
	l.theta[3] = -2
	l.theta[4] = 0.5
	return l
}

func phi(state State, c Candidate) Params {
	var p Params
	if c.Kind == KindExplore {
		for i, v := range state {
			p[paramExploreBase+i] = v
		}
		p[paramExploreBias] = 1
		return p
	}
	for i, v := range c.Features {
		p[i] = v
	}
	p[paramTargetBias] = 1
	return p
}

func dot(a, b *Params) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func (l *Linear) Choose(_ int, state State, cands []Candidate, rng *rand.Rand) (int, Token) {
	if len(cands) == 0 {
		return -1, Token{}
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	feats := make([]Params, len(cands))
	logits := make([]float64, len(cands))
	maxLogit := math.Inf(-1)
	for i, c := range cands {
		feats[i] = phi(state, c)
		logits[i] = dot(&l.theta, &feats[i])
		if logits[i] > maxLogit {
			maxLogit = logits[i]
		}
	}
	probs := make([]float64, len(cands))
	sum := 0.0
	for i, z := range logits {
		probs[i] = math.Exp(z - maxLogit)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}

	pick := 0
	if l.greedy {
		for i := range probs {
			if probs[i] > probs[pick] {
				pick = i
			}
		}
	} else {
		u := rng.Float64()
		cum := 0.0
		pick = len(probs) - 1
		for i, p := range probs {
			cum += p
			if u < cum {
				pick = i
				break
			}
		}
	}

	// grad log pi(pick) = phi(pick) - E_pi[phi]
	var grad Params
	for i := range cands {
		for j := range grad {
			grad[j] -= probs[i] * feats[i][j]
		}
	}
	for j := range grad {
		grad[j] += feats[pick][j]
	}

	l.nextID++
	id := l.nextID
	l.pending[id] = grad
	return pick, Token{ID: id, LogProb: math.Log(probs[pick])}
}

// AttributeCredit applies the policy-gradient step for the decision behind tok. Unknown or
// already-settled tokens are ignored.
func (l *Linear) AttributeCredit(_ int, tok Token, reward float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	grad, ok := l.pending[tok.ID]
	if !ok {
		return
	}
	delete(l.pending, tok.ID)

	if !l.seeded {
		l.baseline = reward
		l.seeded = true
	}
	adv := reward - l.baseline
	for i := range l.theta {
		l.theta[i] += l.lr * adv * grad[i]
	}
	l.baseline = l.decay*l.baseline + (1-l.decay)*reward
	l.updates++
}

func (l *Linear) Params() Params {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.theta
}

func (l *Linear) SetParams(p Params) {
	l.mu.Lock()
	l.theta = p
	l.mu.Unlock()
}

// Pending is the number of decisions still waiting for credit.
func (l *Linear) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

func (l *Linear) Updates() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.updates
}

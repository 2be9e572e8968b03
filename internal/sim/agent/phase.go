package agent

import (
	"sugarscape.ai/internal/sim/geom"
	"sugarscape.ai/internal/sim/policy"
)

type PhaseKind uint8

const (
	PhaseIdle PhaseKind = iota
	PhaseExploring
	PhaseTraveling
	PhaseArrived
)

func (k PhaseKind) String() string {
	switch k {
	case PhaseExploring:
		return "exploring"
	case PhaseTraveling:
		return "traveling"
	case PhaseArrived:
		return "arrived"
	default:
		return "idle"
	}
}

// TargetSource says where a travel target came from.
type TargetSource uint8

const (
	FromLedger TargetSource = iota
	FromPerception
)

// Phase is the agent's movement state. Only the fields of the active kind are meaningful:
// Target and Source while traveling, Since and Feeding once arrived.
type Phase struct {
	Kind   PhaseKind
	Target geom.Loc
	Source TargetSource

	Since   uint64
	Feeding bool
}

func idle() Phase      { return Phase{Kind: PhaseIdle} }
func exploring() Phase { return Phase{Kind: PhaseExploring} }

func traveling(to geom.Loc, src TargetSource) Phase {
	return Phase{Kind: PhaseTraveling, Target: to, Source: src}
}

func arrived(now uint64, feeding bool) Phase {
	return Phase{Kind: PhaseArrived, Since: now, Feeding: feeding}
}

// HasTarget reports whether the agent is heading somewhere.
func (p Phase) HasTarget() bool { return p.Kind == PhaseTraveling }

// CloseReason records how an action ended.
type CloseReason uint8

const (
	Completed CloseReason = iota
	Interrupted
	Died
)

func (r CloseReason) String() string {
	switch r {
	case Interrupted:
		return "interrupted"
	case Died:
		return "died"
	default:
		return "completed"
	}
}

// Action is the bookkeeping for one policy decision, open from the decision until its
// credit is attributed.
type Action struct {
	Kind          policy.CandidateKind
	Target        geom.Loc
	Token         policy.Token
	Started       uint64
	HealthAtStart float64
}

// ActionStats counts started and closed actions by reason.
type ActionStats struct {
	Started     uint64 `json:"started"`
	Completed   uint64 `json:"completed"`
	Interrupted uint64 `json:"interrupted"`
	Died        uint64 `json:"died"`
}

func (s ActionStats) Closed() uint64 {
	return s.Completed + s.Interrupted + s.Died
}

package observerproto

// Version is the observer protocol version.
const Version = "1"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeTick      = "TICK"
)

// Client -> Server. First message on the observer WS connection, and can be re-sent to update settings.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// EveryTicks thins the stream to one frame per N ticks. 0 or 1 sends every tick.
	EveryTicks int `json:"every_ticks,omitempty"`
	// Decisions adds the per-tick decision records to each frame.
	Decisions bool `json:"decisions,omitempty"`
}

// HTTP response for GET /observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string        `json:"protocol_version"`
	EpisodeID       string        `json:"episode_id"`
	Tick            uint64        `json:"tick"`
	Params          EpisodeParams `json:"params"`
	Patches         []PatchState  `json:"patches"`
	Agents          []AgentState  `json:"agents"`
}

type EpisodeParams struct {
	TickRateHz          int        `json:"tick_rate_hz"`
	Arena               [2]float64 `json:"arena"`
	Seed                uint64     `json:"seed"`
	Agents              int        `json:"agents"`
	FalseBroadcasters   int        `json:"false_broadcasters"`
	DetectionRadius     float64    `json:"detection_radius"`
	CommunicationRadius float64    `json:"communication_radius"`
	Policy              string     `json:"policy"`
	MaxTicks            uint64     `json:"max_ticks"`
}

// Server -> Client. Sent every tick (or every N ticks, see SubscribeMsg).
type TickMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	Digest          string `json:"digest"`

	Agents    []AgentState    `json:"agents"`
	Patches   []PatchState    `json:"patches"`
	Deaths    []int           `json:"deaths,omitempty"`
	Decisions []DecisionState `json:"decisions,omitempty"`
	Counters  Counters        `json:"counters"`
	Over      string          `json:"over,omitempty"`
}

type AgentState struct {
	ID               int        `json:"id"`
	Pos              [2]float64 `json:"pos"`
	Heading          float64    `json:"heading"`
	Health           float64    `json:"health"`
	FalseBroadcaster bool       `json:"false_broadcaster,omitempty"`
	Phase            string     `json:"phase"`
	Target           *[2]int    `json:"target,omitempty"`
	FalseClaim       *[2]int    `json:"false_claim,omitempty"`
}

type PatchState struct {
	ID       int     `json:"id"`
	Pos      [2]int  `json:"pos"`
	Radius   float64 `json:"radius"`
	Capacity int     `json:"capacity"`
	Consumed int     `json:"consumed"`
}

type DecisionState struct {
	Agent         int    `json:"agent"`
	Kind          string `json:"kind"`
	Target        [2]int `json:"target"`
	TruePositive  bool   `json:"true_positive,omitempty"`
	FalsePositive bool   `json:"false_positive,omitempty"`
}

type Counters struct {
	TruePositives  uint64 `json:"true_positives"`
	FalsePositives uint64 `json:"false_positives"`
	Explores       uint64 `json:"explores"`
	Exploits       uint64 `json:"exploits"`
	Consumed       uint64 `json:"consumed"`
	Dead           uint64 `json:"dead"`
}

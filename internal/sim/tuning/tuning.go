package tuning

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid tuning")

//go:embed tuning.schema.json
var schemaJSON string

type Tuning struct {
	Seed               uint64 `yaml:"seed" json:"seed"`
	TickRateHz         int    `yaml:"tick_rate_hz" json:"tick_rate_hz"`
	SnapshotEveryTicks int    `yaml:"snapshot_every_ticks" json:"snapshot_every_ticks"`

	Arena       Arena       `yaml:"arena" json:"arena"`
	Agents      Agents      `yaml:"agents" json:"agents"`
	Resources   Resources   `yaml:"resources" json:"resources"`
	Gossip      Gossip      `yaml:"gossip" json:"gossip"`
	FalseClaims FalseClaims `yaml:"false_claims" json:"false_claims"`
	Credit      Credit      `yaml:"credit" json:"credit"`
	Episode     Episode     `yaml:"episode" json:"episode"`
	Policy      Policy      `yaml:"policy" json:"policy"`
}

type Arena struct {
	Width  float64 `yaml:"width" json:"width"`
	Height float64 `yaml:"height" json:"height"`
}

type Agents struct {
	Count               int     `yaml:"count" json:"count"`
	FalseBroadcasters   int     `yaml:"false_broadcasters" json:"false_broadcasters"`
	Speed               float64 `yaml:"speed" json:"speed"`
	TurnAngle           float64 `yaml:"turn_angle" json:"turn_angle"`
	InitialHealth       float64 `yaml:"initial_health" json:"initial_health"`
	MaxHealth           float64 `yaml:"max_health" json:"max_health"`
	Decay               float64 `yaml:"decay" json:"decay"`
	FalseDecay          float64 `yaml:"false_decay" json:"false_decay"`
	EatAmount           float64 `yaml:"eat_amount" json:"eat_amount"`
	DetectionRadius     float64 `yaml:"detection_radius" json:"detection_radius"`
	CommunicationRadius float64 `yaml:"communication_radius" json:"communication_radius"`
	LingerTicks         int     `yaml:"linger_ticks" json:"linger_ticks"`

	DecisionInterval DecisionInterval `yaml:"decision_interval" json:"decision_interval"`
}

type DecisionInterval struct {
	Mean float64 `yaml:"mean" json:"mean"`
	Std  float64 `yaml:"std" json:"std"`
	Min  int     `yaml:"min" json:"min"`
}

type Resources struct {
	InitialPadding   float64 `yaml:"initial_padding" json:"initial_padding"`
	PatchSize        float64 `yaml:"patch_size" json:"patch_size"`
	Capacity         int     `yaml:"capacity" json:"capacity"`
	Radius           float64 `yaml:"radius" json:"radius"`
	NewPatchEvery    int     `yaml:"new_patch_every_ticks" json:"new_patch_every_ticks"`
	MinPatchDistance float64 `yaml:"min_patch_distance" json:"min_patch_distance"`
	MinFalseDistance float64 `yaml:"min_false_distance" json:"min_false_distance"`
	Attempts         int     `yaml:"attempts" json:"attempts"`
	RegenEveryTicks  int     `yaml:"regen_every_ticks" json:"regen_every_ticks"`
}

type Gossip struct {
	MaxCount     float64 `yaml:"max_count" json:"max_count"`
	RecencyDecay float64 `yaml:"recency_decay" json:"recency_decay"`
}

type FalseClaims struct {
	Padding     float64 `yaml:"padding" json:"padding"`
	MinDistance float64 `yaml:"min_distance" json:"min_distance"`
	HoldTicks   int     `yaml:"hold_ticks" json:"hold_ticks"`
	Attempts    int     `yaml:"attempts" json:"attempts"`
}

type Credit struct {
	TimePenalty float64 `yaml:"time_penalty" json:"time_penalty"`
	DeathCredit float64 `yaml:"death_credit" json:"death_credit"`
}

type Episode struct {
	MaxTicks int `yaml:"max_ticks" json:"max_ticks"`
	MinAlive int `yaml:"min_alive" json:"min_alive"`
}

type Policy struct {
	Kind          string  `yaml:"kind" json:"kind"`
	LearningRate  float64 `yaml:"learning_rate" json:"learning_rate"`
	BaselineDecay float64 `yaml:"baseline_decay" json:"baseline_decay"`
	Greedy        bool    `yaml:"greedy" json:"greedy"`
}

func Defaults() Tuning {
	return Tuning{
		Seed:               1,
		TickRateHz:         60,
		SnapshotEveryTicks: 3000,
		Arena:              Arena{Width: 700, Height: 700},
		Agents: Agents{
			Count:               20,
			FalseBroadcasters:   2,
			Speed:               1,
			TurnAngle:           0.39269908169872414,
			InitialHealth:       100,
			MaxHealth:           150,
			Decay:               0.07,
			FalseDecay:          0.1,
			EatAmount:           10,
			DetectionRadius:     60,
			CommunicationRadius: 7000,
			LingerTicks:         50,
			DecisionInterval:    DecisionInterval{Mean: 500, Std: 100, Min: 300},
		},
		Resources: Resources{
			InitialPadding:   120,
			PatchSize:        50,
			Capacity:         70,
			Radius:           20,
			NewPatchEvery:    600,
			MinPatchDistance: 180,
			MinFalseDistance: 150,
			Attempts:         100,
		},
		Gossip:      Gossip{MaxCount: 10, RecencyDecay: 0.001},
		FalseClaims: FalseClaims{Padding: 30, MinDistance: 150, HoldTicks: 800, Attempts: 100},
		Credit:      Credit{TimePenalty: 0.02},
		Episode:     Episode{MaxTicks: 30000, MinAlive: 3},
		Policy:      Policy{Kind: "rule", LearningRate: 0.01, BaselineDecay: 0.95},
	}
}

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("tuning.schema.json", schemaJSON)
	})
	return schema, schemaErr
}

// Load reads a YAML tuning file over the defaults. A missing file yields the defaults.
func Load(path string) (Tuning, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Defaults(), nil
	}
	if err != nil {
		return Tuning{}, err
	}
	return Parse(raw)
}

// Parse decodes a YAML document, checks it against the embedded schema and the
// cross-field rules, and overlays it on the defaults.
func Parse(raw []byte) (Tuning, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Tuning{}, fmt.Errorf("tuning.yaml: %w", err)
	}
	if doc != nil {
		if err := validateDoc(doc); err != nil {
			return Tuning{}, err
		}
	}
	t := Defaults()
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return Tuning{}, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return Tuning{}, err
	}
	return t, nil
}

func validateDoc(doc any) error {
	s, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("tuning schema: %w", err)
	}
	// The validator wants JSON values, not YAML ones.
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Validate checks the rules a schema cannot express.
func (t Tuning) Validate() error {
	var problems []string
	if t.Arena.Width <= 0 || t.Arena.Height <= 0 {
		problems = append(problems, "arena must have positive size")
	}
	if t.Agents.Count <= 0 {
		problems = append(problems, "agents.count must be positive")
	}
	if t.Agents.FalseBroadcasters > t.Agents.Count {
		problems = append(problems, "agents.false_broadcasters exceeds agents.count")
	}
	if t.Agents.MaxHealth < t.Agents.InitialHealth {
		problems = append(problems, "agents.max_health below initial_health")
	}
	if t.Episode.MinAlive > t.Agents.Count {
		problems = append(problems, "episode.min_alive exceeds agents.count")
	}
	if 2*t.Resources.InitialPadding+t.Resources.PatchSize > t.Arena.Width ||
		2*t.Resources.InitialPadding+t.Resources.PatchSize > t.Arena.Height {
		problems = append(problems, "resources.initial_padding leaves no room for the initial patches")
	}
	switch strings.ToLower(t.Policy.Kind) {
	case "", "rule", "linear":
	default:
		problems = append(problems, fmt.Sprintf("policy.kind %q unknown", t.Policy.Kind))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

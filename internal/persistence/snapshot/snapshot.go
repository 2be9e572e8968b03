package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"sugarscape.ai/internal/sim/tuning"
)

const Version = 1

type Header struct {
	Version   int    `json:"version"`
	EpisodeID string `json:"episode_id"`
	Tick      uint64 `json:"tick"`
	Digest    string `json:"digest"`
}

// SnapshotV1 is a full picture of an episode at a tick boundary. Tuning and Seed are
// enough to re-run the episode from tick 0.
type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed       uint64        `json:"seed"`
	PolicyKind string        `json:"policy_kind"`
	Tuning     tuning.Tuning `json:"tuning"`

	Patches         []PatchV1        `json:"patches"`
	Agents          []AgentV1        `json:"agents"`
	Departed        []AgentSummaryV1 `json:"departed,omitempty"`
	HistoricalFalse [][2]int         `json:"historical_false,omitempty"`
	Counters        CountersV1       `json:"counters"`
}

type PatchV1 struct {
	ID       int     `json:"id"`
	X        int     `json:"x"`
	Y        int     `json:"y"`
	Radius   float64 `json:"radius"`
	Capacity int     `json:"capacity"`
	Initial  int     `json:"initial"`
	Created  uint64  `json:"created"`
}

type LedgerEntryV1 struct {
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Accepted  uint32 `json:"accepted,omitempty"`
	Confirmed uint32 `json:"confirmed,omitempty"`
	Rejected  uint32 `json:"rejected,omitempty"`
	LastHeard uint64 `json:"last_heard"`
}

type AgentV1 struct {
	ID               int     `json:"id"`
	X                float64 `json:"x"`
	Y                float64 `json:"y"`
	Heading          float64 `json:"heading"`
	Health           float64 `json:"health"`
	Lifespan         uint64  `json:"lifespan"`
	FalseBroadcaster bool    `json:"false_broadcaster,omitempty"`
	TotalReward      float64 `json:"total_reward"`

	Phase       string   `json:"phase"`
	Target      *[2]int  `json:"target,omitempty"`
	LastVisited *[2]int  `json:"last_visited,omitempty"`
	FalseClaim  *[2]int  `json:"false_claim,omitempty"`
	ActionOpen  bool     `json:"action_open,omitempty"`
	NextDecide  uint64   `json:"next_decision"`
	True        [][2]int `json:"confirmed_true,omitempty"`
	False       [][2]int `json:"confirmed_false,omitempty"`

	Ledger []LedgerEntryV1 `json:"ledger,omitempty"`
}

type AgentSummaryV1 struct {
	ID               int     `json:"id"`
	FalseBroadcaster bool    `json:"false_broadcaster,omitempty"`
	Lifespan         uint64  `json:"lifespan"`
	TotalReward      float64 `json:"total_reward"`
	DiedAt           uint64  `json:"died_at"`
}

type CountersV1 struct {
	TruePositives  uint64 `json:"true_positives"`
	FalsePositives uint64 `json:"false_positives"`
	Explores       uint64 `json:"explores"`
	Exploits       uint64 `json:"exploits"`
	Consumed       uint64 `json:"consumed"`
	Dead           uint64 `json:"dead"`
	PatchesAdded   uint64 `json:"patches_added"`
}

// WriteSnapshot writes a JSON header line followed by the gob-encoded snapshot, all
// inside one zstd stream.
func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Sync()
}

// ReadHeader returns only the header line, without decoding the body.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The gob body repeats the header.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("snapshot version %d not supported", snap.Header.Version)
	}
	return snap, nil
}

package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"

	"sugarscape.ai/internal/sim/agent"
	"sugarscape.ai/internal/sim/geom"
	"sugarscape.ai/internal/sim/gossip"
)

// stateDigest hashes everything that influences future ticks. Two worlds built from the
// same config and seed must produce the same digest at every tick.
func (w *World) stateDigest(nowTick uint64) string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, nowTick)
	digestWriteU64(h, &tmp, w.cfg.Seed)

	digestWriteU64(h, &tmp, uint64(len(w.patches)))
	for _, p := range w.patches {
		digestWriteU64(h, &tmp, uint64(p.ID))
		digestWriteLoc(h, &tmp, p.Loc)
		digestWriteI64(h, &tmp, int64(p.Capacity))
	}

	digestWriteU64(h, &tmp, uint64(len(w.historicalFalse)))
	for _, l := range w.HistoricalFalse() {
		digestWriteLoc(h, &tmp, l)
	}

	digestWriteU64(h, &tmp, uint64(len(w.agents)))
	for _, a := range w.agents {
		digestAgent(h, &tmp, a)
	}

	c := w.counters
	for _, v := range []uint64{c.TruePositives, c.FalsePositives, c.Explores, c.Exploits, c.Consumed, c.Dead, c.PatchesAdded} {
		digestWriteU64(h, &tmp, v)
	}

	return hex.EncodeToString(h.Sum(nil))
}

func digestAgent(h hashWriter, tmp *[8]byte, a *agent.Agent) {
	digestWriteU64(h, tmp, uint64(a.ID))
	digestWriteF64(h, tmp, a.Pos[0])
	digestWriteF64(h, tmp, a.Pos[1])
	digestWriteF64(h, tmp, a.Heading)
	digestWriteF64(h, tmp, a.Health)
	digestWriteU64(h, tmp, a.Lifespan)
	digestWriteF64(h, tmp, a.TotalReward)
	h.Write([]byte{boolByte(a.FalseBroadcaster), byte(a.Phase().Kind), boolByte(a.ActionInProgress())})
	if ph := a.Phase(); ph.HasTarget() {
		digestWriteLoc(h, tmp, ph.Target)
	}
	digestWriteU64(h, tmp, a.NextDecision())
	if loc, ok := a.FalseClaim(); ok {
		digestWriteLoc(h, tmp, loc)
	}

	a.Ledger().Each(func(loc geom.Loc, e gossip.Entry) bool {
		digestWriteLoc(h, tmp, loc)
		digestWriteU64(h, tmp, uint64(e.Accepted)<<32|uint64(e.Confirmed))
		digestWriteU64(h, tmp, uint64(e.Rejected))
		digestWriteU64(h, tmp, e.LastHeard)
		return true
	})
	for _, set := range [][]geom.Loc{a.ConfirmedTrueLocs(), a.ConfirmedFalseLocs()} {
		digestWriteU64(h, tmp, uint64(len(set)))
		for _, l := range set {
			digestWriteLoc(h, tmp, l)
		}
	}
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hashWriter, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}

func digestWriteF64(h hashWriter, tmp *[8]byte, v float64) {
	digestWriteU64(h, tmp, math.Float64bits(v))
}

func digestWriteLoc(h hashWriter, tmp *[8]byte, l geom.Loc) {
	digestWriteI64(h, tmp, int64(l.X))
	digestWriteI64(h, tmp, int64(l.Y))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

type hashWriter interface {
	Write(p []byte) (n int, err error)
}

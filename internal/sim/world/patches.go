package world

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"

	"sugarscape.ai/internal/sim/geom"
)

// patchEdgeMargin keeps injected patches this far (plus their radius) from the walls.
const patchEdgeMargin = 20

// Patch is a circular resource area. Its centre is the location agents gossip about.
type Patch struct {
	ID       int
	Loc      geom.Loc
	Radius   float64
	Capacity int
	Initial  int
	Created  uint64
	Consumed int
}

func (p *Patch) Point() orb.Point { return p.Loc.Point() }

func (p *Patch) Depleted() bool { return p.Capacity <= 0 }

func (p *Patch) Covers(pt orb.Point) bool {
	return geom.Distance(p.Point(), pt) <= p.Radius
}

// ResourceInfo is the read-only view of a patch handed to observers.
type ResourceInfo struct {
	ID       int      `json:"id"`
	Loc      geom.Loc `json:"loc"`
	Radius   float64  `json:"radius"`
	Capacity int      `json:"capacity"`
	Consumed int      `json:"consumed"`
}

// Resources lists every patch in creation order, depleted ones included.
func (w *World) Resources() []ResourceInfo {
	out := make([]ResourceInfo, 0, len(w.patches))
	for _, p := range w.patches {
		out = append(out, ResourceInfo{ID: p.ID, Loc: p.Loc, Radius: p.Radius, Capacity: p.Capacity, Consumed: p.Consumed})
	}
	return out
}

func (w *World) addPatch(loc geom.Loc, now uint64) (*Patch, error) {
	rc := w.cfg.Resources
	p := &Patch{
		ID:       len(w.patches) + 1,
		Loc:      loc,
		Radius:   rc.Radius,
		Capacity: rc.Capacity,
		Initial:  rc.Capacity,
		Created:  now,
	}
	if err := w.index.Add(p); err != nil {
		return nil, fmt.Errorf("index patch %d at %s: %w", p.ID, loc, err)
	}
	w.patches = append(w.patches, p)
	return p, nil
}

// placeInitialPatches seeds two patches on the arena diagonal, inset by the padding.
func (w *World) placeInitialPatches() error {
	rc := w.cfg.Resources
	a := w.cfg.Arena
	inset := rc.InitialPadding + math.Floor(rc.PatchSize/2)
	for _, pt := range []orb.Point{
		{inset, inset},
		{a.Width - inset, a.Height - inset},
	} {
		if _, err := w.addPatch(geom.LocOf(a.Clamp(pt)), 0); err != nil {
			return err
		}
	}
	return nil
}

// injectPatch tries to add one patch away from existing patches and from every
// fabricated location. Exhausting the attempts is logged and otherwise ignored.
func (w *World) injectPatch(now uint64) (geom.Loc, bool) {
	rc := w.cfg.Resources
	a := w.cfg.Arena
	margin := patchEdgeMargin + rc.Radius
	loX, hiX := int(margin), int(a.Width-margin)
	loY, hiY := int(margin), int(a.Height-margin)
	if hiX < loX || hiY < loY {
		w.log.Printf("tick %d: arena too small for a new patch", now)
		return geom.Loc{}, false
	}
	for i := 0; i < rc.Attempts; i++ {
		loc := geom.Loc{
			X: loX + w.rng.IntN(hiX-loX+1),
			Y: loY + w.rng.IntN(hiY-loY+1),
		}
		if !w.ClearOfResources(loc, rc.MinPatchDistance) {
			continue
		}
		if !w.clearOfFalse(loc, rc.MinFalseDistance) {
			continue
		}
		if _, err := w.addPatch(loc, now); err != nil {
			w.log.Printf("tick %d: %v", now, err)
			return geom.Loc{}, false
		}
		w.counters.PatchesAdded++
		return loc, true
	}
	w.log.Printf("tick %d: no room for a new patch after %d attempts", now, rc.Attempts)
	return geom.Loc{}, false
}

// regenerate returns one unit to every partially consumed patch.
func (w *World) regenerate() {
	for _, p := range w.patches {
		if p.Capacity < p.Initial {
			p.Capacity++
		}
	}
}

func (w *World) clearOfFalse(loc geom.Loc, minDist float64) bool {
	pt := loc.Point()
	for l := range w.historicalFalse {
		if geom.Distance(l.Point(), pt) < minDist {
			return false
		}
	}
	return true
}

// coveringPatch returns the lowest-id patch with capacity left that covers loc.
func (w *World) coveringPatch(loc geom.Loc) *Patch {
	pt := loc.Point()
	var best *Patch
	for _, c := range w.index.Within(pt, w.cfg.Resources.Radius) {
		p := c.(*Patch)
		if p.Depleted() || !p.Covers(pt) {
			continue
		}
		if best == nil || p.ID < best.ID {
			best = p
		}
	}
	return best
}

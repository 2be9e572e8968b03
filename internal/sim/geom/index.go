package geom

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/quadtree"
)

// Index answers proximity queries over static points (resource patches).
// Entries are never removed; patches only deplete.
type Index struct {
	qt  *quadtree.Quadtree
	len int
}

func NewIndex(a Arena) *Index {
	return &Index{qt: quadtree.New(a.Bound())}
}

func (ix *Index) Add(p orb.Pointer) error {
	if err := ix.qt.Add(p); err != nil {
		return err
	}
	ix.len++
	return nil
}

func (ix *Index) Len() int { return ix.len }

// Nearest returns the closest entry within maxDist accepted by match, or nil.
func (ix *Index) Nearest(p orb.Point, maxDist float64, match func(orb.Pointer) bool) orb.Pointer {
	if ix.len == 0 {
		return nil
	}
	var got []orb.Pointer
	if match != nil {
		got = ix.qt.KNearestMatching(nil, p, 1, quadtree.FilterFunc(match), maxDist)
	} else {
		got = ix.qt.KNearest(nil, p, 1, maxDist)
	}
	if len(got) == 0 {
		return nil
	}
	return got[0]
}

// Within returns every entry whose point lies within radius of p.
func (ix *Index) Within(p orb.Point, radius float64) []orb.Pointer {
	if ix.len == 0 {
		return nil
	}
	b := orb.Bound{
		Min: orb.Point{p[0] - radius, p[1] - radius},
		Max: orb.Point{p[0] + radius, p[1] + radius},
	}
	cand := ix.qt.InBound(nil, b)
	out := cand[:0]
	for _, c := range cand {
		if Distance(c.Point(), p) <= radius {
			out = append(out, c)
		}
	}
	return out
}

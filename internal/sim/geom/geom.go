package geom

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Loc is a quantized arena coordinate. Every claim, confirmed set and ledger keys on it,
// so two positions that round to the same cell are the same location.
type Loc struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func LocOf(p orb.Point) Loc {
	return Loc{X: int(math.Round(p[0])), Y: int(math.Round(p[1]))}
}

func (l Loc) Point() orb.Point {
	return orb.Point{float64(l.X), float64(l.Y)}
}

func (l Loc) String() string {
	return fmt.Sprintf("(%d,%d)", l.X, l.Y)
}

// Less orders locations by X then Y. Used wherever map iteration must be made stable.
func (l Loc) Less(o Loc) bool {
	if l.X != o.X {
		return l.X < o.X
	}
	return l.Y < o.Y
}

type Arena struct {
	Width  float64
	Height float64
}

func (a Arena) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{a.Width, a.Height}}
}

func (a Arena) Clamp(p orb.Point) orb.Point {
	return orb.Point{clamp(p[0], 0, a.Width), clamp(p[1], 0, a.Height)}
}

func (a Arena) Diagonal() float64 {
	return math.Hypot(a.Width, a.Height)
}

func Distance(a, b orb.Point) float64 {
	return planar.Distance(a, b)
}

// Step returns p advanced by speed along heading (radians).
func Step(p orb.Point, heading, speed float64) orb.Point {
	return orb.Point{p[0] + speed*math.Cos(heading), p[1] + speed*math.Sin(heading)}
}

func Heading(from, to orb.Point) float64 {
	return math.Atan2(to[1]-from[1], to[0]-from[0])
}

// NormalizeAngle wraps a heading into [0, 2π).
func NormalizeAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

package mathx

import (
	"math"
	"math/rand/v2"
	"sort"
)

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Hash2 mixes a seed with two stream coordinates.
func Hash2(seed uint64, a, b uint64) uint64 {
	v := seed ^ (a * 0x9e3779b97f4a7c15) ^ (b * 0xbf58476d1ce4e5b9)
	return mix64(v)
}

// Stream returns an independent PCG stream for (seed, id). Same inputs, same sequence.
func Stream(seed uint64, id uint64) *rand.Rand {
	return rand.New(rand.NewPCG(Hash2(seed, id, 1), Hash2(seed, id, 2)))
}

// Median of xs; 0 when empty. xs is not modified.
func Median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := sortedCopy(xs)
	return quantileSorted(s, 0.5)
}

// IQRMean averages xs after dropping values outside [Q1-1.5·IQR, Q3+1.5·IQR].
// If the filter leaves nothing the median is returned instead.
func IQRMean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := sortedCopy(xs)
	q1 := quantileSorted(s, 0.25)
	q3 := quantileSorted(s, 0.75)
	iqr := q3 - q1
	lo, hi := q1-1.5*iqr, q3+1.5*iqr

	sum, n := 0.0, 0
	for _, v := range s {
		if v < lo || v > hi {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return quantileSorted(s, 0.5)
	}
	return sum / float64(n)
}

func sortedCopy(xs []float64) []float64 {
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	return s
}

// quantileSorted interpolates linearly between closest ranks.
func quantileSorted(s []float64, q float64) float64 {
	if len(s) == 1 {
		return s[0]
	}
	pos := q * float64(len(s)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return s[lo] + (s[hi]-s[lo])*frac
}

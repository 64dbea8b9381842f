package sim

import (
	"hash/fnv"
	"math/rand"
)

// Named random streams. Each consumer draws from its own stream so that
// adding draws in one component never perturbs the sequences seen by
// the others under the same root seed.
const (
	StreamDurations  = "durations"
	StreamExceptions = "exceptions"
	StreamShortage   = "shortage"
	StreamDelays     = "delays"
)

// RNG owns the root seed and hands out deterministic named streams
type RNG struct {
	seed    int64
	streams map[string]*Stream
}

// NewRNG returns a generator rooted at seed
func NewRNG(seed int64) *RNG {
	return &RNG{
		seed:    seed,
		streams: make(map[string]*Stream),
	}
}

// Seed returns the root seed
func (r *RNG) Seed() int64 {
	return r.seed
}

// Stream returns the stream for name, creating it on first use. The
// stream seed depends only on the root seed and the name, so streams
// are stable no matter which order components request them in.
func (r *RNG) Stream(name string) *Stream {
	if s, ok := r.streams[name]; ok {
		return s
	}
	h := fnv.New64a()
	h.Write([]byte(name))
	s := &Stream{r: rand.New(rand.NewSource(r.seed ^ int64(h.Sum64())))}
	r.streams[name] = s
	return s
}

// Stream is a deterministic source of random draws
type Stream struct {
	r *rand.Rand
}

// Float64 returns a draw in [0.0, 1.0)
func (s *Stream) Float64() float64 {
	return s.r.Float64()
}

// Uniform returns a draw in [lo, hi)
func (s *Stream) Uniform(lo, hi float64) float64 {
	return lo + s.r.Float64()*(hi-lo)
}

// Normal returns a draw from N(mean, std)
func (s *Stream) Normal(mean, std float64) float64 {
	return mean + s.r.NormFloat64()*std
}

// IntBetween returns an integer draw in [lo, hi] inclusive
func (s *Stream) IntBetween(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + s.r.Intn(hi-lo+1)
}

// WeightedIndex picks an index with probability proportional to its
// weight. Weights need not sum to one. Returns the last index when
// rounding leaves the draw past the cumulative total.
func (s *Stream) WeightedIndex(weights []float64) int {
	var total float64
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return 0
	}
	draw := s.r.Float64() * total
	var cum float64
	for i, w := range weights {
		cum += w
		if draw < cum {
			return i
		}
	}
	return len(weights) - 1
}

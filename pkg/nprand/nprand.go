// Package nprand is a seeded Mersenne Twister producing the same stream as numpy's legacy
// RandomState, so a random search seeded here samples what the equivalent numpy search samples.
package nprand

import "fmt"

const (
	stateLen  = 624
	shift     = 397
	matrixA   = uint32(0x9908b0df)
	upperMask = uint32(0x80000000)
	lowerMask = uint32(0x7fffffff)
)

// State is the state of the generator. It is not safe for concurrent use.
type State struct {
	Key [stateLen]uint32 `json:"key"`
	Pos int              `json:"pos"`
}

// New returns a generator seeded with seed.
func New(seed uint32) *State {
	s := &State{}
	s.Seed(seed)
	return s
}

// Seed resets the generator.
func (s *State) Seed(seed uint32) {
	for i := range s.Key {
		s.Key[i] = seed
		seed = 1812433253*(seed^(seed>>30)) + uint32(i) + 1
	}
	s.Pos = stateLen
}

func (s *State) twist() {
	mix := func(i, j, k int) {
		y := (s.Key[i] & upperMask) | (s.Key[j] & lowerMask)
		s.Key[i] = s.Key[k] ^ (y >> 1) ^ (-(y & 1) & matrixA)
	}
	i := 0
	for ; i < stateLen-shift; i++ {
		mix(i, i+1, i+shift)
	}
	for ; i < stateLen-1; i++ {
		mix(i, i+1, i+shift-stateLen)
	}
	mix(stateLen-1, 0, shift-1)
	s.Pos = 0
}

// Bits32 returns 32 random bits.
func (s *State) Bits32() uint32 {
	if s.Pos == stateLen {
		s.twist()
	}
	y := s.Key[s.Pos]
	s.Pos++

	y ^= y >> 11
	y ^= (y << 7) & 0x9d2c5680
	y ^= (y << 15) & 0xefc60000
	y ^= y >> 18
	return y
}

// UnitInterval returns a float64 in [0, 1) with 53 random bits.
func (s *State) UnitInterval() float64 {
	a := float64(s.Bits32() >> 5)
	b := float64(s.Bits32() >> 6)
	return (a*(1<<26) + b) / (1 << 53)
}

// Uniform returns a float64 in [low, high). It panics if high <= low.
func (s *State) Uniform(low, high float64) float64 {
	if high <= low {
		panic(fmt.Sprintf("nprand Uniform: high %v <= low %v", high, low))
	}
	return low + (high-low)*s.UnitInterval()
}

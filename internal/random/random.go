// Package random provides the seeded generator and shuffle that every
// sampling step draws from. Output is bit-exact across platforms so a seed
// fully reproduces an extraction.
package random

import (
	"time"
)

// Source produces floats in [0, 1).
type Source interface {
	Float64() float64
}

// Mulberry32 is a 32-bit generator with a single word of state.
type Mulberry32 struct {
	state uint32
}

// New returns a Mulberry32 seeded with seed.
func New(seed uint32) *Mulberry32 {
	return &Mulberry32{state: seed}
}

// Next returns the next raw 32-bit output.
func (m *Mulberry32) Next() uint32 {
	m.state += 0x6D2B79F5
	t := m.state
	t = (t ^ (t >> 15)) * (t | 1)
	t = (t + (t^(t>>7))*(t|61)) ^ t
	return t ^ (t >> 14)
}

// Float64 returns a float in [0, 1) with 32 bits of resolution.
func (m *Mulberry32) Float64() float64 {
	return float64(m.Next()) / 4294967296.0
}

// Intn returns an int in [0, n). It returns 0 when n <= 0.
func Intn(src Source, n int) int {
	if n <= 0 {
		return 0
	}
	i := int(src.Float64() * float64(n))
	if i >= n {
		i = n - 1
	}
	return i
}

// SeedFromClock derives a seed for runs that did not ask for reproducibility.
func SeedFromClock() uint32 {
	n := time.Now().UnixNano()
	return uint32(n) ^ uint32(n>>32)
}

// Shuffle returns a Fisher–Yates permutation of items drawn from src.
// The input slice is never modified.
func Shuffle[T any](items []T, src Source) []T {
	out := make([]T, len(items))
	copy(out, items)
	for i := len(out) - 1; i > 0; i-- {
		j := Intn(src, i+1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

package hostscript

import (
	"math/rand/v2"
)

// Picker chooses between canned alternatives.
type Picker interface {
	Intn(n int) int
	Chance(percent int) bool
}

// RandomPicker draws from the global source.
type RandomPicker struct{}

func (RandomPicker) Intn(n int) int { return rand.IntN(n) }

func (RandomPicker) Chance(percent int) bool {
	if percent <= 0 {
		return false
	}
	return rand.IntN(100) < percent
}

// FixedPicker always picks Index (clamped) and answers Chance with React.
type FixedPicker struct {
	Index int
	React bool
}

func (p FixedPicker) Intn(n int) int {
	if p.Index < 0 || n <= 0 {
		return 0
	}
	return p.Index % n
}

func (p FixedPicker) Chance(int) bool { return p.React }

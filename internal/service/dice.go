package service

import "math/rand/v2"

// DiceRoller produces n combat dice. Rolls happen server-side only;
// once an action carries its rolls, replay is fully deterministic.
type DiceRoller func(n int) []int

// NewD10Roller returns the production roller: n independent rolls of a
// ten-sided die, 1..10.
func NewD10Roller() DiceRoller {
	return func(n int) []int {
		rolls := make([]int, n)
		for i := range rolls {
			rolls[i] = rand.IntN(10) + 1
		}
		return rolls
	}
}

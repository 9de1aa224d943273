// Package score computes the points awarded for a single answer.
package score

import "math"

const (
	// BasePoints is awarded for any correct answer regardless of speed.
	BasePoints = 100

	// timeConstant controls how fast the speed bonus decays, in seconds.
	// A lower value makes the bonus drop faster early on.
	timeConstant = 15.0
)

// Calculate returns the points for an answer: 0 when incorrect, otherwise the
// base plus an exponentially decaying speed bonus of up to BasePoints.
// Answering instantly nearly doubles the score; a slow but correct answer
// still earns the base. Negative elapsed values count as instant.
func Calculate(correct bool, elapsedSeconds float64) int {
	if !correct {
		return 0
	}

	bonus := int(100 * math.Exp(-math.Max(elapsedSeconds, 0)/timeConstant))

	return BasePoints + bonus
}

package engine

import (
	"math"

	"github.com/EduForge-2025/cat-engine/internal/models"
)

const (
	// AbilityMin and AbilityMax bound the theta scale.
	AbilityMin = -4.0
	AbilityMax = 4.0

	// InitialStandardError is the uncertainty before any response is observed.
	InitialStandardError = 1.0

	// seFloor keeps the standard error strictly positive on long sessions.
	seFloor = 0.05
)

// AbilityEstimator turns a response history into an ability estimate and its
// standard error. Implementations must be pure: the same sequence always
// yields the same result, the standard error never increases as responses
// accumulate, and the estimate stays within [AbilityMin, AbilityMax].
type AbilityEstimator interface {
	Estimate(responses []models.Response) (theta, se float64)
}

// ProportionEstimator is the contracted estimator: ability is a linear map of
// the correct-answer proportion, centered at zero for 50% correctness and
// saturating at the scale bounds. Not an IRT model; swap the interface value
// for one if calibrated item parameters ever become available.
type ProportionEstimator struct{}

func NewProportionEstimator() AbilityEstimator {
	return ProportionEstimator{}
}

func (ProportionEstimator) Estimate(responses []models.Response) (float64, float64) {
	total := len(responses)
	if total == 0 {
		return 0, InitialStandardError
	}

	correct := 0
	for _, r := range responses {
		if r.Graded && r.IsCorrect {
			correct++
		}
	}

	theta := (float64(correct)/float64(total) - 0.5) * 4
	theta = clampAbility(theta)

	se := 1 / math.Sqrt(float64(total))
	if se < seFloor {
		se = seFloor
	}

	return theta, se
}

func clampAbility(theta float64) float64 {
	if theta < AbilityMin {
		return AbilityMin
	}
	if theta > AbilityMax {
		return AbilityMax
	}
	return theta
}

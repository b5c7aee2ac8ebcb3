package engine

import (
	"testing"

	"github.com/EduForge-2025/cat-engine/internal/models"
	"github.com/stretchr/testify/assert"
)

func defWith(criteria models.TerminationCriteria, minQ, maxQ int) *models.AdaptiveTestDefinition {
	return &models.AdaptiveTestDefinition{
		MinQuestions: minQ,
		MaxQuestions: maxQ,
		TimeLimit:    600,
		Settings: models.AdaptiveSettings{
			TerminationCriteria:           criteria,
			DifficultyAdjustmentThreshold: 0.3,
		},
	}
}

func TestTermination_FloorAndCeiling(t *testing.T) {
	// Every criterion must refuse to stop before the floor and must stop at
	// the ceiling, even when its own condition says otherwise.
	criteria := []models.TerminationCriteria{
		models.TerminationFixedLength,
		models.TerminationPrecisionBased,
		models.TerminationTimeBased,
		models.TerminationConfidenceInterval,
	}

	for _, c := range criteria {
		t.Run(string(c), func(t *testing.T) {
			def := defWith(c, 3, 8)
			eval := NewTerminationEvaluator(def.Settings)

			// Below the floor: SE far below threshold and time expired.
			assert.False(t, eval.ShouldStop(def, 2, 0.01, 100000))

			// At the ceiling: SE high and no time elapsed.
			assert.True(t, eval.ShouldStop(def, 8, 5.0, 0))
			assert.True(t, eval.ShouldStop(def, 9, 5.0, 0))
		})
	}
}

func TestTermination_FixedLength(t *testing.T) {
	def := defWith(models.TerminationFixedLength, 2, 4)
	eval := NewTerminationEvaluator(def.Settings)

	assert.False(t, eval.ShouldStop(def, 2, 0.01, 0))
	assert.False(t, eval.ShouldStop(def, 3, 0.01, 0))
	assert.True(t, eval.ShouldStop(def, 4, 1.0, 0))
}

func TestTermination_PrecisionBased(t *testing.T) {
	def := defWith(models.TerminationPrecisionBased, 2, 10)
	eval := NewTerminationEvaluator(def.Settings)

	tests := []struct {
		name         string
		administered int
		se           float64
		want         bool
	}{
		{"above threshold continues", 4, 0.5, false},
		{"below threshold stops", 4, 0.29, true},
		{"exactly threshold continues", 4, 0.3, false},
		{"below threshold but under floor", 1, 0.1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, eval.ShouldStop(def, tt.administered, tt.se, 0))
		})
	}
}

func TestTermination_CeilingForcesStopAboveThreshold(t *testing.T) {
	// min=2, max=4, precision-based with threshold 0.3; four correct answers
	// never push SE below 0.3, so the ceiling forces the stop.
	def := defWith(models.TerminationPrecisionBased, 2, 4)
	eval := NewTerminationEvaluator(def.Settings)
	est := NewProportionEstimator()

	seq := responseSeq(true, true)
	theta, se := est.Estimate(seq)
	assert.InDelta(t, 2.0, theta, 1e-9)
	assert.False(t, eval.ShouldStop(def, 2, se, 0), "SE %.3f not below 0.3", se)

	seq = responseSeq(true, true, true, true)
	_, se = est.Estimate(seq)
	assert.InDelta(t, 0.5, se, 1e-9)
	assert.True(t, eval.ShouldStop(def, 4, se, 0), "ceiling forces stop")
}

func TestTermination_TimeBased(t *testing.T) {
	def := defWith(models.TerminationTimeBased, 2, 10)
	eval := NewTerminationEvaluator(def.Settings)

	assert.False(t, eval.ShouldStop(def, 5, 1.0, 599))
	assert.True(t, eval.ShouldStop(def, 5, 1.0, 600))

	def.TimeLimit = 0 // no limit configured
	assert.False(t, eval.ShouldStop(def, 5, 1.0, 100000))
}

func TestTermination_ConfidenceInterval(t *testing.T) {
	def := defWith(models.TerminationConfidenceInterval, 2, 10)
	eval := NewTerminationEvaluator(def.Settings)

	// Half-width 1.96*SE must fall below the 0.3 bound.
	assert.False(t, eval.ShouldStop(def, 5, 0.2, 0))  // 0.392
	assert.True(t, eval.ShouldStop(def, 5, 0.15, 0))  // 0.294
	assert.False(t, eval.ShouldStop(def, 1, 0.15, 0)) // under floor
}

package engine

import "github.com/EduForge-2025/cat-engine/internal/models"

// TerminationEvaluator decides, after each response, whether a session should
// stop. Every criterion shares a hard floor at MinQuestions and a hard
// ceiling at MaxQuestions: stop is never reported before the floor and always
// reported at the ceiling.
type TerminationEvaluator interface {
	ShouldStop(def *models.AdaptiveTestDefinition, questionsAdministered int, currentSE float64, elapsedSeconds int) bool
}

// NewTerminationEvaluator builds the evaluator enumerated by the settings
// kind, wrapped with the shared floor/ceiling bounds.
func NewTerminationEvaluator(settings models.AdaptiveSettings) TerminationEvaluator {
	var inner TerminationEvaluator
	switch settings.TerminationCriteria {
	case models.TerminationPrecisionBased:
		inner = precisionBased{threshold: settings.DifficultyAdjustmentThreshold}
	case models.TerminationTimeBased:
		inner = timeBased{}
	case models.TerminationConfidenceInterval:
		inner = confidenceInterval{bound: settings.DifficultyAdjustmentThreshold}
	default:
		inner = fixedLength{}
	}
	return bounded{inner: inner}
}

// bounded enforces the floor and ceiling around any criterion.
type bounded struct {
	inner TerminationEvaluator
}

func (b bounded) ShouldStop(def *models.AdaptiveTestDefinition, administered int, se float64, elapsed int) bool {
	if administered >= def.MaxQuestions {
		return true
	}
	if administered < def.MinQuestions {
		return false
	}
	return b.inner.ShouldStop(def, administered, se, elapsed)
}

// fixedLength stops only at the ceiling, which bounded already enforces.
type fixedLength struct{}

func (fixedLength) ShouldStop(*models.AdaptiveTestDefinition, int, float64, int) bool {
	return false
}

type precisionBased struct {
	threshold float64
}

func (p precisionBased) ShouldStop(_ *models.AdaptiveTestDefinition, _ int, se float64, _ int) bool {
	return se < p.threshold
}

type timeBased struct{}

func (timeBased) ShouldStop(def *models.AdaptiveTestDefinition, _ int, _ float64, elapsed int) bool {
	return def.TimeLimit > 0 && elapsed >= def.TimeLimit
}

// confidenceInterval stops once the 95% half-width of the ability estimate
// falls below the configured bound.
type confidenceInterval struct {
	bound float64
}

func (c confidenceInterval) ShouldStop(_ *models.AdaptiveTestDefinition, _ int, se float64, _ int) bool {
	return 1.96*se < c.bound
}

package models

import "time"

type SelectionStrategy string

const (
	SelectionMaximumInformation SelectionStrategy = "maximum_information"
	SelectionRandom             SelectionStrategy = "random"
	SelectionContentBalanced    SelectionStrategy = "content_balanced"
	SelectionExposureControl    SelectionStrategy = "exposure_control"
)

type TerminationCriteria string

const (
	TerminationFixedLength        TerminationCriteria = "fixed_length"
	TerminationPrecisionBased     TerminationCriteria = "precision_based"
	TerminationTimeBased          TerminationCriteria = "time_based"
	TerminationConfidenceInterval TerminationCriteria = "confidence_interval"
)

type ScoringMethod string

const (
	ScoringPointsBased ScoringMethod = "points_based"
	ScoringThetaScaled ScoringMethod = "theta_scaled"
)

// DefaultScaledCeiling is the top of the scaled-score range when a definition
// does not configure its own scaling factor.
const DefaultScaledCeiling = 500.0

// AdaptiveTestDefinition is authored once and immutable while sessions that
// reference it are live.
type AdaptiveTestDefinition struct {
	ID           uint    `json:"id" gorm:"primaryKey"`
	Title        string  `json:"title" gorm:"not null;size:200" validate:"required,min=1,max=200"`
	MinQuestions int     `json:"min_questions" gorm:"not null" validate:"required,min=1"`
	MaxQuestions int     `json:"max_questions" gorm:"not null" validate:"required,min=1,gtefield=MinQuestions"`
	TimeLimit    int     `json:"time_limit" gorm:"default:3600" validate:"min=0"` // seconds, whole session
	PassingScore float64 `json:"passing_score" gorm:"not null" validate:"min=0,max=100"`

	// ScalingFactor converts raw points to the scaled-score range. Zero means
	// "derive from the bank" so a full-credit run lands on DefaultScaledCeiling.
	ScalingFactor float64 `json:"scaling_factor" gorm:"default:0" validate:"min=0"`

	CreatedBy string    `json:"created_by" gorm:"size:100;index"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Settings AdaptiveSettings `json:"settings" gorm:"foreignKey:TestDefinitionID"`
	Items    []Item           `json:"items,omitempty" gorm:"foreignKey:TestDefinitionID"`
}

type AdaptiveSettings struct {
	TestDefinitionID uint `json:"test_definition_id" gorm:"primaryKey"`

	InitialDifficulty DifficultyLevel `json:"initial_difficulty" gorm:"default:intermediate" validate:"omitempty,difficulty_level"`

	// DifficultyAdjustmentThreshold is the standard-error bound used by the
	// precision-based and confidence-interval termination criteria.
	DifficultyAdjustmentThreshold float64 `json:"difficulty_adjustment_threshold" gorm:"default:0.3" validate:"min=0"`

	TerminationCriteria TerminationCriteria `json:"termination_criteria" gorm:"default:fixed_length" validate:"omitempty,termination_criteria"`
	SelectionStrategy   SelectionStrategy   `json:"selection_strategy" gorm:"default:maximum_information" validate:"omitempty,selection_strategy"`
	ScoringMethod       ScoringMethod       `json:"scoring_method" gorm:"default:points_based" validate:"omitempty,scoring_method"`

	// RandomSeed makes the random selection strategy reproducible. Nil seeds
	// from the session id.
	RandomSeed *int64 `json:"random_seed,omitempty"`
}

func (AdaptiveTestDefinition) TableName() string {
	return "adaptive_test_definitions"
}

func (AdaptiveSettings) TableName() string {
	return "adaptive_settings"
}

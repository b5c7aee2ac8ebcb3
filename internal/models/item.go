package models

import (
	"math"
	"time"
)

type DifficultyLevel string

const (
	DifficultyBeginner     DifficultyLevel = "beginner"
	DifficultyIntermediate DifficultyLevel = "intermediate"
	DifficultyAdvanced     DifficultyLevel = "advanced"
	DifficultyExpert       DifficultyLevel = "expert"
)

// Ordinal maps the difficulty scale onto 0..3. Unknown levels sort as beginner.
func (d DifficultyLevel) Ordinal() int {
	switch d {
	case DifficultyIntermediate:
		return 1
	case DifficultyAdvanced:
		return 2
	case DifficultyExpert:
		return 3
	default:
		return 0
	}
}

// DifficultyForAbility projects an ability estimate in [-4, 4] onto the ordinal
// difficulty scale. The four levels split the theta range into equal bands.
func DifficultyForAbility(theta float64) DifficultyLevel {
	levels := []DifficultyLevel{
		DifficultyBeginner,
		DifficultyIntermediate,
		DifficultyAdvanced,
		DifficultyExpert,
	}

	// [-4, -2) -> 0, [-2, 0) -> 1, [0, 2) -> 2, [2, 4] -> 3
	idx := int(math.Floor((theta + 4) / 2))
	if idx < 0 {
		idx = 0
	}
	if idx > 3 {
		idx = 3
	}
	return levels[idx]
}

type ItemType string

const (
	ItemObjective    ItemType = "objective"
	ItemFreeResponse ItemType = "free_response"
)

// Item is a single bank entry. Items are created when a bank is loaded and are
// never mutated afterwards.
type Item struct {
	ID               uint            `json:"id" gorm:"primaryKey"`
	TestDefinitionID uint            `json:"test_definition_id" gorm:"not null;index"`
	Category         string          `json:"category" gorm:"not null;size:100;index" validate:"required,max=100"`
	Difficulty       DifficultyLevel `json:"difficulty" gorm:"not null;index" validate:"required,difficulty_level"`
	Type             ItemType        `json:"type" gorm:"not null" validate:"required,oneof=objective free_response"`
	Prompt           string          `json:"prompt" gorm:"type:text;not null" validate:"required"`
	CorrectAnswer    *string         `json:"correct_answer,omitempty" gorm:"type:text"` // objective items only
	Points           int             `json:"points" gorm:"default:10" validate:"min=1,max=100"`
	TimeLimit        *int            `json:"time_limit,omitempty"` // seconds, per item

	CreatedAt time.Time `json:"created_at"`
}

func (Item) TableName() string {
	return "items"
}

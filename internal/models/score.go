package models

import (
	"time"

	"gorm.io/datatypes"
)

type PassingStatus string

const (
	StatusPass PassingStatus = "pass"
	StatusFail PassingStatus = "fail"
)

// FinalScore is computed exactly once, when a session transitions to
// completed, and is immutable afterwards.
type FinalScore struct {
	ID        uint `json:"id" gorm:"primaryKey"`
	SessionID uint `json:"session_id" gorm:"not null;uniqueIndex"`

	TotalPoints int     `json:"total_points"`
	MaxPoints   int     `json:"max_points"`
	Percentage  float64 `json:"percentage"`
	ScaledScore float64 `json:"scaled_score"`

	// ThetaScore is the final ability estimate with its standard error.
	ThetaScore    float64 `json:"theta_score"`
	StandardError float64 `json:"standard_error"`

	Passed PassingStatus `json:"passed" gorm:"not null"`

	// CategoryBreakdown serializes []CategoryScore.
	CategoryBreakdown datatypes.JSON `json:"category_breakdown" gorm:"type:jsonb"`

	ComputedAt time.Time `json:"computed_at"`
}

type CategoryScore struct {
	Category     string  `json:"category"`
	Answered     int     `json:"answered"`
	Correct      int     `json:"correct"`
	PointsEarned int     `json:"points_earned"`
	PointsWorth  int     `json:"points_worth"`
	CorrectRate  float64 `json:"correct_rate"`
}

func (FinalScore) TableName() string {
	return "final_scores"
}

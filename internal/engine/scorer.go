package engine

import (
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/EduForge-2025/cat-engine/internal/models"
)

// Scorer converts a completed response history into a final score. Pure: it
// never mutates its inputs and the same inputs always produce the same score.
type Scorer struct{}

func NewScorer() Scorer {
	return Scorer{}
}

// Score computes the final score for a session. Each response carries the
// point value of its item at submission time, so the raw total honors
// per-item points rather than assuming a flat value per question. itemsByID
// supplies categories for the breakdown.
func (Scorer) Score(def *models.AdaptiveTestDefinition, itemsByID map[uint]models.Item, responses []models.Response, theta, se float64) models.FinalScore {
	totalPoints := 0
	maxPoints := 0
	for _, r := range responses {
		maxPoints += r.PointsWorth
		if r.Graded && r.IsCorrect {
			totalPoints += r.PointsAwarded
		}
	}

	percentage := 0.0
	if maxPoints > 0 {
		percentage = math.Round(float64(totalPoints) / float64(maxPoints) * 100)
	}

	scaled := scaledScore(def, totalPoints, maxPoints, theta)

	passed := models.StatusFail
	if maxPoints > 0 && float64(totalPoints) >= float64(maxPoints)*def.PassingScore/100 {
		passed = models.StatusPass
	}

	breakdown, _ := json.Marshal(categoryBreakdown(itemsByID, responses))

	return models.FinalScore{
		TotalPoints:       totalPoints,
		MaxPoints:         maxPoints,
		Percentage:        percentage,
		ScaledScore:       scaled,
		ThetaScore:        theta,
		StandardError:     se,
		Passed:            passed,
		CategoryBreakdown: breakdown,
		ComputedAt:        time.Now(),
	}
}

// scaledScore applies the definition's scaling factor, or derives one so a
// full-credit run lands on the default 500-point ceiling. The theta-scaled
// method maps the ability range onto the ceiling instead of raw points.
func scaledScore(def *models.AdaptiveTestDefinition, totalPoints, maxPoints int, theta float64) float64 {
	if def.Settings.ScoringMethod == models.ScoringThetaScaled {
		return math.Round((theta - AbilityMin) / (AbilityMax - AbilityMin) * models.DefaultScaledCeiling)
	}

	factor := def.ScalingFactor
	if factor == 0 && maxPoints > 0 {
		factor = models.DefaultScaledCeiling / float64(maxPoints)
	}
	return math.Round(float64(totalPoints) * factor)
}

func categoryBreakdown(itemsByID map[uint]models.Item, responses []models.Response) []models.CategoryScore {
	byCategory := make(map[string]*models.CategoryScore)
	for _, r := range responses {
		category := itemsByID[r.ItemID].Category
		cs, ok := byCategory[category]
		if !ok {
			cs = &models.CategoryScore{Category: category}
			byCategory[category] = cs
		}
		cs.Answered++
		cs.PointsWorth += r.PointsWorth
		if r.Graded && r.IsCorrect {
			cs.Correct++
			cs.PointsEarned += r.PointsAwarded
		}
	}

	out := make([]models.CategoryScore, 0, len(byCategory))
	for _, cs := range byCategory {
		if cs.Answered > 0 {
			cs.CorrectRate = float64(cs.Correct) / float64(cs.Answered)
		}
		out = append(out, *cs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}

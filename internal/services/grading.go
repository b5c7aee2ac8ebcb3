package services

import (
	"bytes"
	"encoding/json"
	"strings"

	"gorm.io/datatypes"

	"github.com/EduForge-2025/cat-engine/internal/models"
)

// gradeObjective compares a submitted answer to the item's answer key. The
// comparison is on normalized keys so "  B " and "b" grade identically; an
// item with no answer key grades as incorrect rather than guessing.
func gradeObjective(item *models.Item, answer datatypes.JSON) GradeVerdict {
	if item.CorrectAnswer == nil {
		return GradeVerdict{}
	}

	if answerKey(answer) != normalizeKey(*item.CorrectAnswer) {
		return GradeVerdict{}
	}
	return GradeVerdict{IsCorrect: true, Points: item.Points}
}

// answerKey canonicalizes a JSON answer payload. A JSON string unwraps to its
// contents; anything else compares as compact JSON text.
func answerKey(answer datatypes.JSON) string {
	var s string
	if err := json.Unmarshal(answer, &s); err == nil {
		return normalizeKey(s)
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, answer); err != nil {
		return normalizeKey(string(answer))
	}
	return normalizeKey(buf.String())
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

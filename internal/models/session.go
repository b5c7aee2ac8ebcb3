package models

import (
	"time"

	"gorm.io/datatypes"
)

type SessionStatus string

const (
	SessionNotStarted  SessionStatus = "not_started"
	SessionInProgress  SessionStatus = "in_progress"
	SessionCompleted   SessionStatus = "completed"
	SessionAbandoned   SessionStatus = "abandoned"
	SessionFlagged     SessionStatus = "flagged"
	SessionUnderReview SessionStatus = "under_review"
)

// IsTerminal reports whether no further responses may be submitted.
// Flagged and under-review sessions stay open; they are advisory states
// for downstream human review.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionCompleted || s == SessionAbandoned
}

// IsOpen reports whether the session accepts submissions.
func (s SessionStatus) IsOpen() bool {
	return s == SessionInProgress || s == SessionFlagged || s == SessionUnderReview
}

// TestSession is the authoritative per-session record. It is mutated only by
// the session service: responses and flags are appended in order and never
// edited or removed.
type TestSession struct {
	ID               uint          `json:"id" gorm:"primaryKey"`
	TestDefinitionID uint          `json:"test_definition_id" gorm:"not null;index"`
	UserID           string        `json:"user_id" gorm:"not null;size:100;index"`
	Status           SessionStatus `json:"status" gorm:"default:not_started;index"`

	Responses            []Response `json:"responses" gorm:"foreignKey:SessionID"`
	CurrentQuestionIndex int        `json:"current_question_index" gorm:"default:0"`

	// PendingItemID is the item handed out by the selector and not yet
	// answered. Submissions must reference it.
	PendingItemID *uint `json:"pending_item_id,omitempty"`

	// CurrentAbility is the running theta estimate in [-4, 4].
	CurrentAbility float64 `json:"current_ability" gorm:"default:0"`

	// StandardError starts at 1.0 and never increases as responses accumulate.
	StandardError float64 `json:"standard_error" gorm:"default:1"`

	TimeSpentSeconds int `json:"time_spent_seconds" gorm:"default:0"`

	// PendingGrades counts free-response answers awaiting the grading oracle.
	// Completion is deferred while it is non-zero.
	PendingGrades int `json:"pending_grades" gorm:"default:0"`

	SecurityFlags []SecurityFlag `json:"security_flags" gorm:"foreignKey:SessionID"`
	FinalScore    *FinalScore    `json:"final_score,omitempty" gorm:"foreignKey:SessionID"`

	StartedAt time.Time  `json:"started_at"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// AdministeredItemIDs returns the ids of every item answered so far, in order.
func (s *TestSession) AdministeredItemIDs() []uint {
	ids := make([]uint, len(s.Responses))
	for i, r := range s.Responses {
		ids[i] = r.ItemID
	}
	return ids
}

// Response records one submitted answer. Immutable once appended, except that
// a deferred free-response grade fills in IsCorrect/PointsAwarded when the
// oracle resolves.
type Response struct {
	ID        uint `json:"id" gorm:"primaryKey"`
	SessionID uint `json:"session_id" gorm:"not null;index"`
	ItemID    uint `json:"item_id" gorm:"not null;index"`

	Answer datatypes.JSON `json:"answer" gorm:"type:jsonb"`

	IsCorrect     bool `json:"is_correct"`
	Graded        bool `json:"graded" gorm:"default:true"` // false while the oracle is pending
	PointsAwarded int  `json:"points_awarded"`
	PointsWorth   int  `json:"points_worth"` // the item's point value at submission time

	TimeSpentSeconds int     `json:"time_spent_seconds" validate:"min=0"`
	Confidence       float64 `json:"confidence" validate:"min=0,max=1"` // self-reported, [0,1]
	SubmittedAt      time.Time `json:"submitted_at"`
}

func (TestSession) TableName() string {
	return "test_sessions"
}

func (Response) TableName() string {
	return "session_responses"
}

package events

import (
	"time"

	"github.com/EduForge-2025/cat-engine/internal/models"
)

// EventType represents different types of session events
type EventType string

const (
	// Session lifecycle events
	EventSessionStarted   EventType = "session.started"
	EventSessionCompleted EventType = "session.completed"
	EventSessionAbandoned EventType = "session.abandoned"

	// Integrity events
	EventFlagRaised   EventType = "flag.raised"
	EventFlagResolved EventType = "flag.resolved"

	// Grading oracle events
	EventGradeRequested EventType = "grade.requested"
	EventGradeResolved  EventType = "grade.resolved"
)

// SessionEvent is the base event structure for everything this engine emits
type SessionEvent struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Version   string                 `json:"version"`
	Data      interface{}            `json:"data"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Session lifecycle payloads

type SessionStartedEvent struct {
	SessionID        uint      `json:"session_id"`
	TestDefinitionID uint      `json:"test_definition_id"`
	UserID           string    `json:"user_id"`
	StartedAt        time.Time `json:"started_at"`
	TimeLimit        *int      `json:"time_limit,omitempty"` // seconds
}

type SessionCompletedEvent struct {
	SessionID        uint                 `json:"session_id"`
	TestDefinitionID uint                 `json:"test_definition_id"`
	UserID           string               `json:"user_id"`
	CompletedAt      time.Time            `json:"completed_at"`
	ItemsAdministered int                 `json:"items_administered"`
	ThetaScore       float64              `json:"theta_score"`
	StandardError    float64              `json:"standard_error"`
	ScaledScore      float64              `json:"scaled_score"`
	Passed           models.PassingStatus `json:"passed"`
}

type SessionAbandonedEvent struct {
	SessionID         uint      `json:"session_id"`
	TestDefinitionID  uint      `json:"test_definition_id"`
	UserID            string    `json:"user_id"`
	AbandonedAt       time.Time `json:"abandoned_at"`
	ItemsAdministered int       `json:"items_administered"`
}

// Integrity payloads

type FlagRaisedEvent struct {
	SessionID   uint                    `json:"session_id"`
	UserID      string                  `json:"user_id"`
	FlagType    models.SecurityFlagType `json:"flag_type"`
	Severity    models.FlagSeverity     `json:"severity"`
	Description string                  `json:"description"`
	RaisedAt    time.Time               `json:"raised_at"`

	// SessionStatus after the flag was applied, so reviewers see whether the
	// flag escalated the session.
	SessionStatus models.SessionStatus `json:"session_status"`
}

type FlagResolvedEvent struct {
	SessionID  uint                    `json:"session_id"`
	FlagType   models.SecurityFlagType `json:"flag_type"`
	ResolvedBy string                  `json:"resolved_by"`
	ResolvedAt time.Time               `json:"resolved_at"`
}

// Grading oracle payloads

type GradeRequestedEvent struct {
	SessionID   uint      `json:"session_id"`
	ItemID      uint      `json:"item_id"`
	RequestedAt time.Time `json:"requested_at"`
}

type GradeResolvedEvent struct {
	SessionID  uint      `json:"session_id"`
	ItemID     uint      `json:"item_id"`
	IsCorrect  bool      `json:"is_correct"`
	Points     int       `json:"points"`
	ResolvedAt time.Time `json:"resolved_at"`
}

package services

import (
	"context"
	"io"

	"github.com/EduForge-2025/cat-engine/internal/models"
	"github.com/EduForge-2025/cat-engine/internal/repositories"
	"gorm.io/datatypes"
)

// SessionService owns the per-session state machine. All mutations to one
// session are serialized; racing mutations are rejected with
// ErrConcurrentModification rather than silently applied, because ability
// updates are order-dependent.
type SessionService interface {
	// Start creates a session in progress with ability 0 and SE 1.
	Start(ctx context.Context, req *StartSessionRequest) (*models.TestSession, error)

	// NextItem selects the next item for the session. ErrItemBankExhausted
	// signals an empty bank; callers must then Complete the session.
	NextItem(ctx context.Context, sessionID uint) (*models.Item, error)

	// SubmitResponse appends the response, updates ability/SE and evaluates
	// termination. When ShouldStop is set the caller is responsible for
	// invoking Complete.
	SubmitResponse(ctx context.Context, sessionID uint, req *SubmitResponseRequest) (*SubmitResult, error)

	// Complete computes the final score exactly once. A second call is a
	// no-op returning the existing score.
	Complete(ctx context.Context, sessionID uint) (*models.FinalScore, error)

	// Abandon terminates the session without a score.
	Abandon(ctx context.Context, sessionID uint) error

	// ResolveGrade applies a grading-oracle verdict to a deferred
	// free-response answer.
	ResolveGrade(ctx context.Context, sessionID, itemID uint, verdict GradeVerdict) error

	GetByID(ctx context.Context, sessionID uint) (*models.TestSession, error)

	// Stats aggregates outcomes across every session of one definition.
	Stats(ctx context.Context, defID uint) (*repositories.SessionStats, error)
}

// ProctorService is the integrity monitor: it appends severity-classified
// flags alongside the session without altering the ability pipeline.
type ProctorService interface {
	Flag(ctx context.Context, sessionID uint, req *RaiseFlagRequest) (*models.SecurityFlag, error)

	// Resolve marks a flag reviewed. Flags are never removed.
	Resolve(ctx context.Context, sessionID uint, flagID uint, reviewerID string) error

	// AnalyzeTiming raises a suspicious-timing flag when the latest response
	// was implausibly fast.
	AnalyzeTiming(ctx context.Context, sessionID uint) (*models.SecurityFlag, error)
}

// ItemBankService is the lookup boundary the selector depends on.
type ItemBankService interface {
	GetItemsByTest(ctx context.Context, defID uint) ([]models.Item, error)
	CreateDefinition(ctx context.Context, req *CreateDefinitionRequest) (*models.AdaptiveTestDefinition, error)
	GetDefinition(ctx context.Context, defID uint) (*models.AdaptiveTestDefinition, error)
}

// ImportService loads item banks from authored files.
type ImportService interface {
	ImportItemsFromCSV(ctx context.Context, reader io.Reader, defID uint) (*models.ImportSummary, error)
	ImportItemsFromExcel(ctx context.Context, reader io.Reader, defID uint) (*models.ImportSummary, error)
}

// GradeVerdict is the grading oracle's answer for one free-response item.
type GradeVerdict struct {
	IsCorrect bool `json:"is_correct"`
	Points    int  `json:"points"`
}

// GradingOracle grades non-objective answers. It is an injected dependency;
// the engine never owns the transport behind it.
type GradingOracle interface {
	GradeFreeResponse(ctx context.Context, itemID uint, answer datatypes.JSON) (GradeVerdict, error)
}

// ===== REQUEST / RESPONSE TYPES =====

type StartSessionRequest struct {
	TestDefinitionID uint   `json:"test_definition_id" validate:"required"`
	UserID           string `json:"user_id" validate:"required,max=100"`
}

type SubmitResponseRequest struct {
	ItemID           uint           `json:"item_id" validate:"required"`
	Answer           datatypes.JSON `json:"answer" validate:"required"`
	TimeSpentSeconds int            `json:"time_spent_seconds" validate:"min=0"`
	Confidence       float64        `json:"confidence" validate:"min=0,max=1"`
}

type SubmitResult struct {
	Session    *models.TestSession `json:"session"`
	Response   *models.Response    `json:"response"`
	ShouldStop bool                `json:"should_stop"`
}

type RaiseFlagRequest struct {
	FlagType    models.SecurityFlagType `json:"flag_type" validate:"required,flag_type"`
	Description string                  `json:"description" validate:"max=1000"`
}

type CreateDefinitionRequest struct {
	Title         string                  `json:"title" validate:"required,min=1,max=200"`
	MinQuestions  int                     `json:"min_questions" validate:"required,min=1"`
	MaxQuestions  int                     `json:"max_questions" validate:"required,min=1,gtefield=MinQuestions"`
	TimeLimit     int                     `json:"time_limit" validate:"min=0"`
	PassingScore  float64                 `json:"passing_score" validate:"min=0,max=100"`
	ScalingFactor float64                 `json:"scaling_factor" validate:"min=0"`
	Settings      models.AdaptiveSettings `json:"settings"`
	CreatedBy     string                  `json:"created_by" validate:"max=100"`
}

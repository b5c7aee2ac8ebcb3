package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/EduForge-2025/cat-engine/internal/models"
)

// ErrNotFound is returned by every repository when a record does not exist.
var ErrNotFound = errors.New("record not found")

// IsNotFoundError reports whether err represents a missing record.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Repository aggregates the engine's storage interfaces. The core operates on
// in-memory session values; these adapters are how the surrounding platform
// loads and persists them.
type Repository interface {
	Session() SessionRepository
	Item() ItemRepository
	TestDefinition() TestDefinitionRepository
	Ping(ctx context.Context) error
	Close() error
}

type SessionRepository interface {
	Create(ctx context.Context, session *models.TestSession) error
	GetByID(ctx context.Context, id uint) (*models.TestSession, error)
	Update(ctx context.Context, session *models.TestSession) error

	List(ctx context.Context, filters SessionFilters) ([]*models.TestSession, int64, error)
	GetByUser(ctx context.Context, userID string, filters SessionFilters) ([]*models.TestSession, int64, error)
	GetByDefinition(ctx context.Context, defID uint, filters SessionFilters) ([]*models.TestSession, int64, error)
	Stats(ctx context.Context, defID uint) (*SessionStats, error)
}

type ItemRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Item, error)
	GetByTest(ctx context.Context, defID uint) ([]models.Item, error)
	CreateBatch(ctx context.Context, items []*models.Item) error
}

type TestDefinitionRepository interface {
	Create(ctx context.Context, def *models.AdaptiveTestDefinition) error
	GetByID(ctx context.Context, id uint) (*models.AdaptiveTestDefinition, error)
}

// ===== SHARED FILTER STRUCTS =====

type SessionFilters struct {
	Status    *models.SessionStatus `json:"status"`
	UserID    *string               `json:"user_id"`
	DateFrom  *time.Time            `json:"date_from"`
	DateTo    *time.Time            `json:"date_to"`
	Limit     int                   `json:"limit"`
	Offset    int                   `json:"offset"`
	SortBy    string                `json:"sort_by"`    // "created_at", "started_at"
	SortOrder string                `json:"sort_order"` // "asc", "desc"
}

// ===== SHARED STATISTICS STRUCTS =====

type SessionStats struct {
	TotalSessions     int                          `json:"total_sessions"`
	StatusBreakdown   map[models.SessionStatus]int `json:"status_breakdown"`
	AverageAbility    float64                      `json:"average_ability"`
	AverageTimeSpent  int                          `json:"average_time_spent"`
	PassRate          float64                      `json:"pass_rate"`
	FlaggedSessions   int                          `json:"flagged_sessions"`
	AverageItemsAsked float64                      `json:"average_items_asked"`
}

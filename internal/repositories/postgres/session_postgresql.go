package postgres

import (
	"context"
	"errors"

	"github.com/EduForge-2025/cat-engine/internal/models"
	"github.com/EduForge-2025/cat-engine/internal/repositories"
	"gorm.io/gorm"
)

type SessionPostgreSQL struct {
	db *gorm.DB
}

func NewSessionPostgreSQL(db *gorm.DB) repositories.SessionRepository {
	return &SessionPostgreSQL{db: db}
}

func (s SessionPostgreSQL) Create(ctx context.Context, session *models.TestSession) error {
	return s.db.WithContext(ctx).Create(session).Error
}

func (s SessionPostgreSQL) GetByID(ctx context.Context, id uint) (*models.TestSession, error) {
	var session models.TestSession
	if err := s.db.WithContext(ctx).
		Preload("Responses", func(db *gorm.DB) *gorm.DB {
			return db.Order("session_responses.id ASC")
		}).
		Preload("SecurityFlags", func(db *gorm.DB) *gorm.DB {
			return db.Order("security_flags.id ASC")
		}).
		Preload("FinalScore").
		First(&session, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (s SessionPostgreSQL) Update(ctx context.Context, session *models.TestSession) error {
	return s.db.WithContext(ctx).Session(&gorm.Session{FullSaveAssociations: true}).Save(session).Error
}

func (s SessionPostgreSQL) List(ctx context.Context, filters repositories.SessionFilters) ([]*models.TestSession, int64, error) {
	var sessions []*models.TestSession
	var total int64

	query := s.db.WithContext(ctx).Model(&models.TestSession{})
	query = s.applyFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = s.applyPaginationAndSort(query, filters)

	if err := query.Preload("FinalScore").Find(&sessions).Error; err != nil {
		return nil, 0, err
	}

	return sessions, total, nil
}

func (s SessionPostgreSQL) GetByUser(ctx context.Context, userID string, filters repositories.SessionFilters) ([]*models.TestSession, int64, error) {
	filters.UserID = &userID
	return s.List(ctx, filters)
}

func (s SessionPostgreSQL) GetByDefinition(ctx context.Context, defID uint, filters repositories.SessionFilters) ([]*models.TestSession, int64, error) {
	var sessions []*models.TestSession
	var total int64

	query := s.db.WithContext(ctx).Model(&models.TestSession{}).Where("test_definition_id = ?", defID)
	query = s.applyFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = s.applyPaginationAndSort(query, filters)

	if err := query.Preload("FinalScore").Find(&sessions).Error; err != nil {
		return nil, 0, err
	}

	return sessions, total, nil
}

func (s SessionPostgreSQL) Stats(ctx context.Context, defID uint) (*repositories.SessionStats, error) {
	stats := &repositories.SessionStats{
		StatusBreakdown: make(map[models.SessionStatus]int),
	}

	type statusRow struct {
		Status models.SessionStatus
		Count  int
	}
	var byStatus []statusRow
	if err := s.db.WithContext(ctx).Model(&models.TestSession{}).
		Select("status, count(*) as count").
		Where("test_definition_id = ?", defID).
		Group("status").
		Scan(&byStatus).Error; err != nil {
		return nil, err
	}
	for _, row := range byStatus {
		stats.StatusBreakdown[row.Status] = row.Count
		stats.TotalSessions += row.Count
		if row.Status == models.SessionFlagged || row.Status == models.SessionUnderReview {
			stats.FlaggedSessions += row.Count
		}
	}

	type aggRow struct {
		AvgAbility float64
		AvgTime    float64
		AvgItems   float64
	}
	var agg aggRow
	if err := s.db.WithContext(ctx).Model(&models.TestSession{}).
		Select("coalesce(avg(current_ability), 0) as avg_ability, "+
			"coalesce(avg(time_spent_seconds), 0) as avg_time, "+
			"coalesce(avg(current_question_index), 0) as avg_items").
		Where("test_definition_id = ?", defID).
		Scan(&agg).Error; err != nil {
		return nil, err
	}
	stats.AverageAbility = agg.AvgAbility
	stats.AverageTimeSpent = int(agg.AvgTime)
	stats.AverageItemsAsked = agg.AvgItems

	var completed, passed int64
	if err := s.db.WithContext(ctx).Model(&models.TestSession{}).
		Where("test_definition_id = ? AND status = ?", defID, models.SessionCompleted).
		Count(&completed).Error; err != nil {
		return nil, err
	}
	if completed > 0 {
		if err := s.db.WithContext(ctx).Model(&models.FinalScore{}).
			Joins("JOIN test_sessions ON test_sessions.id = final_scores.session_id").
			Where("test_sessions.test_definition_id = ? AND final_scores.passed = ?", defID, models.StatusPass).
			Count(&passed).Error; err != nil {
			return nil, err
		}
		stats.PassRate = float64(passed) / float64(completed)
	}

	return stats, nil
}

func (s SessionPostgreSQL) applyFilters(query *gorm.DB, filters repositories.SessionFilters) *gorm.DB {
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.UserID != nil {
		query = query.Where("user_id = ?", *filters.UserID)
	}
	if filters.DateFrom != nil {
		query = query.Where("started_at >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		query = query.Where("started_at <= ?", *filters.DateTo)
	}
	return query
}

func (s SessionPostgreSQL) applyPaginationAndSort(query *gorm.DB, filters repositories.SessionFilters) *gorm.DB {
	sortBy := filters.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	sortOrder := filters.SortOrder
	if sortOrder != "asc" {
		sortOrder = "desc"
	}
	query = query.Order(sortBy + " " + sortOrder)

	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}
	return query
}

package postgres

import (
	"context"
	"errors"

	"github.com/EduForge-2025/cat-engine/internal/models"
	"github.com/EduForge-2025/cat-engine/internal/repositories"
	"gorm.io/gorm"
)

type ItemPostgreSQL struct {
	db *gorm.DB
}

func NewItemPostgreSQL(db *gorm.DB) repositories.ItemRepository {
	return &ItemPostgreSQL{db: db}
}

func (i ItemPostgreSQL) GetByID(ctx context.Context, id uint) (*models.Item, error) {
	var item models.Item
	if err := i.db.WithContext(ctx).First(&item, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (i ItemPostgreSQL) GetByTest(ctx context.Context, defID uint) ([]models.Item, error) {
	var items []models.Item
	if err := i.db.WithContext(ctx).
		Where("test_definition_id = ?", defID).
		Order("id ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (i ItemPostgreSQL) CreateBatch(ctx context.Context, items []*models.Item) error {
	if len(items) == 0 {
		return nil
	}
	return i.db.WithContext(ctx).Create(items).Error
}

type TestDefinitionPostgreSQL struct {
	db *gorm.DB
}

func NewTestDefinitionPostgreSQL(db *gorm.DB) repositories.TestDefinitionRepository {
	return &TestDefinitionPostgreSQL{db: db}
}

func (d TestDefinitionPostgreSQL) Create(ctx context.Context, def *models.AdaptiveTestDefinition) error {
	return d.db.WithContext(ctx).Create(def).Error
}

func (d TestDefinitionPostgreSQL) GetByID(ctx context.Context, id uint) (*models.AdaptiveTestDefinition, error) {
	var def models.AdaptiveTestDefinition
	if err := d.db.WithContext(ctx).
		Preload("Settings").
		First(&def, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, err
	}
	return &def, nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/EduForge-2025/cat-engine/internal/cache"
	"github.com/EduForge-2025/cat-engine/internal/models"
	"github.com/EduForge-2025/cat-engine/internal/repositories"
	"github.com/EduForge-2025/cat-engine/internal/utils"
)

// bankCacheTTL bounds staleness of cached item lists. Definitions are
// immutable once sessions run, so a long TTL is safe; imports invalidate
// explicitly.
const bankCacheTTL = 15 * time.Minute

type itemBankService struct {
	repo      repositories.Repository
	cache     cache.CacheService
	logger    *slog.Logger
	validator *utils.Validator
}

// NewItemBankService creates the item bank lookup service. cacheService may
// be nil; lookups then always hit the repository.
func NewItemBankService(
	repo repositories.Repository,
	cacheService cache.CacheService,
	logger *slog.Logger,
	validator *utils.Validator,
) ItemBankService {
	return &itemBankService{
		repo:      repo,
		cache:     cacheService,
		logger:    logger,
		validator: validator,
	}
}

func (s *itemBankService) GetItemsByTest(ctx context.Context, defID uint) ([]models.Item, error) {
	if s.cache != nil {
		var items []models.Item
		err := s.cache.Get(ctx, cache.ItemBankKey(defID), &items)
		if err == nil {
			return items, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("Item bank cache read failed", "test_definition_id", defID, "error", err)
		}
	}

	items, err := s.repo.Item().GetByTest(ctx, defID)
	if err != nil {
		return nil, fmt.Errorf("failed to get items: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cache.ItemBankKey(defID), items, bankCacheTTL); err != nil {
			s.logger.Warn("Item bank cache write failed", "test_definition_id", defID, "error", err)
		}
	}

	return items, nil
}

func (s *itemBankService) CreateDefinition(ctx context.Context, req *CreateDefinitionRequest) (*models.AdaptiveTestDefinition, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	def := &models.AdaptiveTestDefinition{
		Title:         req.Title,
		MinQuestions:  req.MinQuestions,
		MaxQuestions:  req.MaxQuestions,
		TimeLimit:     req.TimeLimit,
		PassingScore:  req.PassingScore,
		ScalingFactor: req.ScalingFactor,
		CreatedBy:     req.CreatedBy,
		Settings:      req.Settings,
	}
	applySettingsDefaults(&def.Settings)

	if err := s.repo.TestDefinition().Create(ctx, def); err != nil {
		return nil, fmt.Errorf("failed to create test definition: %w", err)
	}

	s.logger.Info("Test definition created",
		"test_definition_id", def.ID,
		"title", def.Title,
		"selection_strategy", def.Settings.SelectionStrategy,
		"termination_criteria", def.Settings.TerminationCriteria)

	return def, nil
}

func (s *itemBankService) GetDefinition(ctx context.Context, defID uint) (*models.AdaptiveTestDefinition, error) {
	def, err := s.repo.TestDefinition().GetByID(ctx, defID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTestDefinitionNotFound
		}
		return nil, fmt.Errorf("failed to get test definition: %w", err)
	}
	return def, nil
}

// applySettingsDefaults fills zero values with the documented defaults so a
// sparsely authored definition behaves predictably.
func applySettingsDefaults(settings *models.AdaptiveSettings) {
	if settings.InitialDifficulty == "" {
		settings.InitialDifficulty = models.DifficultyIntermediate
	}
	if settings.DifficultyAdjustmentThreshold == 0 {
		settings.DifficultyAdjustmentThreshold = 0.3
	}
	if settings.TerminationCriteria == "" {
		settings.TerminationCriteria = models.TerminationFixedLength
	}
	if settings.SelectionStrategy == "" {
		settings.SelectionStrategy = models.SelectionMaximumInformation
	}
	if settings.ScoringMethod == "" {
		settings.ScoringMethod = models.ScoringPointsBased
	}
}

package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/EduForge-2025/cat-engine/internal/cache"
	"github.com/EduForge-2025/cat-engine/internal/models"
	"github.com/EduForge-2025/cat-engine/internal/repositories"
	"github.com/EduForge-2025/cat-engine/internal/utils"
)

// Column headers recognized by the importers. Matching is case-insensitive.
const (
	colCategory      = "category"
	colDifficulty    = "difficulty"
	colType          = "type"
	colPrompt        = "prompt"
	colCorrectAnswer = "correct_answer"
	colPoints        = "points"
	colTimeLimit     = "time_limit"
)

var requiredColumns = []string{colCategory, colDifficulty, colType, colPrompt}

type importService struct {
	repo      repositories.Repository
	cache     cache.CacheService
	logger    *slog.Logger
	validator *utils.Validator
}

func NewImportService(
	repo repositories.Repository,
	cacheService cache.CacheService,
	logger *slog.Logger,
	validator *utils.Validator,
) ImportService {
	return &importService{
		repo:      repo,
		cache:     cacheService,
		logger:    logger,
		validator: validator,
	}
}

func (s *importService) ImportItemsFromCSV(ctx context.Context, reader io.Reader, defID uint) (*models.ImportSummary, error) {
	r := csv.NewReader(reader)
	r.TrimLeadingSpace = true

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}

	return s.importRows(ctx, rows, defID, "csv")
}

func (s *importService) ImportItemsFromExcel(ctx context.Context, reader io.Reader, defID uint) (*models.ImportSummary, error) {
	f, err := excelize.OpenReader(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("excel file contains no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}

	return s.importRows(ctx, rows, defID, "excel")
}

// importRows validates each data row, collects per-row errors without
// aborting the batch, and persists the valid items in one write.
func (s *importService) importRows(ctx context.Context, rows [][]string, defID uint, format string) (*models.ImportSummary, error) {
	start := time.Now()

	if _, err := s.repo.TestDefinition().GetByID(ctx, defID); err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTestDefinitionNotFound
		}
		return nil, fmt.Errorf("failed to get test definition: %w", err)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("file contains no rows")
	}

	columns, err := headerIndex(rows[0])
	if err != nil {
		return nil, err
	}

	summary := &models.ImportSummary{TotalRows: len(rows) - 1}
	var items []*models.Item

	for i, row := range rows[1:] {
		rowNum := i + 2 // 1-based, after the header
		summary.ProcessedRows++

		item, rowErrs := parseItemRow(row, columns, defID)
		if len(rowErrs) > 0 {
			for j := range rowErrs {
				rowErrs[j].Row = rowNum
			}
			summary.Errors = append(summary.Errors, rowErrs...)
			summary.ErrorCount++
			continue
		}

		if err := s.validator.Validate(item); err != nil {
			summary.Errors = append(summary.Errors, models.ImportValidationError{
				Row:     rowNum,
				Message: err.Error(),
			})
			summary.ErrorCount++
			continue
		}

		items = append(items, item)
	}

	if len(items) > 0 {
		if err := s.repo.Item().CreateBatch(ctx, items); err != nil {
			return nil, fmt.Errorf("failed to create items: %w", err)
		}
		for _, item := range items {
			summary.CreatedItems = append(summary.CreatedItems, item.ID)
		}
		summary.SuccessCount = len(items)

		if s.cache != nil {
			if err := s.cache.Delete(ctx, cache.ItemBankKey(defID)); err != nil {
				s.logger.Warn("Item bank cache invalidation failed",
					"test_definition_id", defID, "error", err)
			}
		}
	}

	summary.ProcessingTime = time.Since(start)

	s.logger.Info("Item import finished",
		"test_definition_id", defID,
		"format", format,
		"total_rows", summary.TotalRows,
		"success_count", summary.SuccessCount,
		"error_count", summary.ErrorCount)

	return summary, nil
}

// headerIndex maps recognized column names to their positions and rejects
// files missing a required column.
func headerIndex(header []string) (map[string]int, error) {
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}

	for _, required := range requiredColumns {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("missing required column %q", required)
		}
	}
	return columns, nil
}

func parseItemRow(row []string, columns map[string]int, defID uint) (*models.Item, []models.ImportValidationError) {
	var errs []models.ImportValidationError

	cell := func(name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	item := &models.Item{
		TestDefinitionID: defID,
		Category:         cell(colCategory),
		Prompt:           cell(colPrompt),
		Points:           10,
	}

	difficulty := models.DifficultyLevel(strings.ToLower(cell(colDifficulty)))
	switch difficulty {
	case models.DifficultyBeginner, models.DifficultyIntermediate,
		models.DifficultyAdvanced, models.DifficultyExpert:
		item.Difficulty = difficulty
	default:
		errs = append(errs, models.ImportValidationError{
			Column:  colDifficulty,
			Message: "unknown difficulty level",
			Value:   cell(colDifficulty),
		})
	}

	itemType := models.ItemType(strings.ToLower(cell(colType)))
	switch itemType {
	case models.ItemObjective, models.ItemFreeResponse:
		item.Type = itemType
	default:
		errs = append(errs, models.ImportValidationError{
			Column:  colType,
			Message: "unknown item type",
			Value:   cell(colType),
		})
	}

	if answer := cell(colCorrectAnswer); answer != "" {
		item.CorrectAnswer = &answer
	} else if item.Type == models.ItemObjective {
		errs = append(errs, models.ImportValidationError{
			Column:  colCorrectAnswer,
			Message: "objective items require an answer key",
		})
	}

	if raw := cell(colPoints); raw != "" {
		points, err := strconv.Atoi(raw)
		if err != nil || points < 1 {
			errs = append(errs, models.ImportValidationError{
				Column:  colPoints,
				Message: "points must be a positive integer",
				Value:   raw,
			})
		} else {
			item.Points = points
		}
	}

	if raw := cell(colTimeLimit); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			errs = append(errs, models.ImportValidationError{
				Column:  colTimeLimit,
				Message: "time limit must be a positive integer",
				Value:   raw,
			})
		} else {
			item.TimeLimit = &limit
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return item, nil
}

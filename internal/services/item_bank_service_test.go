package services

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EduForge-2025/cat-engine/internal/cache"
	"github.com/EduForge-2025/cat-engine/internal/models"
	"github.com/EduForge-2025/cat-engine/internal/repositories/memory"
	"github.com/EduForge-2025/cat-engine/internal/utils"
)

// fakeCache is an in-memory cache.CacheService that counts hits and misses.
type fakeCache struct {
	data   map[string][]byte
	gets   int
	misses int
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string][]byte)}
}

func (c *fakeCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.data[key] = data
	return nil
}

func (c *fakeCache) Get(_ context.Context, key string, dest interface{}) error {
	c.gets++
	data, ok := c.data[key]
	if !ok {
		c.misses++
		return cache.ErrCacheMiss
	}
	return json.Unmarshal(data, dest)
}

func (c *fakeCache) Delete(_ context.Context, key string) error {
	delete(c.data, key)
	return nil
}

func (c *fakeCache) DeletePattern(_ context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range c.data {
		if strings.HasPrefix(key, prefix) {
			delete(c.data, key)
		}
	}
	return nil
}

func TestGetItemsByTestUsesCache(t *testing.T) {
	ctx := context.Background()
	logger := utils.ToSlogLogger(utils.NewDevelopmentLogger())
	store := memory.NewStore()
	fc := newFakeCache()
	svc := NewItemBankService(store, fc, logger, utils.NewValidator())

	def := &models.AdaptiveTestDefinition{Title: "Cached", MinQuestions: 1, MaxQuestions: 5}
	require.NoError(t, store.TestDefinition().Create(ctx, def))

	answer := "a"
	require.NoError(t, store.Item().CreateBatch(ctx, []*models.Item{{
		TestDefinitionID: def.ID,
		Category:         "algebra",
		Difficulty:       models.DifficultyBeginner,
		Type:             models.ItemObjective,
		Prompt:           "q1",
		CorrectAnswer:    &answer,
		Points:           10,
	}}))

	first, err := svc.GetItemsByTest(ctx, def.ID)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 1, fc.misses, "first lookup misses and populates")

	second, err := svc.GetItemsByTest(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 2, fc.gets)
	assert.Equal(t, 1, fc.misses, "second lookup is served from cache")
}

func TestImportInvalidatesBankCache(t *testing.T) {
	ctx := context.Background()
	logger := utils.ToSlogLogger(utils.NewDevelopmentLogger())
	store := memory.NewStore()
	fc := newFakeCache()
	validator := utils.NewValidator()

	bank := NewItemBankService(store, fc, logger, validator)
	importer := NewImportService(store, fc, logger, validator)

	def := &models.AdaptiveTestDefinition{Title: "Refreshed", MinQuestions: 1, MaxQuestions: 5}
	require.NoError(t, store.TestDefinition().Create(ctx, def))

	items, err := bank.GetItemsByTest(ctx, def.ID)
	require.NoError(t, err)
	assert.Empty(t, items)

	csvData := "category,difficulty,type,prompt,correct_answer\nalgebra,beginner,objective,q1,a"
	_, err = importer.ImportItemsFromCSV(ctx, strings.NewReader(csvData), def.ID)
	require.NoError(t, err)

	items, err = bank.GetItemsByTest(ctx, def.ID)
	require.NoError(t, err)
	assert.Len(t, items, 1, "import must evict the stale cached bank")
}

func TestCreateDefinitionDefaults(t *testing.T) {
	ctx := context.Background()
	logger := utils.ToSlogLogger(utils.NewDevelopmentLogger())
	store := memory.NewStore()
	svc := NewItemBankService(store, nil, logger, utils.NewValidator())

	def, err := svc.CreateDefinition(ctx, &CreateDefinitionRequest{
		Title:        "Defaults",
		MinQuestions: 1,
		MaxQuestions: 5,
		PassingScore: 60,
	})
	require.NoError(t, err)

	assert.Equal(t, models.DifficultyIntermediate, def.Settings.InitialDifficulty)
	assert.Equal(t, 0.3, def.Settings.DifficultyAdjustmentThreshold)
	assert.Equal(t, models.TerminationFixedLength, def.Settings.TerminationCriteria)
	assert.Equal(t, models.SelectionMaximumInformation, def.Settings.SelectionStrategy)
	assert.Equal(t, models.ScoringPointsBased, def.Settings.ScoringMethod)
}

func TestCreateDefinitionValidation(t *testing.T) {
	ctx := context.Background()
	logger := utils.ToSlogLogger(utils.NewDevelopmentLogger())
	store := memory.NewStore()
	svc := NewItemBankService(store, nil, logger, utils.NewValidator())

	// Max below min violates the range invariant.
	_, err := svc.CreateDefinition(ctx, &CreateDefinitionRequest{
		Title:        "Broken",
		MinQuestions: 5,
		MaxQuestions: 2,
		PassingScore: 60,
	})
	assert.Error(t, err)
}

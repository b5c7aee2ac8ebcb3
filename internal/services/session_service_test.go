package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/EduForge-2025/cat-engine/internal/engine"
	"github.com/EduForge-2025/cat-engine/internal/events"
	"github.com/EduForge-2025/cat-engine/internal/models"
	"github.com/EduForge-2025/cat-engine/internal/repositories/memory"
	"github.com/EduForge-2025/cat-engine/internal/utils"
)

type sessionTestEnv struct {
	store     *memory.Store
	publisher *events.MockEventPublisher
	locks     *SessionLocks
	bank      ItemBankService
	svc       SessionService
}

func newSessionTestEnv(t *testing.T) *sessionTestEnv {
	t.Helper()

	logger := utils.ToSlogLogger(utils.NewDevelopmentLogger())
	store := memory.NewStore()
	publisher := events.NewMockEventPublisher(logger)
	validator := utils.NewValidator()
	locks := NewSessionLocks()

	bank := NewItemBankService(store, nil, logger, validator)
	svc := NewSessionService(store, bank, nil, nil, publisher, logger, validator, locks)

	return &sessionTestEnv{
		store:     store,
		publisher: publisher,
		locks:     locks,
		bank:      bank,
		svc:       svc,
	}
}

// seedDefinition creates a precision-based definition with four objective
// items worth 10 points each, answer key "a".
func (e *sessionTestEnv) seedDefinition(t *testing.T) *models.AdaptiveTestDefinition {
	t.Helper()
	ctx := context.Background()

	def, err := e.bank.CreateDefinition(ctx, &CreateDefinitionRequest{
		Title:        "Algebra Placement",
		MinQuestions: 2,
		MaxQuestions: 4,
		PassingScore: 50,
		Settings: models.AdaptiveSettings{
			SelectionStrategy:             models.SelectionMaximumInformation,
			TerminationCriteria:           models.TerminationPrecisionBased,
			DifficultyAdjustmentThreshold: 0.3,
		},
	})
	require.NoError(t, err)

	answer := "a"
	items := make([]*models.Item, 4)
	for i := range items {
		items[i] = &models.Item{
			TestDefinitionID: def.ID,
			Category:         "algebra",
			Difficulty:       models.DifficultyIntermediate,
			Type:             models.ItemObjective,
			Prompt:           "solve for x",
			CorrectAnswer:    &answer,
			Points:           10,
		}
	}
	require.NoError(t, e.store.Item().CreateBatch(ctx, items))

	return def
}

func (e *sessionTestEnv) start(t *testing.T, defID uint) *models.TestSession {
	t.Helper()
	session, err := e.svc.Start(context.Background(), &StartSessionRequest{
		TestDefinitionID: defID,
		UserID:           "learner-1",
	})
	require.NoError(t, err)
	return session
}

// answerNext pulls the pending item and submits the given answer.
func (e *sessionTestEnv) answerNext(t *testing.T, sessionID uint, answer string, seconds int) *SubmitResult {
	t.Helper()
	ctx := context.Background()

	item, err := e.svc.NextItem(ctx, sessionID)
	require.NoError(t, err)

	result, err := e.svc.SubmitResponse(ctx, sessionID, &SubmitResponseRequest{
		ItemID:           item.ID,
		Answer:           jsonString(answer),
		TimeSpentSeconds: seconds,
	})
	require.NoError(t, err)
	return result
}

func jsonString(s string) datatypes.JSON {
	return datatypes.JSON(`"` + s + `"`)
}

func eventTypes(published []events.SessionEvent) []events.EventType {
	types := make([]events.EventType, len(published))
	for i, e := range published {
		types[i] = e.Type
	}
	return types
}

func TestStartSession(t *testing.T) {
	env := newSessionTestEnv(t)
	def := env.seedDefinition(t)

	session := env.start(t, def.ID)

	assert.Equal(t, models.SessionInProgress, session.Status)
	assert.Equal(t, 0.0, session.CurrentAbility)
	assert.Equal(t, engine.InitialStandardError, session.StandardError)
	assert.Empty(t, session.Responses)

	assert.Contains(t, eventTypes(env.publisher.PublishedEvents()), events.EventSessionStarted)
}

func TestStartSessionValidation(t *testing.T) {
	env := newSessionTestEnv(t)
	def := env.seedDefinition(t)

	_, err := env.svc.Start(context.Background(), &StartSessionRequest{
		TestDefinitionID: def.ID,
	})
	assert.Error(t, err)
}

func TestStartSessionUnknownDefinition(t *testing.T) {
	env := newSessionTestEnv(t)

	_, err := env.svc.Start(context.Background(), &StartSessionRequest{
		TestDefinitionID: 999,
		UserID:           "learner-1",
	})
	assert.ErrorIs(t, err, ErrTestDefinitionNotFound)
}

// TestAdaptiveFlowFullCredit walks a full session: the precision threshold is
// never reached with only four items, so the question ceiling forces the stop
// and completion computes a full-credit score.
func TestAdaptiveFlowFullCredit(t *testing.T) {
	env := newSessionTestEnv(t)
	def := env.seedDefinition(t)
	session := env.start(t, def.ID)
	ctx := context.Background()

	expectedSE := []float64{1, 0.7071, 0.5774, 0.5}
	for i := 0; i < 4; i++ {
		result := env.answerNext(t, session.ID, "a", 30)

		assert.InDelta(t, expectedSE[i], result.Session.StandardError, 0.001)
		assert.True(t, result.Response.IsCorrect)
		if i < 3 {
			assert.False(t, result.ShouldStop, "stopped early at question %d", i+1)
		} else {
			assert.True(t, result.ShouldStop, "ceiling must force the stop")
		}
	}

	score, err := env.svc.Complete(ctx, session.ID)
	require.NoError(t, err)

	assert.Equal(t, 40, score.TotalPoints)
	assert.Equal(t, 40, score.MaxPoints)
	assert.Equal(t, 100.0, score.Percentage)
	assert.Equal(t, 500.0, score.ScaledScore)
	assert.Equal(t, 2.0, score.ThetaScore)
	assert.Equal(t, models.StatusPass, score.Passed)

	final, err := env.svc.GetByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, final.Status)
	assert.NotNil(t, final.EndTime)

	assert.Contains(t, eventTypes(env.publisher.PublishedEvents()), events.EventSessionCompleted)
}

// TestCeilingRefusesFifthItem seeds more items than the definition allows and
// verifies the service itself enforces the ceiling: a caller that ignores
// ShouldStop is refused instead of handed a fifth item.
func TestCeilingRefusesFifthItem(t *testing.T) {
	env := newSessionTestEnv(t)
	def := env.seedDefinition(t)
	ctx := context.Background()

	// Two spare items beyond the max of four.
	answer := "a"
	extra := make([]*models.Item, 2)
	for i := range extra {
		extra[i] = &models.Item{
			TestDefinitionID: def.ID,
			Category:         "algebra",
			Difficulty:       models.DifficultyIntermediate,
			Type:             models.ItemObjective,
			Prompt:           "spare question",
			CorrectAnswer:    &answer,
			Points:           10,
		}
	}
	require.NoError(t, env.store.Item().CreateBatch(ctx, extra))

	session := env.start(t, def.ID)

	var lastResult *SubmitResult
	for i := 0; i < 4; i++ {
		lastResult = env.answerNext(t, session.ID, "a", 15)
	}
	require.True(t, lastResult.ShouldStop)

	_, err := env.svc.NextItem(ctx, session.ID)
	assert.ErrorIs(t, err, ErrMaxQuestionsReached)

	_, err = env.svc.SubmitResponse(ctx, session.ID, &SubmitResponseRequest{
		ItemID: extra[0].ID,
		Answer: jsonString("a"),
	})
	assert.ErrorIs(t, err, ErrMaxQuestionsReached)

	stored, err := env.svc.GetByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Responses, def.MaxQuestions)

	_, err = env.svc.Complete(ctx, session.ID)
	assert.NoError(t, err)
}

func TestAbilityTracksCorrectness(t *testing.T) {
	env := newSessionTestEnv(t)
	def := env.seedDefinition(t)
	session := env.start(t, def.ID)

	r1 := env.answerNext(t, session.ID, "a", 30)
	assert.Equal(t, 2.0, r1.Session.CurrentAbility, "1/1 correct maps to theta 2")

	r2 := env.answerNext(t, session.ID, "wrong", 30)
	assert.Equal(t, 0.0, r2.Session.CurrentAbility, "1/2 correct maps to theta 0")
	assert.False(t, r2.Response.IsCorrect)
}

func TestSubmitRequiresPendingItem(t *testing.T) {
	env := newSessionTestEnv(t)
	def := env.seedDefinition(t)
	session := env.start(t, def.ID)
	ctx := context.Background()

	// Nothing selected yet.
	_, err := env.svc.SubmitResponse(ctx, session.ID, &SubmitResponseRequest{
		ItemID: 1,
		Answer: jsonString("a"),
	})
	assert.ErrorIs(t, err, ErrNoPendingItem)

	item, err := env.svc.NextItem(ctx, session.ID)
	require.NoError(t, err)

	// A different item than the one handed out.
	_, err = env.svc.SubmitResponse(ctx, session.ID, &SubmitResponseRequest{
		ItemID: item.ID + 1,
		Answer: jsonString("a"),
	})
	assert.ErrorIs(t, err, ErrInvalidResponse)

	// Correct item goes through.
	_, err = env.svc.SubmitResponse(ctx, session.ID, &SubmitResponseRequest{
		ItemID: item.ID,
		Answer: jsonString("a"),
	})
	require.NoError(t, err)

	// Answering the same item twice is rejected even if re-handed.
	_, err = env.svc.SubmitResponse(ctx, session.ID, &SubmitResponseRequest{
		ItemID: item.ID,
		Answer: jsonString("a"),
	})
	assert.ErrorIs(t, err, ErrDuplicateResponse)
}

func TestSubmitOnClosedSession(t *testing.T) {
	env := newSessionTestEnv(t)
	def := env.seedDefinition(t)
	session := env.start(t, def.ID)
	ctx := context.Background()

	require.NoError(t, env.svc.Abandon(ctx, session.ID))

	_, err := env.svc.NextItem(ctx, session.ID)
	assert.ErrorIs(t, err, ErrSessionClosed)

	_, err = env.svc.SubmitResponse(ctx, session.ID, &SubmitResponseRequest{
		ItemID: 1,
		Answer: jsonString("a"),
	})
	assert.ErrorIs(t, err, ErrSessionClosed)

	err = env.svc.Abandon(ctx, session.ID)
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestCompleteIdempotent(t *testing.T) {
	env := newSessionTestEnv(t)
	def := env.seedDefinition(t)
	session := env.start(t, def.ID)
	ctx := context.Background()

	env.answerNext(t, session.ID, "a", 30)
	env.answerNext(t, session.ID, "a", 30)

	first, err := env.svc.Complete(ctx, session.ID)
	require.NoError(t, err)

	second, err := env.svc.Complete(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, first.TotalPoints, second.TotalPoints)
	assert.Equal(t, first.ComputedAt, second.ComputedAt, "second call must not recompute")
}

func TestItemBankExhaustion(t *testing.T) {
	env := newSessionTestEnv(t)
	def := env.seedDefinition(t)
	session := env.start(t, def.ID)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		env.answerNext(t, session.ID, "a", 10)
	}

	_, err := env.svc.NextItem(ctx, session.ID)
	assert.ErrorIs(t, err, ErrItemBankExhausted)

	// Exhaustion is an implicit stop: completion still works.
	_, err = env.svc.Complete(ctx, session.ID)
	assert.NoError(t, err)
}

func TestConcurrentModificationRejected(t *testing.T) {
	env := newSessionTestEnv(t)
	def := env.seedDefinition(t)
	session := env.start(t, def.ID)
	ctx := context.Background()

	// Simulate an in-flight mutation holding the session.
	unlock, err := env.locks.Acquire(session.ID)
	require.NoError(t, err)

	_, err = env.svc.NextItem(ctx, session.ID)
	assert.ErrorIs(t, err, ErrConcurrentModification)

	_, err = env.svc.SubmitResponse(ctx, session.ID, &SubmitResponseRequest{
		ItemID: 1,
		Answer: jsonString("a"),
	})
	assert.ErrorIs(t, err, ErrConcurrentModification)

	unlock()

	_, err = env.svc.NextItem(ctx, session.ID)
	assert.NoError(t, err)
}

func TestResponsesAppendOnly(t *testing.T) {
	env := newSessionTestEnv(t)
	def := env.seedDefinition(t)
	session := env.start(t, def.ID)
	ctx := context.Background()

	var seen []uint
	for i := 0; i < 3; i++ {
		result := env.answerNext(t, session.ID, "a", 10)
		require.Len(t, result.Session.Responses, i+1)
		seen = append(seen, result.Response.ItemID)
	}

	stored, err := env.svc.GetByID(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, stored.Responses, 3)
	for i, r := range stored.Responses {
		assert.Equal(t, seen[i], r.ItemID, "order must be preserved")
	}
}

func TestCompleteDeferredUntilGradesResolve(t *testing.T) {
	env := newSessionTestEnv(t)
	ctx := context.Background()

	def, err := env.bank.CreateDefinition(ctx, &CreateDefinitionRequest{
		Title:        "Essay Exam",
		MinQuestions: 1,
		MaxQuestions: 1,
		PassingScore: 50,
		Settings: models.AdaptiveSettings{
			SelectionStrategy:   models.SelectionMaximumInformation,
			TerminationCriteria: models.TerminationFixedLength,
		},
	})
	require.NoError(t, err)

	item := &models.Item{
		TestDefinitionID: def.ID,
		Category:         "writing",
		Difficulty:       models.DifficultyIntermediate,
		Type:             models.ItemFreeResponse,
		Prompt:           "describe the approach",
		Points:           20,
	}
	require.NoError(t, env.store.Item().CreateBatch(ctx, []*models.Item{item}))

	session := env.start(t, def.ID)
	result := env.answerNext(t, session.ID, "an essay", 120)

	assert.False(t, result.Response.Graded)
	assert.Equal(t, 1, result.Session.PendingGrades)
	assert.True(t, result.ShouldStop)

	_, err = env.svc.Complete(ctx, session.ID)
	assert.ErrorIs(t, err, ErrGradesPending)

	err = env.svc.ResolveGrade(ctx, session.ID, item.ID, GradeVerdict{IsCorrect: true, Points: 20})
	require.NoError(t, err)

	score, err := env.svc.Complete(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, score.TotalPoints)
	assert.Equal(t, models.StatusPass, score.Passed)
}

func TestResolveGradeClampsPoints(t *testing.T) {
	env := newSessionTestEnv(t)
	ctx := context.Background()

	def, err := env.bank.CreateDefinition(ctx, &CreateDefinitionRequest{
		Title:        "Essay Exam",
		MinQuestions: 1,
		MaxQuestions: 1,
		PassingScore: 50,
		Settings: models.AdaptiveSettings{
			TerminationCriteria: models.TerminationFixedLength,
		},
	})
	require.NoError(t, err)

	item := &models.Item{
		TestDefinitionID: def.ID,
		Category:         "writing",
		Difficulty:       models.DifficultyBeginner,
		Type:             models.ItemFreeResponse,
		Prompt:           "explain",
		Points:           10,
	}
	require.NoError(t, env.store.Item().CreateBatch(ctx, []*models.Item{item}))

	session := env.start(t, def.ID)
	env.answerNext(t, session.ID, "answer", 60)

	// An over-generous verdict is capped at the item's worth.
	err = env.svc.ResolveGrade(ctx, session.ID, item.ID, GradeVerdict{IsCorrect: true, Points: 99})
	require.NoError(t, err)

	score, err := env.svc.Complete(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, score.TotalPoints)
}

func TestSessionSnapshotCache(t *testing.T) {
	logger := utils.ToSlogLogger(utils.NewDevelopmentLogger())
	store := memory.NewStore()
	publisher := events.NewMockEventPublisher(logger)
	validator := utils.NewValidator()
	locks := NewSessionLocks()
	fc := newFakeCache()

	bank := NewItemBankService(store, nil, logger, validator)
	svc := NewSessionService(store, bank, nil, fc, publisher, logger, validator, locks)
	proctor := NewProctorService(store, fc, publisher, logger, validator, locks)

	env := &sessionTestEnv{store: store, publisher: publisher, locks: locks, bank: bank, svc: svc}
	def := env.seedDefinition(t)
	session := env.start(t, def.ID)
	ctx := context.Background()

	// Start wrote a snapshot, so this read never touches the repository.
	got, err := svc.GetByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)
	assert.Zero(t, fc.misses)

	// A flag write invalidates the snapshot; the next read misses, falls back
	// to the repository and sees the new flag.
	_, err = proctor.Flag(ctx, session.ID, &RaiseFlagRequest{FlagType: models.FlagMultipleTabs})
	require.NoError(t, err)

	got, err = svc.GetByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Len(t, got.SecurityFlags, 1)
	assert.Equal(t, 1, fc.misses)
}

func TestSessionStats(t *testing.T) {
	env := newSessionTestEnv(t)
	def := env.seedDefinition(t)
	ctx := context.Background()

	// One passed session, one abandoned.
	completed := env.start(t, def.ID)
	env.answerNext(t, completed.ID, "a", 20)
	env.answerNext(t, completed.ID, "a", 20)
	_, err := env.svc.Complete(ctx, completed.ID)
	require.NoError(t, err)

	abandoned := env.start(t, def.ID)
	require.NoError(t, env.svc.Abandon(ctx, abandoned.ID))

	stats, err := env.svc.Stats(ctx, def.ID)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.TotalSessions)
	assert.Equal(t, 1, stats.StatusBreakdown[models.SessionCompleted])
	assert.Equal(t, 1, stats.StatusBreakdown[models.SessionAbandoned])
	assert.Equal(t, 1.0, stats.PassRate)
	assert.Equal(t, 1.0, stats.AverageItemsAsked)
	assert.Zero(t, stats.FlaggedSessions)

	_, err = env.svc.Stats(ctx, 999)
	assert.ErrorIs(t, err, ErrTestDefinitionNotFound)
}

func TestStandardErrorNeverIncreases(t *testing.T) {
	env := newSessionTestEnv(t)
	def := env.seedDefinition(t)
	session := env.start(t, def.ID)

	prev := engine.InitialStandardError
	answers := []string{"a", "wrong", "a", "wrong"}
	for _, answer := range answers {
		result := env.answerNext(t, session.ID, answer, 15)
		assert.LessOrEqual(t, result.Session.StandardError, prev)
		prev = result.Session.StandardError
	}
}

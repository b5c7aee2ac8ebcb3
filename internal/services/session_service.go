package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/EduForge-2025/cat-engine/internal/cache"
	"github.com/EduForge-2025/cat-engine/internal/engine"
	"github.com/EduForge-2025/cat-engine/internal/events"
	"github.com/EduForge-2025/cat-engine/internal/models"
	"github.com/EduForge-2025/cat-engine/internal/repositories"
	"github.com/EduForge-2025/cat-engine/internal/utils"
)

type sessionService struct {
	repo      repositories.Repository
	bank      ItemBankService
	oracle    GradingOracle
	cache     cache.CacheService
	publisher events.EventPublisher
	logger    *slog.Logger
	validator *utils.Validator

	estimator engine.AbilityEstimator
	scorer    engine.Scorer
	exposure  *engine.ExposureTracker
	locks     *SessionLocks
}

// NewSessionService wires the state machine. oracle may be nil when the
// deployment has no free-response items; cacheService may be nil to disable
// snapshot caching; publisher may be a mock.
func NewSessionService(
	repo repositories.Repository,
	bank ItemBankService,
	oracle GradingOracle,
	cacheService cache.CacheService,
	publisher events.EventPublisher,
	logger *slog.Logger,
	validator *utils.Validator,
	locks *SessionLocks,
) SessionService {
	return &sessionService{
		repo:      repo,
		bank:      bank,
		oracle:    oracle,
		cache:     cacheService,
		publisher: publisher,
		logger:    logger,
		validator: validator,
		estimator: engine.NewProportionEstimator(),
		scorer:    engine.NewScorer(),
		exposure:  engine.NewExposureTracker(),
		locks:     locks,
	}
}

// ===== LIFECYCLE OPERATIONS =====

func (s *sessionService) Start(ctx context.Context, req *StartSessionRequest) (*models.TestSession, error) {
	s.logger.Info("Starting test session",
		"test_definition_id", req.TestDefinitionID,
		"user_id", req.UserID)

	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	def, err := s.bank.GetDefinition(ctx, req.TestDefinitionID)
	if err != nil {
		return nil, err
	}

	session := &models.TestSession{
		TestDefinitionID: def.ID,
		UserID:           req.UserID,
		Status:           models.SessionInProgress,
		CurrentAbility:   0,
		StandardError:    engine.InitialStandardError,
		StartedAt:        time.Now(),
	}

	if err := s.repo.Session().Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	s.cacheSnapshot(ctx, session)

	s.publishEvent(ctx, events.EventSessionStarted, events.SessionStartedEvent{
		SessionID:        session.ID,
		TestDefinitionID: def.ID,
		UserID:           session.UserID,
		StartedAt:        session.StartedAt,
		TimeLimit:        timeLimitPtr(def),
	})

	s.logger.Info("Test session started", "session_id", session.ID)
	return session, nil
}

func (s *sessionService) NextItem(ctx context.Context, sessionID uint) (*models.Item, error) {
	unlock, err := s.locks.Acquire(sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Status.IsOpen() {
		return nil, ErrSessionClosed
	}

	def, err := s.bank.GetDefinition(ctx, session.TestDefinitionID)
	if err != nil {
		return nil, err
	}
	// The ceiling is a hard invariant, not advisory: once MaxQuestions
	// responses exist, nothing more is handed out regardless of whether the
	// caller consulted ShouldStop.
	if len(session.Responses) >= def.MaxQuestions {
		return nil, ErrMaxQuestionsReached
	}
	items, err := s.bank.GetItemsByTest(ctx, session.TestDefinitionID)
	if err != nil {
		return nil, err
	}

	selector := engine.NewItemSelector(def.Settings, items, s.exposure, int64(session.ID))
	item, err := selector.SelectNext(def, session.CurrentAbility, session.AdministeredItemIDs())
	if err != nil {
		return nil, fmt.Errorf("item selection failed: %w", err)
	}
	if item == nil {
		// Bank exhausted: an implicit stop condition, not a fault.
		s.logger.Info("Item bank exhausted", "session_id", session.ID)
		return nil, ErrItemBankExhausted
	}

	session.PendingItemID = &item.ID
	if err := s.repo.Session().Update(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}
	s.cacheSnapshot(ctx, session)

	return item, nil
}

func (s *sessionService) SubmitResponse(ctx context.Context, sessionID uint, req *SubmitResponseRequest) (*SubmitResult, error) {
	unlock, err := s.locks.Acquire(sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Status.IsOpen() {
		return nil, ErrSessionClosed
	}

	def, err := s.bank.GetDefinition(ctx, session.TestDefinitionID)
	if err != nil {
		return nil, err
	}
	if len(session.Responses) >= def.MaxQuestions {
		return nil, ErrMaxQuestionsReached
	}

	if err := s.checkPendingItem(session, req.ItemID); err != nil {
		return nil, err
	}

	item, err := s.repo.Item().GetByID(ctx, req.ItemID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to get item: %w", err)
	}

	response := models.Response{
		SessionID:        session.ID,
		ItemID:           item.ID,
		Answer:           req.Answer,
		PointsWorth:      item.Points,
		TimeSpentSeconds: req.TimeSpentSeconds,
		Confidence:       req.Confidence,
		SubmittedAt:      time.Now(),
	}

	if item.Type == models.ItemObjective {
		grade := gradeObjective(item, req.Answer)
		response.Graded = true
		response.IsCorrect = grade.IsCorrect
		response.PointsAwarded = grade.Points
	} else {
		// Free-response answers wait on the external oracle; the session
		// keeps moving and completion defers until the grade lands.
		response.Graded = false
		session.PendingGrades++
	}

	session.Responses = append(session.Responses, response)
	session.CurrentQuestionIndex = len(session.Responses)
	session.TimeSpentSeconds += req.TimeSpentSeconds
	session.PendingItemID = nil

	s.reestimate(session)

	evaluator := engine.NewTerminationEvaluator(def.Settings)
	shouldStop := evaluator.ShouldStop(def, len(session.Responses), session.StandardError, session.TimeSpentSeconds)

	if err := s.repo.Session().Update(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}
	s.cacheSnapshot(ctx, session)

	if !response.Graded && s.oracle != nil {
		s.requestGrade(session.ID, item.ID, req)
	}

	s.logger.Info("Response submitted",
		"session_id", session.ID,
		"item_id", item.ID,
		"ability", session.CurrentAbility,
		"standard_error", session.StandardError,
		"should_stop", shouldStop)

	appended := &session.Responses[len(session.Responses)-1]
	return &SubmitResult{Session: session, Response: appended, ShouldStop: shouldStop}, nil
}

func (s *sessionService) Complete(ctx context.Context, sessionID uint) (*models.FinalScore, error) {
	unlock, err := s.locks.Acquire(sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	// Idempotent: a repeated call returns the score computed the first time.
	if session.Status == models.SessionCompleted && session.FinalScore != nil {
		return session.FinalScore, nil
	}
	if !session.Status.IsOpen() {
		return nil, ErrSessionClosed
	}
	if session.PendingGrades > 0 {
		return nil, ErrGradesPending
	}

	def, err := s.bank.GetDefinition(ctx, session.TestDefinitionID)
	if err != nil {
		return nil, err
	}
	items, err := s.bank.GetItemsByTest(ctx, session.TestDefinitionID)
	if err != nil {
		return nil, err
	}

	score := s.scorer.Score(def, itemsByID(items), session.Responses, session.CurrentAbility, session.StandardError)
	score.SessionID = session.ID

	now := time.Now()
	session.FinalScore = &score
	session.Status = models.SessionCompleted
	session.EndTime = &now
	session.PendingItemID = nil

	if err := s.repo.Session().Update(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}
	s.cacheSnapshot(ctx, session)

	s.publishEvent(ctx, events.EventSessionCompleted, events.SessionCompletedEvent{
		SessionID:         session.ID,
		TestDefinitionID:  session.TestDefinitionID,
		UserID:            session.UserID,
		CompletedAt:       now,
		ItemsAdministered: len(session.Responses),
		ThetaScore:        score.ThetaScore,
		StandardError:     score.StandardError,
		ScaledScore:       score.ScaledScore,
		Passed:            score.Passed,
	})

	s.logger.Info("Test session completed",
		"session_id", session.ID,
		"total_points", score.TotalPoints,
		"percentage", score.Percentage,
		"passed", score.Passed)

	return session.FinalScore, nil
}

func (s *sessionService) Abandon(ctx context.Context, sessionID uint) error {
	unlock, err := s.locks.Acquire(sessionID)
	if err != nil {
		return err
	}
	defer unlock()

	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if !session.Status.IsOpen() {
		return ErrSessionClosed
	}

	now := time.Now()
	session.Status = models.SessionAbandoned
	session.EndTime = &now
	session.PendingItemID = nil

	if err := s.repo.Session().Update(ctx, session); err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	s.cacheSnapshot(ctx, session)

	s.publishEvent(ctx, events.EventSessionAbandoned, events.SessionAbandonedEvent{
		SessionID:         session.ID,
		TestDefinitionID:  session.TestDefinitionID,
		UserID:            session.UserID,
		AbandonedAt:       now,
		ItemsAdministered: len(session.Responses),
	})

	s.logger.Info("Test session abandoned", "session_id", session.ID)
	return nil
}

func (s *sessionService) ResolveGrade(ctx context.Context, sessionID, itemID uint, verdict GradeVerdict) error {
	unlock, err := s.locks.Acquire(sessionID)
	if err != nil {
		return err
	}
	defer unlock()

	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status.IsTerminal() {
		return ErrSessionClosed
	}

	resolved := false
	for i := range session.Responses {
		r := &session.Responses[i]
		if r.ItemID == itemID && !r.Graded {
			r.Graded = true
			r.IsCorrect = verdict.IsCorrect
			if verdict.IsCorrect {
				r.PointsAwarded = clampPoints(verdict.Points, r.PointsWorth)
			}
			resolved = true
			break
		}
	}
	if !resolved {
		return ErrInvalidResponse
	}

	if session.PendingGrades > 0 {
		session.PendingGrades--
	}
	s.reestimate(session)

	if err := s.repo.Session().Update(ctx, session); err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	s.cacheSnapshot(ctx, session)

	s.publishEvent(ctx, events.EventGradeResolved, events.GradeResolvedEvent{
		SessionID:  session.ID,
		ItemID:     itemID,
		IsCorrect:  verdict.IsCorrect,
		Points:     verdict.Points,
		ResolvedAt: time.Now(),
	})

	return nil
}

// GetByID serves reads from the snapshot cache when available. Mutation paths
// always read the repository; the cache exists for the query side.
func (s *sessionService) GetByID(ctx context.Context, sessionID uint) (*models.TestSession, error) {
	if s.cache != nil {
		var snapshot models.TestSession
		err := s.cache.Get(ctx, cache.SessionKey(sessionID), &snapshot)
		if err == nil {
			return &snapshot, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("Session snapshot cache read failed", "session_id", sessionID, "error", err)
		}
	}

	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.cacheSnapshot(ctx, session)
	return session, nil
}

func (s *sessionService) Stats(ctx context.Context, defID uint) (*repositories.SessionStats, error) {
	if _, err := s.bank.GetDefinition(ctx, defID); err != nil {
		return nil, err
	}
	return s.repo.Session().Stats(ctx, defID)
}

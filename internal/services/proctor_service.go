package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/EduForge-2025/cat-engine/internal/cache"
	"github.com/EduForge-2025/cat-engine/internal/events"
	"github.com/EduForge-2025/cat-engine/internal/models"
	"github.com/EduForge-2025/cat-engine/internal/repositories"
	"github.com/EduForge-2025/cat-engine/internal/utils"
)

// suspiciousResponseSeconds is the fastest plausible genuine answer. Anything
// quicker trips a timing flag.
const suspiciousResponseSeconds = 2

type proctorService struct {
	repo      repositories.Repository
	cache     cache.CacheService
	publisher events.EventPublisher
	logger    *slog.Logger
	validator *utils.Validator
	locks     *SessionLocks
}

func NewProctorService(
	repo repositories.Repository,
	cacheService cache.CacheService,
	publisher events.EventPublisher,
	logger *slog.Logger,
	validator *utils.Validator,
	locks *SessionLocks,
) ProctorService {
	return &proctorService{
		repo:      repo,
		cache:     cacheService,
		publisher: publisher,
		logger:    logger,
		validator: validator,
		locks:     locks,
	}
}

// Flag appends a security flag with severity derived from its type. A
// critical flag escalates the session: in-progress moves to flagged, a
// repeat offense moves flagged to under review. Terminal sessions still
// accept flags so post-hoc evidence is never dropped.
func (s *proctorService) Flag(ctx context.Context, sessionID uint, req *RaiseFlagRequest) (*models.SecurityFlag, error) {
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

	flag := models.SecurityFlag{
		SessionID:   session.ID,
		Type:        req.FlagType,
		Severity:    models.SeverityFor(req.FlagType),
		Description: req.Description,
		Timestamp:   time.Now(),
	}
	session.SecurityFlags = append(session.SecurityFlags, flag)

	if flag.Severity == models.SeverityCritical {
		switch session.Status {
		case models.SessionInProgress:
			session.Status = models.SessionFlagged
		case models.SessionFlagged:
			session.Status = models.SessionUnderReview
		}
	}

	if err := s.repo.Session().Update(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}
	s.invalidateSnapshot(ctx, session.ID)

	s.publishEvent(ctx, events.EventFlagRaised, events.FlagRaisedEvent{
		SessionID:     session.ID,
		UserID:        session.UserID,
		FlagType:      flag.Type,
		Severity:      flag.Severity,
		Description:   flag.Description,
		RaisedAt:      flag.Timestamp,
		SessionStatus: session.Status,
	})

	s.logger.Warn("Security flag raised",
		"session_id", session.ID,
		"flag_type", flag.Type,
		"severity", flag.Severity,
		"session_status", session.Status)

	applied := &session.SecurityFlags[len(session.SecurityFlags)-1]
	return applied, nil
}

// Resolve marks a flag as reviewed. The flag stays on the record; resolution
// is an annotation, not a removal.
func (s *proctorService) Resolve(ctx context.Context, sessionID uint, flagID uint, reviewerID string) error {
	unlock, err := s.locks.Acquire(sessionID)
	if err != nil {
		return err
	}
	defer unlock()

	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return err
	}

	var flag *models.SecurityFlag
	for i := range session.SecurityFlags {
		if session.SecurityFlags[i].ID == flagID {
			flag = &session.SecurityFlags[i]
			break
		}
	}
	if flag == nil {
		return ErrFlagNotFound
	}
	if flag.Resolved {
		return ErrFlagAlreadyResolved
	}

	now := time.Now()
	flag.Resolved = true
	flag.ResolvedBy = &reviewerID
	flag.ResolvedAt = &now

	if err := s.repo.Session().Update(ctx, session); err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	s.invalidateSnapshot(ctx, session.ID)

	s.publishEvent(ctx, events.EventFlagResolved, events.FlagResolvedEvent{
		SessionID:  session.ID,
		FlagType:   flag.Type,
		ResolvedBy: reviewerID,
		ResolvedAt: now,
	})

	s.logger.Info("Security flag resolved",
		"session_id", session.ID,
		"flag_id", flagID,
		"resolved_by", reviewerID)

	return nil
}

// AnalyzeTiming inspects the most recent response and raises a
// suspicious-timing flag when it was answered implausibly fast. Returns
// (nil, nil) when the timing is unremarkable.
func (s *proctorService) AnalyzeTiming(ctx context.Context, sessionID uint) (*models.SecurityFlag, error) {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(session.Responses) == 0 {
		return nil, nil
	}

	last := session.Responses[len(session.Responses)-1]
	if last.TimeSpentSeconds >= suspiciousResponseSeconds {
		return nil, nil
	}

	return s.Flag(ctx, sessionID, &RaiseFlagRequest{
		FlagType: models.FlagSuspiciousTiming,
		Description: fmt.Sprintf("item %d answered in %d seconds",
			last.ItemID, last.TimeSpentSeconds),
	})
}

// invalidateSnapshot drops the query-side snapshot after a flag write so the
// session service's next read sees the new flags.
func (s *proctorService) invalidateSnapshot(ctx context.Context, sessionID uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cache.SessionKey(sessionID)); err != nil {
		s.logger.Warn("Session snapshot invalidation failed",
			"session_id", sessionID,
			"error", err)
	}
}

func (s *proctorService) getSession(ctx context.Context, sessionID uint) (*models.TestSession, error) {
	session, err := s.repo.Session().GetByID(ctx, sessionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return session, nil
}

func (s *proctorService) publishEvent(ctx context.Context, eventType events.EventType, data interface{}) {
	event := &events.SessionEvent{
		ID:        watermill.NewUUID(),
		Type:      eventType,
		Timestamp: time.Now(),
		Source:    "cat-engine",
		Version:   "1.0",
		Data:      data,
	}
	if err := s.publisher.PublishSessionEvent(ctx, event); err != nil {
		s.logger.Error("Failed to publish event",
			"event_type", eventType,
			"error", err)
	}
}

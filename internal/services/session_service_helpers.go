package services

import (
	"context"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"gorm.io/datatypes"

	"github.com/EduForge-2025/cat-engine/internal/cache"
	"github.com/EduForge-2025/cat-engine/internal/events"
	"github.com/EduForge-2025/cat-engine/internal/models"
	"github.com/EduForge-2025/cat-engine/internal/repositories"
)

// sessionSnapshotTTL bounds how long a query-side snapshot may outlive its
// session record. Every write path refreshes or invalidates the snapshot, so
// the TTL only matters for out-of-band mutations.
const sessionSnapshotTTL = 30 * time.Second

// SessionLocks serializes mutations per session. Acquire is non-blocking:
// a caller racing an in-flight mutation gets ErrConcurrentModification
// instead of queueing, because ability updates are order-dependent and the
// loser must resynchronize before retrying.
type SessionLocks struct {
	mu    sync.Mutex
	locks map[uint]*sessionLock
}

type sessionLock struct {
	busy bool
	refs int
}

func NewSessionLocks() *SessionLocks {
	return &SessionLocks{locks: make(map[uint]*sessionLock)}
}

// Acquire claims the session for one mutation. The returned unlock function
// must be called exactly once.
func (l *SessionLocks) Acquire(sessionID uint) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[sessionID]
	if !ok {
		lock = &sessionLock{}
		l.locks[sessionID] = lock
	}
	if lock.busy {
		return nil, ErrConcurrentModification
	}
	lock.busy = true
	lock.refs++

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		lock.busy = false
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, sessionID)
		}
	}, nil
}

func (s *sessionService) getSession(ctx context.Context, sessionID uint) (*models.TestSession, error) {
	session, err := s.repo.Session().GetByID(ctx, sessionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return session, nil
}

// cacheSnapshot refreshes the query-side snapshot after a successful write.
// Best effort: a cache failure never fails the operation.
func (s *sessionService) cacheSnapshot(ctx context.Context, session *models.TestSession) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, cache.SessionKey(session.ID), session, sessionSnapshotTTL); err != nil {
		s.logger.Warn("Session snapshot cache write failed",
			"session_id", session.ID,
			"error", err)
	}
}

// checkPendingItem enforces that a submission answers exactly the item the
// selector handed out, and that no item is answered twice.
func (s *sessionService) checkPendingItem(session *models.TestSession, itemID uint) error {
	for _, r := range session.Responses {
		if r.ItemID == itemID {
			return ErrDuplicateResponse
		}
	}
	if session.PendingItemID == nil {
		return ErrNoPendingItem
	}
	if *session.PendingItemID != itemID {
		return ErrInvalidResponse
	}
	return nil
}

func (s *sessionService) reestimate(session *models.TestSession) {
	theta, se := s.estimator.Estimate(session.Responses)
	session.CurrentAbility = theta
	// The standard error shrinks monotonically; an estimator glitch must not
	// widen the reported confidence interval mid-session.
	if se < session.StandardError {
		session.StandardError = se
	}
}

// requestGrade hands a free-response answer to the oracle off the request
// path. The verdict is applied through ResolveGrade, which takes the session
// lock itself, so the goroutine never touches session state directly.
func (s *sessionService) requestGrade(sessionID, itemID uint, req *SubmitResponseRequest) {
	answer := append(datatypes.JSON(nil), req.Answer...)

	go func() {
		ctx := context.Background()

		s.publishEvent(ctx, events.EventGradeRequested, events.GradeRequestedEvent{
			SessionID:   sessionID,
			ItemID:      itemID,
			RequestedAt: time.Now(),
		})

		verdict, err := s.oracle.GradeFreeResponse(ctx, itemID, answer)
		if err != nil {
			s.logger.Error("Grading oracle failed",
				"session_id", sessionID,
				"item_id", itemID,
				"error", err)
			return
		}

		if err := s.resolveGradeWithRetry(ctx, sessionID, itemID, verdict); err != nil {
			s.logger.Error("Failed to apply grade verdict",
				"session_id", sessionID,
				"item_id", itemID,
				"error", err)
		}
	}()
}

// resolveGradeWithRetry retries past transient lock contention. Anything else
// is surfaced to the caller.
func (s *sessionService) resolveGradeWithRetry(ctx context.Context, sessionID, itemID uint, verdict GradeVerdict) error {
	var err error
	for attempt := 0; attempt < 5; attempt++ {
		err = s.ResolveGrade(ctx, sessionID, itemID, verdict)
		if err == nil || err != ErrConcurrentModification {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * 20 * time.Millisecond)
	}
	return err
}

func (s *sessionService) publishEvent(ctx context.Context, eventType events.EventType, data interface{}) {
	event := &events.SessionEvent{
		ID:        watermill.NewUUID(),
		Type:      eventType,
		Timestamp: time.Now(),
		Source:    "cat-engine",
		Version:   "1.0",
		Data:      data,
	}

	if err := s.publisher.PublishSessionEvent(ctx, event); err != nil {
		// Events are best effort; the session record is the source of truth.
		s.logger.Error("Failed to publish event",
			"event_type", eventType,
			"error", err)
	}
}

func itemsByID(items []models.Item) map[uint]models.Item {
	byID := make(map[uint]models.Item, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}
	return byID
}

func timeLimitPtr(def *models.AdaptiveTestDefinition) *int {
	if def.TimeLimit <= 0 {
		return nil
	}
	limit := def.TimeLimit
	return &limit
}

func clampPoints(points, worth int) int {
	if points < 0 {
		return 0
	}
	if points > worth {
		return worth
	}
	return points
}

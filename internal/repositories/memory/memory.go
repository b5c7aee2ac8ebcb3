// Package memory provides mutex-guarded in-memory repositories. They back the
// engine's embedded mode and the service tests; the postgres package is the
// durable equivalent.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/EduForge-2025/cat-engine/internal/models"
	"github.com/EduForge-2025/cat-engine/internal/repositories"
)

type Store struct {
	mu sync.RWMutex

	sessions    map[uint]*models.TestSession
	items       map[uint]*models.Item
	definitions map[uint]*models.AdaptiveTestDefinition

	nextSessionID  uint
	nextItemID     uint
	nextDefID      uint
	nextResponseID uint
	nextFlagID     uint
}

func NewStore() *Store {
	return &Store{
		sessions:    make(map[uint]*models.TestSession),
		items:       make(map[uint]*models.Item),
		definitions: make(map[uint]*models.AdaptiveTestDefinition),
	}
}

func (s *Store) Session() repositories.SessionRepository               { return &sessionStore{store: s} }
func (s *Store) Item() repositories.ItemRepository                     { return &itemStore{store: s} }
func (s *Store) TestDefinition() repositories.TestDefinitionRepository { return &definitionStore{store: s} }
func (s *Store) Ping(context.Context) error                            { return nil }
func (s *Store) Close() error                                          { return nil }

// ===== SESSIONS =====

type sessionStore struct {
	store *Store
}

func (r *sessionStore) Create(_ context.Context, session *models.TestSession) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	r.store.nextSessionID++
	session.ID = r.store.nextSessionID
	r.store.assignChildIDs(session)
	r.store.sessions[session.ID] = cloneSession(session)
	return nil
}

func (r *sessionStore) GetByID(_ context.Context, id uint) (*models.TestSession, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	session, ok := r.store.sessions[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return cloneSession(session), nil
}

func (r *sessionStore) Update(_ context.Context, session *models.TestSession) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.sessions[session.ID]; !ok {
		return repositories.ErrNotFound
	}
	r.store.assignChildIDs(session)
	r.store.sessions[session.ID] = cloneSession(session)
	return nil
}

// assignChildIDs gives appended responses and flags primary keys, the way the
// durable store's association save does. Mutates the caller's copy so IDs are
// visible without a re-read.
func (s *Store) assignChildIDs(session *models.TestSession) {
	for i := range session.Responses {
		if session.Responses[i].ID == 0 {
			s.nextResponseID++
			session.Responses[i].ID = s.nextResponseID
		}
		session.Responses[i].SessionID = session.ID
	}
	for i := range session.SecurityFlags {
		if session.SecurityFlags[i].ID == 0 {
			s.nextFlagID++
			session.SecurityFlags[i].ID = s.nextFlagID
		}
		session.SecurityFlags[i].SessionID = session.ID
	}
}

func (r *sessionStore) List(_ context.Context, filters repositories.SessionFilters) ([]*models.TestSession, int64, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*models.TestSession
	for _, session := range r.store.sessions {
		if filters.Status != nil && session.Status != *filters.Status {
			continue
		}
		if filters.UserID != nil && session.UserID != *filters.UserID {
			continue
		}
		out = append(out, cloneSession(session))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	total := int64(len(out))
	out = paginate(out, filters.Offset, filters.Limit)
	return out, total, nil
}

func (r *sessionStore) GetByUser(ctx context.Context, userID string, filters repositories.SessionFilters) ([]*models.TestSession, int64, error) {
	filters.UserID = &userID
	return r.List(ctx, filters)
}

func (r *sessionStore) GetByDefinition(ctx context.Context, defID uint, filters repositories.SessionFilters) ([]*models.TestSession, int64, error) {
	sessions, _, err := r.List(ctx, filters)
	if err != nil {
		return nil, 0, err
	}
	var out []*models.TestSession
	for _, session := range sessions {
		if session.TestDefinitionID == defID {
			out = append(out, session)
		}
	}
	return out, int64(len(out)), nil
}

func (r *sessionStore) Stats(_ context.Context, defID uint) (*repositories.SessionStats, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	stats := &repositories.SessionStats{
		StatusBreakdown: make(map[models.SessionStatus]int),
	}

	var abilitySum, itemsSum float64
	var timeSum, completed, passed int
	for _, session := range r.store.sessions {
		if session.TestDefinitionID != defID {
			continue
		}
		stats.TotalSessions++
		stats.StatusBreakdown[session.Status]++
		abilitySum += session.CurrentAbility
		timeSum += session.TimeSpentSeconds
		itemsSum += float64(len(session.Responses))
		if session.Status == models.SessionFlagged || session.Status == models.SessionUnderReview {
			stats.FlaggedSessions++
		}
		if session.Status == models.SessionCompleted {
			completed++
			if session.FinalScore != nil && session.FinalScore.Passed == models.StatusPass {
				passed++
			}
		}
	}

	if stats.TotalSessions > 0 {
		n := float64(stats.TotalSessions)
		stats.AverageAbility = abilitySum / n
		stats.AverageTimeSpent = timeSum / stats.TotalSessions
		stats.AverageItemsAsked = itemsSum / n
	}
	if completed > 0 {
		stats.PassRate = float64(passed) / float64(completed)
	}

	return stats, nil
}

// cloneSession copies the session and its slices so callers can never mutate
// the store's copy without going through Update.
func cloneSession(s *models.TestSession) *models.TestSession {
	cp := *s
	cp.Responses = append([]models.Response(nil), s.Responses...)
	cp.SecurityFlags = append([]models.SecurityFlag(nil), s.SecurityFlags...)
	if s.FinalScore != nil {
		scoreCopy := *s.FinalScore
		cp.FinalScore = &scoreCopy
	}
	return &cp
}

// ===== ITEMS =====

type itemStore struct {
	store *Store
}

func (r *itemStore) GetByID(_ context.Context, id uint) (*models.Item, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	item, ok := r.store.items[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *item
	return &cp, nil
}

func (r *itemStore) GetByTest(_ context.Context, defID uint) ([]models.Item, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []models.Item
	for _, item := range r.store.items {
		if item.TestDefinitionID == defID {
			out = append(out, *item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *itemStore) CreateBatch(_ context.Context, items []*models.Item) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, item := range items {
		if item.ID == 0 {
			r.store.nextItemID++
			item.ID = r.store.nextItemID
		} else if item.ID > r.store.nextItemID {
			r.store.nextItemID = item.ID
		}
		cp := *item
		r.store.items[item.ID] = &cp
	}
	return nil
}

// ===== TEST DEFINITIONS =====

type definitionStore struct {
	store *Store
}

func (r *definitionStore) Create(_ context.Context, def *models.AdaptiveTestDefinition) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if def.ID == 0 {
		r.store.nextDefID++
		def.ID = r.store.nextDefID
	}
	def.Settings.TestDefinitionID = def.ID
	cp := *def
	r.store.definitions[def.ID] = &cp
	return nil
}

func (r *definitionStore) GetByID(_ context.Context, id uint) (*models.AdaptiveTestDefinition, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	def, ok := r.store.definitions[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *def
	return &cp, nil
}

func paginate[T any](in []T, offset, limit int) []T {
	if offset >= len(in) {
		return nil
	}
	in = in[offset:]
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}

package engine

import (
	"math/rand"
	"sort"
	"sync"

	"github.com/EduForge-2025/cat-engine/internal/models"
)

// ItemSelector picks the next item for a session. A nil item with a nil error
// means the bank is exhausted; callers treat that as an implicit stop
// condition, not a failure.
type ItemSelector interface {
	SelectNext(def *models.AdaptiveTestDefinition, currentAbility float64, administered []uint) (*models.Item, error)
}

// ExposureTracker counts bank-wide administrations so the exposure-control
// strategy can steer away from overused items. One tracker is shared by every
// session of an engine instance; a fresh tracker makes exposure control
// degrade to maximum information.
type ExposureTracker struct {
	mu     sync.Mutex
	counts map[uint]int
}

func NewExposureTracker() *ExposureTracker {
	return &ExposureTracker{counts: make(map[uint]int)}
}

func (t *ExposureTracker) Record(itemID uint) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[itemID]++
}

func (t *ExposureTracker) Count(itemID uint) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[itemID]
}

// NewItemSelector builds the selector enumerated by the definition's
// settings. The bank slice is treated as immutable. seed backs the random
// strategy so test runs are reproducible.
func NewItemSelector(settings models.AdaptiveSettings, bank []models.Item, tracker *ExposureTracker, seed int64) ItemSelector {
	switch settings.SelectionStrategy {
	case models.SelectionRandom:
		if settings.RandomSeed != nil {
			seed = *settings.RandomSeed
		}
		return &randomSelector{bank: bank, rng: rand.New(rand.NewSource(seed))}
	case models.SelectionContentBalanced:
		return &contentBalancedSelector{bank: bank}
	case models.SelectionExposureControl:
		if tracker == nil {
			tracker = NewExposureTracker()
		}
		return &exposureControlSelector{bank: bank, tracker: tracker}
	default:
		return &maxInformationSelector{bank: bank}
	}
}

// remaining filters out already-administered items, preserving bank order.
func remaining(bank []models.Item, administered []uint) []models.Item {
	seen := make(map[uint]bool, len(administered))
	for _, id := range administered {
		seen[id] = true
	}

	var out []models.Item
	for _, item := range bank {
		if !seen[item.ID] {
			out = append(out, item)
		}
	}
	return out
}

func ordinalDistance(item models.Item, ability float64) int {
	d := item.Difficulty.Ordinal() - models.DifficultyForAbility(ability).Ordinal()
	if d < 0 {
		d = -d
	}
	return d
}

// closestByDifficulty picks the candidate whose difficulty is nearest the
// ability on the ordinal scale, breaking ties on the lowest item id.
func closestByDifficulty(candidates []models.Item, ability float64) *models.Item {
	var best *models.Item
	bestDist := 0
	for i := range candidates {
		item := &candidates[i]
		dist := ordinalDistance(*item, ability)
		if best == nil || dist < bestDist || (dist == bestDist && item.ID < best.ID) {
			best = item
			bestDist = dist
		}
	}
	return best
}

type maxInformationSelector struct {
	bank []models.Item
}

func (s *maxInformationSelector) SelectNext(_ *models.AdaptiveTestDefinition, ability float64, administered []uint) (*models.Item, error) {
	candidates := remaining(s.bank, administered)
	if len(candidates) == 0 {
		return nil, nil
	}
	return closestByDifficulty(candidates, ability), nil
}

type randomSelector struct {
	bank []models.Item
	rng  *rand.Rand
}

func (s *randomSelector) SelectNext(_ *models.AdaptiveTestDefinition, _ float64, administered []uint) (*models.Item, error) {
	candidates := remaining(s.bank, administered)
	if len(candidates) == 0 {
		return nil, nil
	}
	return &candidates[s.rng.Intn(len(candidates))], nil
}

// contentBalancedSelector round-robins across categories so no category is
// over-represented before every category has been sampled. Within the chosen
// category it behaves like maximum information.
type contentBalancedSelector struct {
	bank []models.Item
}

func (s *contentBalancedSelector) SelectNext(_ *models.AdaptiveTestDefinition, ability float64, administered []uint) (*models.Item, error) {
	candidates := remaining(s.bank, administered)
	if len(candidates) == 0 {
		return nil, nil
	}

	administeredByCategory := make(map[string]int)
	itemCategory := make(map[uint]string, len(s.bank))
	for _, item := range s.bank {
		itemCategory[item.ID] = item.Category
	}
	for _, id := range administered {
		administeredByCategory[itemCategory[id]]++
	}

	// Candidate categories, least-administered first; alphabetical within a
	// count so the round-robin order is deterministic.
	categorySet := make(map[string]bool)
	for _, item := range candidates {
		categorySet[item.Category] = true
	}
	categories := make([]string, 0, len(categorySet))
	for c := range categorySet {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool {
		ci, cj := administeredByCategory[categories[i]], administeredByCategory[categories[j]]
		if ci != cj {
			return ci < cj
		}
		return categories[i] < categories[j]
	})

	target := categories[0]
	var inCategory []models.Item
	for _, item := range candidates {
		if item.Category == target {
			inCategory = append(inCategory, item)
		}
	}
	return closestByDifficulty(inCategory, ability), nil
}

// exposureControlSelector behaves like maximum information but prefers the
// least-exposed item among equally informative candidates, and records every
// pick against the shared tracker.
type exposureControlSelector struct {
	bank    []models.Item
	tracker *ExposureTracker
}

func (s *exposureControlSelector) SelectNext(_ *models.AdaptiveTestDefinition, ability float64, administered []uint) (*models.Item, error) {
	candidates := remaining(s.bank, administered)
	if len(candidates) == 0 {
		return nil, nil
	}

	var best *models.Item
	bestDist, bestExposure := 0, 0
	for i := range candidates {
		item := &candidates[i]
		dist := ordinalDistance(*item, ability)
		exposure := s.tracker.Count(item.ID)
		switch {
		case best == nil,
			dist < bestDist,
			dist == bestDist && exposure < bestExposure,
			dist == bestDist && exposure == bestExposure && item.ID < best.ID:
			best = item
			bestDist = dist
			bestExposure = exposure
		}
	}

	s.tracker.Record(best.ID)
	return best, nil
}

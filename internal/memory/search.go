// Package memory ranks long-term memory items by decayed relevance: embedding
// similarity discounted by how long ago the item was created or reinforced.
package memory

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/loopline/mentor/internal/domain"
	"github.com/loopline/mentor/internal/embedding"
)

// DefaultHalfLife is the default decay half-life. The decay curve is a
// tunable, not a contract; two weeks keeps month-old unreinforced memories
// at roughly a quarter of their raw similarity.
const DefaultHalfLife = 14 * 24 * time.Hour

// ItemLister provides the stored memory items for a subject.
type ItemLister interface {
	ListMemoryItems(ctx context.Context, subjectID string) ([]domain.MemoryItem, error)
}

// ScoredItem is a memory item with its query-time scores.
type ScoredItem struct {
	domain.MemoryItem
	Similarity float64 `json:"similarity"`
	Relevance  float64 `json:"relevance"`
}

// SearchParams holds parameters for a memory search.
type SearchParams struct {
	SubjectID string
	Query     embedding.Vector
	Limit     int
	Now       time.Time // zero means time.Now()
}

// Searcher retrieves memory items ranked by decayed relevance.
type Searcher struct {
	items    ItemLister
	halfLife time.Duration
}

// NewSearcher creates a searcher. halfLife <= 0 selects DefaultHalfLife.
func NewSearcher(items ItemLister, halfLife time.Duration) *Searcher {
	if halfLife <= 0 {
		halfLife = DefaultHalfLife
	}
	return &Searcher{items: items, halfLife: halfLife}
}

// Search returns up to Limit items ranked by similarity x decay. Items with
// equal similarity rank by freshness: an old item that was never reinforced
// always scores below a recent one.
func (s *Searcher) Search(ctx context.Context, p SearchParams) ([]ScoredItem, error) {
	items, err := s.items.ListMemoryItems(ctx, p.SubjectID)
	if err != nil {
		return nil, err
	}

	now := p.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	limit := p.Limit
	if limit <= 0 {
		limit = 10
	}

	scored := make([]ScoredItem, 0, len(items))
	for _, item := range items {
		sim := embedding.CosineSimilarity(p.Query, item.Embedding)
		if sim <= 0 {
			continue
		}
		scored = append(scored, ScoredItem{
			MemoryItem: item,
			Similarity: sim,
			Relevance:  sim * s.decay(now, item),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Relevance > scored[j].Relevance
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// decay returns the exponential decay factor in (0, 1], halving once per
// half-life. Reinforcement resets the clock.
func (s *Searcher) decay(now time.Time, item domain.MemoryItem) float64 {
	anchor := item.CreatedAt
	if item.LastReinforcedAt != nil && item.LastReinforcedAt.After(anchor) {
		anchor = *item.LastReinforcedAt
	}
	age := now.Sub(anchor)
	if age <= 0 {
		return 1
	}
	return math.Exp2(-age.Hours() / s.halfLife.Hours())
}

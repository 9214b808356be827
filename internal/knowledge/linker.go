// Package knowledge reads the platform's entity knowledge graph to pull
// related entities into chat context. The graph is populated by an external
// indexing job; this package never writes to it.
package knowledge

import (
	"context"

	"github.com/loopline/mentor/internal/domain"
)

// EdgeReader provides knowledge-graph neighbors for an entity.
type EdgeReader interface {
	RelatedEntities(ctx context.Context, entity string, floor float64, max int) ([]domain.KnowledgeGraphEdge, error)
}

// Related is one entity related to the queried one.
type Related struct {
	Entity   string  `json:"entity"`
	Relation string  `json:"relation"`
	Weight   float64 `json:"weight"`
}

// Linker resolves entities related to a conversation subject.
type Linker struct {
	edges EdgeReader
	floor float64
	max   int
}

// NewLinker creates a linker with a relevance floor and a result cap.
func NewLinker(edges EdgeReader, floor float64, max int) *Linker {
	if max <= 0 {
		max = 10
	}
	return &Linker{edges: edges, floor: floor, max: max}
}

// Related returns entities linked to entity with weight >= the configured
// floor, strongest first. Edges pointing at the entity count the same as
// edges leaving it.
func (l *Linker) Related(ctx context.Context, entity string) ([]Related, error) {
	edges, err := l.edges.RelatedEntities(ctx, entity, l.floor, l.max)
	if err != nil {
		return nil, err
	}

	related := make([]Related, 0, len(edges))
	for _, e := range edges {
		other := e.ToEntity
		if other == entity {
			other = e.FromEntity
		}
		if other == entity {
			// Self-loop, nothing to add.
			continue
		}
		related = append(related, Related{Entity: other, Relation: e.Relation, Weight: e.Weight})
	}
	return related, nil
}

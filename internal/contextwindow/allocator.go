// Package contextwindow assembles the token-bounded context payload sent to
// the upstream model for one chat turn.
package contextwindow

import (
	"sort"

	"github.com/loopline/mentor/internal/domain"
)

// Source identifies which knowledge source a fragment came from.
type Source string

const (
	SourceRecentTurns Source = "recent_turns"
	SourceSummary     Source = "summary"
	SourceMemory      Source = "memory"
	SourceGraph       Source = "graph"
)

// DefaultTokenBudget is the default total context budget.
const DefaultTokenBudget = 6000

// Soft caps per category as a share of the total budget. Unused share rolls
// over to the next category in priority order.
const (
	summaryCapShare = 0.15
	memoryCapShare  = 0.25
	graphCapShare   = 0.10
)

// Fragment is one indivisible piece of context. Fragments are included
// all-or-nothing; partial inclusion would truncate mid-thought content.
type Fragment struct {
	Source    Source
	Role      domain.Role // set for recent-turn fragments
	Text      string
	Relevance float64
	Tokens    int
}

// NewFragment builds a fragment with its token estimate filled in.
func NewFragment(source Source, text string, relevance float64) Fragment {
	return Fragment{Source: source, Text: text, Relevance: relevance, Tokens: EstimateTokens(text)}
}

// EstimateTokens returns a rough token count using ~4 characters per token
// plus a small per-fragment overhead for role framing and delimiters. The
// budget is a soft limit; precision is not the point.
func EstimateTokens(text string) int {
	const charsPerToken = 4
	const overhead = 4
	return len(text)/charsPerToken + overhead
}

// Sources holds the candidate fragments per knowledge source. RecentTurns
// must be chronological with the new user input last; it is never reordered.
type Sources struct {
	RecentTurns []Fragment
	Summary     []Fragment
	Memories    []Fragment
	Graph       []Fragment
}

// Allocation is the result of budgeting: the included fragments in prompt
// order (summary, memories, graph context, then recent turns), their total
// token estimate, and whether anything had to be cut beyond the soft caps.
type Allocation struct {
	Fragments []Fragment
	Tokens    int
	Degraded  bool
}

// Allocate partitions budget across the sources. Deterministic for identical
// inputs. Recent turns have absolute priority: they are only ever truncated
// from the oldest forward, and only when they alone exceed the whole budget,
// which flags the allocation as degraded. The newest turn survives even if it
// exceeds the budget by itself.
func Allocate(budget int, src Sources) Allocation {
	if budget <= 0 {
		budget = DefaultTokenBudget
	}

	var out Allocation

	recent := src.RecentTurns
	for sumTokens(recent) > budget && len(recent) > 1 {
		recent = recent[1:]
		out.Degraded = true
	}
	remaining := budget - sumTokens(recent)
	if remaining < 0 {
		// A single oversized newest turn. Included regardless.
		remaining = 0
		out.Degraded = true
	}

	carry := 0
	take := func(frags []Fragment, capTokens int) []Fragment {
		capTokens += carry
		byRelevance := make([]Fragment, len(frags))
		copy(byRelevance, frags)
		sort.SliceStable(byRelevance, func(i, j int) bool {
			return byRelevance[i].Relevance > byRelevance[j].Relevance
		})

		var included []Fragment
		used := 0
		for _, f := range byRelevance {
			if f.Tokens > capTokens-used || f.Tokens > remaining {
				continue
			}
			included = append(included, f)
			used += f.Tokens
			remaining -= f.Tokens
		}
		carry = capTokens - used
		return included
	}

	summary := take(src.Summary, int(summaryCapShare*float64(budget)))
	memories := take(src.Memories, int(memoryCapShare*float64(budget)))
	graph := take(src.Graph, int(graphCapShare*float64(budget)))

	out.Fragments = make([]Fragment, 0, len(summary)+len(memories)+len(graph)+len(recent))
	out.Fragments = append(out.Fragments, summary...)
	out.Fragments = append(out.Fragments, memories...)
	out.Fragments = append(out.Fragments, graph...)
	out.Fragments = append(out.Fragments, recent...)
	out.Tokens = sumTokens(out.Fragments)
	return out
}

func sumTokens(frags []Fragment) int {
	total := 0
	for _, f := range frags {
		total += f.Tokens
	}
	return total
}

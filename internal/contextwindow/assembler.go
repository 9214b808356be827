package contextwindow

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/loopline/mentor/internal/domain"
	"github.com/loopline/mentor/internal/embedding"
	"github.com/loopline/mentor/internal/knowledge"
	"github.com/loopline/mentor/internal/memory"
)

// MessageSource provides the raw recent turns of a conversation.
type MessageSource interface {
	RecentMessages(ctx context.Context, conversationID string, n int) ([]domain.Message, error)
}

// MemorySearcher retrieves memories ranked by decayed relevance.
type MemorySearcher interface {
	Search(ctx context.Context, p memory.SearchParams) ([]memory.ScoredItem, error)
}

// GraphLinker resolves entities related to the conversation subject.
type GraphLinker interface {
	Related(ctx context.Context, entity string) ([]knowledge.Related, error)
}

// Payload is the assembled, budgeted context for one chat turn.
type Payload struct {
	Fragments []Fragment
	Tokens    int
	Degraded  bool
}

// Options tunes assembly.
type Options struct {
	TokenBudget     int
	RecentTurnCount int
	MemoryLimit     int
}

// Assembler gathers context from the message log, long-term memory, the
// knowledge graph and the rolling summary, then budgets it into one payload.
type Assembler struct {
	messages MessageSource
	memories MemorySearcher
	linker   GraphLinker
	embedder embedding.Embedder // nil disables semantic memory retrieval
	opts     Options
	log      *logrus.Logger
}

// NewAssembler creates an assembler. memories, linker and embedder may each
// be nil; a missing source is simply not consulted.
func NewAssembler(messages MessageSource, memories MemorySearcher, linker GraphLinker, embedder embedding.Embedder, opts Options, log *logrus.Logger) *Assembler {
	if opts.TokenBudget <= 0 {
		opts.TokenBudget = DefaultTokenBudget
	}
	if opts.RecentTurnCount <= 0 {
		opts.RecentTurnCount = 8
	}
	if opts.MemoryLimit <= 0 {
		opts.MemoryLimit = 6
	}
	if log == nil {
		log = logrus.New()
	}
	return &Assembler{messages: messages, memories: memories, linker: linker, embedder: embedder, opts: opts, log: log}
}

// Assemble builds the context payload for one user turn. Raw recent turns
// and the summary come from the source of truth and a failure there fails
// the turn; memory and graph enrichment failures only degrade the payload.
func (a *Assembler) Assemble(ctx context.Context, conv *domain.Conversation, userText string) (*Payload, error) {
	turns, err := a.messages.RecentMessages(ctx, conv.ConversationID, a.opts.RecentTurnCount)
	if err != nil {
		return nil, fmt.Errorf("failed to read recent turns: %w", err)
	}

	var src Sources
	for _, msg := range turns {
		f := NewFragment(SourceRecentTurns, msg.Content, 1)
		f.Role = msg.Role
		src.RecentTurns = append(src.RecentTurns, f)
	}
	userFrag := NewFragment(SourceRecentTurns, userText, 1)
	userFrag.Role = domain.RoleUser
	src.RecentTurns = append(src.RecentTurns, userFrag)

	if conv.Summary != "" {
		src.Summary = []Fragment{NewFragment(SourceSummary, conv.Summary, 1)}
	}

	// Memory and graph lookups are I/O-bound and independent; run them
	// concurrently. Their failures must never fail the user turn.
	g, gctx := errgroup.WithContext(ctx)
	var memFrags, graphFrags []Fragment
	var memDegraded, graphDegraded bool

	if a.memories != nil && a.embedder != nil {
		g.Go(func() error {
			vec, err := a.embedder.Embed(gctx, userText)
			if err != nil {
				a.log.WithError(err).WithField("conversation_id", conv.ConversationID).
					Warn("embedding query failed, proceeding without memories")
				memDegraded = true
				return nil
			}
			items, err := a.memories.Search(gctx, memory.SearchParams{
				SubjectID: conv.SubjectID,
				Query:     vec,
				Limit:     a.opts.MemoryLimit,
			})
			if err != nil {
				a.log.WithError(err).WithField("conversation_id", conv.ConversationID).
					Warn("memory search failed, proceeding without memories")
				memDegraded = true
				return nil
			}
			for _, item := range items {
				memFrags = append(memFrags, NewFragment(SourceMemory, item.Text, item.Relevance))
			}
			return nil
		})
	}

	if a.linker != nil {
		g.Go(func() error {
			related, err := a.linker.Related(gctx, conv.SubjectID)
			if err != nil {
				a.log.WithError(err).WithField("subject_id", conv.SubjectID).
					Warn("knowledge graph lookup failed, proceeding without graph context")
				graphDegraded = true
				return nil
			}
			for _, r := range related {
				text := fmt.Sprintf("%s %s %s", conv.SubjectID, r.Relation, r.Entity)
				graphFrags = append(graphFrags, NewFragment(SourceGraph, text, r.Weight))
			}
			return nil
		})
	}

	// Goroutines swallow their own errors, so Wait cannot fail.
	_ = g.Wait()
	src.Memories = memFrags
	src.Graph = graphFrags

	alloc := Allocate(a.opts.TokenBudget, src)
	return &Payload{
		Fragments: alloc.Fragments,
		Tokens:    alloc.Tokens,
		Degraded:  memDegraded || graphDegraded || alloc.Degraded,
	}, nil
}

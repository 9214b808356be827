// Package service wires the chat pipeline together: context assembly,
// streaming session management, message persistence and the asynchronous
// extraction trigger.
package service

import (
	"github.com/sirupsen/logrus"

	"github.com/loopline/mentor/internal/config"
	"github.com/loopline/mentor/internal/contextwindow"
	"github.com/loopline/mentor/internal/extraction"
	"github.com/loopline/mentor/internal/llm"
	"github.com/loopline/mentor/internal/store"
)

// ExtractionQueue accepts extraction jobs off the critical path.
type ExtractionQueue interface {
	Enqueue(job extraction.Job) bool
}

// Service implements the chat pipeline operations.
type Service struct {
	store     store.Store
	llm       llm.LLMClient // nil when no credential is configured
	assembler *contextwindow.Assembler
	extractor ExtractionQueue // nil when extraction is disabled
	sessions  *sessionRegistry
	cfg       *config.Config
	log       *logrus.Logger
}

// New creates a service. llmClient and extractor may be nil; streaming and
// extraction are then disabled while reads and edits keep working.
func New(st store.Store, llmClient llm.LLMClient, assembler *contextwindow.Assembler, extractor ExtractionQueue, cfg *config.Config, log *logrus.Logger) *Service {
	if log == nil {
		log = logrus.New()
	}
	return &Service{
		store:     st,
		llm:       llmClient,
		assembler: assembler,
		extractor: extractor,
		sessions:  newSessionRegistry(),
		cfg:       cfg,
		log:       log,
	}
}

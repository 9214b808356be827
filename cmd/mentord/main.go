package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/loopline/mentor/internal/config"
	"github.com/loopline/mentor/internal/contextwindow"
	"github.com/loopline/mentor/internal/embedding"
	"github.com/loopline/mentor/internal/extraction"
	"github.com/loopline/mentor/internal/knowledge"
	"github.com/loopline/mentor/internal/llm"
	"github.com/loopline/mentor/internal/memory"
	"github.com/loopline/mentor/internal/service"
	"github.com/loopline/mentor/internal/store"
	"github.com/loopline/mentor/internal/summary"
	transport "github.com/loopline/mentor/internal/transport/http"
)

func main() {
	// .env is optional; the environment always wins.
	_ = godotenv.Load()
	cfg := config.Load()

	log := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	log.WithFields(logrus.Fields{
		"http_port": cfg.HTTPPort,
		"database":  cfg.DatabaseURL,
		"model":     cfg.LLMModel,
	}).Info("starting mentord")

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize store")
	}
	defer db.Close()

	// Upstream model client; nil when no credential is configured. Streaming
	// chat and memory extraction are then disabled, everything else runs.
	llmClient := llm.NewLLMClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMTimeout)
	if llmClient == nil {
		log.Warn("no LLM API credential configured, chat streaming and memory extraction are disabled")
	}

	embedder := embedding.NewOpenAIEmbedder(cfg.EmbedBaseURL, cfg.LLMAPIKey, cfg.EmbedModel, cfg.EmbedDims)

	searcher := memory.NewSearcher(db, cfg.MemoryHalfLife)
	linker := knowledge.NewLinker(db, cfg.GraphWeightFloor, cfg.GraphLimit)

	var assemblerEmbedder embedding.Embedder
	if embedder != nil {
		assemblerEmbedder = embedder
	}
	assembler := contextwindow.NewAssembler(db, searcher, linker, assemblerEmbedder, contextwindow.Options{
		TokenBudget:     cfg.ContextTokenBudget,
		RecentTurnCount: cfg.RecentTurnCount,
		MemoryLimit:     cfg.MemoryLimit,
	}, log)

	// Background extraction worker, only when the model is available.
	var extractor *extraction.Worker
	var queue service.ExtractionQueue
	if llmClient != nil {
		extractor = extraction.NewWorker(
			db,
			extraction.NewLLMExtractor(llmClient, cfg.LLMModel),
			summary.NewSummarizer(llmClient, db, cfg.LLMModel),
			assemblerEmbedder,
			cfg.ExtractionQueueSize,
			cfg.ExtractionWorkers,
			log,
		)
		queue = extractor
	}

	svc := service.New(db, llmClient, assembler, queue, cfg, log)

	e := transport.NewServer(svc)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("failed to start server")
		}
	}()
	log.WithField("port", cfg.HTTPPort).Info("mentord started")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down mentord")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("failed to shut down server gracefully")
	}
	if extractor != nil {
		extractor.Close()
	}

	log.Info("mentord stopped")
}

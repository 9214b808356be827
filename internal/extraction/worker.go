// Package extraction runs the asynchronous memory pipeline: every N messages
// a window of recent turns is mined into long-term memory items and the
// rolling conversation summary is refreshed. Everything here is off the chat
// critical path and failure-isolated from it.
package extraction

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/loopline/mentor/internal/domain"
	"github.com/loopline/mentor/internal/embedding"
	"github.com/loopline/mentor/internal/summary"
)

// Job carries a snapshot of the message window to process. Snapshotting at
// enqueue time keeps the worker independent of later edits or clears.
type Job struct {
	ConversationID string
	SubjectID      string
	Summary        string
	Messages       []domain.Message
}

// MemoryWriter persists extracted memory items.
type MemoryWriter interface {
	InsertMemoryItem(ctx context.Context, item *domain.MemoryItem) error
}

// Extractor derives candidate memory texts from a message window.
type Extractor interface {
	Extract(ctx context.Context, msgs []domain.Message) ([]string, error)
}

// Worker consumes extraction jobs from a bounded queue.
type Worker struct {
	jobs       chan Job
	store      MemoryWriter
	extractor  Extractor
	summarizer *summary.Summarizer // may be nil
	embedder   embedding.Embedder  // may be nil
	timeout    time.Duration
	log        *logrus.Logger

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewWorker creates a worker pool. Start must be called before Enqueue.
func NewWorker(store MemoryWriter, extractor Extractor, summarizer *summary.Summarizer, embedder embedding.Embedder, queueSize, workers int, log *logrus.Logger) *Worker {
	if queueSize <= 0 {
		queueSize = 64
	}
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = logrus.New()
	}
	w := &Worker{
		jobs:       make(chan Job, queueSize),
		store:      store,
		extractor:  extractor,
		summarizer: summarizer,
		embedder:   embedder,
		timeout:    60 * time.Second,
		log:        log,
	}
	w.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go w.run()
	}
	return w
}

// Enqueue submits a job without blocking. Returns false when the queue is
// saturated; the window is simply skipped, the next boundary will cover new
// turns.
func (w *Worker) Enqueue(job Job) bool {
	select {
	case w.jobs <- job:
		return true
	default:
		w.log.WithField("conversation_id", job.ConversationID).
			Warn("extraction queue full, skipping window")
		return false
	}
}

// Close stops accepting jobs and waits for in-flight ones to finish.
func (w *Worker) Close() {
	w.closeOnce.Do(func() {
		close(w.jobs)
	})
	w.wg.Wait()
}

func (w *Worker) run() {
	defer w.wg.Done()
	for job := range w.jobs {
		w.process(job)
	}
}

// process handles one window. A panic or error in extraction must never
// propagate beyond the job that caused it.
func (w *Worker) process(job Job) {
	jobID := "ext_" + uuid.New().String()[:8]
	log := w.log.WithFields(logrus.Fields{
		"job_id":          jobID,
		"conversation_id": job.ConversationID,
	})

	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("extraction job panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	texts, err := w.extractor.Extract(ctx, job.Messages)
	if err != nil {
		log.WithError(err).Warn("memory extraction failed, skipping window")
	} else {
		stored := 0
		for _, text := range texts {
			item := &domain.MemoryItem{
				MemoryID:       ulid.Make().String(),
				SubjectID:      job.SubjectID,
				ConversationID: job.ConversationID,
				Text:           text,
				CreatedAt:      time.Now().UTC(),
			}
			if w.embedder != nil {
				vec, err := w.embedder.Embed(ctx, text)
				if err != nil {
					log.WithError(err).Warn("failed to embed memory item, storing without embedding")
				} else {
					item.Embedding = vec
				}
			}
			if err := w.store.InsertMemoryItem(ctx, item); err != nil {
				log.WithError(err).Warn("failed to store memory item")
				continue
			}
			stored++
		}
		log.WithField("memories", stored).Debug("extraction window processed")
	}

	if w.summarizer != nil {
		if err := w.summarizer.Refresh(ctx, job.ConversationID, job.Summary, job.Messages); err != nil {
			log.WithError(err).Warn("summary refresh failed")
		}
	}
}

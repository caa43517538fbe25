package queue

import (
	"context"

	"go.uber.org/zap"

	"github.com/hyperjump/sakusei/internal/config"
)

// Queue names.
const (
	QueueIngestion  = "ingestion"
	QueueEmbedding  = "embedding"
	QueueGeneration = "generation"
)

// Runtime owns the three pipeline queues. It is constructed explicitly at
// startup and handed to whoever schedules jobs; there are no package-level
// queue singletons.
type Runtime struct {
	Ingestion  *Queue
	Embedding  *Queue
	Generation *Queue
}

// Handlers bundles the job handlers wired into the runtime.
// GenerationExhausted runs when a generation job has used its whole retry
// budget, so the owning report can settle the section with an error.
type Handlers struct {
	Ingestion           Handler
	Embedding           Handler
	Generation          Handler
	GenerationExhausted func(job *Job, err error)
}

// NewRuntime builds the three queues from config. Generation yields to the
// two bulk queues so long-running draft jobs do not starve document intake.
func NewRuntime(cfg *config.QueuesConfig, handlers Handlers, logger *zap.Logger) *Runtime {
	ingestion := New(QueueIngestion, policyFromConfig(cfg.Ingestion), handlers.Ingestion, WithLogger(logger))
	embedding := New(QueueEmbedding, policyFromConfig(cfg.Embedding), handlers.Embedding, WithLogger(logger))
	generation := New(QueueGeneration, policyFromConfig(cfg.Generation), handlers.Generation,
		WithLogger(logger), WithYieldTo(ingestion, embedding),
		WithOnExhausted(handlers.GenerationExhausted))
	return &Runtime{
		Ingestion:  ingestion,
		Embedding:  embedding,
		Generation: generation,
	}
}

func policyFromConfig(qc config.QueueConfig) Policy {
	return Policy{
		Attempts:        qc.Attempts,
		Backoff:         qc.Backoff,
		Workers:         qc.Workers,
		KeepCompleted:   qc.KeepCompleted,
		KeepFailed:      qc.KeepFailed,
		CompletedMaxAge: qc.CompletedMaxAge,
	}
}

// Start launches all queue workers.
func (r *Runtime) Start(ctx context.Context) {
	r.Ingestion.Start(ctx)
	r.Embedding.Start(ctx)
	r.Generation.Start(ctx)
}

// Stop drains all queues.
func (r *Runtime) Stop() {
	r.Ingestion.Stop()
	r.Embedding.Stop()
	r.Generation.Stop()
}

// Stats returns snapshots for all queues.
func (r *Runtime) Stats() []Stats {
	return []Stats{
		r.Ingestion.Stats(),
		r.Embedding.Stats(),
		r.Generation.Stats(),
	}
}

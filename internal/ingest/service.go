// Package ingest turns uploaded documents into stored, indexed, retrievable
// chunks: persist the document, chunk it, feed the keyword index, and
// schedule embedding work.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/sakusei/internal/chunker"
	"github.com/hyperjump/sakusei/internal/models"
	"github.com/hyperjump/sakusei/internal/queue"
	"github.com/hyperjump/sakusei/internal/retrieval"
	"github.com/hyperjump/sakusei/internal/storage"
)

// EmbeddingScheduler dispatches one chunk embedding job.
type EmbeddingScheduler interface {
	ScheduleEmbedding(ctx context.Context, job *models.EmbeddingJob) error
}

// QueueEmbeddingScheduler enqueues embedding jobs keyed by chunk ID, so a
// chunk already waiting for embedding is not embedded twice.
type QueueEmbeddingScheduler struct {
	Queue *queue.Queue
}

// ScheduleEmbedding enqueues one embedding job.
func (s *QueueEmbeddingScheduler) ScheduleEmbedding(ctx context.Context, job *models.EmbeddingJob) error {
	_, err := s.Queue.Enqueue(job.ChunkID, job)
	return err
}

// Service is the document ingestion pipeline.
type Service struct {
	storage   storage.Storage
	chunker   *chunker.Chunker
	keyword   retrieval.KeywordIndex
	vector    retrieval.VectorIndex
	embedder  retrieval.Embedder
	scheduler EmbeddingScheduler
	logger    *zap.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets a logger for ingestion progress.
func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithKeywordIndex sets the keyword index chunks are mirrored into.
func WithKeywordIndex(idx retrieval.KeywordIndex) ServiceOption {
	return func(s *Service) { s.keyword = idx }
}

// NewService creates an ingestion service.
func NewService(st storage.Storage, ch *chunker.Chunker, embedder retrieval.Embedder, vector retrieval.VectorIndex, scheduler EmbeddingScheduler, opts ...ServiceOption) *Service {
	s := &Service{
		storage:   st,
		chunker:   ch,
		embedder:  embedder,
		vector:    vector,
		scheduler: scheduler,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IngestDocument stores and chunks one document, indexes the chunks for
// keyword search, and schedules their embedding. Re-ingesting an existing
// document ID replaces its chunks wholesale; chunks are immutable otherwise.
func (s *Service) IngestDocument(ctx context.Context, input *models.DocumentInput) (*models.Document, error) {
	if input.Content == "" {
		return nil, fmt.Errorf("document content is empty")
	}
	id := input.ID
	if id == "" {
		id = uuid.New().String()
	}

	if err := s.removeExisting(ctx, id); err != nil {
		return nil, err
	}

	doc := &models.Document{
		ID:            id,
		DocumentSetID: input.DocumentSetID,
		Filename:      input.Filename,
		Content:       input.Content,
		Type:          chunker.DetectType(input.Content),
		CreatedAt:     time.Now(),
	}
	if err := s.storage.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	chunks := s.chunker.ChunkDocument(input.Content, id, &chunker.Options{Type: doc.Type})
	for _, ch := range chunks {
		ch.DocumentSetID = input.DocumentSetID
	}
	if err := s.storage.BatchCreateChunks(ctx, chunks); err != nil {
		return nil, fmt.Errorf("failed to store chunks: %w", err)
	}

	if s.keyword != nil {
		for _, ch := range chunks {
			if err := s.keyword.Index(ctx, ch); err != nil {
				return nil, fmt.Errorf("failed to index chunk %s: %w", ch.ID, err)
			}
		}
	}

	for _, ch := range chunks {
		job := &models.EmbeddingJob{ChunkID: ch.ID, Content: ch.Content}
		if err := s.scheduler.ScheduleEmbedding(ctx, job); err != nil {
			return nil, fmt.Errorf("failed to schedule embedding for chunk %s: %w", ch.ID, err)
		}
	}

	if s.logger != nil {
		s.logger.Info("document ingested",
			zap.String("document_id", id),
			zap.String("filename", input.Filename),
			zap.String("type", string(doc.Type)),
			zap.Int("chunks", len(chunks)))
	}
	return doc, nil
}

// removeExisting clears a previous ingestion of the same document ID from the
// store and both indexes.
func (s *Service) removeExisting(ctx context.Context, docID string) error {
	old, err := s.storage.GetChunksByDocumentID(ctx, docID)
	if err != nil {
		return fmt.Errorf("failed to check for existing chunks: %w", err)
	}
	if len(old) == 0 {
		return nil
	}
	ids := make([]string, len(old))
	for i, ch := range old {
		ids[i] = ch.ID
		if s.keyword != nil {
			if err := s.keyword.Delete(ctx, ch.ID); err != nil && s.logger != nil {
				s.logger.Warn("failed to remove chunk from keyword index", zap.String("chunk_id", ch.ID), zap.Error(err))
			}
		}
	}
	if err := s.vector.Remove(ctx, ids); err != nil && s.logger != nil {
		s.logger.Warn("failed to remove chunks from vector index", zap.String("document_id", docID), zap.Error(err))
	}
	if err := s.storage.DeleteChunksByDocumentID(ctx, docID); err != nil {
		return fmt.Errorf("failed to delete superseded chunks: %w", err)
	}
	if err := s.storage.DeleteDocument(ctx, docID); err != nil && s.logger != nil {
		s.logger.Warn("failed to delete superseded document", zap.String("document_id", docID), zap.Error(err))
	}
	return nil
}

// EmbedChunk embeds one chunk and adds its vector to the index. Retryable at
// the queue layer: embedding APIs fail transiently far more often than not.
func (s *Service) EmbedChunk(ctx context.Context, job *models.EmbeddingJob) error {
	chunk, err := s.storage.GetChunk(ctx, job.ChunkID)
	if err != nil {
		// Chunk superseded by a re-ingestion between scheduling and dequeue.
		if s.logger != nil {
			s.logger.Debug("skipping embedding for missing chunk", zap.String("chunk_id", job.ChunkID))
		}
		return nil
	}
	vector, err := s.embedder.Embed(ctx, job.Content)
	if err != nil {
		return fmt.Errorf("failed to embed chunk %s: %w", job.ChunkID, err)
	}
	if err := s.vector.Add(ctx, []string{chunk.ID}, []string{chunk.DocumentSetID}, [][]float32{vector}); err != nil {
		return fmt.Errorf("failed to add vector for chunk %s: %w", job.ChunkID, err)
	}
	return nil
}

// RemoveDocument deletes a document and all traces of its chunks.
func (s *Service) RemoveDocument(ctx context.Context, docID string) error {
	if err := s.removeExisting(ctx, docID); err != nil {
		return err
	}
	return s.storage.DeleteDocument(ctx, docID)
}

// IngestionHandler returns the queue handler for ingestion jobs. The job's
// storage path is read here, at processing time, so a retried job picks up
// the file's final contents.
func (s *Service) IngestionHandler() queue.Handler {
	return func(ctx context.Context, payload []byte) error {
		var job models.IngestionJob
		if err := json.Unmarshal(payload, &job); err != nil {
			return fmt.Errorf("malformed ingestion job: %w", err)
		}
		content, err := os.ReadFile(job.StoragePath)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", job.StoragePath, err)
		}
		_, err = s.IngestDocument(ctx, &models.DocumentInput{
			ID:            job.DocumentID,
			DocumentSetID: job.DocumentSetID,
			Filename:      job.Filename,
			Content:       string(content),
		})
		return err
	}
}

// EmbeddingHandler returns the queue handler for embedding jobs.
func (s *Service) EmbeddingHandler() queue.Handler {
	return func(ctx context.Context, payload []byte) error {
		var job models.EmbeddingJob
		if err := json.Unmarshal(payload, &job); err != nil {
			return fmt.Errorf("malformed embedding job: %w", err)
		}
		return s.EmbedChunk(ctx, &job)
	}
}

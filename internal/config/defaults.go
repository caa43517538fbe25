package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8090
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/sakusei/data/db/sakusei.db"
	}
	if cfg.Storage.VectorIndexPath == "" {
		cfg.Storage.VectorIndexPath = "/usr/local/var/sakusei/data/indices/vectors"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "/usr/local/var/sakusei/data/indices/bleve"
	}
	if cfg.Retrieval.Dimensions == 0 {
		cfg.Retrieval.Dimensions = 384
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 8
	}
	if cfg.Retrieval.ProbeTimeout == 0 {
		cfg.Retrieval.ProbeTimeout = 5 * time.Second
	}
	if cfg.Retrieval.EmbeddingModel == "" {
		cfg.Retrieval.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.Generation.Model == "" {
		cfg.Generation.Model = "gpt-4o-mini"
	}
	applyQueueDefaults(&cfg.Queues.Ingestion, 3, 4)
	applyQueueDefaults(&cfg.Queues.Embedding, 5, 4)
	// Report generation gets fewer workers so bulk ingestion is not starved
	// by expensive LLM traffic, and only 2 attempts per job.
	applyQueueDefaults(&cfg.Queues.Generation, 2, 2)
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".md"}
	}
}

func applyQueueDefaults(q *QueueConfig, attempts, workers int) {
	if q.Attempts == 0 {
		q.Attempts = attempts
	}
	if q.Backoff == 0 {
		q.Backoff = time.Second
	}
	if q.Workers == 0 {
		q.Workers = workers
	}
	if q.KeepCompleted == 0 {
		q.KeepCompleted = 100
	}
	if q.KeepFailed == 0 {
		q.KeepFailed = 500
	}
	if q.CompletedMaxAge == 0 {
		q.CompletedMaxAge = 24 * time.Hour
	}
}

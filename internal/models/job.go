package models

// IngestionJob is the payload for the document ingestion queue.
type IngestionJob struct {
	DocumentID    string `json:"document_id"`
	DocumentSetID string `json:"document_set_id"`
	Filename      string `json:"filename"`
	StoragePath   string `json:"storage_path,omitempty"`
}

// EmbeddingJob is the payload for the chunk embedding queue.
type EmbeddingJob struct {
	ChunkID string `json:"chunk_id"`
	Content string `json:"content"`
}

// GenerationJob is the payload for the per-section report generation queue.
type GenerationJob struct {
	ReportID       string   `json:"report_id"`
	SectionIndex   int      `json:"section_index"`
	Query          string   `json:"query"`
	DocumentSetIDs []string `json:"document_set_ids,omitempty"`
}

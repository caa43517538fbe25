package ingest

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/sakusei/internal/chunker"
	"github.com/hyperjump/sakusei/internal/models"
	"github.com/hyperjump/sakusei/internal/retrieval"
	"github.com/hyperjump/sakusei/internal/storage"
)

// inlineEmbedding embeds synchronously through the service, standing in for
// the embedding queue.
type inlineEmbedding struct {
	service *Service
	jobs    []*models.EmbeddingJob
}

func (s *inlineEmbedding) ScheduleEmbedding(ctx context.Context, job *models.EmbeddingJob) error {
	s.jobs = append(s.jobs, job)
	return s.service.EmbedChunk(ctx, job)
}

type testEnv struct {
	service *Service
	storage storage.Storage
	vector  *retrieval.MemoryIndex
	keyword *retrieval.BleveIndex
	sched   *inlineEmbedding
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })

	vector, err := retrieval.NewMemoryIndex(64)
	if err != nil {
		t.Fatal(err)
	}
	keyword, err := retrieval.NewBleveIndex(filepath.Join(t.TempDir(), "keyword.bleve"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = keyword.Close() })

	sched := &inlineEmbedding{}
	svc := NewService(st, chunker.NewChunker(), retrieval.NewMockEmbedder(64), vector, sched,
		WithKeywordIndex(keyword))
	sched.service = svc
	return &testEnv{service: svc, storage: st, vector: vector, keyword: keyword, sched: sched}
}

const specText = `PART 1 GENERAL

1.1 Summary
Concrete works for the ground slab.

1.2 References
AS 3600 applies throughout.
`

func TestIngestDocument_StoresChunksAndIndexes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	doc, err := env.service.IngestDocument(ctx, &models.DocumentInput{
		ID:            "doc-1",
		DocumentSetID: "set-1",
		Filename:      "spec.txt",
		Content:       specText,
	})
	if err != nil {
		t.Fatal(err)
	}
	if doc.Type != models.DocTypeSpecifications {
		t.Errorf("detected type = %s, want specifications", doc.Type)
	}

	chunks, err := env.storage.GetChunksByDocumentID(ctx, "doc-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) == 0 {
		t.Fatal("no chunks stored")
	}
	for _, ch := range chunks {
		if ch.DocumentSetID != "set-1" {
			t.Errorf("chunk %s document set = %q, want set-1", ch.ID, ch.DocumentSetID)
		}
	}
	if env.vector.Size() != len(chunks) {
		t.Errorf("vector index size = %d, want %d", env.vector.Size(), len(chunks))
	}
	if len(env.sched.jobs) != len(chunks) {
		t.Errorf("embedding jobs = %d, want one per chunk", len(env.sched.jobs))
	}

	hits, err := env.keyword.Search(ctx, "concrete slab", 10, []string{"set-1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) == 0 {
		t.Error("keyword index returned no hits for ingested content")
	}
}

func TestIngestDocument_ReingestReplacesChunks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.service.IngestDocument(ctx, &models.DocumentInput{
		ID: "doc-1", DocumentSetID: "set-1", Content: specText,
	}); err != nil {
		t.Fatal(err)
	}
	first, _ := env.storage.GetChunksByDocumentID(ctx, "doc-1")

	if _, err := env.service.IngestDocument(ctx, &models.DocumentInput{
		ID: "doc-1", DocumentSetID: "set-1", Content: "A short letter.\n\nDear team, works proceed as planned.",
	}); err != nil {
		t.Fatal(err)
	}
	second, err := env.storage.GetChunksByDocumentID(ctx, "doc-1")
	if err != nil {
		t.Fatal(err)
	}
	for _, old := range first {
		for _, cur := range second {
			if old.ID == cur.ID {
				t.Errorf("chunk %s survived re-ingestion", old.ID)
			}
		}
	}
	if env.vector.Size() != len(second) {
		t.Errorf("vector index size = %d after re-ingest, want %d", env.vector.Size(), len(second))
	}
}

func TestIngestDocument_EmptyContentRejected(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.service.IngestDocument(context.Background(), &models.DocumentInput{ID: "doc-1"}); err == nil {
		t.Error("expected error for empty content")
	}
}

func TestEmbedChunk_MissingChunkIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	err := env.service.EmbedChunk(context.Background(), &models.EmbeddingJob{ChunkID: "ghost", Content: "text"})
	if err != nil {
		t.Errorf("embedding a superseded chunk should be a no-op, got %v", err)
	}
}

func TestRemoveDocument(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.service.IngestDocument(ctx, &models.DocumentInput{
		ID: "doc-1", DocumentSetID: "set-1", Content: specText,
	}); err != nil {
		t.Fatal(err)
	}
	if err := env.service.RemoveDocument(ctx, "doc-1"); err != nil {
		t.Fatal(err)
	}
	chunks, err := env.storage.GetChunksByDocumentID(ctx, "doc-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 0 {
		t.Errorf("%d chunks remain after removal", len(chunks))
	}
	if env.vector.Size() != 0 {
		t.Errorf("vector index size = %d after removal, want 0", env.vector.Size())
	}
}

func TestIngestDocument_CorrespondenceDetected(t *testing.T) {
	env := newTestEnv(t)
	content := "Dear Sir,\n\nFurther to your letter dated 12 March, we confirm receipt.\n\nYours faithfully,\nJ. Smith"
	doc, err := env.service.IngestDocument(context.Background(), &models.DocumentInput{
		ID: "doc-2", Content: content,
	})
	if err != nil {
		t.Fatal(err)
	}
	if doc.Type != models.DocTypeCorrespondence {
		t.Errorf("detected type = %s, want correspondence", doc.Type)
	}
	chunks, _ := env.storage.GetChunksByDocumentID(context.Background(), "doc-2")
	if len(chunks) != 1 {
		t.Errorf("correspondence chunks = %d, want a single chunk", len(chunks))
	}
	if !strings.Contains(chunks[0].Content, "12 March") {
		t.Error("correspondence chunk should carry the full letter")
	}
}

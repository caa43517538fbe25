package retrieval

import (
	"context"
	"testing"

	"github.com/hyperjump/sakusei/internal/models"
	"github.com/hyperjump/sakusei/internal/storage"
)

func seedChunks(t *testing.T, st storage.Storage, emb Embedder, vec VectorIndex, kw KeywordIndex) {
	t.Helper()
	ctx := context.Background()
	doc := &models.Document{ID: "d1", DocumentSetID: "set1", Content: "x", Type: models.DocTypeDefault}
	if err := st.CreateDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	chunks := []*models.Chunk{
		{ID: "c1", DocumentID: "d1", DocumentSetID: "set1", Content: "concrete pour methodology for slabs", Level: 1, HierarchyPath: "1", TokenCount: 8, ChunkIndex: 0},
		{ID: "c2", DocumentID: "d1", DocumentSetID: "set2", Content: "electrical containment routing", Level: 1, HierarchyPath: "2", TokenCount: 6, ChunkIndex: 1},
	}
	if err := st.BatchCreateChunks(ctx, chunks); err != nil {
		t.Fatal(err)
	}
	for _, ch := range chunks {
		e, err := emb.Embed(ctx, ch.Content)
		if err != nil {
			t.Fatal(err)
		}
		if err := vec.Add(ctx, []string{ch.ID}, []string{ch.DocumentSetID}, [][]float32{e}); err != nil {
			t.Fatal(err)
		}
		if kw != nil {
			if err := kw.Index(ctx, ch); err != nil {
				t.Fatal(err)
			}
		}
	}
}

func TestRetriever_ScopedRetrieve(t *testing.T) {
	ctx := context.Background()
	st, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	emb := NewMockEmbedder(8)
	vec, _ := NewMemoryIndex(8)
	seedChunks(t, st, emb, vec, nil)

	r := NewRetriever(emb, vec, st, 10)

	chunks, err := r.Retrieve(ctx, "concrete pour", []string{"set1"}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 1 || chunks[0].ID != "c1" {
		t.Errorf("scope should exclude set2: %+v", ids(chunks))
	}

	chunks, err = r.Retrieve(ctx, "concrete pour", nil, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 2 {
		t.Errorf("unscoped retrieval should see both chunks, got %v", ids(chunks))
	}
}

func TestRetriever_KeywordFallbackWhenEmbeddingDown(t *testing.T) {
	ctx := context.Background()
	st, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	emb := NewMockEmbedder(8)
	vec, _ := NewMemoryIndex(8)
	kw, err := NewBleveIndex(t.TempDir() + "/bleve")
	if err != nil {
		t.Fatal(err)
	}
	defer kw.Close()
	seedChunks(t, st, emb, vec, kw)

	emb.Fail = true
	r := NewRetriever(emb, vec, st, 10, WithKeywordFallback(kw))

	chunks, err := r.Retrieve(ctx, "concrete methodology", []string{"set1"}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 1 || chunks[0].ID != "c1" {
		t.Errorf("keyword fallback should find c1, got %v", ids(chunks))
	}
}

func TestRetriever_NoFallbackPropagatesError(t *testing.T) {
	ctx := context.Background()
	st, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	emb := NewMockEmbedder(8)
	emb.Fail = true
	vec, _ := NewMemoryIndex(8)

	r := NewRetriever(emb, vec, st, 10)
	if _, err := r.Retrieve(ctx, "anything", nil, 5); err == nil {
		t.Error("expected error when embedding fails and no fallback is wired")
	}
}

func TestRetriever_RerankerFallbackChain(t *testing.T) {
	ctx := context.Background()
	st, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	emb := NewMockEmbedder(8)
	vec, _ := NewMemoryIndex(8)
	seedChunks(t, st, emb, vec, nil)

	primary := &MockReranker{Fail: true}
	fallback := &MockReranker{}
	r := NewRetriever(emb, vec, st, 10, WithRerankers(primary, fallback))

	chunks, err := r.Retrieve(ctx, "concrete", nil, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 1 {
		t.Errorf("expected top-1 after rerank, got %d", len(chunks))
	}
	if primary.Calls != 1 || fallback.Calls != 1 {
		t.Errorf("expected primary then fallback reranker, calls: %d/%d", primary.Calls, fallback.Calls)
	}
}

func TestMemoryIndex_SaveLoad(t *testing.T) {
	ctx := context.Background()
	vec, _ := NewMemoryIndex(4)
	if err := vec.Add(ctx, []string{"a", "b"}, []string{"s1", "s2"}, [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}); err != nil {
		t.Fatal(err)
	}
	path := t.TempDir() + "/vectors.idx"
	if err := vec.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, _ := NewMemoryIndex(4)
	if err := loaded.Load(path); err != nil {
		t.Fatal(err)
	}
	if loaded.Size() != 2 {
		t.Fatalf("loaded size = %d", loaded.Size())
	}
	res, err := loaded.Search(ctx, []float32{1, 0, 0, 0}, 1, []string{"s1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 1 || res[0].ID != "a" {
		t.Errorf("scoped search after load: %+v", res)
	}
}

func TestMemoryIndex_Remove(t *testing.T) {
	ctx := context.Background()
	vec, _ := NewMemoryIndex(2)
	_ = vec.Add(ctx, []string{"a", "b"}, []string{"s", "s"}, [][]float32{{1, 0}, {0, 1}})
	if err := vec.Remove(ctx, []string{"a"}); err != nil {
		t.Fatal(err)
	}
	if vec.Size() != 1 {
		t.Errorf("size after remove = %d", vec.Size())
	}
	res, _ := vec.Search(ctx, []float32{1, 0}, 5, nil)
	for _, r := range res {
		if r.ID == "a" {
			t.Error("removed vector still returned")
		}
	}
}

func ids(chunks []*models.Chunk) []string {
	out := make([]string, len(chunks))
	for i, ch := range chunks {
		out[i] = ch.ID
	}
	return out
}

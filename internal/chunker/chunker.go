// Package chunker splits extracted document text into hierarchy-aware
// retrievable chunks.
package chunker

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/hyperjump/sakusei/internal/models"
	"github.com/hyperjump/sakusei/pkg/utils"
)

// Options configures a single chunking pass.
type Options struct {
	// Type overrides document-type detection when set.
	Type models.DocumentType
}

// Chunker splits documents into chunks according to per-type size bands.
type Chunker struct {
	bands map[models.DocumentType]SizeBand
}

// NewChunker creates a chunker with the default size bands.
func NewChunker() *Chunker {
	return &Chunker{bands: bands}
}

// ChunkDocument splits content into chunks for documentID. Empty input yields
// an empty slice. Concatenating chunk contents in emission order reconstructs
// all non-correspondence input modulo boundary whitespace.
func (c *Chunker) ChunkDocument(content, documentID string, opts *Options) []*models.Chunk {
	if strings.TrimSpace(content) == "" {
		return []*models.Chunk{}
	}
	docType := models.DocumentType("")
	if opts != nil {
		docType = opts.Type
	}
	if docType == "" {
		docType = DetectType(content)
	}

	switch docType {
	case models.DocTypeCorrespondence:
		// One chunk regardless of length: splitting a letter or email thread
		// destroys the conversational context retrieval depends on.
		chunk := c.newChunk(documentID, strings.TrimSpace(content), 0)
		chunk.Level = 0
		chunk.HierarchyPath = "1"
		return []*models.Chunk{chunk}
	case models.DocTypeSpecifications:
		return c.chunkSpecifications(content, documentID)
	default:
		band := c.bandFor(docType)
		return c.chunkSemantic(content, documentID, band, 0)
	}
}

func (c *Chunker) bandFor(docType models.DocumentType) SizeBand {
	if b, ok := c.bands[docType]; ok {
		return b
	}
	return c.bands[models.DocTypeDefault]
}

// chunkSemantic accumulates paragraphs into chunks until adding the next
// paragraph would exceed the band's max tokens. A single paragraph is never
// split mid-way, even when it alone exceeds the bound.
func (c *Chunker) chunkSemantic(content, documentID string, band SizeBand, startIndex int) []*models.Chunk {
	parts := splitSemantic(content, band.Max)
	out := make([]*models.Chunk, 0, len(parts))
	for i, part := range parts {
		chunk := c.newChunk(documentID, part, startIndex+i)
		chunk.Level = 1
		chunk.HierarchyPath = fmt.Sprintf("%d", startIndex+i+1)
		out = append(out, chunk)
	}
	return out
}

type clause struct {
	number  string
	title   string
	heading string
	body    []string
}

// chunkSpecifications extracts numbered clauses and emits one chunk per
// clause, splitting oversized clauses into sub-chunks under a synthetic
// parent that holds only the clause heading.
func (c *Chunker) chunkSpecifications(content, documentID string) []*models.Chunk {
	band := c.bandFor(models.DocTypeSpecifications)
	preamble, clauses := parseClauses(content)

	out := make([]*models.Chunk, 0, len(clauses))
	if strings.TrimSpace(preamble) != "" {
		out = append(out, c.chunkSemantic(preamble, documentID, band, 0)...)
	}

	for _, cl := range clauses {
		level := strings.Count(cl.number, ".") + 1
		body := strings.TrimSpace(strings.Join(cl.body, "\n"))
		full := cl.heading
		if body != "" {
			full = cl.heading + "\n" + body
		}
		tokens := models.EstimateTokens(full)

		if tokens <= band.Max {
			chunk := c.newChunk(documentID, full, len(out))
			chunk.Level = level
			chunk.HierarchyPath = cl.number
			chunk.ClauseNumber = cl.number
			chunk.SectionTitle = cl.title
			out = append(out, chunk)
			continue
		}

		// Oversized clause: synthetic parent holds the heading only so the
		// clause stays navigable while its body lives in the children.
		parent := c.newChunk(documentID, cl.heading, len(out))
		parent.Level = level
		parent.HierarchyPath = cl.number
		parent.ClauseNumber = cl.number
		parent.SectionTitle = cl.title
		out = append(out, parent)

		for i, part := range splitSemantic(body, band.Max) {
			child := c.newChunk(documentID, part, len(out))
			child.Level = level + 1
			child.HierarchyPath = fmt.Sprintf("%s.%d", cl.number, i+1)
			child.ClauseNumber = cl.number
			child.SectionTitle = cl.title
			child.ParentID = parent.ID
			out = append(out, child)
		}
	}
	return out
}

// parseClauses splits content into the text before the first clause heading
// and a flat list of clauses ("leading decimal-dotted number + title" lines).
func parseClauses(content string) (preamble string, clauses []clause) {
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	var pre []string
	for _, line := range lines {
		m := clauseRe.FindStringSubmatch(line)
		if m != nil {
			clauses = append(clauses, clause{
				number:  m[1],
				title:   strings.TrimSpace(m[2]),
				heading: strings.TrimSpace(line),
			})
			continue
		}
		if len(clauses) == 0 {
			pre = append(pre, line)
		} else {
			clauses[len(clauses)-1].body = append(clauses[len(clauses)-1].body, line)
		}
	}
	return strings.Join(pre, "\n"), clauses
}

// splitSemantic groups paragraphs into parts of at most maxTokens estimated
// tokens each, never splitting a paragraph.
func splitSemantic(text string, maxTokens int) []string {
	paragraphs := utils.SplitParagraphs(text)
	if len(paragraphs) == 0 {
		return nil
	}
	var parts []string
	var current []string
	currentTokens := 0
	for _, p := range paragraphs {
		pTokens := models.EstimateTokens(p)
		if len(current) > 0 && currentTokens+pTokens > maxTokens {
			parts = append(parts, strings.Join(current, "\n\n"))
			current = current[:0]
			currentTokens = 0
		}
		current = append(current, p)
		currentTokens += pTokens
	}
	if len(current) > 0 {
		parts = append(parts, strings.Join(current, "\n\n"))
	}
	return parts
}

func (c *Chunker) newChunk(documentID, content string, index int) *models.Chunk {
	return &models.Chunk{
		ID:         fmt.Sprintf("%s_%s", documentID, uuid.New().String()[:8]),
		DocumentID: documentID,
		Content:    content,
		ChunkIndex: index,
		TokenCount: models.EstimateTokens(content),
	}
}

// Package storage provides the SQLite implementation of the Storage interface.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/sakusei/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		document_set_id TEXT,
		filename TEXT,
		content TEXT NOT NULL,
		type TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_documents_set ON documents(document_set_id);

	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		document_set_id TEXT,
		content TEXT NOT NULL,
		level INTEGER NOT NULL,
		hierarchy_path TEXT,
		section_title TEXT,
		clause_number TEXT,
		parent_id TEXT,
		token_count INTEGER NOT NULL,
		chunk_index INTEGER NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_document_index ON chunks(document_id, chunk_index);

	CREATE TABLE IF NOT EXISTS toc_memories (
		id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL,
		report_type TEXT NOT NULL,
		discipline TEXT NOT NULL DEFAULT '',
		sections TEXT NOT NULL,
		times_used INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(organization_id, report_type, discipline)
	);

	CREATE TABLE IF NOT EXISTS reports (
		id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL,
		project_id TEXT NOT NULL,
		report_type TEXT,
		discipline TEXT,
		trade TEXT,
		context TEXT,
		transmittal TEXT,
		document_set_ids TEXT,
		toc TEXT,
		sections TEXT,
		status TEXT NOT NULL,
		error TEXT,
		approved INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_reports_project ON reports(project_id);

	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		data TEXT NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateDocument inserts a document.
func (s *SQLiteStorage) CreateDocument(ctx context.Context, doc *models.Document) error {
	doc.CreatedAt = time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, document_set_id, filename, content, type, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.DocumentSetID, doc.Filename, doc.Content, string(doc.Type), doc.CreatedAt,
	)
	return err
}

// GetDocument returns a document by ID.
func (s *SQLiteStorage) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	var docType string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, document_set_id, filename, content, type, created_at
		 FROM documents WHERE id = ?`, id,
	).Scan(&doc.ID, &doc.DocumentSetID, &doc.Filename, &doc.Content, &docType, &doc.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("document not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	doc.Type = models.DocumentType(docType)
	return &doc, nil
}

// DeleteDocument deletes a document and its chunks.
func (s *SQLiteStorage) DeleteDocument(ctx context.Context, id string) error {
	if err := s.DeleteChunksByDocumentID(ctx, id); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	return err
}

// BatchCreateChunks inserts chunks in a single transaction.
func (s *SQLiteStorage) BatchCreateChunks(ctx context.Context, chunks []*models.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (id, document_id, document_set_id, content, level, hierarchy_path,
		 section_title, clause_number, parent_id, token_count, chunk_index, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, ch := range chunks {
		ch.CreatedAt = now
		if _, err := stmt.ExecContext(ctx,
			ch.ID, ch.DocumentID, ch.DocumentSetID, ch.Content, ch.Level, ch.HierarchyPath,
			ch.SectionTitle, ch.ClauseNumber, ch.ParentID, ch.TokenCount, ch.ChunkIndex, ch.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", ch.ID, err)
		}
	}
	return tx.Commit()
}

// GetChunk returns a chunk by ID.
func (s *SQLiteStorage) GetChunk(ctx context.Context, id string) (*models.Chunk, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, document_id, document_set_id, content, level, hierarchy_path,
		 section_title, clause_number, parent_id, token_count, chunk_index, created_at
		 FROM chunks WHERE id = ?`, id)
	ch, err := scanChunk(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("chunk not found: %s", id)
	}
	return ch, err
}

// GetChunksByDocumentID returns all chunks of a document in emission order.
func (s *SQLiteStorage) GetChunksByDocumentID(ctx context.Context, docID string) ([]*models.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, document_set_id, content, level, hierarchy_path,
		 section_title, clause_number, parent_id, token_count, chunk_index, created_at
		 FROM chunks WHERE document_id = ? ORDER BY chunk_index`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var chunks []*models.Chunk
	for rows.Next() {
		ch, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, ch)
	}
	return chunks, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanChunk(row rowScanner) (*models.Chunk, error) {
	var ch models.Chunk
	err := row.Scan(&ch.ID, &ch.DocumentID, &ch.DocumentSetID, &ch.Content, &ch.Level,
		&ch.HierarchyPath, &ch.SectionTitle, &ch.ClauseNumber, &ch.ParentID,
		&ch.TokenCount, &ch.ChunkIndex, &ch.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// DeleteChunksByDocumentID deletes all chunks of a document.
func (s *SQLiteStorage) DeleteChunksByDocumentID(ctx context.Context, docID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, docID)
	return err
}

// GetTocMemory returns the memory record for the key, or (nil, nil) when absent.
func (s *SQLiteStorage) GetTocMemory(ctx context.Context, organizationID, reportType, discipline string) (*models.TocMemory, error) {
	var mem models.TocMemory
	var sectionsJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, organization_id, report_type, discipline, sections, times_used, created_at, updated_at
		 FROM toc_memories WHERE organization_id = ? AND report_type = ? AND discipline = ?`,
		organizationID, reportType, discipline,
	).Scan(&mem.ID, &mem.OrganizationID, &mem.ReportType, &mem.Discipline,
		&sectionsJSON, &mem.TimesUsed, &mem.CreatedAt, &mem.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(sectionsJSON), &mem.Sections); err != nil {
		return nil, fmt.Errorf("failed to unmarshal memory sections: %w", err)
	}
	return &mem, nil
}

// UpsertTocMemory inserts or replaces the memory record for its key.
func (s *SQLiteStorage) UpsertTocMemory(ctx context.Context, mem *models.TocMemory) error {
	sectionsJSON, err := json.Marshal(mem.Sections)
	if err != nil {
		return fmt.Errorf("failed to marshal memory sections: %w", err)
	}
	mem.UpdatedAt = time.Now()
	if mem.CreatedAt.IsZero() {
		mem.CreatedAt = mem.UpdatedAt
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO toc_memories (id, organization_id, report_type, discipline, sections, times_used, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(organization_id, report_type, discipline) DO UPDATE SET
		   sections = excluded.sections,
		   times_used = excluded.times_used,
		   updated_at = excluded.updated_at`,
		mem.ID, mem.OrganizationID, mem.ReportType, mem.Discipline,
		string(sectionsJSON), mem.TimesUsed, mem.CreatedAt, mem.UpdatedAt,
	)
	return err
}

// CreateReport inserts a report state.
func (s *SQLiteStorage) CreateReport(ctx context.Context, report *models.Report) error {
	now := time.Now()
	report.CreatedAt = now
	report.UpdatedAt = now
	ctxJSON, transJSON, setsJSON, tocJSON, sectionsJSON, err := marshalReportFields(report)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO reports (id, organization_id, project_id, report_type, discipline, trade,
		 context, transmittal, document_set_ids, toc, sections, status, error, approved, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.ID, report.OrganizationID, report.ProjectID, report.ReportType,
		report.Discipline, report.Trade, ctxJSON, transJSON, setsJSON, tocJSON, sectionsJSON,
		string(report.Status), report.Error, report.Approved, report.CreatedAt, report.UpdatedAt,
	)
	return err
}

// GetReport returns a report by ID.
func (s *SQLiteStorage) GetReport(ctx context.Context, id string) (*models.Report, error) {
	var r models.Report
	var status string
	var ctxJSON, transJSON, setsJSON, tocJSON, sectionsJSON sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, organization_id, project_id, report_type, discipline, trade,
		 context, transmittal, document_set_ids, toc, sections, status, error, approved, created_at, updated_at
		 FROM reports WHERE id = ?`, id,
	).Scan(&r.ID, &r.OrganizationID, &r.ProjectID, &r.ReportType, &r.Discipline, &r.Trade,
		&ctxJSON, &transJSON, &setsJSON, &tocJSON, &sectionsJSON, &status, &r.Error,
		&r.Approved, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("report not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	r.Status = models.ReportStatus(status)
	if err := unmarshalReportFields(&r, ctxJSON, transJSON, setsJSON, tocJSON, sectionsJSON); err != nil {
		return nil, err
	}
	return &r, nil
}

// UpdateReport persists the mutable pipeline fields of a report.
func (s *SQLiteStorage) UpdateReport(ctx context.Context, report *models.Report) error {
	report.UpdatedAt = time.Now()
	ctxJSON, transJSON, setsJSON, tocJSON, sectionsJSON, err := marshalReportFields(report)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE reports SET context = ?, transmittal = ?, document_set_ids = ?, toc = ?, sections = ?,
		 status = ?, error = ?, approved = ?, updated_at = ? WHERE id = ?`,
		ctxJSON, transJSON, setsJSON, tocJSON, sectionsJSON,
		string(report.Status), report.Error, report.Approved, report.UpdatedAt, report.ID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("report not found: %s", report.ID)
	}
	return nil
}

func marshalReportFields(r *models.Report) (ctxJSON, transJSON, setsJSON, tocJSON, sectionsJSON string, err error) {
	marshal := func(v interface{}) (string, error) {
		if v == nil {
			return "", nil
		}
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	if r.Context != nil {
		if ctxJSON, err = marshal(r.Context); err != nil {
			return
		}
	}
	if r.Transmittal != nil {
		if transJSON, err = marshal(r.Transmittal); err != nil {
			return
		}
	}
	if r.DocumentSetIDs != nil {
		if setsJSON, err = marshal(r.DocumentSetIDs); err != nil {
			return
		}
	}
	if r.Toc != nil {
		if tocJSON, err = marshal(r.Toc); err != nil {
			return
		}
	}
	if r.Sections != nil {
		if sectionsJSON, err = marshal(r.Sections); err != nil {
			return
		}
	}
	return
}

func unmarshalReportFields(r *models.Report, ctxJSON, transJSON, setsJSON, tocJSON, sectionsJSON sql.NullString) error {
	unmarshal := func(s sql.NullString, v interface{}) error {
		if !s.Valid || s.String == "" {
			return nil
		}
		return json.Unmarshal([]byte(s.String), v)
	}
	if ctxJSON.Valid && ctxJSON.String != "" {
		r.Context = &models.PlanningContext{}
		if err := unmarshal(ctxJSON, r.Context); err != nil {
			return fmt.Errorf("failed to unmarshal report context: %w", err)
		}
	}
	if transJSON.Valid && transJSON.String != "" {
		r.Transmittal = &models.Transmittal{}
		if err := unmarshal(transJSON, r.Transmittal); err != nil {
			return fmt.Errorf("failed to unmarshal report transmittal: %w", err)
		}
	}
	if err := unmarshal(setsJSON, &r.DocumentSetIDs); err != nil {
		return fmt.Errorf("failed to unmarshal report document sets: %w", err)
	}
	if tocJSON.Valid && tocJSON.String != "" {
		r.Toc = &models.Toc{}
		if err := unmarshal(tocJSON, r.Toc); err != nil {
			return fmt.Errorf("failed to unmarshal report toc: %w", err)
		}
	}
	if err := unmarshal(sectionsJSON, &r.Sections); err != nil {
		return fmt.Errorf("failed to unmarshal report sections: %w", err)
	}
	return nil
}

// CreateProject inserts a project record.
func (s *SQLiteStorage) CreateProject(ctx context.Context, project *Project) error {
	data, err := json.Marshal(project)
	if err != nil {
		return fmt.Errorf("failed to marshal project: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO projects (id, data) VALUES (?, ?)`, project.ID, string(data))
	return err
}

// GetProject returns a project by ID.
func (s *SQLiteStorage) GetProject(ctx context.Context, id string) (*Project, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM projects WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("project not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	var project Project
	if err := json.Unmarshal([]byte(data), &project); err != nil {
		return nil, fmt.Errorf("failed to unmarshal project: %w", err)
	}
	return &project, nil
}

// CountDocuments returns the number of documents.
func (s *SQLiteStorage) CountDocuments(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n)
	return n, err
}

// CountChunks returns the number of chunks.
func (s *SQLiteStorage) CountChunks(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n)
	return n, err
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

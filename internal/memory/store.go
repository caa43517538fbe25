// Package memory learns and recalls approved table-of-contents patterns per
// organization, report type, and discipline.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/hyperjump/sakusei/internal/models"
	"github.com/hyperjump/sakusei/internal/storage"
	"go.uber.org/zap"
)

// Store persists and merges approved TOC patterns. Memory is a frequency-based
// recommender for content pre-fill only: the generation pipeline never takes
// report structure from it.
type Store struct {
	storage storage.Storage
	logger  *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// NewStore creates a memory store over the given storage.
func NewStore(st storage.Storage, opts ...StoreOption) *Store {
	s := &Store{
		storage: st,
		locks:   make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// keyLock returns the mutex for one (org, type, discipline) key. Merges are
// read-merge-write, so concurrent approvals for the same key must serialize
// or frequencies would silently under-count.
func (s *Store) keyLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.locks[key]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.locks[key] = l
	return l
}

func memoryKey(organizationID, reportType, discipline string) string {
	return organizationID + "|" + reportType + "|" + discipline
}

// CaptureReportMemory records an approved report's TOC against its key,
// creating the record on first capture and merging on every subsequent one.
func (s *Store) CaptureReportMemory(ctx context.Context, reportID, organizationID, reportType, discipline string, toc *models.Toc) error {
	if toc == nil || len(toc.Sections) == 0 {
		return fmt.Errorf("cannot capture memory for report %s: toc has no sections", reportID)
	}
	lock := s.keyLock(memoryKey(organizationID, reportType, discipline))
	lock.Lock()
	defer lock.Unlock()

	existing, err := s.storage.GetTocMemory(ctx, organizationID, reportType, discipline)
	if err != nil {
		return fmt.Errorf("failed to load toc memory: %w", err)
	}

	if existing == nil {
		existing = &models.TocMemory{
			ID:             uuid.New().String(),
			OrganizationID: organizationID,
			ReportType:     reportType,
			Discipline:     discipline,
			Sections:       MergeTocPatterns(nil, toc),
			TimesUsed:      1,
		}
	} else {
		existing.Sections = MergeTocPatterns(existing.Sections, toc)
		existing.TimesUsed++
	}

	if err := s.storage.UpsertTocMemory(ctx, existing); err != nil {
		return fmt.Errorf("failed to persist toc memory: %w", err)
	}
	if s.logger != nil {
		s.logger.Debug("captured report memory",
			zap.String("report_id", reportID),
			zap.String("organization_id", organizationID),
			zap.String("report_type", reportType),
			zap.String("discipline", discipline),
			zap.Int("times_used", existing.TimesUsed),
			zap.Int("sections", len(existing.Sections)))
	}
	return nil
}

// GenerateTocWithMemory returns the learned sections for the key, already
// frequency-sorted, each annotated with its usage count. When no record
// exists it returns an empty TOC with FromMemory=false so the caller can
// fall back to a different generation path.
func (s *Store) GenerateTocWithMemory(ctx context.Context, organizationID, reportType, discipline string) (*models.Toc, error) {
	mem, err := s.storage.GetTocMemory(ctx, organizationID, reportType, discipline)
	if err != nil {
		return nil, fmt.Errorf("failed to load toc memory: %w", err)
	}
	if mem == nil {
		return &models.Toc{Sections: []models.TocSection{}, FromMemory: false}, nil
	}

	sections := make([]models.TocSection, len(mem.Sections))
	for i, sec := range mem.Sections {
		sections[i] = models.TocSection{
			Title:       sec.Title,
			Level:       sec.Level,
			Description: fmt.Sprintf("Used %d times", sec.Frequency),
		}
	}
	return &models.Toc{
		Sections:   sections,
		FromMemory: true,
		TimesUsed:  mem.TimesUsed,
	}, nil
}

// Package pipeline orchestrates report generation as a staged state machine:
// fetch planning context, build the fixed table of contents, then fan out
// per-section retrieval and drafting.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/sakusei/internal/ai"
	"github.com/hyperjump/sakusei/internal/memory"
	"github.com/hyperjump/sakusei/internal/models"
	"github.com/hyperjump/sakusei/internal/planning"
	"github.com/hyperjump/sakusei/internal/storage"
)

// ChunkRetriever returns the top-k chunks for a query, scoped to document sets.
type ChunkRetriever interface {
	Retrieve(ctx context.Context, query string, docSetIDs []string, k int) ([]*models.Chunk, error)
}

// SectionScheduler dispatches one per-section generation job.
type SectionScheduler interface {
	ScheduleSection(ctx context.Context, job *models.GenerationJob) error
}

// Pipeline runs report generation. Stage ordering within one report is strict
// and enforced through status transitions; sections within Stage C run in any
// order and the run completes only after every section has settled.
type Pipeline struct {
	storage   storage.Storage
	loader    planning.Loader
	retriever ChunkRetriever
	drafter   ai.Client
	memory    *memory.Store
	scheduler SectionScheduler
	topK      int
	logger    *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithLogger sets a logger for stage transitions and failures.
func WithLogger(l *zap.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = l }
}

// WithTopK sets how many chunks are retrieved per section.
func WithTopK(k int) PipelineOption {
	return func(p *Pipeline) {
		if k > 0 {
			p.topK = k
		}
	}
}

// New creates a pipeline with its collaborators.
func New(st storage.Storage, loader planning.Loader, retriever ChunkRetriever, drafter ai.Client, mem *memory.Store, scheduler SectionScheduler, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		storage:   st,
		loader:    loader,
		retriever: retriever,
		drafter:   drafter,
		memory:    mem,
		scheduler: scheduler,
		topK:      8,
		locks:     make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// reportLock serializes section result writes for one report.
func (p *Pipeline) reportLock(reportID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.locks[reportID]; ok {
		return l
	}
	l := &sync.Mutex{}
	p.locks[reportID] = l
	return l
}

// CreateReport records a new report request in draft status.
func (p *Pipeline) CreateReport(ctx context.Context, input *models.ReportInput) (*models.Report, error) {
	if input.OrganizationID == "" || input.ProjectID == "" {
		return nil, fmt.Errorf("organization_id and project_id are required")
	}
	reportType := input.ReportType
	if reportType == "" {
		reportType = "tender"
	}
	now := time.Now()
	report := &models.Report{
		ID:             uuid.New().String(),
		OrganizationID: input.OrganizationID,
		ProjectID:      input.ProjectID,
		ReportType:     reportType,
		Discipline:     input.Discipline,
		Trade:          input.Trade,
		Status:         models.StatusDraft,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := p.storage.CreateReport(ctx, report); err != nil {
		return nil, fmt.Errorf("failed to create report: %w", err)
	}
	return report, nil
}

// Run drives a draft report through Stage A (planning context), Stage B
// (fixed TOC), and into Stage C by scheduling its section jobs. A fatal
// precondition failure moves the run to failed and is returned to the caller.
func (p *Pipeline) Run(ctx context.Context, reportID string) error {
	report, err := p.storage.GetReport(ctx, reportID)
	if err != nil {
		return fmt.Errorf("failed to load report: %w", err)
	}
	if report.Status != models.StatusDraft {
		return fmt.Errorf("report %s is %s, not draft: run already started", report.ID, report.Status)
	}

	if err := p.fetchPlanningContext(ctx, report); err != nil {
		return p.failRun(ctx, report, err)
	}

	toc, err := BuildFixedToc(report.Context, report.Discipline, report.Trade, report.Transmittal)
	if err != nil {
		return p.failRun(ctx, report, err)
	}
	report.Toc = toc
	if err := p.transition(ctx, report, models.StatusTocPending); err != nil {
		return err
	}
	if p.logger != nil {
		p.logger.Info("table of contents built",
			zap.String("report_id", report.ID),
			zap.Int("sections", len(toc.Sections)))
	}

	return p.startGeneration(ctx, report)
}

// fetchPlanningContext is Stage A. A missing project is fatal; a missing
// transmittal or document-set list is logged and skipped.
func (p *Pipeline) fetchPlanningContext(ctx context.Context, report *models.Report) error {
	pc, err := p.loader.LoadContext(ctx, report.ProjectID)
	if err != nil {
		return Fatal(fmt.Errorf("planning context unavailable for project %s: %w", report.ProjectID, err))
	}
	report.Context = pc

	key := report.Discipline
	if key == "" {
		key = report.Trade
	}
	if key == "" {
		return nil
	}

	transmittal, err := p.loader.LoadTransmittal(ctx, report.ProjectID, key)
	if err != nil {
		if p.logger != nil {
			p.logger.Warn("transmittal unavailable", zap.String("report_id", report.ID), zap.Error(err))
		}
	} else {
		report.Transmittal = transmittal
	}

	docSetIDs, err := p.loader.LoadDocumentSetIDs(ctx, report.ProjectID, key)
	if err != nil {
		if p.logger != nil {
			p.logger.Warn("document sets unavailable", zap.String("report_id", report.ID), zap.Error(err))
		}
	} else {
		report.DocumentSetIDs = docSetIDs
	}
	return nil
}

// startGeneration moves the run to generating, renders the Transmittal
// section factually, and schedules one job per remaining section.
func (p *Pipeline) startGeneration(ctx context.Context, report *models.Report) error {
	report.Sections = make([]models.SectionContent, len(report.Toc.Sections))
	for i, sec := range report.Toc.Sections {
		report.Sections[i] = models.SectionContent{SectionIndex: i, Title: sec.Title}
		if sec.Title == SectionTransmittal && report.Transmittal != nil {
			report.Sections[i].Content = renderTransmittal(report.Transmittal)
		}
	}
	if err := p.transition(ctx, report, models.StatusGenerating); err != nil {
		return err
	}

	for i, sec := range report.Toc.Sections {
		if sec.Title == SectionTransmittal {
			continue
		}
		job := &models.GenerationJob{
			ReportID:       report.ID,
			SectionIndex:   i,
			Query:          sectionQuery(report, sec.Title),
			DocumentSetIDs: report.DocumentSetIDs,
		}
		if err := p.scheduler.ScheduleSection(ctx, job); err != nil {
			return p.failRun(ctx, report, Fatal(fmt.Errorf("failed to schedule section %d: %w", i, err)))
		}
	}
	return nil
}

// GenerateSection is the Stage C unit of work for one section: retrieve
// scoped chunks, draft content, record the result. A report no longer in
// generating status means the run was cancelled or already settled; the job
// is a no-op then. Returned errors are retryable at the queue layer.
func (p *Pipeline) GenerateSection(ctx context.Context, job *models.GenerationJob) error {
	report, err := p.storage.GetReport(ctx, job.ReportID)
	if err != nil {
		return fmt.Errorf("failed to load report %s: %w", job.ReportID, err)
	}
	if report.Status != models.StatusGenerating {
		if p.logger != nil {
			p.logger.Debug("skipping section job for settled report",
				zap.String("report_id", job.ReportID),
				zap.String("status", string(report.Status)))
		}
		return nil
	}
	if job.SectionIndex < 0 || job.SectionIndex >= len(report.Sections) {
		return p.recordSectionResult(ctx, job.ReportID, job.SectionIndex, "",
			Fatal(fmt.Errorf("section index %d out of range", job.SectionIndex)))
	}
	if report.Context == nil {
		return p.recordSectionResult(ctx, job.ReportID, job.SectionIndex, "",
			Fatal(fmt.Errorf("report %s has no planning context", report.ID)))
	}

	chunks, err := p.retriever.Retrieve(ctx, job.Query, job.DocumentSetIDs, p.topK)
	if err != nil {
		return fmt.Errorf("retrieval failed for section %d: %w", job.SectionIndex, err)
	}

	content, err := p.drafter.DraftSection(ctx, &ai.SectionRequest{
		SectionTitle: report.Sections[job.SectionIndex].Title,
		ReportType:   report.ReportType,
		Discipline:   report.Discipline,
		Trade:        report.Trade,
		Context:      report.Context,
		Chunks:       chunks,
	})
	if err != nil {
		return fmt.Errorf("drafting failed for section %d: %w", job.SectionIndex, err)
	}

	return p.recordSectionResult(ctx, job.ReportID, job.SectionIndex, content, nil)
}

// RecordSectionFailure settles a section with an error after the queue has
// exhausted its retry budget for the job.
func (p *Pipeline) RecordSectionFailure(ctx context.Context, reportID string, sectionIndex int, err error) error {
	return p.recordSectionResult(ctx, reportID, sectionIndex, "", err)
}

// recordSectionResult writes one section outcome under the report lock. It
// re-checks status first: results for a failed or completed run are dropped.
// A fatal section error fails the whole run; otherwise the run completes once
// every section has either content or a recorded failure.
func (p *Pipeline) recordSectionResult(ctx context.Context, reportID string, sectionIndex int, content string, secErr error) error {
	lock := p.reportLock(reportID)
	lock.Lock()
	defer lock.Unlock()

	report, err := p.storage.GetReport(ctx, reportID)
	if err != nil {
		return fmt.Errorf("failed to load report %s: %w", reportID, err)
	}
	if report.Status != models.StatusGenerating {
		return nil
	}
	if sectionIndex < 0 || sectionIndex >= len(report.Sections) {
		return nil
	}

	if secErr != nil {
		if IsFatal(secErr) {
			return p.failRun(ctx, report, fmt.Errorf("section %q: %w", report.Sections[sectionIndex].Title, secErr))
		}
		report.Sections[sectionIndex].Error = secErr.Error()
	} else {
		report.Sections[sectionIndex].Content = content
		report.Sections[sectionIndex].Error = ""
	}

	if allSettled(report.Sections) {
		if err := p.transition(ctx, report, models.StatusComplete); err != nil {
			return err
		}
		if p.logger != nil {
			p.logger.Info("report complete", zap.String("report_id", report.ID))
		}
		return nil
	}
	report.UpdatedAt = time.Now()
	return p.storage.UpdateReport(ctx, report)
}

// Approve marks a completed report as human-approved, then captures its TOC
// into memory. Capture never happens on mere completion; this ordering keeps
// unapproved structures out of the recommender.
func (p *Pipeline) Approve(ctx context.Context, reportID string) error {
	report, err := p.storage.GetReport(ctx, reportID)
	if err != nil {
		return fmt.Errorf("failed to load report: %w", err)
	}
	if report.Status != models.StatusComplete {
		return fmt.Errorf("report %s is %s: only completed reports can be approved", report.ID, report.Status)
	}
	if report.Approved {
		return nil
	}
	report.Approved = true
	report.UpdatedAt = time.Now()
	if err := p.storage.UpdateReport(ctx, report); err != nil {
		return fmt.Errorf("failed to record approval: %w", err)
	}
	if err := p.memory.CaptureReportMemory(ctx, report.ID, report.OrganizationID, report.ReportType, report.Discipline, report.Toc); err != nil {
		return fmt.Errorf("approved but memory capture failed: %w", err)
	}
	return nil
}

// Retry creates a fresh draft report from a terminal one. Terminal reports
// are never resurrected in place.
func (p *Pipeline) Retry(ctx context.Context, reportID string) (*models.Report, error) {
	old, err := p.storage.GetReport(ctx, reportID)
	if err != nil {
		return nil, fmt.Errorf("failed to load report: %w", err)
	}
	if !old.Status.Terminal() {
		return nil, fmt.Errorf("report %s is still %s: wait for it to settle before re-triggering", old.ID, old.Status)
	}
	return p.CreateReport(ctx, &models.ReportInput{
		OrganizationID: old.OrganizationID,
		ProjectID:      old.ProjectID,
		ReportType:     old.ReportType,
		Discipline:     old.Discipline,
		Trade:          old.Trade,
	})
}

// transition enforces the forward state machine and persists the report.
func (p *Pipeline) transition(ctx context.Context, report *models.Report, next models.ReportStatus) error {
	if !report.Status.CanTransition(next) {
		return fmt.Errorf("illegal status transition %s -> %s for report %s", report.Status, next, report.ID)
	}
	report.Status = next
	report.UpdatedAt = time.Now()
	return p.storage.UpdateReport(ctx, report)
}

// failRun moves the report to failed with the error surfaced, and returns err.
func (p *Pipeline) failRun(ctx context.Context, report *models.Report, err error) error {
	if report.Status.Terminal() {
		return err
	}
	report.Status = models.StatusFailed
	report.Error = err.Error()
	report.UpdatedAt = time.Now()
	if updateErr := p.storage.UpdateReport(ctx, report); updateErr != nil && p.logger != nil {
		p.logger.Error("failed to persist failed status",
			zap.String("report_id", report.ID), zap.Error(updateErr))
	}
	if p.logger != nil {
		p.logger.Warn("report run failed", zap.String("report_id", report.ID), zap.Error(err))
	}
	return err
}

func allSettled(sections []models.SectionContent) bool {
	for _, sec := range sections {
		if sec.Content == "" && sec.Error == "" {
			return false
		}
	}
	return true
}

func sectionQuery(report *models.Report, title string) string {
	parts := []string{title}
	if report.Discipline != "" {
		parts = append(parts, report.Discipline)
	}
	if report.Trade != "" {
		parts = append(parts, report.Trade)
	}
	if report.Context != nil && report.Context.ProjectName != "" {
		parts = append(parts, report.Context.ProjectName)
	}
	return strings.Join(parts, " ")
}

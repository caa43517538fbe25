package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/sakusei/internal/models"
	"github.com/hyperjump/sakusei/internal/storage"
)

func (s *Server) handleIngestDocument(w http.ResponseWriter, r *http.Request) {
	var input models.DocumentInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	doc, err := s.ingest.IngestDocument(r.Context(), &input)
	if err != nil {
		s.logger.Error("ingestion failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.storage.GetDocument(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "document not found")
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleGetDocumentChunks(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	chunks, err := s.storage.GetChunksByDocumentID(r.Context(), id)
	if err != nil {
		s.logger.Error("chunk lookup failed", zap.String("document_id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"document_id": id,
		"chunks":      chunks,
	})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.ingest.RemoveDocument(r.Context(), id); err != nil {
		s.logger.Error("document removal failed", zap.String("document_id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var project storage.Project
	if err := json.NewDecoder(r.Body).Decode(&project); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if project.ID == "" {
		s.respondError(w, http.StatusBadRequest, "project id is required")
		return
	}
	if err := s.storage.CreateProject(r.Context(), &project); err != nil {
		s.logger.Error("project creation failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, project)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	project, err := s.storage.GetProject(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "project not found")
		return
	}
	s.respondJSON(w, http.StatusOK, project)
}

// handleCreateReport creates a report and starts its run. Stages A and B run
// before the response; section generation continues on the queue. The report
// is returned whatever its run state, including failed preconditions.
func (s *Server) handleCreateReport(w http.ResponseWriter, r *http.Request) {
	var input models.ReportInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	report, err := s.pipeline.CreateReport(r.Context(), &input)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.pipeline.Run(r.Context(), report.ID); err != nil {
		s.logger.Warn("report run failed", zap.String("report_id", report.ID), zap.Error(err))
	}
	current, err := s.storage.GetReport(r.Context(), report.ID)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusAccepted, current)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	report, err := s.storage.GetReport(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "report not found")
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

// handleRetryReport creates a fresh run from a terminal report.
func (s *Server) handleRetryReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	fresh, err := s.pipeline.Retry(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusConflict, err.Error())
		return
	}
	if err := s.pipeline.Run(r.Context(), fresh.ID); err != nil {
		s.logger.Warn("report run failed", zap.String("report_id", fresh.ID), zap.Error(err))
	}
	current, err := s.storage.GetReport(r.Context(), fresh.ID)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusAccepted, current)
}

func (s *Server) handleApproveReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.pipeline.Approve(r.Context(), id); err != nil {
		s.respondError(w, http.StatusConflict, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "approved"})
}

func (s *Server) handleMemoryToc(w http.ResponseWriter, r *http.Request) {
	orgID := r.URL.Query().Get("organization_id")
	reportType := r.URL.Query().Get("report_type")
	discipline := r.URL.Query().Get("discipline")
	if orgID == "" || reportType == "" {
		s.respondError(w, http.StatusBadRequest, "organization_id and report_type are required")
		return
	}
	toc, err := s.memory.GenerateTocWithMemory(r.Context(), orgID, reportType, discipline)
	if err != nil {
		s.logger.Error("memory lookup failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, toc)
}

// handleHealth maps the composite verdict onto status codes: unhealthy is a
// 503, healthy and degraded are 200.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snapshot := s.monitor.CheckHealth(r.Context())
	status := http.StatusOK
	if snapshot.Status == models.HealthUnhealthy {
		status = http.StatusServiceUnavailable
	}
	s.respondJSON(w, status, snapshot)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docCount, err := s.storage.CountDocuments(ctx)
	if err != nil {
		s.logger.Error("status: count documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	chunkCount, err := s.storage.CountChunks(ctx)
	if err != nil {
		s.logger.Error("status: count chunks failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]interface{}{
		"documents":         docCount,
		"chunks":            chunkCount,
		"vector_index_size": s.vector.Size(),
		"queues":            s.runtime.Stats(),
	}
	diskBytes, err := storage.DiskUsageBytes(
		s.config.Storage.DatabasePath,
		s.config.Storage.BleveIndexPath,
		s.config.Storage.VectorIndexPath,
	)
	if err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

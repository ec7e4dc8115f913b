package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/simgroup/internal/grouping"
	"github.com/hyperjump/simgroup/internal/models"
	"github.com/hyperjump/simgroup/internal/pipeline"
	"github.com/hyperjump/simgroup/internal/storage"
)

type groupsRequest struct {
	Items     []models.Item `json:"items"`
	Threshold *float64      `json:"threshold,omitempty"`
}

// decodeBody decodes a JSON body of at most server.max_body_bytes into v and answers
// 413 or 400 itself when it cannot.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if limit := s.config.Server.MaxBodyBytes; limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *Server) handleComputeGroups(w http.ResponseWriter, r *http.Request) {
	var req groupsRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	threshold := s.config.Grouping.ThresholdOrDefault()
	if req.Threshold != nil {
		threshold = *req.Threshold
	}
	s.logger.Debug("compute groups request", zap.Int("items", len(req.Items)), zap.Float64("threshold", threshold))
	result, err := s.engine.ComputeSimilarityGroups(r.Context(), req.Items, threshold)
	switch {
	case errors.Is(err, grouping.ErrInvalidThreshold), errors.Is(err, grouping.ErrDimensionMismatch):
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error("compute groups failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		s.respondError(w, http.StatusNotImplemented, "pipeline not configured")
		return
	}
	res, err := s.runner.Run(r.Context())
	if errors.Is(err, pipeline.ErrRunInProgress) {
		s.respondError(w, http.StatusConflict, err.Error())
		return
	}
	if res == nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, res.Status, res)
}

func (s *Server) handleLastRun(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		s.respondError(w, http.StatusNotImplemented, "pipeline not configured")
		return
	}
	run, err := s.runner.LastRun(r.Context())
	if errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "no runs yet")
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, run)
}

func (s *Server) handleUpsertRecords(w http.ResponseWriter, r *http.Request) {
	if s.storage == nil {
		s.respondError(w, http.StatusNotImplemented, "storage not configured")
		return
	}
	var recs []models.SourceRecord
	if !s.decodeBody(w, r, &recs) {
		return
	}
	for _, rec := range recs {
		if rec.ID == "" {
			s.respondError(w, http.StatusBadRequest, "every record needs an id")
			return
		}
	}
	if err := s.storage.UpsertRecords(r.Context(), recs); err != nil {
		s.logger.Error("upsert records failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]interface{}{"upserted": len(recs)})
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	if s.storage == nil {
		s.respondError(w, http.StatusNotImplemented, "storage not configured")
		return
	}
	rec, err := s.storage.GetRecord(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusNotFound, "record not found")
		return
	}
	s.respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	if s.storage == nil {
		s.respondError(w, http.StatusNotImplemented, "storage not configured")
		return
	}
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete record request", zap.String("id", id))
	if err := s.storage.DeleteRecord(r.Context(), id); err != nil {
		s.logger.Error("deletion failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"config": map[string]interface{}{
			"threshold":          s.config.Grouping.ThresholdOrDefault(),
			"embedding_provider": s.config.Embedding.Provider,
			"source_type":        s.config.Source.Type,
			"publish_sink":       s.config.Publish.Sink,
			"batch_size":         s.config.Publish.BatchSize,
		},
	}
	if s.storage != nil {
		ctx := r.Context()
		records, err := s.storage.CountRecords(ctx)
		if err != nil {
			s.logger.Error("status: count records failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		pending, err := s.storage.CountPending(ctx)
		if err != nil {
			s.logger.Error("status: count outbox failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp["records"] = records
		resp["outbox_pending"] = pending
	}
	if diskBytes, err := storage.DiskUsageBytes(s.config.Storage.DatabasePath, s.config.Storage.VectorsPath); err == nil {
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

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/MatthiasZepper/nfcore-stats-backend/internal/reconcile"
	"github.com/MatthiasZepper/nfcore-stats-backend/internal/store"
	"github.com/MatthiasZepper/nfcore-stats-backend/pkg/nfcore"
)

const (
	defaultUptimeLimit = 10
	defaultListLimit   = 100
)

func (s *Server) handleImportPipelines(w http.ResponseWriter, r *http.Request) {
	data, ok := s.readBody(w, r)
	if !ok {
		return
	}
	p, err := nfcore.DecodePayload(data)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON: "+err.Error()))
		return
	}

	res, err := s.Importer.ImportPipelines(r.Context(), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Import of pipelines.json successful",
		"result":  res,
	})
}

func (s *Server) handleImportIssueStats(w http.ResponseWriter, r *http.Request) {
	data, ok := s.readBody(w, r)
	if !ok {
		return
	}
	if !json.Valid(data) {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON"))
		return
	}

	if _, err := s.Importer.ImportIssueStats(r.Context(), data); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Import of nfcore_issue_stats.json successful",
	})
}

func (s *Server) handleUptime(w http.ResponseWriter, r *http.Request) {
	limit := defaultUptimeLimit
	if raw := chi.URLParam(r, "limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusUnprocessableEntity, errorBody("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	grouped, err := s.Prober.Recent(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, grouped)
}

type summaryDetail struct {
	store.PipelineSummary
	RemoteWorkflows []store.RemoteWorkflow `json:"remote_workflows"`
}

type workflowDetail struct {
	store.RemoteWorkflow
	Releases []store.Release `json:"releases"`
	Topics   []store.Topic   `json:"topics"`
}

func (s *Server) handleListSummaries(w http.ResponseWriter, r *http.Request) {
	list(s, w, r, store.Summaries, "received DESC")
}

func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sum, err := store.Summaries.Get(ctx, s.Store.DB(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	wfs, err := s.Store.SummaryWorkflows(ctx, sum.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summaryDetail{PipelineSummary: *sum, RemoteWorkflows: wfs})
}

func (s *Server) handleDeleteSummary(w http.ResponseWriter, r *http.Request) {
	s.remove(w, r, store.Summaries.Delete, chi.URLParam(r, "id"))
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	list(s, w, r, store.Workflows, "name")
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := intParam(w, r, "id")
	if !ok {
		return
	}
	ctx := r.Context()
	wf, err := store.Workflows.Get(ctx, s.Store.DB(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	releases, err := s.Store.WorkflowReleases(ctx, wf.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	topics, err := s.Store.WorkflowTopics(ctx, wf.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, workflowDetail{RemoteWorkflow: *wf, Releases: releases, Topics: topics})
}

func (s *Server) handleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	if id, ok := intParam(w, r, "id"); ok {
		s.remove(w, r, store.Workflows.Delete, id)
	}
}

func (s *Server) handleGetRelease(w http.ResponseWriter, r *http.Request) {
	rel, err := store.Releases.Get(r.Context(), s.Store.DB(), chi.URLParam(r, "tag_sha"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rel)
}

func (s *Server) handleDeleteRelease(w http.ResponseWriter, r *http.Request) {
	s.remove(w, r, store.Releases.Delete, chi.URLParam(r, "tag_sha"))
}

func (s *Server) handleListTopics(w http.ResponseWriter, r *http.Request) {
	list(s, w, r, store.Topics, "topic")
}

func (s *Server) handleDeleteTopic(w http.ResponseWriter, r *http.Request) {
	if id, ok := intParam(w, r, "id"); ok {
		s.remove(w, r, store.Topics.Delete, id)
	}
}

func list[T any](s *Server, w http.ResponseWriter, r *http.Request, t store.Table[T], orderBy string) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusUnprocessableEntity, errorBody("limit must be a positive integer"))
			return
		}
		limit = n
	}

	recs, err := t.List(r.Context(), s.Store.DB(), orderBy, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  recs,
		"count": len(recs),
	})
}

type deleteFunc func(ctx context.Context, q sqlx.ExtContext, key any) error

func (s *Server) remove(w http.ResponseWriter, r *http.Request, del deleteFunc, key any) {
	if err := del(r.Context(), s.Store.DB(), key); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.Log.Info("deleted", zap.String("path", r.URL.Path))
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func intParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody(fmt.Sprintf("%s must be an integer", name)))
		return 0, false
	}
	return id, true
}

// readBody reads the request body, decompressing gzip bodies, up to the
// configured limit. It writes the error response itself.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := nfcore.DecodeBody(http.MaxBytesReader(w, r.Body, s.MaxBodyBytes), r.Header.Get("Content-Encoding"))
	if err != nil {
		writeJSON(w, http.StatusUnsupportedMediaType, errorBody(err.Error()))
		return nil, false
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, s.MaxBodyBytes+1))
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge) || int64(len(data)) > s.MaxBodyBytes:
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("request body too large"))
		return nil, false
	case err != nil:
		writeJSON(w, http.StatusBadRequest, errorBody("read body: "+err.Error()))
		return nil, false
	}
	return data, true
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, reconcile.ErrValidation):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody(err.Error()))
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	default:
		s.Log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal server error"))
	}
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

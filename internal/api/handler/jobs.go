// Package handler contains the HTTP handlers for the GeoScan API. Handlers
// depend on narrow interfaces so tests can substitute mocks.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/zhinao/geoscan/internal/api/middleware"
	"github.com/zhinao/geoscan/internal/api/response"
	"github.com/zhinao/geoscan/internal/store"
	"github.com/zhinao/geoscan/internal/trigger"
	"github.com/zhinao/geoscan/pkg/models"
)

// Triggerer is what the trigger handlers need from the trigger service.
type Triggerer interface {
	TriggerMonitoring(ctx context.Context, userID uuid.UUID, params trigger.MonitoringParams) (uuid.UUID, error)
	TriggerDiagnosis(ctx context.Context, userID uuid.UUID, parentJobID, resultID uuid.UUID) (uuid.UUID, error)
	TriggerSimulation(ctx context.Context, userID uuid.UUID, diagnosisJobID uuid.UUID) (uuid.UUID, error)
}

// JobStore is what the read handlers need from the store.
type JobStore interface {
	GetJob(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.Job, error)
	ListJobs(ctx context.Context, filter store.JobFilter) ([]*models.Job, int, error)
	ListResultsByJob(ctx context.Context, jobID uuid.UUID) ([]*models.Result, error)
}

type jobCreatedResponse struct {
	JobID string `json:"job_id"`
}

// NewScanHandler returns the handler for POST /api/v1/scans.
func NewScanHandler(svc Triggerer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		var req struct {
			BrandName   string   `json:"brand_name"`
			SearchQuery string   `json:"search_query"`
			Competitors []string `json:"competitors"`
			Models      []string `json:"models"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.BrandName == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "brand_name is required", nil)
			return
		}
		if req.SearchQuery == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "search_query is required", nil)
			return
		}

		jobID, err := svc.TriggerMonitoring(r.Context(), userID, trigger.MonitoringParams{
			BrandName:   req.BrandName,
			SearchQuery: req.SearchQuery,
			Competitors: req.Competitors,
			ModelNames:  req.Models,
		})
		if err != nil {
			writeTriggerError(w, err)
			return
		}

		response.Accepted(w, jobCreatedResponse{JobID: jobID.String()})
	}
}

// NewDiagnosisHandler returns the handler for POST /api/v1/diagnoses.
func NewDiagnosisHandler(svc Triggerer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		var req struct {
			JobID    string `json:"job_id"`
			ResultID string `json:"result_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		parentJobID, err := uuid.Parse(req.JobID)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "job_id must be a valid UUID", nil)
			return
		}
		resultID, err := uuid.Parse(req.ResultID)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "result_id must be a valid UUID", nil)
			return
		}

		jobID, err := svc.TriggerDiagnosis(r.Context(), userID, parentJobID, resultID)
		if err != nil {
			writeTriggerError(w, err)
			return
		}

		response.Accepted(w, jobCreatedResponse{JobID: jobID.String()})
	}
}

// NewSimulationHandler returns the handler for POST /api/v1/simulations.
func NewSimulationHandler(svc Triggerer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		var req struct {
			DiagnosisJobID string `json:"diagnosis_job_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		diagnosisJobID, err := uuid.Parse(req.DiagnosisJobID)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "diagnosis_job_id must be a valid UUID", nil)
			return
		}

		jobID, err := svc.TriggerSimulation(r.Context(), userID, diagnosisJobID)
		if err != nil {
			writeTriggerError(w, err)
			return
		}

		response.Accepted(w, jobCreatedResponse{JobID: jobID.String()})
	}
}

// NewGetJobHandler returns the handler for GET /api/v1/jobs/{jobID}.
func NewGetJobHandler(st JobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "jobID must be a valid UUID", nil)
			return
		}

		job, err := st.GetJob(r.Context(), jobID, userID)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
			return
		}

		results, err := st.ListResultsByJob(r.Context(), jobID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
			return
		}

		response.JSON(w, map[string]any{
			"job":     job,
			"results": results,
		})
	}
}

// NewListJobsHandler returns the handler for GET /api/v1/jobs.
func NewListJobsHandler(st JobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		filter := store.JobFilter{
			UserID: userID,
			Type:   r.URL.Query().Get("type"),
			Status: r.URL.Query().Get("status"),
			Page:   queryInt(r, "page", 1),
			Limit:  queryInt(r, "limit", 20),
		}

		jobs, total, err := st.ListJobs(r.Context(), filter)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
			return
		}
		if jobs == nil {
			jobs = []*models.Job{}
		}

		response.Collection(w, jobs, response.PaginationMeta{
			Page:    filter.Page,
			Limit:   filter.Limit,
			Total:   total,
			HasNext: filter.Page*filter.Limit < total,
		})
	}
}

// writeTriggerError maps trigger-service errors onto the API error taxonomy.
// Insufficient credits carries an actionable next step; everything else is a
// generic failure with server-side detail logging only.
func writeTriggerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, trigger.ErrInsufficientCredits):
		response.Error(w, http.StatusPaymentRequired, "INSUFFICIENT_CREDITS",
			"Not enough credits for this operation", map[string]string{
				"next_step": "top_up",
			})
	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Referenced job not found", nil)
	default:
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}

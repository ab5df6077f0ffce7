package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	mw "github.com/zhinao/geoscan/internal/api/middleware"
	"github.com/zhinao/geoscan/internal/store"
	"github.com/zhinao/geoscan/internal/trigger"
	"github.com/zhinao/geoscan/pkg/models"
)

// --- mock Triggerer ---

type mockTriggerer struct {
	jobID  uuid.UUID
	err    error
	params trigger.MonitoringParams
	calls  int
}

func (m *mockTriggerer) TriggerMonitoring(ctx context.Context, userID uuid.UUID, params trigger.MonitoringParams) (uuid.UUID, error) {
	m.calls++
	m.params = params
	return m.jobID, m.err
}

func (m *mockTriggerer) TriggerDiagnosis(ctx context.Context, userID uuid.UUID, parentJobID, resultID uuid.UUID) (uuid.UUID, error) {
	m.calls++
	return m.jobID, m.err
}

func (m *mockTriggerer) TriggerSimulation(ctx context.Context, userID uuid.UUID, diagnosisJobID uuid.UUID) (uuid.UUID, error) {
	m.calls++
	return m.jobID, m.err
}

// --- mock JobStore ---

type mockJobStore struct {
	job     *models.Job
	jobs    []*models.Job
	total   int
	results []*models.Result
	err     error
	filter  store.JobFilter
}

func (m *mockJobStore) GetJob(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.Job, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.job, nil
}

func (m *mockJobStore) ListJobs(ctx context.Context, filter store.JobFilter) ([]*models.Job, int, error) {
	m.filter = filter
	return m.jobs, m.total, m.err
}

func (m *mockJobStore) ListResultsByJob(ctx context.Context, jobID uuid.UUID) ([]*models.Result, error) {
	return m.results, nil
}

// --- helpers ---

func authedReq(t *testing.T, method, path string, body any, userID uuid.UUID) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	r := httptest.NewRequest(method, path, &buf)
	r.Header.Set("Content-Type", "application/json")
	return r.WithContext(mw.SetUserID(r.Context(), userID))
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func errCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Error.Code
}

func dataBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var env struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Data
}

// --- scans ---

func TestScanHandler_Accepted(t *testing.T) {
	svc := &mockTriggerer{jobID: uuid.New()}
	h := NewScanHandler(svc)
	rec := httptest.NewRecorder()

	body := map[string]any{
		"brand_name":   "Acme",
		"search_query": "best crm software",
		"competitors":  []string{"Globex"},
		"models":       []string{"gpt-4o", "deepseek-v3"},
	}
	h.ServeHTTP(rec, authedReq(t, "POST", "/api/v1/scans", body, uuid.New()))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, svc.jobID.String(), dataBody(t, rec)["job_id"])
	assert.Equal(t, []string{"gpt-4o", "deepseek-v3"}, svc.params.ModelNames)
}

func TestScanHandler_MissingBrandName(t *testing.T) {
	svc := &mockTriggerer{jobID: uuid.New()}
	h := NewScanHandler(svc)
	rec := httptest.NewRecorder()

	body := map[string]any{"search_query": "best crm software"}
	h.ServeHTTP(rec, authedReq(t, "POST", "/api/v1/scans", body, uuid.New()))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", errCode(t, rec))
	assert.Equal(t, 0, svc.calls)
}

func TestScanHandler_MissingSearchQuery(t *testing.T) {
	svc := &mockTriggerer{jobID: uuid.New()}
	h := NewScanHandler(svc)
	rec := httptest.NewRecorder()

	body := map[string]any{"brand_name": "Acme"}
	h.ServeHTTP(rec, authedReq(t, "POST", "/api/v1/scans", body, uuid.New()))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, svc.calls)
}

func TestScanHandler_InsufficientCredits(t *testing.T) {
	svc := &mockTriggerer{err: trigger.ErrInsufficientCredits}
	h := NewScanHandler(svc)
	rec := httptest.NewRecorder()

	body := map[string]any{"brand_name": "Acme", "search_query": "best crm"}
	h.ServeHTTP(rec, authedReq(t, "POST", "/api/v1/scans", body, uuid.New()))

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, "INSUFFICIENT_CREDITS", errCode(t, rec))

	var env struct {
		Error struct {
			Details map[string]string `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "top_up", env.Error.Details["next_step"])
}

func TestScanHandler_NoUser(t *testing.T) {
	h := NewScanHandler(&mockTriggerer{})
	rec := httptest.NewRecorder()

	r := httptest.NewRequest("POST", "/api/v1/scans", bytes.NewReader([]byte("{}")))
	h.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// --- diagnoses ---

func TestDiagnosisHandler_Accepted(t *testing.T) {
	svc := &mockTriggerer{jobID: uuid.New()}
	h := NewDiagnosisHandler(svc)
	rec := httptest.NewRecorder()

	body := map[string]any{
		"job_id":    uuid.NewString(),
		"result_id": uuid.NewString(),
	}
	h.ServeHTTP(rec, authedReq(t, "POST", "/api/v1/diagnoses", body, uuid.New()))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, svc.jobID.String(), dataBody(t, rec)["job_id"])
}

func TestDiagnosisHandler_BadUUID(t *testing.T) {
	svc := &mockTriggerer{}
	h := NewDiagnosisHandler(svc)
	rec := httptest.NewRecorder()

	body := map[string]any{"job_id": "not-a-uuid", "result_id": uuid.NewString()}
	h.ServeHTTP(rec, authedReq(t, "POST", "/api/v1/diagnoses", body, uuid.New()))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, svc.calls)
}

func TestDiagnosisHandler_ParentNotFound(t *testing.T) {
	svc := &mockTriggerer{err: store.ErrNotFound}
	h := NewDiagnosisHandler(svc)
	rec := httptest.NewRecorder()

	body := map[string]any{"job_id": uuid.NewString(), "result_id": uuid.NewString()}
	h.ServeHTTP(rec, authedReq(t, "POST", "/api/v1/diagnoses", body, uuid.New()))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", errCode(t, rec))
}

// --- simulations ---

func TestSimulationHandler_Accepted(t *testing.T) {
	svc := &mockTriggerer{jobID: uuid.New()}
	h := NewSimulationHandler(svc)
	rec := httptest.NewRecorder()

	body := map[string]any{"diagnosis_job_id": uuid.NewString()}
	h.ServeHTTP(rec, authedReq(t, "POST", "/api/v1/simulations", body, uuid.New()))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, svc.jobID.String(), dataBody(t, rec)["job_id"])
}

func TestSimulationHandler_BadUUID(t *testing.T) {
	svc := &mockTriggerer{}
	h := NewSimulationHandler(svc)
	rec := httptest.NewRecorder()

	body := map[string]any{"diagnosis_job_id": "nope"}
	h.ServeHTTP(rec, authedReq(t, "POST", "/api/v1/simulations", body, uuid.New()))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, svc.calls)
}

// --- get job ---

func TestGetJobHandler_Found(t *testing.T) {
	userID := uuid.New()
	job := &models.Job{ID: uuid.New(), UserID: userID, Type: models.JobTypeMonitoring, Status: models.JobStatusCompleted}
	st := &mockJobStore{
		job:     job,
		results: []*models.Result{{ID: uuid.New(), JobID: job.ID}},
	}
	h := NewGetJobHandler(st)
	rec := httptest.NewRecorder()

	r := authedReq(t, "GET", "/api/v1/jobs/"+job.ID.String(), nil, userID)
	h.ServeHTTP(rec, withURLParam(r, "jobID", job.ID.String()))

	require.Equal(t, http.StatusOK, rec.Code)
	data := dataBody(t, rec)
	assert.NotNil(t, data["job"])
	assert.Len(t, data["results"], 1)
}

func TestGetJobHandler_NotFound(t *testing.T) {
	st := &mockJobStore{err: store.ErrNotFound}
	h := NewGetJobHandler(st)
	rec := httptest.NewRecorder()

	id := uuid.NewString()
	r := authedReq(t, "GET", "/api/v1/jobs/"+id, nil, uuid.New())
	h.ServeHTTP(rec, withURLParam(r, "jobID", id))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", errCode(t, rec))
}

func TestGetJobHandler_BadUUID(t *testing.T) {
	h := NewGetJobHandler(&mockJobStore{})
	rec := httptest.NewRecorder()

	r := authedReq(t, "GET", "/api/v1/jobs/xyz", nil, uuid.New())
	h.ServeHTTP(rec, withURLParam(r, "jobID", "xyz"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// --- list jobs ---

func TestListJobsHandler_Pagination(t *testing.T) {
	userID := uuid.New()
	st := &mockJobStore{
		jobs:  []*models.Job{{ID: uuid.New(), UserID: userID}},
		total: 45,
	}
	h := NewListJobsHandler(st)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, authedReq(t, "GET", "/api/v1/jobs?type=monitoring&page=2&limit=20", nil, userID))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, userID, st.filter.UserID)
	assert.Equal(t, "monitoring", st.filter.Type)
	assert.Equal(t, 2, st.filter.Page)

	var env struct {
		Data []any `json:"data"`
		Meta struct {
			Total   int  `json:"total"`
			HasNext bool `json:"has_next"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Len(t, env.Data, 1)
	assert.Equal(t, 45, env.Meta.Total)
	assert.True(t, env.Meta.HasNext)
}

func TestListJobsHandler_EmptyList(t *testing.T) {
	st := &mockJobStore{jobs: nil, total: 0}
	h := NewListJobsHandler(st)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, authedReq(t, "GET", "/api/v1/jobs", nil, uuid.New()))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"data":[]`, "empty list serializes as [], not null")
}

package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhinao/geoscan/internal/store"
	"github.com/zhinao/geoscan/internal/tracker"
	"github.com/zhinao/geoscan/pkg/models"
)

type mockWatcher struct {
	updates []tracker.Update
	err     error
}

func (m *mockWatcher) Watch(ctx context.Context, userID, jobID uuid.UUID) (<-chan tracker.Update, error) {
	if m.err != nil {
		return nil, m.err
	}
	ch := make(chan tracker.Update, len(m.updates))
	for _, u := range m.updates {
		ch <- u
	}
	close(ch)
	return ch, nil
}

func TestJobEventsHandler_StreamsUntilTerminal(t *testing.T) {
	job := &models.Job{ID: uuid.New(), Status: models.JobStatusCompleted}
	watcher := &mockWatcher{updates: []tracker.Update{
		{State: tracker.StateProcessing, Job: &models.Job{ID: job.ID, Status: models.JobStatusProcessing}},
		{State: tracker.StateResult, Job: job},
	}}
	h := NewJobEventsHandler(watcher)
	rec := httptest.NewRecorder()

	r := authedReq(t, "GET", "/api/v1/jobs/"+job.ID.String()+"/events", nil, uuid.New())
	h.ServeHTTP(rec, withURLParam(r, "jobID", job.ID.String()))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Equal(t, 2, strings.Count(body, "event: update"))
	assert.Contains(t, body, `"state":"processing"`)
	assert.Contains(t, body, `"state":"result"`)
}

func TestJobEventsHandler_JobNotFound(t *testing.T) {
	watcher := &mockWatcher{err: store.ErrNotFound}
	h := NewJobEventsHandler(watcher)
	rec := httptest.NewRecorder()
	jobID := uuid.NewString()

	r := authedReq(t, "GET", "/api/v1/jobs/"+jobID+"/events", nil, uuid.New())
	h.ServeHTTP(rec, withURLParam(r, "jobID", jobID))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJobEventsHandler_BadUUID(t *testing.T) {
	h := NewJobEventsHandler(&mockWatcher{})
	rec := httptest.NewRecorder()

	r := authedReq(t, "GET", "/api/v1/jobs/abc/events", nil, uuid.New())
	h.ServeHTTP(rec, withURLParam(r, "jobID", "abc"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJobEventsHandler_NoUser(t *testing.T) {
	h := NewJobEventsHandler(&mockWatcher{})
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/jobs/x/events", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

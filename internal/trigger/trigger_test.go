package trigger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhinao/geoscan/internal/config"
	"github.com/zhinao/geoscan/internal/credits"
	"github.com/zhinao/geoscan/internal/engine"
	"github.com/zhinao/geoscan/internal/store"
	"github.com/zhinao/geoscan/internal/trigger"
	"github.com/zhinao/geoscan/pkg/models"
)

// mockStore implements store.Store in memory, recording the calls the
// trigger service makes.
type mockStore struct {
	balance       int
	jobs          map[uuid.UUID]*models.Job
	created       []*models.Job
	deleted       []uuid.UUID
	activeByChild *models.Job
}

func newMockStore() *mockStore {
	return &mockStore{balance: 100, jobs: make(map[uuid.UUID]*models.Job)}
}

func (m *mockStore) Ping(ctx context.Context) error { return nil }

func (m *mockStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return nil, store.ErrNotFound
}

func (m *mockStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	return nil, nil
}
func (m *mockStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error { return nil }
func (m *mockStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error   { return nil }
func (m *mockStore) ListAPIKeys(ctx context.Context, userID uuid.UUID) ([]*models.APIKey, error) {
	return nil, nil
}
func (m *mockStore) RevokeAPIKey(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	return nil
}

func (m *mockStore) CreateJob(ctx context.Context, job *models.Job) error {
	m.created = append(m.created, job)
	m.jobs[job.ID] = job
	return nil
}

func (m *mockStore) GetJob(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.Job, error) {
	job, ok := m.jobs[id]
	if !ok || job.UserID != userID {
		return nil, store.ErrNotFound
	}
	return job, nil
}

func (m *mockStore) ListJobs(ctx context.Context, filter store.JobFilter) ([]*models.Job, int, error) {
	return nil, 0, nil
}

func (m *mockStore) DeleteJob(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	if _, ok := m.jobs[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.jobs, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockStore) FindActiveJobByParent(ctx context.Context, parentJobID uuid.UUID, jobType string) (*models.Job, error) {
	if m.activeByChild != nil && m.activeByChild.ParentJobID != nil && *m.activeByChild.ParentJobID == parentJobID {
		return m.activeByChild, nil
	}
	return nil, store.ErrNotFound
}

func (m *mockStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...store.JobUpdateOption) error {
	return nil
}

func (m *mockStore) CreateResult(ctx context.Context, result *models.Result) error { return nil }
func (m *mockStore) GetResult(ctx context.Context, id uuid.UUID) (*models.Result, error) {
	return nil, store.ErrNotFound
}
func (m *mockStore) ListResultsByJob(ctx context.Context, jobID uuid.UUID) ([]*models.Result, error) {
	return nil, nil
}
func (m *mockStore) UpdateResultReport(ctx context.Context, id uuid.UUID, userID uuid.UUID, body string) error {
	return nil
}

func (m *mockStore) CreateLedgerEntry(ctx context.Context, entry *models.LedgerEntry) error {
	return nil
}
func (m *mockStore) GetLatestBalance(ctx context.Context, userID uuid.UUID) (int, error) {
	return m.balance, nil
}
func (m *mockStore) ListLedgerEntries(ctx context.Context, userID uuid.UUID, page, limit int) ([]*models.LedgerEntry, int, error) {
	return nil, 0, nil
}
func (m *mockStore) SumDeductionsSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	return 0, nil
}

func (m *mockStore) CreateTopUpRequest(ctx context.Context, req *models.TopUpRequest) error {
	return nil
}
func (m *mockStore) ListTopUpRequests(ctx context.Context, userID uuid.UUID) ([]*models.TopUpRequest, error) {
	return nil, nil
}

// fakeForwarder implements engine.Forwarder with a scripted response.
type fakeForwarder struct {
	err      error
	payloads []engine.Payload
}

func (f *fakeForwarder) Forward(ctx context.Context, userID uuid.UUID, payload engine.Payload) error {
	f.payloads = append(f.payloads, payload)
	return f.err
}

func newService(st *mockStore, fw *fakeForwarder) *trigger.Service {
	prices := credits.NewPriceTable(config.CreditsConfig{
		MonitoringPerModel: 2,
		Diagnosis:          5,
		Simulation:         3,
	})
	creditSvc := credits.NewService(st, nil, prices, 10)
	return trigger.NewService(st, fw, creditSvc, nil)
}

func monitoringParams() trigger.MonitoringParams {
	return trigger.MonitoringParams{
		BrandName:   "Acme",
		SearchQuery: "best crm software",
		Competitors: []string{"Globex"},
		ModelNames:  []string{"gpt-4o", "deepseek-v3"},
	}
}

// --- Monitoring ---

func TestTriggerMonitoring_CreatesRowAndForwards(t *testing.T) {
	st := newMockStore()
	fw := &fakeForwarder{}
	svc := newService(st, fw)
	userID := uuid.New()

	jobID, err := svc.TriggerMonitoring(context.Background(), userID, monitoringParams())
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, jobID)

	require.Len(t, st.created, 1)
	job := st.created[0]
	assert.Equal(t, jobID, job.ID)
	assert.Equal(t, models.JobTypeMonitoring, job.Type)
	assert.Equal(t, models.JobStatusQueued, job.Status)
	assert.Equal(t, "Acme", job.BrandName)

	require.Len(t, fw.payloads, 1)
	assert.Equal(t, "monitoring", fw.payloads[0].Endpoint())
}

func TestTriggerMonitoring_EveryModelPersistedAndForwarded(t *testing.T) {
	st := newMockStore()
	fw := &fakeForwarder{}
	svc := newService(st, fw)

	params := monitoringParams()
	params.ModelNames = []string{"gpt-4o", "deepseek-v3", "gemini-pro"}

	_, err := svc.TriggerMonitoring(context.Background(), uuid.New(), params)
	require.NoError(t, err)

	require.Len(t, st.created, 1)
	assert.Equal(t, params.ModelNames, st.created[0].ModelNames,
		"the job row carries every selected model, not just the first")

	require.Len(t, fw.payloads, 1)
	payload, ok := fw.payloads[0].(engine.MonitoringPayload)
	require.True(t, ok)
	assert.Equal(t, params.ModelNames, payload.ModelNames,
		"the engine is asked for every model the user was priced for")
}

func TestTriggerMonitoring_InsufficientBalance_NoRowCreated(t *testing.T) {
	st := newMockStore()
	st.balance = 3 // two models cost 4
	fw := &fakeForwarder{}
	svc := newService(st, fw)

	jobID, err := svc.TriggerMonitoring(context.Background(), uuid.New(), monitoringParams())

	assert.ErrorIs(t, err, trigger.ErrInsufficientCredits)
	assert.Equal(t, uuid.Nil, jobID)
	assert.Empty(t, st.created, "pre-check failure must not create a row")
	assert.Empty(t, fw.payloads, "pre-check failure must not reach the engine")
}

func TestTriggerMonitoring_EngineCreditRejection_DeletesRow(t *testing.T) {
	st := newMockStore()
	fw := &fakeForwarder{err: engine.ErrInsufficientCredits}
	svc := newService(st, fw)

	jobID, err := svc.TriggerMonitoring(context.Background(), uuid.New(), monitoringParams())

	assert.ErrorIs(t, err, trigger.ErrInsufficientCredits)
	assert.Equal(t, uuid.Nil, jobID)
	require.Len(t, st.created, 1, "row is created before the engine call")
	require.Len(t, st.deleted, 1, "engine rejection rolls the row back")
	assert.Equal(t, st.created[0].ID, st.deleted[0])
}

func TestTriggerMonitoring_EngineUnreachable_RowKept(t *testing.T) {
	st := newMockStore()
	fw := &fakeForwarder{err: engine.ErrEngineUnreachable}
	svc := newService(st, fw)

	jobID, err := svc.TriggerMonitoring(context.Background(), uuid.New(), monitoringParams())

	require.NoError(t, err, "delivery failure is not a trigger failure")
	assert.NotEqual(t, uuid.Nil, jobID)
	assert.Empty(t, st.deleted, "row stays queued for out-of-band pickup")
}

// --- Diagnosis ---

func TestTriggerDiagnosis_VerifiesParentOwnership(t *testing.T) {
	st := newMockStore()
	fw := &fakeForwarder{}
	svc := newService(st, fw)

	owner := uuid.New()
	parent := &models.Job{ID: uuid.New(), UserID: owner, Type: models.JobTypeMonitoring, Status: models.JobStatusCompleted}
	st.jobs[parent.ID] = parent

	// Other user cannot diagnose someone else's scan.
	_, err := svc.TriggerDiagnosis(context.Background(), uuid.New(), parent.ID, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Empty(t, fw.payloads)

	// The owner can.
	jobID, err := svc.TriggerDiagnosis(context.Background(), owner, parent.ID, uuid.New())
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, jobID)
	require.Len(t, fw.payloads, 1)
	assert.Equal(t, "diagnosis", fw.payloads[0].Endpoint())
}

func TestTriggerDiagnosis_LinksParentAndResult(t *testing.T) {
	st := newMockStore()
	fw := &fakeForwarder{}
	svc := newService(st, fw)

	owner := uuid.New()
	parent := &models.Job{ID: uuid.New(), UserID: owner, Type: models.JobTypeMonitoring, Status: models.JobStatusCompleted}
	st.jobs[parent.ID] = parent
	resultID := uuid.New()

	jobID, err := svc.TriggerDiagnosis(context.Background(), owner, parent.ID, resultID)
	require.NoError(t, err)

	job := st.jobs[jobID]
	require.NotNil(t, job)
	assert.Equal(t, models.JobTypeDiagnosis, job.Type)
	require.NotNil(t, job.ParentJobID)
	assert.Equal(t, parent.ID, *job.ParentJobID)
	require.NotNil(t, job.ResultID)
	assert.Equal(t, resultID, *job.ResultID)
}

// --- Simulation ---

func TestTriggerSimulation_ReturnsExistingActiveJob(t *testing.T) {
	st := newMockStore()
	fw := &fakeForwarder{}
	svc := newService(st, fw)

	owner := uuid.New()
	diagnosis := &models.Job{ID: uuid.New(), UserID: owner, Type: models.JobTypeDiagnosis, Status: models.JobStatusCompleted}
	st.jobs[diagnosis.ID] = diagnosis
	existing := &models.Job{
		ID:          uuid.New(),
		UserID:      owner,
		Type:        models.JobTypeSimulation,
		Status:      models.JobStatusProcessing,
		ParentJobID: &diagnosis.ID,
	}
	st.activeByChild = existing

	jobID, err := svc.TriggerSimulation(context.Background(), owner, diagnosis.ID)
	require.NoError(t, err)

	assert.Equal(t, existing.ID, jobID, "double-click returns the in-flight job")
	assert.Empty(t, st.created, "no duplicate row")
	assert.Empty(t, fw.payloads, "no duplicate engine call")
}

func TestTriggerSimulation_ForeignDiagnosisNeverRevealsActiveJob(t *testing.T) {
	st := newMockStore()
	fw := &fakeForwarder{}
	svc := newService(st, fw)

	owner := uuid.New()
	diagnosis := &models.Job{ID: uuid.New(), UserID: owner, Type: models.JobTypeDiagnosis, Status: models.JobStatusCompleted}
	st.jobs[diagnosis.ID] = diagnosis
	st.activeByChild = &models.Job{
		ID:          uuid.New(),
		UserID:      owner,
		Type:        models.JobTypeSimulation,
		Status:      models.JobStatusProcessing,
		ParentJobID: &diagnosis.ID,
	}

	jobID, err := svc.TriggerSimulation(context.Background(), uuid.New(), diagnosis.ID)

	assert.ErrorIs(t, err, store.ErrNotFound, "foreign diagnosis is invisible")
	assert.Equal(t, uuid.Nil, jobID, "the owner's in-flight job id must not leak")
	assert.Empty(t, st.created)
	assert.Empty(t, fw.payloads)
}

func TestTriggerSimulation_CreatesWhenNoneActive(t *testing.T) {
	st := newMockStore()
	fw := &fakeForwarder{}
	svc := newService(st, fw)

	owner := uuid.New()
	diagnosis := &models.Job{ID: uuid.New(), UserID: owner, Type: models.JobTypeDiagnosis, Status: models.JobStatusCompleted}
	st.jobs[diagnosis.ID] = diagnosis

	jobID, err := svc.TriggerSimulation(context.Background(), owner, diagnosis.ID)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, jobID)

	require.Len(t, st.created, 1)
	assert.Equal(t, models.JobTypeSimulation, st.created[0].Type)
	require.Len(t, fw.payloads, 1)
	assert.Equal(t, "simulation", fw.payloads[0].Endpoint())
}

func TestTriggerSimulation_EngineCreditRejection_DeletesRow(t *testing.T) {
	st := newMockStore()
	fw := &fakeForwarder{err: engine.ErrInsufficientCredits}
	svc := newService(st, fw)

	owner := uuid.New()
	diagnosis := &models.Job{ID: uuid.New(), UserID: owner, Type: models.JobTypeDiagnosis, Status: models.JobStatusCompleted}
	st.jobs[diagnosis.ID] = diagnosis

	jobID, err := svc.TriggerSimulation(context.Background(), owner, diagnosis.ID)

	assert.ErrorIs(t, err, trigger.ErrInsufficientCredits)
	assert.Equal(t, uuid.Nil, jobID)
	assert.Len(t, st.deleted, 1)
}

func TestTriggerSimulation_WrappedEngineErrorStillRollsBack(t *testing.T) {
	st := newMockStore()
	fw := &fakeForwarder{err: errors.Join(errors.New("status 402"), engine.ErrInsufficientCredits)}
	svc := newService(st, fw)

	owner := uuid.New()
	diagnosis := &models.Job{ID: uuid.New(), UserID: owner, Type: models.JobTypeDiagnosis, Status: models.JobStatusCompleted}
	st.jobs[diagnosis.ID] = diagnosis

	_, err := svc.TriggerSimulation(context.Background(), owner, diagnosis.ID)
	assert.ErrorIs(t, err, trigger.ErrInsufficientCredits)
	assert.Len(t, st.deleted, 1)
}

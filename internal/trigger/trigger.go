// Package trigger sequences "create the job row" → "notify the workflow
// engine". Delivery is best-effort: a created job whose webhook call fails
// stays queued for out-of-band pickup, except when the engine reports
// insufficient credits, in which case the row is deleted again so no
// unfunded job is left behind.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/zhinao/geoscan/internal/cache"
	"github.com/zhinao/geoscan/internal/credits"
	"github.com/zhinao/geoscan/internal/engine"
	"github.com/zhinao/geoscan/internal/store"
	"github.com/zhinao/geoscan/pkg/models"
)

// ErrInsufficientCredits is surfaced both from the local pre-check and from
// the engine's authoritative rejection.
var ErrInsufficientCredits = errors.New("insufficient credits")

const jobStatusCacheTTL = 30 * time.Minute

// MonitoringParams are the user-supplied fields of a monitoring scan.
type MonitoringParams struct {
	BrandName   string
	SearchQuery string
	Competitors []string
	ModelNames  []string // one scan unit per selected AI model
}

// Service creates job rows and forwards them to the workflow engine.
type Service struct {
	store   store.Store
	engine  engine.Forwarder
	credits *credits.Service
	cache   cache.Cache
}

// NewService creates a trigger Service. cache may be nil in tests.
func NewService(st store.Store, fw engine.Forwarder, cr *credits.Service, ca cache.Cache) *Service {
	return &Service{store: st, engine: fw, credits: cr, cache: ca}
}

// TriggerMonitoring creates a queued monitoring job and notifies the engine.
// The job id is returned whenever the row was created, even if the webhook
// call failed (the engine may still pick the row up); only an engine-reported
// credit rejection rolls the row back.
func (s *Service) TriggerMonitoring(ctx context.Context, userID uuid.UUID, params MonitoringParams) (uuid.UUID, error) {
	units := len(params.ModelNames)
	if units == 0 {
		units = 1
	}
	if err := s.precheck(ctx, userID, credits.OpMonitoring, units); err != nil {
		return uuid.Nil, err
	}

	// Nil slices would insert NULL into NOT NULL array columns.
	competitors := params.Competitors
	if competitors == nil {
		competitors = []string{}
	}
	modelNames := params.ModelNames
	if modelNames == nil {
		modelNames = []string{}
	}

	now := time.Now().UTC()
	job := &models.Job{
		ID:          uuid.New(),
		UserID:      userID,
		Type:        models.JobTypeMonitoring,
		Status:      models.JobStatusQueued,
		BrandName:   params.BrandName,
		SearchQuery: params.SearchQuery,
		Competitors: competitors,
		ModelNames:  modelNames,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return uuid.Nil, fmt.Errorf("creating job: %w", err)
	}

	payload := engine.MonitoringPayload{
		JobID:       job.ID,
		BrandName:   params.BrandName,
		SearchQuery: params.SearchQuery,
		Competitors: competitors,
		ModelNames:  modelNames,
	}
	return s.forward(ctx, userID, job.ID, payload)
}

// TriggerDiagnosis creates a queued diagnosis job against a completed scan
// result and notifies the engine. The parent job must belong to the caller.
func (s *Service) TriggerDiagnosis(ctx context.Context, userID uuid.UUID, parentJobID, resultID uuid.UUID) (uuid.UUID, error) {
	if err := s.precheck(ctx, userID, credits.OpDiagnosis, 1); err != nil {
		return uuid.Nil, err
	}

	if _, err := s.store.GetJob(ctx, parentJobID, userID); err != nil {
		return uuid.Nil, fmt.Errorf("parent job: %w", err)
	}

	now := time.Now().UTC()
	job := &models.Job{
		ID:          uuid.New(),
		UserID:      userID,
		Type:        models.JobTypeDiagnosis,
		Status:      models.JobStatusQueued,
		ParentJobID: &parentJobID,
		ResultID:    &resultID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return uuid.Nil, fmt.Errorf("creating job: %w", err)
	}

	payload := engine.DiagnosisPayload{JobID: job.ID, ResultID: resultID}
	return s.forward(ctx, userID, job.ID, payload)
}

// TriggerSimulation creates a queued simulation job for a completed
// diagnosis owned by the caller. If a queued or processing simulation
// already exists for the same diagnosis, its id is returned instead of
// creating a duplicate.
func (s *Service) TriggerSimulation(ctx context.Context, userID uuid.UUID, diagnosisJobID uuid.UUID) (uuid.UUID, error) {
	// Ownership first: the idempotency lookup is not user-scoped.
	if _, err := s.store.GetJob(ctx, diagnosisJobID, userID); err != nil {
		return uuid.Nil, fmt.Errorf("diagnosis job: %w", err)
	}

	existing, err := s.store.FindActiveJobByParent(ctx, diagnosisJobID, models.JobTypeSimulation)
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return uuid.Nil, fmt.Errorf("checking for active simulation: %w", err)
	}

	if err := s.precheck(ctx, userID, credits.OpSimulation, 1); err != nil {
		return uuid.Nil, err
	}

	now := time.Now().UTC()
	job := &models.Job{
		ID:          uuid.New(),
		UserID:      userID,
		Type:        models.JobTypeSimulation,
		Status:      models.JobStatusQueued,
		ParentJobID: &diagnosisJobID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return uuid.Nil, fmt.Errorf("creating job: %w", err)
	}

	payload := engine.SimulationPayload{JobID: job.ID, DiagnosisID: diagnosisJobID}
	return s.forward(ctx, userID, job.ID, payload)
}

// precheck fails fast when the cached balance cannot cover the operation.
// Optimistic only; the engine performs the authoritative deduction.
func (s *Service) precheck(ctx context.Context, userID uuid.UUID, op credits.Operation, units int) error {
	ok, err := s.credits.Affordable(ctx, userID, op, units)
	if err != nil {
		return fmt.Errorf("checking balance: %w", err)
	}
	if !ok {
		return ErrInsufficientCredits
	}
	return nil
}

// forward notifies the engine about a freshly created job. Engine-reported
// credit rejection triggers a compensating delete of the row; any other
// failure keeps the row queued and only logs a warning.
func (s *Service) forward(ctx context.Context, userID, jobID uuid.UUID, payload engine.Payload) (uuid.UUID, error) {
	err := s.engine.Forward(ctx, userID, payload)
	switch {
	case err == nil:
		if s.cache != nil {
			_ = s.cache.SetJobStatus(ctx, jobID, models.JobStatusQueued, jobStatusCacheTTL)
		}
		return jobID, nil

	case errors.Is(err, engine.ErrInsufficientCredits):
		if delErr := s.store.DeleteJob(ctx, jobID, userID); delErr != nil {
			slog.Error("compensating job delete failed",
				"job_id", jobID, "error", delErr)
		}
		if s.cache != nil {
			_ = s.cache.InvalidateBalance(ctx, userID)
		}
		return uuid.Nil, ErrInsufficientCredits

	default:
		slog.Warn("engine forward failed, job left queued",
			"job_id", jobID, "endpoint", payload.Endpoint(), "error", err)
		return jobID, nil
	}
}

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/zhinao/geoscan/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")
var ErrInvalidTransition = errors.New("invalid job status transition")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, userID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, userID uuid.UUID) error

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*models.Job, int, error)
	DeleteJob(ctx context.Context, id uuid.UUID, userID uuid.UUID) error
	FindActiveJobByParent(ctx context.Context, parentJobID uuid.UUID, jobType string) (*models.Job, error)
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error

	CreateResult(ctx context.Context, result *models.Result) error
	GetResult(ctx context.Context, id uuid.UUID) (*models.Result, error)
	ListResultsByJob(ctx context.Context, jobID uuid.UUID) ([]*models.Result, error)
	UpdateResultReport(ctx context.Context, id uuid.UUID, userID uuid.UUID, body string) error

	CreateLedgerEntry(ctx context.Context, entry *models.LedgerEntry) error
	GetLatestBalance(ctx context.Context, userID uuid.UUID) (int, error)
	ListLedgerEntries(ctx context.Context, userID uuid.UUID, page, limit int) ([]*models.LedgerEntry, int, error)
	SumDeductionsSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error)

	CreateTopUpRequest(ctx context.Context, req *models.TopUpRequest) error
	ListTopUpRequests(ctx context.Context, userID uuid.UUID) ([]*models.TopUpRequest, error)
}

type JobFilter struct {
	UserID uuid.UUID
	Type   string
	Status string
	Page   int
	Limit  int
}

type jobUpdateParams struct {
	ErrorMessage *string
}

type JobUpdateOption func(*jobUpdateParams)

func WithErrorMessage(msg string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.ErrorMessage = &msg
	}
}

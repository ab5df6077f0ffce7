package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/zhinao/geoscan/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Users ---

func (s *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, name, created_at, updated_at FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, user_id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.ID, key.UserID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context, userID uuid.UUID) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE user_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`, id, userID)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Jobs ---

const jobColumns = `id, user_id, type, status, brand_name, search_query, competitors,
	model_names, parent_job_id, result_id, error_message, created_at, updated_at`

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	err := row.Scan(&j.ID, &j.UserID, &j.Type, &j.Status, &j.BrandName, &j.SearchQuery,
		&j.Competitors, &j.ModelNames, &j.ParentJobID, &j.ResultID, &j.ErrorMessage,
		&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, user_id, type, status, brand_name, search_query, competitors,
		   model_names, parent_job_id, result_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		job.ID, job.UserID, job.Type, job.Status, job.BrandName, job.SearchQuery,
		job.Competitors, job.ModelNames, job.ParentJobID, job.ResultID,
		job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1 AND user_id = $2`, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]*models.Job, int, error) {
	conditions := []string{"user_id = $1"}
	args := []any{filter.UserID}
	argIdx := 2

	if filter.Type != "" {
		conditions = append(conditions, fmt.Sprintf("type = $%d", argIdx))
		args = append(args, filter.Type)
		argIdx++
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, filter.Status)
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM jobs WHERE " + where
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	dataQuery := fmt.Sprintf(
		`SELECT `+jobColumns+` FROM jobs WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, total, rows.Err()
}

func (s *PostgresStore) DeleteJob(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM jobs WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FindActiveJobByParent(ctx context.Context, parentJobID uuid.UUID, jobType string) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs
		 WHERE parent_job_id = $1 AND type = $2 AND status IN ('queued', 'processing')
		 ORDER BY created_at DESC LIMIT 1`, parentJobID, jobType))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find active job by parent: %w", err)
	}
	return j, nil
}

// validTransitions encodes the forward-only job lifecycle. The API server
// only writes "queued"; the remaining transitions belong to the workflow
// engine and this table guards against regressions.
var validTransitions = map[string][]string{
	models.JobStatusQueued:     {models.JobStatusProcessing, models.JobStatusFailed},
	models.JobStatusProcessing: {models.JobStatusCompleted, models.JobStatusFailed},
}

// transitionSources returns the statuses allowed to move to the target.
func transitionSources(target string) []string {
	sources := []string{}
	for from, allowed := range validTransitions {
		for _, to := range allowed {
			if to == target {
				sources = append(sources, from)
			}
		}
	}
	return sources
}

// UpdateJobStatus applies a forward-only status transition. The transition
// guard lives in the UPDATE predicate itself so concurrent engine writes
// cannot both pass validation.
func (s *PostgresStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error {
	params := &jobUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}

	now := time.Now().UTC()
	query := `UPDATE jobs SET status = $2, updated_at = $3`
	args := []any{id, status, now}
	argIdx := 4

	if params.ErrorMessage != nil {
		query += fmt.Sprintf(", error_message = $%d", argIdx)
		args = append(args, *params.ErrorMessage)
		argIdx++
	}

	query += fmt.Sprintf(" WHERE id = $1 AND status = ANY($%d)", argIdx)
	args = append(args, transitionSources(status))

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Nothing matched: the row is missing or the transition is illegal.
	var currentStatus string
	err = s.pool.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1`, id).Scan(&currentStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get job status: %w", err)
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, currentStatus, status)
}

// --- Results ---

const resultColumns = `id, job_id, model_name, avs_score, rank_position, sentiment_score,
	raw_output, root_cause, missing_capabilities, optimized_content, predicted_change,
	report_body, created_at, updated_at`

func scanResult(row pgx.Row) (*models.Result, error) {
	var r models.Result
	err := row.Scan(&r.ID, &r.JobID, &r.ModelName, &r.AVSScore, &r.RankPosition,
		&r.SentimentScore, &r.RawOutput, &r.RootCause, &r.MissingCapabilities,
		&r.OptimizedContent, &r.PredictedChange, &r.ReportBody, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) CreateResult(ctx context.Context, result *models.Result) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO results (id, job_id, model_name, avs_score, rank_position, sentiment_score,
		   raw_output, root_cause, missing_capabilities, optimized_content, predicted_change,
		   report_body, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		result.ID, result.JobID, result.ModelName, result.AVSScore, result.RankPosition,
		result.SentimentScore, result.RawOutput, result.RootCause, result.MissingCapabilities,
		result.OptimizedContent, result.PredictedChange, result.ReportBody,
		result.CreatedAt, result.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create result: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetResult(ctx context.Context, id uuid.UUID) (*models.Result, error) {
	r, err := scanResult(s.pool.QueryRow(ctx,
		`SELECT `+resultColumns+` FROM results WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get result: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) ListResultsByJob(ctx context.Context, jobID uuid.UUID) ([]*models.Result, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+resultColumns+` FROM results WHERE job_id = $1 ORDER BY created_at ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list results by job: %w", err)
	}
	defer rows.Close()

	var results []*models.Result
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *PostgresStore) UpdateResultReport(ctx context.Context, id uuid.UUID, userID uuid.UUID, body string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE results SET report_body = $3, updated_at = NOW()
		 WHERE id = $1 AND job_id IN (SELECT id FROM jobs WHERE user_id = $2)`,
		id, userID, body)
	if err != nil {
		return fmt.Errorf("update result report: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Credit Ledger ---

func (s *PostgresStore) CreateLedgerEntry(ctx context.Context, entry *models.LedgerEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO credit_ledger (id, user_id, amount, balance_after, type, job_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.UserID, entry.Amount, entry.BalanceAfter, entry.Type,
		entry.JobID, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("create ledger entry: %w", err)
	}
	return nil
}

// GetLatestBalance returns the balance snapshot of the newest ledger entry.
// A user with no entries has balance 0.
func (s *PostgresStore) GetLatestBalance(ctx context.Context, userID uuid.UUID) (int, error) {
	var balance int
	err := s.pool.QueryRow(ctx,
		`SELECT balance_after FROM credit_ledger
		 WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`, userID,
	).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get latest balance: %w", err)
	}
	return balance, nil
}

func (s *PostgresStore) ListLedgerEntries(ctx context.Context, userID uuid.UUID, page, limit int) ([]*models.LedgerEntry, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM credit_ledger WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count ledger entries: %w", err)
	}

	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, amount, balance_after, type, job_id, created_at
		 FROM credit_ledger WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Amount, &e.BalanceAfter, &e.Type,
			&e.JobID, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, total, rows.Err()
}

// SumDeductionsSince returns the total magnitude of deduction entries since
// the given instant. Used for the monthly free-quota view.
func (s *PostgresStore) SumDeductionsSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	var used int
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(ABS(amount)), 0) FROM credit_ledger
		 WHERE user_id = $1 AND type = 'deduction' AND created_at >= $2`, userID, since,
	).Scan(&used)
	if err != nil {
		return 0, fmt.Errorf("sum deductions: %w", err)
	}
	return used, nil
}

// --- Top-up Requests ---

func (s *PostgresStore) CreateTopUpRequest(ctx context.Context, req *models.TopUpRequest) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO topup_requests (id, user_id, amount, status, note, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		req.ID, req.UserID, req.Amount, req.Status, req.Note, req.CreatedAt)
	if err != nil {
		return fmt.Errorf("create topup request: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListTopUpRequests(ctx context.Context, userID uuid.UUID) ([]*models.TopUpRequest, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, amount, status, note, created_at
		 FROM topup_requests WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list topup requests: %w", err)
	}
	defer rows.Close()

	var reqs []*models.TopUpRequest
	for rows.Next() {
		var r models.TopUpRequest
		if err := rows.Scan(&r.ID, &r.UserID, &r.Amount, &r.Status, &r.Note, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan topup request: %w", err)
		}
		reqs = append(reqs, &r)
	}
	return reqs, rows.Err()
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

const (
	JobTypeMonitoring = "monitoring"
	JobTypeDiagnosis  = "diagnosis"
	JobTypeSimulation = "simulation"
)

// Job is one user-requested unit of asynchronous work. The API server only
// ever writes status "queued"; all later transitions are written by the
// external workflow engine and are forward-only
// (queued → processing → completed|failed).
type Job struct {
	ID           uuid.UUID  `db:"id"            json:"id"`
	UserID       uuid.UUID  `db:"user_id"       json:"user_id"`
	Type         string     `db:"type"          json:"type"`
	Status       string     `db:"status"        json:"status"`
	BrandName    string     `db:"brand_name"    json:"brand_name,omitempty"`
	SearchQuery  string     `db:"search_query"  json:"search_query,omitempty"`
	Competitors  []string   `db:"competitors"   json:"competitors,omitempty"`
	ModelNames   []string   `db:"model_names"   json:"model_names,omitempty"`
	ParentJobID  *uuid.UUID `db:"parent_job_id" json:"parent_job_id,omitempty"`
	ResultID     *uuid.UUID `db:"result_id"     json:"result_id,omitempty"`
	ErrorMessage *string    `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time  `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"    json:"updated_at"`
}

// Terminal reports whether the status can no longer change.
func (j *Job) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

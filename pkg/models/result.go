package models

import (
	"time"

	"github.com/google/uuid"
)

// Result is the output artifact the workflow engine attaches to a job, one
// row per AI model scanned. Every analysis field is nullable: until the
// owning job completes, consumers must tolerate partial or absent values.
// ReportBody is the single field a user may overwrite.
type Result struct {
	ID                  uuid.UUID `db:"id"                   json:"id"`
	JobID               uuid.UUID `db:"job_id"               json:"job_id"`
	ModelName           string    `db:"model_name"           json:"model_name"`
	AVSScore            *int      `db:"avs_score"            json:"avs_score,omitempty"`
	RankPosition        *int      `db:"rank_position"        json:"rank_position,omitempty"` // nil = unranked
	SentimentScore      *int      `db:"sentiment_score"      json:"sentiment_score,omitempty"`
	RawOutput           *string   `db:"raw_output"           json:"raw_output,omitempty"`
	RootCause           *string   `db:"root_cause"           json:"root_cause,omitempty"`
	MissingCapabilities []string  `db:"missing_capabilities" json:"missing_capabilities,omitempty"`
	OptimizedContent    *string   `db:"optimized_content"    json:"optimized_content,omitempty"`
	PredictedChange     *string   `db:"predicted_change"     json:"predicted_change,omitempty"`
	ReportBody          *string   `db:"report_body"          json:"report_body,omitempty"`
	CreatedAt           time.Time `db:"created_at"           json:"created_at"`
	UpdatedAt           time.Time `db:"updated_at"           json:"updated_at"`
}

package engine

import (
	"fmt"

	"github.com/google/uuid"
)

// Endpoint names accepted by the workflow engine. Anything else is rejected
// before a byte leaves this process.
const (
	EndpointMonitoring = "monitoring"
	EndpointDiagnosis  = "diagnosis"
	EndpointSimulation = "simulation"
)

var allowedEndpoints = map[string]bool{
	EndpointMonitoring: true,
	EndpointDiagnosis:  true,
	EndpointSimulation: true,
}

// AllowedEndpoint reports whether name is on the forwarding allow-list.
func AllowedEndpoint(name string) bool {
	return allowedEndpoints[name]
}

// Payload is the tagged union of request bodies forwarded to the engine.
// Each variant carries exactly the identifiers and scalars its endpoint
// needs — never tokens, secrets, or full form payloads.
type Payload interface {
	Endpoint() string
	Validate() error
	fields() map[string]any
}

// MonitoringPayload triggers a visibility scan for a brand/query pair,
// one scan unit per selected AI model.
type MonitoringPayload struct {
	JobID       uuid.UUID
	BrandName   string
	SearchQuery string
	Competitors []string
	ModelNames  []string
}

func (p MonitoringPayload) Endpoint() string { return EndpointMonitoring }

func (p MonitoringPayload) Validate() error {
	if p.JobID == uuid.Nil {
		return fmt.Errorf("%w: job_id", ErrMissingField)
	}
	if p.BrandName == "" {
		return fmt.Errorf("%w: brand_name", ErrMissingField)
	}
	if p.SearchQuery == "" {
		return fmt.Errorf("%w: search_query", ErrMissingField)
	}
	return nil
}

func (p MonitoringPayload) fields() map[string]any {
	competitors := make([]string, 0, len(p.Competitors))
	for _, c := range p.Competitors {
		competitors = append(competitors, sanitizeValue(c))
	}
	modelNames := make([]string, 0, len(p.ModelNames))
	for _, m := range p.ModelNames {
		modelNames = append(modelNames, sanitizeValue(m))
	}
	return map[string]any{
		"job_id":       p.JobID.String(),
		"brand_name":   sanitizeValue(p.BrandName),
		"search_query": sanitizeValue(p.SearchQuery),
		"competitors":  competitors,
		"model_names":  modelNames,
	}
}

// DiagnosisPayload asks the engine to diagnose one completed scan result.
type DiagnosisPayload struct {
	JobID    uuid.UUID // the diagnosis job just created
	ResultID uuid.UUID // the completed scan result to diagnose
}

func (p DiagnosisPayload) Endpoint() string { return EndpointDiagnosis }

func (p DiagnosisPayload) Validate() error {
	if p.JobID == uuid.Nil {
		return fmt.Errorf("%w: job_id", ErrMissingField)
	}
	if p.ResultID == uuid.Nil {
		return fmt.Errorf("%w: result_id", ErrMissingField)
	}
	return nil
}

func (p DiagnosisPayload) fields() map[string]any {
	return map[string]any{
		"job_id":    p.JobID.String(),
		"result_id": p.ResultID.String(),
	}
}

// SimulationPayload asks the engine for a what-if strategy simulation on a
// completed diagnosis.
type SimulationPayload struct {
	JobID       uuid.UUID // the simulation job just created
	DiagnosisID uuid.UUID // the completed diagnosis job it builds on
}

func (p SimulationPayload) Endpoint() string { return EndpointSimulation }

func (p SimulationPayload) Validate() error {
	if p.JobID == uuid.Nil {
		return fmt.Errorf("%w: job_id", ErrMissingField)
	}
	if p.DiagnosisID == uuid.Nil {
		return fmt.Errorf("%w: diagnosis_id", ErrMissingField)
	}
	return nil
}

func (p SimulationPayload) fields() map[string]any {
	return map[string]any{
		"job_id":       p.JobID.String(),
		"diagnosis_id": p.DiagnosisID.String(),
	}
}

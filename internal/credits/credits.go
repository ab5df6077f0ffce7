// Package credits implements cost computation and the affordability
// pre-check that gates job submission. The pre-check is optimistic: the
// authoritative deduction happens atomically in the workflow engine when it
// processes the job, so a race between two tabs can momentarily overspend.
// That is accepted at this layer.
package credits

import (
	"fmt"

	"github.com/zhinao/geoscan/internal/config"
)

// Operation identifies a billable job type.
type Operation string

const (
	OpMonitoring Operation = "monitoring"
	OpDiagnosis  Operation = "diagnosis"
	OpSimulation Operation = "simulation"
)

// PriceTable holds the per-operation credit prices. Monitoring is billed per
// selected AI model; diagnosis and simulation are flat.
type PriceTable struct {
	MonitoringPerModel int
	Diagnosis          int
	Simulation         int
}

// NewPriceTable builds a PriceTable from config.
func NewPriceTable(cfg config.CreditsConfig) PriceTable {
	return PriceTable{
		MonitoringPerModel: cfg.MonitoringPerModel,
		Diagnosis:          cfg.Diagnosis,
		Simulation:         cfg.Simulation,
	}
}

// Cost returns the credit cost of an operation. unitCount is the number of
// AI models for monitoring and is ignored for flat-priced operations.
// unitCount below 1 is treated as 1.
func (p PriceTable) Cost(op Operation, unitCount int) (int, error) {
	if unitCount < 1 {
		unitCount = 1
	}
	switch op {
	case OpMonitoring:
		return p.MonitoringPerModel * unitCount, nil
	case OpDiagnosis:
		return p.Diagnosis, nil
	case OpSimulation:
		return p.Simulation, nil
	default:
		return 0, fmt.Errorf("unknown operation %q", op)
	}
}

// Affordable reports whether balance covers the operation's cost.
func (p PriceTable) Affordable(balance int, op Operation, unitCount int) (bool, error) {
	cost, err := p.Cost(op, unitCount)
	if err != nil {
		return false, err
	}
	return balance >= cost, nil
}

// FreeRemaining is the unconsumed part of the monthly free quota. Never
// negative.
func FreeRemaining(quota, used int) int {
	if used >= quota {
		return 0
	}
	return quota - used
}

// PaidPortion is the part of the balance beyond the remaining free quota.
// Display-only; never feed it back as an authoritative balance. Never
// negative.
func PaidPortion(balance, freeRemaining int) int {
	if balance <= freeRemaining {
		return 0
	}
	return balance - freeRemaining
}

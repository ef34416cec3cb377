// Package orchestrator implements the dispatch state machine that takes
// an inbound task descriptor, classifies it, invokes the matching
// assessment procedure, and finalizes the result envelope.
//
// The orchestrator is stateless: nothing is retained between calls, so
// concurrent dispatches share no mutable state. Classification is a
// case-insensitive substring match on the task type; unknown types
// terminate in an unhandled state with an empty envelope rather than an
// error.
package orchestrator

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/riskplane/riskplane/internal/agents"
	"github.com/riskplane/riskplane/pkg/models"
	"github.com/rs/zerolog/log"
)

// state is one step of a dispatch walk.
type state int

const (
	stateStart state = iota
	stateRouted
	stateDispatched
	stateFinalized
)

// fraudPayload is the fraud task payload: the check request plus
// optional customer history context.
type fraudPayload struct {
	models.FraudCheckRequest
	CustomerHistory *models.CustomerHistory `json:"customer_history,omitempty"`
}

// Orchestrator routes task descriptors to assessment procedures.
type Orchestrator struct {
	credit *agents.CreditAgent
	fraud  *agents.FraudAgent
}

// New creates an orchestrator over the two assessment procedures.
func New(credit *agents.CreditAgent, fraud *agents.FraudAgent) *Orchestrator {
	return &Orchestrator{credit: credit, fraud: fraud}
}

// RouteAndProcess walks one task through the state machine and returns
// the finalized envelope. It never returns an error: unroutable tasks
// produce the empty envelope, and procedure-level failures surface as
// degraded decisions inside a handled envelope.
func (o *Orchestrator) RouteAndProcess(ctx context.Context, task models.TaskDescriptor) models.Envelope {
	var envelope models.Envelope
	var kind models.TaskKind

	for st := stateStart; st != stateFinalized; {
		switch st {
		case stateStart:
			kind = classify(task.TaskType)
			if kind == "" {
				log.Warn().Str("task_type", task.TaskType).Msg("No agent for task type, returning empty envelope")
				return models.Envelope{}
			}
			st = stateRouted

		case stateRouted:
			// Dispatch is synchronous with no retries at this layer.
			switch kind {
			case models.TaskKindCredit:
				var req models.CreditApplicationRequest
				if err := json.Unmarshal(task.Payload, &req); err != nil {
					log.Warn().Err(err).Msg("Malformed credit payload, returning empty envelope")
					return models.Envelope{}
				}
				envelope.Credit = o.credit.Assess(ctx, req)
			case models.TaskKindFraud:
				var payload fraudPayload
				if err := json.Unmarshal(task.Payload, &payload); err != nil {
					log.Warn().Err(err).Msg("Malformed fraud payload, returning empty envelope")
					return models.Envelope{}
				}
				envelope.Fraud = o.fraud.Check(ctx, payload.FraudCheckRequest, payload.CustomerHistory)
			}
			st = stateDispatched

		case stateDispatched:
			// Finalization adds nothing procedure-specific.
			envelope.Handled = true
			envelope.Kind = kind
			st = stateFinalized
		}
	}

	return envelope
}

// classify maps a task type label to a task kind. The match is a
// case-insensitive substring test so "credit_assessment", "CREDIT", and
// "credit" all select the credit agent. Same input always selects the
// same procedure.
func classify(taskType string) models.TaskKind {
	t := strings.ToLower(taskType)
	switch {
	case strings.Contains(t, string(models.TaskKindCredit)):
		return models.TaskKindCredit
	case strings.Contains(t, string(models.TaskKindFraud)):
		return models.TaskKindFraud
	default:
		return ""
	}
}

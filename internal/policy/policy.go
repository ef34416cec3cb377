// Package policy centralizes every decisioning threshold so the same
// boundary is consulted by the agents (case creation, score bands) and
// the feedback aggregator (classification boundary for metrics).
package policy

import (
	"github.com/riskplane/riskplane/pkg/models"
)

// DecisionMode selects how an oracle verdict is applied.
type DecisionMode string

const (
	// TrustOracle uses the oracle's own decision/action field as-is.
	TrustOracle DecisionMode = "trust-oracle"
	// RecomputeFromScore derives the decision/action deterministically
	// from the returned numeric score against the documented bands.
	RecomputeFromScore DecisionMode = "recompute-from-score"
)

// Policy is the single source of truth for thresholds. One value is
// constructed at startup and injected into every component that needs
// a boundary; nothing else may restate these numbers.
type Policy struct {
	// FraudCaseThreshold: probabilities strictly above this open an
	// investigation case, and the aggregator classifies predictions
	// against the same boundary.
	FraudCaseThreshold float64

	// Credit score bands: > ApproveAbove auto-approves,
	// < RejectBelow auto-rejects, between them is manual review.
	CreditApproveAbove int
	CreditRejectBelow  int

	// Fraud probability bands: > BlockAbove blocks, >= VerifyAbove
	// requests verification, below that approves with monitoring.
	FraudBlockAbove  float64
	FraudVerifyAbove float64

	// Promotion thresholds on accuracy.
	CreditPromoteAbove float64
	FraudPromoteAbove  float64

	Mode DecisionMode
}

// Default returns the production policy.
func Default() Policy {
	return Policy{
		FraudCaseThreshold: 60,
		CreditApproveAbove: 750,
		CreditRejectBelow:  300,
		FraudBlockAbove:    90,
		FraudVerifyAbove:   60,
		CreditPromoteAbove: 0.75,
		FraudPromoteAbove:  0.85,
		Mode:               TrustOracle,
	}
}

// WithMode returns a copy of the policy with the given decision mode.
// Unknown mode strings fall back to TrustOracle.
func (p Policy) WithMode(mode string) Policy {
	switch DecisionMode(mode) {
	case RecomputeFromScore:
		p.Mode = RecomputeFromScore
	default:
		p.Mode = TrustOracle
	}
	return p
}

// RequiresCase reports whether a fraud probability opens an
// investigation case.
func (p Policy) RequiresCase(probability float64) bool {
	return probability > p.FraudCaseThreshold
}

// CreditDecisionForScore maps a risk score to its band.
func (p Policy) CreditDecisionForScore(score int) models.CreditOutcome {
	switch {
	case score > p.CreditApproveAbove:
		return models.CreditApproved
	case score < p.CreditRejectBelow:
		return models.CreditRejected
	default:
		return models.CreditManualReview
	}
}

// FraudActionForProbability maps a fraud probability to its band.
func (p Policy) FraudActionForProbability(probability float64) models.FraudAction {
	switch {
	case probability > p.FraudBlockAbove:
		return models.ActionBlock
	case probability >= p.FraudVerifyAbove:
		return models.ActionVerify
	default:
		return models.ActionApprove
	}
}

// Promotes reports whether an accuracy value clears the promotion bar
// for the given agent type.
func (p Policy) Promotes(agent models.AgentType, accuracy float64) bool {
	if agent == models.AgentFraud {
		return accuracy > p.FraudPromoteAbove
	}
	return accuracy > p.CreditPromoteAbove
}

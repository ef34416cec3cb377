// Package agents implements the assessment procedures: domain-specific
// wrappers around the decision oracle that enforce a response schema,
// apply the threshold policy, and always produce a usable decision.
package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/riskplane/riskplane/internal/oracle"
	"github.com/riskplane/riskplane/internal/policy"
	"github.com/riskplane/riskplane/pkg/models"
	"github.com/rs/zerolog/log"
)

const creditSystemPrompt = `You are an expert credit risk assessment agent for a financial institution.

Your responsibilities:
1. Analyze credit applications using traditional and alternative data
2. Calculate risk scores (0-1000, where 1000 is lowest risk)
3. Provide clear explanations for your decisions
4. Identify key risk factors and positive indicators

Decision Rules:
- Score >750: Auto-approve
- Score 300-750: Manual review
- Score <300: Auto-reject

Always provide:
1. Final risk score
2. Decision (approved/rejected/manual_review)
3. Confidence level (0-1)
4. Top 3 positive factors
5. Top 3 risk factors
`

// creditResponse is the fixed schema the oracle must answer with.
type creditResponse struct {
	RiskScore       int      `json:"risk_score"`
	Decision        string   `json:"decision"`
	Confidence      float64  `json:"confidence"`
	PositiveFactors []string `json:"positive_factors"`
	RiskFactors     []string `json:"risk_factors"`
	Reasoning       string   `json:"reasoning"`
}

// CreditAgent assesses credit applications through the decision oracle.
type CreditAgent struct {
	oracle oracle.Client
	policy policy.Policy
}

// NewCreditAgent creates a credit assessment agent.
func NewCreditAgent(client oracle.Client, pol policy.Policy) *CreditAgent {
	return &CreditAgent{oracle: client, policy: pol}
}

// Assess runs one application through the oracle and returns a
// normalized decision. An unparseable or failed oracle response yields
// the fixed degraded-mode decision; Assess never returns an error.
func (a *CreditAgent) Assess(ctx context.Context, req models.CreditApplicationRequest) *models.CreditDecision {
	prompt := a.buildPrompt(req)

	var result oracle.Result[creditResponse]
	raw, err := a.oracle.Complete(ctx, creditSystemPrompt, prompt)
	if err != nil {
		result = oracle.Result[creditResponse]{Raw: raw}
	} else {
		result = oracle.Parse[creditResponse](raw)
	}

	decision := &models.CreditDecision{
		ApplicationID: uuid.New().String(),
		CustomerID:    req.CustomerID,
		AgentVersion:  models.AgentVersion,
		CreatedAt:     time.Now().UTC(),
	}

	if !result.Parsed {
		log.Warn().Str("customer", req.CustomerID).Msg("Credit oracle response unparseable, using fallback decision")
		decision.RiskScore = 500
		decision.Decision = models.CreditManualReview
		decision.Confidence = 0.5
		decision.PositiveFactors = []string{"Requires manual review"}
		decision.RiskFactors = []string{"Unable to parse response"}
		decision.Reasoning = "System error - manual review required"
		decision.Degraded = true
		return decision
	}

	parsed := result.Value
	decision.RiskScore = clampInt(parsed.RiskScore, 0, 1000)
	decision.Confidence = clampFloat(parsed.Confidence, 0, 1)
	decision.PositiveFactors = parsed.PositiveFactors
	decision.RiskFactors = parsed.RiskFactors
	decision.Reasoning = parsed.Reasoning

	switch a.policy.Mode {
	case policy.RecomputeFromScore:
		decision.Decision = a.policy.CreditDecisionForScore(decision.RiskScore)
	default:
		decision.Decision = normalizeCreditOutcome(parsed.Decision)
	}

	log.Info().
		Str("application", decision.ApplicationID).
		Str("customer", req.CustomerID).
		Int("risk_score", decision.RiskScore).
		Str("decision", string(decision.Decision)).
		Msg("Credit assessment completed")

	return decision
}

func (a *CreditAgent) buildPrompt(req models.CreditApplicationRequest) string {
	bureauScore := "N/A"
	if req.CreditBureauScore != nil {
		bureauScore = fmt.Sprintf("%d", *req.CreditBureauScore)
	}

	utilityScore, rentHistory := "N/A", "N/A"
	if req.AlternativeData != nil {
		if req.AlternativeData.UtilityPaymentScore != "" {
			utilityScore = req.AlternativeData.UtilityPaymentScore
		}
		if req.AlternativeData.RentPaymentHistory != "" {
			rentHistory = req.AlternativeData.RentPaymentHistory
		}
	}

	return fmt.Sprintf(`
Analyze this credit application:

Customer ID: %s
Requested Amount: $%.2f
Loan Purpose: %s
Employment Status: %s
Annual Income: $%.2f
Credit Bureau Score: %s

Alternative Data:
- Utility Payment Score: %s
- Rent Payment History: %s

Provide your assessment in JSON format:
{
    "risk_score": <0-1000>,
    "decision": "<approved/rejected/manual_review>",
    "confidence": <0.0-1.0>,
    "positive_factors": ["factor1", "factor2", "factor3"],
    "risk_factors": ["factor1", "factor2", "factor3"],
    "reasoning": "Brief explanation"
}
`, req.CustomerID, req.RequestedAmount, req.LoanPurpose, req.EmploymentStatus,
		req.AnnualIncome, bureauScore, utilityScore, rentHistory)
}

// normalizeCreditOutcome maps the oracle's decision string onto the
// enum, defaulting to manual review for anything unrecognized.
func normalizeCreditOutcome(s string) models.CreditOutcome {
	switch models.CreditOutcome(strings.ToLower(strings.TrimSpace(s))) {
	case models.CreditApproved:
		return models.CreditApproved
	case models.CreditRejected:
		return models.CreditRejected
	default:
		return models.CreditManualReview
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

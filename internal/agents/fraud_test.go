package agents_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/riskplane/riskplane/internal/agents"
	"github.com/riskplane/riskplane/internal/policy"
	"github.com/riskplane/riskplane/pkg/models"
)

func fraudRequest() models.FraudCheckRequest {
	return models.FraudCheckRequest{
		TransactionID: "txn_1",
		CustomerID:    "cust_1",
		Amount:        1299.99,
		MerchantID:    "merch_electronics",
	}
}

func TestCheck_ParsesOracleResponse(t *testing.T) {
	o := &stubOracle{response: `{
		"fraud_probability": 85.5,
		"risk_level": "high",
		"action": "verify",
		"anomalies": ["amount 10x above average", "new device"],
		"reasoning": "Pattern break"
	}`}
	agent := agents.NewFraudAgent(o, policy.Default())

	d := agent.Check(context.Background(), fraudRequest(), nil)

	if d.Degraded {
		t.Fatal("Check() returned degraded decision for a valid response")
	}
	if d.FraudProbability != 85.5 {
		t.Errorf("FraudProbability = %v, want 85.5", d.FraudProbability)
	}
	if d.RiskLevel != models.RiskHigh {
		t.Errorf("RiskLevel = %q, want high", d.RiskLevel)
	}
	if d.Action != models.ActionVerify {
		t.Errorf("Action = %q, want verify", d.Action)
	}
	if d.TransactionID != "txn_1" {
		t.Errorf("TransactionID = %q, want txn_1", d.TransactionID)
	}
	if d.CaseID == "" {
		t.Error("CaseID not assigned")
	}
}

func TestCheck_FallbackOnOracleError(t *testing.T) {
	o := &stubOracle{err: errors.New("timeout")}
	agent := agents.NewFraudAgent(o, policy.Default())

	d := agent.Check(context.Background(), fraudRequest(), nil)

	if !d.Degraded {
		t.Fatal("Check() should mark decision degraded on oracle error")
	}
	if d.FraudProbability != 50.0 {
		t.Errorf("fallback FraudProbability = %v, want 50", d.FraudProbability)
	}
	if d.RiskLevel != models.RiskMedium {
		t.Errorf("fallback RiskLevel = %q, want medium", d.RiskLevel)
	}
	if d.Action != models.ActionFlag {
		t.Errorf("fallback Action = %q, want flag", d.Action)
	}
	if d.Reasoning != "System error - flagged for manual review" {
		t.Errorf("fallback Reasoning = %q", d.Reasoning)
	}
}

func TestCheck_ProbabilityClamped(t *testing.T) {
	o := &stubOracle{response: `{"fraud_probability": 250, "risk_level": "critical", "action": "block", "reasoning": "x"}`}
	agent := agents.NewFraudAgent(o, policy.Default())

	d := agent.Check(context.Background(), fraudRequest(), nil)

	if d.FraudProbability != 100 {
		t.Errorf("FraudProbability = %v, want clamped 100", d.FraudProbability)
	}
}

func TestCheck_RecomputeModeDerivesAction(t *testing.T) {
	// Oracle says approve but 95% probability sits in the block band.
	o := &stubOracle{response: `{"fraud_probability": 95, "risk_level": "critical", "action": "approve", "reasoning": "x"}`}
	pol := policy.Default().WithMode(string(policy.RecomputeFromScore))
	agent := agents.NewFraudAgent(o, pol)

	d := agent.Check(context.Background(), fraudRequest(), nil)

	if d.Action != models.ActionBlock {
		t.Errorf("Action = %q, want block from probability band", d.Action)
	}
}

func TestCheck_UnknownFieldsNormalized(t *testing.T) {
	o := &stubOracle{response: `{"fraud_probability": 30, "risk_level": "severe", "action": "escalate", "reasoning": "x"}`}
	agent := agents.NewFraudAgent(o, policy.Default())

	d := agent.Check(context.Background(), fraudRequest(), nil)

	if d.RiskLevel != models.RiskMedium {
		t.Errorf("RiskLevel = %q, want medium for unknown level", d.RiskLevel)
	}
	if d.Action != models.ActionFlag {
		t.Errorf("Action = %q, want flag for unknown action", d.Action)
	}
}

func TestRequiresCase_ThresholdBoundary(t *testing.T) {
	agent := agents.NewFraudAgent(&stubOracle{}, policy.Default())

	tests := []struct {
		probability float64
		want        bool
	}{
		{59.9, false},
		{60.0, false}, // boundary is strictly greater-than
		{60.1, true},
		{100, true},
	}
	for _, tt := range tests {
		d := &models.FraudDecision{FraudProbability: tt.probability}
		if got := agent.RequiresCase(d); got != tt.want {
			t.Errorf("RequiresCase(%v) = %v, want %v", tt.probability, got, tt.want)
		}
	}
}

func TestCheck_PromptIncludesHistory(t *testing.T) {
	o := &stubOracle{response: `{"fraud_probability": 10, "risk_level": "low", "action": "approve", "reasoning": "x"}`}
	agent := agents.NewFraudAgent(o, policy.Default())

	history := &models.CustomerHistory{
		AvgAmount:       120.50,
		CommonMerchants: []string{"grocery_a", "fuel_b"},
		CommonLocations: []string{"Austin, TX"},
		Frequency:       "daily",
	}
	agent.Check(context.Background(), fraudRequest(), history)

	if !strings.Contains(o.lastUser, "grocery_a") || !strings.Contains(o.lastUser, "Austin, TX") {
		t.Errorf("prompt missing history: %q", o.lastUser)
	}

	agent.Check(context.Background(), fraudRequest(), nil)
	if !strings.Contains(o.lastUser, "No previous transaction history available.") {
		t.Errorf("prompt missing no-history marker: %q", o.lastUser)
	}
}

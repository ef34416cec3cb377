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

const fraudSystemPrompt = `You are an expert fraud detection agent for a financial institution.

Your responsibilities:
1. Analyze transactions in real-time for fraud indicators
2. Calculate fraud probability (0-100%)
3. Recommend actions (approve/flag/block/verify)
4. Identify suspicious patterns

Fraud Indicators:
- Unusual transaction amounts
- Location anomalies (sudden changes)
- Velocity abuse (multiple transactions quickly)
- Device/IP mismatches
- Out-of-pattern merchant categories
- Dormant account reactivation

Thresholds:
- >90% probability: Auto-block
- 60-90% probability: Request additional verification
- <60% probability: Approve with monitoring

Always provide fraud probability, risk level, recommended action, and detected anomalies.
`

// fraudResponse is the fixed schema the oracle must answer with.
type fraudResponse struct {
	FraudProbability float64  `json:"fraud_probability"`
	RiskLevel        string   `json:"risk_level"`
	Action           string   `json:"action"`
	Anomalies        []string `json:"anomalies"`
	Reasoning        string   `json:"reasoning"`
}

// FraudAgent checks transactions for fraud through the decision oracle.
type FraudAgent struct {
	oracle oracle.Client
	policy policy.Policy
}

// NewFraudAgent creates a fraud detection agent.
func NewFraudAgent(client oracle.Client, pol policy.Policy) *FraudAgent {
	return &FraudAgent{oracle: client, policy: pol}
}

// Check runs one transaction through the oracle. History is optional
// context; nil means no history is available. Like Assess, Check never
// returns an error: unparseable oracle output yields the fixed
// degraded-mode decision.
func (a *FraudAgent) Check(ctx context.Context, req models.FraudCheckRequest, history *models.CustomerHistory) *models.FraudDecision {
	prompt := a.buildPrompt(req, history)

	var result oracle.Result[fraudResponse]
	raw, err := a.oracle.Complete(ctx, fraudSystemPrompt, prompt)
	if err != nil {
		result = oracle.Result[fraudResponse]{Raw: raw}
	} else {
		result = oracle.Parse[fraudResponse](raw)
	}

	decision := &models.FraudDecision{
		TransactionID: req.TransactionID,
		CaseID:        uuid.New().String(),
		AgentVersion:  models.AgentVersion,
		CreatedAt:     time.Now().UTC(),
	}

	if !result.Parsed {
		log.Warn().Str("txn", req.TransactionID).Msg("Fraud oracle response unparseable, using fallback decision")
		decision.FraudProbability = 50.0
		decision.RiskLevel = models.RiskMedium
		decision.Action = models.ActionFlag
		decision.Anomalies = []string{"Unable to parse response"}
		decision.Reasoning = "System error - flagged for manual review"
		decision.Degraded = true
		return decision
	}

	parsed := result.Value
	decision.FraudProbability = clampFloat(parsed.FraudProbability, 0, 100)
	decision.RiskLevel = normalizeRiskLevel(parsed.RiskLevel)
	decision.Anomalies = parsed.Anomalies
	decision.Reasoning = parsed.Reasoning

	switch a.policy.Mode {
	case policy.RecomputeFromScore:
		decision.Action = a.policy.FraudActionForProbability(decision.FraudProbability)
	default:
		decision.Action = normalizeFraudAction(parsed.Action)
	}

	log.Info().
		Str("txn", req.TransactionID).
		Float64("probability", decision.FraudProbability).
		Str("action", string(decision.Action)).
		Msg("Fraud check completed")

	return decision
}

// RequiresCase reports whether a decision opens an investigation case.
func (a *FraudAgent) RequiresCase(d *models.FraudDecision) bool {
	return a.policy.RequiresCase(d.FraudProbability)
}

func (a *FraudAgent) buildPrompt(req models.FraudCheckRequest, history *models.CustomerHistory) string {
	historyContext := "No previous transaction history available."
	if history != nil {
		historyContext = fmt.Sprintf(`
Customer Transaction History:
- Average transaction amount: $%.2f
- Typical merchants: %s
- Usual locations: %s
- Transaction frequency: %s
`, history.AvgAmount,
			strings.Join(history.CommonMerchants, ", "),
			strings.Join(history.CommonLocations, ", "),
			history.Frequency)
	}

	location := "Unknown"
	if req.Location != nil {
		location = fmt.Sprintf("Lat %v, Long %v", req.Location.Lat, req.Location.Long)
	}

	device := req.DeviceFingerprint
	if device == "" {
		device = "Unknown"
	}
	ip := req.IPAddress
	if ip == "" {
		ip = "Unknown"
	}
	category := req.MerchantCategory
	if category == "" {
		category = "Unknown"
	}

	return fmt.Sprintf(`
Analyze this transaction for fraud:

Transaction ID: %s
Customer ID: %s
Amount: $%.2f
Merchant: %s (Category: %s)
Location: %s
Device Fingerprint: %s
IP Address: %s

%s

Provide your analysis in JSON format:
{
    "fraud_probability": <0-100>,
    "risk_level": "<low/medium/high/critical>",
    "action": "<approve/flag/block/verify>",
    "anomalies": ["anomaly1", "anomaly2"],
    "reasoning": "Brief explanation"
}
`, req.TransactionID, req.CustomerID, req.Amount, req.MerchantID, category,
		location, device, ip, historyContext)
}

func normalizeRiskLevel(s string) models.RiskLevel {
	switch models.RiskLevel(strings.ToLower(strings.TrimSpace(s))) {
	case models.RiskLow:
		return models.RiskLow
	case models.RiskHigh:
		return models.RiskHigh
	case models.RiskCritical:
		return models.RiskCritical
	default:
		return models.RiskMedium
	}
}

func normalizeFraudAction(s string) models.FraudAction {
	switch models.FraudAction(strings.ToLower(strings.TrimSpace(s))) {
	case models.ActionApprove:
		return models.ActionApprove
	case models.ActionBlock:
		return models.ActionBlock
	case models.ActionVerify:
		return models.ActionVerify
	default:
		return models.ActionFlag
	}
}

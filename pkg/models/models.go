// Package models defines the shared data model for the riskplane
// decisioning control plane: task descriptors, assessment decisions,
// persisted entities, and the metrics snapshots produced by the
// feedback aggregator.
package models

import (
	"encoding/json"
	"time"
)

// ── Task routing ────────────────────────────────────────────

// TaskKind identifies which assessment procedure handles a task.
type TaskKind string

const (
	TaskKindCredit TaskKind = "credit"
	TaskKindFraud  TaskKind = "fraud"
)

// AgentVersion is stamped on every decision an agent produces.
const AgentVersion = "v1.0"

// TaskDescriptor is the immutable input to one orchestrator dispatch.
// Payload is the raw request body for the selected procedure.
type TaskDescriptor struct {
	TaskType string          `json:"task_type"`
	Payload  json.RawMessage `json:"payload"`
}

// Envelope is the finalized result of a dispatch. Exactly one of the
// assessment fields is set; an unroutable task yields the zero value
// with Handled=false.
type Envelope struct {
	Handled bool            `json:"handled"`
	Kind    TaskKind        `json:"kind,omitempty"`
	Credit  *CreditDecision `json:"credit,omitempty"`
	Fraud   *FraudDecision  `json:"fraud,omitempty"`
}

// ── Credit assessment ───────────────────────────────────────

// CreditOutcome is the category an assessed application lands in.
type CreditOutcome string

const (
	CreditApproved     CreditOutcome = "approved"
	CreditRejected     CreditOutcome = "rejected"
	CreditManualReview CreditOutcome = "manual_review"
)

// CreditDecision is the normalized output of the credit agent.
type CreditDecision struct {
	ApplicationID   string        `json:"application_id"`
	CustomerID      string        `json:"customer_id"`
	RiskScore       int           `json:"risk_score"` // 0-1000, 1000 = lowest risk
	Decision        CreditOutcome `json:"decision"`
	Confidence      float64       `json:"confidence"` // 0.0-1.0
	PositiveFactors []string      `json:"positive_factors"`
	RiskFactors     []string      `json:"risk_factors"`
	Reasoning       string        `json:"reasoning"`
	AgentVersion    string        `json:"agent_version"`
	Degraded        bool          `json:"degraded,omitempty"` // oracle output was unparseable
	CreatedAt       time.Time     `json:"created_at"`
}

// AlternativeData carries non-bureau signals for a credit application.
type AlternativeData struct {
	UtilityPaymentScore string `json:"utility_payment_score,omitempty"`
	RentPaymentHistory  string `json:"rent_payment_history,omitempty"`
}

// CreditApplicationRequest is the inbound credit assessment request.
type CreditApplicationRequest struct {
	CustomerID        string           `json:"customer_id"`
	RequestedAmount   float64          `json:"requested_amount"`
	LoanPurpose       string           `json:"loan_purpose"`
	EmploymentStatus  string           `json:"employment_status"`
	AnnualIncome      float64          `json:"annual_income"`
	CreditBureauScore *int             `json:"credit_bureau_score,omitempty"`
	AlternativeData   *AlternativeData `json:"alternative_data,omitempty"`
}

// CreditApplication is the persisted record of an assessed application,
// including the decision and, once feedback arrives, the attached outcome.
type CreditApplication struct {
	AppID             string        `json:"app_id"`
	CustomerID        string        `json:"customer_id"`
	RequestedAmount   float64       `json:"requested_amount"`
	LoanPurpose       string        `json:"loan_purpose"`
	EmploymentStatus  string        `json:"employment_status"`
	AnnualIncome      float64       `json:"annual_income"`
	CreditBureauScore *int          `json:"credit_bureau_score,omitempty"`
	RiskScore         int           `json:"risk_score"`
	Decision          CreditOutcome `json:"decision"`
	Confidence        float64       `json:"confidence"`
	PositiveFactors   []string      `json:"positive_factors"`
	RiskFactors       []string      `json:"risk_factors"`
	Reasoning         string        `json:"reasoning"`
	AgentVersion      string        `json:"agent_version"`
	HumanOverride     bool          `json:"human_override,omitempty"`
	OverrideReason    string        `json:"override_reason,omitempty"`
	DecisionAt        time.Time     `json:"decision_at"`

	// Outcome is attached when an operator submits ground truth.
	// Nil until feedback arrives; at most one per application.
	Outcome *Outcome `json:"outcome,omitempty"`
}

// ActualResult is operator-supplied ground truth for a credit decision.
type ActualResult string

const (
	ResultPaidOnTime ActualResult = "paid_on_time"
	ResultDefault    ActualResult = "default"
)

// Outcome records ground truth against a credit decision.
type Outcome struct {
	DecisionID        string       `json:"decision_id"`
	ActualResult      ActualResult `json:"actual_result"`
	PredictionCorrect bool         `json:"prediction_correct"`
	Notes             string       `json:"notes,omitempty"`
	RecordedAt        time.Time    `json:"recorded_at"`
}

// ── Fraud assessment ────────────────────────────────────────

// RiskLevel buckets a fraud probability for operators.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// FraudAction is the recommended handling for a transaction.
type FraudAction string

const (
	ActionApprove FraudAction = "approve"
	ActionFlag    FraudAction = "flag"
	ActionBlock   FraudAction = "block"
	ActionVerify  FraudAction = "verify"
)

// FraudDecision is the normalized output of the fraud agent.
type FraudDecision struct {
	TransactionID    string      `json:"transaction_id"`
	CaseID           string      `json:"case_id"`
	FraudProbability float64     `json:"fraud_probability"` // 0-100
	RiskLevel        RiskLevel   `json:"risk_level"`
	Action           FraudAction `json:"action"`
	Anomalies        []string    `json:"anomalies"`
	Reasoning        string      `json:"reasoning"`
	AgentVersion     string      `json:"agent_version"`
	Degraded         bool        `json:"degraded,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
}

// Location is a lat/long pair attached to a transaction.
type Location struct {
	Lat  float64 `json:"lat"`
	Long float64 `json:"long"`
}

// FraudCheckRequest is the inbound fraud check request.
type FraudCheckRequest struct {
	TransactionID     string    `json:"transaction_id"`
	CustomerID        string    `json:"customer_id"`
	Amount            float64   `json:"amount"`
	MerchantID        string    `json:"merchant_id"`
	MerchantCategory  string    `json:"merchant_category,omitempty"`
	Location          *Location `json:"location,omitempty"`
	DeviceFingerprint string    `json:"device_fingerprint,omitempty"`
	IPAddress         string    `json:"ip_address,omitempty"`
}

// CustomerHistory is optional behavioral context for the fraud agent.
type CustomerHistory struct {
	AvgAmount       float64  `json:"avg_amount"`
	CommonMerchants []string `json:"common_merchants"`
	CommonLocations []string `json:"common_locations"`
	Frequency       string   `json:"frequency"`
}

// TransactionStatus reflects how a checked transaction was handled.
type TransactionStatus string

const (
	TxnPending  TransactionStatus = "pending"
	TxnApproved TransactionStatus = "approved"
	TxnBlocked  TransactionStatus = "blocked"
	TxnFlagged  TransactionStatus = "flagged"
)

// Transaction is the persisted record of a checked transaction.
type Transaction struct {
	TxnID             string            `json:"txn_id"`
	CustomerID        string            `json:"customer_id"`
	Amount            float64           `json:"amount"`
	Currency          string            `json:"currency"`
	TransactionType   string            `json:"transaction_type"`
	MerchantID        string            `json:"merchant_id"`
	MerchantCategory  string            `json:"merchant_category,omitempty"`
	Location          *Location         `json:"location,omitempty"`
	DeviceFingerprint string            `json:"device_fingerprint,omitempty"`
	IPAddress         string            `json:"ip_address,omitempty"`
	Status            TransactionStatus `json:"status"`
	CreatedAt         time.Time         `json:"created_at"`
}

// InvestigationStatus tracks a fraud case through resolution.
type InvestigationStatus string

const (
	CaseOpen          InvestigationStatus = "open"
	CaseConfirmed     InvestigationStatus = "confirmed"
	CaseFalsePositive InvestigationStatus = "false_positive"
)

// FraudCase is opened for every decision whose probability crosses the
// case threshold. Resolution mutates the status in place; fraud ground
// truth lives here rather than in a separate outcome record.
type FraudCase struct {
	CaseID              string              `json:"case_id"`
	TxnID               string              `json:"txn_id"`
	FraudProbability    float64             `json:"fraud_probability"`
	FraudType           string              `json:"fraud_type,omitempty"`
	ConfidenceScore     float64             `json:"confidence_score"`
	AgentVersion        string              `json:"agent_version"`
	InvestigationStatus InvestigationStatus `json:"investigation_status"`
	InvestigatorID      string              `json:"investigator_id,omitempty"`
	ResolutionNotes     string              `json:"resolution_notes,omitempty"`
	DetectedAt          time.Time           `json:"detected_at"`
	ResolvedAt          *time.Time          `json:"resolved_at,omitempty"`
}

// ── Customers ───────────────────────────────────────────────

// KYCStatus is the know-your-customer verification state.
type KYCStatus string

const (
	KYCPending  KYCStatus = "pending"
	KYCVerified KYCStatus = "verified"
	KYCRejected KYCStatus = "rejected"
)

// Customer is the account holder referenced by applications and
// transactions.
type Customer struct {
	CustomerID string    `json:"customer_id"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone,omitempty"`
	KYCStatus  KYCStatus `json:"kyc_status"`
	RiskScore  int       `json:"risk_score"`
	CreatedAt  time.Time `json:"created_at"`
}

// ── Feedback & metrics ──────────────────────────────────────

// EntityType selects which record a feedback submission targets.
type EntityType string

const (
	EntityCreditApplication EntityType = "credit_application"
	EntityFraudCase         EntityType = "fraud_case"
)

// FeedbackRequest attaches ground truth to a past decision.
// ActualOutcome is "paid_on_time"/"default" for credit applications,
// "confirmed_fraud"/"false_positive" for fraud cases.
type FeedbackRequest struct {
	EntityType    EntityType `json:"entity_type"`
	EntityID      string     `json:"entity_id"`
	ActualOutcome string     `json:"actual_outcome"`
	Notes         string     `json:"notes,omitempty"`
}

// FeedbackResult reports whether the feedback was recorded and whether
// the original prediction turned out correct.
type FeedbackResult struct {
	FeedbackID string `json:"feedback_id"`
	Accepted   bool   `json:"accepted"`
	WasCorrect bool   `json:"was_correct"`
	Message    string `json:"message"`
}

// AgentType identifies which agent a metrics snapshot scores.
type AgentType string

const (
	AgentCredit AgentType = "credit"
	AgentFraud  AgentType = "fraud"
)

// MetricsSnapshot is one append-only entry in the agent learning log.
// SampleCount equals the number of outcome-labeled records included in
// the computation that produced it.
type MetricsSnapshot struct {
	Seq               int64     `json:"seq"`
	AgentType         AgentType `json:"agent_type"`
	ModelVersion      string    `json:"model_version"`
	Accuracy          float64   `json:"accuracy"`
	Precision         float64   `json:"precision"`
	Recall            float64   `json:"recall"`
	F1                float64   `json:"f1"`
	FalsePositiveRate float64   `json:"false_positive_rate,omitempty"` // fraud only
	SampleCount       int       `json:"sample_count"`
	Promoted          bool      `json:"promoted"`
	EvaluatedAt       time.Time `json:"evaluated_at"`
}

// AgentStats is the live (non-snapshot) learning summary for one agent.
type AgentStats struct {
	Total        int     `json:"total"`
	WithFeedback int     `json:"with_feedback"`
	Correct      int     `json:"correct"`
	Accuracy     float64 `json:"accuracy"`
}

// LearningStats is the aggregate payload served by the feedback stats
// endpoint: live accuracy per agent plus the recent snapshot history.
type LearningStats struct {
	CreditAgent     AgentStats        `json:"credit_agent"`
	FraudAgent      AgentStats        `json:"fraud_agent"`
	RecentSnapshots []MetricsSnapshot `json:"recent_snapshots"`
}

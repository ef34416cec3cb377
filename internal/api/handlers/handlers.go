// Package handlers implements the HTTP handlers for the riskplane
// control plane. All handlers depend on the Store interface plus the
// orchestrator and feedback services, so the same code serves the
// in-memory and PostgreSQL configurations.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/riskplane/riskplane/internal/feedback"
	"github.com/riskplane/riskplane/internal/orchestrator"
	"github.com/riskplane/riskplane/internal/policy"
	"github.com/riskplane/riskplane/internal/store"
	"github.com/riskplane/riskplane/pkg/models"
	"github.com/rs/zerolog/log"
)

// Handlers holds all handler dependencies.
type Handlers struct {
	Store        store.Store
	Orchestrator *orchestrator.Orchestrator
	Feedback     *feedback.Service
	Aggregator   *feedback.Aggregator
	Policy       policy.Policy
}

// New creates a new Handlers instance.
func New(s store.Store, orch *orchestrator.Orchestrator, fb *feedback.Service, agg *feedback.Aggregator, pol policy.Policy) *Handlers {
	return &Handlers{
		Store:        s,
		Orchestrator: orch,
		Feedback:     fb,
		Aggregator:   agg,
		Policy:       pol,
	}
}

// ── Credit Handlers ─────────────────────────────────────────

// CreditAssessResponse is the public envelope for one credit decision.
type CreditAssessResponse struct {
	ApplicationID    string               `json:"application_id"`
	Decision         models.CreditOutcome `json:"decision"`
	RiskScore        int                  `json:"risk_score"`
	Confidence       float64              `json:"confidence"`
	Explainability   Explainability       `json:"explainability"`
	ProcessingTimeMs int64                `json:"processing_time_ms"`
	Timestamp        time.Time            `json:"timestamp"`
}

// Explainability groups the factor lists and reasoning for a decision.
type Explainability struct {
	PositiveFactors []string `json:"positive_factors"`
	RiskFactors     []string `json:"risk_factors"`
	Reasoning       string   `json:"reasoning"`
}

func (h *Handlers) AssessCredit(w http.ResponseWriter, r *http.Request) {
	var req models.CreditApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.RequestedAmount <= 0 {
		respondError(w, http.StatusBadRequest, "requested_amount must be positive")
		return
	}
	if req.AnnualIncome < 0 {
		respondError(w, http.StatusBadRequest, "annual_income must not be negative")
		return
	}

	// The referenced customer must exist before any decision is made.
	if _, err := h.Store.GetCustomer(r.Context(), req.CustomerID); err != nil {
		respondStoreError(w, err)
		return
	}

	start := time.Now()
	payload, _ := json.Marshal(req)
	envelope := h.Orchestrator.RouteAndProcess(r.Context(), models.TaskDescriptor{
		TaskType: "credit_assessment",
		Payload:  payload,
	})
	if !envelope.Handled || envelope.Credit == nil {
		respondError(w, http.StatusInternalServerError, "credit assessment produced no decision")
		return
	}
	decision := envelope.Credit

	app := &models.CreditApplication{
		AppID:             decision.ApplicationID,
		CustomerID:        req.CustomerID,
		RequestedAmount:   req.RequestedAmount,
		LoanPurpose:       req.LoanPurpose,
		EmploymentStatus:  req.EmploymentStatus,
		AnnualIncome:      req.AnnualIncome,
		CreditBureauScore: req.CreditBureauScore,
		RiskScore:         decision.RiskScore,
		Decision:          decision.Decision,
		Confidence:        decision.Confidence,
		PositiveFactors:   decision.PositiveFactors,
		RiskFactors:       decision.RiskFactors,
		Reasoning:         decision.Reasoning,
		AgentVersion:      decision.AgentVersion,
		DecisionAt:        decision.CreatedAt,
	}
	if err := h.Store.CreateApplication(r.Context(), app); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, CreditAssessResponse{
		ApplicationID: decision.ApplicationID,
		Decision:      decision.Decision,
		RiskScore:     decision.RiskScore,
		Confidence:    decision.Confidence,
		Explainability: Explainability{
			PositiveFactors: decision.PositiveFactors,
			RiskFactors:     decision.RiskFactors,
			Reasoning:       decision.Reasoning,
		},
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		Timestamp:        decision.CreatedAt,
	})
}

func (h *Handlers) ListApplications(w http.ResponseWriter, r *http.Request) {
	status := models.CreditOutcome(r.URL.Query().Get("status"))
	limit := queryInt(r, "limit", store.DefaultListLimit)

	apps, err := h.Store.ListApplications(r.Context(), status, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if apps == nil {
		apps = []models.CreditApplication{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"applications": apps})
}

func (h *Handlers) GetApplication(w http.ResponseWriter, r *http.Request) {
	app, err := h.Store.GetApplication(r.Context(), chi.URLParam(r, "appId"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, app)
}

// ── Fraud Handlers ──────────────────────────────────────────

// fraudCheckBody is the inbound fraud request plus optional history.
type fraudCheckBody struct {
	models.FraudCheckRequest
	CustomerHistory *models.CustomerHistory `json:"customer_history,omitempty"`
}

// FraudCheckResponse is the public envelope for one fraud decision.
type FraudCheckResponse struct {
	TransactionID    string             `json:"transaction_id"`
	CaseID           string             `json:"case_id,omitempty"`
	FraudProbability float64            `json:"fraud_probability"`
	RiskLevel        models.RiskLevel   `json:"risk_level"`
	Action           models.FraudAction `json:"action"`
	Anomalies        []string           `json:"anomalies"`
	Reasoning        string             `json:"reasoning"`
	DetectionTimeMs  int64              `json:"detection_time_ms"`
}

func (h *Handlers) CheckFraud(w http.ResponseWriter, r *http.Request) {
	var body fraudCheckBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if body.Amount <= 0 {
		respondError(w, http.StatusBadRequest, "amount must be positive")
		return
	}
	if body.TransactionID == "" {
		respondError(w, http.StatusBadRequest, "transaction_id is required")
		return
	}

	if _, err := h.Store.GetCustomer(r.Context(), body.CustomerID); err != nil {
		respondStoreError(w, err)
		return
	}

	start := time.Now()
	payload, _ := json.Marshal(body)
	envelope := h.Orchestrator.RouteAndProcess(r.Context(), models.TaskDescriptor{
		TaskType: "fraud_detection",
		Payload:  payload,
	})
	if !envelope.Handled || envelope.Fraud == nil {
		respondError(w, http.StatusInternalServerError, "fraud check produced no decision")
		return
	}
	decision := envelope.Fraud

	status := models.TxnFlagged
	if decision.Action == models.ActionApprove {
		status = models.TxnApproved
	}

	// The transaction row must be durably committed before a case can
	// reference it.
	txn := &models.Transaction{
		TxnID:             body.TransactionID,
		CustomerID:        body.CustomerID,
		Amount:            body.Amount,
		Currency:          "USD",
		TransactionType:   "debit",
		MerchantID:        body.MerchantID,
		MerchantCategory:  body.MerchantCategory,
		Location:          body.Location,
		DeviceFingerprint: body.DeviceFingerprint,
		IPAddress:         body.IPAddress,
		Status:            status,
		CreatedAt:         decision.CreatedAt,
	}
	if err := h.Store.CreateTransaction(r.Context(), txn); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := FraudCheckResponse{
		TransactionID:    decision.TransactionID,
		FraudProbability: decision.FraudProbability,
		RiskLevel:        decision.RiskLevel,
		Action:           decision.Action,
		Anomalies:        decision.Anomalies,
		Reasoning:        decision.Reasoning,
	}

	if h.Policy.RequiresCase(decision.FraudProbability) {
		fraudCase := &models.FraudCase{
			CaseID:              decision.CaseID,
			TxnID:               body.TransactionID,
			FraudProbability:    decision.FraudProbability,
			FraudType:           "suspicious_activity",
			ConfidenceScore:     decision.FraudProbability / 100.0,
			AgentVersion:        decision.AgentVersion,
			InvestigationStatus: models.CaseOpen,
			DetectedAt:          decision.CreatedAt,
		}
		if err := h.Store.CreateCase(r.Context(), fraudCase); err != nil {
			// The committed transaction and its decision stay valid;
			// case creation is retried independently by the caller.
			log.Error().Err(err).Str("txn", body.TransactionID).Msg("Case creation failed after transaction commit")
			respondError(w, http.StatusInternalServerError, fmt.Sprintf("decision recorded but case creation failed: %v", err))
			return
		}
		resp.CaseID = decision.CaseID
	}

	resp.DetectionTimeMs = time.Since(start).Milliseconds()
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handlers) ListCases(w http.ResponseWriter, r *http.Request) {
	status := models.InvestigationStatus(r.URL.Query().Get("status"))
	limit := queryInt(r, "limit", store.DefaultListLimit)

	cases, err := h.Store.ListCases(r.Context(), status, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if cases == nil {
		cases = []models.FraudCase{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"cases": cases})
}

func (h *Handlers) GetCase(w http.ResponseWriter, r *http.Request) {
	c, err := h.Store.GetCase(r.Context(), chi.URLParam(r, "caseId"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// ── Customer Handlers ───────────────────────────────────────

func (h *Handlers) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var customer models.Customer
	if err := json.NewDecoder(r.Body).Decode(&customer); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if customer.CustomerID == "" {
		customer.CustomerID = uuid.New().String()
	}
	if customer.KYCStatus == "" {
		customer.KYCStatus = models.KYCPending
	}
	if customer.RiskScore == 0 {
		customer.RiskScore = 500
	}
	customer.CreatedAt = time.Now().UTC()

	if err := h.Store.CreateCustomer(r.Context(), &customer); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, customer)
}

func (h *Handlers) GetCustomer(w http.ResponseWriter, r *http.Request) {
	customer, err := h.Store.GetCustomer(r.Context(), chi.URLParam(r, "customerId"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, customer)
}

// ── Feedback Handlers ───────────────────────────────────────

func (h *Handlers) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	var req models.FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.Feedback.Apply(r.Context(), req)
	if err != nil {
		if _, ok := err.(*feedback.ErrInvalidFeedback); ok {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *Handlers) LearningStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Feedback.Stats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// ── Metrics Handlers ────────────────────────────────────────

// EvaluationResult reports the outcome of one evaluation run.
type EvaluationResult struct {
	Credit *models.MetricsSnapshot `json:"credit,omitempty"`
	Fraud  *models.MetricsSnapshot `json:"fraud,omitempty"`
}

func (h *Handlers) Evaluate(w http.ResponseWriter, r *http.Request) {
	var result EvaluationResult

	for _, agent := range []models.AgentType{models.AgentCredit, models.AgentFraud} {
		snap, ok, err := h.Aggregator.ComputeMetrics(r.Context(), agent)
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if !ok {
			continue
		}
		if agent == models.AgentCredit {
			result.Credit = snap
		} else {
			result.Fraud = snap
		}
	}

	respondJSON(w, http.StatusOK, result)
}

func (h *Handlers) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	agent := models.AgentType(r.URL.Query().Get("agent"))
	limit := queryInt(r, "limit", 10)

	snapshots, err := h.Store.ListSnapshots(r.Context(), agent, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if snapshots == nil {
		snapshots = []models.MetricsSnapshot{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"snapshots": snapshots})
}

// ── Helpers ─────────────────────────────────────────────────

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			return i
		}
	}
	return fallback
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondStoreError maps ErrNotFound to 404 and everything else to 500.
func respondStoreError(w http.ResponseWriter, err error) {
	if _, ok := err.(*store.ErrNotFound); ok {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondError(w, http.StatusInternalServerError, err.Error())
}

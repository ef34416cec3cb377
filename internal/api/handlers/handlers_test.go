package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/riskplane/riskplane/internal/agents"
	"github.com/riskplane/riskplane/internal/api"
	"github.com/riskplane/riskplane/internal/api/handlers"
	"github.com/riskplane/riskplane/internal/config"
	"github.com/riskplane/riskplane/internal/feedback"
	"github.com/riskplane/riskplane/internal/orchestrator"
	"github.com/riskplane/riskplane/internal/policy"
	"github.com/riskplane/riskplane/internal/store"
	"github.com/riskplane/riskplane/pkg/models"
)

type stubOracle struct {
	creditResponse string
	fraudResponse  string
}

func (s *stubOracle) Complete(ctx context.Context, system, user string) (string, error) {
	// Route on the system prompt so one stub serves both agents.
	if bytes.Contains([]byte(system), []byte("fraud detection")) {
		return s.fraudResponse, nil
	}
	return s.creditResponse, nil
}

// newTestServer wires the full router over an in-memory store with a
// seeded customer and the given canned oracle responses.
func newTestServer(t *testing.T, o *stubOracle) (http.Handler, store.Store) {
	t.Helper()
	dir := t.TempDir()
	os.Setenv("RISKPLANE_DATA_DIR", dir)
	defer os.Unsetenv("RISKPLANE_DATA_DIR")

	s := store.NewMemoryStore()
	t.Cleanup(func() { s.Close() })

	s.CreateCustomer(context.Background(), &models.Customer{
		CustomerID: "cust_1",
		FirstName:  "Test",
		LastName:   "Customer",
		Email:      "test@example.com",
		KYCStatus:  models.KYCVerified,
		CreatedAt:  time.Now().UTC(),
	})

	pol := policy.Default()
	orch := orchestrator.New(
		agents.NewCreditAgent(o, pol),
		agents.NewFraudAgent(o, pol),
	)
	h := handlers.New(s, orch, feedback.NewService(s, pol), feedback.NewAggregator(s, pol), pol)
	return api.NewRouter(config.Load(), h), s
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

const goodCredit = `{"risk_score": 820, "decision": "approved", "confidence": 0.9, "positive_factors": ["income"], "risk_factors": [], "reasoning": "solid"}`
const lowRiskFraud = `{"fraud_probability": 15, "risk_level": "low", "action": "approve", "anomalies": [], "reasoning": "normal"}`
const highRiskFraud = `{"fraud_probability": 92, "risk_level": "critical", "action": "block", "anomalies": ["velocity"], "reasoning": "burst"}`

func TestHealthAndVersion(t *testing.T) {
	handler, _ := newTestServer(t, &stubOracle{})

	rec := doJSON(t, handler, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", rec.Code)
	}
	health := decode[map[string]string](t, rec)
	if health["status"] != "healthy" {
		t.Errorf("health status = %q", health["status"])
	}

	rec = doJSON(t, handler, http.MethodGet, "/version", nil)
	version := decode[map[string]string](t, rec)
	if version["service"] != "riskplane" {
		t.Errorf("version service = %q", version["service"])
	}
}

func TestAssessCredit_RoundTrip(t *testing.T) {
	handler, s := newTestServer(t, &stubOracle{creditResponse: goodCredit})

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/credit/assess", models.CreditApplicationRequest{
		CustomerID:       "cust_1",
		RequestedAmount:  25000,
		LoanPurpose:      "auto",
		EmploymentStatus: "employed",
		AnnualIncome:     90000,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /credit/assess = %d: %s", rec.Code, rec.Body.String())
	}

	resp := decode[handlers.CreditAssessResponse](t, rec)
	if resp.Decision != models.CreditApproved || resp.RiskScore != 820 {
		t.Errorf("response = %+v", resp)
	}
	if resp.ApplicationID == "" {
		t.Fatal("no application id in response")
	}

	// Every decision is persisted and retrievable.
	app, err := s.GetApplication(context.Background(), resp.ApplicationID)
	if err != nil {
		t.Fatalf("decision not persisted: %v", err)
	}
	if app.RequestedAmount != 25000 || app.Decision != models.CreditApproved {
		t.Errorf("persisted application = %+v", app)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/credit/applications/"+resp.ApplicationID, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("GET application = %d", rec.Code)
	}
}

func TestAssessCredit_UnknownCustomer(t *testing.T) {
	handler, _ := newTestServer(t, &stubOracle{creditResponse: goodCredit})

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/credit/assess", models.CreditApplicationRequest{
		CustomerID:      "missing",
		RequestedAmount: 1000,
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("assess for unknown customer = %d, want 404", rec.Code)
	}
}

func TestAssessCredit_InvalidAmount(t *testing.T) {
	handler, _ := newTestServer(t, &stubOracle{creditResponse: goodCredit})

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/credit/assess", models.CreditApplicationRequest{
		CustomerID:      "cust_1",
		RequestedAmount: -5,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("assess with negative amount = %d, want 400", rec.Code)
	}
}

func TestCheckFraud_LowRiskNoCase(t *testing.T) {
	handler, s := newTestServer(t, &stubOracle{fraudResponse: lowRiskFraud})

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/fraud/check", models.FraudCheckRequest{
		TransactionID: "txn_1",
		CustomerID:    "cust_1",
		Amount:        42.50,
		MerchantID:    "merch_1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /fraud/check = %d: %s", rec.Code, rec.Body.String())
	}

	resp := decode[handlers.FraudCheckResponse](t, rec)
	if resp.CaseID != "" {
		t.Errorf("low-risk decision opened case %q", resp.CaseID)
	}
	if resp.Action != models.ActionApprove {
		t.Errorf("Action = %q, want approve", resp.Action)
	}

	// Transaction persisted even without a case.
	txn, err := s.GetTransaction(context.Background(), "txn_1")
	if err != nil {
		t.Fatalf("transaction not persisted: %v", err)
	}
	if txn.Status != models.TxnApproved {
		t.Errorf("transaction status = %q, want approved", txn.Status)
	}

	n, _ := s.CountCases(context.Background())
	if n != 0 {
		t.Errorf("case count = %d, want 0", n)
	}
}

func TestCheckFraud_HighRiskOpensCase(t *testing.T) {
	handler, s := newTestServer(t, &stubOracle{fraudResponse: highRiskFraud})

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/fraud/check", models.FraudCheckRequest{
		TransactionID: "txn_1",
		CustomerID:    "cust_1",
		Amount:        4999.99,
		MerchantID:    "merch_1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /fraud/check = %d: %s", rec.Code, rec.Body.String())
	}

	resp := decode[handlers.FraudCheckResponse](t, rec)
	if resp.CaseID == "" {
		t.Fatal("high-risk decision did not open a case")
	}

	c, err := s.GetCase(context.Background(), resp.CaseID)
	if err != nil {
		t.Fatalf("case not persisted: %v", err)
	}
	if c.TxnID != "txn_1" || c.InvestigationStatus != models.CaseOpen {
		t.Errorf("case = %+v", c)
	}

	// Transaction was committed before the case references it.
	if _, err := s.GetTransaction(context.Background(), "txn_1"); err != nil {
		t.Fatalf("transaction missing for case: %v", err)
	}
}

func TestFeedbackAndEvaluateFlow(t *testing.T) {
	handler, _ := newTestServer(t, &stubOracle{creditResponse: goodCredit})

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/credit/assess", models.CreditApplicationRequest{
		CustomerID:      "cust_1",
		RequestedAmount: 10000,
		AnnualIncome:    50000,
	})
	assess := decode[handlers.CreditAssessResponse](t, rec)

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/feedback/submit", models.FeedbackRequest{
		EntityType:    models.EntityCreditApplication,
		EntityID:      assess.ApplicationID,
		ActualOutcome: "paid_on_time",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /feedback/submit = %d: %s", rec.Code, rec.Body.String())
	}
	fb := decode[models.FeedbackResult](t, rec)
	if !fb.WasCorrect {
		t.Error("approved + paid_on_time should be correct")
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/metrics/evaluate", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /metrics/evaluate = %d: %s", rec.Code, rec.Body.String())
	}
	eval := decode[handlers.EvaluationResult](t, rec)
	if eval.Credit == nil {
		t.Fatal("no credit snapshot in evaluation result")
	}
	if eval.Credit.Accuracy != 1.0 || !eval.Credit.Promoted {
		t.Errorf("credit snapshot = %+v", eval.Credit)
	}
	if eval.Fraud != nil {
		t.Error("fraud snapshot produced with no resolved cases")
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/metrics/snapshots?agent=credit", nil)
	snaps := decode[map[string][]models.MetricsSnapshot](t, rec)
	if len(snaps["snapshots"]) != 1 {
		t.Errorf("snapshots = %d, want 1", len(snaps["snapshots"]))
	}
}

func TestSubmitFeedback_InvalidEntity(t *testing.T) {
	handler, _ := newTestServer(t, &stubOracle{})

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/feedback/submit", models.FeedbackRequest{
		EntityType:    "loan_book",
		EntityID:      "x",
		ActualOutcome: "default",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid entity type = %d, want 400", rec.Code)
	}
}

func TestSubmitFeedback_MissingEntity(t *testing.T) {
	handler, _ := newTestServer(t, &stubOracle{})

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/feedback/submit", models.FeedbackRequest{
		EntityType:    models.EntityFraudCase,
		EntityID:      "missing",
		ActualOutcome: "confirmed_fraud",
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing case = %d, want 404", rec.Code)
	}
}

func TestListApplications_StatusFilter(t *testing.T) {
	handler, _ := newTestServer(t, &stubOracle{creditResponse: goodCredit})

	for i := 0; i < 2; i++ {
		doJSON(t, handler, http.MethodPost, "/api/v1/credit/assess", models.CreditApplicationRequest{
			CustomerID:      "cust_1",
			RequestedAmount: 1000,
		})
	}

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/credit/applications?status=approved", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET applications = %d", rec.Code)
	}
	body := decode[map[string][]models.CreditApplication](t, rec)
	if len(body["applications"]) != 2 {
		t.Errorf("approved applications = %d, want 2", len(body["applications"]))
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/credit/applications?status=rejected", nil)
	body = decode[map[string][]models.CreditApplication](t, rec)
	if len(body["applications"]) != 0 {
		t.Errorf("rejected applications = %d, want 0", len(body["applications"]))
	}
}

func TestCreateAndGetCustomer(t *testing.T) {
	handler, _ := newTestServer(t, &stubOracle{})

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/customers", models.Customer{
		FirstName: "New",
		LastName:  "Person",
		Email:     "new@example.com",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /customers = %d: %s", rec.Code, rec.Body.String())
	}
	created := decode[models.Customer](t, rec)
	if created.CustomerID == "" {
		t.Fatal("no customer id assigned")
	}
	if created.KYCStatus != models.KYCPending {
		t.Errorf("KYCStatus = %q, want pending default", created.KYCStatus)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/customers/"+created.CustomerID, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("GET customer = %d", rec.Code)
	}
}

func TestFeedbackStats_Endpoint(t *testing.T) {
	handler, _ := newTestServer(t, &stubOracle{creditResponse: goodCredit})

	doJSON(t, handler, http.MethodPost, "/api/v1/credit/assess", models.CreditApplicationRequest{
		CustomerID:      "cust_1",
		RequestedAmount: 1000,
	})

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/feedback/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /feedback/stats = %d", rec.Code)
	}
	stats := decode[models.LearningStats](t, rec)
	if stats.CreditAgent.Total != 1 || stats.CreditAgent.WithFeedback != 0 {
		t.Errorf("stats = %+v", stats.CreditAgent)
	}
}

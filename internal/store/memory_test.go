package store_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/riskplane/riskplane/internal/store"
	"github.com/riskplane/riskplane/pkg/models"
)

// newTestStore creates a fresh in-memory store for tests.
func newTestStore(t *testing.T) store.Store {
	t.Helper()
	// Use a temp dir so tests don't write to ~/.riskplane/
	dir := t.TempDir()
	os.Setenv("RISKPLANE_DATA_DIR", dir)
	defer os.Unsetenv("RISKPLANE_DATA_DIR")
	s := store.NewMemoryStore()
	t.Cleanup(func() { s.Close() })
	return s
}

// ─── Customers ───────────────────────────────────────────────

func TestCreateAndGetCustomer(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := &models.Customer{
		CustomerID: "cust_1",
		FirstName:  "Ada",
		LastName:   "Wong",
		Email:      "ada@example.com",
		KYCStatus:  models.KYCVerified,
		RiskScore:  700,
	}
	if err := s.CreateCustomer(ctx, c); err != nil {
		t.Fatalf("CreateCustomer() error = %v", err)
	}

	got, err := s.GetCustomer(ctx, "cust_1")
	if err != nil {
		t.Fatalf("GetCustomer() error = %v", err)
	}
	if got.Email != "ada@example.com" {
		t.Errorf("GetCustomer().Email = %q, want %q", got.Email, "ada@example.com")
	}
	if got.KYCStatus != models.KYCVerified {
		t.Errorf("GetCustomer().KYCStatus = %q, want %q", got.KYCStatus, models.KYCVerified)
	}
}

func TestGetCustomer_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetCustomer(context.Background(), "missing")
	if err == nil {
		t.Fatal("GetCustomer() expected error for missing customer")
	}
	if _, ok := err.(*store.ErrNotFound); !ok {
		t.Errorf("GetCustomer() error = %T, want *store.ErrNotFound", err)
	}
}

// ─── Credit applications ─────────────────────────────────────

func newApplication(id string, decision models.CreditOutcome) *models.CreditApplication {
	return &models.CreditApplication{
		AppID:      id,
		CustomerID: "cust_1",
		RiskScore:  800,
		Decision:   decision,
		Confidence: 0.9,
		DecisionAt: time.Now().UTC(),
	}
}

func TestCreateAndGetApplication(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateApplication(ctx, newApplication("app_1", models.CreditApproved)); err != nil {
		t.Fatalf("CreateApplication() error = %v", err)
	}

	got, err := s.GetApplication(ctx, "app_1")
	if err != nil {
		t.Fatalf("GetApplication() error = %v", err)
	}
	if got.Decision != models.CreditApproved {
		t.Errorf("GetApplication().Decision = %q, want %q", got.Decision, models.CreditApproved)
	}
	if got.Outcome != nil {
		t.Errorf("New application has Outcome = %+v, want nil", got.Outcome)
	}
}

func TestListApplications_FilterAndLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.CreateApplication(ctx, newApplication("app_a", models.CreditApproved))
	s.CreateApplication(ctx, newApplication("app_b", models.CreditRejected))
	s.CreateApplication(ctx, newApplication("app_c", models.CreditApproved))

	approved, err := s.ListApplications(ctx, models.CreditApproved, 10)
	if err != nil {
		t.Fatalf("ListApplications() error = %v", err)
	}
	if len(approved) != 2 {
		t.Errorf("ListApplications(approved) returned %d, want 2", len(approved))
	}

	all, _ := s.ListApplications(ctx, "", 2)
	if len(all) != 2 {
		t.Errorf("ListApplications(limit=2) returned %d, want 2", len(all))
	}
}

func TestUpdateApplication_AttachOutcome(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.CreateApplication(ctx, newApplication("app_1", models.CreditApproved))

	app, _ := s.GetApplication(ctx, "app_1")
	app.Outcome = &models.Outcome{
		DecisionID:        "app_1",
		ActualResult:      models.ResultPaidOnTime,
		PredictionCorrect: true,
		RecordedAt:        time.Now().UTC(),
	}
	if err := s.UpdateApplication(ctx, app); err != nil {
		t.Fatalf("UpdateApplication() error = %v", err)
	}

	labeled, err := s.ListLabeledApplications(ctx)
	if err != nil {
		t.Fatalf("ListLabeledApplications() error = %v", err)
	}
	if len(labeled) != 1 {
		t.Fatalf("ListLabeledApplications() returned %d, want 1", len(labeled))
	}
	if !labeled[0].Outcome.PredictionCorrect {
		t.Error("labeled outcome PredictionCorrect = false, want true")
	}
}

func TestStoreIsolation_MutatingReturnedApplication(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.CreateApplication(ctx, newApplication("app_1", models.CreditApproved))

	got, _ := s.GetApplication(ctx, "app_1")
	got.Decision = models.CreditRejected

	again, _ := s.GetApplication(ctx, "app_1")
	if again.Decision != models.CreditApproved {
		t.Errorf("mutating a returned copy changed the store: Decision = %q", again.Decision)
	}
}

// ─── Fraud cases ─────────────────────────────────────────────

func newCase(id, txnID string, probability float64) *models.FraudCase {
	return &models.FraudCase{
		CaseID:              id,
		TxnID:               txnID,
		FraudProbability:    probability,
		ConfidenceScore:     probability / 100,
		AgentVersion:        models.AgentVersion,
		InvestigationStatus: models.CaseOpen,
		DetectedAt:          time.Now().UTC(),
	}
}

func TestCreateCase_OnePerTransaction(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateCase(ctx, newCase("case_1", "txn_1", 70)); err != nil {
		t.Fatalf("CreateCase() error = %v", err)
	}
	// A second case for the same transaction replaces the first.
	if err := s.CreateCase(ctx, newCase("case_2", "txn_1", 95)); err != nil {
		t.Fatalf("CreateCase() second call error = %v", err)
	}

	n, _ := s.CountCases(ctx)
	if n != 1 {
		t.Errorf("CountCases() = %d, want 1", n)
	}
	got, err := s.GetCase(ctx, "case_2")
	if err != nil {
		t.Fatalf("GetCase() error = %v", err)
	}
	if got.FraudProbability != 95 {
		t.Errorf("GetCase().FraudProbability = %v, want 95", got.FraudProbability)
	}
}

func TestListResolvedCases(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.CreateCase(ctx, newCase("case_1", "txn_1", 70))

	resolved := newCase("case_2", "txn_2", 80)
	now := time.Now().UTC()
	resolved.InvestigationStatus = models.CaseConfirmed
	resolved.ResolvedAt = &now
	s.CreateCase(ctx, resolved)

	got, err := s.ListResolvedCases(ctx)
	if err != nil {
		t.Fatalf("ListResolvedCases() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("ListResolvedCases() returned %d, want 1", len(got))
	}
	if got[0].CaseID != "case_2" {
		t.Errorf("ListResolvedCases()[0].CaseID = %q, want case_2", got[0].CaseID)
	}
}

func TestListCases_StatusFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.CreateCase(ctx, newCase("case_1", "txn_1", 70))
	fp := newCase("case_2", "txn_2", 65)
	fp.InvestigationStatus = models.CaseFalsePositive
	s.CreateCase(ctx, fp)

	open, err := s.ListCases(ctx, models.CaseOpen, 10)
	if err != nil {
		t.Fatalf("ListCases() error = %v", err)
	}
	if len(open) != 1 || open[0].CaseID != "case_1" {
		t.Errorf("ListCases(open) = %+v, want only case_1", open)
	}
}

// ─── Metrics snapshots ───────────────────────────────────────

func TestAppendSnapshot_AssignsSequence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := &models.MetricsSnapshot{AgentType: models.AgentCredit, Accuracy: 0.8, EvaluatedAt: time.Now().UTC()}
	b := &models.MetricsSnapshot{AgentType: models.AgentFraud, Accuracy: 0.9, EvaluatedAt: time.Now().UTC()}

	if err := s.AppendSnapshot(ctx, a); err != nil {
		t.Fatalf("AppendSnapshot() error = %v", err)
	}
	if err := s.AppendSnapshot(ctx, b); err != nil {
		t.Fatalf("AppendSnapshot() error = %v", err)
	}
	if a.Seq == 0 || b.Seq == 0 {
		t.Errorf("AppendSnapshot() left Seq unset: a=%d b=%d", a.Seq, b.Seq)
	}
	if b.Seq <= a.Seq {
		t.Errorf("sequence not monotonic: a=%d b=%d", a.Seq, b.Seq)
	}
}

func TestListSnapshots_AgentFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		s.AppendSnapshot(ctx, &models.MetricsSnapshot{AgentType: models.AgentCredit, EvaluatedAt: time.Now().UTC()})
	}
	s.AppendSnapshot(ctx, &models.MetricsSnapshot{AgentType: models.AgentFraud, EvaluatedAt: time.Now().UTC()})

	credit, err := s.ListSnapshots(ctx, models.AgentCredit, 10)
	if err != nil {
		t.Fatalf("ListSnapshots() error = %v", err)
	}
	if len(credit) != 3 {
		t.Errorf("ListSnapshots(credit) returned %d, want 3", len(credit))
	}

	limited, _ := s.ListSnapshots(ctx, "", 2)
	if len(limited) != 2 {
		t.Errorf("ListSnapshots(limit=2) returned %d, want 2", len(limited))
	}
}

// ─── Persistence ─────────────────────────────────────────────

func TestSnapshotPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	os.Setenv("RISKPLANE_DATA_DIR", dir)
	defer os.Unsetenv("RISKPLANE_DATA_DIR")

	ctx := context.Background()

	s1 := store.NewMemoryStore()
	s1.CreateCustomer(ctx, &models.Customer{CustomerID: "cust_1", Email: "a@example.com"})
	s1.CreateApplication(ctx, newApplication("app_1", models.CreditApproved))
	if err := s1.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	s2 := store.NewMemoryStore()
	defer s2.Close()

	if _, err := s2.GetCustomer(ctx, "cust_1"); err != nil {
		t.Errorf("customer did not survive restart: %v", err)
	}
	if _, err := s2.GetApplication(ctx, "app_1"); err != nil {
		t.Errorf("application did not survive restart: %v", err)
	}
}

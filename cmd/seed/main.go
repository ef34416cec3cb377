// seed populates the configured store with demo customers so the
// credit and fraud endpoints can be exercised immediately.
package main

import (
	"context"
	"os"
	"time"

	"github.com/riskplane/riskplane/internal/config"
	"github.com/riskplane/riskplane/internal/store"
	"github.com/riskplane/riskplane/pkg/models"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var demoCustomers = []models.Customer{
	{
		CustomerID: "cust_001",
		FirstName:  "Maria",
		LastName:   "Santos",
		Email:      "maria.santos@example.com",
		Phone:      "+1-555-0101",
		KYCStatus:  models.KYCVerified,
		RiskScore:  720,
	},
	{
		CustomerID: "cust_002",
		FirstName:  "James",
		LastName:   "Okafor",
		Email:      "james.okafor@example.com",
		Phone:      "+1-555-0102",
		KYCStatus:  models.KYCVerified,
		RiskScore:  480,
	},
	{
		CustomerID: "cust_003",
		FirstName:  "Lena",
		LastName:   "Fischer",
		Email:      "lena.fischer@example.com",
		KYCStatus:  models.KYCPending,
		RiskScore:  500,
	},
	{
		CustomerID: "cust_004",
		FirstName:  "Ravi",
		LastName:   "Patel",
		Email:      "ravi.patel@example.com",
		Phone:      "+1-555-0104",
		KYCStatus:  models.KYCVerified,
		RiskScore:  650,
	},
	{
		CustomerID: "cust_005",
		FirstName:  "Sofia",
		LastName:   "Rinaldi",
		Email:      "sofia.rinaldi@example.com",
		KYCStatus:  models.KYCRejected,
		RiskScore:  210,
	},
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	ctx := context.Background()
	cfg := config.Load()

	var s store.Store
	if cfg.Database.URL != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.Database.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		s = pg
	} else {
		s = store.NewMemoryStore()
	}
	defer s.Close()

	seeded := 0
	for i := range demoCustomers {
		c := demoCustomers[i]
		if _, err := s.GetCustomer(ctx, c.CustomerID); err == nil {
			log.Info().Str("customer", c.CustomerID).Msg("Already present, skipping")
			continue
		}
		c.CreatedAt = time.Now().UTC()
		if err := s.CreateCustomer(ctx, &c); err != nil {
			log.Fatal().Err(err).Str("customer", c.CustomerID).Msg("Seed failed")
		}
		seeded++
	}

	seedDecisions(ctx, s)

	log.Info().Int("seeded", seeded).Int("total", len(demoCustomers)).Msg("Seed complete")
}

// seedDecisions adds a small set of already-assessed records so the
// feedback and metrics endpoints have something to chew on.
func seedDecisions(ctx context.Context, s store.Store) {
	now := time.Now().UTC()

	apps := []models.CreditApplication{
		{
			AppID:           "app_demo_approved",
			CustomerID:      "cust_001",
			RequestedAmount: 15000,
			LoanPurpose:     "home_improvement",
			AnnualIncome:    95000,
			RiskScore:       810,
			Decision:        models.CreditApproved,
			Confidence:      0.91,
			PositiveFactors: []string{"Verified KYC", "High income", "Strong base risk score"},
			RiskFactors:     []string{"Recent credit inquiry"},
			Reasoning:       "Low-risk profile with stable income",
			AgentVersion:    models.AgentVersion,
			DecisionAt:      now,
		},
		{
			AppID:           "app_demo_review",
			CustomerID:      "cust_002",
			RequestedAmount: 40000,
			LoanPurpose:     "debt_consolidation",
			AnnualIncome:    38000,
			RiskScore:       460,
			Decision:        models.CreditManualReview,
			Confidence:      0.64,
			PositiveFactors: []string{"Verified KYC"},
			RiskFactors:     []string{"High debt-to-income ratio", "Below-average base score"},
			Reasoning:       "Borderline profile, requires manual review",
			AgentVersion:    models.AgentVersion,
			DecisionAt:      now,
		},
	}
	for i := range apps {
		if _, err := s.GetApplication(ctx, apps[i].AppID); err == nil {
			continue
		}
		if err := s.CreateApplication(ctx, &apps[i]); err != nil {
			log.Warn().Err(err).Str("application", apps[i].AppID).Msg("Seed application failed")
		}
	}

	txn := &models.Transaction{
		TxnID:           "txn_demo_flagged",
		CustomerID:      "cust_004",
		Amount:          4850,
		Currency:        "USD",
		TransactionType: "debit",
		MerchantID:      "merch_luxury_goods",
		Status:          models.TxnFlagged,
		CreatedAt:       now,
	}
	if _, err := s.GetTransaction(ctx, txn.TxnID); err != nil {
		if err := s.CreateTransaction(ctx, txn); err != nil {
			log.Warn().Err(err).Str("txn", txn.TxnID).Msg("Seed transaction failed")
			return
		}
		c := &models.FraudCase{
			CaseID:              "case_demo_open",
			TxnID:               txn.TxnID,
			FraudProbability:    78,
			FraudType:           "suspicious_activity",
			ConfidenceScore:     0.78,
			AgentVersion:        models.AgentVersion,
			InvestigationStatus: models.CaseOpen,
			DetectedAt:          now,
		}
		if err := s.CreateCase(ctx, c); err != nil {
			log.Warn().Err(err).Str("case", c.CaseID).Msg("Seed case failed")
		}
	}
}

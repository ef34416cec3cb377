// Package store — PostgreSQL-backed Store implementation using pgxpool.
// Schema is created on startup; the metrics log uses a serial sequence
// so snapshots keep their append order across restarts.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riskplane/riskplane/pkg/models"
	"github.com/rs/zerolog/log"
)

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects, pings, and migrates the schema.
func NewPostgresStore(ctx context.Context, connURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connURL)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}

	log.Info().Msg("PostgreSQL store initialized")
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS customers (
			customer_id TEXT PRIMARY KEY,
			first_name  TEXT NOT NULL DEFAULT '',
			last_name   TEXT NOT NULL DEFAULT '',
			email       TEXT NOT NULL DEFAULT '',
			phone       TEXT NOT NULL DEFAULT '',
			kyc_status  TEXT NOT NULL DEFAULT 'pending',
			risk_score  INT NOT NULL DEFAULT 500,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS credit_applications (
			app_id              TEXT PRIMARY KEY,
			customer_id         TEXT NOT NULL REFERENCES customers (customer_id),
			requested_amount    NUMERIC(15,2) NOT NULL,
			loan_purpose        TEXT NOT NULL DEFAULT '',
			employment_status   TEXT NOT NULL DEFAULT '',
			annual_income       NUMERIC(15,2) NOT NULL DEFAULT 0,
			credit_bureau_score INT,
			risk_score          INT NOT NULL,
			decision            TEXT NOT NULL,
			confidence          DOUBLE PRECISION NOT NULL,
			positive_factors    JSONB NOT NULL DEFAULT '[]',
			risk_factors        JSONB NOT NULL DEFAULT '[]',
			reasoning           TEXT NOT NULL DEFAULT '',
			agent_version       TEXT NOT NULL DEFAULT '',
			human_override      BOOLEAN NOT NULL DEFAULT FALSE,
			override_reason     TEXT NOT NULL DEFAULT '',
			decision_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			outcome_result      TEXT,
			outcome_correct     BOOLEAN,
			outcome_notes       TEXT NOT NULL DEFAULT '',
			outcome_recorded_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_apps_customer ON credit_applications (customer_id);
		CREATE INDEX IF NOT EXISTS idx_apps_decision_at ON credit_applications (decision_at DESC);

		CREATE TABLE IF NOT EXISTS transactions (
			txn_id             TEXT PRIMARY KEY,
			customer_id        TEXT NOT NULL REFERENCES customers (customer_id),
			amount             NUMERIC(15,2) NOT NULL,
			currency           TEXT NOT NULL DEFAULT 'USD',
			transaction_type   TEXT NOT NULL DEFAULT 'debit',
			merchant_id        TEXT NOT NULL DEFAULT '',
			merchant_category  TEXT NOT NULL DEFAULT '',
			location_lat       DOUBLE PRECISION,
			location_long      DOUBLE PRECISION,
			device_fingerprint TEXT NOT NULL DEFAULT '',
			ip_address         TEXT NOT NULL DEFAULT '',
			status             TEXT NOT NULL DEFAULT 'pending',
			created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS fraud_cases (
			case_id              TEXT PRIMARY KEY,
			txn_id               TEXT NOT NULL UNIQUE REFERENCES transactions (txn_id),
			fraud_probability    DOUBLE PRECISION NOT NULL,
			fraud_type           TEXT NOT NULL DEFAULT '',
			confidence_score     DOUBLE PRECISION NOT NULL DEFAULT 0,
			agent_version        TEXT NOT NULL DEFAULT '',
			investigation_status TEXT NOT NULL DEFAULT 'open',
			investigator_id      TEXT NOT NULL DEFAULT '',
			resolution_notes     TEXT NOT NULL DEFAULT '',
			detected_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			resolved_at          TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_cases_detected ON fraud_cases (detected_at DESC);

		CREATE TABLE IF NOT EXISTS agent_learning_log (
			seq                 BIGSERIAL PRIMARY KEY,
			agent_type          TEXT NOT NULL,
			model_version       TEXT NOT NULL,
			accuracy            DOUBLE PRECISION NOT NULL,
			precision_score     DOUBLE PRECISION NOT NULL,
			recall_score        DOUBLE PRECISION NOT NULL,
			f1_score            DOUBLE PRECISION NOT NULL,
			false_positive_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
			sample_count        INT NOT NULL,
			promoted            BOOLEAN NOT NULL,
			evaluated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_learning_agent ON agent_learning_log (agent_type, evaluated_at DESC);
	`
	_, err := s.pool.Exec(ctx, ddl)
	return err
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// ── Customers ───────────────────────────────────────────────

func (s *PostgresStore) CreateCustomer(ctx context.Context, c *models.Customer) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO customers (customer_id, first_name, last_name, email, phone, kyc_status, risk_score, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (customer_id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name  = EXCLUDED.last_name,
			email      = EXCLUDED.email,
			phone      = EXCLUDED.phone,
			kyc_status = EXCLUDED.kyc_status,
			risk_score = EXCLUDED.risk_score`,
		c.CustomerID, c.FirstName, c.LastName, c.Email, c.Phone, c.KYCStatus, c.RiskScore, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("create customer: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCustomer(ctx context.Context, id string) (*models.Customer, error) {
	var c models.Customer
	err := s.pool.QueryRow(ctx, `
		SELECT customer_id, first_name, last_name, email, phone, kyc_status, risk_score, created_at
		FROM customers WHERE customer_id = $1`, id).
		Scan(&c.CustomerID, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &c.KYCStatus, &c.RiskScore, &c.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, &ErrNotFound{Entity: "customer", Key: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) ListCustomers(ctx context.Context, limit int) ([]models.Customer, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT customer_id, first_name, last_name, email, phone, kyc_status, risk_score, created_at
		FROM customers ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	var out []models.Customer
	for rows.Next() {
		var c models.Customer
		if err := rows.Scan(&c.CustomerID, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &c.KYCStatus, &c.RiskScore, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ── Credit applications ─────────────────────────────────────

const appColumns = `app_id, customer_id, requested_amount, loan_purpose, employment_status,
	annual_income, credit_bureau_score, risk_score, decision, confidence,
	positive_factors, risk_factors, reasoning, agent_version, human_override,
	override_reason, decision_at, outcome_result, outcome_correct, outcome_notes, outcome_recorded_at`

func (s *PostgresStore) CreateApplication(ctx context.Context, app *models.CreditApplication) error {
	positive, _ := json.Marshal(app.PositiveFactors)
	risk, _ := json.Marshal(app.RiskFactors)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO credit_applications (app_id, customer_id, requested_amount, loan_purpose,
			employment_status, annual_income, credit_bureau_score, risk_score, decision,
			confidence, positive_factors, risk_factors, reasoning, agent_version, decision_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		app.AppID, app.CustomerID, app.RequestedAmount, app.LoanPurpose,
		app.EmploymentStatus, app.AnnualIncome, app.CreditBureauScore, app.RiskScore,
		app.Decision, app.Confidence, positive, risk, app.Reasoning, app.AgentVersion, app.DecisionAt)
	if err != nil {
		return fmt.Errorf("create application: %w", err)
	}
	return nil
}

func (s *PostgresStore) scanApplication(row pgx.Row) (*models.CreditApplication, error) {
	var app models.CreditApplication
	var positive, risk []byte
	var outcomeResult *string
	var outcomeCorrect *bool
	var outcomeNotes string
	var outcomeRecordedAt *time.Time

	err := row.Scan(&app.AppID, &app.CustomerID, &app.RequestedAmount, &app.LoanPurpose,
		&app.EmploymentStatus, &app.AnnualIncome, &app.CreditBureauScore, &app.RiskScore,
		&app.Decision, &app.Confidence, &positive, &risk, &app.Reasoning, &app.AgentVersion,
		&app.HumanOverride, &app.OverrideReason, &app.DecisionAt,
		&outcomeResult, &outcomeCorrect, &outcomeNotes, &outcomeRecordedAt)
	if err != nil {
		return nil, err
	}

	json.Unmarshal(positive, &app.PositiveFactors)
	json.Unmarshal(risk, &app.RiskFactors)

	if outcomeResult != nil {
		app.Outcome = &models.Outcome{
			DecisionID:   app.AppID,
			ActualResult: models.ActualResult(*outcomeResult),
			Notes:        outcomeNotes,
		}
		if outcomeCorrect != nil {
			app.Outcome.PredictionCorrect = *outcomeCorrect
		}
		if outcomeRecordedAt != nil {
			app.Outcome.RecordedAt = *outcomeRecordedAt
		}
	}
	return &app, nil
}

func (s *PostgresStore) GetApplication(ctx context.Context, id string) (*models.CreditApplication, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+appColumns+` FROM credit_applications WHERE app_id = $1`, id)
	app, err := s.scanApplication(row)
	if err == pgx.ErrNoRows {
		return nil, &ErrNotFound{Entity: "credit application", Key: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get application: %w", err)
	}
	return app, nil
}

func (s *PostgresStore) UpdateApplication(ctx context.Context, app *models.CreditApplication) error {
	var outcomeResult *string
	var outcomeCorrect *bool
	var outcomeNotes string
	var outcomeRecordedAt *time.Time
	if app.Outcome != nil {
		r := string(app.Outcome.ActualResult)
		outcomeResult = &r
		outcomeCorrect = &app.Outcome.PredictionCorrect
		outcomeNotes = app.Outcome.Notes
		outcomeRecordedAt = &app.Outcome.RecordedAt
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE credit_applications SET
			human_override = $2, override_reason = $3,
			outcome_result = $4, outcome_correct = $5,
			outcome_notes = $6, outcome_recorded_at = $7
		WHERE app_id = $1`,
		app.AppID, app.HumanOverride, app.OverrideReason,
		outcomeResult, outcomeCorrect, outcomeNotes, outcomeRecordedAt)
	if err != nil {
		return fmt.Errorf("update application: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "credit application", Key: app.AppID}
	}
	return nil
}

func (s *PostgresStore) listApplications(ctx context.Context, query string, args ...any) ([]models.CreditApplication, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	var out []models.CreditApplication
	for rows.Next() {
		app, err := s.scanApplication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *app)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListApplications(ctx context.Context, decision models.CreditOutcome, limit int) ([]models.CreditApplication, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if decision != "" {
		return s.listApplications(ctx,
			`SELECT `+appColumns+` FROM credit_applications WHERE decision = $1 ORDER BY decision_at DESC LIMIT $2`,
			decision, limit)
	}
	return s.listApplications(ctx,
		`SELECT `+appColumns+` FROM credit_applications ORDER BY decision_at DESC LIMIT $1`, limit)
}

func (s *PostgresStore) ListLabeledApplications(ctx context.Context) ([]models.CreditApplication, error) {
	return s.listApplications(ctx,
		`SELECT `+appColumns+` FROM credit_applications WHERE outcome_result IS NOT NULL`)
}

func (s *PostgresStore) CountApplications(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM credit_applications`).Scan(&n)
	return n, err
}

// ── Transactions ────────────────────────────────────────────

func (s *PostgresStore) CreateTransaction(ctx context.Context, t *models.Transaction) error {
	var lat, long *float64
	if t.Location != nil {
		lat, long = &t.Location.Lat, &t.Location.Long
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO transactions (txn_id, customer_id, amount, currency, transaction_type,
			merchant_id, merchant_category, location_lat, location_long,
			device_fingerprint, ip_address, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		t.TxnID, t.CustomerID, t.Amount, t.Currency, t.TransactionType,
		t.MerchantID, t.MerchantCategory, lat, long,
		t.DeviceFingerprint, t.IPAddress, t.Status, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	var t models.Transaction
	var lat, long *float64
	err := s.pool.QueryRow(ctx, `
		SELECT txn_id, customer_id, amount, currency, transaction_type, merchant_id,
			merchant_category, location_lat, location_long, device_fingerprint,
			ip_address, status, created_at
		FROM transactions WHERE txn_id = $1`, id).
		Scan(&t.TxnID, &t.CustomerID, &t.Amount, &t.Currency, &t.TransactionType,
			&t.MerchantID, &t.MerchantCategory, &lat, &long, &t.DeviceFingerprint,
			&t.IPAddress, &t.Status, &t.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, &ErrNotFound{Entity: "transaction", Key: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	if lat != nil && long != nil {
		t.Location = &models.Location{Lat: *lat, Long: *long}
	}
	return &t, nil
}

// ── Fraud cases ─────────────────────────────────────────────

const caseColumns = `case_id, txn_id, fraud_probability, fraud_type, confidence_score,
	agent_version, investigation_status, investigator_id, resolution_notes, detected_at, resolved_at`

func (s *PostgresStore) CreateCase(ctx context.Context, c *models.FraudCase) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO fraud_cases (case_id, txn_id, fraud_probability, fraud_type,
			confidence_score, agent_version, investigation_status, detected_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (txn_id) DO UPDATE SET
			case_id           = EXCLUDED.case_id,
			fraud_probability = EXCLUDED.fraud_probability,
			confidence_score  = EXCLUDED.confidence_score,
			detected_at       = EXCLUDED.detected_at`,
		c.CaseID, c.TxnID, c.FraudProbability, c.FraudType,
		c.ConfidenceScore, c.AgentVersion, c.InvestigationStatus, c.DetectedAt)
	if err != nil {
		return fmt.Errorf("create case: %w", err)
	}
	return nil
}

func scanCase(row pgx.Row) (*models.FraudCase, error) {
	var c models.FraudCase
	err := row.Scan(&c.CaseID, &c.TxnID, &c.FraudProbability, &c.FraudType,
		&c.ConfidenceScore, &c.AgentVersion, &c.InvestigationStatus,
		&c.InvestigatorID, &c.ResolutionNotes, &c.DetectedAt, &c.ResolvedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PostgresStore) GetCase(ctx context.Context, id string) (*models.FraudCase, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+caseColumns+` FROM fraud_cases WHERE case_id = $1`, id)
	c, err := scanCase(row)
	if err == pgx.ErrNoRows {
		return nil, &ErrNotFound{Entity: "fraud case", Key: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get case: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) UpdateCase(ctx context.Context, c *models.FraudCase) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE fraud_cases SET
			investigation_status = $2, investigator_id = $3,
			resolution_notes = $4, resolved_at = $5
		WHERE case_id = $1`,
		c.CaseID, c.InvestigationStatus, c.InvestigatorID, c.ResolutionNotes, c.ResolvedAt)
	if err != nil {
		return fmt.Errorf("update case: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "fraud case", Key: c.CaseID}
	}
	return nil
}

func (s *PostgresStore) listCases(ctx context.Context, query string, args ...any) ([]models.FraudCase, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}
	defer rows.Close()

	var out []models.FraudCase
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListCases(ctx context.Context, status models.InvestigationStatus, limit int) ([]models.FraudCase, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if status != "" {
		return s.listCases(ctx,
			`SELECT `+caseColumns+` FROM fraud_cases WHERE investigation_status = $1 ORDER BY detected_at DESC LIMIT $2`,
			status, limit)
	}
	return s.listCases(ctx,
		`SELECT `+caseColumns+` FROM fraud_cases ORDER BY detected_at DESC LIMIT $1`, limit)
}

func (s *PostgresStore) ListResolvedCases(ctx context.Context) ([]models.FraudCase, error) {
	return s.listCases(ctx,
		`SELECT `+caseColumns+` FROM fraud_cases WHERE investigation_status IN ('confirmed', 'false_positive')`)
}

func (s *PostgresStore) CountCases(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM fraud_cases`).Scan(&n)
	return n, err
}

// ── Metrics log ─────────────────────────────────────────────

func (s *PostgresStore) AppendSnapshot(ctx context.Context, snap *models.MetricsSnapshot) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO agent_learning_log (agent_type, model_version, accuracy, precision_score,
			recall_score, f1_score, false_positive_rate, sample_count, promoted, evaluated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING seq`,
		snap.AgentType, snap.ModelVersion, snap.Accuracy, snap.Precision,
		snap.Recall, snap.F1, snap.FalsePositiveRate, snap.SampleCount,
		snap.Promoted, snap.EvaluatedAt).Scan(&snap.Seq)
	if err != nil {
		return fmt.Errorf("append snapshot: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListSnapshots(ctx context.Context, agent models.AgentType, limit int) ([]models.MetricsSnapshot, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `
		SELECT seq, agent_type, model_version, accuracy, precision_score, recall_score,
			f1_score, false_positive_rate, sample_count, promoted, evaluated_at
		FROM agent_learning_log`
	args := []any{}
	if agent != "" {
		query += ` WHERE agent_type = $1 ORDER BY evaluated_at DESC, seq DESC LIMIT $2`
		args = append(args, agent, limit)
	} else {
		query += ` ORDER BY evaluated_at DESC, seq DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []models.MetricsSnapshot
	for rows.Next() {
		var m models.MetricsSnapshot
		if err := rows.Scan(&m.Seq, &m.AgentType, &m.ModelVersion, &m.Accuracy, &m.Precision,
			&m.Recall, &m.F1, &m.FalsePositiveRate, &m.SampleCount, &m.Promoted, &m.EvaluatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

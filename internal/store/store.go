// Package store provides the storage interface and implementations for
// the riskplane control plane: an in-memory store for local dev and
// tests, and a PostgreSQL-backed store for production.
package store

import (
	"context"

	"github.com/riskplane/riskplane/pkg/models"
)

// DefaultListLimit bounds list queries when the caller gives no limit.
const DefaultListLimit = 100

// Store is the primary storage interface. All handler and aggregator
// code depends on this interface, making it easy to swap between
// in-memory (tests) and PostgreSQL (production) implementations.
type Store interface {
	CustomerStore
	ApplicationStore
	TransactionStore
	CaseStore
	MetricsStore

	// Ping checks if the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error
}

// ── Customer Store ──────────────────────────────────────────

type CustomerStore interface {
	CreateCustomer(ctx context.Context, customer *models.Customer) error
	GetCustomer(ctx context.Context, id string) (*models.Customer, error)
	ListCustomers(ctx context.Context, limit int) ([]models.Customer, error)
}

// ── Credit Application Store ────────────────────────────────

type ApplicationStore interface {
	CreateApplication(ctx context.Context, app *models.CreditApplication) error
	GetApplication(ctx context.Context, id string) (*models.CreditApplication, error)

	// UpdateApplication replaces the stored record; used to attach or
	// revise the ground-truth outcome.
	UpdateApplication(ctx context.Context, app *models.CreditApplication) error

	// ListApplications returns recent applications ordered by decision
	// time descending. decision filters by category when non-empty.
	ListApplications(ctx context.Context, decision models.CreditOutcome, limit int) ([]models.CreditApplication, error)

	// ListLabeledApplications returns every application that carries an
	// attached outcome, for metric computation.
	ListLabeledApplications(ctx context.Context) ([]models.CreditApplication, error)

	// CountApplications returns the total number of applications.
	CountApplications(ctx context.Context) (int, error)
}

// ── Transaction Store ───────────────────────────────────────

type TransactionStore interface {
	CreateTransaction(ctx context.Context, txn *models.Transaction) error
	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)
}

// ── Fraud Case Store ────────────────────────────────────────

type CaseStore interface {
	// CreateCase persists a new investigation case. The referenced
	// transaction must already be durably committed; at most one case
	// exists per transaction.
	CreateCase(ctx context.Context, c *models.FraudCase) error
	GetCase(ctx context.Context, id string) (*models.FraudCase, error)
	UpdateCase(ctx context.Context, c *models.FraudCase) error

	// ListCases returns recent cases ordered by detection time
	// descending. status filters when non-empty.
	ListCases(ctx context.Context, status models.InvestigationStatus, limit int) ([]models.FraudCase, error)

	// ListResolvedCases returns cases whose investigation concluded
	// (confirmed or false_positive), for metric computation.
	ListResolvedCases(ctx context.Context) ([]models.FraudCase, error)

	// CountCases returns the total number of cases.
	CountCases(ctx context.Context) (int, error)
}

// ── Metrics Store ───────────────────────────────────────────

// MetricsStore is the append-only agent learning log. Snapshots are
// never mutated or deleted.
type MetricsStore interface {
	// AppendSnapshot assigns the next sequence number and appends.
	AppendSnapshot(ctx context.Context, snap *models.MetricsSnapshot) error

	// ListSnapshots returns the latest snapshots ordered by evaluation
	// time descending. agent filters by type when non-empty.
	ListSnapshots(ctx context.Context, agent models.AgentType, limit int) ([]models.MetricsSnapshot, error)
}

// ── Errors ──────────────────────────────────────────────────

// ErrNotFound is returned when a requested entity does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}

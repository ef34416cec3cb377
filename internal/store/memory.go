// Package store — in-memory Store implementation.
// Used as a fallback when PostgreSQL is not available (local dev, tests).
// Supports file-based snapshot persistence so data survives restarts.
package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/riskplane/riskplane/pkg/models"
	"github.com/rs/zerolog/log"
)

// snapshot is the JSON-serializable shape written to disk.
type snapshot struct {
	Customers    map[string]*models.Customer          `json:"customers"`
	Applications map[string]*models.CreditApplication `json:"applications"`
	Transactions map[string]*models.Transaction       `json:"transactions"`
	Cases        map[string]*models.FraudCase         `json:"cases"`
	Snapshots    []*models.MetricsSnapshot            `json:"metrics_snapshots"`
	NextSeq      int64                                `json:"next_seq"`
}

// MemoryStore implements Store with in-memory maps.
type MemoryStore struct {
	mu           sync.RWMutex
	customers    map[string]*models.Customer          // key: customer_id
	applications map[string]*models.CreditApplication // key: app_id
	transactions map[string]*models.Transaction       // key: txn_id
	cases        map[string]*models.FraudCase         // key: case_id
	casesByTxn   map[string]string                    // txn_id → case_id (unique case per txn)
	snapshots    []*models.MetricsSnapshot            // append-only log
	nextSeq      int64

	// Persistence
	snapshotPath string        // empty = no persistence
	saveMu       sync.Mutex    // guards file writes
	saveCh       chan struct{} // debounce channel
	doneCh       chan struct{} // signals background goroutine to stop
	closeOnce    sync.Once
}

// NewMemoryStore creates a new in-memory store.
// If RISKPLANE_DATA_DIR is set, data is persisted to a JSON file in that
// directory. Otherwise defaults to ~/.riskplane/data.json.
func NewMemoryStore() *MemoryStore {
	m := &MemoryStore{
		customers:    make(map[string]*models.Customer),
		applications: make(map[string]*models.CreditApplication),
		transactions: make(map[string]*models.Transaction),
		cases:        make(map[string]*models.FraudCase),
		casesByTxn:   make(map[string]string),
		snapshots:    make([]*models.MetricsSnapshot, 0),
		nextSeq:      1,
		saveCh:       make(chan struct{}, 1),
		doneCh:       make(chan struct{}),
	}

	dataDir := os.Getenv("RISKPLANE_DATA_DIR")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			dataDir = filepath.Join(home, ".riskplane")
		}
	}
	if dataDir != "" {
		m.snapshotPath = filepath.Join(dataDir, "data.json")
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			log.Warn().Err(err).Str("dir", dataDir).Msg("Cannot create data dir, persistence disabled")
			m.snapshotPath = ""
		}
	}

	if m.snapshotPath != "" {
		m.loadSnapshot()
		go m.saveLoop()
	}

	log.Info().Str("snapshot", m.snapshotPath).Msg("Memory store configured")
	return m
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

func (m *MemoryStore) Close() error {
	m.closeOnce.Do(func() {
		close(m.doneCh)
		if m.snapshotPath != "" {
			m.saveSnapshot()
		}
	})
	return nil
}

// ── Customers ───────────────────────────────────────────────

func (m *MemoryStore) CreateCustomer(ctx context.Context, customer *models.Customer) error {
	m.mu.Lock()
	m.customers[customer.CustomerID] = customer
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) GetCustomer(ctx context.Context, id string) (*models.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.customers[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "customer", Key: id}
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) ListCustomers(ctx context.Context, limit int) ([]models.Customer, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	m.mu.RLock()
	out := make([]models.Customer, 0, len(m.customers))
	for _, c := range m.customers {
		out = append(out, *c)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ── Credit applications ─────────────────────────────────────

func (m *MemoryStore) CreateApplication(ctx context.Context, app *models.CreditApplication) error {
	m.mu.Lock()
	cp := *app
	m.applications[app.AppID] = &cp
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) GetApplication(ctx context.Context, id string) (*models.CreditApplication, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	app, ok := m.applications[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "credit application", Key: id}
	}
	cp := *app
	return &cp, nil
}

func (m *MemoryStore) UpdateApplication(ctx context.Context, app *models.CreditApplication) error {
	m.mu.Lock()
	defer func() { m.mu.Unlock(); m.requestSave() }()
	if _, ok := m.applications[app.AppID]; !ok {
		return &ErrNotFound{Entity: "credit application", Key: app.AppID}
	}
	cp := *app
	m.applications[app.AppID] = &cp
	return nil
}

func (m *MemoryStore) ListApplications(ctx context.Context, decision models.CreditOutcome, limit int) ([]models.CreditApplication, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	m.mu.RLock()
	out := make([]models.CreditApplication, 0, len(m.applications))
	for _, app := range m.applications {
		if decision != "" && app.Decision != decision {
			continue
		}
		out = append(out, *app)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].DecisionAt.After(out[j].DecisionAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) ListLabeledApplications(ctx context.Context) ([]models.CreditApplication, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.CreditApplication, 0)
	for _, app := range m.applications {
		if app.Outcome != nil {
			out = append(out, *app)
		}
	}
	return out, nil
}

func (m *MemoryStore) CountApplications(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.applications), nil
}

// ── Transactions ────────────────────────────────────────────

func (m *MemoryStore) CreateTransaction(ctx context.Context, txn *models.Transaction) error {
	m.mu.Lock()
	cp := *txn
	m.transactions[txn.TxnID] = &cp
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	txn, ok := m.transactions[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "transaction", Key: id}
	}
	cp := *txn
	return &cp, nil
}

// ── Fraud cases ─────────────────────────────────────────────

func (m *MemoryStore) CreateCase(ctx context.Context, c *models.FraudCase) error {
	m.mu.Lock()
	defer func() { m.mu.Unlock(); m.requestSave() }()

	// One case per transaction: a re-check of the same transaction
	// replaces its open case rather than creating a duplicate.
	if existing, ok := m.casesByTxn[c.TxnID]; ok {
		delete(m.cases, existing)
	}
	cp := *c
	m.cases[c.CaseID] = &cp
	m.casesByTxn[c.TxnID] = c.CaseID
	return nil
}

func (m *MemoryStore) GetCase(ctx context.Context, id string) (*models.FraudCase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.cases[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "fraud case", Key: id}
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) UpdateCase(ctx context.Context, c *models.FraudCase) error {
	m.mu.Lock()
	defer func() { m.mu.Unlock(); m.requestSave() }()
	if _, ok := m.cases[c.CaseID]; !ok {
		return &ErrNotFound{Entity: "fraud case", Key: c.CaseID}
	}
	cp := *c
	m.cases[c.CaseID] = &cp
	return nil
}

func (m *MemoryStore) ListCases(ctx context.Context, status models.InvestigationStatus, limit int) ([]models.FraudCase, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	m.mu.RLock()
	out := make([]models.FraudCase, 0, len(m.cases))
	for _, c := range m.cases {
		if status != "" && c.InvestigationStatus != status {
			continue
		}
		out = append(out, *c)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].DetectedAt.After(out[j].DetectedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) ListResolvedCases(ctx context.Context) ([]models.FraudCase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.FraudCase, 0)
	for _, c := range m.cases {
		if c.InvestigationStatus == models.CaseConfirmed || c.InvestigationStatus == models.CaseFalsePositive {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *MemoryStore) CountCases(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.cases), nil
}

// ── Metrics log ─────────────────────────────────────────────

func (m *MemoryStore) AppendSnapshot(ctx context.Context, snap *models.MetricsSnapshot) error {
	m.mu.Lock()
	snap.Seq = m.nextSeq
	m.nextSeq++
	cp := *snap
	m.snapshots = append(m.snapshots, &cp)
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) ListSnapshots(ctx context.Context, agent models.AgentType, limit int) ([]models.MetricsSnapshot, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	m.mu.RLock()
	out := make([]models.MetricsSnapshot, 0, len(m.snapshots))
	for _, s := range m.snapshots {
		if agent != "" && s.AgentType != agent {
			continue
		}
		out = append(out, *s)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].EvaluatedAt.Equal(out[j].EvaluatedAt) {
			return out[i].Seq > out[j].Seq
		}
		return out[i].EvaluatedAt.After(out[j].EvaluatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ── Persistence ─────────────────────────────────────────────

// requestSave signals the background goroutine to persist data.
// Non-blocking: coalesces multiple rapid writes into one disk flush.
func (m *MemoryStore) requestSave() {
	if m.snapshotPath == "" {
		return
	}
	select {
	case m.saveCh <- struct{}{}:
	default:
		// Already pending
	}
}

// saveLoop runs in a goroutine, debouncing save requests (max 1 write per 500ms).
func (m *MemoryStore) saveLoop() {
	for {
		select {
		case <-m.doneCh:
			return
		case <-m.saveCh:
			time.Sleep(500 * time.Millisecond) // debounce
			m.saveSnapshot()
		}
	}
}

// saveSnapshot persists all data to disk as JSON.
func (m *MemoryStore) saveSnapshot() {
	m.mu.RLock()
	snap := snapshot{
		Customers:    m.customers,
		Applications: m.applications,
		Transactions: m.transactions,
		Cases:        m.cases,
		Snapshots:    m.snapshots,
		NextSeq:      m.nextSeq,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	m.mu.RUnlock()

	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal snapshot")
		return
	}

	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	// Write to temp file then rename for atomicity
	tmp := m.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		log.Error().Err(err).Str("path", tmp).Msg("Failed to write snapshot tmp")
		return
	}
	if err := os.Rename(tmp, m.snapshotPath); err != nil {
		log.Error().Err(err).Str("path", m.snapshotPath).Msg("Failed to rename snapshot")
		return
	}

	log.Debug().Str("path", m.snapshotPath).Msg("Snapshot saved")
}

// loadSnapshot reads data from disk on startup.
func (m *MemoryStore) loadSnapshot() {
	data, err := os.ReadFile(m.snapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", m.snapshotPath).Msg("No snapshot file found, starting fresh")
			return
		}
		log.Warn().Err(err).Str("path", m.snapshotPath).Msg("Failed to read snapshot")
		return
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Error().Err(err).Str("path", m.snapshotPath).Msg("Failed to parse snapshot, starting fresh")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if snap.Customers != nil {
		m.customers = snap.Customers
	}
	if snap.Applications != nil {
		m.applications = snap.Applications
	}
	if snap.Transactions != nil {
		m.transactions = snap.Transactions
	}
	if snap.Cases != nil {
		m.cases = snap.Cases
	}
	if snap.Snapshots != nil {
		m.snapshots = snap.Snapshots
	}
	if snap.NextSeq > 0 {
		m.nextSeq = snap.NextSeq
	}
	for id, c := range m.cases {
		m.casesByTxn[c.TxnID] = id
	}

	log.Info().
		Int("customers", len(m.customers)).
		Int("applications", len(m.applications)).
		Int("cases", len(m.cases)).
		Msg("Snapshot loaded")
}

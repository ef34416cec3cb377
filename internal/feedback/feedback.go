// Package feedback closes the learning loop: it attaches operator
// ground truth to past decisions and aggregates outcome-labeled records
// into accuracy/precision/recall/F1 snapshots with a promotion verdict.
package feedback

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/riskplane/riskplane/internal/policy"
	"github.com/riskplane/riskplane/internal/store"
	"github.com/riskplane/riskplane/pkg/models"
	"github.com/rs/zerolog/log"
)

// ErrInvalidFeedback reports a malformed feedback submission.
type ErrInvalidFeedback struct {
	Reason string
}

func (e *ErrInvalidFeedback) Error() string { return "invalid feedback: " + e.Reason }

// Service applies feedback submissions and serves learning stats.
type Service struct {
	store  store.Store
	policy policy.Policy
}

// NewService creates a feedback service.
func NewService(s store.Store, pol policy.Policy) *Service {
	return &Service{store: s, policy: pol}
}

// Apply records ground truth for a decision. Credit feedback attaches an
// Outcome to the application; fraud feedback resolves the investigation
// status directly on the case. Resubmitting the same outcome is
// idempotent: the stored prediction_correct classification never
// changes for the same (entity, outcome) pair.
func (s *Service) Apply(ctx context.Context, req models.FeedbackRequest) (*models.FeedbackResult, error) {
	switch req.EntityType {
	case models.EntityCreditApplication:
		return s.applyCredit(ctx, req)
	case models.EntityFraudCase:
		return s.applyFraud(ctx, req)
	default:
		return nil, &ErrInvalidFeedback{Reason: fmt.Sprintf("unknown entity_type %q", req.EntityType)}
	}
}

func (s *Service) applyCredit(ctx context.Context, req models.FeedbackRequest) (*models.FeedbackResult, error) {
	actual := models.ActualResult(req.ActualOutcome)
	if actual != models.ResultPaidOnTime && actual != models.ResultDefault {
		return nil, &ErrInvalidFeedback{Reason: fmt.Sprintf("unknown actual_outcome %q for credit application", req.ActualOutcome)}
	}

	app, err := s.store.GetApplication(ctx, req.EntityID)
	if err != nil {
		return nil, err
	}

	wasCorrect := (app.Decision == models.CreditApproved && actual == models.ResultPaidOnTime) ||
		(app.Decision == models.CreditRejected && actual == models.ResultDefault)

	app.Outcome = &models.Outcome{
		DecisionID:        app.AppID,
		ActualResult:      actual,
		PredictionCorrect: wasCorrect,
		Notes:             req.Notes,
		RecordedAt:        time.Now().UTC(),
	}

	if err := s.store.UpdateApplication(ctx, app); err != nil {
		return nil, err
	}

	log.Info().
		Str("application", app.AppID).
		Str("actual", string(actual)).
		Bool("correct", wasCorrect).
		Msg("Credit feedback recorded")

	return &models.FeedbackResult{
		FeedbackID: uuid.New().String(),
		Accepted:   true,
		WasCorrect: wasCorrect,
		Message:    fmt.Sprintf("Feedback recorded for credit application. Prediction was %s.", correctness(wasCorrect)),
	}, nil
}

func (s *Service) applyFraud(ctx context.Context, req models.FeedbackRequest) (*models.FeedbackResult, error) {
	c, err := s.store.GetCase(ctx, req.EntityID)
	if err != nil {
		return nil, err
	}

	status := models.CaseFalsePositive
	if strings.Contains(req.ActualOutcome, "confirmed") {
		status = models.CaseConfirmed
	}

	now := time.Now().UTC()
	c.InvestigationStatus = status
	c.ResolutionNotes = req.Notes
	c.ResolvedAt = &now

	wasCorrect := (s.policy.RequiresCase(c.FraudProbability) && status == models.CaseConfirmed) ||
		(!s.policy.RequiresCase(c.FraudProbability) && status == models.CaseFalsePositive)

	if err := s.store.UpdateCase(ctx, c); err != nil {
		return nil, err
	}

	log.Info().
		Str("case", c.CaseID).
		Str("status", string(status)).
		Bool("correct", wasCorrect).
		Msg("Fraud feedback recorded")

	return &models.FeedbackResult{
		FeedbackID: uuid.New().String(),
		Accepted:   true,
		WasCorrect: wasCorrect,
		Message:    fmt.Sprintf("Feedback recorded for fraud case. Detection was %s.", correctness(wasCorrect)),
	}, nil
}

func correctness(correct bool) string {
	if correct {
		return "correct"
	}
	return "incorrect"
}

// Stats returns the live learning summary for both agents plus the
// recent snapshot history.
func (s *Service) Stats(ctx context.Context) (*models.LearningStats, error) {
	stats := &models.LearningStats{}

	total, err := s.store.CountApplications(ctx)
	if err != nil {
		return nil, fmt.Errorf("count applications: %w", err)
	}
	labeled, err := s.store.ListLabeledApplications(ctx)
	if err != nil {
		return nil, fmt.Errorf("list labeled applications: %w", err)
	}

	creditCorrect := 0
	for _, app := range labeled {
		if app.Outcome.PredictionCorrect {
			creditCorrect++
		}
	}
	stats.CreditAgent = models.AgentStats{
		Total:        total,
		WithFeedback: len(labeled),
		Correct:      creditCorrect,
		Accuracy:     ratio(creditCorrect, len(labeled)),
	}

	caseTotal, err := s.store.CountCases(ctx)
	if err != nil {
		return nil, fmt.Errorf("count cases: %w", err)
	}
	resolved, err := s.store.ListResolvedCases(ctx)
	if err != nil {
		return nil, fmt.Errorf("list resolved cases: %w", err)
	}

	fraudCorrect := 0
	for _, c := range resolved {
		flagged := s.policy.RequiresCase(c.FraudProbability)
		if (flagged && c.InvestigationStatus == models.CaseConfirmed) ||
			(!flagged && c.InvestigationStatus == models.CaseFalsePositive) {
			fraudCorrect++
		}
	}
	stats.FraudAgent = models.AgentStats{
		Total:        caseTotal,
		WithFeedback: len(resolved),
		Correct:      fraudCorrect,
		Accuracy:     ratio(fraudCorrect, len(resolved)),
	}

	snapshots, err := s.store.ListSnapshots(ctx, "", 10)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	stats.RecentSnapshots = snapshots

	return stats, nil
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

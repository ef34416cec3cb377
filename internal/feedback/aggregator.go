package feedback

import (
	"context"
	"fmt"
	"time"

	"github.com/riskplane/riskplane/internal/policy"
	"github.com/riskplane/riskplane/internal/store"
	"github.com/riskplane/riskplane/pkg/models"
	"github.com/rs/zerolog/log"
)

// CandidateModelVersion labels the model revision each evaluation run
// scores for promotion.
const CandidateModelVersion = "v1.1"

// Aggregator converts outcome-labeled decisions into confusion-matrix
// metrics and a promotion verdict. It reads a point-in-time snapshot of
// the store; records committed mid-computation are picked up by the
// next run.
type Aggregator struct {
	store  store.Store
	policy policy.Policy
}

// NewAggregator creates a metrics aggregator.
func NewAggregator(s store.Store, pol policy.Policy) *Aggregator {
	return &Aggregator{store: s, policy: pol}
}

// ComputeMetrics evaluates one agent type over all outcome-labeled
// records, appends the snapshot to the learning log, and returns it.
// ok=false means no labeled records exist yet: nothing is logged and
// the caller should skip (this is not an error).
func (a *Aggregator) ComputeMetrics(ctx context.Context, agent models.AgentType) (*models.MetricsSnapshot, bool, error) {
	var snap *models.MetricsSnapshot
	var err error

	switch agent {
	case models.AgentCredit:
		snap, err = a.creditMetrics(ctx)
	case models.AgentFraud:
		snap, err = a.fraudMetrics(ctx)
	default:
		return nil, false, fmt.Errorf("unknown agent type %q", agent)
	}
	if err != nil {
		return nil, false, err
	}
	if snap == nil {
		log.Info().Str("agent", string(agent)).Msg("No outcome-labeled records, skipping evaluation")
		return nil, false, nil
	}

	if err := a.store.AppendSnapshot(ctx, snap); err != nil {
		return nil, false, fmt.Errorf("append snapshot: %w", err)
	}

	log.Info().
		Str("agent", string(agent)).
		Float64("accuracy", snap.Accuracy).
		Float64("f1", snap.F1).
		Int("samples", snap.SampleCount).
		Bool("promoted", snap.Promoted).
		Msg("Agent evaluation logged")

	return snap, true, nil
}

func (a *Aggregator) creditMetrics(ctx context.Context) (*models.MetricsSnapshot, error) {
	apps, err := a.store.ListLabeledApplications(ctx)
	if err != nil {
		return nil, fmt.Errorf("list labeled applications: %w", err)
	}
	if len(apps) == 0 {
		return nil, nil
	}

	var correct, tp, fp, fn int
	for _, app := range apps {
		approved := app.Decision == models.CreditApproved
		rejected := app.Decision == models.CreditRejected
		paid := app.Outcome.ActualResult == models.ResultPaidOnTime
		defaulted := app.Outcome.ActualResult == models.ResultDefault

		if (approved && paid) || (rejected && defaulted) {
			correct++
		}
		if approved && paid {
			tp++
		}
		if approved && defaulted {
			fp++
		}
		if rejected && paid {
			fn++
		}
	}

	total := len(apps)
	accuracy := ratio(correct, total)
	precision := ratio(tp, tp+fp)
	recall := ratio(tp, tp+fn)

	return &models.MetricsSnapshot{
		AgentType:    models.AgentCredit,
		ModelVersion: CandidateModelVersion,
		Accuracy:     accuracy,
		Precision:    precision,
		Recall:       recall,
		F1:           f1(precision, recall),
		SampleCount:  total,
		Promoted:     a.policy.Promotes(models.AgentCredit, accuracy),
		EvaluatedAt:  time.Now().UTC(),
	}, nil
}

func (a *Aggregator) fraudMetrics(ctx context.Context) (*models.MetricsSnapshot, error) {
	cases, err := a.store.ListResolvedCases(ctx)
	if err != nil {
		return nil, fmt.Errorf("list resolved cases: %w", err)
	}
	if len(cases) == 0 {
		return nil, nil
	}

	var correct, tp, fp, fn, falsePositiveLabeled int
	for _, c := range cases {
		flagged := a.policy.RequiresCase(c.FraudProbability)
		confirmed := c.InvestigationStatus == models.CaseConfirmed
		falsePositive := c.InvestigationStatus == models.CaseFalsePositive

		if (flagged && confirmed) || (!flagged && falsePositive) {
			correct++
		}
		if flagged && confirmed {
			tp++
		}
		if flagged && falsePositive {
			fp++
		}
		if !flagged && confirmed {
			fn++
		}
		if falsePositive {
			falsePositiveLabeled++
		}
	}

	total := len(cases)
	accuracy := ratio(correct, total)
	precision := ratio(tp, tp+fp)
	recall := ratio(tp, tp+fn)

	return &models.MetricsSnapshot{
		AgentType:         models.AgentFraud,
		ModelVersion:      CandidateModelVersion,
		Accuracy:          accuracy,
		Precision:         precision,
		Recall:            recall,
		F1:                f1(precision, recall),
		FalsePositiveRate: ratio(fp, fp+falsePositiveLabeled),
		SampleCount:       total,
		Promoted:          a.policy.Promotes(models.AgentFraud, accuracy),
		EvaluatedAt:       time.Now().UTC(),
	}, nil
}

func f1(precision, recall float64) float64 {
	if precision+recall == 0 {
		return 0
	}
	return 2 * precision * recall / (precision + recall)
}

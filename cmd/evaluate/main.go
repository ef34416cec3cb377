// evaluate runs a one-shot metrics evaluation over all labeled
// decisions in the configured store and prints the resulting
// snapshots. Intended for cron or manual runs against PostgreSQL.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/riskplane/riskplane/internal/config"
	"github.com/riskplane/riskplane/internal/feedback"
	"github.com/riskplane/riskplane/internal/policy"
	"github.com/riskplane/riskplane/internal/store"
	"github.com/riskplane/riskplane/pkg/models"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	agentFlag := flag.String("agent", "", "evaluate a single agent (credit or fraud); default both")
	flag.Parse()

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

	pol := policy.Default().WithMode(cfg.Decision.Mode)
	agg := feedback.NewAggregator(s, pol)

	agents := []models.AgentType{models.AgentCredit, models.AgentFraud}
	if *agentFlag != "" {
		agents = []models.AgentType{models.AgentType(*agentFlag)}
	}

	for _, agent := range agents {
		snap, ok, err := agg.ComputeMetrics(ctx, agent)
		if err != nil {
			log.Fatal().Err(err).Str("agent", string(agent)).Msg("Evaluation failed")
		}
		if !ok {
			log.Warn().Str("agent", string(agent)).Msg("No labeled outcomes yet, skipping")
			continue
		}

		event := log.Info().
			Str("agent", string(agent)).
			Str("model_version", snap.ModelVersion).
			Float64("accuracy", snap.Accuracy).
			Float64("precision", snap.Precision).
			Float64("recall", snap.Recall).
			Float64("f1", snap.F1).
			Int("samples", snap.SampleCount).
			Bool("promoted", snap.Promoted)
		if agent == models.AgentFraud {
			event = event.Float64("false_positive_rate", snap.FalsePositiveRate)
		}
		event.Msg("Evaluation complete")
	}
}

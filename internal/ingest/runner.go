package ingest

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tsesc/tw-homedog/internal/db"
	"github.com/tsesc/tw-homedog/internal/dedup"
	"github.com/tsesc/tw-homedog/internal/globaltime"
	"github.com/tsesc/tw-homedog/internal/normalize"
	payloadschema "github.com/tsesc/tw-homedog/schema"
)

// RunReport is the accounting for one ingestion batch.
type RunReport struct {
	RunID       int64          `json:"run_id"`
	Seen        int            `json:"seen"`
	Added       int            `json:"added"`
	Skipped     int            `json:"skipped"`
	Invalid     int            `json:"invalid"`
	SkipReasons map[string]int `json:"skip_reasons,omitempty"`
}

// Runner drives validated scraper batches through normalization and the
// dedup gate, keeping the scrape run ledger.
type Runner struct {
	pool   *db.Pool
	gate   *Gate
	logger zerolog.Logger
}

func NewRunner(pool *db.Pool, logger zerolog.Logger, params dedup.Params) (*Runner, error) {
	gate, err := NewGate(pool, logger, params)
	if err != nil {
		return nil, err
	}
	return &Runner{
		pool:   pool,
		gate:   gate,
		logger: logger.With().Str("component", "ingest_runner").Logger(),
	}, nil
}

// Gate exposes the runner's dedup gate for callers admitting single records.
func (r *Runner) Gate() *Gate {
	return r.gate
}

// IngestBatch runs one scraper batch. Every payload is counted; invalid ones
// are logged and skipped without aborting the batch. The ledger row is
// closed even when the context is cancelled mid-batch.
func (r *Runner) IngestBatch(ctx context.Context, source string, payloads []payloadschema.ListingPayload) (RunReport, error) {
	if source == "" {
		return RunReport{}, fmt.Errorf("source is required")
	}

	runID, err := db.StartScrapeRun(ctx, r.pool, source, globaltime.UTC())
	if err != nil {
		return RunReport{}, err
	}

	report := RunReport{RunID: runID, SkipReasons: make(map[string]int)}
	batch := NewBatch()

	var runErr error
	for i := range payloads {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		report.Seen++
		payload := &payloads[i]

		listing, err := normalize.Listing(payload, globaltime.UTC())
		if err != nil {
			report.Invalid++
			report.Skipped++
			r.logger.Warn().Err(err).
				Str("source", payload.Source).
				Str("listing_id", payload.ListingID).
				Msg("payload failed normalization")
			continue
		}

		decision, err := r.gate.Admit(ctx, listing, batch)
		if err != nil {
			runErr = err
			break
		}
		if decision.Admitted {
			report.Added++
		} else {
			report.Skipped++
			report.SkipReasons[decision.Reason]++
		}
	}

	result := db.ScrapeRunResult{
		Status:       db.RunStatusSucceeded,
		ItemsSeen:    report.Seen,
		ItemsAdded:   report.Added,
		ItemsSkipped: report.Skipped,
	}
	if runErr != nil {
		msg := runErr.Error()
		result.Status = db.RunStatusFailed
		result.ErrorMessage = &msg
	}

	finishCtx := ctx
	if finishCtx.Err() != nil {
		finishCtx = context.WithoutCancel(ctx)
	}
	if err := db.FinishScrapeRun(finishCtx, r.pool, runID, result, globaltime.UTC()); err != nil {
		r.logger.Error().Err(err).Int64("run_id", runID).Msg("failed to close scrape run")
		if runErr == nil {
			runErr = err
		}
	}

	r.logger.Info().
		Int64("run_id", runID).
		Str("run_source", source).
		Int("seen", report.Seen).
		Int("added", report.Added).
		Int("skipped", report.Skipped).
		Msg("ingest batch finished")

	return report, runErr
}

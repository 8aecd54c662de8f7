// Package trials drives repeated throughput trials against a selected
// endpoint and aggregates the successful ones into averages.
package trials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"netquality-tester/pkg/models"
)

// ErrNoSuccessfulTrials reports that every trial of a run failed. It is
// distinct from a run where only some trials failed; those still yield an
// aggregate.
var ErrNoSuccessfulTrials = errors.New("no throughput trial succeeded")

// Provider performs a single throughput measurement in one direction.
// Returned errors are treated as transient and consume one retry; the
// runner does not distinguish error subtypes.
type Provider interface {
	MeasureDownload(ctx context.Context) (mbps, dataMB float64, err error)
	MeasureUpload(ctx context.Context) (mbps, dataMB float64, err error)
}

// Runner retries individual trials within a bounded budget and applies the
// trial-accounting rules: upload only runs when download succeeded in the
// same iteration, and an iteration counts as successful on download success
// alone.
type Runner struct {
	provider Provider
	logger   *slog.Logger
}

func NewRunner(provider Provider, logger *slog.Logger) *Runner {
	return &Runner{provider: provider, logger: logger}
}

// RunTrial attempts one measurement in the given direction, retrying up to
// retryBudget times. It returns nil once the budget is exhausted; the
// caller treats that as a failed direction, not a fatal error.
func (r *Runner) RunTrial(ctx context.Context, direction models.Direction, retryBudget int) *models.TrialOutcome {
	for attempt := 1; attempt <= retryBudget; attempt++ {
		var (
			mbps, dataMB float64
			err          error
		)
		if direction == models.DirectionDownload {
			mbps, dataMB, err = r.provider.MeasureDownload(ctx)
		} else {
			mbps, dataMB, err = r.provider.MeasureUpload(ctx)
		}
		if err != nil {
			r.logger.Warn("measurement attempt failed",
				"direction", direction,
				"attempt", attempt,
				"budget", retryBudget,
				"error", err)
			continue
		}
		return &models.TrialOutcome{
			Direction:      direction,
			ThroughputMbps: mbps,
			DataUsedMB:     dataMB,
		}
	}

	r.logger.Warn("measurement failed after exhausting retries", "direction", direction, "budget", retryBudget)
	return nil
}

// RunTrials runs trialCount paired download/upload trials and averages the
// successes. It returns ErrNoSuccessfulTrials when not a single download
// succeeded.
func (r *Runner) RunTrials(ctx context.Context, trialCount, retryBudget int) (*models.AggregateTrialResult, error) {
	if trialCount < 1 {
		return nil, fmt.Errorf("trial count must be positive, got %d", trialCount)
	}
	if retryBudget < 1 {
		return nil, fmt.Errorf("trial retry budget must be positive, got %d", retryBudget)
	}

	var (
		totalDownMbps, totalDownMB float64
		totalUpMbps, totalUpMB     float64
		successful                 int
	)

	for i := 1; i <= trialCount; i++ {
		r.logger.Info("running download trial", "trial", i, "of", trialCount)
		down := r.RunTrial(ctx, models.DirectionDownload, retryBudget)
		if down == nil {
			// Upload is gated on download: a failed download skips the
			// whole iteration.
			continue
		}
		totalDownMbps += down.ThroughputMbps
		totalDownMB += down.DataUsedMB

		r.logger.Info("running upload trial", "trial", i, "of", trialCount)
		if up := r.RunTrial(ctx, models.DirectionUpload, retryBudget); up != nil {
			totalUpMbps += up.ThroughputMbps
			totalUpMB += up.DataUsedMB
		}

		// The iteration counts on download success alone, even when the
		// upload leg failed.
		successful++
	}

	if successful == 0 {
		return nil, ErrNoSuccessfulTrials
	}

	n := float64(successful)
	return &models.AggregateTrialResult{
		AvgDownloadMbps:   totalDownMbps / n,
		AvgUploadMbps:     totalUpMbps / n,
		AvgDownloadDataMB: totalDownMB / n,
		AvgUploadDataMB:   totalUpMB / n,
		SuccessfulTrials:  successful,
	}, nil
}

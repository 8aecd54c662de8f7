package measurement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"netquality-tester/pkg/models"
	"netquality-tester/pkg/pingstats"
	"netquality-tester/pkg/selector"
	"netquality-tester/pkg/trials"

	"github.com/google/uuid"
)

// Config carries the per-run budgets. Every field must be positive.
type Config struct {
	TrialCount           int
	TrialRetryBudget     int
	SelectionRetryBudget int
	PingSampleCount      int
}

func (c Config) validate() error {
	if c.TrialCount < 1 {
		return fmt.Errorf("trial count must be positive, got %d", c.TrialCount)
	}
	if c.TrialRetryBudget < 1 {
		return fmt.Errorf("trial retry budget must be positive, got %d", c.TrialRetryBudget)
	}
	if c.SelectionRetryBudget < 1 {
		return fmt.Errorf("selection retry budget must be positive, got %d", c.SelectionRetryBudget)
	}
	if c.PingSampleCount < 1 {
		return fmt.Errorf("ping sample count must be positive, got %d", c.PingSampleCount)
	}
	return nil
}

// ProviderFactory builds the throughput provider bound to the endpoint a
// run selected. The binding matters: throughput and latency must measure
// the same network path.
type ProviderFactory func(endpoint *models.ResolvedEndpoint) trials.Provider

// MetadataFunc collects best-effort client metadata for the report. A nil
// func disables collection; errors degrade to a nil ClientInfo.
type MetadataFunc func(ctx context.Context) (*models.ClientInfo, error)

// Service runs end-to-end measurements. Each Run constructs fresh trial
// state; a Service holds no mutable state across runs.
type Service struct {
	selector    *selector.Selector
	providerFor ProviderFactory
	collector   *pingstats.Collector
	metadata    MetadataFunc
	logger      *slog.Logger
}

func NewService(sel *selector.Selector, providerFor ProviderFactory, collector *pingstats.Collector, logger *slog.Logger) *Service {
	return &Service{
		selector:    sel,
		providerFor: providerFor,
		collector:   collector,
		logger:      logger,
	}
}

// WithMetadata enables client metadata collection on the resulting reports.
func (s *Service) WithMetadata(fn MetadataFunc) *Service {
	s.metadata = fn
	return s
}

// Run performs one measurement: select a server, run throughput trials
// against it, then collect packet-loss and latency statistics against the
// same resolved address.
func (s *Service) Run(ctx context.Context, cfg Config) (*models.MeasurementResult, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	result := &models.MeasurementResult{
		RunID: uuid.NewString(),
		Time:  time.Now(),
	}

	endpoint, usedFallback, err := s.selector.Select(ctx, cfg.SelectionRetryBudget)
	if err != nil {
		return nil, err
	}
	result.Endpoint = endpoint
	result.UsedFallback = usedFallback

	runner := trials.NewRunner(s.providerFor(endpoint), s.logger)
	aggregate, err := runner.RunTrials(ctx, cfg.TrialCount, cfg.TrialRetryBudget)
	switch {
	case errors.Is(err, trials.ErrNoSuccessfulTrials):
		// Latency characterization is still worth having when throughput
		// failed outright, so the run continues with no trial data.
		s.logger.Warn("all throughput trials failed", "runID", result.RunID, "addr", endpoint.Addr)
	case err != nil:
		return nil, err
	default:
		result.Trials = aggregate
	}

	loss, err := s.collector.PacketLoss(ctx, endpoint.Addr, cfg.PingSampleCount)
	if err != nil {
		return nil, fmt.Errorf("collecting packet loss: %w", err)
	}
	result.PacketLossPct = loss

	stats, err := s.collector.LatencyStats(ctx, endpoint.Addr, cfg.PingSampleCount)
	if err != nil {
		return nil, fmt.Errorf("collecting latency statistics: %w", err)
	}
	result.Latency = stats

	if s.metadata != nil {
		info, err := s.metadata(ctx)
		if err != nil {
			s.logger.Warn("client metadata collection failed", "error", err)
		} else {
			result.Client = info
		}
	}

	s.logger.Info("measurement run complete",
		"runID", result.RunID,
		"addr", endpoint.Addr,
		"usedFallback", usedFallback,
		"successfulTrials", successfulTrials(result.Trials),
		"packetLossPct", loss)

	return result, nil
}

func successfulTrials(agg *models.AggregateTrialResult) int {
	if agg == nil {
		return 0
	}
	return agg.SuccessfulTrials
}

/*
Package measurement orchestrates one end-to-end network quality run: it
selects a server, measures throughput against it, and characterizes latency
stability over the same resolved address.

Key Components:

  - Service: composes the selector, trial runner and ping collector
  - Config: per-run budgets and sample counts, validated before any
    network activity
  - ProviderFactory: builds the throughput provider bound to the
    selected endpoint

Service Methods:

	Run: Executes one measurement run and returns a MeasurementResult

Config Parameters:

	type Config struct {
		TrialCount           int // paired download/upload trials per run
		TrialRetryBudget     int // attempts per direction per trial
		SelectionRetryBudget int // candidate attempts before fallback
		PingSampleCount      int // probes per latency/loss sample
	}

The orchestrator never fails for ordinary network flakiness. Selection
exhaustion substitutes the fallback address, failed trials degrade to a
"no throughput data" result, and an all-lost latency sample yields
unavailable statistics. Only configuration errors, total catalog
unavailability and fallback resolution failure abort a run.

Usage Example:

	svc := measurement.NewService(sel, providerFor, collector, logger)
	result, err := svc.Run(ctx, measurement.Config{
		TrialCount:           3,
		TrialRetryBudget:     3,
		SelectionRetryBudget: 5,
		PingSampleCount:      4,
	})
*/
package measurement

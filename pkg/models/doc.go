/*
Package models defines the core data structures used throughout the
netquality-tester application. It provides the foundational types that
represent server candidates, resolved endpoints, throughput trials, latency
statistics, and the assembled measurement result.

Core Types:

ServerCandidate is a server proposed by the catalog capability:

	type ServerCandidate struct {
		Host                string  // hostname, possibly with a port suffix
		DisplayName         string  // human-readable server name
		Country             string  // server country
		AdvertisedLatencyMs float64 // latency advertised by the catalog
	}

ResolvedEndpoint is the authoritative address for one run. The same address
carries both the throughput trials and the latency samples:

	type ResolvedEndpoint struct {
		Candidate *ServerCandidate // nil when the fallback address is in use
		Addr      net.IP           // resolved address
	}

TrialOutcome is one successful throughput measurement in one direction:

	type TrialOutcome struct {
		Direction      Direction
		ThroughputMbps float64
		DataUsedMB     float64
	}

AggregateTrialResult averages the successful trials of a run. It is only
meaningful when SuccessfulTrials > 0.

LatencyStats carries min/max/avg RTT and range-based jitter over a probe
sample. A nil *LatencyStats is the explicit "unavailable" marker; the fields
are never NaN or sentinel values.

MeasurementResult is the sole output handed to the reporting layer. It
aggregates the endpoint, the trial averages, packet loss, latency statistics
and the fallback flag, stamped with a unique run ID.
*/
package models

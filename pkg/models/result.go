package models

import (
	"net"
	"time"
)

// Direction identifies which way a throughput trial moves data.
type Direction string

const (
	DirectionDownload Direction = "download"
	DirectionUpload   Direction = "upload"
)

// ServerCandidate is a server proposed by the catalog capability for
// throughput testing. Immutable once returned by the catalog.
type ServerCandidate struct {
	Host                string
	DisplayName         string
	Country             string
	AdvertisedLatencyMs float64
}

// ResolvedEndpoint is the address a run measures against. Candidate is nil
// when server selection exhausted its budget and the fallback address is in
// use.
type ResolvedEndpoint struct {
	Candidate *ServerCandidate
	Addr      net.IP
}

// Host returns the candidate host, or the empty string for the fallback
// endpoint.
func (e *ResolvedEndpoint) Host() string {
	if e.Candidate == nil {
		return ""
	}
	return e.Candidate.Host
}

// TrialOutcome is one successful throughput measurement. A failed trial has
// no TrialOutcome; callers see nil instead.
type TrialOutcome struct {
	Direction      Direction
	ThroughputMbps float64
	DataUsedMB     float64
}

// AggregateTrialResult averages the successful trials of one run. The
// averages are undefined when SuccessfulTrials is zero; the runner never
// returns such a value.
type AggregateTrialResult struct {
	AvgDownloadMbps   float64
	AvgUploadMbps     float64
	AvgDownloadDataMB float64
	AvgUploadDataMB   float64
	SuccessfulTrials  int
}

// LatencyStats reduces a latency probe sample. JitterMs is the range
// (high - low) of the sample, not a standard deviation. SmoothedMs is an
// EWMA over the successful RTTs in sample order.
//
// A nil *LatencyStats means no probe in the sample succeeded.
type LatencyStats struct {
	LowMs      float64
	HighMs     float64
	AvgMs      float64
	JitterMs   float64
	SmoothedMs float64
	NSamples   int
}

// ClientInfo is best-effort metadata about the measuring host. Lookup
// failures leave fields empty.
type ClientInfo struct {
	InternalIP string
	ExternalIP string
	ISP        string
	City       string
	Region     string
	Country    string
	Location   string
	Device     string
}

// MeasurementResult is the single structured output of one orchestration
// run.
type MeasurementResult struct {
	RunID         string
	Time          time.Time
	Endpoint      *ResolvedEndpoint
	UsedFallback  bool
	Trials        *AggregateTrialResult // nil when no trial succeeded
	PacketLossPct float64
	Latency       *LatencyStats // nil when no probe succeeded
	Client        *ClientInfo   // nil when metadata collection is disabled
}

package measurement

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"netquality-tester/pkg/models"
	"netquality-tester/pkg/pingstats"
	"netquality-tester/pkg/probe"
	"netquality-tester/pkg/selector"
	"netquality-tester/pkg/trials"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type staticCatalog struct {
	candidate models.ServerCandidate
	calls     int
}

func (c *staticCatalog) BestCandidate(ctx context.Context) (*models.ServerCandidate, error) {
	c.calls++
	candidate := c.candidate
	return &candidate, nil
}

type mapResolver map[string]net.IP

func (r mapResolver) LookupIP(ctx context.Context, network, host string) ([]net.IP, error) {
	if ip, ok := r[host]; ok {
		return []net.IP{ip}, nil
	}
	return nil, fmt.Errorf("lookup %s: no such host", host)
}

func alwaysUpProber() probe.Prober {
	return probe.ProberFunc(func(ctx context.Context, addr net.IP) (time.Duration, bool, error) {
		return 12 * time.Millisecond, true, nil
	})
}

type measurement struct {
	mbps   float64
	dataMB float64
	err    error
}

type scriptedProvider struct {
	downloads     []measurement
	uploads       []measurement
	downloadCalls int
	uploadCalls   int
}

func next(script []measurement, calls *int) (float64, float64, error) {
	i := *calls
	*calls++
	if i >= len(script) {
		i = len(script) - 1
	}
	m := script[i]
	return m.mbps, m.dataMB, m.err
}

func (p *scriptedProvider) MeasureDownload(ctx context.Context) (float64, float64, error) {
	return next(p.downloads, &p.downloadCalls)
}

func (p *scriptedProvider) MeasureUpload(ctx context.Context) (float64, float64, error) {
	return next(p.uploads, &p.uploadCalls)
}

func serviceWith(cat selector.Catalog, resolver selector.Resolver, prober probe.Prober, provider trials.Provider) *Service {
	logger := testLogger()
	sel := selector.New(cat, resolver, prober, logger)
	collector := pingstats.NewCollector(prober, 0, logger)
	providerFor := func(endpoint *models.ResolvedEndpoint) trials.Provider { return provider }
	return NewService(sel, providerFor, collector, logger)
}

func validConfig() Config {
	return Config{
		TrialCount:           2,
		TrialRetryBudget:     3,
		SelectionRetryBudget: 3,
		PingSampleCount:      4,
	}
}

func TestRun_RejectsInvalidConfig(t *testing.T) {
	svc := serviceWith(&staticCatalog{}, mapResolver{}, alwaysUpProber(), &scriptedProvider{})

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero trial count", func(c *Config) { c.TrialCount = 0 }},
		{"negative trial count", func(c *Config) { c.TrialCount = -1 }},
		{"zero trial retries", func(c *Config) { c.TrialRetryBudget = 0 }},
		{"negative trial retries", func(c *Config) { c.TrialRetryBudget = -3 }},
		{"zero selection retries", func(c *Config) { c.SelectionRetryBudget = 0 }},
		{"zero ping samples", func(c *Config) { c.PingSampleCount = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			if _, err := svc.Run(context.Background(), cfg); err == nil {
				t.Error("Run() error = nil, want configuration error")
			}
		})
	}
}

func TestRun_EndToEnd(t *testing.T) {
	cat := &staticCatalog{candidate: models.ServerCandidate{
		Host:                "srv1.example.com",
		DisplayName:         "Example One",
		Country:             "NL",
		AdvertisedLatencyMs: 12.0,
	}}
	resolver := mapResolver{"srv1.example.com": net.ParseIP("203.0.113.5")}
	provider := &scriptedProvider{
		downloads: []measurement{
			{mbps: 50.0, dataMB: 62.5},
			{mbps: 60.0, dataMB: 75},
		},
		uploads: []measurement{{mbps: 10, dataMB: 12.5}},
	}

	svc := serviceWith(cat, resolver, alwaysUpProber(), provider)
	result, err := svc.Run(context.Background(), validConfig())

	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.UsedFallback {
		t.Error("UsedFallback = true, want false")
	}
	if !result.Endpoint.Addr.Equal(net.ParseIP("203.0.113.5")) {
		t.Errorf("Endpoint.Addr = %v, want 203.0.113.5", result.Endpoint.Addr)
	}
	if result.Trials == nil {
		t.Fatal("Trials = nil, want aggregate")
	}
	if result.Trials.AvgDownloadMbps != 55.0 {
		t.Errorf("AvgDownloadMbps = %v, want 55.0", result.Trials.AvgDownloadMbps)
	}
	if result.Trials.AvgUploadMbps != 10.0 {
		t.Errorf("AvgUploadMbps = %v, want 10.0", result.Trials.AvgUploadMbps)
	}
	if result.Trials.SuccessfulTrials != 2 {
		t.Errorf("SuccessfulTrials = %d, want 2", result.Trials.SuccessfulTrials)
	}
	if result.PacketLossPct != 0 {
		t.Errorf("PacketLossPct = %v, want 0", result.PacketLossPct)
	}
	if result.Latency == nil {
		t.Fatal("Latency = nil, want stats")
	}
	if result.Latency.JitterMs != result.Latency.HighMs-result.Latency.LowMs {
		t.Error("jitter is not the sample range")
	}
	if result.RunID == "" {
		t.Error("RunID is empty")
	}
}

func TestRun_UnresolvableCatalogFallsBack(t *testing.T) {
	cat := &staticCatalog{candidate: models.ServerCandidate{Host: "gone.example.com"}}
	fallbackIP := net.ParseIP("198.51.100.7")
	resolver := mapResolver{selector.DefaultFallbackHost: fallbackIP}
	provider := &scriptedProvider{
		downloads: []measurement{{mbps: 20, dataMB: 25}},
		uploads:   []measurement{{mbps: 5, dataMB: 6}},
	}

	svc := serviceWith(cat, resolver, alwaysUpProber(), provider)
	cfg := validConfig()
	cfg.SelectionRetryBudget = 3
	result, err := svc.Run(context.Background(), cfg)

	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !result.UsedFallback {
		t.Error("UsedFallback = false, want true")
	}
	if !result.Endpoint.Addr.Equal(fallbackIP) {
		t.Errorf("Endpoint.Addr = %v, want fallback %v", result.Endpoint.Addr, fallbackIP)
	}
	if result.Endpoint.Candidate != nil {
		t.Errorf("Endpoint.Candidate = %+v, want nil", result.Endpoint.Candidate)
	}
}

func TestRun_AllTrialsFailedStillCollectsLatency(t *testing.T) {
	cat := &staticCatalog{candidate: models.ServerCandidate{Host: "srv1.example.com"}}
	resolver := mapResolver{"srv1.example.com": net.ParseIP("203.0.113.5")}
	provider := &scriptedProvider{
		downloads: []measurement{{err: errors.New("provider down")}},
	}

	svc := serviceWith(cat, resolver, alwaysUpProber(), provider)
	result, err := svc.Run(context.Background(), validConfig())

	if err != nil {
		t.Fatalf("Run() error = %v, want graceful degradation", err)
	}
	if result.Trials != nil {
		t.Errorf("Trials = %+v, want nil for all-failed run", result.Trials)
	}
	if result.Latency == nil {
		t.Error("Latency = nil, want stats collected despite failed throughput")
	}
}

func TestRun_LatencyDescribesSelectedAddress(t *testing.T) {
	cat := &staticCatalog{candidate: models.ServerCandidate{Host: "srv1.example.com"}}
	target := net.ParseIP("203.0.113.5")
	resolver := mapResolver{"srv1.example.com": target}

	var probedAddrs []net.IP
	prober := probe.ProberFunc(func(ctx context.Context, addr net.IP) (time.Duration, bool, error) {
		probedAddrs = append(probedAddrs, addr)
		return 9 * time.Millisecond, true, nil
	})
	provider := &scriptedProvider{
		downloads: []measurement{{mbps: 30, dataMB: 40}},
		uploads:   []measurement{{mbps: 8, dataMB: 10}},
	}

	svc := serviceWith(cat, resolver, prober, provider)
	_, err := svc.Run(context.Background(), validConfig())

	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	// Selection probes once, then two sample phases of four probes each,
	// all against the same resolved address.
	if len(probedAddrs) != 9 {
		t.Fatalf("probe count = %d, want 9", len(probedAddrs))
	}
	for i, addr := range probedAddrs {
		if !addr.Equal(target) {
			t.Errorf("probe %d hit %v, want %v", i, addr, target)
		}
	}
}

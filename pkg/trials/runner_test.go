package trials

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"netquality-tester/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type measurement struct {
	mbps   float64
	dataMB float64
	err    error
}

// scriptedProvider replays download and upload outcomes in call order.
// Scripts shorter than the call count repeat their last entry.
type scriptedProvider struct {
	downloads []measurement
	uploads   []measurement

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

var errTransient = errors.New("measurement socket reset")

func TestRunTrial_SucceedsFirstAttempt(t *testing.T) {
	p := &scriptedProvider{downloads: []measurement{{mbps: 50, dataMB: 62.5}}}
	r := NewRunner(p, testLogger())

	outcome := r.RunTrial(context.Background(), models.DirectionDownload, 3)

	if outcome == nil {
		t.Fatal("RunTrial() = nil, want outcome")
	}
	if outcome.ThroughputMbps != 50 || outcome.DataUsedMB != 62.5 {
		t.Errorf("RunTrial() = %+v, want 50 Mbps / 62.5 MB", outcome)
	}
	if p.downloadCalls != 1 {
		t.Errorf("download attempts = %d, want 1", p.downloadCalls)
	}
}

func TestRunTrial_RetriesWithinBudget(t *testing.T) {
	p := &scriptedProvider{downloads: []measurement{
		{err: errTransient},
		{err: errTransient},
		{mbps: 40, dataMB: 50},
	}}
	r := NewRunner(p, testLogger())

	outcome := r.RunTrial(context.Background(), models.DirectionDownload, 3)

	if outcome == nil {
		t.Fatal("RunTrial() = nil, want outcome on third attempt")
	}
	if p.downloadCalls != 3 {
		t.Errorf("download attempts = %d, want 3", p.downloadCalls)
	}
}

func TestRunTrial_ExhaustedBudgetReturnsNil(t *testing.T) {
	p := &scriptedProvider{downloads: []measurement{{err: errTransient}}}
	r := NewRunner(p, testLogger())

	outcome := r.RunTrial(context.Background(), models.DirectionDownload, 3)

	if outcome != nil {
		t.Fatalf("RunTrial() = %+v, want nil after exhausted budget", outcome)
	}
	if p.downloadCalls != 3 {
		t.Errorf("download attempts = %d, want 3 (one per budget slot)", p.downloadCalls)
	}
}

func TestRunTrials_DownloadGatesUpload(t *testing.T) {
	// Download fails on iteration 2 only; upload must run exactly twice,
	// and the failed iteration must not count.
	p := &scriptedProvider{
		downloads: []measurement{
			{mbps: 50, dataMB: 62.5},
			{err: errTransient},
			{mbps: 60, dataMB: 75},
		},
		uploads: []measurement{{mbps: 10, dataMB: 12.5}},
	}
	r := NewRunner(p, testLogger())

	agg, err := r.RunTrials(context.Background(), 3, 1)

	if err != nil {
		t.Fatalf("RunTrials() error = %v", err)
	}
	if agg.SuccessfulTrials != 2 {
		t.Errorf("SuccessfulTrials = %d, want 2", agg.SuccessfulTrials)
	}
	if p.uploadCalls != 2 {
		t.Errorf("upload attempts = %d, want 2 (skipped for failed download)", p.uploadCalls)
	}
	if agg.AvgDownloadMbps != 55.0 {
		t.Errorf("AvgDownloadMbps = %v, want 55.0", agg.AvgDownloadMbps)
	}
	if agg.AvgUploadMbps != 10.0 {
		t.Errorf("AvgUploadMbps = %v, want 10.0", agg.AvgUploadMbps)
	}
	if agg.AvgDownloadDataMB != 68.75 {
		t.Errorf("AvgDownloadDataMB = %v, want 68.75", agg.AvgDownloadDataMB)
	}
}

func TestRunTrials_UploadFailureStillCountsTrial(t *testing.T) {
	p := &scriptedProvider{
		downloads: []measurement{{mbps: 80, dataMB: 100}},
		uploads:   []measurement{{err: errTransient}},
	}
	r := NewRunner(p, testLogger())

	agg, err := r.RunTrials(context.Background(), 1, 2)

	if err != nil {
		t.Fatalf("RunTrials() error = %v", err)
	}
	// Trial success is defined by the download leg alone.
	if agg.SuccessfulTrials != 1 {
		t.Errorf("SuccessfulTrials = %d, want 1", agg.SuccessfulTrials)
	}
	if agg.AvgUploadMbps != 0 {
		t.Errorf("AvgUploadMbps = %v, want 0 for failed uploads", agg.AvgUploadMbps)
	}
	if p.uploadCalls != 2 {
		t.Errorf("upload attempts = %d, want 2 (full retry budget)", p.uploadCalls)
	}
}

func TestRunTrials_AllDownloadsFailed(t *testing.T) {
	p := &scriptedProvider{downloads: []measurement{{err: errTransient}}}
	r := NewRunner(p, testLogger())

	agg, err := r.RunTrials(context.Background(), 3, 2)

	if !errors.Is(err, ErrNoSuccessfulTrials) {
		t.Fatalf("RunTrials() error = %v, want ErrNoSuccessfulTrials", err)
	}
	if agg != nil {
		t.Errorf("RunTrials() aggregate = %+v, want nil", agg)
	}
	if p.downloadCalls != 6 {
		t.Errorf("download attempts = %d, want 6 (3 trials x 2 retries)", p.downloadCalls)
	}
	if p.uploadCalls != 0 {
		t.Errorf("upload attempts = %d, want 0", p.uploadCalls)
	}
}

func TestRunTrials_RejectsNonPositiveConfig(t *testing.T) {
	r := NewRunner(&scriptedProvider{}, testLogger())

	tests := []struct {
		name        string
		trialCount  int
		retryBudget int
	}{
		{"zero trials", 0, 3},
		{"negative trials", -1, 3},
		{"zero retries", 3, 0},
		{"negative retries", 3, -2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.RunTrials(context.Background(), tt.trialCount, tt.retryBudget); err == nil {
				t.Error("RunTrials() error = nil, want configuration error")
			}
		})
	}
}

// Package provider implements the throughput measurement capability over
// plain HTTP: a timed GET for download and a timed POST for upload, with
// every connection pinned to the resolved endpoint address so the measured
// path matches the one latency probes travel.
package provider

import (
	"bytes"
	"context"
	"crypto/rand"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"netquality-tester/pkg/models"

	"github.com/pkg/errors"
)

const readBufferSize = 32 * 1024

// Options configures an HTTPProvider.
type Options struct {
	DownloadURL     string
	UploadURL       string
	UploadSizeBytes int64
	Timeout         time.Duration
}

// HTTPProvider measures throughput against one resolved endpoint. Build a
// fresh provider per run; it carries the pinned address in its transport.
type HTTPProvider struct {
	opts   Options
	client *http.Client
	logger *slog.Logger
}

func NewHTTPProvider(endpoint *models.ResolvedEndpoint, opts Options, logger *slog.Logger) *HTTPProvider {
	transport := &http.Transport{
		DialContext:       pinnedDialContext(endpoint.Addr),
		ForceAttemptHTTP2: true,
	}
	return &HTTPProvider{
		opts: opts,
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		logger: logger,
	}
}

func (p *HTTPProvider) MeasureDownload(ctx context.Context) (float64, float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.opts.DownloadURL, nil)
	if err != nil {
		return 0, 0, errors.Wrap(err, "building download request")
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, 0, errors.Wrap(err, "download request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, 0, errors.Errorf("download returned status %d", resp.StatusCode)
	}

	received, err := drain(resp.Body)
	if err != nil {
		return 0, 0, errors.Wrap(err, "reading download payload")
	}
	duration := time.Since(start)

	mbps := throughputMbps(received, duration)
	dataMB := float64(received) / 1_000_000
	p.logger.Debug("download measured", "bytes", received, "duration", duration, "mbps", mbps)
	return mbps, dataMB, nil
}

func (p *HTTPProvider) MeasureUpload(ctx context.Context) (float64, float64, error) {
	payload := make([]byte, p.opts.UploadSizeBytes)
	if _, err := rand.Read(payload); err != nil {
		return 0, 0, errors.Wrap(err, "generating upload payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.opts.UploadURL, bytes.NewReader(payload))
	if err != nil {
		return 0, 0, errors.Wrap(err, "building upload request")
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, 0, errors.Wrap(err, "upload request failed")
	}
	defer resp.Body.Close()

	if _, err := drain(resp.Body); err != nil {
		return 0, 0, errors.Wrap(err, "reading upload response")
	}
	if resp.StatusCode >= 400 {
		return 0, 0, errors.Errorf("upload returned status %d", resp.StatusCode)
	}
	duration := time.Since(start)

	mbps := throughputMbps(p.opts.UploadSizeBytes, duration)
	dataMB := float64(p.opts.UploadSizeBytes) / 1_000_000
	p.logger.Debug("upload measured", "bytes", p.opts.UploadSizeBytes, "duration", duration, "mbps", mbps)
	return mbps, dataMB, nil
}

// pinnedDialContext dials the resolved endpoint address regardless of the
// hostname in the URL, keeping the requested port.
func pinnedDialContext(addr net.IP) func(ctx context.Context, network, address string) (net.Conn, error) {
	return func(ctx context.Context, network, address string) (net.Conn, error) {
		_, port, err := net.SplitHostPort(address)
		if err != nil {
			return nil, err
		}
		pinned := net.JoinHostPort(addr.String(), port)
		return (&net.Dialer{Timeout: 10 * time.Second}).DialContext(ctx, network, pinned)
	}
}

func drain(r io.Reader) (int64, error) {
	buf := make([]byte, readBufferSize)
	var total int64
	for {
		n, err := r.Read(buf)
		total += int64(n)
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}

// throughputMbps converts bytes moved over a duration into megabits per
// second. Bits per microsecond equals Mbps.
func throughputMbps(bytesMoved int64, duration time.Duration) float64 {
	if duration <= 0 {
		return 0
	}
	return float64(8*bytesMoved) / float64(duration.Microseconds())
}

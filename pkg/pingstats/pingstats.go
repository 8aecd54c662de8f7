// Package pingstats reduces repeated latency probes against one address into
// packet-loss and latency-distribution statistics.
package pingstats

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"netquality-tester/pkg/models"
	"netquality-tester/pkg/probe"

	"github.com/VividCortex/ewma"
	"golang.org/x/time/rate"
)

// Collector runs repeated probes through a Prober. Probes are paced so
// repeated samples do not flood the target. A Collector holds no state
// between calls.
type Collector struct {
	prober probe.Prober
	pacer  *rate.Limiter
	logger *slog.Logger
}

// NewCollector builds a Collector pacing probes at one per interval. A
// non-positive interval disables pacing.
func NewCollector(p probe.Prober, interval time.Duration, logger *slog.Logger) *Collector {
	var pacer *rate.Limiter
	if interval > 0 {
		pacer = rate.NewLimiter(rate.Every(interval), 1)
	}
	return &Collector{
		prober: p,
		pacer:  pacer,
		logger: logger,
	}
}

// PacketLoss issues sampleCount probes and returns the percentage of probes
// that got no reply, in [0,100].
func (c *Collector) PacketLoss(ctx context.Context, addr net.IP, sampleCount int) (float64, error) {
	if sampleCount < 1 {
		return 0, fmt.Errorf("packet loss sample count must be positive, got %d", sampleCount)
	}

	lost := 0
	for i := 0; i < sampleCount; i++ {
		if err := c.wait(ctx); err != nil {
			return 0, err
		}
		_, ok, err := c.prober.Probe(ctx, addr)
		if err != nil {
			return 0, fmt.Errorf("probing %s: %w", addr, err)
		}
		if !ok {
			lost++
		}
	}

	loss := float64(lost) / float64(sampleCount) * 100
	c.logger.Debug("packet loss sample complete", "addr", addr, "samples", sampleCount, "lost", lost, "lossPct", loss)
	return loss, nil
}

// LatencyStats issues sampleCount probes, discards the failed ones, and
// reduces the successful RTTs. It returns nil when no probe succeeded; it
// never fabricates a value for an empty sample.
func (c *Collector) LatencyStats(ctx context.Context, addr net.IP, sampleCount int) (*models.LatencyStats, error) {
	if sampleCount < 1 {
		return nil, fmt.Errorf("latency sample count must be positive, got %d", sampleCount)
	}

	var rttsMs []float64
	for i := 0; i < sampleCount; i++ {
		if err := c.wait(ctx); err != nil {
			return nil, err
		}
		rtt, ok, err := c.prober.Probe(ctx, addr)
		if err != nil {
			return nil, fmt.Errorf("probing %s: %w", addr, err)
		}
		if ok {
			rttsMs = append(rttsMs, durationMs(rtt))
		}
	}

	if len(rttsMs) == 0 {
		c.logger.Debug("latency sample had no successful probes", "addr", addr, "samples", sampleCount)
		return nil, nil
	}

	return reduce(rttsMs), nil
}

func (c *Collector) wait(ctx context.Context) error {
	if c.pacer == nil {
		return nil
	}
	return c.pacer.Wait(ctx)
}

// reduce computes the sample statistics. Jitter is the range of the sample,
// not a standard deviation.
func reduce(rttsMs []float64) *models.LatencyStats {
	low := rttsMs[0]
	high := rttsMs[0]
	sum := 0.0
	smoothed := ewma.NewMovingAverage()

	for _, ms := range rttsMs {
		if ms < low {
			low = ms
		}
		if ms > high {
			high = ms
		}
		sum += ms
		smoothed.Add(ms)
	}

	return &models.LatencyStats{
		LowMs:      low,
		HighMs:     high,
		AvgMs:      sum / float64(len(rttsMs)),
		JitterMs:   high - low,
		SmoothedMs: smoothed.Value(),
		NSamples:   len(rttsMs),
	}
}

func durationMs(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

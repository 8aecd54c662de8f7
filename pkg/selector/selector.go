// Package selector picks the remote endpoint a measurement run will target.
// It validates catalog candidates by resolving them and probing them once,
// retries over a bounded budget, and substitutes a well-known fallback
// address when every candidate fails.
package selector

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"netquality-tester/pkg/models"
	"netquality-tester/pkg/probe"
)

// DefaultFallbackHost is resolved when server selection exhausts its retry
// budget without a reachable candidate.
const DefaultFallbackHost = "www.google.com"

// Catalog hands out the current best-ranked server candidate. Repeated calls
// may legitimately return the same candidate. Any error means the catalog
// itself is unusable and selection must abort.
type Catalog interface {
	BestCandidate(ctx context.Context) (*models.ServerCandidate, error)
}

// Resolver is the subset of net.Resolver the selector needs.
type Resolver interface {
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
}

// Selector implements the first-reachable-wins selection policy. It trades
// candidate ranking for bounded selection latency: the first candidate that
// resolves and answers a probe is accepted without comparing alternatives.
type Selector struct {
	catalog      Catalog
	resolver     Resolver
	prober       probe.Prober
	fallbackHost string
	logger       *slog.Logger
}

func New(catalog Catalog, resolver Resolver, prober probe.Prober, logger *slog.Logger) *Selector {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &Selector{
		catalog:      catalog,
		resolver:     resolver,
		prober:       prober,
		fallbackHost: DefaultFallbackHost,
		logger:       logger,
	}
}

// WithFallbackHost overrides the fallback host. Intended for configuration,
// not for per-call variation.
func (s *Selector) WithFallbackHost(host string) *Selector {
	s.fallbackHost = host
	return s
}

// Select queries the catalog up to retryBudget times for a reachable
// candidate. The second return value reports whether the fallback address
// was substituted; in that case the endpoint carries no candidate.
func (s *Selector) Select(ctx context.Context, retryBudget int) (*models.ResolvedEndpoint, bool, error) {
	if retryBudget < 1 {
		return nil, false, fmt.Errorf("selection retry budget must be positive, got %d", retryBudget)
	}

	rejected := make(map[string]struct{})
	for attempt := 1; attempt <= retryBudget; attempt++ {
		candidate, err := s.catalog.BestCandidate(ctx)
		if err != nil {
			// The catalog being unusable is not recoverable by retrying
			// candidates out of it.
			return nil, false, fmt.Errorf("retrieving server candidate: %w", err)
		}

		host := normalizeHost(candidate.Host)
		if _, seen := rejected[host]; seen {
			s.logger.Debug("candidate already rejected", "host", host, "attempt", attempt)
			continue
		}

		addr, err := s.resolve(ctx, host)
		if err != nil {
			s.logger.Debug("candidate did not resolve", "host", host, "error", err)
			rejected[host] = struct{}{}
			continue
		}

		rtt, ok, err := s.prober.Probe(ctx, addr)
		if err != nil {
			return nil, false, fmt.Errorf("probing candidate %s: %w", host, err)
		}
		if !ok {
			s.logger.Debug("candidate unreachable", "host", host, "addr", addr)
			rejected[host] = struct{}{}
			continue
		}

		s.logger.Info("server selected",
			"host", host,
			"addr", addr,
			"country", candidate.Country,
			"rtt", rtt,
			"attempt", attempt)
		return &models.ResolvedEndpoint{Candidate: candidate, Addr: addr}, false, nil
	}

	s.logger.Warn("no reachable candidate, using fallback", "fallback", s.fallbackHost, "budget", retryBudget)

	addr, err := s.resolve(ctx, s.fallbackHost)
	if err != nil {
		// No further recovery path past the fallback.
		return nil, false, fmt.Errorf("resolving fallback host %s: %w", s.fallbackHost, err)
	}
	return &models.ResolvedEndpoint{Addr: addr}, true, nil
}

func (s *Selector) resolve(ctx context.Context, host string) (net.IP, error) {
	ips, err := s.resolver.LookupIP(ctx, "ip", host)
	if err != nil {
		return nil, err
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("no addresses for %s", host)
	}
	return ips[0], nil
}

// normalizeHost strips a port suffix when one is present. Catalog hosts may
// arrive as "host:port".
func normalizeHost(host string) string {
	if bare, _, err := net.SplitHostPort(host); err == nil {
		return bare
	}
	return host
}

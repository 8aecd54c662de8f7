// Package catalog provides ServerCatalog implementations: a remote HTTP
// catalog returning ranked candidates as JSON, and a static YAML file
// catalog for fixed deployments.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"netquality-tester/pkg/models"
)

type candidateJSON struct {
	Host      string  `json:"host"`
	Name      string  `json:"name"`
	Country   string  `json:"country"`
	LatencyMs float64 `json:"latency_ms"`
}

// HTTPCatalog fetches ranked candidates from a configured endpoint. The
// endpoint returns a JSON array ordered best-first; BestCandidate returns
// the top entry of a fresh fetch each call.
type HTTPCatalog struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

func NewHTTPCatalog(endpoint string, timeout time.Duration, logger *slog.Logger) *HTTPCatalog {
	return &HTTPCatalog{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

func (c *HTTPCatalog) BestCandidate(ctx context.Context) (*models.ServerCandidate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building catalog request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog unavailable: status %d from %s", resp.StatusCode, c.endpoint)
	}

	var entries []candidateJSON
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decoding catalog response: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("catalog at %s returned no servers", c.endpoint)
	}

	top := entries[0]
	c.logger.Debug("catalog candidate", "host", top.Host, "name", top.Name, "latencyMs", top.LatencyMs)

	return &models.ServerCandidate{
		Host:                top.Host,
		DisplayName:         top.Name,
		Country:             top.Country,
		AdvertisedLatencyMs: top.LatencyMs,
	}, nil
}

package catalog

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"netquality-tester/pkg/models"

	"gopkg.in/yaml.v3"
)

type fileEntry struct {
	Host      string  `yaml:"host"`
	Name      string  `yaml:"name"`
	Country   string  `yaml:"country"`
	LatencyMs float64 `yaml:"latency_ms"`
}

type fileDocument struct {
	Servers []fileEntry `yaml:"servers"`
}

// FileCatalog serves candidates from a static YAML file, ordered by
// advertised latency. Repeated calls walk down the list so a caller that
// rejected the top candidate sees the next one; once the list is exhausted
// the last entry is repeated.
type FileCatalog struct {
	mu      sync.Mutex
	entries []models.ServerCandidate
	cursor  int
}

func NewFileCatalog(path string) (*FileCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading server list %s: %w", path, err)
	}

	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing server list %s: %w", path, err)
	}
	if len(doc.Servers) == 0 {
		return nil, fmt.Errorf("server list %s contains no servers", path)
	}

	entries := make([]models.ServerCandidate, 0, len(doc.Servers))
	for _, e := range doc.Servers {
		entries = append(entries, models.ServerCandidate{
			Host:                e.Host,
			DisplayName:         e.Name,
			Country:             e.Country,
			AdvertisedLatencyMs: e.LatencyMs,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].AdvertisedLatencyMs < entries[j].AdvertisedLatencyMs
	})

	return &FileCatalog{entries: entries}, nil
}

func (c *FileCatalog) BestCandidate(ctx context.Context) (*models.ServerCandidate, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.cursor
	if idx >= len(c.entries) {
		idx = len(c.entries) - 1
	} else {
		c.cursor++
	}

	candidate := c.entries[idx]
	return &candidate, nil
}

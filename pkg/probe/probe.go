package probe

import (
	"context"
	"net"
	"time"
)

// Prober issues a single latency probe against an address.
//
// Probe returns the round-trip time and ok=true on success. Ordinary network
// failures (timeout, unreachable host) return ok=false with a nil error; the
// error return is reserved for environment-level faults such as a missing
// network stack or insufficient socket permissions. Each call is independent:
// no retry happens at this layer.
type Prober interface {
	Probe(ctx context.Context, addr net.IP) (rtt time.Duration, ok bool, err error)
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, addr net.IP) (time.Duration, bool, error)

func (f ProberFunc) Probe(ctx context.Context, addr net.IP) (time.Duration, bool, error) {
	return f(ctx, addr)
}

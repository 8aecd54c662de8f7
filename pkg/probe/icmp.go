package probe

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

const (
	protoICMP     = 1
	protoICMPv6   = 58
	maxReplyBytes = 1500
)

// ICMPProber probes an address with a single ICMP echo request per call.
// It prefers unprivileged datagram sockets and falls back to raw sockets
// when the platform allows them.
type ICMPProber struct {
	timeout time.Duration
	logger  *slog.Logger
	seq     int
}

func NewICMPProber(timeout time.Duration, logger *slog.Logger) *ICMPProber {
	return &ICMPProber{
		timeout: timeout,
		logger:  logger,
	}
}

func (p *ICMPProber) Probe(ctx context.Context, addr net.IP) (time.Duration, bool, error) {
	conn, err := listenFor(addr)
	if err != nil {
		// No usable ICMP socket is an environment fault, not a lost packet.
		return 0, false, fmt.Errorf("opening ICMP socket: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(p.timeout)
	if d, has := ctx.Deadline(); has && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return 0, false, fmt.Errorf("setting probe deadline: %w", err)
	}

	p.seq++
	echo := &icmp.Echo{
		ID:   os.Getpid() & 0xffff,
		Seq:  p.seq,
		Data: []byte("netquality-tester probe"),
	}
	msg := icmp.Message{Type: ipv4.ICMPTypeEcho, Code: 0, Body: echo}
	if addr.To4() == nil {
		msg.Type = ipv6.ICMPTypeEchoRequest
	}

	wire, err := msg.Marshal(nil)
	if err != nil {
		return 0, false, fmt.Errorf("marshaling echo request: %w", err)
	}

	start := time.Now()
	if _, err := conn.WriteTo(wire, destFor(conn, addr)); err != nil {
		p.logger.Debug("ICMP write failed", "addr", addr, "error", err)
		return 0, false, nil
	}

	buf := make([]byte, maxReplyBytes)
	for {
		n, peer, err := conn.ReadFrom(buf)
		if err != nil {
			// Deadline expiry and routing errors count as a lost probe.
			p.logger.Debug("ICMP read failed", "addr", addr, "error", err)
			return 0, false, nil
		}

		proto := protoICMP
		if addr.To4() == nil {
			proto = protoICMPv6
		}
		reply, err := icmp.ParseMessage(proto, buf[:n])
		if err != nil {
			continue
		}
		if reply.Type != ipv4.ICMPTypeEchoReply && reply.Type != ipv6.ICMPTypeEchoReply {
			continue
		}
		body, isEcho := reply.Body.(*icmp.Echo)
		if !isEcho || body.Seq != echo.Seq {
			continue
		}

		rtt := time.Since(start)
		p.logger.Debug("ICMP reply", "addr", addr, "peer", peer, "rtt", rtt)
		return rtt, true, nil
	}
}

// listenFor opens an ICMP socket for the address family. Unprivileged
// datagram-oriented sockets work without CAP_NET_RAW on Linux and macOS.
func listenFor(addr net.IP) (*icmp.PacketConn, error) {
	if addr.To4() != nil {
		conn, err := icmp.ListenPacket("udp4", "0.0.0.0")
		if err == nil {
			return conn, nil
		}
		return icmp.ListenPacket("ip4:icmp", "0.0.0.0")
	}
	conn, err := icmp.ListenPacket("udp6", "::")
	if err == nil {
		return conn, nil
	}
	return icmp.ListenPacket("ip6:ipv6-icmp", "::")
}

// destFor builds the destination address matching the socket type returned
// by listenFor.
func destFor(conn *icmp.PacketConn, addr net.IP) net.Addr {
	if _, isUDP := conn.LocalAddr().(*net.UDPAddr); isUDP {
		return &net.UDPAddr{IP: addr}
	}
	return &net.IPAddr{IP: addr}
}

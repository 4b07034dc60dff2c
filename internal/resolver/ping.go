package resolver

import (
	"context"
	"net"
	"os"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// Pinger performs ICMP echo checks as a discovery prefilter, skipping
// the HTTP probe for hosts that do not answer a ping at all. Raw ICMP
// sockets need elevated privileges; an unprivileged process should run
// without a Pinger.
type Pinger struct {
	timeout time.Duration
}

// NewPinger creates a pinger with the given per-host timeout.
func NewPinger(timeout time.Duration) *Pinger {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &Pinger{timeout: timeout}
}

// Ping sends one ICMP echo request to ip and waits for a reply.
// Returns whether the host answered and the round-trip time. Socket or
// privilege errors report the host as not answered; the caller falls
// back to probing everything.
func (p *Pinger) Ping(ctx context.Context, ip string) (bool, time.Duration) {
	if ctx.Err() != nil {
		return false, 0
	}

	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho, Code: 0,
		Body: &icmp.Echo{
			ID:   os.Getpid() & 0xffff,
			Seq:  1,
			Data: []byte("bulbs-ping"),
		},
	}
	data, err := msg.Marshal(nil)
	if err != nil {
		return false, 0
	}

	conn, err := icmp.ListenPacket("ip4:icmp", "0.0.0.0")
	if err != nil {
		return false, 0
	}
	defer conn.Close()

	start := time.Now()
	dst := &net.IPAddr{IP: net.ParseIP(ip)}
	if _, err := conn.WriteTo(data, dst); err != nil {
		return false, 0
	}

	if err := conn.SetReadDeadline(time.Now().Add(p.timeout)); err != nil {
		return false, 0
	}

	reply := make([]byte, 1500)
	n, _, err := conn.ReadFrom(reply)
	if err != nil {
		return false, 0
	}

	rm, err := icmp.ParseMessage(1, reply[:n])
	if err != nil {
		return false, 0
	}
	if rm.Type == ipv4.ICMPTypeEchoReply {
		return true, time.Since(start)
	}
	return false, 0
}

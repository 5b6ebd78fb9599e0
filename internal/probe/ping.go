package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/go-ping/ping"
)

// PingOptions configures an ICMP probe.
type PingOptions struct {
	Count      int
	Timeout    time.Duration
	Privileged bool
}

// PingStats summarises an ICMP probe.
type PingStats struct {
	Sent       int
	Received   int
	PacketLoss float64
	AvgRtt     time.Duration
}

// Ping sends opts.Count echo requests to host and waits for the replies.
func Ping(ctx context.Context, host string, opts PingOptions) (PingStats, error) {
	if opts.Count <= 0 {
		opts.Count = 2
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Duration(opts.Count+1) * time.Second
	}
	pinger, err := ping.NewPinger(host)
	if err != nil {
		return PingStats{}, fmt.Errorf("init pinger: %w", err)
	}
	pinger.SetPrivileged(opts.Privileged)
	pinger.Count = opts.Count
	pinger.Timeout = opts.Timeout

	stop := context.AfterFunc(ctx, pinger.Stop)
	defer stop()
	if err := pinger.Run(); err != nil {
		return PingStats{}, fmt.Errorf("ping %s: %w", host, err)
	}
	stats := pinger.Statistics()
	return PingStats{
		Sent:       stats.PacketsSent,
		Received:   stats.PacketsRecv,
		PacketLoss: stats.PacketLoss,
		AvgRtt:     stats.AvgRtt,
	}, nil
}

// CheckPing fails when fewer than half of count packets came back.
func CheckPing(count int, stats PingStats) error {
	if stats.Received*2 < count {
		return fmt.Errorf("fewer than half of packets were received (%d sent, %d received)", count, stats.Received)
	}
	return nil
}

package reachability

import (
	"context"
	"net"
	"time"

	jobmanager "github.com/UniQw/jobmanager-go"
)

// Probe periodically dials a TCP address and records the outcome on a
// jobmanager.ReachabilityFlag.
type Probe struct {
	addr     string
	interval time.Duration
	timeout  time.Duration
	flag     *jobmanager.ReachabilityFlag
	dialer   net.Dialer
	log      jobmanager.Logger
}

// NewProbe dials addr every interval and records the result in flag.
func NewProbe(addr string, interval time.Duration, flag *jobmanager.ReachabilityFlag, log jobmanager.Logger) *Probe {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if log == nil {
		log = jobmanager.NewFmtLogger()
	}
	return &Probe{
		addr:     addr,
		interval: interval,
		timeout:  min(interval, 3*time.Second),
		flag:     flag,
		log:      log,
	}
}

// Check dials once and updates the flag.
func (p *Probe) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	conn, err := p.dialer.DialContext(ctx, "tcp", p.addr)
	up := err == nil
	if up {
		_ = conn.Close()
	}
	if up != p.flag.IsNetworkAvailable() {
		p.log.Infof("network reachability changed: addr=%s available=%t", p.addr, up)
	}
	p.flag.Set(up)
	return up
}

// Run checks immediately and then every interval until ctx is done.
func (p *Probe) Run(ctx context.Context) error {
	p.Check(ctx)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}

// Package stats is the traffic/connection counter set a Loop updates as its
// channel references accept, recv, send, and close. Each Loop owns its own
// Counters instance — this module runs several independent reactor loops
// per process, so a single process-wide singleton would blur exactly the
// per-loop load a Balancer is supposed to be distributing.
package stats

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// Counters is one loop's cumulative traffic and connection-churn tally.
type Counters struct {
	TotalConns  atomic.Int64 // cumulative channel references created on this loop (listening, connecting, or accepted)
	ClosedConns atomic.Int64 // cumulative channel references closed on this loop
	BytesSent   atomic.Int64 // cumulative bytes handed to the kernel via send on this loop
	BytesRecv   atomic.Int64 // cumulative bytes drained from the kernel via recv on this loop
}

// New returns a zeroed Counters, ready for a Loop to own.
func New() *Counters { return &Counters{} }

func (c *Counters) AddConn()      { c.TotalConns.Add(1) }
func (c *Counters) RemoveConn()   { c.ClosedConns.Add(1) }
func (c *Counters) AddSent(n int) { c.BytesSent.Add(int64(n)) }
func (c *Counters) AddRecv(n int) { c.BytesRecv.Add(int64(n)) }

type snapshot struct {
	total, closed, sent, recv int64
}

func (c *Counters) snapshot() snapshot {
	return snapshot{
		total:  c.TotalConns.Load(),
		closed: c.ClosedConns.Load(),
		sent:   c.BytesSent.Load(),
		recv:   c.BytesRecv.Load(),
	}
}

// Source names one loop's Counters for the reporter, so its log lines can
// say which loop they're about instead of one blended total.
type Source struct {
	Label    string
	Counters *Counters
}

// StartReporter launches a goroutine that logs each source's throughput and
// connection churn every interval, stopping when ctx is cancelled. A source
// only gets a log line on a tick where it had connection churn or more than
// 10 B/s of recv or send traffic, so an idle worker loop in a larger pool
// stays quiet while a busy one reports.
func StartReporter(ctx context.Context, interval time.Duration, sources ...Source) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		prev := make([]snapshot, len(sources))
		secs := interval.Seconds()
		for {
			select {
			case <-ticker.C:
				for i, src := range sources {
					cur := src.Counters.snapshot()
					outS := float64(cur.sent-prev[i].sent) / secs
					inS := float64(cur.recv-prev[i].recv) / secs
					upC := cur.total - prev[i].total
					downC := cur.closed - prev[i].closed

					if upC > 0 || downC > 0 || inS > 10 || outS > 10 {
						pterm.DefaultLogger.Info(formatStats(src.Label, inS, outS, upC, downC))
					}
					prev[i] = cur
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes renders a byte count at fixed width (8 chars), e.g.
// "99.0   B", " 1.5 KiB", " 0.1 MiB".
func formatBytes(b float64) string {
	unitIdx := 0
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}
	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

func formatStats(label string, inS, outS float64, upC, downC int64) string {
	return fmt.Sprintf("[%s] recv: %s/s | send: %s/s | conn: %2d↑ %2d↓",
		label, formatBytes(inS), formatBytes(outS), upC, downC)
}

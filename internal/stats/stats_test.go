package stats

import (
	"strings"
	"testing"
)

func TestFormatBytesStaysWithinFixedWidth(t *testing.T) {
	cases := []float64{0, 99, 100, 1536, 1024 * 1024 * 2.5}
	for _, b := range cases {
		out := formatBytes(b)
		if len(out) != 8 {
			t.Fatalf("formatBytes(%v) = %q (%d chars), want 8 chars", b, out, len(out))
		}
	}
}

func TestCountersAccumulate(t *testing.T) {
	c := New()
	c.AddConn()
	c.AddConn()
	c.RemoveConn()
	c.AddSent(10)
	c.AddRecv(3)

	if got := c.TotalConns.Load(); got != 2 {
		t.Fatalf("TotalConns = %d, want 2", got)
	}
	if got := c.ClosedConns.Load(); got != 1 {
		t.Fatalf("ClosedConns = %d, want 1", got)
	}
	if got := c.BytesSent.Load(); got != 10 {
		t.Fatalf("BytesSent = %d, want 10", got)
	}
	if got := c.BytesRecv.Load(); got != 3 {
		t.Fatalf("BytesRecv = %d, want 3", got)
	}
}

func TestCountersAreIndependentPerLoop(t *testing.T) {
	accept := New()
	worker := New()

	accept.AddConn()
	worker.AddConn()
	worker.AddConn()
	worker.AddSent(500)

	if got := accept.TotalConns.Load(); got != 1 {
		t.Fatalf("accept.TotalConns = %d, want 1 (must not see worker's churn)", got)
	}
	if got := worker.TotalConns.Load(); got != 2 {
		t.Fatalf("worker.TotalConns = %d, want 2", got)
	}
	if got := accept.BytesSent.Load(); got != 0 {
		t.Fatalf("accept.BytesSent = %d, want 0 (worker's sends must not leak across loops)", got)
	}
}

func TestFormatStatsIncludesLabel(t *testing.T) {
	out := formatStats("worker-0", 0, 0, 1, 0)
	if !strings.Contains(out, "worker-0") {
		t.Fatalf("formatStats output %q missing source label", out)
	}
}

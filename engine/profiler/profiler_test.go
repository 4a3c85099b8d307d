package profiler

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestRecordAggregatesPerPass(t *testing.T) {
	p := NewProfiler()
	p.Record("geometry", 2*time.Millisecond)
	p.Record("lighting", time.Millisecond)
	p.Record("geometry", 4*time.Millisecond)

	got := p.Passes()
	if len(got) != 2 {
		t.Fatalf("got %d reports, want 2", len(got))
	}
	if got[0].Name != "geometry" || got[1].Name != "lighting" {
		t.Fatalf("order = %s, %s", got[0].Name, got[1].Name)
	}
	if got[0].Average != 3*time.Millisecond || got[0].Worst != 4*time.Millisecond || got[0].Samples != 2 {
		t.Errorf("geometry = %+v", got[0])
	}
}

func TestTickLogsAndResets(t *testing.T) {
	var buf bytes.Buffer
	p := NewProfiler(
		WithLogger(slog.New(slog.NewTextHandler(&buf, nil))),
		WithInterval(time.Nanosecond),
	)
	p.Record("shadows", time.Millisecond)
	time.Sleep(time.Millisecond)
	if !p.Tick() {
		t.Fatal("Tick did not report after the interval")
	}
	out := buf.String()
	if !strings.Contains(out, "fps=") || !strings.Contains(out, "pass=shadows") {
		t.Errorf("log output missing fields:\n%s", out)
	}
	if n := len(p.Passes()); n != 0 {
		t.Errorf("%d pass reports survive a tick", n)
	}
}

func TestTickWaitsForInterval(t *testing.T) {
	p := NewProfiler(WithInterval(time.Hour))
	if p.Tick() {
		t.Error("Tick reported before the interval elapsed")
	}
}

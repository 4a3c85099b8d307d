package profiler

import (
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"time"
)

// Profiler tracks frame rate, per-pass timings and memory statistics for performance monitoring.
// Outputs stats to its logger at a configurable interval.
type Profiler struct {
	mu             sync.Mutex
	logger         *slog.Logger
	frameCount     int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64
	passes         map[string]*passTiming
	order          []string
}

type passTiming struct {
	total time.Duration
	worst time.Duration
	count int
}

// PassReport is the timing of one pass over the last reporting interval.
type PassReport struct {
	Name    string
	Average time.Duration
	Worst   time.Duration
	Samples int
}

// ProfilerBuilderOption is a functional option for configuring a Profiler.
type ProfilerBuilderOption func(*Profiler)

// WithLogger sets the logger statistics are written to.
//
// Parameters:
//   - logger: the logger
//
// Returns:
//   - ProfilerBuilderOption: a function that sets the logger
func WithLogger(logger *slog.Logger) ProfilerBuilderOption {
	return func(p *Profiler) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithInterval sets how often statistics are logged.
//
// Parameters:
//   - d: the reporting interval, non-positive values keep the default
//
// Returns:
//   - ProfilerBuilderOption: a function that sets the interval
func WithInterval(d time.Duration) ProfilerBuilderOption {
	return func(p *Profiler) {
		if d > 0 {
			p.updateInterval = d
		}
	}
}

// NewProfiler creates a new Profiler with default settings.
// Update interval defaults to 1 second; the default logger discards.
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(options ...ProfilerBuilderOption) *Profiler {
	p := &Profiler{
		logger:         slog.New(slog.DiscardHandler),
		lastTime:       time.Now(),
		updateInterval: time.Second,
		passes:         make(map[string]*passTiming),
	}
	for _, option := range options {
		option(p)
	}
	return p
}

// Record adds one timing sample for a named pass.
//
// Parameters:
//   - pass: the pass name
//   - d: how long the pass took to record
func (p *Profiler) Record(pass string, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.passes[pass]
	if !ok {
		t = &passTiming{}
		p.passes[pass] = t
		p.order = append(p.order, pass)
	}
	t.total += d
	t.worst = max(t.worst, d)
	t.count++
}

// Passes returns the pass timings gathered since the last report, in first-recorded order.
//
// Returns:
//   - []PassReport: one entry per pass
func (p *Profiler) Passes() []PassReport {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reports()
}

func (p *Profiler) reports() []PassReport {
	out := make([]PassReport, 0, len(p.order))
	for _, name := range p.order {
		t := p.passes[name]
		if t.count == 0 {
			continue
		}
		out = append(out, PassReport{
			Name:    name,
			Average: t.total / time.Duration(t.count),
			Worst:   t.worst,
			Samples: t.count,
		})
	}
	return out
}

// Tick should be called once per frame to track frame timing.
// Logs performance statistics when the update interval has elapsed.
// Statistics include: FPS, heap usage, allocation rate, GC count/pause times, total memory,
// and the average and worst time of every recorded pass.
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frameCount++
	currentTime := time.Now()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	fps := float64(p.frameCount) / elapsed.Seconds()

	runtime.ReadMemStats(&p.memStats)
	allocMB := float64(p.memStats.Alloc) / 1024 / 1024
	sysMB := float64(p.memStats.Sys) / 1024 / 1024
	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
	allocRateMB := float64(allocDelta) / 1024 / 1024 / elapsed.Seconds()

	// PauseNs is a circular buffer of the last 256 pauses
	gcCount := p.memStats.NumGC
	var lastPauseUs, maxPauseUs uint64
	if gcCount > 0 {
		lastPauseUs = p.memStats.PauseNs[(gcCount-1)%256] / 1000
		startIdx := p.lastGCCount
		if gcCount-startIdx > 256 {
			startIdx = gcCount - 256
		}
		for i := startIdx; i < gcCount; i++ {
			maxPauseUs = max(maxPauseUs, p.memStats.PauseNs[i%256]/1000)
		}
	}

	p.logger.Info("profiler",
		"fps", fps,
		"heap_mb", allocMB,
		"alloc_rate_mb_s", allocRateMB,
		"gc", gcCount,
		"gc_last_us", lastPauseUs,
		"gc_max_us", maxPauseUs,
		"sys_mb", sysMB,
	)
	for _, r := range p.reports() {
		p.logger.Info("profiler pass", "pass", r.Name, "avg", r.Average, "worst", r.Worst, "samples", r.Samples)
	}

	p.frameCount = 0
	p.lastTime = currentTime
	p.lastGCCount = gcCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	clear(p.passes)
	p.order = slices.Delete(p.order, 0, len(p.order))
	return true
}

package observability

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/metric"
)

// Unit mirrors the original Metrics.h's Unit enum.
type Unit string

const (
	UnitDimensionless Unit = ""
	UnitMilliseconds  Unit = "ms"
	UnitSeconds       Unit = "s"
	UnitBytes         Unit = "By"
	UnitKilobytes     Unit = "kBy"
	UnitMegabytes     Unit = "MBy"
	UnitPercent       Unit = "%"
)

// Counter is a dense-integer handle into the Registry's counter table,
// giving O(1) lookup on the hot path instead of a name-keyed map access
// per increment.
type Counter uint32

// Histogram is a dense-integer handle into the Registry's histogram table.
type Histogram uint32

// Gauge is a dense-integer handle into the Registry's gauge table.
type Gauge uint32

// Registry registers named instruments once at startup and hands back
// small integer handles; Add/Record/Set index directly into backing
// slices instead of doing a map lookup per call.
type Registry struct {
	meter metric.Meter

	mu         sync.Mutex
	counters   []metric.Int64Counter
	histograms []metric.Float64Histogram
	gauges     []metric.Float64Gauge

	counterIdx   map[string]Counter
	histogramIdx map[string]Histogram
	gaugeIdx     map[string]Gauge
}

// NewRegistry builds a Registry backed by meter.
func NewRegistry(meter metric.Meter) *Registry {
	return &Registry{
		meter:        meter,
		counterIdx:   make(map[string]Counter),
		histogramIdx: make(map[string]Histogram),
		gaugeIdx:     make(map[string]Gauge),
	}
}

// RegisterCounter registers (or returns the existing handle for) a counter.
func (r *Registry) RegisterCounter(name string, unit Unit) (Counter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if idx, ok := r.counterIdx[name]; ok {
		return idx, nil
	}
	c, err := r.meter.Int64Counter(name, metric.WithUnit(string(unit)))
	if err != nil {
		return 0, fmt.Errorf("observability: register counter %q: %w", name, err)
	}
	idx := Counter(len(r.counters))
	r.counters = append(r.counters, c)
	r.counterIdx[name] = idx
	return idx, nil
}

// RegisterHistogram registers (or returns the existing handle for) a histogram.
func (r *Registry) RegisterHistogram(name string, unit Unit) (Histogram, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if idx, ok := r.histogramIdx[name]; ok {
		return idx, nil
	}
	h, err := r.meter.Float64Histogram(name, metric.WithUnit(string(unit)))
	if err != nil {
		return 0, fmt.Errorf("observability: register histogram %q: %w", name, err)
	}
	idx := Histogram(len(r.histograms))
	r.histograms = append(r.histograms, h)
	r.histogramIdx[name] = idx
	return idx, nil
}

// RegisterGauge registers (or returns the existing handle for) a gauge.
func (r *Registry) RegisterGauge(name string, unit Unit) (Gauge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if idx, ok := r.gaugeIdx[name]; ok {
		return idx, nil
	}
	g, err := r.meter.Float64Gauge(name, metric.WithUnit(string(unit)))
	if err != nil {
		return 0, fmt.Errorf("observability: register gauge %q: %w", name, err)
	}
	idx := Gauge(len(r.gauges))
	r.gauges = append(r.gauges, g)
	r.gaugeIdx[name] = idx
	return idx, nil
}

// Add/Record/Set assume all registration has completed before any of
// them are called concurrently — the same "register once at startup,
// then read lock-free on the hot path" contract as the original's
// dense metric IDs.

// Add increments a counter by delta.
func (r *Registry) Add(ctx context.Context, c Counter, delta int64) {
	r.counters[c].Add(ctx, delta)
}

// Record observes a histogram value.
func (r *Registry) Record(ctx context.Context, h Histogram, value float64) {
	r.histograms[h].Record(ctx, value)
}

// Set records a gauge's current value.
func (r *Registry) Set(ctx context.Context, g Gauge, value float64) {
	r.gauges[g].Record(ctx, value)
}

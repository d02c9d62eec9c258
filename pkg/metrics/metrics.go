package metrics

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// ErrLabelCountMismatch is returned when the number of label values doesn't match the defined labels.
var ErrLabelCountMismatch = errors.New("label count mismatch")

// ErrNegativeCounterValue is returned when attempting to add a negative value to a counter.
var ErrNegativeCounterValue = errors.New("counter cannot be decreased")

// ErrDuplicateMetric is returned when registering a metric with a name that is already registered.
var ErrDuplicateMetric = errors.New("duplicate metric name")

// atomicFloat64 stores the bits of a float64 as a uint64 for atomic access.
type atomicFloat64 struct {
	bits uint64
}

func (a *atomicFloat64) Load() float64 {
	return math.Float64frombits(atomic.LoadUint64(&a.bits))
}

func (a *atomicFloat64) Store(val float64) {
	atomic.StoreUint64(&a.bits, math.Float64bits(val))
}

func (a *atomicFloat64) Add(delta float64) {
	for {
		old := atomic.LoadUint64(&a.bits)
		next := math.Float64frombits(old) + delta
		if atomic.CompareAndSwapUint64(&a.bits, old, math.Float64bits(next)) {
			return
		}
	}
}

// MetricType represents the type of a metric.
type MetricType string

const (
	MetricTypeCounter   MetricType = "counter"
	MetricTypeGauge     MetricType = "gauge"
	MetricTypeHistogram MetricType = "histogram"
)

// Metric is the interface implemented by all metric types.
type Metric interface {
	Name() string
	Help() string
	Type() MetricType
	// Collect returns all samples for exposition.
	Collect() []Sample
}

// Sample is a single metric sample with labels.
type Sample struct {
	Name   string
	Labels map[string]string
	Value  float64
}

// family holds the series of one metric, keyed by label values.
type family[V any] struct {
	name       string
	help       string
	labelNames []string
	newValue   func() *V

	mu     sync.RWMutex
	series map[string]*series[V]
	order  []string
}

type series[V any] struct {
	labels map[string]string
	value  *V
}

func (f *family[V]) init(name, help string, labelNames []string, newValue func() *V) {
	f.name = name
	f.help = help
	f.labelNames = labelNames
	f.newValue = newValue
	f.series = make(map[string]*series[V])
}

func newFloat() *atomicFloat64 { return new(atomicFloat64) }

func (f *family[V]) Name() string { return f.name }
func (f *family[V]) Help() string { return f.help }

// get returns the series for values, creating it on first use.
func (f *family[V]) get(kind MetricType, values []string) (*series[V], error) {
	if len(values) != len(f.labelNames) {
		return nil, fmt.Errorf("%w: %s %s expected %d labels, got %d", ErrLabelCountMismatch, kind, f.name, len(f.labelNames), len(values))
	}
	key := strings.Join(values, "\x00")

	f.mu.RLock()
	s, ok := f.series[key]
	f.mu.RUnlock()
	if ok {
		return s, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok = f.series[key]; ok {
		return s, nil
	}
	labels := make(map[string]string, len(values))
	for i, name := range f.labelNames {
		labels[name] = values[i]
	}
	s = &series[V]{labels: labels, value: f.newValue()}
	f.series[key] = s
	f.order = append(f.order, key)
	return s, nil
}

// each visits series in creation order.
func (f *family[V]) each(fn func(s *series[V])) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, key := range f.order {
		fn(f.series[key])
	}
}

// Counter is a monotonically increasing metric.
type Counter struct {
	family[atomicFloat64]
}

func newCounter(name, help string, labelNames []string) *Counter {
	c := &Counter{}
	c.init(name, help, labelNames, newFloat)
	return c
}

func (c *Counter) Type() MetricType { return MetricTypeCounter }

// WithLabels returns the series for the given label values.
func (c *Counter) WithLabels(values ...string) (*CounterVec, error) {
	s, err := c.get(MetricTypeCounter, values)
	if err != nil {
		return nil, err
	}
	return &CounterVec{v: s.value}, nil
}

// Inc increments an unlabeled counter by 1.
func (c *Counter) Inc() error {
	return c.Add(1)
}

// Add adds delta to an unlabeled counter.
func (c *Counter) Add(delta float64) error {
	vec, err := c.WithLabels()
	if err != nil {
		return err
	}
	return vec.Add(delta)
}

func (c *Counter) Collect() []Sample {
	var samples []Sample
	c.each(func(s *series[atomicFloat64]) {
		samples = append(samples, Sample{Name: c.name, Labels: s.labels, Value: s.value.Load()})
	})
	return samples
}

// CounterVec is one labeled counter series.
type CounterVec struct {
	v *atomicFloat64
}

func (v *CounterVec) Inc() error {
	return v.Add(1)
}

func (v *CounterVec) Add(delta float64) error {
	if delta < 0 {
		return ErrNegativeCounterValue
	}
	v.v.Add(delta)
	return nil
}

// Gauge is a metric that can go up and down.
type Gauge struct {
	family[atomicFloat64]
}

func newGauge(name, help string, labelNames []string) *Gauge {
	g := &Gauge{}
	g.init(name, help, labelNames, newFloat)
	return g
}

func (g *Gauge) Type() MetricType { return MetricTypeGauge }

// WithLabels returns the series for the given label values.
func (g *Gauge) WithLabels(values ...string) (*GaugeVec, error) {
	s, err := g.get(MetricTypeGauge, values)
	if err != nil {
		return nil, err
	}
	return &GaugeVec{v: s.value}, nil
}

// Set sets an unlabeled gauge.
func (g *Gauge) Set(value float64) error {
	vec, err := g.WithLabels()
	if err != nil {
		return err
	}
	vec.Set(value)
	return nil
}

func (g *Gauge) Collect() []Sample {
	var samples []Sample
	g.each(func(s *series[atomicFloat64]) {
		samples = append(samples, Sample{Name: g.name, Labels: s.labels, Value: s.value.Load()})
	})
	return samples
}

// GaugeVec is one labeled gauge series.
type GaugeVec struct {
	v *atomicFloat64
}

func (v *GaugeVec) Set(value float64) { v.v.Store(value) }
func (v *GaugeVec) Inc()              { v.v.Add(1) }
func (v *GaugeVec) Dec()              { v.v.Add(-1) }
func (v *GaugeVec) Add(delta float64) { v.v.Add(delta) }

// Histogram tracks the distribution of observed values.
type Histogram struct {
	family[histogramValue]
	buckets []float64
}

type histogramValue struct {
	counts []uint64 // per bucket, not cumulative
	sum    atomicFloat64
	count  uint64
}

func newHistogram(name, help string, buckets []float64, labelNames []string) *Histogram {
	bounds := append([]float64(nil), buckets...)
	sort.Float64s(bounds)
	if len(bounds) == 0 || !math.IsInf(bounds[len(bounds)-1], 1) {
		bounds = append(bounds, math.Inf(1))
	}
	h := &Histogram{buckets: bounds}
	h.init(name, help, labelNames, func() *histogramValue {
		return &histogramValue{counts: make([]uint64, len(bounds))}
	})
	return h
}

func (h *Histogram) Type() MetricType { return MetricTypeHistogram }

// WithLabels returns the series for the given label values.
func (h *Histogram) WithLabels(values ...string) (*HistogramVec, error) {
	s, err := h.get(MetricTypeHistogram, values)
	if err != nil {
		return nil, err
	}
	return &HistogramVec{buckets: h.buckets, v: s.value}, nil
}

// Observe records a value in an unlabeled histogram.
func (h *Histogram) Observe(value float64) error {
	vec, err := h.WithLabels()
	if err != nil {
		return err
	}
	vec.Observe(value)
	return nil
}

func (h *Histogram) Collect() []Sample {
	var samples []Sample
	h.each(func(s *series[histogramValue]) {
		var cumulative uint64
		for i, bound := range h.buckets {
			cumulative += atomic.LoadUint64(&s.value.counts[i])
			labels := make(map[string]string, len(s.labels)+1)
			for k, v := range s.labels {
				labels[k] = v
			}
			labels["le"] = formatFloat(bound)
			samples = append(samples, Sample{Name: h.name + "_bucket", Labels: labels, Value: float64(cumulative)})
		}
		samples = append(samples,
			Sample{Name: h.name + "_sum", Labels: s.labels, Value: s.value.sum.Load()},
			Sample{Name: h.name + "_count", Labels: s.labels, Value: float64(atomic.LoadUint64(&s.value.count))},
		)
	})
	return samples
}

// HistogramVec is one labeled histogram series.
type HistogramVec struct {
	buckets []float64
	v       *histogramValue
}

func (v *HistogramVec) Observe(value float64) {
	for i, bound := range v.buckets {
		if value <= bound {
			atomic.AddUint64(&v.v.counts[i], 1)
			break
		}
	}
	v.v.sum.Add(value)
	atomic.AddUint64(&v.v.count, 1)
}

// Registry holds registered metrics in registration order.
type Registry struct {
	mu      sync.RWMutex
	metrics []Metric
	names   map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

// NewCounter creates and registers a counter.
func (r *Registry) NewCounter(name, help string, labels ...string) *Counter {
	c := newCounter(name, help, labels)
	r.register(c)
	return c
}

// NewGauge creates and registers a gauge.
func (r *Registry) NewGauge(name, help string, labels ...string) *Gauge {
	g := newGauge(name, help, labels)
	r.register(g)
	return g
}

// NewHistogram creates and registers a histogram with the given upper bounds.
func (r *Registry) NewHistogram(name, help string, buckets []float64, labels ...string) *Histogram {
	h := newHistogram(name, help, buckets, labels)
	r.register(h)
	return h
}

// register panics on a duplicate name since the exposition would be invalid.
func (r *Registry) register(m Metric) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.names[m.Name()]; exists {
		panic(fmt.Sprintf("%s: %s", ErrDuplicateMetric, m.Name()))
	}
	r.names[m.Name()] = struct{}{}
	r.metrics = append(r.metrics, m)
}

// WriteTo writes every metric with at least one sample in the Prometheus
// text format.
func (r *Registry) WriteTo(w io.Writer) (int64, error) {
	r.mu.RLock()
	metrics := append([]Metric(nil), r.metrics...)
	r.mu.RUnlock()

	cw := &countingWriter{w: w}
	for _, m := range metrics {
		writeMetric(cw, m)
		if cw.err != nil {
			break
		}
	}
	return cw.n, cw.err
}

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = r.WriteTo(w)
	})
}

type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (c *countingWriter) Write(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	n, err := c.w.Write(p)
	c.n += int64(n)
	c.err = err
	return n, err
}

func writeMetric(w io.Writer, m Metric) {
	samples := m.Collect()
	if len(samples) == 0 {
		return
	}
	fmt.Fprintf(w, "# HELP %s %s\n", m.Name(), escapeHelp(m.Help()))
	fmt.Fprintf(w, "# TYPE %s %s\n", m.Name(), m.Type())
	for _, s := range samples {
		if len(s.Labels) == 0 {
			fmt.Fprintf(w, "%s %s\n", s.Name, formatFloat(s.Value))
			continue
		}
		fmt.Fprintf(w, "%s{%s} %s\n", s.Name, formatLabels(s.Labels), formatFloat(s.Value))
	}
}

// formatLabels formats labels as key="value" pairs sorted by key.
func formatLabels(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + `="` + escapeLabelValue(labels[k]) + `"`
	}
	return strings.Join(parts, ",")
}

func formatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	default:
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
}

func escapeHelp(s string) string {
	return strings.NewReplacer(`\`, `\\`, "\n", `\n`).Replace(s)
}

func escapeLabelValue(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`).Replace(s)
}

// DefaultBuckets are histogram bounds in seconds suited to HTTP calls.
var DefaultBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

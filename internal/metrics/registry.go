// Package metrics implements the in-process counter and histogram registry.
// Histograms retain a bounded buffer of recent raw values so percentiles can
// be computed on demand (the CI latency gate and the debug endpoints read
// them directly). The registry fails open: a metrics problem must never break
// the request path.
package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// maxHistogramValues bounds the raw-value buffer per (name,labels) key.
const maxHistogramValues = 10000

// HistogramStats summarizes one histogram key.
type HistogramStats struct {
	Count int     `json:"count"`
	Sum   float64 `json:"sum"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

type histogram struct {
	values []float64 // ring buffer, oldest first
	next   int
	full   bool
	count  int
	sum    float64
}

// Registry holds counters and histograms keyed by name plus sorted labels.
type Registry struct {
	mu         sync.RWMutex
	counters   map[string]int64
	histograms map[string]*histogram
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		counters:   make(map[string]int64),
		histograms: make(map[string]*histogram),
	}
}

// key builds a stable map key from name and labels. Labels are sorted so that
// map iteration order never leaks into the key.
func key(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	parts := make([]string, 0, len(labels))
	for k, v := range labels {
		parts = append(parts, k+"="+v)
	}
	sort.Strings(parts)
	return name + "{" + strings.Join(parts, ",") + "}"
}

// IncrementCounter adds 1 to the named counter.
func (r *Registry) IncrementCounter(name string, labels map[string]string) {
	defer func() { _ = recover() }()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[key(name, labels)]++
}

// AddCounter adds delta to the named counter.
func (r *Registry) AddCounter(name string, labels map[string]string, delta int64) {
	defer func() { _ = recover() }()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[key(name, labels)] += delta
}

// ObserveHistogram records one raw value.
func (r *Registry) ObserveHistogram(name string, value float64, labels map[string]string) {
	defer func() { _ = recover() }()

	r.mu.Lock()
	defer r.mu.Unlock()

	k := key(name, labels)
	h, ok := r.histograms[k]
	if !ok {
		h = &histogram{values: make([]float64, 0, 256)}
		r.histograms[k] = h
	}

	if h.full {
		h.values[h.next] = value
		h.next = (h.next + 1) % maxHistogramValues
	} else {
		h.values = append(h.values, value)
		if len(h.values) == maxHistogramValues {
			h.full = true
			h.next = 0
		}
	}
	h.count++
	h.sum += value
}

// GetCounter returns the counter value, zero if absent.
func (r *Registry) GetCounter(name string, labels map[string]string) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.counters[key(name, labels)]
}

// GetHistogramStats computes stats over the retained values. Returns false if
// the histogram has never been observed.
func (r *Registry) GetHistogramStats(name string, labels map[string]string) (HistogramStats, bool) {
	r.mu.RLock()
	h, ok := r.histograms[key(name, labels)]
	if !ok || len(h.values) == 0 {
		r.mu.RUnlock()
		return HistogramStats{}, false
	}
	vals := make([]float64, len(h.values))
	copy(vals, h.values)
	count, sum := h.count, h.sum
	r.mu.RUnlock()

	sort.Float64s(vals)

	stats := HistogramStats{
		Count: count,
		Sum:   sum,
		Min:   vals[0],
		Max:   vals[len(vals)-1],
		P50:   percentile(vals, 0.50),
		P95:   percentile(vals, 0.95),
		P99:   percentile(vals, 0.99),
	}
	if count > 0 {
		stats.Avg = sum / float64(count)
	}
	return stats, true
}

// percentile computes the q-th percentile of sorted values via linear
// interpolation between closest ranks.
func percentile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	pos := q * float64(n-1)
	lo := int(pos)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// Counters returns a snapshot of all counter values.
func (r *Registry) Counters() map[string]int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int64, len(r.counters))
	for k, v := range r.counters {
		out[k] = v
	}
	return out
}

// HistogramNames returns the keys of all observed histograms.
func (r *Registry) HistogramNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.histograms))
	for k := range r.histograms {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Reset drops all recorded values. Tests only.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters = make(map[string]int64)
	r.histograms = make(map[string]*histogram)
}

// Rate returns numerator/denominator counters as a ratio, 0 when the
// denominator is 0.
func (r *Registry) Rate(numerator, denominator string) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d := r.counters[denominator]
	if d == 0 {
		return 0
	}
	return float64(r.counters[numerator]) / float64(d)
}

// String renders a short debug view, one metric per line.
func (r *Registry) String() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var b strings.Builder
	keys := make([]string, 0, len(r.counters))
	for k := range r.counters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s %d\n", k, r.counters[k])
	}
	return b.String()
}

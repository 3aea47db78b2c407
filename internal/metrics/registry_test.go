package metrics

import (
	"math/rand"
	"testing"
)

func TestCounters(t *testing.T) {
	r := NewRegistry()
	r.IncrementCounter("requests", nil)
	r.IncrementCounter("requests", nil)
	r.AddCounter("requests", nil, 3)

	if got := r.GetCounter("requests", nil); got != 5 {
		t.Fatalf("expected 5, got %d", got)
	}
	if got := r.GetCounter("missing", nil); got != 0 {
		t.Fatalf("expected 0 for missing counter, got %d", got)
	}
}

func TestCounterLabelsOrderIndependent(t *testing.T) {
	r := NewRegistry()
	r.IncrementCounter("hits", map[string]string{"a": "1", "b": "2"})
	r.IncrementCounter("hits", map[string]string{"b": "2", "a": "1"})

	if got := r.GetCounter("hits", map[string]string{"a": "1", "b": "2"}); got != 2 {
		t.Fatalf("label order leaked into the key: got %d", got)
	}
}

func TestHistogramStats(t *testing.T) {
	r := NewRegistry()
	for i := 1; i <= 100; i++ {
		r.ObserveHistogram("latency", float64(i), nil)
	}

	stats, ok := r.GetHistogramStats("latency", nil)
	if !ok {
		t.Fatal("expected stats")
	}
	if stats.Count != 100 {
		t.Fatalf("count: got %d", stats.Count)
	}
	if stats.Min != 1 || stats.Max != 100 {
		t.Fatalf("min/max: got %v/%v", stats.Min, stats.Max)
	}
	if stats.P50 < 50 || stats.P50 > 51 {
		t.Fatalf("p50: got %v", stats.P50)
	}
	if stats.P95 < 95 || stats.P95 > 96 {
		t.Fatalf("p95: got %v", stats.P95)
	}
	if stats.Avg != 50.5 {
		t.Fatalf("avg: got %v", stats.Avg)
	}
}

func TestHistogramPercentilesOrderIndependent(t *testing.T) {
	values := make([]float64, 500)
	for i := range values {
		values[i] = float64(i)
	}

	a := NewRegistry()
	for _, v := range values {
		a.ObserveHistogram("m", v, nil)
	}

	rand.New(rand.NewSource(42)).Shuffle(len(values), func(i, j int) {
		values[i], values[j] = values[j], values[i]
	})
	b := NewRegistry()
	for _, v := range values {
		b.ObserveHistogram("m", v, nil)
	}

	sa, _ := a.GetHistogramStats("m", nil)
	sb, _ := b.GetHistogramStats("m", nil)
	if sa != sb {
		t.Fatalf("stats depend on observation order:\n%+v\n%+v", sa, sb)
	}
}

func TestHistogramRingBound(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < maxHistogramValues+500; i++ {
		r.ObserveHistogram("m", float64(i), nil)
	}
	stats, _ := r.GetHistogramStats("m", nil)
	if stats.Count != maxHistogramValues+500 {
		t.Fatalf("count should track all observations: got %d", stats.Count)
	}
	// The oldest 500 values rolled out of the ring.
	if stats.Min != 500 {
		t.Fatalf("min should come from the retained window: got %v", stats.Min)
	}
}

func TestMissingHistogram(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.GetHistogramStats("never", nil); ok {
		t.Fatal("expected ok=false for unobserved histogram")
	}
}

func TestRate(t *testing.T) {
	r := NewRegistry()
	if got := r.Rate("errors", "total"); got != 0 {
		t.Fatalf("rate with zero denominator: got %v", got)
	}
	r.AddCounter("total", nil, 10)
	r.AddCounter("errors", nil, 3)
	if got := r.Rate("errors", "total"); got != 0.3 {
		t.Fatalf("rate: got %v", got)
	}
}

func TestTimerObserves(t *testing.T) {
	r := NewRegistry()
	timer := r.StartTimer("op_ms", nil)
	timer.Stop()

	stats, ok := r.GetHistogramStats("op_ms", nil)
	if !ok || stats.Count != 1 {
		t.Fatalf("timer did not observe: ok=%v stats=%+v", ok, stats)
	}
}

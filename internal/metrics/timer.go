package metrics

import "time"

// Timer observes elapsed wall time into a histogram when stopped.
type Timer struct {
	registry *Registry
	name     string
	labels   map[string]string
	start    time.Time
}

// StartTimer begins timing an operation. Stop records the elapsed
// milliseconds into the named histogram.
func (r *Registry) StartTimer(name string, labels map[string]string) *Timer {
	return &Timer{registry: r, name: name, labels: labels, start: time.Now()}
}

// Stop records the elapsed time and returns it.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	t.registry.ObserveHistogram(t.name, float64(elapsed.Milliseconds()), t.labels)
	return elapsed
}

package persistence

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/teranos/cdr/errors"
)

// Metrics instruments the persistence services. A nil *Metrics records
// nothing.
type Metrics struct {
	operations   *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	cache        *prometheus.CounterVec
	associations *prometheus.CounterVec
}

// NewMetrics builds the collectors and registers them with reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cdr",
			Subsystem: "persistence",
			Name:      "operations_total",
			Help:      "Persistence operations by model type, operation and outcome.",
		}, []string{"type", "operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cdr",
			Subsystem: "persistence",
			Name:      "operation_duration_seconds",
			Help:      "Latency of persistence operations.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"type", "operation"}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cdr",
			Subsystem: "persistence",
			Name:      "cache_lookups_total",
			Help:      "Model and row cache lookups by result.",
		}, []string{"type", "result"}),
		associations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cdr",
			Subsystem: "persistence",
			Name:      "association_changes_total",
			Help:      "Association rows written during reconciliation.",
		}, []string{"association", "change"}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.operations, m.duration, m.cache, m.associations} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "register persistence metrics")
		}
	}
	return m, nil
}

// outcome labels an operation result.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.IsArgumentError(err):
		return "invalid_argument"
	case errors.IsNotFoundError(err):
		return "not_found"
	case errors.IsValidationError(err):
		return "validation"
	case errors.IsConstraintViolation(err):
		return "constraint"
	case errors.IsConflict(err):
		return "conflict"
	default:
		return "error"
	}
}

func (m *Metrics) observe(typeName string, op Operation, started time.Time, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(typeName, string(op), outcome(err)).Inc()
	m.duration.WithLabelValues(typeName, string(op)).Observe(time.Since(started).Seconds())
}

func (m *Metrics) cacheLookup(typeName string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cache.WithLabelValues(typeName, result).Inc()
}

func (m *Metrics) associationChanges(name string, st ReconcileStats) {
	if m == nil {
		return
	}
	for change, n := range map[string]int{
		"inserted":  st.Inserted,
		"updated":   st.Updated,
		"obsoleted": st.Obsoleted,
		"deleted":   st.Deleted,
	} {
		if n > 0 {
			m.associations.WithLabelValues(name, change).Add(float64(n))
		}
	}
}

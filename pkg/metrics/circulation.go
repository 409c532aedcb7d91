package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// CirculationMetrics counts lending and hold queue activity.
type CirculationMetrics struct {
	loansCreated  prometheus.Counter
	loansReturned prometheus.Counter
	finesAssessed prometheus.Counter
	holdsCreated  prometheus.Counter
	holdsExpired  prometheus.Counter
	holdFailures  *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
}

// NewCirculationMetrics registers the circulation collectors on reg. A nil
// registerer yields a no-op recorder.
func NewCirculationMetrics(reg prometheus.Registerer) *CirculationMetrics {
	if reg == nil {
		return &CirculationMetrics{}
	}
	m := &CirculationMetrics{
		loansCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loans",
			Name:      "created_total",
			Help:      "Loans created.",
		}),
		loansReturned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loans",
			Name:      "returned_total",
			Help:      "Loans returned.",
		}),
		finesAssessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loans",
			Name:      "fines_assessed_total",
			Help:      "Sum of late fines assessed on return.",
		}),
		holdsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "holds",
			Name:      "created_total",
			Help:      "Copies placed on hold for a reservation.",
		}),
		holdsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "holds",
			Name:      "expired_total",
			Help:      "Holds expired before pickup.",
		}),
		holdFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "holds",
			Name:      "failures_total",
			Help:      "Per-item failures during hold batch processing.",
		}, []string{"operation"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "availability_cache",
			Name:      "lookups_total",
			Help:      "Availability cache lookups by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		m.loansCreated,
		m.loansReturned,
		m.finesAssessed,
		m.holdsCreated,
		m.holdsExpired,
		m.holdFailures,
		m.cacheLookups,
	)
	return m
}

func (m *CirculationMetrics) LoanCreated() {
	if m == nil || m.loansCreated == nil {
		return
	}
	m.loansCreated.Inc()
}

// LoanReturned records a return and the fine assessed on it.
func (m *CirculationMetrics) LoanReturned(fine decimal.Decimal) {
	if m == nil || m.loansReturned == nil {
		return
	}
	m.loansReturned.Inc()
	if fine.IsPositive() {
		m.finesAssessed.Add(fine.InexactFloat64())
	}
}

func (m *CirculationMetrics) HoldsCreated(n int) {
	if m == nil || m.holdsCreated == nil || n <= 0 {
		return
	}
	m.holdsCreated.Add(float64(n))
}

func (m *CirculationMetrics) HoldsExpired(n int) {
	if m == nil || m.holdsExpired == nil || n <= 0 {
		return
	}
	m.holdsExpired.Add(float64(n))
}

func (m *CirculationMetrics) HoldFailures(operation string, n int) {
	if m == nil || m.holdFailures == nil || n <= 0 {
		return
	}
	m.holdFailures.WithLabelValues(normalizeLabel(operation)).Add(float64(n))
}

// CacheLookup records a hit, miss or error on the availability cache.
func (m *CirculationMetrics) CacheLookup(result string) {
	if m == nil || m.cacheLookups == nil {
		return
	}
	m.cacheLookups.WithLabelValues(normalizeLabel(result)).Inc()
}

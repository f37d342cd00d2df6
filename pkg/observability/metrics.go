package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Global metrics instance for singleton pattern
	globalCollector *Collector
	collectorMutex  sync.Mutex
)

// Collector holds all Prometheus metrics for the application
type Collector struct {
	// Registry for this collector instance
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Mutation metrics
	MutationsAccepted *prometheus.CounterVec
	MutationsRejected *prometheus.CounterVec
	VersionConflicts  prometheus.Counter

	// Lock metrics
	LockAcquisitions prometheus.Counter
	LockContention   prometheus.Counter
	LockReclaims     prometheus.Counter

	// Analysis metrics
	AnalysisRuns     *prometheus.CounterVec
	AnalysisDuration *prometheus.HistogramVec

	// Convergence metrics
	ConvergenceTransitions *prometheus.CounterVec

	// Event bus metrics
	EventsPublished prometheus.Counter
	EventsDropped   prometheus.Counter
}

// NewCollector creates a new metrics collector with the given namespace
func NewCollector(namespace string) *Collector {
	// Use singleton pattern to avoid duplicate registration in tests
	collectorMutex.Lock()
	defer collectorMutex.Unlock()

	if globalCollector != nil {
		return globalCollector
	}

	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	mutationsAccepted := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_accepted_total",
			Help:      "Total number of accepted graph mutations",
		},
		[]string{"operation"},
	)

	mutationsRejected := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_rejected_total",
			Help:      "Total number of rejected graph mutations",
		},
		[]string{"operation", "reason"},
	)

	versionConflicts := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "version_conflicts_total",
			Help:      "Total number of optimistic version conflicts",
		},
	)

	lockAcquisitions := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_acquisitions_total",
			Help:      "Total number of branch lease acquisitions",
		},
	)

	lockContention := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_contention_total",
			Help:      "Total number of lock requests rejected while held",
		},
	)

	lockReclaims := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_reclaims_total",
			Help:      "Total number of expired leases reclaimed",
		},
	)

	analysisRuns := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_runs_total",
			Help:      "Total number of analysis runs",
		},
		[]string{"kind", "approximate"},
	)

	analysisDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Analysis run duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"kind"},
	)

	convergenceTransitions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "convergence_transitions_total",
			Help:      "Total number of convergence state transitions",
		},
		[]string{"to_state", "reason"},
	)

	eventsPublished := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total number of session events published",
		},
	)

	eventsDropped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Total number of session events dropped for slow consumers",
		},
	)

	registry.MustRegister(
		httpRequests, httpDuration,
		mutationsAccepted, mutationsRejected, versionConflicts,
		lockAcquisitions, lockContention, lockReclaims,
		analysisRuns, analysisDuration,
		convergenceTransitions,
		eventsPublished, eventsDropped,
	)

	globalCollector = &Collector{
		registry:               registry,
		HTTPRequests:           httpRequests,
		HTTPDuration:           httpDuration,
		MutationsAccepted:      mutationsAccepted,
		MutationsRejected:      mutationsRejected,
		VersionConflicts:       versionConflicts,
		LockAcquisitions:       lockAcquisitions,
		LockContention:         lockContention,
		LockReclaims:           lockReclaims,
		AnalysisRuns:           analysisRuns,
		AnalysisDuration:       analysisDuration,
		ConvergenceTransitions: convergenceTransitions,
		EventsPublished:        eventsPublished,
		EventsDropped:          eventsDropped,
	}

	return globalCollector
}

// Registry returns the collector's Prometheus registry for exposition
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveHTTP records one HTTP request
func (c *Collector) ObserveHTTP(method, route, status string, duration time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, status).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveAnalysis records one analysis run
func (c *Collector) ObserveAnalysis(kind string, approximate bool, duration time.Duration) {
	approx := "false"
	if approximate {
		approx = "true"
	}
	c.AnalysisRuns.WithLabelValues(kind, approx).Inc()
	c.AnalysisDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

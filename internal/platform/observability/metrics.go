package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReportGenerations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insights_report_generations_total",
		Help: "The total number of report generation requests by category and outcome",
	}, []string{"category", "outcome"})

	ReportGenerationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "insights_report_generation_duration_seconds",
		Help:    "End-to-end duration of report generation",
		Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
	}, []string{"category"})

	PreconditionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insights_precondition_failures_total",
		Help: "Generation requests rejected because a prerequisite was missing",
	}, []string{"category", "missing"})

	UpsertConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insights_upsert_conflicts_total",
		Help: "Writes rejected by the optimistic version check",
	}, []string{"category"})

	GenerationRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insights_generation_requests_total",
		Help: "Calls to external generation providers",
	}, []string{"provider", "model", "status"})

	GenerationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "insights_generation_latency_seconds",
		Help:    "Latency of external generation provider calls",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	}, []string{"provider", "model"})

	GenerationRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insights_generation_retries_total",
		Help: "Retries issued against external generation providers",
	}, []string{"provider"})

	GenerationFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insights_generation_fallbacks_total",
		Help: "Times a lower priority provider served a request",
	}, []string{"from_provider", "to_provider"})

	CircuitBreakerOpens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insights_circuit_breaker_opens_total",
		Help: "Times a provider circuit breaker opened",
	}, []string{"provider"})

	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "insights_circuit_breaker_state",
		Help: "Circuit breaker state per provider (0 closed, 1 open)",
	}, []string{"provider"})

	CacheInvalidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insights_cache_invalidations_total",
		Help: "Cache tag invalidations by outcome",
	}, []string{"outcome"})

	CacheViewLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insights_cache_view_lookups_total",
		Help: "Cached view lookups by result",
	}, []string{"result"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "insights_regeneration_queue_depth",
		Help: "Jobs waiting in the regeneration queue",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "insights_http_request_duration_seconds",
		Help:    "API request latency by route and status",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "status"})
)

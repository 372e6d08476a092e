// Package metrics exposes the engine's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PlanRequests counts plan generations by outcome (model, fallback).
	PlanRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "queryforge_plan_requests_total",
		Help: "Plan generation requests by outcome.",
	}, []string{"outcome"})

	// CacheHits counts plan cache matches by similarity band.
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "queryforge_plan_cache_hits_total",
		Help: "Plan cache matches by similarity band.",
	}, []string{"band"})

	// ProviderRateLimits counts detected provider rate limits.
	ProviderRateLimits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "queryforge_provider_rate_limits_total",
		Help: "Rate-limit responses by provider.",
	}, []string{"provider"})

	// StepDuration observes per-step execution latency.
	StepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "queryforge_step_duration_seconds",
		Help:    "Plan step execution duration.",
		Buckets: prometheus.DefBuckets,
	}, []string{"entity", "operation"})

	// ExecutionResults counts complete plan executions by outcome.
	ExecutionResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "queryforge_executions_total",
		Help: "Plan executions by result.",
	}, []string{"result"})
)

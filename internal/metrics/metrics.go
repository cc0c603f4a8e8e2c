// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	HTTPRequestsTotal      *prometheus.CounterVec
	HTTPRequestDuration    *prometheus.HistogramVec
	PermissionCacheLookups *prometheus.CounterVec
	AuditEventsDropped     prometheus.Counter
	JobRunsTotal           *prometheus.CounterVec
	JobDuration            *prometheus.HistogramVec
}

// New creates the collectors and registers them on registry.
func New(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reportdesk_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reportdesk_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		PermissionCacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reportdesk_permission_cache_lookups_total",
				Help: "Permission cache lookups by result (hit, miss, error)",
			},
			[]string{"result"},
		),
		AuditEventsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "reportdesk_audit_events_dropped_total",
				Help: "Audit events dropped because the queue was full or closed",
			},
		),
		JobRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reportdesk_job_runs_total",
				Help: "Scheduled job runs by job and status",
			},
			[]string{"job", "status"},
		),
		JobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reportdesk_job_duration_seconds",
				Help:    "Scheduled job duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"job"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.PermissionCacheLookups,
		m.AuditEventsDropped,
		m.JobRunsTotal,
		m.JobDuration,
	)
	return m
}

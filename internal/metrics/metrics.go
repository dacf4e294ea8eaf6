// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CandidatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "carbitrage_candidates_total",
		Help: "Candidates produced by hunt rebuilds, by decision.",
	}, []string{"decision"})

	RebuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "carbitrage_rebuild_duration_seconds",
		Help:    "Wall time of one hunt rebuild.",
		Buckets: prometheus.DefBuckets,
	})

	RebuildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "carbitrage_rebuilds_total",
		Help: "Hunt rebuilds, by result.",
	}, []string{"result"})

	AlertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "carbitrage_alerts_total",
		Help: "Alerts emitted, by decision.",
	}, []string{"decision"})

	VerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "carbitrage_verifications_total",
		Help: "Lifecycle checks, by resulting status and ambiguity.",
	}, []string{"status", "ambiguous"})

	VerifyQueueClaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "carbitrage_verify_claimed_total",
		Help: "Listings claimed from the verification queue.",
	})

	PresenceEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "carbitrage_presence_events_total",
		Help: "Presence transitions recorded, by type.",
	}, []string{"type"})

	CrawlRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "carbitrage_crawl_runs_total",
		Help: "Crawl runs applied, by source and outcome.",
	}, []string{"source", "outcome"})

	RecordsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "carbitrage_records_dropped_total",
		Help: "Raw crawl records dropped for lacking a natural key.",
	}, []string{"source"})

	FingerprintsRefreshed = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "carbitrage_fingerprints",
		Help: "Winner fingerprints stored per account after the last refresh.",
	}, []string{"account"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "carbitrage_http_requests_total",
		Help: "API requests served, by route pattern and status code.",
	}, []string{"route", "code"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "carbitrage_http_request_duration_seconds",
		Help:    "API request latency, by route pattern.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)

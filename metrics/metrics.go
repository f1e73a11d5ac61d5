// Package metrics holds the Prometheus collectors shared by the API and the
// worker.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commentmap_jobs_total",
			Help: "Analysis jobs finished by the worker, by outcome.",
		},
		[]string{"outcome"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "commentmap_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage.",
			Buckets: []float64{0.05, 0.25, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"stage"},
	)

	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commentmap_submissions_total",
			Help: "Analyze requests, by result.",
		},
		[]string{"result"},
	)

	SweptJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commentmap_swept_jobs_total",
			Help: "Jobs touched by the recovery sweep, by action.",
		},
		[]string{"action"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "commentmap_http_request_duration_seconds",
			Help:    "HTTP request duration, by route, method and status.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method", "status"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commentmap_video_cache_lookups_total",
			Help: "Video detail cache lookups, by result.",
		},
		[]string{"result"},
	)
)

// ObserveStage records how long a stage that began at start took.
func ObserveStage(stage string, start time.Time) {
	StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func Handler() http.Handler {
	return promhttp.Handler()
}

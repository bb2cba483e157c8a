package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lichtfeld_runs_total",
		Help: "Total number of processing requests, by outcome and error kind",
	}, []string{"outcome", "kind"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lichtfeld_stage_duration_seconds",
		Help:    "Duration of each processing stage",
		Buckets: []float64{0.1, 1, 5, 30, 60, 300, 900, 1800, 3600},
	}, []string{"stage"})

	RunsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lichtfeld_runs_in_flight",
		Help: "Number of runs holding the workspace (0 or 1)",
	})

	RunsWaiting = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lichtfeld_runs_waiting",
		Help: "Number of requests queued for the workspace",
	})

	UploadBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lichtfeld_upload_bytes_total",
		Help: "Total number of video bytes received",
	})

	ArchiveBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lichtfeld_archive_bytes_total",
		Help: "Total number of archive bytes produced",
	})

	TranscriptFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lichtfeld_transcript_failures_total",
		Help: "Total number of transcripts that could not be shipped",
	})
)

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Dispatcher metrics
	ActionsResolved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rangecloud_actions_resolved_total",
			Help: "Total number of resolved actions by name and error type",
		},
		[]string{"action", "error"},
	)

	// File store metrics
	StoreFiles = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rangecloud_store_files",
			Help: "Number of files in the store index",
		},
	)

	StoreBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rangecloud_store_bytes",
			Help: "Total size of the store index in bytes",
		},
	)

	FileTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rangecloud_file_tasks_total",
			Help: "Total number of file service tasks by action and error type",
		},
		[]string{"action", "error"},
	)

	// Process metrics
	ProcessRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rangecloud_process_runs_total",
			Help: "Total number of process runs by name and outcome",
		},
		[]string{"process", "outcome"},
	)

	// Mailer metrics
	MailsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rangecloud_mails_sent_total",
			Help: "Total number of mails handed to the mail transport",
		},
	)

	MailsFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rangecloud_mails_failed_total",
			Help: "Total number of mails that failed to send",
		},
	)

	// Listener metrics
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rangecloud_requests_total",
			Help: "Total number of HTTP requests by listener and status",
		},
		[]string{"listener", "status"},
	)

	RequestsThrottled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rangecloud_requests_throttled_total",
			Help: "Total number of rate-limited HTTP requests by listener",
		},
		[]string{"listener"},
	)
)

func init() {
	prometheus.MustRegister(
		ActionsResolved,
		StoreFiles,
		StoreBytes,
		FileTasksTotal,
		ProcessRuns,
		MailsSent,
		MailsFailed,
		RequestsTotal,
		RequestsThrottled,
	)
}

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

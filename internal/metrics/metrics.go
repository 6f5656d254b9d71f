// Package metrics provides Prometheus metrics collection for the kernel.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector the kernel exposes at /system/metrics.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	ProcessesActive     prometheus.Gauge
	ProcessesSpawned     *prometheus.CounterVec
	SpawnQueueDepth      prometheus.Gauge

	GovernorTokensTotal    *prometheus.CounterVec
	GovernorCostUSDTotal   *prometheus.CounterVec
	GovernorRunawayProcs   prometheus.Gauge
	GovernorQuotaExceeded  *prometheus.CounterVec

	CronFiresTotal    *prometheus.CounterVec
	TriggerFiresTotal *prometheus.CounterVec

	WebhookDeliveriesTotal *prometheus.CounterVec
	WebhookDeliveryLatency *prometheus.HistogramVec
	WebhookDLQDepth        prometheus.Gauge

	WSConnections prometheus.Gauge
	WSEventsSent  *prometheus.CounterVec

	ServiceInfo *prometheus.GaugeVec
}

// New builds and registers every collector against registerer. Pass
// prometheus.DefaultRegisterer for production use and a fresh
// prometheus.NewRegistry() in tests to avoid cross-test collisions.
func New(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aether_http_requests_total",
				Help: "Total number of HTTP requests handled by the kernel API.",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aether_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds.",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "aether_http_requests_in_flight",
				Help: "Current number of HTTP requests being processed.",
			},
		),

		ProcessesActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "aether_processes_active",
				Help: "Current number of non-terminal agent processes.",
			},
		),
		ProcessesSpawned: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aether_processes_spawned_total",
				Help: "Total number of agent processes spawned, by runtime.",
			},
			[]string{"runtime"},
		),
		SpawnQueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "aether_spawn_queue_depth",
				Help: "Current number of spawn requests waiting for a concurrency slot.",
			},
		),

		GovernorTokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aether_governor_tokens_total",
				Help: "Total tokens recorded by the resource governor.",
			},
			[]string{"provider", "direction"},
		),
		GovernorCostUSDTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aether_governor_cost_usd_total",
				Help: "Total estimated cost in USD recorded by the resource governor.",
			},
			[]string{"provider"},
		),
		GovernorRunawayProcs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "aether_governor_runaway_processes",
				Help: "Current number of processes flagged as runaway by the governor.",
			},
		),
		GovernorQuotaExceeded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aether_governor_quota_exceeded_total",
				Help: "Total quota violations, by reason.",
			},
			[]string{"reason"},
		),

		CronFiresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aether_cron_fires_total",
				Help: "Total cron job firings.",
			},
			[]string{"job_id"},
		),
		TriggerFiresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aether_trigger_fires_total",
				Help: "Total event trigger firings.",
			},
			[]string{"trigger_id"},
		),

		WebhookDeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aether_webhook_deliveries_total",
				Help: "Total webhook delivery attempts, by outcome.",
			},
			[]string{"webhook_id", "outcome"},
		),
		WebhookDeliveryLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aether_webhook_delivery_duration_seconds",
				Help:    "Webhook delivery attempt duration in seconds.",
				Buckets: []float64{.01, .05, .1, .5, 1, 2.5, 5, 10},
			},
			[]string{"webhook_id"},
		),
		WebhookDLQDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "aether_webhook_dlq_depth",
				Help: "Current number of entries in the webhook dead-letter queue.",
			},
		),

		WSConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "aether_ws_connections",
				Help: "Current number of live WebSocket fan-out connections.",
			},
		),
		WSEventsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aether_ws_events_sent_total",
				Help: "Total events sent over WebSocket fan-out, by kind.",
			},
			[]string{"kind"},
		),

		ServiceInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "aether_kernel_info",
				Help: "Kernel build information.",
			},
			[]string{"version", "environment"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.RequestsTotal, m.RequestDuration, m.RequestsInFlight,
			m.ProcessesActive, m.ProcessesSpawned, m.SpawnQueueDepth,
			m.GovernorTokensTotal, m.GovernorCostUSDTotal, m.GovernorRunawayProcs, m.GovernorQuotaExceeded,
			m.CronFiresTotal, m.TriggerFiresTotal,
			m.WebhookDeliveriesTotal, m.WebhookDeliveryLatency, m.WebhookDLQDepth,
			m.WSConnections, m.WSEventsSent,
			m.ServiceInfo,
		)
	}
	return m
}

// RecordHTTPRequest records one completed HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordTokenUsage records tokens consumed by a process under provider.
func (m *Metrics) RecordTokenUsage(provider string, inputTokens, outputTokens int64, costUSD float64) {
	m.GovernorTokensTotal.WithLabelValues(provider, "input").Add(float64(inputTokens))
	m.GovernorTokensTotal.WithLabelValues(provider, "output").Add(float64(outputTokens))
	m.GovernorCostUSDTotal.WithLabelValues(provider).Add(costUSD)
}

// RecordQuotaExceeded records a single quota violation by reason.
func (m *Metrics) RecordQuotaExceeded(reason string) {
	m.GovernorQuotaExceeded.WithLabelValues(reason).Inc()
}

// RecordWebhookDelivery records one delivery attempt's outcome and latency.
func (m *Metrics) RecordWebhookDelivery(webhookID, outcome string, duration time.Duration) {
	m.WebhookDeliveriesTotal.WithLabelValues(webhookID, outcome).Inc()
	m.WebhookDeliveryLatency.WithLabelValues(webhookID).Observe(duration.Seconds())
}

// SetServiceInfo stamps the kernel's version/environment gauge.
func (m *Metrics) SetServiceInfo(version, environment string) {
	m.ServiceInfo.WithLabelValues(version, environment).Set(1)
}

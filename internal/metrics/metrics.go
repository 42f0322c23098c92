package metrics

import (
    "sync"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
)

var (
    // Registry is the dedicated Prometheus registry for the API
    Registry = prometheus.NewRegistry()
    // HTTPRequests counts requests by method, path, and status
    HTTPRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
        []string{"method", "path", "status"},
    )
    // HTTPDuration records request durations in seconds
    HTTPDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
        []string{"method", "path", "status"},
    )

    // DispatchRuns counts optimization runs by outcome
    DispatchRuns = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "dispatch_runs_total", Help: "Optimization runs by status."},
        []string{"status"},
    )
    // DispatchRunDuration tracks end-to-end optimization run time
    DispatchRunDuration = prometheus.NewHistogram(
        prometheus.HistogramOpts{Name: "dispatch_run_duration_seconds", Help: "Optimization run duration in seconds.", Buckets: prometheus.DefBuckets},
    )
    // JobsAssigned counts jobs auto-assigned across all runs
    JobsAssigned = prometheus.NewCounter(
        prometheus.CounterOpts{Name: "dispatch_jobs_assigned_total", Help: "Jobs auto-assigned by the optimizer."},
    )
    // JobsUnassignable counts jobs left unplaced, by reason
    JobsUnassignable = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "dispatch_jobs_unassignable_total", Help: "Jobs the optimizer could not place, by reason."},
        []string{"reason"},
    )
    // SavedMiles accumulates reported route savings
    SavedMiles = prometheus.NewCounter(
        prometheus.CounterOpts{Name: "dispatch_saved_miles_total", Help: "Total route miles saved across runs."},
    )

    // WebhookDeliveries counts webhook delivery outcomes by event type and status
    WebhookDeliveries = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
        []string{"event_type", "status"},
    )
    // WebhookLatency tracks webhook delivery latencies in milliseconds
    WebhookLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
        []string{"event_type", "status"},
    )
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
    regOnce.Do(func(){
        Registry.MustRegister(HTTPRequests)
        Registry.MustRegister(HTTPDuration)
        Registry.MustRegister(DispatchRuns)
        Registry.MustRegister(DispatchRunDuration)
        Registry.MustRegister(JobsAssigned)
        Registry.MustRegister(JobsUnassignable)
        Registry.MustRegister(SavedMiles)
        Registry.MustRegister(WebhookDeliveries)
        Registry.MustRegister(WebhookLatency)
        // Go/process collectors on our registry
        Registry.MustRegister(collectors.NewGoCollector())
        Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    })
}

var regOnce sync.Once

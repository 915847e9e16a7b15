package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DurationBuckets cover typical cold builds; cache hits fall in the first bucket.
var DurationBuckets = []float64{2, 2.5, 3, 3.5, 4, 4.5, 5, 6, 7, 8, 9, 10}

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	requests         *prom.CounterVec
	requestOptions   *prom.CounterVec
	cacheLookups     *prom.CounterVec
	requestDuration  prom.Histogram
	teardownFailures prom.Counter
}

// NewPrometheusRecorder constructs the compile metrics and registers them on reg.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		requests: prom.NewCounterVec(prom.CounterOpts{
			Name: "compile_requests_total",
			Help: "Compile requests by final status",
		}, []string{"status"}),
		requestOptions: prom.NewCounterVec(prom.CounterOpts{
			Name: "compile_requests_options_total",
			Help: "Compile requests by requested engine version and toolchain channel",
		}, []string{"version", "channel"}),
		cacheLookups: prom.NewCounterVec(prom.CounterOpts{
			Name: "compile_cache_lookups_total",
			Help: "Build cache lookups by result",
		}, []string{"result"}),
		requestDuration: prom.NewHistogram(prom.HistogramOpts{
			Name:    "compile_request_duration_seconds",
			Help:    "Duration of successful compile requests",
			Buckets: DurationBuckets,
		}),
		teardownFailures: prom.NewCounter(prom.CounterOpts{
			Name: "compile_sandbox_teardown_failures_total",
			Help: "Sandbox containers or bind directories that could not be removed",
		}),
	}
	reg.MustRegister(pr.requests, pr.requestOptions, pr.cacheLookups, pr.requestDuration, pr.teardownFailures)
	return pr
}

func (p *PrometheusRecorder) IncRequest(status string) {
	if p == nil || p.requests == nil {
		return
	}
	p.requests.WithLabelValues(status).Inc()
}

func (p *PrometheusRecorder) IncRequestOptions(version, channel string) {
	if p == nil || p.requestOptions == nil {
		return
	}
	p.requestOptions.WithLabelValues(version, channel).Inc()
}

func (p *PrometheusRecorder) IncCacheLookup(result string) {
	if p == nil || p.cacheLookups == nil {
		return
	}
	p.cacheLookups.WithLabelValues(result).Inc()
}

func (p *PrometheusRecorder) ObserveRequestDuration(d time.Duration) {
	if p == nil || p.requestDuration == nil {
		return
	}
	p.requestDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncTeardownFailure() {
	if p == nil || p.teardownFailures == nil {
		return
	}
	p.teardownFailures.Inc()
}

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prom.Registry {
	reg := prom.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// HTTPHandler returns an http.Handler that serves Prometheus metrics for the provided registry.
func HTTPHandler(reg *prom.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

package main

import (
	"testing"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"

	"github.com/isdmx/playbuild/config"
	"github.com/isdmx/playbuild/metrics"
)

func TestAppGraph(t *testing.T) {
	require.NoError(t, fx.ValidateApp(appOptions()))
}

func TestNewRecorder(t *testing.T) {
	reg := prom.NewRegistry()

	rec := newRecorder(&config.Config{Metrics: config.MetricsConfig{Enabled: false}}, reg)
	assert.IsType(t, metrics.NoopRecorder{}, rec)

	rec = newRecorder(&config.Config{Metrics: config.MetricsConfig{Enabled: true}}, reg)
	assert.IsType(t, &metrics.PrometheusRecorder{}, rec)
}

func TestNewFilterUsesConfiguredDenylist(t *testing.T) {
	f := newFilter(&config.Config{Security: config.SecurityConfig{DisallowedConstructs: []string{"env!"}}})
	assert.Equal(t, []string{"env!"}, f.Denylist())
}

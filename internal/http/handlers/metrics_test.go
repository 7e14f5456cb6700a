package handlers

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

func TestPrometheusMetrics(t *testing.T) {
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "metrikabridge",
		Name:      "metrics_handler_test_total",
		Help:      "test counter",
	})
	require.NoError(t, prometheus.Register(counter))
	t.Cleanup(func() { prometheus.Unregister(counter) })
	counter.Inc()

	ctx := getCtx("/metrics")
	PrometheusMetrics()(ctx)

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Body()), "metrikabridge_metrics_handler_test_total 1")
}

func TestPrometheusMetricsPrefixFilter(t *testing.T) {
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "metrikabridge",
		Name:      "metrics_prefix_test_total",
		Help:      "test counter",
	})
	require.NoError(t, prometheus.Register(counter))
	t.Cleanup(func() { prometheus.Unregister(counter) })

	ctx := getCtx("/metrics?prefix=does_not_match")
	PrometheusMetrics()(ctx)

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Empty(t, ctx.Response.Body())
}

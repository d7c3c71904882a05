// Package metrics exposes Prometheus counters for the provider-facing
// operations. Everything is registered on the default registry and served
// through promhttp on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	authorizationFlows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socialdeck_authorization_flows_total",
		Help: "Completed authorization callback flows by provider and result.",
	}, []string{"provider", "result"})

	tokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socialdeck_token_refreshes_total",
		Help: "Access token refresh attempts by provider and result.",
	}, []string{"provider", "result"})

	publishes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socialdeck_publishes_total",
		Help: "Publication dispatches by provider and result.",
	}, []string{"provider", "result"})
)

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

func AuthorizationFlow(provider, result string) {
	authorizationFlows.WithLabelValues(provider, result).Inc()
}

func TokenRefresh(provider, result string) {
	tokenRefreshes.WithLabelValues(provider, result).Inc()
}

func Publish(provider, result string) {
	publishes.WithLabelValues(provider, result).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

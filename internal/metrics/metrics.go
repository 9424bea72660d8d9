package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Requests counts coordinator requests by action and outcome.
	Requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "laterread",
		Name:      "requests_total",
		Help:      "Coordinator requests by action and result.",
	}, []string{"action", "result"})

	// Broadcasts counts laterReadItemsUpdated notifications sent.
	Broadcasts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "laterread",
		Name:      "broadcasts_total",
		Help:      "Item list change notifications delivered to page contexts.",
	})

	// ScrollRestoreFailures counts best-effort scroll restores that failed.
	ScrollRestoreFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "laterread",
		Name:      "scroll_restore_failures_total",
		Help:      "Scroll position restores that failed after opening an item.",
	})

	// Contexts tracks connected contexts by role.
	Contexts = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "laterread",
		Name:      "contexts_connected",
		Help:      "Connected page, popup and host contexts.",
	}, []string{"role"})

	// SavedItems is the length of the list after the last change.
	SavedItems = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "laterread",
		Name:      "saved_items",
		Help:      "Number of saved items.",
	})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Result maps an outcome to the result label.
func Result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

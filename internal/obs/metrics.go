package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Session lifecycle counters. The labels mirror the manager's outcomes so
// a long-running agent's refresh churn and forced logouts are visible.
var (
	LoginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "closetable_logins_total",
			Help: "Login attempts by method and outcome.",
		},
		[]string{"method", "outcome"},
	)

	RefreshesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "closetable_token_refreshes_total",
			Help: "Access token refreshes by outcome.",
		},
		[]string{"outcome"},
	)

	IdleLogoutsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "closetable_idle_logouts_total",
		Help: "Sessions ended by the idle timeout.",
	})

	SessionsRestoredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "closetable_sessions_restored_total",
		Help: "Persisted sessions restored at startup.",
	})

	SessionsDiscardedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "closetable_sessions_discarded_total",
		Help: "Expired persisted sessions discarded at startup.",
	})
)

// Init registers the collectors with the default registry.
func Init() {
	prometheus.MustRegister(
		LoginsTotal,
		RefreshesTotal,
		IdleLogoutsTotal,
		SessionsRestoredTotal,
		SessionsDiscardedTotal,
	)
}

// Handler returns the metrics endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the registry.
type Metrics struct {
	ProductsCreated     prometheus.Counter
	ProductsTransferred prometheus.Counter
	ProductsVerified    prometheus.Counter
	RejectedOperations  *prometheus.CounterVec
}

// New creates all registry metrics against the given registerer so tests can
// use isolated registries.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ProductsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "provchain_products_created_total",
			Help: "Total number of products created in the registry",
		}),
		ProductsTransferred: factory.NewCounter(prometheus.CounterOpts{
			Name: "provchain_products_transferred_total",
			Help: "Total number of accepted ownership transfers",
		}),
		ProductsVerified: factory.NewCounter(prometheus.CounterOpts{
			Name: "provchain_products_verified_total",
			Help: "Total number of products verified",
		}),
		RejectedOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "provchain_rejected_operations_total",
			Help: "Total number of registry operations rejected by a precondition",
		}, []string{"operation"}),
	}
}

package obs

import (
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CartMutationsTotal counts effective cart mutations by operation.
	CartMutationsTotal *prometheus.CounterVec
	// CheckoutTotal counts checkout attempts by outcome.
	CheckoutTotal *prometheus.CounterVec
	// PaymentAuthorizationDuration records how long the payment sheet took to resolve, in milliseconds.
	PaymentAuthorizationDuration *prometheus.HistogramVec
	// ReceiptExportTotal counts receipt document exports by outcome.
	ReceiptExportTotal *prometheus.CounterVec
	// EventsEmittedTotal counts domain events by topic.
	EventsEmittedTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		cartMutations := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_mutations_total",
			Help:      "Count of effective cart mutations by operation.",
		}, []string{"op"})
		checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_total",
			Help:      "Count of checkout attempts by outcome.",
		}, []string{"result"})
		authDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "payment_authorization_duration_ms",
			Help:      "Time from presenting the payment sheet to its resolution in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		}, []string{"result"})
		exports := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "receipt_export_total",
			Help:      "Count of receipt document exports by outcome.",
		}, []string{"result"})
		emitted := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_emitted_total",
			Help:      "Count of domain events by topic.",
		}, []string{"topic"})

		CartMutationsTotal = registerOrReuse(reg, cartMutations)
		CheckoutTotal = registerOrReuse(reg, checkouts)
		ReceiptExportTotal = registerOrReuse(reg, exports)
		EventsEmittedTotal = registerOrReuse(reg, emitted)
		PaymentAuthorizationDuration = registerOrReuse(reg, authDuration)
	})
}

// registerOrReuse registers c, or returns the collector already registered
// under the same descriptor.
func registerOrReuse[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(fmt.Errorf("register metric: %w", err))
	}
	return c
}

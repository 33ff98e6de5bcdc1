// internal/metrics/metrics.go
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the engine's Prometheus instruments.
type Collector struct {
	registry            *prometheus.Registry
	applicationsCreated prometheus.Counter
	paymentsApplied     prometheus.Counter
	prepaymentsApplied  prometheus.Counter
	loansClosed         prometheus.Counter
	leaseContention     prometheus.Counter
	mutationDuration    prometheus.Histogram
}

func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	return &Collector{
		registry: registry,
		applicationsCreated: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "loan_applications_created_total",
			Help: "Total number of loan applications submitted",
		}),
		paymentsApplied: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "loan_installments_paid_total",
			Help: "Total number of installment payments applied",
		}),
		prepaymentsApplied: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "loan_prepayments_total",
			Help: "Total number of prepayments applied",
		}),
		loansClosed: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "loans_closed_total",
			Help: "Total number of loans fully paid off",
		}),
		leaseContention: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "loan_lease_contention_total",
			Help: "Number of mutations rejected because the loan lease was busy",
		}),
		mutationDuration: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "loan_mutation_duration_seconds",
			Help:    "Time spent inside loan-mutating operations",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (c *Collector) ApplicationCreated() { c.applicationsCreated.Inc() }
func (c *Collector) PaymentApplied()     { c.paymentsApplied.Inc() }
func (c *Collector) PrepaymentApplied()  { c.prepaymentsApplied.Inc() }
func (c *Collector) LoanClosed()         { c.loansClosed.Inc() }
func (c *Collector) LeaseContention()    { c.leaseContention.Inc() }

func (c *Collector) ObserveMutation(d time.Duration) {
	c.mutationDuration.Observe(d.Seconds())
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

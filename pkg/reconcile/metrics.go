package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	outcomesCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_reconciliations_total",
	}, []string{"outcome"})
)

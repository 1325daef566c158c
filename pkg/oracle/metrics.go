package oracle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	errorsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "price_oracle_errors_total",
	}, []string{"reason"})
)

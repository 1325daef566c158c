package verifier

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	attemptsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_verification_attempts_total",
	}, []string{"chain", "currency", "result"})
)

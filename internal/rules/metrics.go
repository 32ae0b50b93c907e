package rules

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resonance_rules_decisions_total",
		Help: "Total rule engine decisions by operation and verdict",
	}, []string{"op", "verdict"})

	tableLoadErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "resonance_rules_table_load_errors_total",
		Help: "Total law table load failures",
	})
)

func recordDecision(op Op, v Verdict) {
	decisionsTotal.WithLabelValues(op.String(), v.String()).Inc()
}

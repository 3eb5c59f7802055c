package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	GateResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loanattr_gate_results_total",
			Help: "Attribution gate outcomes by result and reject reason",
		},
		[]string{"result", "reason"}, // accepted|rejected , TIMESTAMP_EXPIRED|PARTNER_INVALID|SIG_MISMATCH|""
	)

	LocksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loanattr_locks_total",
			Help: "First-touch attribution claims by result",
		},
		[]string{"result"}, // won|lost_race
	)

	LedgerEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loanattr_ledger_events_total",
			Help: "Attribution ledger rows appended by action",
		},
		[]string{"action"}, // CLICK|CONVERSION|REJECTED
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		GateResultsTotal,
		LocksTotal,
		LedgerEventsTotal,
	)
}

package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EntriesApplied counts balance mutations by direction and whether the
	// idempotency key deduplicated them.
	EntriesApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_entries_total",
		Help: "Balance mutations by direction and outcome.",
	}, []string{"direction", "outcome"})

	WithdrawalTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_withdrawal_transitions_total",
		Help: "Withdrawal state transitions by action and result.",
	}, []string{"action", "result"})

	SalaryPayouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_salary_payouts_total",
		Help: "Salary credits by period type.",
	}, []string{"period"})

	CommissionsPaid = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_commissions_total",
		Help: "Referral commissions by tier.",
	}, []string{"tier"})
)

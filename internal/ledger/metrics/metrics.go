// Package metrics exposes ledger operation counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	SharesMinted      prometheus.Counter
	FeeSharesMinted   prometheus.Counter
	SharesTransferred prometheus.Counter
	SharesRedeemed    prometheus.Counter
	ReservePaidOut    prometheus.Counter
	Distributions     prometheus.Counter
	UnitsDistributed  prometheus.Counter
}

// New registers the ledger counters on reg. Pass a fresh registry in tests
// to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SharesMinted: factory.NewCounter(prometheus.CounterOpts{
			Name: "tranche_shares_minted_total",
			Help: "Shares minted to investors.",
		}),
		FeeSharesMinted: factory.NewCounter(prometheus.CounterOpts{
			Name: "tranche_fee_shares_minted_total",
			Help: "Protocol fee shares minted to the beneficiary.",
		}),
		SharesTransferred: factory.NewCounter(prometheus.CounterOpts{
			Name: "tranche_shares_transferred_total",
			Help: "Shares moved via brokered or controlled transfers.",
		}),
		SharesRedeemed: factory.NewCounter(prometheus.CounterOpts{
			Name: "tranche_shares_redeemed_total",
			Help: "Shares burned through redemption.",
		}),
		ReservePaidOut: factory.NewCounter(prometheus.CounterOpts{
			Name: "tranche_reserve_paid_out_total",
			Help: "Reserve units paid out through redemption.",
		}),
		Distributions: factory.NewCounter(prometheus.CounterOpts{
			Name: "tranche_distributions_total",
			Help: "Completed profit distributions.",
		}),
		UnitsDistributed: factory.NewCounter(prometheus.CounterOpts{
			Name: "tranche_units_distributed_total",
			Help: "Reserve units paid out through profit distributions.",
		}),
	}
}

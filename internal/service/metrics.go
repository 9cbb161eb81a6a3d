package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	bonusPostings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_bonus_postings_total",
			Help: "Bonus postings written to the ledger",
		},
		[]string{"kind"},
	)
	duplicateSkips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_duplicate_skips_total",
			Help: "Bonus triggers skipped as idempotent replays",
		},
		[]string{"kind"},
	)
	fundAllocations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "settlement_fund_allocations_total",
			Help: "Network fund allocations from paid orders",
		},
	)
)

func init() {
	prometheus.MustRegister(bonusPostings)
	prometheus.MustRegister(duplicateSkips)
	prometheus.MustRegister(fundAllocations)
}

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SettlementSettings is a versioned snapshot of the commission configuration.
// Exactly one row is active at a time; the engine is handed an explicit
// snapshot and never reads a mutable global.
type SettlementSettings struct {
	ID                int64           `db:"id" json:"id"`
	Version           int             `db:"version" json:"version"`
	LevelPercents     map[int]decimal.Decimal `json:"level_percents"` // level (1..15) -> percent of order base
	FastStartPercent  decimal.Decimal `db:"fast_start_percent" json:"fast_start_percent"`
	FastStartWeeks    int             `db:"fast_start_weeks" json:"fast_start_weeks"`
	InfinityRate      decimal.Decimal `db:"infinity_rate" json:"infinity_rate"` // percent of order base
	CashbackPercent   decimal.Decimal `db:"cashback_percent" json:"cashback_percent"`
	NetworkFundPercent decimal.Decimal `db:"network_fund_percent" json:"network_fund_percent"`
	MinOrderCount     int             `db:"min_order_count" json:"min_order_count"`
	MinTotalOrdersRub decimal.Decimal `db:"min_total_orders_rub" json:"min_total_orders_rub"`
	Active            bool            `db:"active" json:"active"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
}

// MaxReferralLevel is how deep the standard schedule reaches.
// Special bonuses (infinity) look further, up to MaxSpecialLevel.
const (
	MaxReferralLevel = 15
	MaxSpecialLevel  = 100
	InfinityMinLevel = 17 // "beyond level 16"
)

// DefaultSettings returns the documented fallback used when no active
// settings row exists.
func DefaultSettings() *SettlementSettings {
	levels := map[int]decimal.Decimal{
		1: decimal.NewFromInt(20),
		2: decimal.NewFromInt(5),
		3: decimal.NewFromInt(1),
	}
	for lvl := 4; lvl <= 8; lvl++ {
		levels[lvl] = decimal.NewFromInt(1)
	}
	for lvl := 9; lvl <= 15; lvl++ {
		levels[lvl] = decimal.NewFromFloat(0.5)
	}
	return &SettlementSettings{
		Version:            0,
		LevelPercents:      levels,
		FastStartPercent:   decimal.NewFromInt(25),
		FastStartWeeks:     8,
		InfinityRate:       decimal.NewFromFloat(0.25),
		CashbackPercent:    decimal.NewFromInt(5),
		NetworkFundPercent: decimal.NewFromInt(5),
		MinOrderCount:      2,
		MinTotalOrdersRub:  decimal.NewFromInt(10000),
		Active:             true,
	}
}

// LevelPercent returns the configured percent for a referral level, zero if
// the level has no rate.
func (s *SettlementSettings) LevelPercent(level int) decimal.Decimal {
	if p, ok := s.LevelPercents[level]; ok {
		return p
	}
	return decimal.Zero
}

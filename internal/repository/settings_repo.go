package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"mlm_shop/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type SettingsRepository struct {
	db *pgxpool.Pool
}

func NewSettingsRepository(db *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// GetActive loads the single active settlement settings row, or
// domain.ErrNotFound when none is configured.
func (r *SettingsRepository) GetActive(ctx context.Context) (*domain.SettlementSettings, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, version, level_percents, fast_start_percent, fast_start_weeks,
		       infinity_rate, cashback_percent, network_fund_percent,
		       min_order_count, min_total_orders_rub, active, created_at
		FROM settlement_settings WHERE active
	`)

	var (
		s          domain.SettlementSettings
		levelsJSON []byte
	)
	err := row.Scan(&s.ID, &s.Version, &levelsJSON, &s.FastStartPercent,
		&s.FastStartWeeks, &s.InfinityRate, &s.CashbackPercent,
		&s.NetworkFundPercent, &s.MinOrderCount, &s.MinTotalOrdersRub,
		&s.Active, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	// level percents are stored as {"1": "20", "2": "5", ...}
	var raw map[string]string
	if err := json.Unmarshal(levelsJSON, &raw); err != nil {
		return nil, err
	}
	s.LevelPercents = make(map[int]decimal.Decimal, len(raw))
	for k, v := range raw {
		lvl, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		p, err := decimal.NewFromString(v)
		if err != nil {
			continue
		}
		s.LevelPercents[lvl] = p
	}
	return &s, nil
}

package repository

import (
	"context"

	"mlm_shop/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NetworkRepository resolves upline/downline chains over the referrals table.
// The graph is acyclic, so the recursive walk terminates.
type NetworkRepository struct {
	db *pgxpool.Pool
}

func NewNetworkRepository(db *pgxpool.Pool) *NetworkRepository {
	return &NetworkRepository{db: db}
}

// Link records a referral edge. The unique constraint on referred_id
// enforces one parent per user.
func (r *NetworkRepository) Link(ctx context.Context, referrerID, referredID int64) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO referrals (referrer_id, referred_id) VALUES ($1, $2)
	`, referrerID, referredID)
	return err
}

// GetUpline returns the ordered ancestor chain of a user, level 1 first.
func (r *NetworkRepository) GetUpline(ctx context.Context, userID int64, maxLevels int) ([]domain.UplineEntry, error) {
	rows, err := r.db.Query(ctx, `
		WITH RECURSIVE upline AS (
			SELECT referrer_id AS user_id, 1 AS level
			FROM referrals WHERE referred_id = $1
			UNION ALL
			SELECT r.referrer_id, u.level + 1
			FROM referrals r
			JOIN upline u ON r.referred_id = u.user_id
			WHERE u.level < $2
		)
		SELECT user_id, level FROM upline ORDER BY level
	`, userID, maxLevels)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.UplineEntry
	for rows.Next() {
		var e domain.UplineEntry
		if err := rows.Scan(&e.UserID, &e.Level); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// GetDownline returns descendants of a user up to maxLevels, shallow first.
func (r *NetworkRepository) GetDownline(ctx context.Context, userID int64, maxLevels int) ([]domain.DownlineEntry, error) {
	rows, err := r.db.Query(ctx, `
		WITH RECURSIVE downline AS (
			SELECT referred_id AS user_id, 1 AS level
			FROM referrals WHERE referrer_id = $1
			UNION ALL
			SELECT r.referred_id, d.level + 1
			FROM referrals r
			JOIN downline d ON r.referrer_id = d.user_id
			WHERE d.level < $2
		)
		SELECT user_id, level FROM downline ORDER BY level, user_id
	`, userID, maxLevels)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.DownlineEntry
	for rows.Next() {
		var e domain.DownlineEntry
		if err := rows.Scan(&e.UserID, &e.Level); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

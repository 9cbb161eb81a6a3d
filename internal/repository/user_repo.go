package repository

import (
	"context"
	"errors"

	"mlm_shop/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, username, mlm_status, activated_at,
	can_receive_firstline_bonus, referred_by, created_at`

// GetByID retrieves a user.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)

	var u domain.User
	err := row.Scan(&u.ID, &u.Username, &u.MLMStatus, &u.ActivatedAt,
		&u.FirstlineBonus, &u.ReferredBy, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// Create inserts a user and backfills the generated id.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO users (username, mlm_status, activated_at, can_receive_firstline_bonus, referred_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, u.Username, u.MLMStatus, u.ActivatedAt, u.FirstlineBonus, u.ReferredBy).
		Scan(&u.ID, &u.CreatedAt)
}

// GetMany loads users by id into a map. Missing ids are simply absent.
func (r *UserRepository) GetMany(ctx context.Context, ids []int64) (map[int64]*domain.User, error) {
	if len(ids) == 0 {
		return map[int64]*domain.User{}, nil
	}
	rows, err := r.db.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[int64]*domain.User, len(ids))
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Username, &u.MLMStatus, &u.ActivatedAt,
			&u.FirstlineBonus, &u.ReferredBy, &u.CreatedAt); err != nil {
			return nil, err
		}
		result[u.ID] = &u
	}
	return result, rows.Err()
}

// PromoteToPartner upgrades a customer to partner in one atomic update.
// The WHERE re-checks mlm_status so two concurrent evaluators cannot both
// upgrade; the loser sees zero rows affected.
func (r *UserRepository) PromoteToPartner(ctx context.Context, userID int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE users
		SET mlm_status = 'partner', activated_at = COALESCE(activated_at, NOW())
		WHERE id = $1 AND mlm_status = 'customer'
	`, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListCustomerIDs returns up to limit customer ids for the batch upgrade scan.
func (r *UserRepository) ListCustomerIDs(ctx context.Context, limit int) ([]int64, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id FROM users WHERE mlm_status = 'customer' ORDER BY id LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

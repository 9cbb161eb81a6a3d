package domain

import "time"

// Rank is the partner tier gating bonus eligibility and rates.
type Rank string

const (
	RankCustomer   Rank = "customer"
	RankPartner    Rank = "partner"
	RankPartnerPro Rank = "partner_pro"
)

// RankLevel orders ranks for comparisons (customer < partner < partner_pro).
func RankLevel(r Rank) int {
	switch r {
	case RankPartner:
		return 1
	case RankPartnerPro:
		return 2
	default:
		return 0
	}
}

type User struct {
	ID                  int64      `db:"id" json:"id"`
	Username            string     `db:"username" json:"username"`
	MLMStatus           Rank       `db:"mlm_status" json:"mlm_status"`
	ActivatedAt         *time.Time `db:"activated_at" json:"activated_at,omitempty"`
	FirstlineBonus      bool       `db:"can_receive_firstline_bonus" json:"can_receive_firstline_bonus"`
	ReferredBy          *int64     `db:"referred_by" json:"referred_by,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
}

// UplineEntry is one ancestor in the referral tree; level 1 is the direct
// referrer of the user the upline was resolved for.
type UplineEntry struct {
	UserID int64 `json:"user_id"`
	Level  int   `json:"level"`
}

// DownlineEntry mirrors UplineEntry for descendants.
type DownlineEntry struct {
	UserID int64 `json:"user_id"`
	Level  int   `json:"level"`
}

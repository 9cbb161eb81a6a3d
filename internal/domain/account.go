package domain

import "time"

// Currency is a closed set of currencies the ledger moves.
type Currency string

const (
	CurrencyRUB Currency = "RUB" // cash rubles
	CurrencyVWC Currency = "VWC" // internal reward coin
	CurrencyPV  Currency = "PV"  // qualification points, non-withdrawable
)

// OwnerType distinguishes user accounts from shared system accounts.
type OwnerType string

const (
	OwnerUser   OwnerType = "user"
	OwnerSystem OwnerType = "system"
)

// AccountType is a closed set of ledger account kinds.
type AccountType string

const (
	AccountCashRUB     AccountType = "cash_rub"
	AccountVWC         AccountType = "vwc"
	AccountPV          AccountType = "pv"
	AccountReferral    AccountType = "referral"
	AccountNetworkFund AccountType = "network_fund"
	AccountReserve     AccountType = "reserve_special"
)

// Account is a ledger account. Balance is never stored on the row;
// it is always the signed sum of postings touching the account.
type Account struct {
	ID          int64       `db:"id" json:"id"`
	OwnerType   OwnerType   `db:"owner_type" json:"owner_type"`
	OwnerID     *int64      `db:"owner_id" json:"owner_id,omitempty"` // nil for system accounts
	Currency    Currency    `db:"currency" json:"currency"`
	AccountType AccountType `db:"account_type" json:"account_type"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
}

// ValidCurrency reports whether c is one of the known currencies.
func ValidCurrency(c Currency) bool {
	switch c {
	case CurrencyRUB, CurrencyVWC, CurrencyPV:
		return true
	}
	return false
}

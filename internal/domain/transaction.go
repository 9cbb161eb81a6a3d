package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OpType is the closed set of ledger operation kinds. The commission engine
// and the ledger share it so a new operation cannot appear unreconciled.
type OpType string

const (
	OpOrderPayment   OpType = "order_payment"
	OpOrderRefund    OpType = "order_refund"
	OpWalletCredit   OpType = "wallet_credit"
	OpWalletDebit    OpType = "wallet_debit"
	OpTransfer       OpType = "transfer"
	OpReferralBonus  OpType = "referral_bonus"
	OpCashbackBonus  OpType = "cashback_bonus"
	OpFastStartBonus OpType = "fast_start_bonus"
	OpInfinityBonus  OpType = "infinity_bonus"
	OpPVAccrual      OpType = "pv_accrual"
	OpFundAllocation OpType = "fund_allocation"
	OpFundWithdrawal OpType = "fund_withdrawal"
	OpFundPayout     OpType = "fund_payout"
	OpReversal       OpType = "reversal"
)

// BonusKind tags a bonus posting for idempotency. A given
// (order, recipient, kind) can produce at most one posting, ever.
type BonusKind string

const (
	BonusReferral  BonusKind = "referral"
	BonusFastStart BonusKind = "fast_start"
	BonusInfinity  BonusKind = "infinity"
	BonusCashback  BonusKind = "cashback"
	BonusPV        BonusKind = "pv"
	BonusFundRef   BonusKind = "fund_referral"
)

// BonusOperationID derives the deterministic idempotency key for a bonus
// posting. A duplicate trigger hits the unique index on transactions and is
// skipped instead of posting twice.
func BonusOperationID(kind BonusKind, orderID, recipientID int64) string {
	return fmt.Sprintf("%s:%d:%d", kind, orderID, recipientID)
}

// Txn is an immutable ledger transaction. OperationID is globally unique.
type Txn struct {
	ID          int64                  `db:"id" json:"id"`
	OperationID string                 `db:"operation_id" json:"operation_id"`
	OpType      OpType                 `db:"op_type" json:"op_type"`
	UserID      *int64                 `db:"user_id" json:"user_id,omitempty"`
	OrderID     *int64                 `db:"order_id" json:"order_id,omitempty"`
	Meta        map[string]interface{} `db:"meta" json:"meta,omitempty"`
	CreatedAt   time.Time              `db:"created_at" json:"created_at"`
}

// Posting is a single balanced debit/credit movement inside a transaction.
// Both accounts share one currency and are never the same account.
type Posting struct {
	ID              int64           `db:"id" json:"id"`
	TxnID           int64           `db:"txn_id" json:"txn_id"`
	DebitAccountID  int64           `db:"debit_account_id" json:"debit_account_id"`
	CreditAccountID int64           `db:"credit_account_id" json:"credit_account_id"`
	Amount          decimal.Decimal `db:"amount" json:"amount"`
	Currency        Currency        `db:"currency" json:"currency"`
	Memo            string          `db:"memo" json:"memo,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

// BonusOpType maps a bonus kind to its ledger operation type.
func BonusOpType(kind BonusKind) OpType {
	switch kind {
	case BonusFastStart:
		return OpFastStartBonus
	case BonusInfinity:
		return OpInfinityBonus
	case BonusCashback:
		return OpCashbackBonus
	case BonusPV:
		return OpPVAccrual
	case BonusFundRef:
		return OpFundPayout
	default:
		return OpReferralBonus
	}
}

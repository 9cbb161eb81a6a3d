package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the payment-side state of an order.
type OrderStatus string

const (
	OrderNew       OrderStatus = "new"
	OrderPending   OrderStatus = "pending"
	OrderPaid      OrderStatus = "paid"
	OrderCancelled OrderStatus = "cancelled"
	OrderRefunded  OrderStatus = "refunded"
)

// DeliveryStatus is the fulfilment-side state of an order. Referral and
// cashback bonuses are computed only at delivered, never from paid alone.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryShipped   DeliveryStatus = "shipped"
	DeliveryDelivered DeliveryStatus = "delivered"
)

type Order struct {
	ID                 int64           `db:"id" json:"id"`
	UserID             int64           `db:"user_id" json:"user_id"`
	Status             OrderStatus     `db:"status" json:"status"`
	DeliveryStatus     DeliveryStatus  `db:"delivery_status" json:"delivery_status"`
	OrderBaseRub       decimal.Decimal `db:"order_base_rub" json:"order_base_rub"`
	TotalPayableRub    decimal.Decimal `db:"total_payable_rub" json:"total_payable_rub"`
	ReferralDiscount   decimal.Decimal `db:"referral_discount_rub" json:"referral_discount_rub"`
	ReferralUserID     *int64          `db:"referral_user_id" json:"referral_user_id,omitempty"`
	PVEarned           decimal.Decimal `db:"pv_earned" json:"pv_earned"`
	NetworkFundRub     decimal.Decimal `db:"network_fund_rub" json:"network_fund_rub"`
	BonusesGrantedRub  decimal.Decimal `db:"bonuses_granted_rub" json:"bonuses_granted_rub"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updated_at"`
}

// OrderLog is an append-only audit entry for one order.
type OrderLog struct {
	ID        int64                  `db:"id" json:"id"`
	OrderID   int64                  `db:"order_id" json:"order_id"`
	Event     string                 `db:"event" json:"event"`
	Meta      map[string]interface{} `db:"meta" json:"meta,omitempty"`
	CreatedAt time.Time              `db:"created_at" json:"created_at"`
}

// Order log events. Balance-affecting events share the "balance:" prefix so
// the audit trail can be filtered for money movements.
const (
	EventOrderPaid             = "order:paid"
	EventOrderDelivered        = "order:delivered"
	EventOrderCancelled        = "order:cancelled_by_timeout"
	EventBalanceReferral       = "balance:referral_bonus"
	EventBalanceFastStart      = "balance:fast_start_bonus"
	EventBalanceInfinity       = "balance:infinity_bonus"
	EventBalanceCashback       = "balance:cashback"
	EventBalancePV             = "balance:pv_accrual"
	EventBalanceFundAlloc      = "balance:fund_allocation"
	EventBalanceFundPayout     = "balance:fund_payout"
	EventBalanceDuplicate      = "balance:duplicate_skipped"
	EventBonusStepFailed       = "bonus:step_failed"
	EventUpgradePromoted       = "upgrade:promoted"
	EventBonusTotalsRecomputed = "bonus:totals_recomputed"
)

// PaymentStatus for order payments as seen by the timeout worker.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentAwaiting PaymentStatus = "awaiting"
	PaymentSuccess  PaymentStatus = "success"
	PaymentFailed   PaymentStatus = "failed"
)

type Payment struct {
	ID        int64           `db:"id" json:"id"`
	OrderID   int64           `db:"order_id" json:"order_id"`
	Status    PaymentStatus   `db:"status" json:"status"`
	AmountRub decimal.Decimal `db:"amount_rub" json:"amount_rub"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

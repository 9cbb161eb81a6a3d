package service

import (
	"context"

	"mlm_shop/internal/domain"
	"mlm_shop/internal/logger"

	"github.com/shopspring/decimal"
)

// Dependencies of the orchestrator, interface-typed so the layering stays
// strict: ledger -> wallet -> commission -> lifecycle.
type (
	orderStore interface {
		GetByID(ctx context.Context, id int64) (*domain.Order, error)
		SetStatus(ctx context.Context, id int64, status domain.OrderStatus) error
		SetDeliveryStatus(ctx context.Context, id int64, status domain.DeliveryStatus) error
		SetBonusesGranted(ctx context.Context, id int64, amount decimal.Decimal) error
	}
	bonusProcessor interface {
		ProcessStandardBonuses(ctx context.Context, settings *domain.SettlementSettings, order *domain.Order) (*ApplyStats, error)
		ProcessSpecialBonuses(ctx context.Context, settings *domain.SettlementSettings, order *domain.Order) (*ApplyStats, error)
	}
	fundManager interface {
		AllocateFromOrder(ctx context.Context, settings *domain.SettlementSettings, orderID int64) (decimal.Decimal, error)
		DistributeBonuses(ctx context.Context, orderID int64) (*FundDistribution, error)
	}
	upgradeChecker interface {
		CheckAndUpgradeUser(ctx context.Context, settings *domain.SettlementSettings, userID int64) (bool, error)
	}
	settingsProvider interface {
		Snapshot(ctx context.Context) (*domain.SettlementSettings, error)
	}
	bonusSummer interface {
		SumBonusesByOrder(ctx context.Context, orderID int64) (decimal.Decimal, error)
	}
	orderPayer interface {
		PayOrderFromWallet(ctx context.Context, userID, orderID int64, amount decimal.Decimal) (*PostingResult, error)
	}
)

// LifecycleService sequences settlement work on order state transitions.
// Every entry point is safe to re-enter: the money layer below is keyed
// per (order, recipient, kind).
type LifecycleService struct {
	orders   orderStore
	orderLog OrderLogAppender
	settings settingsProvider
	bonuses  bonusProcessor
	fund     fundManager
	upgrades upgradeChecker
	sums     bonusSummer
	wallet   orderPayer
}

func NewLifecycleService(
	orders orderStore,
	orderLog OrderLogAppender,
	settings settingsProvider,
	bonuses bonusProcessor,
	fund fundManager,
	upgrades upgradeChecker,
	sums bonusSummer,
	wallet orderPayer,
) *LifecycleService {
	return &LifecycleService{
		orders:   orders,
		orderLog: orderLog,
		settings: settings,
		bonuses:  bonuses,
		fund:     fund,
		upgrades: upgrades,
		sums:     sums,
		wallet:   wallet,
	}
}

// ProcessOrderPayment pays the order from the buyer's wallet and advances it
// to paid. Re-entry on an already-paid order is a no-op.
func (s *LifecycleService) ProcessOrderPayment(ctx context.Context, orderID int64) error {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	switch order.Status {
	case domain.OrderPaid:
		return nil
	case domain.OrderNew, domain.OrderPending:
		// proceed
	default:
		return domain.NewValidationError("order %d is not payable (status %s)", orderID, order.Status)
	}

	if _, err := s.wallet.PayOrderFromWallet(ctx, order.UserID, orderID, order.TotalPayableRub); err != nil {
		return err
	}
	if err := s.orders.SetStatus(ctx, orderID, domain.OrderPaid); err != nil {
		return err
	}
	_ = s.orderLog.Append(ctx, orderID, domain.EventOrderPaid, map[string]interface{}{
		"amount": order.TotalPayableRub.String(),
	})
	return s.OnPaid(ctx, orderID)
}

// OnPaid runs the paid-transition steps: partner upgrade check, fund
// allocation, fund distribution. Each step is guarded independently; one
// failure never blocks the siblings.
func (s *LifecycleService) OnPaid(ctx context.Context, orderID int64) error {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status != domain.OrderPaid {
		logger.Debug("onPaid skipped, order not paid", "order_id", orderID, "status", string(order.Status))
		return nil
	}
	settings, err := s.settings.Snapshot(ctx)
	if err != nil {
		return err
	}

	promoted, err := s.upgrades.CheckAndUpgradeUser(ctx, settings, order.UserID)
	if err != nil {
		logger.Error("partner upgrade step failed", "order_id", orderID, "error", err)
	} else if promoted {
		_ = s.orderLog.Append(ctx, orderID, domain.EventUpgradePromoted, map[string]interface{}{
			"user_id": order.UserID,
		})
	}
	if _, err := s.fund.AllocateFromOrder(ctx, settings, orderID); err != nil {
		logger.Error("fund allocation step failed", "order_id", orderID, "error", err)
	}
	if _, err := s.fund.DistributeBonuses(ctx, orderID); err != nil {
		logger.Error("fund distribution step failed", "order_id", orderID, "error", err)
	}
	return nil
}

// MarkDelivered records delivery confirmation and runs the delivered-stage
// settlement. Only paid orders can be delivered.
func (s *LifecycleService) MarkDelivered(ctx context.Context, orderID int64) error {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.DeliveryStatus != domain.DeliveryDelivered {
		if order.Status != domain.OrderPaid {
			return domain.NewValidationError("order %d is not paid (status %s)", orderID, order.Status)
		}
		if err := s.orders.SetDeliveryStatus(ctx, orderID, domain.DeliveryDelivered); err != nil {
			return err
		}
		_ = s.orderLog.Append(ctx, orderID, domain.EventOrderDelivered, nil)
	}
	return s.OnDelivered(ctx, orderID)
}

// OnDelivered runs the delivered-transition settlement. The standard bonus
// pass (cashback + referral L1-15) is financially authoritative and its
// error propagates; the special pass and the totals recompute are isolated.
func (s *LifecycleService) OnDelivered(ctx context.Context, orderID int64) error {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.DeliveryStatus != domain.DeliveryDelivered {
		logger.Debug("onDelivered skipped, order not delivered",
			"order_id", orderID, "delivery_status", string(order.DeliveryStatus))
		return nil
	}
	settings, err := s.settings.Snapshot(ctx)
	if err != nil {
		return err
	}

	if _, err := s.bonuses.ProcessStandardBonuses(ctx, settings, order); err != nil {
		// operator attention required; no automatic retry
		return err
	}
	if _, err := s.bonuses.ProcessSpecialBonuses(ctx, settings, order); err != nil {
		logger.Error("special bonus pass failed", "order_id", orderID, "error", err)
	}

	if err := s.recomputeBonusTotals(ctx, orderID); err != nil {
		logger.Error("bonus totals recompute failed", "order_id", orderID, "error", err)
	}
	return nil
}

// recomputeBonusTotals re-derives bonuses_granted_rub from the ledger, the
// single source of truth for what was actually paid.
func (s *LifecycleService) recomputeBonusTotals(ctx context.Context, orderID int64) error {
	total, err := s.sums.SumBonusesByOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if err := s.orders.SetBonusesGranted(ctx, orderID, total); err != nil {
		return err
	}
	_ = s.orderLog.Append(ctx, orderID, domain.EventBonusTotalsRecomputed, map[string]interface{}{
		"total_rub": total.String(),
	})
	return nil
}

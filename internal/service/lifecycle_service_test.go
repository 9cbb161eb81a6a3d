package service

import (
	"context"
	"errors"
	"testing"

	"mlm_shop/internal/domain"

	"github.com/shopspring/decimal"
)

type fakeOrderStore struct {
	order          *domain.Order
	statusSet      []domain.OrderStatus
	deliverySet    []domain.DeliveryStatus
	bonusesGranted decimal.Decimal
}

func (f *fakeOrderStore) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	if f.order == nil {
		return nil, domain.ErrNotFound
	}
	copied := *f.order
	return &copied, nil
}

func (f *fakeOrderStore) SetStatus(ctx context.Context, id int64, status domain.OrderStatus) error {
	f.order.Status = status
	f.statusSet = append(f.statusSet, status)
	return nil
}

func (f *fakeOrderStore) SetDeliveryStatus(ctx context.Context, id int64, status domain.DeliveryStatus) error {
	f.order.DeliveryStatus = status
	f.deliverySet = append(f.deliverySet, status)
	return nil
}

func (f *fakeOrderStore) SetBonusesGranted(ctx context.Context, id int64, amount decimal.Decimal) error {
	f.bonusesGranted = amount
	return nil
}

type fakeBonuses struct {
	standardCalls int
	specialCalls  int
	standardErr   error
	specialErr    error
}

func (f *fakeBonuses) ProcessStandardBonuses(ctx context.Context, s *domain.SettlementSettings, o *domain.Order) (*ApplyStats, error) {
	f.standardCalls++
	if f.standardErr != nil {
		return nil, f.standardErr
	}
	return &ApplyStats{Posted: 2}, nil
}

func (f *fakeBonuses) ProcessSpecialBonuses(ctx context.Context, s *domain.SettlementSettings, o *domain.Order) (*ApplyStats, error) {
	f.specialCalls++
	if f.specialErr != nil {
		return nil, f.specialErr
	}
	return &ApplyStats{Posted: 1}, nil
}

type fakeFund struct {
	allocCalls      int
	distributeCalls int
	allocErr        error
}

func (f *fakeFund) AllocateFromOrder(ctx context.Context, s *domain.SettlementSettings, orderID int64) (decimal.Decimal, error) {
	f.allocCalls++
	if f.allocErr != nil {
		return decimal.Zero, f.allocErr
	}
	return decimal.NewFromInt(225), nil
}

func (f *fakeFund) DistributeBonuses(ctx context.Context, orderID int64) (*FundDistribution, error) {
	f.distributeCalls++
	return &FundDistribution{}, nil
}

type fakeUpgrades struct {
	calls    int
	promoted bool
}

func (f *fakeUpgrades) CheckAndUpgradeUser(ctx context.Context, s *domain.SettlementSettings, userID int64) (bool, error) {
	f.calls++
	return f.promoted, nil
}

type fakeSettings struct{}

func (f *fakeSettings) Snapshot(ctx context.Context) (*domain.SettlementSettings, error) {
	return domain.DefaultSettings(), nil
}

type fakeSums struct{ total decimal.Decimal }

func (f *fakeSums) SumBonusesByOrder(ctx context.Context, orderID int64) (decimal.Decimal, error) {
	return f.total, nil
}

type fakePayer struct {
	calls int
	err   error
}

func (f *fakePayer) PayOrderFromWallet(ctx context.Context, userID, orderID int64, amount decimal.Decimal) (*PostingResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &PostingResult{Txn: &domain.Txn{ID: 1}}, nil
}

type fakeLog struct{ events []string }

func (f *fakeLog) Append(ctx context.Context, orderID int64, event string, meta map[string]interface{}) error {
	f.events = append(f.events, event)
	return nil
}

type lifecycleFixture struct {
	orders   *fakeOrderStore
	log      *fakeLog
	bonuses  *fakeBonuses
	fund     *fakeFund
	upgrades *fakeUpgrades
	sums     *fakeSums
	payer    *fakePayer
	svc      *LifecycleService
}

func newLifecycleFixture(order *domain.Order) *lifecycleFixture {
	f := &lifecycleFixture{
		orders:   &fakeOrderStore{order: order},
		log:      &fakeLog{},
		bonuses:  &fakeBonuses{},
		fund:     &fakeFund{},
		upgrades: &fakeUpgrades{},
		sums:     &fakeSums{total: decimal.NewFromInt(1125)},
		payer:    &fakePayer{},
	}
	f.svc = NewLifecycleService(
		f.orders, f.log, &fakeSettings{}, f.bonuses, f.fund, f.upgrades, f.sums, f.payer,
	)
	return f
}

func pendingOrder() *domain.Order {
	return &domain.Order{
		ID:              10,
		UserID:          1,
		Status:          domain.OrderPending,
		DeliveryStatus:  domain.DeliveryPending,
		OrderBaseRub:    decimal.NewFromInt(4500),
		TotalPayableRub: decimal.NewFromInt(4500),
	}
}

func TestProcessOrderPayment_HappyPath(t *testing.T) {
	f := newLifecycleFixture(pendingOrder())

	if err := f.svc.ProcessOrderPayment(context.Background(), 10); err != nil {
		t.Fatalf("ProcessOrderPayment: %v", err)
	}

	if f.payer.calls != 1 {
		t.Errorf("wallet pay calls = %d, want 1", f.payer.calls)
	}
	if f.orders.order.Status != domain.OrderPaid {
		t.Errorf("status = %s, want paid", f.orders.order.Status)
	}
	// the paid hook ran its three steps
	if f.upgrades.calls != 1 || f.fund.allocCalls != 1 || f.fund.distributeCalls != 1 {
		t.Errorf("paid steps = upgrade:%d alloc:%d distribute:%d, want 1 each",
			f.upgrades.calls, f.fund.allocCalls, f.fund.distributeCalls)
	}
}

func TestProcessOrderPayment_AlreadyPaidIsNoop(t *testing.T) {
	order := pendingOrder()
	order.Status = domain.OrderPaid
	f := newLifecycleFixture(order)

	if err := f.svc.ProcessOrderPayment(context.Background(), 10); err != nil {
		t.Fatalf("ProcessOrderPayment: %v", err)
	}
	if f.payer.calls != 0 {
		t.Errorf("wallet pay calls = %d on an already-paid order", f.payer.calls)
	}
}

func TestProcessOrderPayment_CancelledRejected(t *testing.T) {
	order := pendingOrder()
	order.Status = domain.OrderCancelled
	f := newLifecycleFixture(order)

	err := f.svc.ProcessOrderPayment(context.Background(), 10)
	var validation *domain.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if f.payer.calls != 0 {
		t.Error("cancelled order must not be paid")
	}
}

func TestProcessOrderPayment_WalletFailureStopsTransition(t *testing.T) {
	f := newLifecycleFixture(pendingOrder())
	f.payer.err = domain.ErrInsufficientFunds

	err := f.svc.ProcessOrderPayment(context.Background(), 10)
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if f.orders.order.Status != domain.OrderPending {
		t.Errorf("status changed to %s after failed payment", f.orders.order.Status)
	}
}

func TestOnPaid_NotPaidIsNoop(t *testing.T) {
	f := newLifecycleFixture(pendingOrder())

	if err := f.svc.OnPaid(context.Background(), 10); err != nil {
		t.Fatalf("OnPaid: %v", err)
	}
	if f.upgrades.calls != 0 || f.fund.allocCalls != 0 {
		t.Error("paid steps ran on an unpaid order")
	}
}

func TestOnPaid_StepIsolation(t *testing.T) {
	order := pendingOrder()
	order.Status = domain.OrderPaid
	f := newLifecycleFixture(order)
	f.fund.allocErr = errors.New("allocation broke")

	if err := f.svc.OnPaid(context.Background(), 10); err != nil {
		t.Fatalf("OnPaid must isolate step failures, got %v", err)
	}
	if f.fund.distributeCalls != 1 {
		t.Error("distribution step skipped after allocation failure")
	}
}

func TestOnPaid_PromotionLogged(t *testing.T) {
	order := pendingOrder()
	order.Status = domain.OrderPaid
	f := newLifecycleFixture(order)
	f.upgrades.promoted = true

	if err := f.svc.OnPaid(context.Background(), 10); err != nil {
		t.Fatalf("OnPaid: %v", err)
	}

	var found bool
	for _, ev := range f.log.events {
		if ev == domain.EventUpgradePromoted {
			found = true
		}
	}
	if !found {
		t.Errorf("promotion not logged, events = %v", f.log.events)
	}
}

func TestMarkDelivered_RunsBonusPasses(t *testing.T) {
	order := pendingOrder()
	order.Status = domain.OrderPaid
	f := newLifecycleFixture(order)

	if err := f.svc.MarkDelivered(context.Background(), 10); err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}
	if f.orders.order.DeliveryStatus != domain.DeliveryDelivered {
		t.Errorf("delivery status = %s", f.orders.order.DeliveryStatus)
	}
	if f.bonuses.standardCalls != 1 || f.bonuses.specialCalls != 1 {
		t.Errorf("bonus passes = standard:%d special:%d, want 1 each",
			f.bonuses.standardCalls, f.bonuses.specialCalls)
	}
	if !f.orders.bonusesGranted.Equal(decimal.NewFromInt(1125)) {
		t.Errorf("bonuses granted = %s, want 1125", f.orders.bonusesGranted)
	}
}

func TestMarkDelivered_UnpaidRejected(t *testing.T) {
	f := newLifecycleFixture(pendingOrder())

	err := f.svc.MarkDelivered(context.Background(), 10)
	var validation *domain.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if f.bonuses.standardCalls != 0 {
		t.Error("bonus pass ran on an unpaid order")
	}
}

func TestOnDelivered_StandardErrorPropagates(t *testing.T) {
	order := pendingOrder()
	order.Status = domain.OrderPaid
	order.DeliveryStatus = domain.DeliveryDelivered
	f := newLifecycleFixture(order)
	f.bonuses.standardErr = errors.New("ledger down")

	if err := f.svc.OnDelivered(context.Background(), 10); err == nil {
		t.Fatal("standard pass failure must propagate")
	}
	if f.bonuses.specialCalls != 0 {
		t.Error("special pass ran after a standard pass failure")
	}
}

func TestOnDelivered_SpecialErrorIsolated(t *testing.T) {
	order := pendingOrder()
	order.Status = domain.OrderPaid
	order.DeliveryStatus = domain.DeliveryDelivered
	f := newLifecycleFixture(order)
	f.bonuses.specialErr = errors.New("deep upline query failed")

	if err := f.svc.OnDelivered(context.Background(), 10); err != nil {
		t.Fatalf("special pass failure must not propagate, got %v", err)
	}
	if !f.orders.bonusesGranted.Equal(decimal.NewFromInt(1125)) {
		t.Error("totals recompute skipped after special pass failure")
	}
}

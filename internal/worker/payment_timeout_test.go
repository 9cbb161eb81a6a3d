package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"mlm_shop/internal/domain"
	"mlm_shop/internal/lock"
)

type fakeLocker struct {
	busy     bool
	acquired int
	released int
}

func (f *fakeLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (*lock.Lease, error) {
	if f.busy {
		return nil, domain.ErrLeaseBusy
	}
	f.acquired++
	return &lock.Lease{Key: key, Token: "t", TTL: ttl}, nil
}

func (f *fakeLocker) Release(ctx context.Context, lease *lock.Lease) error {
	f.released++
	return nil
}

type fakeOrders struct {
	stale     []*domain.Order
	cancelled []int64
	raced     map[int64]bool // orders paid between list and cancel
	cancelErr error
}

func (f *fakeOrders) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Order, error) {
	if len(f.stale) > limit {
		return f.stale[:limit], nil
	}
	return f.stale, nil
}

func (f *fakeOrders) CancelStale(ctx context.Context, orderID int64) (bool, error) {
	if f.cancelErr != nil {
		return false, f.cancelErr
	}
	if f.raced[orderID] {
		return false, nil
	}
	f.cancelled = append(f.cancelled, orderID)
	return true, nil
}

type fakePayments struct{ failed []int64 }

func (f *fakePayments) FailPending(ctx context.Context, orderID int64) (int64, error) {
	f.failed = append(f.failed, orderID)
	return 1, nil
}

type fakePromos struct{ released []int64 }

func (f *fakePromos) ReleaseByOrder(ctx context.Context, orderID int64) (int64, error) {
	f.released = append(f.released, orderID)
	return 1, nil
}

type fakeLogs struct{ events map[int64]string }

func (f *fakeLogs) Append(ctx context.Context, orderID int64, event string, meta map[string]any) error {
	if f.events == nil {
		f.events = make(map[int64]string)
	}
	f.events[orderID] = event
	return nil
}

func staleOrder(id int64) *domain.Order {
	return &domain.Order{ID: id, UserID: 1, Status: domain.OrderNew, CreatedAt: time.Now().Add(-time.Hour)}
}

func newTestWorker(orders *fakeOrders, locker lock.Locker) (*PaymentTimeoutWorker, *fakePayments, *fakePromos, *fakeLogs) {
	payments := &fakePayments{}
	promos := &fakePromos{}
	logs := &fakeLogs{}
	w := NewPaymentTimeoutWorker(
		orders, payments, promos, logs, locker,
		30*time.Minute, 5*time.Minute, time.Minute, 100,
	)
	return w, payments, promos, logs
}

func TestRunOnce_CancelsStaleOrders(t *testing.T) {
	orders := &fakeOrders{stale: []*domain.Order{staleOrder(1), staleOrder(2)}}
	locker := &fakeLocker{}
	w, payments, promos, logs := newTestWorker(orders, locker)

	res, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if res.Processed != 2 || res.Errors != 0 {
		t.Errorf("result = %+v, want {2 0}", res)
	}
	if len(orders.cancelled) != 2 {
		t.Errorf("cancelled %d orders, want 2", len(orders.cancelled))
	}
	if len(promos.released) != 2 || len(payments.failed) != 2 {
		t.Errorf("promo/payment cleanup = %d/%d, want 2/2", len(promos.released), len(payments.failed))
	}
	for _, id := range orders.cancelled {
		if logs.events[id] != domain.EventOrderCancelled {
			t.Errorf("order %d log event = %q", id, logs.events[id])
		}
	}
	if locker.released != 1 {
		t.Errorf("lease released %d times, want 1", locker.released)
	}
}

func TestRunOnce_LeaseBusySkips(t *testing.T) {
	orders := &fakeOrders{stale: []*domain.Order{staleOrder(1)}}
	w, _, _, _ := newTestWorker(orders, &fakeLocker{busy: true})

	res, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("a busy lease is not an error: %v", err)
	}
	if res.Processed != 0 || res.Errors != 0 {
		t.Errorf("result = %+v, want {0 0}", res)
	}
	if len(orders.cancelled) != 0 {
		t.Error("orders were cancelled without holding the lease")
	}
}

func TestRunOnce_RacedOrderUntouched(t *testing.T) {
	// order 2 got paid between ListStale and CancelStale
	orders := &fakeOrders{
		stale: []*domain.Order{staleOrder(1), staleOrder(2)},
		raced: map[int64]bool{2: true},
	}
	w, payments, promos, _ := newTestWorker(orders, &fakeLocker{})

	res, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	// the raced order still counts as processed, but nothing was touched
	if res.Processed != 2 || res.Errors != 0 {
		t.Errorf("result = %+v, want {2 0}", res)
	}
	if len(promos.released) != 1 || len(payments.failed) != 1 {
		t.Errorf("cleanup ran for the raced order: promos=%d payments=%d",
			len(promos.released), len(payments.failed))
	}
}

func TestRunOnce_ErrorsCounted(t *testing.T) {
	orders := &fakeOrders{
		stale:     []*domain.Order{staleOrder(1)},
		cancelErr: errors.New("db down"),
	}
	locker := &fakeLocker{}
	w, _, _, _ := newTestWorker(orders, locker)

	res, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("per-order errors must not abort the pass: %v", err)
	}
	if res.Processed != 0 || res.Errors != 1 {
		t.Errorf("result = %+v, want {0 1}", res)
	}
	if locker.released != 1 {
		t.Error("lease leaked after a failing pass")
	}
}

func TestRunOnce_BatchLimit(t *testing.T) {
	var stale []*domain.Order
	for i := int64(1); i <= 10; i++ {
		stale = append(stale, staleOrder(i))
	}
	orders := &fakeOrders{stale: stale}
	payments := &fakePayments{}
	promos := &fakePromos{}
	w := NewPaymentTimeoutWorker(
		orders, payments, promos, &fakeLogs{}, &fakeLocker{},
		30*time.Minute, 5*time.Minute, time.Minute, 3,
	)

	res, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if res.Processed != 3 {
		t.Errorf("processed = %d, want batch limit 3", res.Processed)
	}
}

package integration

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mlm_shop/internal/domain"
	"mlm_shop/internal/repository"
	"mlm_shop/internal/service"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

func applyMigrations(t *testing.T, db *pgxpool.Pool) {
	t.Helper()
	migDir := filepath.Join("..", "..", "internal", "migrations")
	files, err := os.ReadDir(migDir)
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}
	for _, f := range files {
		b, err := os.ReadFile(filepath.Join(migDir, f.Name()))
		if err != nil {
			t.Fatalf("read file: %v", err)
		}
		if _, err := db.Exec(context.Background(), string(b)); err != nil {
			t.Fatalf("apply migration %s: %v", f.Name(), err)
		}
	}
}

func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	db, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(db.Close)
	applyMigrations(t, db)
	return db
}

func seedUser(t *testing.T, db *pgxpool.Pool, username string) int64 {
	t.Helper()
	u := &domain.User{Username: username, MLMStatus: domain.RankCustomer}
	if err := repository.NewUserRepository(db).Create(context.Background(), u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u.ID
}

func TestLedger_IdempotentReplay(t *testing.T) {
	db := testPool(t)
	ledger := service.NewLedgerService(db)
	ctx := context.Background()

	userID := seedUser(t, db, "replay_user")
	src, err := ledger.EnsureSystemAccount(ctx, domain.CurrencyRUB, domain.AccountReserve)
	if err != nil {
		t.Fatalf("ensure system account: %v", err)
	}
	dst, err := ledger.EnsureUserAccount(ctx, userID, domain.CurrencyRUB, domain.AccountCashRUB)
	if err != nil {
		t.Fatalf("ensure user account: %v", err)
	}

	params := service.PostingParams{
		DebitAccountID:  src.ID,
		CreditAccountID: dst.ID,
		Amount:          decimal.NewFromInt(500),
		Currency:        domain.CurrencyRUB,
		OpType:          domain.OpWalletCredit,
		OperationID:     fmt.Sprintf("itest:replay:%d", time.Now().UnixNano()),
	}

	first, err := ledger.CreatePosting(ctx, params)
	if err != nil {
		t.Fatalf("first posting: %v", err)
	}
	if first.Replayed {
		t.Error("first posting marked as replayed")
	}

	second, err := ledger.CreatePosting(ctx, params)
	if err != nil {
		t.Fatalf("replay posting: %v", err)
	}
	if !second.Replayed {
		t.Error("replay not detected")
	}
	if second.Txn.ID != first.Txn.ID {
		t.Errorf("replay returned a different transaction: %d vs %d", second.Txn.ID, first.Txn.ID)
	}

	balance, err := ledger.GetBalance(ctx, dst.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if want := decimal.NewFromInt(500); !balance.Equal(want) {
		t.Errorf("balance after replay = %s, want %s (single effect)", balance, want)
	}
}

func TestLedger_ReplayConflict(t *testing.T) {
	db := testPool(t)
	ledger := service.NewLedgerService(db)
	ctx := context.Background()

	userID := seedUser(t, db, "conflict_user")
	src, _ := ledger.EnsureSystemAccount(ctx, domain.CurrencyRUB, domain.AccountReserve)
	dst, _ := ledger.EnsureUserAccount(ctx, userID, domain.CurrencyRUB, domain.AccountCashRUB)

	params := service.PostingParams{
		DebitAccountID:  src.ID,
		CreditAccountID: dst.ID,
		Amount:          decimal.NewFromInt(100),
		Currency:        domain.CurrencyRUB,
		OpType:          domain.OpWalletCredit,
		OperationID:     fmt.Sprintf("itest:conflict:%d", time.Now().UnixNano()),
	}
	if _, err := ledger.CreatePosting(ctx, params); err != nil {
		t.Fatalf("first posting: %v", err)
	}

	before, _ := ledger.GetBalance(ctx, dst.ID)

	params.Amount = decimal.NewFromInt(999)
	_, err := ledger.CreatePosting(ctx, params)
	var conflict *domain.IdempotencyConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected IdempotencyConflictError, got %v", err)
	}

	after, _ := ledger.GetBalance(ctx, dst.ID)
	if !after.Equal(before) {
		t.Errorf("conflicting replay changed the balance: %s -> %s", before, after)
	}
}

func TestLedger_ZeroSumAndReversal(t *testing.T) {
	db := testPool(t)
	ledger := service.NewLedgerService(db)
	ctx := context.Background()

	userID := seedUser(t, db, "reversal_user")
	src, _ := ledger.EnsureSystemAccount(ctx, domain.CurrencyRUB, domain.AccountReserve)
	dst, _ := ledger.EnsureUserAccount(ctx, userID, domain.CurrencyRUB, domain.AccountCashRUB)

	res, err := ledger.CreatePosting(ctx, service.PostingParams{
		DebitAccountID:  src.ID,
		CreditAccountID: dst.ID,
		Amount:          decimal.NewFromInt(300),
		Currency:        domain.CurrencyRUB,
		OpType:          domain.OpWalletCredit,
	})
	if err != nil {
		t.Fatalf("posting: %v", err)
	}

	balanced, err := ledger.ValidateTransactionZeroSum(ctx, res.Txn.ID)
	if err != nil {
		t.Fatalf("zero-sum check: %v", err)
	}
	if !balanced {
		t.Error("freshly posted transaction is not balanced")
	}

	if _, err := ledger.ReverseTransaction(ctx, res.Txn.ID, "integration test"); err != nil {
		t.Fatalf("reversal: %v", err)
	}

	balance, _ := ledger.GetBalance(ctx, dst.ID)
	if !balance.IsZero() {
		t.Errorf("balance after reversal = %s, want 0", balance)
	}

	// a second reversal of the same transaction is a conflict
	_, err = ledger.ReverseTransaction(ctx, res.Txn.ID, "again")
	var conflict *domain.IdempotencyConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected IdempotencyConflictError on double reversal, got %v", err)
	}
}

func TestWallet_OverdraftGuard(t *testing.T) {
	db := testPool(t)
	ledger := service.NewLedgerService(db)
	wallet := service.NewWalletService(ledger)
	ctx := context.Background()

	userID := seedUser(t, db, "overdraft_user")

	if _, err := wallet.CreditUser(ctx, userID, decimal.NewFromInt(100), domain.OpWalletCredit, "", nil); err != nil {
		t.Fatalf("credit: %v", err)
	}

	_, err := wallet.DebitUser(ctx, userID, decimal.NewFromInt(150), domain.OpWalletDebit, "", nil)
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	acc, err := ledger.EnsureUserAccount(ctx, userID, domain.CurrencyRUB, domain.AccountCashRUB)
	if err != nil {
		t.Fatalf("ensure account: %v", err)
	}
	balance, _ := ledger.GetBalance(ctx, acc.ID)
	if want := decimal.NewFromInt(100); !balance.Equal(want) {
		t.Errorf("balance after failed debit = %s, want %s", balance, want)
	}
}

func seedPaidOrder(t *testing.T, orders *repository.OrderRepository, userID int64, base int64) *domain.Order {
	t.Helper()
	order := &domain.Order{
		UserID:          userID,
		Status:          domain.OrderPaid,
		DeliveryStatus:  domain.DeliveryPending,
		OrderBaseRub:    decimal.NewFromInt(base),
		TotalPayableRub: decimal.NewFromInt(base),
	}
	if err := orders.Create(context.Background(), order); err != nil {
		t.Fatalf("create order: %v", err)
	}
	return order
}

func TestWallet_PayAndRefundOrder(t *testing.T) {
	db := testPool(t)
	ledger := service.NewLedgerService(db)
	wallet := service.NewWalletService(ledger)
	orders := repository.NewOrderRepository(db)
	ctx := context.Background()

	userID := seedUser(t, db, "refund_user")
	order := seedPaidOrder(t, orders, userID, 600)

	if _, err := wallet.CreditUser(ctx, userID, decimal.NewFromInt(1000), domain.OpWalletCredit, "", nil); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if _, err := wallet.PayOrderFromWallet(ctx, userID, order.ID, order.TotalPayableRub); err != nil {
		t.Fatalf("pay: %v", err)
	}

	acc, _ := ledger.EnsureUserAccount(ctx, userID, domain.CurrencyRUB, domain.AccountCashRUB)
	balance, _ := ledger.GetBalance(ctx, acc.ID)
	if want := decimal.NewFromInt(400); !balance.Equal(want) {
		t.Fatalf("balance after payment = %s, want %s", balance, want)
	}

	res, err := wallet.RefundOrderToWallet(ctx, userID, order.ID, order.TotalPayableRub)
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if res.Replayed {
		t.Error("first refund marked as replayed")
	}
	balance, _ = ledger.GetBalance(ctx, acc.ID)
	if want := decimal.NewFromInt(1000); !balance.Equal(want) {
		t.Errorf("balance after refund = %s, want %s", balance, want)
	}

	// refund again: the order-bound key replays, money moves once
	res, err = wallet.RefundOrderToWallet(ctx, userID, order.ID, order.TotalPayableRub)
	if err != nil {
		t.Fatalf("refund replay: %v", err)
	}
	if !res.Replayed {
		t.Error("second refund not detected as replay")
	}
	balance, _ = ledger.GetBalance(ctx, acc.ID)
	if want := decimal.NewFromInt(1000); !balance.Equal(want) {
		t.Errorf("balance after replayed refund = %s, want %s", balance, want)
	}
}

func TestFund_AllocationReplayRepairsOrderRow(t *testing.T) {
	db := testPool(t)
	ledger := service.NewLedgerService(db)
	users := repository.NewUserRepository(db)
	orders := repository.NewOrderRepository(db)
	network := repository.NewNetworkRepository(db)
	orderLog := repository.NewOrderLogRepository(db)
	fund := service.NewFundService(ledger, orders, network, users, orderLog)
	ctx := context.Background()

	userID := seedUser(t, db, "fund_replay_user")
	order := seedPaidOrder(t, orders, userID, 4500)

	settings := domain.DefaultSettings()
	want := decimal.NewFromInt(225) // 5% of 4500

	// Simulate a run that posted the allocation but died before the order
	// row was updated.
	cash, _ := ledger.EnsureSystemAccount(ctx, domain.CurrencyRUB, domain.AccountCashRUB)
	fundAcc, _ := ledger.EnsureSystemAccount(ctx, domain.CurrencyRUB, domain.AccountNetworkFund)
	if _, err := ledger.CreatePosting(ctx, service.PostingParams{
		DebitAccountID:  cash.ID,
		CreditAccountID: fundAcc.ID,
		Amount:          want,
		Currency:        domain.CurrencyRUB,
		OpType:          domain.OpFundAllocation,
		OperationID:     fmt.Sprintf("fund_allocation:%d", order.ID),
		UserID:          &userID,
		OrderID:         &order.ID,
	}); err != nil {
		t.Fatalf("seed allocation posting: %v", err)
	}

	amount, err := fund.AllocateFromOrder(ctx, settings, order.ID)
	if err != nil {
		t.Fatalf("allocate on re-entry: %v", err)
	}
	if !amount.Equal(want) {
		t.Errorf("allocated = %s, want %s", amount, want)
	}

	reloaded, err := orders.GetByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("reload order: %v", err)
	}
	if !reloaded.NetworkFundRub.Equal(want) {
		t.Errorf("network_fund_rub = %s after re-entry, want %s", reloaded.NetworkFundRub, want)
	}

	// the re-entry replayed the posting, it did not fund the order twice
	txns, err := ledger.Txns().ListByOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("list txns: %v", err)
	}
	if len(txns) != 1 {
		t.Errorf("order has %d transactions, want 1", len(txns))
	}
}

func TestFund_WithdrawInsufficient(t *testing.T) {
	db := testPool(t)
	ledger := service.NewLedgerService(db)
	users := repository.NewUserRepository(db)
	orders := repository.NewOrderRepository(db)
	network := repository.NewNetworkRepository(db)
	orderLog := repository.NewOrderLogRepository(db)
	fund := service.NewFundService(ledger, orders, network, users, orderLog)
	ctx := context.Background()

	fundAcc, err := ledger.EnsureSystemAccount(ctx, domain.CurrencyRUB, domain.AccountNetworkFund)
	if err != nil {
		t.Fatalf("ensure fund account: %v", err)
	}
	before, _ := ledger.GetBalance(ctx, fundAcc.ID)

	over := before.Add(decimal.NewFromInt(1))
	_, err = fund.WithdrawFromFund(ctx, over, "itest:fund:overdraw")
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	after, _ := ledger.GetBalance(ctx, fundAcc.ID)
	if !after.Equal(before) {
		t.Errorf("failed withdrawal moved money: %s -> %s", before, after)
	}
}

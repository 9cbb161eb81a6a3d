package service

import (
	"context"
	"fmt"

	"mlm_shop/internal/domain"

	"github.com/shopspring/decimal"
)

// WalletService exposes user-facing money operations on top of the ledger.
// The overdraft guard lives here: the store itself allows any balanced
// posting, the business rule does not.
type WalletService struct {
	ledger *LedgerService
}

func NewWalletService(ledger *LedgerService) *WalletService {
	return &WalletService{ledger: ledger}
}

// CreditUser moves amount from the system cash account to the user's wallet.
func (s *WalletService) CreditUser(ctx context.Context, userID int64, amount decimal.Decimal, opType domain.OpType, operationID string, meta map[string]interface{}) (*PostingResult, error) {
	userAcc, sysAcc, err := s.cashAccounts(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.ledger.CreatePosting(ctx, PostingParams{
		DebitAccountID:  sysAcc.ID,
		CreditAccountID: userAcc.ID,
		Amount:          amount,
		Currency:        domain.CurrencyRUB,
		OpType:          opType,
		OperationID:     operationID,
		UserID:          &userID,
		Meta:            meta,
	})
}

// DebitUser moves amount from the user's wallet to the system cash account.
// Fails with ErrInsufficientFunds when the wallet balance is short.
func (s *WalletService) DebitUser(ctx context.Context, userID int64, amount decimal.Decimal, opType domain.OpType, operationID string, meta map[string]interface{}) (*PostingResult, error) {
	userAcc, sysAcc, err := s.cashAccounts(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.checkFunds(ctx, userAcc.ID, amount); err != nil {
		return nil, err
	}
	return s.ledger.CreatePosting(ctx, PostingParams{
		DebitAccountID:  userAcc.ID,
		CreditAccountID: sysAcc.ID,
		Amount:          amount,
		Currency:        domain.CurrencyRUB,
		OpType:          opType,
		OperationID:     operationID,
		UserID:          &userID,
		Meta:            meta,
	})
}

// TransferUserToUser moves funds between two user wallets, overdraft-checked
// on the source. Self-transfers are rejected.
func (s *WalletService) TransferUserToUser(ctx context.Context, fromUserID, toUserID int64, amount decimal.Decimal, operationID string) (*PostingResult, error) {
	if fromUserID == toUserID {
		return nil, domain.NewValidationError("self-transfer is not allowed (user %d)", fromUserID)
	}
	fromAcc, err := s.ledger.EnsureUserAccount(ctx, fromUserID, domain.CurrencyRUB, domain.AccountCashRUB)
	if err != nil {
		return nil, err
	}
	toAcc, err := s.ledger.EnsureUserAccount(ctx, toUserID, domain.CurrencyRUB, domain.AccountCashRUB)
	if err != nil {
		return nil, err
	}
	if err := s.checkFunds(ctx, fromAcc.ID, amount); err != nil {
		return nil, err
	}
	return s.ledger.CreatePosting(ctx, PostingParams{
		DebitAccountID:  fromAcc.ID,
		CreditAccountID: toAcc.ID,
		Amount:          amount,
		Currency:        domain.CurrencyRUB,
		OpType:          domain.OpTransfer,
		OperationID:     operationID,
		UserID:          &fromUserID,
		Meta:            map[string]interface{}{"to_user_id": toUserID},
	})
}

// PayOrderFromWallet debits the buyer's wallet for an order; the order id is
// bound into the posting metadata and the idempotency key.
func (s *WalletService) PayOrderFromWallet(ctx context.Context, userID, orderID int64, amount decimal.Decimal) (*PostingResult, error) {
	res, err := s.payRefundOrder(ctx, userID, orderID, amount, domain.OpOrderPayment, false)
	return res, err
}

// RefundOrderToWallet credits the buyer's wallet back for an order.
func (s *WalletService) RefundOrderToWallet(ctx context.Context, userID, orderID int64, amount decimal.Decimal) (*PostingResult, error) {
	return s.payRefundOrder(ctx, userID, orderID, amount, domain.OpOrderRefund, true)
}

func (s *WalletService) payRefundOrder(ctx context.Context, userID, orderID int64, amount decimal.Decimal, opType domain.OpType, credit bool) (*PostingResult, error) {
	userAcc, sysAcc, err := s.cashAccounts(ctx, userID)
	if err != nil {
		return nil, err
	}
	debitID, creditID := userAcc.ID, sysAcc.ID
	if credit {
		debitID, creditID = sysAcc.ID, userAcc.ID
	} else if err := s.checkFunds(ctx, userAcc.ID, amount); err != nil {
		return nil, err
	}
	return s.ledger.CreatePosting(ctx, PostingParams{
		DebitAccountID:  debitID,
		CreditAccountID: creditID,
		Amount:          amount,
		Currency:        domain.CurrencyRUB,
		OpType:          opType,
		OperationID:     fmt.Sprintf("%s:%d", opType, orderID),
		UserID:          &userID,
		OrderID:         &orderID,
		Meta:            map[string]interface{}{"order_id": orderID},
	})
}

func (s *WalletService) cashAccounts(ctx context.Context, userID int64) (*domain.Account, *domain.Account, error) {
	userAcc, err := s.ledger.EnsureUserAccount(ctx, userID, domain.CurrencyRUB, domain.AccountCashRUB)
	if err != nil {
		return nil, nil, err
	}
	sysAcc, err := s.ledger.EnsureSystemAccount(ctx, domain.CurrencyRUB, domain.AccountCashRUB)
	if err != nil {
		return nil, nil, err
	}
	return userAcc, sysAcc, nil
}

func (s *WalletService) checkFunds(ctx context.Context, accountID int64, amount decimal.Decimal) error {
	balance, err := s.ledger.GetBalance(ctx, accountID)
	if err != nil {
		return err
	}
	if balance.LessThan(amount) {
		return domain.ErrInsufficientFunds
	}
	return nil
}

package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"

	"mlm_shop/internal/domain"
	"mlm_shop/internal/logger"
	"mlm_shop/internal/repository"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostingParams describes one balanced movement to record.
type PostingParams struct {
	DebitAccountID  int64
	CreditAccountID int64
	Amount          decimal.Decimal
	Currency        domain.Currency
	OpType          domain.OpType
	// OperationID is the idempotency key. Empty means "generate one",
	// which opts out of replay protection for this call.
	OperationID string
	UserID      *int64
	OrderID     *int64
	Memo        string
	Meta        map[string]interface{}
}

// PostingResult carries the recorded transaction. Replayed is true when the
// operation had already been applied and the prior result was returned.
type PostingResult struct {
	Txn      *domain.Txn
	Postings []*domain.Posting
	Replayed bool
}

// LedgerService is the double-entry ledger store: accounts, transactions,
// postings. Transactions are write-once; a reversal is a new transaction
// with swapped legs, never a mutation.
type LedgerService struct {
	db       *pgxpool.Pool
	accounts *repository.AccountRepository
	txns     *repository.TxnRepository
}

func NewLedgerService(db *pgxpool.Pool) *LedgerService {
	return &LedgerService{
		db:       db,
		accounts: repository.NewAccountRepository(db),
		txns:     repository.NewTxnRepository(db),
	}
}

// EnsureAccount gets or creates an account; safe to call repeatedly.
func (s *LedgerService) EnsureAccount(ctx context.Context, ownerType domain.OwnerType, ownerID *int64, currency domain.Currency, accType domain.AccountType) (*domain.Account, error) {
	if !domain.ValidCurrency(currency) {
		return nil, domain.NewValidationError("unknown currency %q", currency)
	}
	return s.accounts.Ensure(ctx, ownerType, ownerID, currency, accType)
}

// EnsureUserAccount is EnsureAccount for a user-owned account.
func (s *LedgerService) EnsureUserAccount(ctx context.Context, userID int64, currency domain.Currency, accType domain.AccountType) (*domain.Account, error) {
	return s.EnsureAccount(ctx, domain.OwnerUser, &userID, currency, accType)
}

// EnsureSystemAccount is EnsureAccount for a shared system account.
func (s *LedgerService) EnsureSystemAccount(ctx context.Context, currency domain.Currency, accType domain.AccountType) (*domain.Account, error) {
	return s.EnsureAccount(ctx, domain.OwnerSystem, nil, currency, accType)
}

// GetBalance returns the derived balance of an account.
func (s *LedgerService) GetBalance(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	if _, err := s.accounts.GetByID(ctx, accountID); err != nil {
		return decimal.Zero, err
	}
	return s.accounts.Balance(ctx, accountID)
}

// CreatePosting atomically records a transaction with a single posting.
// Idempotent on OperationID: an identical replay returns the prior result
// with Replayed set; a mismatched replay fails with IdempotencyConflictError.
func (s *LedgerService) CreatePosting(ctx context.Context, p PostingParams) (*PostingResult, error) {
	if err := s.validate(ctx, &p); err != nil {
		return nil, err
	}

	if p.OperationID == "" {
		p.OperationID = generateOperationID()
	}

	txn := &domain.Txn{
		OperationID: p.OperationID,
		OpType:      p.OpType,
		UserID:      p.UserID,
		OrderID:     p.OrderID,
		Meta:        p.Meta,
	}
	posting := &domain.Posting{
		DebitAccountID:  p.DebitAccountID,
		CreditAccountID: p.CreditAccountID,
		Amount:          p.Amount,
		Currency:        p.Currency,
		Memo:            p.Memo,
	}

	res, err := s.insert(ctx, txn, []*domain.Posting{posting})
	if err == nil || !errors.Is(err, repository.ErrOperationExists) {
		return res, err
	}

	// operation_id taken: either a benign replay or a caller bug
	return s.resolveReplay(ctx, p)
}

func (s *LedgerService) insert(ctx context.Context, txn *domain.Txn, postings []*domain.Posting) (*PostingResult, error) {
	dbTx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = dbTx.Rollback(ctx) }()

	if err := s.txns.InsertTxn(ctx, dbTx, txn); err != nil {
		return nil, err
	}
	for _, posting := range postings {
		posting.TxnID = txn.ID
		if err := s.txns.InsertPosting(ctx, dbTx, posting); err != nil {
			return nil, err
		}
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, err
	}
	return &PostingResult{Txn: txn, Postings: postings}, nil
}

// resolveReplay decides what an operation_id collision means. Identical
// parameters: return the original result. Anything else: fatal conflict.
func (s *LedgerService) resolveReplay(ctx context.Context, p PostingParams) (*PostingResult, error) {
	prior, err := s.txns.GetByOperationID(ctx, p.OperationID)
	if err != nil {
		return nil, err
	}
	postings, err := s.txns.Postings(ctx, prior.ID)
	if err != nil {
		return nil, err
	}

	if prior.OpType != p.OpType || len(postings) != 1 {
		return nil, &domain.IdempotencyConflictError{OperationID: p.OperationID}
	}
	got := postings[0]
	if got.DebitAccountID != p.DebitAccountID ||
		got.CreditAccountID != p.CreditAccountID ||
		got.Currency != p.Currency ||
		!got.Amount.Equal(p.Amount) {
		return nil, &domain.IdempotencyConflictError{OperationID: p.OperationID}
	}

	logger.Debug("ledger replay detected", "operation_id", p.OperationID)
	return &PostingResult{Txn: prior, Postings: postings, Replayed: true}, nil
}

func (s *LedgerService) validate(ctx context.Context, p *PostingParams) error {
	// amounts are money: two decimals, half-up. Round before the positivity
	// check so a sub-cent amount is rejected here, not by the DB constraint.
	p.Amount = p.Amount.Round(2)
	if !p.Amount.IsPositive() {
		return domain.NewValidationError("amount must be positive, got %s", p.Amount)
	}
	if !domain.ValidCurrency(p.Currency) {
		return domain.NewValidationError("unknown currency %q", p.Currency)
	}
	if p.DebitAccountID == p.CreditAccountID {
		return domain.NewValidationError("debit and credit accounts are the same (%d)", p.DebitAccountID)
	}

	debit, err := s.accounts.GetByID(ctx, p.DebitAccountID)
	if err != nil {
		return err
	}
	credit, err := s.accounts.GetByID(ctx, p.CreditAccountID)
	if err != nil {
		return err
	}
	if debit.Currency != p.Currency || credit.Currency != p.Currency {
		return domain.NewValidationError("currency mismatch: posting %s, debit %s, credit %s",
			p.Currency, debit.Currency, credit.Currency)
	}
	return nil
}

// ReverseTransaction records a compensating transaction with every leg
// swapped. History stays intact; balances move back.
func (s *LedgerService) ReverseTransaction(ctx context.Context, txnID int64, reason string) (*PostingResult, error) {
	original, err := s.txns.GetByID(ctx, txnID)
	if err != nil {
		return nil, err
	}
	postings, err := s.txns.Postings(ctx, txnID)
	if err != nil {
		return nil, err
	}
	if len(postings) == 0 {
		return nil, domain.NewValidationError("transaction %d has no postings", txnID)
	}

	reversal := &domain.Txn{
		OperationID: "reversal:" + original.OperationID,
		OpType:      domain.OpReversal,
		UserID:      original.UserID,
		OrderID:     original.OrderID,
		Meta: map[string]interface{}{
			"reversed_txn_id": txnID,
			"reason":          reason,
		},
	}
	var legs []*domain.Posting
	for _, p := range postings {
		legs = append(legs, &domain.Posting{
			DebitAccountID:  p.CreditAccountID,
			CreditAccountID: p.DebitAccountID,
			Amount:          p.Amount,
			Currency:        p.Currency,
			Memo:            "reversal: " + reason,
		})
	}

	res, err := s.insert(ctx, reversal, legs)
	if errors.Is(err, repository.ErrOperationExists) {
		// the transaction was already reversed once; reversing twice
		// would double the compensation
		return nil, &domain.IdempotencyConflictError{OperationID: reversal.OperationID}
	}
	return res, err
}

// ValidateTransactionZeroSum reports whether a transaction is balanced.
func (s *LedgerService) ValidateTransactionZeroSum(ctx context.Context, txnID int64) (bool, error) {
	if _, err := s.txns.GetByID(ctx, txnID); err != nil {
		return false, err
	}
	return s.txns.ZeroSum(ctx, txnID)
}

// Txns exposes read access for admin tooling.
func (s *LedgerService) Txns() *repository.TxnRepository { return s.txns }

// Accounts exposes read access for admin tooling.
func (s *LedgerService) Accounts() *repository.AccountRepository { return s.accounts }

func generateOperationID() string {
	bytes := make([]byte, 16)
	rand.Read(bytes)
	return "op_" + hex.EncodeToString(bytes)
}

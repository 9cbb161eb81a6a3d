package service

import (
	"context"
	"fmt"

	"mlm_shop/internal/domain"
	"mlm_shop/internal/logger"
	"mlm_shop/internal/repository"

	"github.com/shopspring/decimal"
)

// Budget split of a fund withdrawal across bonus categories.
var (
	fundReferralShare = decimal.NewFromInt(40)
	fundBinaryShare   = decimal.NewFromInt(40)
	fundRankShare     = decimal.NewFromInt(20)
)

// FundDistribution reports how a distribution run spent the order's fund
// share. Unallocated is whatever no payout formula claimed; the distributed
// total never exceeds the fund share.
type FundDistribution struct {
	TotalFund    decimal.Decimal `json:"total_fund"`
	ReferralPaid decimal.Decimal `json:"referral_paid"`
	BinaryPaid   decimal.Decimal `json:"binary_paid"`
	RankPaid     decimal.Decimal `json:"rank_paid"`
	Unallocated  decimal.Decimal `json:"unallocated"`
}

// FundService manages the shared network fund: a single global account fed
// by a percentage of every paid order, later split across bonus budgets.
type FundService struct {
	ledger   *LedgerService
	orders   *repository.OrderRepository
	upline   UplineResolver
	users    UserDirectory
	orderLog OrderLogAppender
}

func NewFundService(ledger *LedgerService, orders *repository.OrderRepository, upline UplineResolver, users UserDirectory, orderLog OrderLogAppender) *FundService {
	return &FundService{ledger: ledger, orders: orders, upline: upline, users: users, orderLog: orderLog}
}

func (s *FundService) fundAccount(ctx context.Context) (*domain.Account, error) {
	return s.ledger.EnsureSystemAccount(ctx, domain.CurrencyRUB, domain.AccountNetworkFund)
}

// AllocateFromOrder posts the configured percent of the order base into the
// network fund. Deterministic key: safe to re-run.
func (s *FundService) AllocateFromOrder(ctx context.Context, settings *domain.SettlementSettings, orderID int64) (decimal.Decimal, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return decimal.Zero, err
	}
	if order.Status != domain.OrderPaid {
		return decimal.Zero, domain.NewValidationError("order %d is not paid (status %s)", orderID, order.Status)
	}

	amount := percentOf(order.OrderBaseRub, settings.NetworkFundPercent)
	if !amount.IsPositive() {
		return decimal.Zero, nil
	}

	cash, err := s.ledger.EnsureSystemAccount(ctx, domain.CurrencyRUB, domain.AccountCashRUB)
	if err != nil {
		return decimal.Zero, err
	}
	fund, err := s.fundAccount(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	res, err := s.ledger.CreatePosting(ctx, PostingParams{
		DebitAccountID:  cash.ID,
		CreditAccountID: fund.ID,
		Amount:          amount,
		Currency:        domain.CurrencyRUB,
		OpType:          domain.OpFundAllocation,
		OperationID:     fmt.Sprintf("fund_allocation:%d", orderID),
		UserID:          &order.UserID,
		OrderID:         &orderID,
	})
	if err != nil {
		return decimal.Zero, err
	}
	if !res.Replayed {
		fundAllocations.Inc()
	}
	// The order row update runs on replays too: a prior run may have posted
	// the allocation and failed before persisting it. The UPDATE is idempotent.
	if err := s.orders.SetNetworkFund(ctx, orderID, amount); err != nil {
		return decimal.Zero, err
	}
	if !res.Replayed {
		_ = s.orderLog.Append(ctx, orderID, domain.EventBalanceFundAlloc, map[string]interface{}{
			"amount": amount.String(),
		})
	}
	return amount, nil
}

// WithdrawFromFund moves amount out of the fund into the special reserve.
// Fails with ErrInsufficientFunds when the fund cannot cover it; nothing is
// posted in that case.
func (s *FundService) WithdrawFromFund(ctx context.Context, amount decimal.Decimal, operationID string) (*PostingResult, error) {
	fund, err := s.fundAccount(ctx)
	if err != nil {
		return nil, err
	}
	balance, err := s.ledger.GetBalance(ctx, fund.ID)
	if err != nil {
		return nil, err
	}
	if balance.LessThan(amount) {
		return nil, domain.ErrInsufficientFunds
	}
	reserve, err := s.ledger.EnsureSystemAccount(ctx, domain.CurrencyRUB, domain.AccountReserve)
	if err != nil {
		return nil, err
	}
	return s.ledger.CreatePosting(ctx, PostingParams{
		DebitAccountID:  fund.ID,
		CreditAccountID: reserve.ID,
		Amount:          amount,
		Currency:        domain.CurrencyRUB,
		OpType:          domain.OpFundWithdrawal,
		OperationID:     operationID,
	})
}

// DistributeBonuses splits the order's fund share into 40% referral,
// 40% binary-leg and 20% rank budgets. The referral budget is paid to the
// buyer's upline leaders via the 20/80 split; the binary and rank formulas
// are not productized yet and their budgets stay unallocated.
func (s *FundService) DistributeBonuses(ctx context.Context, orderID int64) (*FundDistribution, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	total := order.NetworkFundRub
	dist := &FundDistribution{
		TotalFund:    total,
		ReferralPaid: decimal.Zero,
		BinaryPaid:   decimal.Zero,
		RankPaid:     decimal.Zero,
	}
	if !total.IsPositive() {
		dist.Unallocated = decimal.Zero
		return dist, nil
	}

	referralBudget := percentOf(total, fundReferralShare)
	binaryBudget := percentOf(total, fundBinaryShare)
	rankBudget := percentOf(total, fundRankShare)

	dist.ReferralPaid, err = s.distributeReferralBudget(ctx, order, referralBudget)
	if err != nil {
		return nil, err
	}
	dist.BinaryPaid = s.distributeBinaryBudget(binaryBudget)
	dist.RankPaid = s.distributeRankBudget(rankBudget)

	dist.Unallocated = total.Sub(dist.ReferralPaid).Sub(dist.BinaryPaid).Sub(dist.RankPaid)
	logger.Info("fund distribution complete",
		"order_id", orderID,
		"total", total.String(),
		"referral_paid", dist.ReferralPaid.String(),
		"unallocated", dist.Unallocated.String())
	return dist, nil
}

// distributeReferralBudget pays the referral budget to upline partners,
// leader-weighted by their own paid volume.
func (s *FundService) distributeReferralBudget(ctx context.Context, order *domain.Order, budget decimal.Decimal) (decimal.Decimal, error) {
	if !budget.IsPositive() {
		return decimal.Zero, nil
	}
	upline, err := s.upline.GetUpline(ctx, order.UserID, domain.MaxReferralLevel)
	if err != nil {
		return decimal.Zero, err
	}
	ids := make([]int64, 0, len(upline))
	for _, e := range upline {
		ids = append(ids, e.UserID)
	}
	users, err := s.users.GetMany(ctx, ids)
	if err != nil {
		return decimal.Zero, err
	}

	var cohort []LeaderCandidate
	for _, e := range upline {
		u := users[e.UserID]
		if u == nil || domain.RankLevel(u.MLMStatus) < domain.RankLevel(domain.RankPartner) {
			continue
		}
		_, volume, err := s.orders.PaidStats(ctx, u.ID)
		if err != nil {
			return decimal.Zero, err
		}
		cohort = append(cohort, LeaderCandidate{UserID: u.ID, Volume: volume})
	}

	shares := SplitLeaderBudget(budget, cohort)
	fund, err := s.fundAccount(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	paid := decimal.Zero
	for _, c := range cohort {
		share, ok := shares[c.UserID]
		if !ok || !share.IsPositive() {
			continue
		}
		recipientAcc, err := s.ledger.EnsureUserAccount(ctx, c.UserID, domain.CurrencyRUB, domain.AccountReferral)
		if err != nil {
			return paid, err
		}
		recipient := c.UserID
		res, err := s.ledger.CreatePosting(ctx, PostingParams{
			DebitAccountID:  fund.ID,
			CreditAccountID: recipientAcc.ID,
			Amount:          share,
			Currency:        domain.CurrencyRUB,
			OpType:          domain.OpFundPayout,
			OperationID:     domain.BonusOperationID(domain.BonusFundRef, order.ID, c.UserID),
			UserID:          &recipient,
			OrderID:         &order.ID,
		})
		if err != nil {
			return paid, err
		}
		if res.Replayed {
			duplicateSkips.WithLabelValues(string(domain.BonusFundRef)).Inc()
			continue
		}
		paid = paid.Add(share)
		bonusPostings.WithLabelValues(string(domain.BonusFundRef)).Inc()
		_ = s.orderLog.Append(ctx, order.ID, domain.EventBalanceFundPayout, map[string]interface{}{
			"recipient_id": c.UserID,
			"amount":       share.String(),
		})
	}
	return paid, nil
}

// Binary-leg payout formula awaits product definition.
func (s *FundService) distributeBinaryBudget(budget decimal.Decimal) decimal.Decimal {
	return decimal.Zero
}

// Rank payout formula awaits product definition.
func (s *FundService) distributeRankBudget(budget decimal.Decimal) decimal.Decimal {
	return decimal.Zero
}

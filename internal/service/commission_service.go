package service

import (
	"context"
	"sort"
	"time"

	"mlm_shop/internal/domain"
	"mlm_shop/internal/logger"

	"github.com/shopspring/decimal"
)

// UplineResolver is the consumed network-graph boundary.
type UplineResolver interface {
	GetUpline(ctx context.Context, userID int64, maxLevels int) ([]domain.UplineEntry, error)
}

// UserDirectory looks up rank, activation date and entitlement flags.
type UserDirectory interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetMany(ctx context.Context, ids []int64) (map[int64]*domain.User, error)
}

// BonusAccrual is one computed bonus: who gets how much and why.
type BonusAccrual struct {
	RecipientID int64
	Kind        domain.BonusKind
	Level       int
	Amount      decimal.Decimal
	Currency    domain.Currency
}

// ApplyStats summarizes posting a plan.
type ApplyStats struct {
	Posted     int
	Duplicates int
	TotalRub   decimal.Decimal
}

// CommissionService computes and posts order bonuses: standard referral
// levels 1-15 with cashback, and the special pass (fast-start, infinity).
// All rates come from an explicit settings snapshot passed per call.
type CommissionService struct {
	ledger   *LedgerService
	upline   UplineResolver
	users    UserDirectory
	orderLog OrderLogAppender
}

// OrderLogAppender records audit events; failures there never break money flow.
type OrderLogAppender interface {
	Append(ctx context.Context, orderID int64, event string, meta map[string]interface{}) error
}

func NewCommissionService(ledger *LedgerService, upline UplineResolver, users UserDirectory, orderLog OrderLogAppender) *CommissionService {
	return &CommissionService{ledger: ledger, upline: upline, users: users, orderLog: orderLog}
}

func percentOf(base, percent decimal.Decimal) decimal.Decimal {
	return base.Mul(percent).Div(decimal.NewFromInt(100)).Round(2)
}

// fastStartEligible reports whether a direct referrer qualifies for the
// elevated first-level rate: partner rank and still inside the activation
// window. The window is compared at full timestamp precision.
func fastStartEligible(u *domain.User, s *domain.SettlementSettings, now time.Time) bool {
	if u == nil || domain.RankLevel(u.MLMStatus) < domain.RankLevel(domain.RankPartner) {
		return false
	}
	if u.ActivatedAt == nil {
		return false
	}
	deadline := u.ActivatedAt.Add(time.Duration(s.FastStartWeeks) * 7 * 24 * time.Hour)
	return now.Before(deadline)
}

// BuildStandardPlan computes cashback plus referral bonuses for levels 1-15.
// A fast-start-eligible L1 ancestor is deliberately absent here: the special
// pass pays the elevated rate instead, and the two are mutually exclusive.
func BuildStandardPlan(s *domain.SettlementSettings, order *domain.Order, buyer *domain.User, upline []domain.UplineEntry, users map[int64]*domain.User, now time.Time) []BonusAccrual {
	var plan []BonusAccrual

	// cashback goes to partner buyers only, paid in the reward coin
	if domain.RankLevel(buyer.MLMStatus) >= domain.RankLevel(domain.RankPartner) {
		if cb := percentOf(order.OrderBaseRub, s.CashbackPercent); cb.IsPositive() {
			plan = append(plan, BonusAccrual{
				RecipientID: buyer.ID,
				Kind:        domain.BonusCashback,
				Amount:      cb,
				Currency:    domain.CurrencyVWC,
			})
		}
	}

	// qualification points accrue regardless of rank
	if order.PVEarned.IsPositive() {
		plan = append(plan, BonusAccrual{
			RecipientID: buyer.ID,
			Kind:        domain.BonusPV,
			Amount:      order.PVEarned.Round(2),
			Currency:    domain.CurrencyPV,
		})
	}

	for _, entry := range upline {
		if entry.Level < 1 || entry.Level > domain.MaxReferralLevel {
			continue
		}
		ancestor := users[entry.UserID]
		if ancestor == nil {
			continue
		}
		if !levelEligible(ancestor, entry.Level) {
			continue
		}
		if entry.Level == 1 && fastStartEligible(ancestor, s, now) {
			// the special pass pays 25% instead of the standard L1 rate
			continue
		}
		amount := percentOf(order.OrderBaseRub, s.LevelPercent(entry.Level))
		if !amount.IsPositive() {
			continue
		}
		plan = append(plan, BonusAccrual{
			RecipientID: ancestor.ID,
			Kind:        domain.BonusReferral,
			Level:       entry.Level,
			Amount:      amount,
			Currency:    domain.CurrencyRUB,
		})
	}
	return plan
}

// levelEligible applies rank gating for the standard schedule. Customers are
// excluded everywhere except level 1 with the first-line entitlement flag.
func levelEligible(u *domain.User, level int) bool {
	if domain.RankLevel(u.MLMStatus) >= domain.RankLevel(domain.RankPartner) {
		return true
	}
	return level == 1 && u.FirstlineBonus
}

// BuildSpecialPlan computes the fast-start override and the deep-level
// infinity bonus across the full upline (up to MaxSpecialLevel).
func BuildSpecialPlan(s *domain.SettlementSettings, order *domain.Order, buyer *domain.User, upline []domain.UplineEntry, users map[int64]*domain.User, now time.Time) []BonusAccrual {
	var plan []BonusAccrual

	for _, entry := range upline {
		ancestor := users[entry.UserID]
		if ancestor == nil {
			continue
		}
		switch {
		case entry.Level == 1 && fastStartEligible(ancestor, s, now):
			amount := percentOf(order.OrderBaseRub, s.FastStartPercent)
			if amount.IsPositive() {
				plan = append(plan, BonusAccrual{
					RecipientID: ancestor.ID,
					Kind:        domain.BonusFastStart,
					Level:       1,
					Amount:      amount,
					Currency:    domain.CurrencyRUB,
				})
			}
		case entry.Level >= domain.InfinityMinLevel:
			// only ancestors at least as ranked as the buyer qualify
			if domain.RankLevel(ancestor.MLMStatus) < domain.RankLevel(buyer.MLMStatus) ||
				domain.RankLevel(ancestor.MLMStatus) < domain.RankLevel(domain.RankPartner) {
				continue
			}
			amount := percentOf(order.OrderBaseRub, s.InfinityRate)
			if amount.IsPositive() {
				plan = append(plan, BonusAccrual{
					RecipientID: ancestor.ID,
					Kind:        domain.BonusInfinity,
					Level:       entry.Level,
					Amount:      amount,
					Currency:    domain.CurrencyRUB,
				})
			}
		}
	}
	return plan
}

// LeaderCandidate is one member of a redistribution cohort.
type LeaderCandidate struct {
	UserID int64
	Volume decimal.Decimal
}

// SplitLeaderBudget implements the 20/80 leader split: the top ceil(20%) of
// candidates by volume share 80% of the budget pro-rata, the rest share the
// remaining 20%. A single candidate takes the whole budget; an empty cohort
// yields nothing. The distributed total never exceeds the budget.
func SplitLeaderBudget(budget decimal.Decimal, cohort []LeaderCandidate) map[int64]decimal.Decimal {
	result := make(map[int64]decimal.Decimal)
	if len(cohort) == 0 || !budget.IsPositive() {
		return result
	}
	if len(cohort) == 1 {
		result[cohort[0].UserID] = budget.Round(2)
		return result
	}

	sorted := make([]LeaderCandidate, len(cohort))
	copy(sorted, cohort)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Volume.Equal(sorted[j].Volume) {
			return sorted[i].Volume.GreaterThan(sorted[j].Volume)
		}
		return sorted[i].UserID < sorted[j].UserID
	})

	topCount := (len(sorted) + 4) / 5 // ceil(20%)
	topPool := percentOf(budget, decimal.NewFromInt(80))
	restPool := budget.Sub(topPool)

	shareOut(result, sorted[:topCount], topPool)
	shareOut(result, sorted[topCount:], restPool)
	return result
}

// shareOut distributes pool across group pro-rata by volume; a zero-volume
// group splits equally.
func shareOut(result map[int64]decimal.Decimal, group []LeaderCandidate, pool decimal.Decimal) {
	if len(group) == 0 || !pool.IsPositive() {
		return
	}
	total := decimal.Zero
	for _, c := range group {
		total = total.Add(c.Volume)
	}
	for _, c := range group {
		var share decimal.Decimal
		if total.IsPositive() {
			share = pool.Mul(c.Volume).Div(total).Round(2)
		} else {
			share = pool.Div(decimal.NewFromInt(int64(len(group)))).Round(2)
		}
		if share.IsPositive() {
			result[c.UserID] = result[c.UserID].Add(share)
		}
	}
}

// ProcessStandardBonuses resolves the upline, builds the standard plan and
// posts it. This path is financially authoritative: any posting error
// propagates to the caller.
func (s *CommissionService) ProcessStandardBonuses(ctx context.Context, settings *domain.SettlementSettings, order *domain.Order) (*ApplyStats, error) {
	buyer, upline, users, err := s.resolve(ctx, order, domain.MaxReferralLevel)
	if err != nil {
		return nil, err
	}
	plan := BuildStandardPlan(settings, order, buyer, upline, users, time.Now())
	return s.applyPlan(ctx, order, plan, false)
}

// ProcessSpecialBonuses posts the fast-start and infinity plan. Each failing
// pair is logged and abandoned; the deterministic key makes it replayable.
func (s *CommissionService) ProcessSpecialBonuses(ctx context.Context, settings *domain.SettlementSettings, order *domain.Order) (*ApplyStats, error) {
	buyer, upline, users, err := s.resolve(ctx, order, domain.MaxSpecialLevel)
	if err != nil {
		return nil, err
	}
	plan := BuildSpecialPlan(settings, order, buyer, upline, users, time.Now())
	return s.applyPlan(ctx, order, plan, true)
}

func (s *CommissionService) resolve(ctx context.Context, order *domain.Order, maxLevels int) (*domain.User, []domain.UplineEntry, map[int64]*domain.User, error) {
	buyer, err := s.users.GetByID(ctx, order.UserID)
	if err != nil {
		return nil, nil, nil, err
	}
	upline, err := s.upline.GetUpline(ctx, order.UserID, maxLevels)
	if err != nil {
		return nil, nil, nil, err
	}
	ids := make([]int64, 0, len(upline))
	for _, e := range upline {
		ids = append(ids, e.UserID)
	}
	users, err := s.users.GetMany(ctx, ids)
	if err != nil {
		return nil, nil, nil, err
	}
	return buyer, upline, users, nil
}

// applyPlan posts every accrual with its deterministic operation id.
// Replays are counted as duplicates and skipped silently.
func (s *CommissionService) applyPlan(ctx context.Context, order *domain.Order, plan []BonusAccrual, isolate bool) (*ApplyStats, error) {
	stats := &ApplyStats{TotalRub: decimal.Zero}

	for _, acc := range plan {
		res, err := s.postAccrual(ctx, order, acc)
		if err != nil {
			if !isolate {
				return stats, err
			}
			logger.Error("special bonus step failed, abandoned for pair",
				"order_id", order.ID, "recipient_id", acc.RecipientID,
				"kind", string(acc.Kind), "error", err)
			_ = s.orderLog.Append(ctx, order.ID, domain.EventBonusStepFailed, map[string]interface{}{
				"recipient_id": acc.RecipientID,
				"kind":         string(acc.Kind),
				"error":        err.Error(),
			})
			continue
		}
		if res.Replayed {
			stats.Duplicates++
			duplicateSkips.WithLabelValues(string(acc.Kind)).Inc()
			logger.Info("duplicate bonus trigger skipped",
				"order_id", order.ID, "recipient_id", acc.RecipientID, "kind", string(acc.Kind))
			_ = s.orderLog.Append(ctx, order.ID, domain.EventBalanceDuplicate, map[string]interface{}{
				"recipient_id": acc.RecipientID,
				"kind":         string(acc.Kind),
			})
			continue
		}
		stats.Posted++
		bonusPostings.WithLabelValues(string(acc.Kind)).Inc()
		if acc.Currency == domain.CurrencyRUB {
			stats.TotalRub = stats.TotalRub.Add(acc.Amount)
		}
		_ = s.orderLog.Append(ctx, order.ID, bonusEvent(acc.Kind), map[string]interface{}{
			"recipient_id": acc.RecipientID,
			"level":        acc.Level,
			"amount":       acc.Amount.String(),
			"currency":     string(acc.Currency),
		})
	}
	return stats, nil
}

func (s *CommissionService) postAccrual(ctx context.Context, order *domain.Order, acc BonusAccrual) (*PostingResult, error) {
	recipientAcc, err := s.ledger.EnsureUserAccount(ctx, acc.RecipientID, acc.Currency, accountTypeFor(acc.Currency))
	if err != nil {
		return nil, err
	}
	sourceAcc, err := s.ledger.EnsureSystemAccount(ctx, acc.Currency, accountTypeFor(acc.Currency))
	if err != nil {
		return nil, err
	}
	recipient := acc.RecipientID
	return s.ledger.CreatePosting(ctx, PostingParams{
		DebitAccountID:  sourceAcc.ID,
		CreditAccountID: recipientAcc.ID,
		Amount:          acc.Amount,
		Currency:        acc.Currency,
		OpType:          domain.BonusOpType(acc.Kind),
		OperationID:     domain.BonusOperationID(acc.Kind, order.ID, acc.RecipientID),
		UserID:          &recipient,
		OrderID:         &order.ID,
		Meta: map[string]interface{}{
			"level": acc.Level,
			"kind":  string(acc.Kind),
		},
	})
}

func accountTypeFor(c domain.Currency) domain.AccountType {
	switch c {
	case domain.CurrencyVWC:
		return domain.AccountVWC
	case domain.CurrencyPV:
		return domain.AccountPV
	default:
		return domain.AccountReferral
	}
}

func bonusEvent(kind domain.BonusKind) string {
	switch kind {
	case domain.BonusFastStart:
		return domain.EventBalanceFastStart
	case domain.BonusInfinity:
		return domain.EventBalanceInfinity
	case domain.BonusCashback:
		return domain.EventBalanceCashback
	case domain.BonusPV:
		return domain.EventBalancePV
	case domain.BonusFundRef:
		return domain.EventBalanceFundPayout
	default:
		return domain.EventBalanceReferral
	}
}

package service

import (
	"context"

	"mlm_shop/internal/domain"
	"mlm_shop/internal/logger"
	"mlm_shop/internal/repository"

	"github.com/shopspring/decimal"
)

// UpgradeBatchResult reports a batch scan over customers.
type UpgradeBatchResult struct {
	Upgraded int `json:"upgraded"`
	Checked  int `json:"checked"`
}

// UpgradeService promotes customers to partner once their paid order
// history clears the configured thresholds.
type UpgradeService struct {
	users  *repository.UserRepository
	orders *repository.OrderRepository
}

func NewUpgradeService(users *repository.UserRepository, orders *repository.OrderRepository) *UpgradeService {
	return &UpgradeService{users: users, orders: orders}
}

// UpgradeEligible is the pure threshold check.
func UpgradeEligible(s *domain.SettlementSettings, rank domain.Rank, orderCount int, orderTotal decimal.Decimal) bool {
	if rank != domain.RankCustomer {
		return false
	}
	return orderCount >= s.MinOrderCount && orderTotal.GreaterThanOrEqual(s.MinTotalOrdersRub)
}

// CheckAndUpgradeUser evaluates one user and promotes when eligible. The
// promotion re-checks the customer rank inside the update itself, so two
// concurrent evaluations cannot both succeed.
func (s *UpgradeService) CheckAndUpgradeUser(ctx context.Context, settings *domain.SettlementSettings, userID int64) (bool, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return false, err
	}
	if user.MLMStatus != domain.RankCustomer {
		return false, nil
	}
	count, total, err := s.orders.PaidStats(ctx, userID)
	if err != nil {
		return false, err
	}
	if !UpgradeEligible(settings, user.MLMStatus, count, total) {
		return false, nil
	}

	promoted, err := s.users.PromoteToPartner(ctx, userID)
	if err != nil {
		return false, err
	}
	if promoted {
		logger.Info("customer auto-upgraded to partner",
			"user_id", userID, "orders", count, "total_rub", total.String())
	}
	return promoted, nil
}

// RunBatch scans up to limit customers and upgrades the eligible ones.
func (s *UpgradeService) RunBatch(ctx context.Context, settings *domain.SettlementSettings, limit int) (*UpgradeBatchResult, error) {
	ids, err := s.users.ListCustomerIDs(ctx, limit)
	if err != nil {
		return nil, err
	}
	result := &UpgradeBatchResult{}
	for _, id := range ids {
		result.Checked++
		upgraded, err := s.CheckAndUpgradeUser(ctx, settings, id)
		if err != nil {
			logger.Error("upgrade check failed", "user_id", id, "error", err)
			continue
		}
		if upgraded {
			result.Upgraded++
		}
	}
	return result, nil
}

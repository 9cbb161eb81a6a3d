package handlers

import (
	"net/http"
	"strconv"

	"mlm_shop/internal/logger"

	"github.com/gin-gonic/gin"
)

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// ProcessOrderPayment pays an order from the buyer's wallet and runs the
// paid-stage settlement. Safe to call twice: the second call is a no-op.
func (h *Handler) ProcessOrderPayment(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	operatorID, _ := getOperatorID(c)
	logger.Info("order payment triggered", "order_id", orderID, "operator_id", operatorID)

	if err := h.Lifecycle.ProcessOrderPayment(c.Request.Context(), orderID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": orderID, "status": "paid"})
}

// OrderPaid runs the paid-stage settlement for an externally paid order.
func (h *Handler) OrderPaid(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.Lifecycle.OnPaid(c.Request.Context(), orderID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": orderID, "processed": true})
}

// OrderDelivered marks the order delivered and runs the bonus accrual.
func (h *Handler) OrderDelivered(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.Lifecycle.MarkDelivered(c.Request.Context(), orderID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": orderID, "processed": true})
}

// OrderRefund returns an order's wallet payment to the buyer. Replaying the
// refund is safe: the posting key is bound to the order.
func (h *Handler) OrderRefund(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	order, err := h.Orders.GetByID(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}

	operatorID, _ := getOperatorID(c)
	logger.Info("order refund triggered", "order_id", orderID, "operator_id", operatorID)

	res, err := h.Wallet.RefundOrderToWallet(c.Request.Context(), order.UserID, orderID, order.TotalPayableRub)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"order_id": orderID,
		"amount":   order.TotalPayableRub.StringFixed(2),
		"replayed": res.Replayed,
	})
}

// AllocateFund moves the order's network fund share into the fund account.
func (h *Handler) AllocateFund(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	settings, err := h.Settings.Snapshot(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	amount, err := h.Fund.AllocateFromOrder(c.Request.Context(), settings, orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": orderID, "allocated": amount.StringFixed(2)})
}

// DistributeFund pays the order's fund allocation out to the leader cohort.
func (h *Handler) DistributeFund(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	dist, err := h.Fund.DistributeBonuses(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"order_id":      orderID,
		"total_fund":    dist.TotalFund.StringFixed(2),
		"referral_paid": dist.ReferralPaid.StringFixed(2),
		"binary_paid":   dist.BinaryPaid.StringFixed(2),
		"rank_paid":     dist.RankPaid.StringFixed(2),
		"unallocated":   dist.Unallocated.StringFixed(2),
	})
}

// UpgradeCheck evaluates the auto-upgrade rule for one user.
func (h *Handler) UpgradeCheck(c *gin.Context) {
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}

	settings, err := h.Settings.Snapshot(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	upgraded, err := h.Upgrades.CheckAndUpgradeUser(c.Request.Context(), settings, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "upgraded": upgraded})
}

// UpgradeScan evaluates the auto-upgrade rule across the customer base.
func (h *Handler) UpgradeScan(c *gin.Context) {
	limit := 500
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	settings, err := h.Settings.Snapshot(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	res, err := h.Upgrades.RunBatch(c.Request.Context(), settings, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"checked": res.Checked, "upgraded": res.Upgraded})
}

// RunTimeoutWorker triggers one payment-timeout pass outside the schedule.
func (h *Handler) RunTimeoutWorker(c *gin.Context) {
	res, err := h.Worker.RunOnce(c.Request.Context())
	if err != nil {
		logger.Error("manual worker run failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "worker run failed"})
		return
	}
	c.JSON(http.StatusOK, res)
}

// OrderLogList returns the audit trail of an order, optionally filtered by
// event prefix (e.g. "balance:").
func (h *Handler) OrderLogList(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	logs, err := h.OrderLog.ListByOrder(c.Request.Context(), orderID, c.Query("prefix"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": orderID, "entries": logs})
}

// RefreshSettings reloads the active settlement settings from the database.
func (h *Handler) RefreshSettings(c *gin.Context) {
	settings, err := h.Settings.Refresh(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"fast_start_percent":   settings.FastStartPercent.StringFixed(2),
		"network_fund_percent": settings.NetworkFundPercent.StringFixed(2),
		"cashback_percent":     settings.CashbackPercent.StringFixed(2),
	})
}

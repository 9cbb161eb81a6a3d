package handlers

import (
	"net/http"

	"mlm_shop/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// AccountBalance derives an account balance from its postings.
func (h *Handler) AccountBalance(c *gin.Context) {
	accountID, ok := pathID(c, "id")
	if !ok {
		return
	}

	balance, err := h.Ledger.GetBalance(c.Request.Context(), accountID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account_id": accountID, "balance": balance.StringFixed(2)})
}

// OrderTransactions lists all ledger transactions linked to an order.
func (h *Handler) OrderTransactions(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	txns, err := h.Ledger.Txns().ListByOrder(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": orderID, "transactions": txns})
}

type reverseRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// ReverseTransaction posts a compensating transaction with swapped legs.
func (h *Handler) ReverseTransaction(c *gin.Context) {
	txnID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req reverseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reason is required"})
		return
	}

	res, err := h.Ledger.ReverseTransaction(c.Request.Context(), txnID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"reversal_id":  res.Txn.ID,
		"operation_id": res.Txn.OperationID,
	})
}

// TransactionZeroSum runs the integrity check on one transaction.
func (h *Handler) TransactionZeroSum(c *gin.Context) {
	txnID, ok := pathID(c, "id")
	if !ok {
		return
	}

	balanced, err := h.Ledger.ValidateTransactionZeroSum(c.Request.Context(), txnID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction_id": txnID, "balanced": balanced})
}

type walletOpRequest struct {
	Amount      string `json:"amount" binding:"required"`
	OperationID string `json:"operation_id"`
}

func parseAmount(c *gin.Context, raw string) (decimal.Decimal, bool) {
	amount, err := decimal.NewFromString(raw)
	if err != nil || !amount.IsPositive() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be a positive decimal"})
		return decimal.Zero, false
	}
	return amount, true
}

// WalletCredit tops up a user's cash wallet.
func (h *Handler) WalletCredit(c *gin.Context) {
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req walletOpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount is required"})
		return
	}
	amount, ok := parseAmount(c, req.Amount)
	if !ok {
		return
	}

	res, err := h.Wallet.CreditUser(c.Request.Context(), userID, amount, domain.OpWalletCredit, req.OperationID, nil)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"operation_id": res.Txn.OperationID,
		"replayed":     res.Replayed,
	})
}

// WalletDebit withdraws from a user's cash wallet. Overdrafts are refused.
func (h *Handler) WalletDebit(c *gin.Context) {
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req walletOpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount is required"})
		return
	}
	amount, ok := parseAmount(c, req.Amount)
	if !ok {
		return
	}

	res, err := h.Wallet.DebitUser(c.Request.Context(), userID, amount, domain.OpWalletDebit, req.OperationID, nil)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"operation_id": res.Txn.OperationID,
		"replayed":     res.Replayed,
	})
}

type transferRequest struct {
	FromUserID  int64  `json:"from_user_id" binding:"required"`
	ToUserID    int64  `json:"to_user_id" binding:"required"`
	Amount      string `json:"amount" binding:"required"`
	OperationID string `json:"operation_id"`
}

// WalletTransfer moves cash between two user wallets.
func (h *Handler) WalletTransfer(c *gin.Context) {
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from_user_id, to_user_id and amount are required"})
		return
	}
	amount, ok := parseAmount(c, req.Amount)
	if !ok {
		return
	}

	res, err := h.Wallet.TransferUserToUser(c.Request.Context(), req.FromUserID, req.ToUserID, amount, req.OperationID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"operation_id": res.Txn.OperationID,
		"replayed":     res.Replayed,
	})
}

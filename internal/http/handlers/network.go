package handlers

import (
	"net/http"
	"strconv"

	"mlm_shop/internal/domain"
	"mlm_shop/internal/repository"

	"github.com/gin-gonic/gin"
)

// NetworkHandler exposes the referral tree for support tooling.
type NetworkHandler struct {
	network *repository.NetworkRepository
}

func NewNetworkHandler(network *repository.NetworkRepository) *NetworkHandler {
	return &NetworkHandler{network: network}
}

// Tree returns the upline and downline of a user, depth-bounded.
func (h *NetworkHandler) Tree(c *gin.Context) {
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}

	depth := domain.MaxReferralLevel
	if v := c.Query("depth"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= domain.MaxSpecialLevel {
			depth = n
		}
	}

	upline, err := h.network.GetUpline(c.Request.Context(), userID, depth)
	if err != nil {
		respondError(c, err)
		return
	}
	downline, err := h.network.GetDownline(c.Request.Context(), userID, depth)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":  userID,
		"depth":    depth,
		"upline":   upline,
		"downline": downline,
	})
}

package middleware

import (
	"net/http"
	"strings"

	"mlm_shop/internal/service"

	"github.com/gin-gonic/gin"
)

// AdminJWT guards the settlement trigger endpoints. The operator id from
// the token is stored in the Gin context for audit logging.
func AdminJWT() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			return
		}

		token := strings.TrimPrefix(header, "Bearer ")
		if token == header {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "bearer token required"})
			return
		}

		operatorID, err := service.ParseAdminJWT(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("operator_id", operatorID)
		c.Next()
	}
}

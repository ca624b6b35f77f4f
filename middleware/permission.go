package middleware

import (
	"net/http"

	"storefront/logger"
	"storefront/models"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// 檢查是否有admin權限，沒有則中止請求
func CheckAdminPermissionMiddleware(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get(KeyRole)
		if !exists {
			l := logger.FromContext(c.Request.Context(), log)
			l.Error().Msg("無法取得Role")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "錯誤",
			})
			return
		}
		if role != models.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "沒有權限",
			})
			return
		}

		c.Next()
	}
}

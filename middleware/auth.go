package middleware

import (
	"strings"

	"storefront/jwt"
	"storefront/logger"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const (
	KeyToken  = "Token"
	KeyUserID = "UserID"
	KeyRole   = "Role"
)

// AuthMiddleware 解析Bearer Token，驗證成功才設定UserID與Role，未登入的請求照常放行
func AuthMiddleware(tokens *jwt.Manager, db *gorm.DB, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))

		if token == "" {
			c.Next()
			return
		}

		//如Token不合法或錯誤則視為未登入
		userID, role, err := tokens.VerifyToken(token, db.WithContext(c.Request.Context()))
		if err != nil {
			l := logger.FromContext(c.Request.Context(), log)
			l.Debug().Err(err).Msg("無法驗證Token")
			c.Next()
			return
		}

		c.Set(KeyToken, token)
		c.Set(KeyUserID, userID)
		c.Set(KeyRole, role)
		c.Next()
	}
}

// CurrentUserID 取得已登入使用者的ID
func CurrentUserID(c *gin.Context) (uint, bool) {
	value, exists := c.Get(KeyUserID)
	if !exists {
		return 0, false
	}
	userID, ok := value.(uint)
	return userID, ok
}

func CurrentToken(c *gin.Context) string {
	return c.GetString(KeyToken)
}

package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/engage_go_server/internal/pkg/jwt"
	"github.com/qs3c/engage_go_server/internal/pkg/response"
)

const (
	ClaimsKey = "claims"
)

// Auth 服务令牌认证中间件
func Auth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.AuthError(c, "请提供认证信息")
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			response.AuthError(c, "认证格式错误")
			c.Abort()
			return
		}

		claims, err := jwt.ParseToken(tokenString, jwtSecret)
		if err != nil {
			response.AuthError(c, "认证失败或已过期")
			c.Abort()
			return
		}

		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// GetClaims 从上下文获取令牌信息
func GetClaims(c *gin.Context) (*jwt.Claims, bool) {
	v, exists := c.Get(ClaimsKey)
	if !exists {
		return nil, false
	}
	claims, ok := v.(*jwt.Claims)
	return claims, ok
}

// CanAccessAccount 当前令牌能否操作该账号
func CanAccessAccount(c *gin.Context, accountID int64) bool {
	claims, ok := GetClaims(c)
	return ok && claims.CanAccess(accountID)
}

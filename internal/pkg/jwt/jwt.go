package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Claims 服务令牌；AccountID 为 0 表示可访问所有账号
type Claims struct {
	ClientID  string `json:"client_id"`
	AccountID int64  `json:"account_id,omitempty"`
	jwt.RegisteredClaims
}

// CanAccess 令牌是否允许操作该账号的数据
func (c *Claims) CanAccess(accountID int64) bool {
	return c.AccountID == 0 || c.AccountID == accountID
}

// GenerateToken 签发 HS256 令牌
func GenerateToken(clientID string, accountID int64, secret string, expireHours int) (string, error) {
	now := time.Now()
	claims := Claims{
		ClientID:  clientID,
		AccountID: accountID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   clientID,
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(expireHours) * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken 校验签名与有效期
func ParseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

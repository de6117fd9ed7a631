package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/engage_go_server/internal/pkg/jwt"
	"github.com/qs3c/engage_go_server/internal/pkg/response"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testJWTSecret = "test-secret-key-for-middleware"

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	return resp
}

func authRouter(handler gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(Auth(testJWTSecret))
	router.GET("/test", handler)
	return router
}

func TestAuth_Success(t *testing.T) {
	router := authRouter(func(c *gin.Context) {
		claims, ok := GetClaims(c)
		assert.True(t, ok)
		assert.Equal(t, "scheduler", claims.ClientID)
		assert.True(t, CanAccessAccount(c, 7))
		assert.False(t, CanAccessAccount(c, 8))
		c.JSON(http.StatusOK, gin.H{"client": claims.ClientID})
	})

	token, err := jwt.GenerateToken("scheduler", 7, testJWTSecret, 24)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "scheduler")
}

func TestAuth_Rejects(t *testing.T) {
	wrongSecret, err := jwt.GenerateToken("scheduler", 0, "different-secret", 24)
	require.NoError(t, err)
	expired, err := jwt.GenerateToken("scheduler", 0, testJWTSecret, -1)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"no bearer prefix", "some-token-without-bearer"},
		{"invalid token", "Bearer invalid.token.here"},
		{"wrong secret", "Bearer " + wrongSecret},
		{"expired token", "Bearer " + expired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			router := authRouter(func(c *gin.Context) {
				called = true
				c.JSON(http.StatusOK, gin.H{})
			})

			req := httptest.NewRequest("GET", "/test", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			resp := parseResponse(t, w)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, response.CodeAuthFailed, resp.Code)
			assert.False(t, called)
		})
	}
}

func TestGetClaims(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		ok    bool
	}{
		{"not set", nil, false},
		{"wrong type", "scheduler", false},
		{"claims", &jwt.Claims{ClientID: "scheduler"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.GET("/test", func(c *gin.Context) {
				if tt.value != nil {
					c.Set(ClaimsKey, tt.value)
				}
				claims, ok := GetClaims(c)
				assert.Equal(t, tt.ok, ok)
				if ok {
					assert.Equal(t, "scheduler", claims.ClientID)
				}
				assert.Equal(t, tt.ok, CanAccessAccount(c, 1))
				c.Status(http.StatusOK)
			})

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}

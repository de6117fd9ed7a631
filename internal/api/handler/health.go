package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"github.com/qs3c/engage_go_server/internal/capability"
)

type HealthHandler struct {
	db         *gorm.DB
	redis      *redis.Client
	capability capability.HealthChecker
}

// NewHealthHandler capability 可以为空（例如使用 GCP 时没有统一的健康检查）
func NewHealthHandler(db *gorm.DB, redisClient *redis.Client, checker capability.HealthChecker) *HealthHandler {
	return &HealthHandler{db: db, redis: redisClient, capability: checker}
}

// Check 依赖探活；任一依赖不可用时返回 503
// GET /health
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	services := map[string]bool{
		"database": h.pingDB(ctx),
		"redis":    h.redis != nil && h.redis.Ping(ctx).Err() == nil,
	}
	if h.capability != nil {
		st, err := h.capability.Health(ctx)
		services["capability"] = err == nil && st != nil && (st.Status == "ok" || st.Status == "healthy")
	}

	status, code := "ok", http.StatusOK
	for _, up := range services {
		if !up {
			status, code = "degraded", http.StatusServiceUnavailable
			break
		}
	}
	c.JSON(code, capability.HealthStatus{Status: status, Services: services})
}

func (h *HealthHandler) pingDB(ctx context.Context) bool {
	if h.db == nil {
		return false
	}
	sqlDB, err := h.db.DB()
	if err != nil {
		return false
	}
	return sqlDB.PingContext(ctx) == nil
}

package handler

import (
	"context"
	"net/http"
	"os/exec"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"github.com/qs3c/repo_insight_server/internal/pkg/response"
)

// HealthHandler 健康检查：数据库、Redis（可选）、git 工具、AI 配置与产物存储模式
type HealthHandler struct {
	db           *gorm.DB
	redisClient  *redis.Client // 可为 nil
	aiConfigured bool
	storageMode  string // oss / local
}

func NewHealthHandler(db *gorm.DB, redisClient *redis.Client, aiConfigured bool, storageMode string) *HealthHandler {
	return &HealthHandler{
		db:           db,
		redisClient:  redisClient,
		aiConfigured: aiConfigured,
		storageMode:  storageMode,
	}
}

// Check 依赖健康状态，任一必选依赖不可用时返回 503
// GET /health
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := gin.H{}
	healthy := true

	if sqlDB, err := h.db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		checks["database"] = "down"
		healthy = false
	} else {
		checks["database"] = "up"
	}

	if h.redisClient != nil {
		if err := h.redisClient.Ping(ctx).Err(); err != nil {
			checks["redis"] = "down" // 实时推送降级，不影响整体可用
		} else {
			checks["redis"] = "up"
		}
	} else {
		checks["redis"] = "disabled"
	}

	if _, err := exec.LookPath("git"); err != nil {
		checks["git"] = "missing"
		healthy = false
	} else {
		checks["git"] = "available"
	}

	if h.aiConfigured {
		checks["ai_provider"] = "configured"
	} else {
		checks["ai_provider"] = "disabled"
	}

	checks["artifact_store"] = h.storageMode

	status := "ok"
	if !healthy {
		status = "degraded"
		c.JSON(http.StatusServiceUnavailable, response.Response{
			Code:    response.CodeServerError,
			Message: status,
			Data:    checks,
		})
		return
	}

	response.Success(c, gin.H{"status": status, "checks": checks})
}

package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/repo_insight_server/internal/pkg/response"
	"github.com/qs3c/repo_insight_server/internal/service"
)

// DashboardHandler 仪表盘统计接口
type DashboardHandler struct {
	query *service.QueryService
}

func NewDashboardHandler(query *service.QueryService) *DashboardHandler {
	return &DashboardHandler{query: query}
}

// Stats 任务与报告聚合统计
// GET /api/v1/dashboard/stats
func (h *DashboardHandler) Stats(c *gin.Context) {
	stats, err := h.query.Stats()
	if err != nil {
		response.ServerError(c, "")
		return
	}
	response.Success(c, stats)
}

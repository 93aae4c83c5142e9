package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/repo_insight_server/internal/model"
	"github.com/qs3c/repo_insight_server/internal/model/dto"
	"github.com/qs3c/repo_insight_server/internal/pkg/response"
	"github.com/qs3c/repo_insight_server/internal/service"
	"github.com/qs3c/repo_insight_server/internal/worker"
)

// AnalysisHandler 分析任务接口
type AnalysisHandler struct {
	registry *service.Registry
	query    *service.QueryService
}

func NewAnalysisHandler(registry *service.Registry, query *service.QueryService) *AnalysisHandler {
	return &AnalysisHandler{registry: registry, query: query}
}

// Create 发起分析
// POST /api/v1/analyses
func (h *AnalysisHandler) Create(c *gin.Context) {
	var req dto.StartAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "")
		return
	}

	job, err := h.registry.Start(&req)
	if err != nil {
		var ce *worker.CloneError
		if errors.As(err, &ce) {
			response.ParamError(c, ce.UserMessage)
			return
		}
		response.ServerError(c, "")
		return
	}

	response.Accepted(c, dto.StartAnalysisResponse{
		JobID:  job.ID,
		Status: job.Status,
	})
}

// List 任务列表
// GET /api/v1/analyses?page=1&page_size=20&status=completed
func (h *AnalysisHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	status := c.Query("status")

	if status != "" && !validStatus(status) {
		response.ParamError(c, "status 参数不合法")
		return
	}

	items, total, err := h.query.List(page, pageSize, status)
	if err != nil {
		response.ServerError(c, "")
		return
	}
	response.SuccessPage(c, total, page, pageSize, items)
}

// Get 任务完整结果
// GET /api/v1/analyses/:id
func (h *AnalysisHandler) Get(c *gin.Context) {
	result, err := h.query.Result(c.Param("id"))
	if err != nil {
		h.renderQueryError(c, err)
		return
	}
	response.Success(c, result)
}

// GetProgress 轮询进度
// GET /api/v1/analyses/:id/progress
func (h *AnalysisHandler) GetProgress(c *gin.Context) {
	progress, err := h.query.Progress(c.Param("id"))
	if err != nil {
		h.renderQueryError(c, err)
		return
	}
	response.Success(c, progress)
}

// Delete 删除任务（执行中的任务先取消）
// DELETE /api/v1/analyses/:id
func (h *AnalysisHandler) Delete(c *gin.Context) {
	if err := h.registry.Delete(c.Param("id")); err != nil {
		h.renderQueryError(c, err)
		return
	}
	response.Success(c, nil)
}

// DownloadReport 下载报告产物
// GET /api/v1/analyses/:id/report
func (h *AnalysisHandler) DownloadReport(c *gin.Context) {
	data, name, err := h.query.Report(c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrReportNotReady) {
			response.ConflictError(c, err.Error())
			return
		}
		h.renderQueryError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, "text/plain; charset=utf-8", data)
}

func (h *AnalysisHandler) renderQueryError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrJobNotFound) {
		response.NotFoundError(c, err.Error())
		return
	}
	response.ServerError(c, "")
}

func validStatus(status string) bool {
	switch status {
	case model.StatusPending, model.StatusRunning, model.StatusCompleted, model.StatusFailed:
		return true
	}
	return false
}

package handler

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/qs3c/repo_insight_server/internal/pkg/ws"
	"github.com/qs3c/repo_insight_server/internal/service"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// TODO: 生产环境需要验证 Origin
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// WebSocketHandler 任务进度实时推送。连接按任务订阅，
// 数据库轮询接口始终是权威来源
type WebSocketHandler struct {
	hub   *ws.Hub
	query *service.QueryService
}

func NewWebSocketHandler(hub *ws.Hub, query *service.QueryService) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, query: query}
}

// Handle WebSocket 连接处理
// GET /api/v1/ws?job_id=xxx
func (h *WebSocketHandler) Handle(c *gin.Context) {
	jobID := c.Query("job_id")
	if jobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing job_id"})
		return
	}

	// 任务必须存在才允许订阅
	if _, err := h.query.Progress(jobID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}

	// 升级连接
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Failed to upgrade connection: %v", err)
		return
	}

	client := &ws.Client{
		JobID: jobID,
		Conn:  conn,
	}

	h.hub.Register(client)

	// 保持连接，读取消息（主要用于检测断开）
	go func() {
		defer h.hub.Unregister(client)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

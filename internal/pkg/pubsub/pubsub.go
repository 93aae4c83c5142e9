package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const (
	ChannelJobProgress = "job_progress"
)

// ProgressMessage 进度消息。数据库里的任务记录才是权威状态，
// 这里只做实时推送，丢消息不影响轮询接口
type ProgressMessage struct {
	Type         string `json:"type"`
	JobID        string `json:"job_id"`
	Status       string `json:"status"`
	Stage        string `json:"stage"`
	Progress     int    `json:"progress"`
	Message      string `json:"message,omitempty"`
	ErrorKind    string `json:"error_kind,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// 阶段对应的消息
var StageMessages = map[string]string{
	"clone":           "正在克隆仓库",
	"inventory":       "正在清点仓库文件",
	"static_analysis": "正在进行静态分析",
	"ai_architecture": "正在进行 AI 架构分析",
	"ai_quality":      "正在进行 AI 质量分析",
	"ai_security":     "正在进行 AI 安全分析",
	"synthesize":      "正在合成分析报告",
	"finalize":        "正在归档报告",
}

// Publisher Redis 发布者。client 为 nil 时所有发布调用为空操作，
// 未配置 Redis 的部署只提供轮询接口
type Publisher struct {
	client *redis.Client
}

// NewPublisher 创建发布者
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// PublishProgress 发布进度消息
func (p *Publisher) PublishProgress(ctx context.Context, msg *ProgressMessage) error {
	if p == nil || p.client == nil {
		return nil
	}

	msg.Type = "job_progress"
	if msg.Message == "" && msg.Stage != "" {
		if message, ok := StageMessages[msg.Stage]; ok {
			msg.Message = message
		}
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal progress message: %w", err)
	}

	return p.client.Publish(ctx, ChannelJobProgress, data).Err()
}

// Subscriber Redis 订阅者
type Subscriber struct {
	client *redis.Client
}

// NewSubscriber 创建订阅者
func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe 订阅进度消息，阻塞直到 ctx 取消
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*ProgressMessage)) error {
	pubsub := s.client.Subscribe(ctx, ChannelJobProgress)
	defer pubsub.Close()

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var progressMsg ProgressMessage
			if err := json.Unmarshal([]byte(msg.Payload), &progressMsg); err != nil {
				continue // 忽略解析错误
			}

			handler(&progressMsg)
		}
	}
}

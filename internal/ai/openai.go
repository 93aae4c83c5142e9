package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/qs3c/repo_insight_server/config"
)

// OpenAIProvider 走 OpenAI 兼容接口的洞察提供方，支持自定义 BaseURL
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider 创建客户端。apiKey 为空时返回 nil（AI 阶段整体降级），
// 由调用方按 nil 判断
func NewOpenAIProvider(cfg *config.AIConfig) *OpenAIProvider {
	if cfg == nil || cfg.APIKey == "" {
		log.Println("[AI] API key not configured, insight stages will degrade")
		return nil
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	log.Printf("[AI] provider initialized, model=%s", model)
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
	}
}

const systemPrompt = "You are a senior software engineer reviewing a code repository. " +
	"Answer with a single JSON object only, no markdown fences, no prose outside the JSON."

// insightPayload 模型回复约定的 JSON 结构
type insightPayload struct {
	Summary         string   `json:"summary"`
	Pattern         string   `json:"pattern"`
	Findings        []string `json:"findings"`
	Recommendations []string `json:"recommendations"`
	Score           int      `json:"score"`
}

func (p *OpenAIProvider) ArchitectureInsight(ctx context.Context, in *AnalysisInput) (*Insight, error) {
	return p.complete(ctx, "architecture", architecturePrompt(in))
}

func (p *OpenAIProvider) QualityInsight(ctx context.Context, in *AnalysisInput) (*Insight, error) {
	return p.complete(ctx, "quality", qualityPrompt(in))
}

func (p *OpenAIProvider) SecurityInsight(ctx context.Context, in *AnalysisInput) (*Insight, error) {
	return p.complete(ctx, "security", securityPrompt(in))
}

func (p *OpenAIProvider) complete(ctx context.Context, op, prompt string) (*Insight, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, &ProviderError{Op: op, Err: fmt.Errorf("chat completion: %w", err)}
	}
	if len(resp.Choices) == 0 {
		return nil, &ProviderError{Op: op, Err: fmt.Errorf("empty choices")}
	}
	raw := resp.Choices[0].Message.Content
	insight, err := ParseInsight(raw)
	if err != nil {
		return nil, &ProviderError{Op: op, Raw: raw, Err: err}
	}
	return insight, nil
}

// ParseInsight 解析模型回复。模型偶尔会在 JSON 外包一层 markdown
// 围栏或文字，先截取首尾花括号之间的部分再解析。
func ParseInsight(raw string) (*Insight, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}
	var payload insightPayload
	if err := json.Unmarshal([]byte(raw[start:end+1]), &payload); err != nil {
		return nil, fmt.Errorf("decode insight: %w", err)
	}
	if payload.Score < 0 {
		payload.Score = 0
	}
	if payload.Score > 100 {
		payload.Score = 100
	}
	return &Insight{
		Summary:         payload.Summary,
		Pattern:         payload.Pattern,
		Findings:        payload.Findings,
		Recommendations: payload.Recommendations,
		Score:           payload.Score,
		Raw:             raw,
	}, nil
}

package ai

import (
	"context"
	"fmt"

	"github.com/qs3c/repo_insight_server/internal/analyzer"
)

// Insight AI 单维度分析结论
type Insight struct {
	Summary         string   `json:"summary"`
	Pattern         string   `json:"pattern,omitempty"` // 架构维度：识别出的架构模式
	Findings        []string `json:"findings"`
	Recommendations []string `json:"recommendations"`
	Score           int      `json:"score"` // 0-100，模型建议分，合成阶段参考用
	Raw             string   `json:"-"`     // 模型原始输出，排障用
}

// Snippet 送给模型的代码样本
type Snippet struct {
	Path     string
	Language string
	Content  string
}

// AnalysisInput AI 阶段的输入：静态事实 + 代码样本
type AnalysisInput struct {
	RepoName        string
	PrimaryLanguage string
	Facts           *analyzer.Facts
	Snippets        []Snippet
}

// Provider 洞察提供方。三个维度各自独立调用，任一失败不影响其他维度。
type Provider interface {
	ArchitectureInsight(ctx context.Context, in *AnalysisInput) (*Insight, error)
	QualityInsight(ctx context.Context, in *AnalysisInput) (*Insight, error)
	SecurityInsight(ctx context.Context, in *AnalysisInput) (*Insight, error)
}

// ProviderError 模型调用或解析失败。Raw 保留模型原始回复，
// 写入任务记录供排障，不直接透给客户端。
type ProviderError struct {
	Op  string // architecture / quality / security
	Raw string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("ai %s insight: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

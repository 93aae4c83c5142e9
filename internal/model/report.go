package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// 阶段结果状态
const (
	StageSuccess  = "success"
	StageDegraded = "degraded"
)

// StageRecord 单个阶段的输出，每个阶段只写入一次，互不覆盖
type StageRecord struct {
	Name       string                 `json:"name"`
	Outcome    string                 `json:"outcome"` // success / degraded
	Output     map[string]interface{} `json:"output,omitempty"`
	Error      string                 `json:"error,omitempty"`
	FinishedAt time.Time              `json:"finished_at"`
}

// StageRecords 按执行顺序排列的阶段结果，整体存为 JSON 列
type StageRecords []StageRecord

func (s StageRecords) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	return json.Marshal(s)
}

func (s *StageRecords) Scan(value interface{}) error {
	if value == nil {
		*s = StageRecords{}
		return nil
	}
	bytes, ok := toBytes(value)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, s)
}

// Get 按阶段名查找结果
func (s StageRecords) Get(name string) (StageRecord, bool) {
	for _, r := range s {
		if r.Name == name {
			return r, true
		}
	}
	return StageRecord{}, false
}

// RepositoryOverview 仓库概况，来自文件清点阶段
type RepositoryOverview struct {
	Name        string         `json:"name"`
	Languages   map[string]int `json:"languages"` // 语言 -> 文件数
	TotalFiles  int            `json:"total_files"`
	CodeFiles   int            `json:"code_files"`
	LinesOfCode int            `json:"lines_of_code"`
}

// Scores 各维度评分（0-100），由确定性公式从静态分析结果计算
type Scores struct {
	OverallQuality  int `json:"overall_quality_score"`
	Architecture    int `json:"architecture_score"`
	CodeQuality     int `json:"code_quality_score"`
	Security        int `json:"security_score"`
	Maintainability int `json:"maintainability_score"`
	Performance     int `json:"performance_score"`
}

// TechnicalMetrics 静态分析的关键指标
type TechnicalMetrics struct {
	AverageComplexity      float64 `json:"average_complexity"`
	HighComplexityCount    int     `json:"high_complexity_count"`
	SecurityVulnerabilities int    `json:"security_vulnerabilities"`
	CodeSmells             int     `json:"code_smells"`
	DependenciesTotal      int     `json:"dependencies_total"`
	DependenciesOutdated   int     `json:"dependencies_outdated"`
}

// AIInsights AI 各阶段的叙述性结论；AI 降级时为基于静态事实的回退内容
type AIInsights struct {
	ArchitecturePattern string   `json:"architecture_pattern"`
	ArchitectureSummary string   `json:"architecture_summary,omitempty"`
	QualitySummary      string   `json:"quality_summary,omitempty"`
	SecuritySummary     string   `json:"security_summary,omitempty"`
	Strengths           []string `json:"strengths,omitempty"`
	Weaknesses          []string `json:"weaknesses,omitempty"`
	SecurityRisks       []string `json:"security_risks,omitempty"`
}

// FinalReport 任务完成后的最终报告，仅在 status=completed 时填充
type FinalReport struct {
	RepositoryOverview RepositoryOverview `json:"repository_overview"`
	Scores             Scores             `json:"overall_scores"`
	TechnicalMetrics   TechnicalMetrics   `json:"technical_metrics"`
	AIInsights         AIInsights         `json:"ai_insights"`
	Recommendations    []string           `json:"recommendations,omitempty"`
	ExecutiveSummary   string             `json:"executive_summary,omitempty"`
	AIError            bool               `json:"ai_error"`
	AIErrorDetail      string             `json:"ai_error_detail,omitempty"`
	GeneratedAt        time.Time          `json:"generated_at"`
}

func (r FinalReport) Value() (driver.Value, error) {
	return json.Marshal(r)
}

func (r *FinalReport) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	bytes, ok := toBytes(value)
	if !ok {
		return errors.New("unsupported type for FinalReport column")
	}
	return json.Unmarshal(bytes, r)
}

// toBytes 兼容 MySQL（[]byte）与 SQLite（string）的 JSON 列读取
func toBytes(value interface{}) ([]byte, bool) {
	switch v := value.(type) {
	case []byte:
		return v, true
	case string:
		return []byte(v), true
	default:
		return nil, false
	}
}

package model

import (
	"time"
)

// 任务状态，单向流转：pending → running → completed/failed
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// 错误类别，记录在 Job.ErrorKind 上
const (
	ErrKindValidation = "validation"
	ErrKindRetrieval  = "retrieval"
	ErrKindTool       = "tool"
	ErrKindAIProvider = "ai_provider"
	ErrKindTimeout    = "timeout"
	ErrKindCancelled  = "cancelled"
)

// IsTerminal 判断状态是否为终态
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

// AnalysisJob 一次仓库分析任务的完整记录。
// 状态、进度只由该任务的执行器写入；进度百分比单调不减。
type AnalysisJob struct {
	ID           string       `gorm:"primaryKey;size:36" json:"id"`
	RepoURL      string       `gorm:"size:500;not null" json:"repo_url"`
	RepoName     string       `gorm:"size:200" json:"repo_name,omitempty"`
	AccessToken  string       `gorm:"size:200" json:"-"` // 克隆私有仓库用，不写日志、不返回给客户端
	Status       string       `gorm:"size:20;default:pending;index" json:"status"`
	Progress     int          `gorm:"default:0" json:"progress"`
	CurrentStage string       `gorm:"size:200" json:"current_stage,omitempty"`
	StageResults StageRecords `gorm:"type:json" json:"stage_results,omitempty"`
	FinalReport  *FinalReport `gorm:"type:json" json:"final_report,omitempty"`
	ErrorKind    string       `gorm:"size:20" json:"error_kind,omitempty"`
	ErrorMessage string       `gorm:"type:text" json:"error_message,omitempty"`
	ArtifactPath string       `gorm:"size:500" json:"-"`
	CreatedAt    time.Time    `gorm:"index" json:"created_at"`
	StartedAt    *time.Time   `json:"started_at,omitempty"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
}

func (AnalysisJob) TableName() string {
	return "analysis_jobs"
}

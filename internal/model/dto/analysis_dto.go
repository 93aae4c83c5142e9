package dto

import (
	"time"

	"github.com/qs3c/repo_insight_server/internal/model"
)

// StartAnalysisRequest 发起分析请求
type StartAnalysisRequest struct {
	RepoURL     string `json:"repo_url" binding:"required,max=500"`
	AccessToken string `json:"access_token,omitempty" binding:"omitempty,max=200"`
}

// StartAnalysisResponse 发起分析响应
type StartAnalysisResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// JobProgress 轮询进度快照
type JobProgress struct {
	JobID        string `json:"job_id"`
	Status       string `json:"status"`
	Progress     int    `json:"progress"`
	CurrentStage string `json:"current_stage,omitempty"`
	ErrorKind    string `json:"error_kind,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	StartedAt    string `json:"started_at,omitempty"`
	ElapsedSeconds int  `json:"elapsed_seconds,omitempty"`
}

// JobSummary 列表项
type JobSummary struct {
	ID                   string `json:"id"`
	RepoURL              string `json:"repo_url"`
	RepoName             string `json:"repo_name,omitempty"`
	Status               string `json:"status"`
	Progress             int    `json:"progress"`
	OverallQualityScore  *int   `json:"overall_quality_score,omitempty"`
	ArchitectureScore    *int   `json:"architecture_score,omitempty"`
	SecurityScore        *int   `json:"security_score,omitempty"`
	MaintainabilityScore *int   `json:"maintainability_score,omitempty"`
	LinesOfCode          int    `json:"lines_of_code,omitempty"`
	FileCount            int    `json:"file_count,omitempty"`
	Vulnerabilities      int    `json:"vulnerabilities,omitempty"`
	DependenciesOutdated int    `json:"dependencies_outdated,omitempty"`
	AIError              bool   `json:"ai_error,omitempty"`
	CreatedAt            string `json:"created_at"`
	CompletedAt          string `json:"completed_at,omitempty"`
}

// JobResult 结果查询响应：完成后带最终报告，否则只有状态字段
type JobResult struct {
	JobID        string             `json:"job_id"`
	RepoURL      string             `json:"repo_url"`
	RepoName     string             `json:"repo_name,omitempty"`
	Status       string             `json:"status"`
	Progress     int                `json:"progress"`
	CurrentStage string             `json:"current_stage,omitempty"`
	ErrorKind    string             `json:"error_kind,omitempty"`
	ErrorMessage string             `json:"error_message,omitempty"`
	StageResults model.StageRecords `json:"stage_results,omitempty"`
	FinalReport  *model.FinalReport `json:"final_report,omitempty"`
	CreatedAt    string             `json:"created_at"`
	CompletedAt  string             `json:"completed_at,omitempty"`
}

// NewJobSummary 构造列表项，已完成任务附带报告摘要字段
func NewJobSummary(job *model.AnalysisJob) *JobSummary {
	s := &JobSummary{
		ID:        job.ID,
		RepoURL:   job.RepoURL,
		RepoName:  job.RepoName,
		Status:    job.Status,
		Progress:  job.Progress,
		CreatedAt: FormatTime(&job.CreatedAt),
	}
	if job.CompletedAt != nil {
		s.CompletedAt = FormatTime(job.CompletedAt)
	}
	if r := job.FinalReport; r != nil {
		s.OverallQualityScore = intPtr(r.Scores.OverallQuality)
		s.ArchitectureScore = intPtr(r.Scores.Architecture)
		s.SecurityScore = intPtr(r.Scores.Security)
		s.MaintainabilityScore = intPtr(r.Scores.Maintainability)
		s.LinesOfCode = r.RepositoryOverview.LinesOfCode
		s.FileCount = r.RepositoryOverview.CodeFiles
		s.Vulnerabilities = r.TechnicalMetrics.SecurityVulnerabilities
		s.DependenciesOutdated = r.TechnicalMetrics.DependenciesOutdated
		s.AIError = r.AIError
	}
	return s
}

// NewJobResult 构造结果视图
func NewJobResult(job *model.AnalysisJob) *JobResult {
	r := &JobResult{
		JobID:        job.ID,
		RepoURL:      job.RepoURL,
		RepoName:     job.RepoName,
		Status:       job.Status,
		Progress:     job.Progress,
		CurrentStage: job.CurrentStage,
		ErrorKind:    job.ErrorKind,
		ErrorMessage: job.ErrorMessage,
		StageResults: job.StageResults,
		FinalReport:  job.FinalReport,
		CreatedAt:    FormatTime(&job.CreatedAt),
	}
	if job.CompletedAt != nil {
		r.CompletedAt = FormatTime(job.CompletedAt)
	}
	return r
}

// FormatTime 统一的时间序列化格式
func FormatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

func intPtr(v int) *int {
	return &v
}

// DashboardStats 仪表盘汇总
type DashboardStats struct {
	TotalJobs            int64   `json:"total_jobs"`
	Completed            int64   `json:"completed"`
	Running              int64   `json:"running"`
	Pending              int64   `json:"pending"`
	Failed               int64   `json:"failed"`
	AverageQualityScore  float64 `json:"average_quality_score"`
	VulnerabilitiesFound int64   `json:"vulnerabilities_found"`
	DegradedAIReports    int64   `json:"degraded_ai_reports"`
}

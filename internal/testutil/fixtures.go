package testutil

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/qs3c/repo_insight_server/internal/model"
)

// TestJob 创建指定状态的测试任务
func TestJob(t *testing.T, db *gorm.DB, status string, opts ...func(*model.AnalysisJob)) *model.AnalysisJob {
	t.Helper()

	job := &model.AnalysisJob{
		ID:      uuid.NewString(),
		RepoURL: "https://github.com/example/repo",
		Status:  status,
	}

	now := time.Now()
	switch status {
	case model.StatusRunning:
		job.StartedAt = &now
	case model.StatusCompleted:
		started := now.Add(-2 * time.Minute)
		job.StartedAt = &started
		job.CompletedAt = &now
		job.Progress = 100
		job.FinalReport = TestReport()
	case model.StatusFailed:
		started := now.Add(-time.Minute)
		job.StartedAt = &started
		job.CompletedAt = &now
		job.ErrorKind = model.ErrKindRetrieval
		job.ErrorMessage = "clone failed"
	}

	for _, opt := range opts {
		opt(job)
	}

	if err := db.Create(job).Error; err != nil {
		t.Fatalf("Failed to create test job: %v", err)
	}

	return job
}

// WithRepoURL 设置仓库地址
func WithRepoURL(url string) func(*model.AnalysisJob) {
	return func(j *model.AnalysisJob) {
		j.RepoURL = url
	}
}

// WithProgress 设置进度
func WithProgress(progress int) func(*model.AnalysisJob) {
	return func(j *model.AnalysisJob) {
		j.Progress = progress
	}
}

// WithReport 设置最终报告
func WithReport(report *model.FinalReport) func(*model.AnalysisJob) {
	return func(j *model.AnalysisJob) {
		j.FinalReport = report
	}
}

// TestReport 构造一份完整的最终报告
func TestReport() *model.FinalReport {
	return &model.FinalReport{
		RepositoryOverview: model.RepositoryOverview{
			Name:        "repo",
			Languages:   map[string]int{"Go": 30},
			TotalFiles:  42,
			CodeFiles:   30,
			LinesOfCode: 5200,
		},
		Scores: model.Scores{
			OverallQuality:  82,
			Architecture:    80,
			CodeQuality:     82,
			Security:        95,
			Maintainability: 75,
			Performance:     85,
		},
		TechnicalMetrics: model.TechnicalMetrics{
			AverageComplexity: 4.2,
			DependenciesTotal: 12,
		},
		AIInsights: model.AIInsights{
			ArchitecturePattern: "Layered service",
		},
		GeneratedAt: time.Now(),
	}
}

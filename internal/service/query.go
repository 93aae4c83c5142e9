package service

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/repo_insight_server/internal/model"
	"github.com/qs3c/repo_insight_server/internal/model/dto"
	"github.com/qs3c/repo_insight_server/internal/pkg/oss"
	"github.com/qs3c/repo_insight_server/internal/repository"
)

var (
	ErrReportNotReady = errors.New("报告尚未生成，任务未完成")
)

// QueryService 任务的只读查询：进度轮询、结果、列表、仪表盘统计、报告下载
type QueryService struct {
	jobRepo *repository.JobRepository
	store   *oss.Store
}

func NewQueryService(jobRepo *repository.JobRepository, store *oss.Store) *QueryService {
	return &QueryService{jobRepo: jobRepo, store: store}
}

func (s *QueryService) getJob(jobID string) (*model.AnalysisJob, error) {
	job, err := s.jobRepo.GetByID(jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}

// Progress 轮询用的轻量进度视图
func (s *QueryService) Progress(jobID string) (*dto.JobProgress, error) {
	job, err := s.getJob(jobID)
	if err != nil {
		return nil, err
	}

	p := &dto.JobProgress{
		JobID:        job.ID,
		Status:       job.Status,
		Progress:     job.Progress,
		CurrentStage: job.CurrentStage,
		ErrorKind:    job.ErrorKind,
		ErrorMessage: job.ErrorMessage,
		StartedAt:    dto.FormatTime(job.StartedAt),
	}
	if job.StartedAt != nil {
		end := time.Now()
		if job.CompletedAt != nil {
			end = *job.CompletedAt
		}
		p.ElapsedSeconds = int(end.Sub(*job.StartedAt).Seconds())
	}
	return p, nil
}

// Result 任务完整结果，含阶段记录与最终报告
func (s *QueryService) Result(jobID string) (*dto.JobResult, error) {
	job, err := s.getJob(jobID)
	if err != nil {
		return nil, err
	}
	return dto.NewJobResult(job), nil
}

// List 分页任务列表
func (s *QueryService) List(page, pageSize int, status string) ([]*dto.JobSummary, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	jobs, total, err := s.jobRepo.List(page, pageSize, status)
	if err != nil {
		return nil, 0, err
	}

	summaries := make([]*dto.JobSummary, 0, len(jobs))
	for _, job := range jobs {
		summaries = append(summaries, dto.NewJobSummary(job))
	}
	return summaries, total, nil
}

// Report 下载报告产物，返回内容与文件名
func (s *QueryService) Report(jobID string) ([]byte, string, error) {
	job, err := s.getJob(jobID)
	if err != nil {
		return nil, "", err
	}
	if job.Status != model.StatusCompleted || job.ArtifactPath == "" {
		return nil, "", ErrReportNotReady
	}

	data, err := s.store.ReadReport(job.ArtifactPath)
	if err != nil {
		return nil, "", err
	}
	return data, artifactFileName(job.ArtifactPath), nil
}

// Stats 仪表盘聚合统计
func (s *QueryService) Stats() (*dto.DashboardStats, error) {
	counts, err := s.jobRepo.CountByStatus()
	if err != nil {
		return nil, err
	}

	stats := &dto.DashboardStats{
		Completed: counts[model.StatusCompleted],
		Running:   counts[model.StatusRunning],
		Pending:   counts[model.StatusPending],
		Failed:    counts[model.StatusFailed],
	}
	stats.TotalJobs = stats.Completed + stats.Running + stats.Pending + stats.Failed

	// 最近完成的任务参与质量均值与漏洞合计
	completed, err := s.jobRepo.ListCompleted(100)
	if err != nil {
		return nil, err
	}

	qualitySum, qualityCount := 0, 0
	for _, job := range completed {
		if job.FinalReport == nil {
			continue
		}
		qualitySum += job.FinalReport.Scores.OverallQuality
		qualityCount++
		stats.VulnerabilitiesFound += int64(job.FinalReport.TechnicalMetrics.SecurityVulnerabilities)
		if job.FinalReport.AIError {
			stats.DegradedAIReports++
		}
	}
	if qualityCount > 0 {
		stats.AverageQualityScore = float64(qualitySum) / float64(qualityCount)
	}
	return stats, nil
}

// artifactFileName 从产物路径提取下载文件名
func artifactFileName(artifactPath string) string {
	name := artifactPath
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '/' || name[i] == '\\' {
			return name[i+1:]
		}
	}
	return name
}

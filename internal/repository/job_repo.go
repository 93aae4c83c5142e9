package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/repo_insight_server/internal/model"
)

// JobRepository 任务记录的唯一读写入口。
// 写路径只有该任务的执行器，读路径（轮询、列表、统计）均为快照读。
type JobRepository struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Create(job *model.AnalysisJob) error {
	return r.db.Create(job).Error
}

func (r *JobRepository) GetByID(id string) (*model.AnalysisJob, error) {
	var job model.AnalysisJob
	err := r.db.Where("id = ?", id).First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// List 分页列表，status 为空时返回全部
func (r *JobRepository) List(page, pageSize int, status string) ([]*model.AnalysisJob, int64, error) {
	query := r.db.Model(&model.AnalysisJob{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var jobs []*model.AnalysisJob
	err := query.Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&jobs).Error
	return jobs, total, err
}

func (r *JobRepository) Delete(id string) error {
	result := r.db.Where("id = ?", id).Delete(&model.AnalysisJob{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// MarkRunning 将 pending 任务置为 running，返回是否抢到执行权。
// WHERE status=pending 保证同一任务至多有一个执行器生效。
func (r *JobRepository) MarkRunning(id string, startedAt time.Time) (bool, error) {
	result := r.db.Model(&model.AnalysisJob{}).
		Where("id = ? AND status = ?", id, model.StatusPending).
		Updates(map[string]interface{}{
			"status":     model.StatusRunning,
			"started_at": startedAt,
		})
	return result.RowsAffected == 1, result.Error
}

// UpdateRunning 写入当前阶段与进度。
// progress <= ? 条件兜底保证进度单调不减，status=running 保证终态记录不可变。
func (r *JobRepository) UpdateRunning(id, currentStage string, progress int, results model.StageRecords) error {
	return r.db.Model(&model.AnalysisJob{}).
		Where("id = ? AND status = ? AND progress <= ?", id, model.StatusRunning, progress).
		Updates(map[string]interface{}{
			"current_stage": currentStage,
			"progress":      progress,
			"stage_results": results,
		}).Error
}

// Complete 置为完成态：进度 100、清空当前阶段、写入最终报告
func (r *JobRepository) Complete(job *model.AnalysisJob) error {
	result := r.db.Model(&model.AnalysisJob{}).
		Where("id = ? AND status = ?", job.ID, model.StatusRunning).
		Updates(map[string]interface{}{
			"status":        model.StatusCompleted,
			"progress":      100,
			"current_stage": "",
			"stage_results": job.StageResults,
			"final_report":  job.FinalReport,
			"repo_name":     job.RepoName,
			"artifact_path": job.ArtifactPath,
			"completed_at":  job.CompletedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.New("job is not running, refusing to complete")
	}
	return nil
}

// Fail 置为失败态，进度保持在最后一个成功阶段的值
func (r *JobRepository) Fail(job *model.AnalysisJob, kind, message string) error {
	return r.db.Model(&model.AnalysisJob{}).
		Where("id = ? AND status IN ?", job.ID, []string{model.StatusPending, model.StatusRunning}).
		Updates(map[string]interface{}{
			"status":        model.StatusFailed,
			"current_stage": "",
			"stage_results": job.StageResults,
			"error_kind":    kind,
			"error_message": message,
			"repo_name":     job.RepoName,
			"completed_at":  job.CompletedAt,
		}).Error
}

// CountByStatus 各状态任务数
func (r *JobRepository) CountByStatus() (map[string]int64, error) {
	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	err := r.db.Model(&model.AnalysisJob{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

// ListCompleted 已完成任务（带最终报告），供仪表盘聚合
func (r *JobRepository) ListCompleted(limit int) ([]*model.AnalysisJob, error) {
	var jobs []*model.AnalysisJob
	err := r.db.Where("status = ?", model.StatusCompleted).
		Order("completed_at DESC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

// ListTerminalBefore 指定时间之前进入终态的任务，供保留期清理
func (r *JobRepository) ListTerminalBefore(cutoff time.Time) ([]*model.AnalysisJob, error) {
	var jobs []*model.AnalysisJob
	err := r.db.Where("status IN ? AND completed_at < ?",
		[]string{model.StatusCompleted, model.StatusFailed}, cutoff).
		Find(&jobs).Error
	return jobs, err
}

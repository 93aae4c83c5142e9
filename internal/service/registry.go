package service

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/qs3c/repo_insight_server/config"
	"github.com/qs3c/repo_insight_server/internal/model"
	"github.com/qs3c/repo_insight_server/internal/model/dto"
	"github.com/qs3c/repo_insight_server/internal/pkg/oss"
	"github.com/qs3c/repo_insight_server/internal/repository"
	"github.com/qs3c/repo_insight_server/internal/worker"
)

var (
	ErrJobNotFound = errors.New("任务不存在")
)

// JobExecutor 执行一个任务的完整流水线
type JobExecutor interface {
	Execute(ctx context.Context, jobID string)
}

// Registry 任务注册表：创建任务记录并为每个任务启动一个执行 goroutine，
// 持有取消句柄。任务状态的权威来源始终是数据库，注册表只管生命周期
type Registry struct {
	jobRepo  *repository.JobRepository
	executor JobExecutor
	store    *oss.Store
	cfg      *config.Config

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup

	// 并发准入，nil 表示不限制
	sem chan struct{}
}

func NewRegistry(jobRepo *repository.JobRepository, executor JobExecutor, store *oss.Store, cfg *config.Config) *Registry {
	r := &Registry{
		jobRepo:  jobRepo,
		executor: executor,
		store:    store,
		cfg:      cfg,
		cancels:  make(map[string]context.CancelFunc),
	}
	if cfg.Pipeline.MaxConcurrent > 0 {
		r.sem = make(chan struct{}, cfg.Pipeline.MaxConcurrent)
	}
	return r
}

// Start 校验请求、落库 pending 任务并启动执行 goroutine。
// 校验失败返回 *worker.CloneError，带给用户的中文提示
func (r *Registry) Start(req *dto.StartAnalysisRequest) (*model.AnalysisJob, error) {
	if err := worker.ValidateRepoURL(req.RepoURL); err != nil {
		return nil, err
	}

	job := &model.AnalysisJob{
		ID:          uuid.NewString(),
		RepoURL:     req.RepoURL,
		RepoName:    worker.RepoNameFromURL(req.RepoURL),
		AccessToken: req.AccessToken,
		Status:      model.StatusPending,
	}
	if err := r.jobRepo.Create(job); err != nil {
		return nil, err
	}

	r.launch(job.ID)
	log.Printf("Job %s: accepted for %s", job.ID, job.RepoURL)
	return job, nil
}

func (r *Registry) launch(jobID string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.Pipeline.JobTimeout())

	r.mu.Lock()
	r.cancels[jobID] = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()
		defer func() {
			r.mu.Lock()
			delete(r.cancels, jobID)
			r.mu.Unlock()
		}()

		// 并发准入。等待期间被取消或超时由执行器在首个阶段边界处理
		if r.sem != nil {
			select {
			case r.sem <- struct{}{}:
				defer func() { <-r.sem }()
			case <-ctx.Done():
			}
		}

		r.executor.Execute(ctx, jobID)
	}()
}

// Cancel 取消执行中的任务。取消在阶段边界生效，不立即中断当前阶段。
// 本进程没有该任务的执行器时按数据库状态处理存量 pending 记录
func (r *Registry) Cancel(jobID string) error {
	r.mu.Lock()
	cancel, ok := r.cancels[jobID]
	r.mu.Unlock()

	if ok {
		cancel()
		return nil
	}

	job, err := r.jobRepo.GetByID(jobID)
	if err != nil {
		return ErrJobNotFound
	}
	if job.Status == model.StatusPending || job.Status == model.StatusRunning {
		completedAt := time.Now()
		job.CompletedAt = &completedAt
		return r.jobRepo.Fail(job, model.ErrKindCancelled, "分析任务已被取消")
	}
	// 终态任务取消是空操作
	return nil
}

// Delete 删除任务记录及其报告产物。执行中的任务先取消
func (r *Registry) Delete(jobID string) error {
	job, err := r.jobRepo.GetByID(jobID)
	if err != nil {
		return ErrJobNotFound
	}

	if err := r.Cancel(jobID); err != nil && !errors.Is(err, ErrJobNotFound) {
		return err
	}

	if job.ArtifactPath != "" {
		if err := r.store.DeleteReport(job.ArtifactPath); err != nil {
			log.Printf("Job %s: artifact delete failed: %v", jobID, err)
		}
	}

	if err := r.jobRepo.Delete(jobID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrJobNotFound
		}
		return err
	}
	log.Printf("Job %s: deleted", jobID)
	return nil
}

// RecoverOrphans 服务启动时把上一次进程遗留的 pending/running 任务
// 置为失败，这些任务的执行 goroutine 已随旧进程消失
func (r *Registry) RecoverOrphans() error {
	jobs, _, err := r.jobRepo.List(1, 1000, model.StatusRunning)
	if err != nil {
		return err
	}
	pending, _, err := r.jobRepo.List(1, 1000, model.StatusPending)
	if err != nil {
		return err
	}
	jobs = append(jobs, pending...)

	for _, job := range jobs {
		completedAt := time.Now()
		job.CompletedAt = &completedAt
		if err := r.jobRepo.Fail(job, model.ErrKindTool, "服务重启，任务中断，请重新发起分析"); err != nil {
			log.Printf("Job %s: orphan recovery failed: %v", job.ID, err)
			continue
		}
		log.Printf("Job %s: marked failed after restart", job.ID)
	}
	return nil
}

// Shutdown 等待所有执行 goroutine 退出，最多等待 timeout
func (r *Registry) Shutdown(timeout time.Duration) {
	r.mu.Lock()
	for _, cancel := range r.cancels {
		cancel()
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		log.Println("[Registry] shutdown timed out waiting for executors")
	}
}

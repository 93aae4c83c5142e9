package cron

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/qs3c/repo_insight_server/internal/pkg/oss"
	"github.com/qs3c/repo_insight_server/internal/repository"
)

// Service 后台定时任务：保留期清扫 + 遗留克隆目录清理
type Service struct {
	jobRepo       *repository.JobRepository
	store         *oss.Store
	workspaceDir  string
	retentionDays int
	stopChan      chan struct{}
}

func NewService(
	jobRepo *repository.JobRepository,
	store *oss.Store,
	workspaceDir string,
	retentionDays int,
) *Service {
	return &Service{
		jobRepo:       jobRepo,
		store:         store,
		workspaceDir:  workspaceDir,
		retentionDays: retentionDays,
		stopChan:      make(chan struct{}),
	}
}

// Start 启动定时任务
func (s *Service) Start() {
	go s.runRetentionSweep()
	go s.runWorkspaceCleanup()
	log.Println("Cron service started (retention sweep + workspace cleanup)")
}

// Stop 停止定时任务
func (s *Service) Stop() {
	close(s.stopChan)
	log.Println("Cron service stopped")
}

// runRetentionSweep 每天执行一次保留期清扫
func (s *Service) runRetentionSweep() {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			if n, err := s.SweepExpired(); err != nil {
				log.Printf("Retention sweep failed: %v", err)
			} else if n > 0 {
				log.Printf("Retention sweep: removed %d jobs", n)
			}
		}
	}
}

// SweepExpired 删除超过保留期的终态任务及其报告产物，返回删除数量。
// retentionDays <= 0 表示永不清理
func (s *Service) SweepExpired() (int, error) {
	if s.retentionDays <= 0 {
		return 0, nil
	}

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	jobs, err := s.jobRepo.ListTerminalBefore(cutoff)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, job := range jobs {
		if job.ArtifactPath != "" {
			if err := s.store.DeleteReport(job.ArtifactPath); err != nil {
				log.Printf("Job %s: artifact delete failed: %v", job.ID, err)
			}
		}
		if err := s.jobRepo.Delete(job.ID); err != nil {
			log.Printf("Job %s: record delete failed: %v", job.ID, err)
			continue
		}
		removed++
	}
	return removed, nil
}

// runWorkspaceCleanup 每小时清理一次遗留的克隆目录
func (s *Service) runWorkspaceCleanup() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			if n := s.CleanupWorkspace(2 * time.Hour); n > 0 {
				log.Printf("Workspace cleanup: removed %d stale clone dirs", n)
			}
		}
	}
}

// CleanupWorkspace 清理工作目录下超过 expire 未更新的 analysis_* 目录。
// 正常流程执行器自己清理，这里兜底处理进程崩溃遗留的目录
func (s *Service) CleanupWorkspace(expire time.Duration) int {
	if s.workspaceDir == "" {
		return 0
	}

	entries, err := os.ReadDir(s.workspaceDir)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("Workspace cleanup: failed to read dir %s: %v", s.workspaceDir, err)
		}
		return 0
	}

	cleaned := 0
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), "analysis_") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if time.Since(info.ModTime()) > expire {
			dirPath := filepath.Join(s.workspaceDir, entry.Name())
			if err := os.RemoveAll(dirPath); err != nil {
				log.Printf("Workspace cleanup: failed to remove %s: %v", dirPath, err)
			} else {
				cleaned++
			}
		}
	}
	return cleaned
}

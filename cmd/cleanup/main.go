package main

import (
	"flag"
	"log"
	"time"

	"github.com/qs3c/repo_insight_server/config"
	"github.com/qs3c/repo_insight_server/internal/database"
	"github.com/qs3c/repo_insight_server/internal/pkg/cron"
	"github.com/qs3c/repo_insight_server/internal/pkg/oss"
	"github.com/qs3c/repo_insight_server/internal/repository"
)

// 一次性清理命令：删除超过保留期的任务记录与报告产物，
// 并清掉工作区里残留的克隆目录。适合在不常驻的定时器里跑。
func main() {
	configPath := flag.String("config", "config.yaml", "配置文件路径")
	workspaceExpire := flag.Duration("workspace-expire", 2*time.Hour, "工作区目录过期时长")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}

	var ossClient *oss.Client
	if cfg.OSS.Endpoint != "" {
		ossClient, err = oss.NewClient(&cfg.OSS)
		if err != nil {
			log.Fatalf("Failed to init oss client: %v", err)
		}
	}
	store := oss.NewStore(ossClient, cfg.Artifacts.Dir)

	jobRepo := repository.NewJobRepository(db)
	svc := cron.NewService(jobRepo, store, cfg.Pipeline.WorkspaceDir, cfg.Artifacts.RetentionDays)

	removed, err := svc.SweepExpired()
	if err != nil {
		log.Printf("Retention sweep failed: %v", err)
	}
	cleaned := svc.CleanupWorkspace(*workspaceExpire)
	log.Printf("Cleanup finished: %d expired jobs removed, %d stale clone dirs cleaned", removed, cleaned)
}

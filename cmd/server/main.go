package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/qs3c/repo_insight_server/config"
	"github.com/qs3c/repo_insight_server/internal/ai"
	"github.com/qs3c/repo_insight_server/internal/api"
	"github.com/qs3c/repo_insight_server/internal/api/handler"
	"github.com/qs3c/repo_insight_server/internal/database"
	"github.com/qs3c/repo_insight_server/internal/pkg/cron"
	"github.com/qs3c/repo_insight_server/internal/pkg/oss"
	"github.com/qs3c/repo_insight_server/internal/pkg/pubsub"
	"github.com/qs3c/repo_insight_server/internal/pkg/ws"
	"github.com/qs3c/repo_insight_server/internal/repository"
	"github.com/qs3c/repo_insight_server/internal/service"
	"github.com/qs3c/repo_insight_server/internal/worker"
)

func main() {
	// 加载配置
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化数据库
	db, err := database.New(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}
	log.Println("Database connected")

	// 初始化 Redis（可选，仅进度推送使用）
	var publisher *pubsub.Publisher
	var subscriber *pubsub.Subscriber
	var redisClient *redis.Client
	if cfg.Redis.Host != "" {
		redisClient, err = database.NewRedis(&cfg.Redis)
		if err != nil {
			log.Printf("Redis unavailable, realtime progress push disabled: %v", err)
			redisClient = nil
		} else {
			publisher = pubsub.NewPublisher(redisClient)
			subscriber = pubsub.NewSubscriber(redisClient)
			log.Println("Redis connected")
		}
	}

	// 初始化报告存储（OSS 未配置时落本地目录）
	var ossClient *oss.Client
	if cfg.OSS.Endpoint != "" {
		ossClient, err = oss.NewClient(&cfg.OSS)
		if err != nil {
			log.Fatalf("Failed to init oss client: %v", err)
		}
		log.Println("OSS client initialized")
	}
	store := oss.NewStore(ossClient, cfg.Artifacts.Dir)

	// 初始化 AI 提供方（未配置 API Key 时 AI 阶段降级为静态结论）
	var provider ai.Provider
	if p := ai.NewOpenAIProvider(&cfg.AI); p != nil {
		provider = p
	} else {
		log.Println("AI provider not configured, insight stages will degrade")
	}

	// 初始化分析流水线
	jobRepo := repository.NewJobRepository(db)
	executor := worker.NewExecutor(jobRepo, store, publisher, provider, cfg)
	registry := service.NewRegistry(jobRepo, executor, store, cfg)
	query := service.NewQueryService(jobRepo, store)

	// 服务重启后清理无主任务
	if err := registry.RecoverOrphans(); err != nil {
		log.Printf("Failed to recover orphan jobs: %v", err)
	}

	// WebSocket Hub：把 Redis 进度消息转发给订阅连接
	hub := ws.NewHub()
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()
	if subscriber != nil {
		go func() {
			err := subscriber.Subscribe(rootCtx, func(msg *pubsub.ProgressMessage) {
				_ = hub.SendToJob(msg.JobID, &ws.Message{Type: "job_progress", Data: msg})
			})
			if err != nil && rootCtx.Err() == nil {
				log.Printf("Progress subscription stopped: %v", err)
			}
		}()
	}

	// 初始化 Handler 与路由
	analysisHandler := handler.NewAnalysisHandler(registry, query)
	dashboardHandler := handler.NewDashboardHandler(query)
	storageMode := "local"
	if ossClient != nil {
		storageMode = "oss"
	}
	healthHandler := handler.NewHealthHandler(db, redisClient, provider != nil, storageMode)
	websocketHandler := handler.NewWebSocketHandler(hub, query)

	engine := api.NewRouter(analysisHandler, dashboardHandler, healthHandler, websocketHandler, cfg).Setup()

	// 定时清理：报告保留期 + 工作区残留目录
	cronService := cron.NewService(jobRepo, store, cfg.Pipeline.WorkspaceDir, cfg.Artifacts.RetentionDays)
	cronService.Start()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: engine,
	}

	go func() {
		log.Printf("Server starting on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// 优雅退出：先停收新请求，再等执行中的任务收尾
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown: %v", err)
	}

	cronService.Stop()
	rootCancel()
	registry.Shutdown(30 * time.Second)
	log.Println("Server exited")
}

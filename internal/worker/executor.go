package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/qs3c/repo_insight_server/config"
	"github.com/qs3c/repo_insight_server/internal/ai"
	"github.com/qs3c/repo_insight_server/internal/analyzer"
	"github.com/qs3c/repo_insight_server/internal/model"
	"github.com/qs3c/repo_insight_server/internal/pkg/oss"
	"github.com/qs3c/repo_insight_server/internal/pkg/pubsub"
	"github.com/qs3c/repo_insight_server/internal/report"
	"github.com/qs3c/repo_insight_server/internal/repository"
)

// 流水线阶段名
const (
	StageClone          = "clone"
	StageInventory      = "inventory"
	StageStaticAnalysis = "static_analysis"
	StageAIArchitecture = "ai_architecture"
	StageAIQuality      = "ai_quality"
	StageAISecurity     = "ai_security"
	StageSynthesize     = "synthesize"
	StageFinalize       = "finalize"
)

// 阶段完成后的累计进度
var stageProgress = map[string]int{
	StageClone:          10,
	StageInventory:      25,
	StageStaticAnalysis: 40,
	StageAIArchitecture: 55,
	StageAIQuality:      70,
	StageAISecurity:     85,
	StageSynthesize:     95,
	StageFinalize:       100,
}

type stageOutcome int

const (
	outcomeSuccess stageOutcome = iota
	outcomeDegraded
	outcomeFatal
)

// stageResult 单个阶段的执行结果。fatal 结果带错误类别与用户提示，
// degraded 结果只带错误摘要，流水线继续
type stageResult struct {
	outcome stageOutcome
	output  map[string]interface{}
	err     error
	errKind string
	userMsg string
}

func success(output map[string]interface{}) *stageResult {
	return &stageResult{outcome: outcomeSuccess, output: output}
}

func degraded(err error, output map[string]interface{}) *stageResult {
	return &stageResult{outcome: outcomeDegraded, err: err, output: output}
}

func fatal(errKind, userMsg string, err error) *stageResult {
	return &stageResult{outcome: outcomeFatal, errKind: errKind, userMsg: userMsg, err: err}
}

type stage struct {
	name string
	run  func(ctx context.Context, jc *jobContext) *stageResult
}

// jobContext 单次任务执行的中间产物，随阶段推进逐步填充
type jobContext struct {
	job          *model.AnalysisJob
	repoDir      string
	facts        *analyzer.Facts
	snippets     []ai.Snippet
	archInsight  *ai.Insight
	qualInsight  *ai.Insight
	secInsight   *ai.Insight
	aiErrors     []string
	finalReport  *model.FinalReport
	artifactPath string
}

// Executor 执行完整的分析流水线。每个任务由自己的 goroutine 调用
// Execute 一次，阶段串行推进
type Executor struct {
	jobRepo   *repository.JobRepository
	store     *oss.Store
	publisher *pubsub.Publisher
	provider  ai.Provider
	cfg       *config.Config

	// 测试注入点，默认走 git 浅克隆
	cloneFn func(ctx context.Context, job *model.AnalysisJob, destDir string) error
}

// NewExecutor 创建流水线执行器。provider 为 nil 时 AI 阶段全部降级
func NewExecutor(
	jobRepo *repository.JobRepository,
	store *oss.Store,
	publisher *pubsub.Publisher,
	provider ai.Provider,
	cfg *config.Config,
) *Executor {
	e := &Executor{
		jobRepo:   jobRepo,
		store:     store,
		publisher: publisher,
		provider:  provider,
		cfg:       cfg,
	}
	e.cloneFn = func(ctx context.Context, job *model.AnalysisJob, destDir string) error {
		return CloneRepoWithRetry(ctx, job.RepoURL, job.AccessToken, destDir,
			cfg.Pipeline.CloneTimeoutSeconds, cfg.Pipeline.CloneMaxRetries)
	}
	return e
}

// Execute 执行一个待处理任务。ctx 取消或超时会在阶段边界生效，
// 任务记录的最终状态只会是 completed 或 failed
func (e *Executor) Execute(ctx context.Context, jobID string) {
	job, err := e.jobRepo.GetByID(jobID)
	if err != nil {
		log.Printf("Job %s: load failed: %v", jobID, err)
		return
	}

	// pending -> running 的原子抢占，防止重复执行
	startedAt := time.Now()
	claimed, err := e.jobRepo.MarkRunning(jobID, startedAt)
	if err != nil {
		log.Printf("Job %s: mark running failed: %v", jobID, err)
		return
	}
	if !claimed {
		log.Printf("Job %s: not pending, skipping", jobID)
		return
	}
	job.Status = model.StatusRunning
	job.StartedAt = &startedAt

	jc := &jobContext{
		job:     job,
		repoDir: RepoTempDir(e.cfg.Pipeline.WorkspaceDir, jobID),
	}
	defer func() {
		if err := CleanupRepo(e.cfg.Pipeline.WorkspaceDir, jc.repoDir); err != nil {
			log.Printf("Job %s: workspace cleanup: %v", jobID, err)
		}
	}()

	stages := []stage{
		{StageClone, e.runClone},
		{StageInventory, e.runInventory},
		{StageStaticAnalysis, e.runStaticAnalysis},
		{StageAIArchitecture, e.runAIArchitecture},
		{StageAIQuality, e.runAIQuality},
		{StageAISecurity, e.runAISecurity},
		{StageSynthesize, e.runSynthesize},
		{StageFinalize, e.runFinalize},
	}

	for _, st := range stages {
		// 取消与全局超时在阶段边界生效
		if err := ctx.Err(); err != nil {
			e.failJob(jc, st.name, interruptKind(err), interruptMessage(err), err)
			return
		}

		e.beginStage(job, st.name)

		stageCtx, cancel := context.WithTimeout(ctx, e.stageTimeout(st.name))
		res := st.run(stageCtx, jc)
		cancel()

		// 阶段因取消或全局超时中断时不记录该阶段结果
		if err := ctx.Err(); err != nil {
			e.failJob(jc, st.name, interruptKind(err), interruptMessage(err), err)
			return
		}

		switch res.outcome {
		case outcomeFatal:
			e.failJob(jc, st.name, res.errKind, res.userMsg, res.err)
			return

		case outcomeDegraded:
			log.Printf("Job %s: stage %s degraded: %v", jobID, st.name, res.err)
			jc.aiErrors = append(jc.aiErrors, fmt.Sprintf("%s: %v", st.name, res.err))
			e.recordStage(job, st.name, model.StageDegraded, res.output, res.err.Error())

		case outcomeSuccess:
			e.recordStage(job, st.name, model.StageSuccess, res.output, "")
		}
	}

	e.completeJob(jc)
}

func (e *Executor) stageTimeout(stageName string) time.Duration {
	switch stageName {
	case StageClone:
		// 克隆自带重试与退避，阶段预算要容纳全部尝试
		base := time.Duration(e.cfg.Pipeline.CloneTimeoutSeconds) * time.Second
		if base <= 0 {
			base = 120 * time.Second
		}
		return base * time.Duration(e.cfg.Pipeline.CloneMaxRetries+2)
	case StageAIArchitecture, StageAIQuality, StageAISecurity:
		if e.cfg.AI.TimeoutSeconds > 0 {
			return time.Duration(e.cfg.AI.TimeoutSeconds) * time.Second
		}
	}
	return e.cfg.Pipeline.StageTimeout()
}

// recordStage 追加阶段记录并推进进度。进度单调递增由更新条件保证。
// 进度 100 不在 running 状态下落库，只随 Complete 一起原子写入，
// 轮询方看到 100 时状态一定已经是 completed
func (e *Executor) recordStage(job *model.AnalysisJob, stageName, outcome string, output map[string]interface{}, errMsg string) {
	job.StageResults = append(job.StageResults, model.StageRecord{
		Name:       stageName,
		Outcome:    outcome,
		Output:     output,
		Error:      errMsg,
		FinishedAt: time.Now(),
	})
	job.Progress = stageProgress[stageName]
	job.CurrentStage = stageName

	if job.Progress >= 100 {
		return
	}

	if err := e.jobRepo.UpdateRunning(job.ID, stageName, job.Progress, job.StageResults); err != nil {
		log.Printf("Job %s: progress update failed: %v", job.ID, err)
	}

	e.publisher.PublishProgress(context.Background(), &pubsub.ProgressMessage{
		JobID:    job.ID,
		Status:   model.StatusRunning,
		Stage:    stageName,
		Progress: job.Progress,
	})
}

// beginStage 在阶段开始时把阶段标签落库（进度不变），
// 执行中的长阶段对轮询方也可见
func (e *Executor) beginStage(job *model.AnalysisJob, stageName string) {
	job.CurrentStage = stageName
	if err := e.jobRepo.UpdateRunning(job.ID, stageName, job.Progress, job.StageResults); err != nil {
		log.Printf("Job %s: stage label update failed: %v", job.ID, err)
	}

	e.publisher.PublishProgress(context.Background(), &pubsub.ProgressMessage{
		JobID:    job.ID,
		Status:   model.StatusRunning,
		Stage:    stageName,
		Progress: job.Progress,
	})
}

// failJob 终结失败任务。进度保持在最后一个成功阶段的值。
// 归档阶段已经写出的产物此时不被任何记录引用，一并回收
func (e *Executor) failJob(jc *jobContext, stageName, errKind, userMsg string, err error) {
	job := jc.job
	log.Printf("Job %s: failed at stage %s (%s): %v", job.ID, stageName, errKind, err)

	completedAt := time.Now()
	job.CompletedAt = &completedAt
	if dbErr := e.jobRepo.Fail(job, errKind, userMsg); dbErr != nil {
		log.Printf("Job %s: persist failure state: %v", job.ID, dbErr)
	}

	e.reclaimArtifact(jc)

	e.publisher.PublishProgress(context.Background(), &pubsub.ProgressMessage{
		JobID:        job.ID,
		Status:       model.StatusFailed,
		Stage:        stageName,
		Progress:     job.Progress,
		ErrorKind:    errKind,
		ErrorMessage: userMsg,
	})
}

func (e *Executor) completeJob(jc *jobContext) {
	job := jc.job
	job.FinalReport = jc.finalReport
	job.ArtifactPath = jc.artifactPath
	completedAt := time.Now()
	job.CompletedAt = &completedAt

	if err := e.jobRepo.Complete(job); err != nil {
		// 记录已被删除或不再处于 running，刚写出的产物没有归属
		log.Printf("Job %s: persist completion: %v", job.ID, err)
		e.reclaimArtifact(jc)
		return
	}

	e.publisher.PublishProgress(context.Background(), &pubsub.ProgressMessage{
		JobID:    job.ID,
		Status:   model.StatusCompleted,
		Progress: 100,
		Message:  "分析完成",
	})

	elapsed := int(time.Since(*job.StartedAt).Seconds())
	log.Printf("Job %s: completed in %ds, quality=%d, ai_error=%v",
		job.ID, elapsed, jc.finalReport.Scores.OverallQuality, jc.finalReport.AIError)
}

// reclaimArtifact 删除失去归属的报告产物
func (e *Executor) reclaimArtifact(jc *jobContext) {
	if jc.artifactPath == "" {
		return
	}
	if err := e.store.DeleteReport(jc.artifactPath); err != nil {
		log.Printf("Job %s: orphan artifact cleanup failed: %v", jc.job.ID, err)
	}
}

func interruptKind(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return model.ErrKindTimeout
	}
	return model.ErrKindCancelled
}

func interruptMessage(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "分析超出时间预算，已终止"
	}
	return "分析任务已被取消"
}

// ---- 阶段实现 ----

func (e *Executor) runClone(ctx context.Context, jc *jobContext) *stageResult {
	log.Printf("Job %s: cloning %s", jc.job.ID, jc.job.RepoURL)

	if err := e.cloneFn(ctx, jc.job, jc.repoDir); err != nil {
		userMsg := "克隆仓库失败，请检查地址后重试"
		var ce *CloneError
		if errors.As(err, &ce) {
			userMsg = ce.UserMessage
		}
		return fatal(model.ErrKindRetrieval, userMsg, err)
	}
	return success(map[string]interface{}{"repo_url": jc.job.RepoURL})
}

func (e *Executor) runInventory(ctx context.Context, jc *jobContext) *stageResult {
	inv, err := analyzer.ScanRepository(jc.repoDir, jc.job.RepoName)
	if err != nil {
		return fatal(model.ErrKindTool, "清点仓库文件失败", err)
	}
	jc.facts = &analyzer.Facts{Inventory: inv}
	jc.snippets = ai.CollectSnippets(jc.repoDir, inv, e.cfg.AI.MaxCodeFiles, e.cfg.AI.MaxFileChars)

	return success(map[string]interface{}{
		"total_files":   inv.TotalFiles,
		"code_files":    inv.CodeFiles,
		"lines_of_code": inv.LinesOfCode,
		"language":      inv.PrimaryLanguage(),
	})
}

func (e *Executor) runStaticAnalysis(ctx context.Context, jc *jobContext) *stageResult {
	jc.facts.Complexity = analyzer.MeasureComplexity(jc.repoDir, jc.facts.Inventory)
	jc.facts.Security = analyzer.ScanSecurity(jc.repoDir, jc.facts.Inventory)
	jc.facts.Dependencies = analyzer.AuditDependencies(jc.repoDir)

	return success(map[string]interface{}{
		"average_complexity": jc.facts.Complexity.AverageComplexity,
		"vulnerabilities":    len(jc.facts.Security.Vulnerabilities),
		"risk_level":         jc.facts.Security.RiskLevel,
		"dependencies":       jc.facts.Dependencies.Total,
	})
}

func (e *Executor) runAIArchitecture(ctx context.Context, jc *jobContext) *stageResult {
	insight, res := e.runAIStage(ctx, jc, "architecture", func(in *ai.AnalysisInput) (*ai.Insight, error) {
		return e.provider.ArchitectureInsight(ctx, in)
	})
	jc.archInsight = insight
	return res
}

func (e *Executor) runAIQuality(ctx context.Context, jc *jobContext) *stageResult {
	insight, res := e.runAIStage(ctx, jc, "quality", func(in *ai.AnalysisInput) (*ai.Insight, error) {
		return e.provider.QualityInsight(ctx, in)
	})
	jc.qualInsight = insight
	return res
}

func (e *Executor) runAISecurity(ctx context.Context, jc *jobContext) *stageResult {
	insight, res := e.runAIStage(ctx, jc, "security", func(in *ai.AnalysisInput) (*ai.Insight, error) {
		return e.provider.SecurityInsight(ctx, in)
	})
	jc.secInsight = insight
	return res
}

// runAIStage AI 阶段公共逻辑：provider 缺失或调用失败都降级，
// 原始回复截断后写进阶段输出供排障
func (e *Executor) runAIStage(ctx context.Context, jc *jobContext, op string, call func(*ai.AnalysisInput) (*ai.Insight, error)) (*ai.Insight, *stageResult) {
	if e.provider == nil {
		return nil, degraded(fmt.Errorf("AI provider not configured"), nil)
	}

	in := &ai.AnalysisInput{
		RepoName:        jc.job.RepoName,
		PrimaryLanguage: jc.facts.Inventory.PrimaryLanguage(),
		Facts:           jc.facts,
		Snippets:        jc.snippets,
	}

	insight, err := call(in)
	if err != nil {
		output := map[string]interface{}{}
		var pe *ai.ProviderError
		if errors.As(err, &pe) && pe.Raw != "" {
			output["raw_response"] = truncate(pe.Raw, 2000)
		}
		return nil, degraded(err, output)
	}

	return insight, success(map[string]interface{}{
		"summary": insight.Summary,
		"score":   insight.Score,
	})
}

func (e *Executor) runSynthesize(ctx context.Context, jc *jobContext) *stageResult {
	jc.finalReport = report.Synthesize(&report.Inputs{
		RepoName:     jc.job.RepoName,
		Facts:        jc.facts,
		Architecture: jc.archInsight,
		Quality:      jc.qualInsight,
		Security:     jc.secInsight,
		AIErrors:     jc.aiErrors,
	})

	return success(map[string]interface{}{
		"overall_quality": jc.finalReport.Scores.OverallQuality,
		"ai_error":        jc.finalReport.AIError,
	})
}

func (e *Executor) runFinalize(ctx context.Context, jc *jobContext) *stageResult {
	name := report.ArtifactName(jc.job.ID, time.Now())
	data := report.RenderText(jc.job.ID, jc.finalReport)

	path, err := e.store.SaveReport(name, data)
	if err != nil {
		return fatal(model.ErrKindTool, "报告归档失败，请稍后重试", err)
	}
	jc.artifactPath = path

	return success(map[string]interface{}{"artifact": name})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

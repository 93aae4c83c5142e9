package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/repo_insight_server/config"
	"github.com/qs3c/repo_insight_server/internal/model"
	"github.com/qs3c/repo_insight_server/internal/model/dto"
	"github.com/qs3c/repo_insight_server/internal/pkg/oss"
	"github.com/qs3c/repo_insight_server/internal/repository"
	"github.com/qs3c/repo_insight_server/internal/testutil"
)

// stubExecutor 记录执行调用，可选择阻塞到 ctx 取消
type stubExecutor struct {
	mu       sync.Mutex
	executed []string
	block    bool
	repo     *repository.JobRepository
	done     chan string
}

func (s *stubExecutor) Execute(ctx context.Context, jobID string) {
	s.mu.Lock()
	s.executed = append(s.executed, jobID)
	s.mu.Unlock()

	if s.block {
		<-ctx.Done()
		// 被取消后像真实执行器一样终结任务
		job, err := s.repo.GetByID(jobID)
		if err == nil {
			now := time.Now()
			job.CompletedAt = &now
			s.repo.Fail(job, model.ErrKindCancelled, "分析任务已被取消")
		}
	}
	if s.done != nil {
		s.done <- jobID
	}
}

func setupRegistry(t *testing.T, exec *stubExecutor) (*Registry, *repository.JobRepository, *gorm.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	jobRepo := repository.NewJobRepository(db)
	exec.repo = jobRepo
	cfg := &config.Config{
		Pipeline: config.PipelineConfig{JobTimeoutMinutes: 1, MaxConcurrent: 4},
	}
	return NewRegistry(jobRepo, exec, oss.NewStore(nil, t.TempDir()), cfg), jobRepo, db
}

func TestRegistryStart(t *testing.T) {
	exec := &stubExecutor{done: make(chan string, 1)}
	registry, jobRepo, _ := setupRegistry(t, exec)

	job, err := registry.Start(&dto.StartAnalysisRequest{RepoURL: "https://github.com/acme/demo"})
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, model.StatusPending, job.Status)
	assert.Equal(t, "demo", job.RepoName)

	select {
	case id := <-exec.done:
		assert.Equal(t, job.ID, id)
	case <-time.After(2 * time.Second):
		t.Fatal("executor was not invoked")
	}

	got, err := jobRepo.GetByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.RepoURL, got.RepoURL)
}

func TestRegistryStartInvalidURL(t *testing.T) {
	registry, _, _ := setupRegistry(t, &stubExecutor{})

	tests := []string{
		"",
		"ftp://github.com/acme/demo",
		"https://github.com/acme",
	}
	for _, url := range tests {
		_, err := registry.Start(&dto.StartAnalysisRequest{RepoURL: url})
		assert.Error(t, err, url)
	}
}

func TestRegistryCancelRunningJob(t *testing.T) {
	exec := &stubExecutor{block: true, done: make(chan string, 1)}
	registry, jobRepo, _ := setupRegistry(t, exec)

	job, err := registry.Start(&dto.StartAnalysisRequest{RepoURL: "https://github.com/acme/demo"})
	require.NoError(t, err)

	// 等执行 goroutine 跑起来
	require.Eventually(t, func() bool {
		exec.mu.Lock()
		defer exec.mu.Unlock()
		return len(exec.executed) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, registry.Cancel(job.ID))

	select {
	case <-exec.done:
	case <-time.After(2 * time.Second):
		t.Fatal("executor did not observe cancellation")
	}

	got, err := jobRepo.GetByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.Equal(t, model.ErrKindCancelled, got.ErrorKind)
}

func TestRegistryCancelUnknownJob(t *testing.T) {
	registry, _, _ := setupRegistry(t, &stubExecutor{})
	assert.ErrorIs(t, registry.Cancel("no-such-job"), ErrJobNotFound)
}

func TestRegistryCancelTerminalJobIsNoop(t *testing.T) {
	registry, _, db := setupRegistry(t, &stubExecutor{})
	job := testutil.TestJob(t, db, model.StatusCompleted)

	require.NoError(t, registry.Cancel(job.ID))

	got, err := registry.jobRepo.GetByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
}

func TestRegistryDelete(t *testing.T) {
	registry, jobRepo, db := setupRegistry(t, &stubExecutor{})
	job := testutil.TestJob(t, db, model.StatusCompleted)

	require.NoError(t, registry.Delete(job.ID))

	_, err := jobRepo.GetByID(job.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	assert.ErrorIs(t, registry.Delete(job.ID), ErrJobNotFound)
}

func TestRegistryRecoverOrphans(t *testing.T) {
	registry, jobRepo, db := setupRegistry(t, &stubExecutor{})
	running := testutil.TestJob(t, db, model.StatusRunning)
	pending := testutil.TestJob(t, db, model.StatusPending)
	completed := testutil.TestJob(t, db, model.StatusCompleted)

	require.NoError(t, registry.RecoverOrphans())

	for _, id := range []string{running.ID, pending.ID} {
		got, err := jobRepo.GetByID(id)
		require.NoError(t, err)
		assert.Equal(t, model.StatusFailed, got.Status)
		assert.Equal(t, model.ErrKindTool, got.ErrorKind)
	}

	got, err := jobRepo.GetByID(completed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
}

func TestQueryProgress(t *testing.T) {
	db := testutil.SetupTestDB(t)
	jobRepo := repository.NewJobRepository(db)
	query := NewQueryService(jobRepo, oss.NewStore(nil, t.TempDir()))

	job := testutil.TestJob(t, db, model.StatusRunning, testutil.WithProgress(40))

	p, err := query.Progress(job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRunning, p.Status)
	assert.Equal(t, 40, p.Progress)
	assert.NotEmpty(t, p.StartedAt)

	_, err = query.Progress("no-such-job")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestQueryResultAndList(t *testing.T) {
	db := testutil.SetupTestDB(t)
	jobRepo := repository.NewJobRepository(db)
	query := NewQueryService(jobRepo, oss.NewStore(nil, t.TempDir()))

	completed := testutil.TestJob(t, db, model.StatusCompleted)
	testutil.TestJob(t, db, model.StatusFailed)

	result, err := query.Result(completed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, result.Status)
	require.NotNil(t, result.FinalReport)

	all, total, err := query.List(1, 20, "")
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, all, 2)

	failed, total, err := query.List(1, 20, model.StatusFailed)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, failed, 1)
	assert.Equal(t, model.StatusFailed, failed[0].Status)
}

func TestQueryReport(t *testing.T) {
	db := testutil.SetupTestDB(t)
	jobRepo := repository.NewJobRepository(db)
	store := oss.NewStore(nil, t.TempDir())
	query := NewQueryService(jobRepo, store)

	path, err := store.SaveReport("insight_j_20250101000000.txt", []byte("body"))
	require.NoError(t, err)

	job := testutil.TestJob(t, db, model.StatusCompleted)
	require.NoError(t, db.Model(job).Update("artifact_path", path).Error)

	data, name, err := query.Report(job.ID)
	require.NoError(t, err)
	assert.Equal(t, "body", string(data))
	assert.Equal(t, "insight_j_20250101000000.txt", name)

	// 未完成任务没有报告
	running := testutil.TestJob(t, db, model.StatusRunning)
	_, _, err = query.Report(running.ID)
	assert.ErrorIs(t, err, ErrReportNotReady)
}

func TestQueryStats(t *testing.T) {
	db := testutil.SetupTestDB(t)
	jobRepo := repository.NewJobRepository(db)
	query := NewQueryService(jobRepo, oss.NewStore(nil, t.TempDir()))

	testutil.TestJob(t, db, model.StatusCompleted)
	testutil.TestJob(t, db, model.StatusCompleted)
	testutil.TestJob(t, db, model.StatusFailed)
	testutil.TestJob(t, db, model.StatusRunning)

	stats, err := query.Stats()
	require.NoError(t, err)
	assert.EqualValues(t, 4, stats.TotalJobs)
	assert.EqualValues(t, 2, stats.Completed)
	assert.EqualValues(t, 1, stats.Failed)
	assert.EqualValues(t, 1, stats.Running)
	assert.Greater(t, stats.AverageQualityScore, 0.0)
}

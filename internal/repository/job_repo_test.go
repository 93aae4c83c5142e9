package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/repo_insight_server/internal/model"
	"github.com/qs3c/repo_insight_server/internal/testutil"
)

func newRepo(t *testing.T) *JobRepository {
	t.Helper()
	return NewJobRepository(testutil.SetupTestDB(t))
}

func TestCreateAndGetByID(t *testing.T) {
	repo := newRepo(t)

	job := &model.AnalysisJob{
		ID:      uuid.NewString(),
		RepoURL: "https://github.com/acme/demo",
		Status:  model.StatusPending,
	}
	require.NoError(t, repo.Create(job))

	got, err := repo.GetByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.RepoURL, got.RepoURL)
	assert.Equal(t, model.StatusPending, got.Status)

	_, err = repo.GetByID("missing")
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestListWithStatusFilter(t *testing.T) {
	repo := newRepo(t)
	testutil.TestJob(t, repo.db, model.StatusCompleted)
	testutil.TestJob(t, repo.db, model.StatusCompleted)
	testutil.TestJob(t, repo.db, model.StatusFailed)

	jobs, total, err := repo.List(1, 10, "")
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, jobs, 3)

	jobs, total, err = repo.List(1, 10, model.StatusFailed)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, jobs, 1)
	assert.Equal(t, model.StatusFailed, jobs[0].Status)

	// 分页越界返回空页，总数不变
	jobs, total, err = repo.List(5, 10, "")
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Empty(t, jobs)
}

func TestDelete(t *testing.T) {
	repo := newRepo(t)
	job := testutil.TestJob(t, repo.db, model.StatusCompleted)

	require.NoError(t, repo.Delete(job.ID))
	assert.True(t, errors.Is(repo.Delete(job.ID), gorm.ErrRecordNotFound))
}

func TestMarkRunningClaimsOnce(t *testing.T) {
	repo := newRepo(t)
	job := testutil.TestJob(t, repo.db, model.StatusPending)

	claimed, err := repo.MarkRunning(job.ID, time.Now())
	require.NoError(t, err)
	assert.True(t, claimed)

	// 第二次抢占必须失败
	claimed, err = repo.MarkRunning(job.ID, time.Now())
	require.NoError(t, err)
	assert.False(t, claimed)

	got, err := repo.GetByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRunning, got.Status)
	assert.NotNil(t, got.StartedAt)
}

func TestUpdateRunningMonotonicProgress(t *testing.T) {
	repo := newRepo(t)
	job := testutil.TestJob(t, repo.db, model.StatusRunning, testutil.WithProgress(40))

	results := model.StageRecords{{Name: "static_analysis", Outcome: "success"}}
	require.NoError(t, repo.UpdateRunning(job.ID, "ai_architecture", 55, results))

	got, err := repo.GetByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, 55, got.Progress)
	assert.Equal(t, "ai_architecture", got.CurrentStage)
	require.Len(t, got.StageResults, 1)

	// 进度不允许回退
	require.NoError(t, repo.UpdateRunning(job.ID, "clone", 10, nil))
	got, err = repo.GetByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, 55, got.Progress)
	assert.Equal(t, "ai_architecture", got.CurrentStage)
}

func TestUpdateRunningIgnoresTerminalJob(t *testing.T) {
	repo := newRepo(t)
	job := testutil.TestJob(t, repo.db, model.StatusCompleted)

	require.NoError(t, repo.UpdateRunning(job.ID, "clone", 100, nil))

	got, err := repo.GetByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.Empty(t, got.CurrentStage)
}

func TestComplete(t *testing.T) {
	repo := newRepo(t)
	job := testutil.TestJob(t, repo.db, model.StatusRunning, testutil.WithProgress(95))

	now := time.Now()
	job.CompletedAt = &now
	job.FinalReport = testutil.TestReport()
	job.ArtifactPath = "/tmp/reports/insight.txt"
	require.NoError(t, repo.Complete(job))

	got, err := repo.GetByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Empty(t, got.CurrentStage)
	assert.NotNil(t, got.CompletedAt)
	require.NotNil(t, got.FinalReport)
	assert.Equal(t, 82, got.FinalReport.Scores.OverallQuality)
}

func TestCompleteRefusesNonRunningJob(t *testing.T) {
	repo := newRepo(t)
	job := testutil.TestJob(t, repo.db, model.StatusFailed)

	now := time.Now()
	job.CompletedAt = &now
	assert.Error(t, repo.Complete(job))
}

func TestFailKeepsProgress(t *testing.T) {
	repo := newRepo(t)
	job := testutil.TestJob(t, repo.db, model.StatusRunning, testutil.WithProgress(25))

	now := time.Now()
	job.CompletedAt = &now
	require.NoError(t, repo.Fail(job, model.ErrKindTool, "静态扫描工具执行失败"))

	got, err := repo.GetByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.Equal(t, 25, got.Progress)
	assert.Equal(t, model.ErrKindTool, got.ErrorKind)
	assert.Equal(t, "静态扫描工具执行失败", got.ErrorMessage)
	assert.Empty(t, got.CurrentStage)
}

func TestCountByStatus(t *testing.T) {
	repo := newRepo(t)
	testutil.TestJob(t, repo.db, model.StatusCompleted)
	testutil.TestJob(t, repo.db, model.StatusCompleted)
	testutil.TestJob(t, repo.db, model.StatusRunning)

	counts, err := repo.CountByStatus()
	require.NoError(t, err)
	assert.EqualValues(t, 2, counts[model.StatusCompleted])
	assert.EqualValues(t, 1, counts[model.StatusRunning])
	assert.Zero(t, counts[model.StatusFailed])
}

func TestListCompleted(t *testing.T) {
	repo := newRepo(t)
	testutil.TestJob(t, repo.db, model.StatusCompleted)
	testutil.TestJob(t, repo.db, model.StatusFailed)

	jobs, err := repo.ListCompleted(10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.NotNil(t, jobs[0].FinalReport)
}

func TestListTerminalBefore(t *testing.T) {
	repo := newRepo(t)

	old := time.Now().Add(-72 * time.Hour)
	stale := testutil.TestJob(t, repo.db, model.StatusCompleted)
	require.NoError(t, repo.db.Model(stale).Update("completed_at", old).Error)
	testutil.TestJob(t, repo.db, model.StatusCompleted)
	testutil.TestJob(t, repo.db, model.StatusRunning)

	jobs, err := repo.ListTerminalBefore(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, stale.ID, jobs[0].ID)
}

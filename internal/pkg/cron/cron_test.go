package cron

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/repo_insight_server/internal/model"
	"github.com/qs3c/repo_insight_server/internal/pkg/oss"
	"github.com/qs3c/repo_insight_server/internal/repository"
	"github.com/qs3c/repo_insight_server/internal/testutil"
)

func TestSweepExpired(t *testing.T) {
	db := testutil.SetupTestDB(t)
	jobRepo := repository.NewJobRepository(db)
	store := oss.NewStore(nil, t.TempDir())
	svc := NewService(jobRepo, store, "", 7)

	// 过期的已完成任务，带产物
	path, err := store.SaveReport("insight_old_20250101000000.txt", []byte("old"))
	require.NoError(t, err)
	old := testutil.TestJob(t, db, model.StatusCompleted)
	oldTime := time.Now().AddDate(0, 0, -10)
	require.NoError(t, db.Model(old).Updates(map[string]interface{}{
		"completed_at":  oldTime,
		"artifact_path": path,
	}).Error)

	// 保留期内的任务和执行中的任务不动
	fresh := testutil.TestJob(t, db, model.StatusCompleted)
	running := testutil.TestJob(t, db, model.StatusRunning)

	removed, err := svc.SweepExpired()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = jobRepo.GetByID(old.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	_, err = store.ReadReport(path)
	assert.Error(t, err)

	for _, id := range []string{fresh.ID, running.ID} {
		_, err := jobRepo.GetByID(id)
		assert.NoError(t, err)
	}
}

func TestSweepExpiredRetentionDisabled(t *testing.T) {
	db := testutil.SetupTestDB(t)
	jobRepo := repository.NewJobRepository(db)
	svc := NewService(jobRepo, oss.NewStore(nil, t.TempDir()), "", 0)

	old := testutil.TestJob(t, db, model.StatusCompleted)
	require.NoError(t, db.Model(old).Update("completed_at", time.Now().AddDate(0, 0, -100)).Error)

	removed, err := svc.SweepExpired()
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestCleanupWorkspace(t *testing.T) {
	workspace := t.TempDir()
	staleDir := filepath.Join(workspace, "analysis_old-job")
	require.NoError(t, os.MkdirAll(staleDir, 0o755))
	oldTime := time.Now().Add(-3 * time.Hour)
	require.NoError(t, os.Chtimes(staleDir, oldTime, oldTime))

	freshDir := filepath.Join(workspace, "analysis_fresh-job")
	require.NoError(t, os.MkdirAll(freshDir, 0o755))

	otherDir := filepath.Join(workspace, "unrelated")
	require.NoError(t, os.MkdirAll(otherDir, 0o755))
	require.NoError(t, os.Chtimes(otherDir, oldTime, oldTime))

	svc := NewService(nil, nil, workspace, 7)
	cleaned := svc.CleanupWorkspace(2 * time.Hour)
	assert.Equal(t, 1, cleaned)

	_, err := os.Stat(staleDir)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(freshDir)
	assert.NoError(t, err)
	_, err = os.Stat(otherDir)
	assert.NoError(t, err)
}

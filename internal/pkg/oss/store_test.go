package oss

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreLocalRoundTrip(t *testing.T) {
	store := NewStore(nil, t.TempDir())

	path, err := store.SaveReport("insight_job-1_20250101000000.txt", []byte("report body"))
	require.NoError(t, err)
	assert.NotContains(t, path, "oss://")

	data, err := store.ReadReport(path)
	require.NoError(t, err)
	assert.Equal(t, "report body", string(data))

	require.NoError(t, store.DeleteReport(path))
	_, err = store.ReadReport(path)
	assert.Error(t, err)

	// 重复删除不算错误
	assert.NoError(t, store.DeleteReport(path))
}

func TestStoreDeleteEmptyPath(t *testing.T) {
	store := NewStore(nil, t.TempDir())
	assert.NoError(t, store.DeleteReport(""))
}

func TestStoreReadOSSPathWithoutClient(t *testing.T) {
	store := NewStore(nil, t.TempDir())
	_, err := store.ReadReport("oss://reports/x.txt")
	assert.Error(t, err)
}

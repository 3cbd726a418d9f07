package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Brownie44l1/sheharfix-ml/internal/config"
)

func TestFileStoreOverwritesSingleSlot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "prediction.json")
	s := NewFileStore(path)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, Prediction{Prediction: "pothole", Confidence: 0.5}))
	require.NoError(t, s.Save(ctx, Prediction{Prediction: "garbage", Confidence: 0.75}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\n    \"prediction\": \"garbage\",\n    \"confidence\": 0.75\n}", string(data))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, Prediction{Prediction: "garbage", Confidence: 0.75}, got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileStoreLoadEmpty(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "prediction.json"))
	_, err := s.Load(context.Background())
	assert.ErrorIs(t, err, ErrNoResult)
}

func TestFileStoreSaveFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	s := NewFileStore(filepath.Join(blocker, "prediction.json"))
	assert.Error(t, s.Save(context.Background(), Prediction{Prediction: "garbage", Confidence: 1}))
}

func TestNewSelectsBackend(t *testing.T) {
	log := zaptest.NewLogger(t)

	s, err := New(context.Background(), config.StoreConfig{Backend: "file", Path: "p.json"}, log)
	require.NoError(t, err)
	require.IsType(t, &FileStore{}, s)
	assert.Equal(t, "p.json", s.(*FileStore).Path())

	_, err = New(context.Background(), config.StoreConfig{Backend: "redis"}, log)
	assert.Error(t, err)
}

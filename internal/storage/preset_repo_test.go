package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/lightstage/internal/scene"
)

func sampleScene(t *testing.T, layers int) *scene.Scene {
	t.Helper()
	s := scene.Default()
	for i := 0; i < layers; i++ {
		_, ok := s.AddLayerAt(float64(10*i), float64(20*i))
		require.True(t, ok)
	}
	require.NoError(t, s.SetBackgroundColor("#112233"))
	return s
}

// testPresetRepo общий набор проверок для любой реализации PresetRepo
func testPresetRepo(t *testing.T, repo PresetRepo) {
	ctx := context.Background()

	t.Run("Save and Load", func(t *testing.T) {
		require.NoError(t, repo.Save(ctx, "evening", sampleScene(t, 3)))

		s, err := repo.Load(ctx, "evening")
		require.NoError(t, err)
		assert.Equal(t, 3, s.Len())
		assert.Equal(t, "#112233", s.BackgroundColor)
	})

	t.Run("Overwrite", func(t *testing.T) {
		require.NoError(t, repo.Save(ctx, "evening", sampleScene(t, 1)))
		s, err := repo.Load(ctx, "evening")
		require.NoError(t, err)
		assert.Equal(t, 1, s.Len())
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := repo.Load(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Invalid Name", func(t *testing.T) {
		assert.ErrorIs(t, repo.Save(ctx, "../etc", sampleScene(t, 1)), ErrInvalidName)
		assert.ErrorIs(t, repo.Save(ctx, "", sampleScene(t, 1)), ErrInvalidName)
		assert.ErrorIs(t, repo.Save(ctx, "ok", nil), scene.ErrInvalidPreset)
	})

	t.Run("List", func(t *testing.T) {
		require.NoError(t, repo.Save(ctx, "a-morning", sampleScene(t, 2)))
		entries, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "a-morning", entries[0].Name)
		assert.Equal(t, 2, entries[0].Layers)
		assert.Equal(t, "evening", entries[1].Name)
		assert.WithinDuration(t, time.Now(), entries[1].UpdatedAt, time.Minute)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, "a-morning"))
		assert.ErrorIs(t, repo.Delete(ctx, "a-morning"), ErrNotFound)
		entries, err := repo.List(ctx)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("Cancelled Context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		assert.ErrorIs(t, repo.Save(cctx, "late", sampleScene(t, 1)), context.Canceled)
	})
}

// TestMemoryPresetRepo тестирует библиотеку пресетов в памяти
func TestMemoryPresetRepo(t *testing.T) {
	repo := NewMemoryPresetRepo()
	defer repo.Close()
	testPresetRepo(t, repo)
	assert.Equal(t, 1, repo.Count())
}

// TestBadgerPresetRepo тестирует библиотеку на BadgerDB в памяти
func TestBadgerPresetRepo(t *testing.T) {
	repo, err := NewBadgerPresetRepo("")
	require.NoError(t, err)
	testPresetRepo(t, repo)

	require.NoError(t, repo.Close())
	require.NoError(t, repo.Close(), "повторный Close безопасен")
	_, err = repo.Load(context.Background(), "evening")
	assert.Error(t, err)
}

// TestBadgerPresetRepoPersists тестирует сохранность пресетов между открытиями
func TestBadgerPresetRepoPersists(t *testing.T) {
	dir := t.TempDir()
	repo, err := NewBadgerPresetRepo(dir)
	require.NoError(t, err)
	require.NoError(t, repo.Save(context.Background(), "keep", sampleScene(t, 4)))
	require.NoError(t, repo.Close())

	repo, err = NewBadgerPresetRepo(dir)
	require.NoError(t, err)
	defer repo.Close()
	s, err := repo.Load(context.Background(), "keep")
	require.NoError(t, err)
	assert.Equal(t, 4, s.Len())
}

// TestOpen тестирует выбор бэкенда
func TestOpen(t *testing.T) {
	repo, err := Open(Config{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryPresetRepo{}, repo)

	repo, err = Open(Config{Backend: BackendBadger})
	require.NoError(t, err)
	assert.IsType(t, &BadgerPresetRepo{}, repo)
	require.NoError(t, repo.Close())

	_, err = Open(Config{Backend: "floppy"})
	assert.Error(t, err)
}

package repository

import (
	"CatalogAuth/internal/model"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepository_Lifecycle(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	record := model.RefreshRecord{TokenID: "tid-1", Username: "admin", ExpiresAt: time.Now().Add(time.Hour)}

	require.NoError(t, repo.Create(ctx, record))
	assert.ErrorIs(t, repo.Create(ctx, record), ErrRecordExists)

	got, err := repo.FindByTokenID(ctx, "tid-1")
	require.NoError(t, err)
	assert.Equal(t, record, *got)

	require.NoError(t, repo.Replace(ctx, "tid-1", model.RefreshRecord{TokenID: "tid-2", Username: "admin", ExpiresAt: time.Now().Add(time.Hour)}))
	_, err = repo.FindByTokenID(ctx, "tid-1")
	assert.ErrorIs(t, err, ErrRecordRetired)

	existed, err := repo.DeleteByTokenID(ctx, "tid-2", time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Zero(t, repo.Len())
}

func TestMemoryRepository_ForgetIsNotRetire(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, model.RefreshRecord{TokenID: "tid-1", Username: "admin", ExpiresAt: time.Now().Add(time.Hour)}))

	repo.Forget("tid-1")

	_, err := repo.FindByTokenID(ctx, "tid-1")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestMemoryRepository_TombstoneExpires(t *testing.T) {
	repo := NewMemoryRepository()
	now := time.Now()
	repo.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := repo.DeleteByTokenID(ctx, "tid-1", now.Add(time.Minute))
	require.NoError(t, err)
	_, err = repo.FindByTokenID(ctx, "tid-1")
	assert.ErrorIs(t, err, ErrRecordRetired)

	now = now.Add(2 * time.Minute)
	_, err = repo.FindByTokenID(ctx, "tid-1")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestMemoryRepository_ConcurrentReplaceSingleWinner(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, model.RefreshRecord{TokenID: "old", Username: "admin", ExpiresAt: time.Now().Add(time.Hour)}))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := repo.Replace(ctx, "old", model.RefreshRecord{TokenID: string(rune('a' + i)), Username: "admin", ExpiresAt: time.Now().Add(time.Hour)})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, repo.Len())
}

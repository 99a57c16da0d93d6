package recipe

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hammamikhairi/mealscribe/internal/domain"
	"github.com/hammamikhairi/mealscribe/internal/logger"
	"github.com/hammamikhairi/mealscribe/internal/storage"
)

func setupRepo(t *testing.T) (*Repository, *storage.MemoryStore, context.Context) {
	t.Helper()
	log := logger.New(logger.LevelOff, nil)
	store := storage.NewMemoryStore(log)
	repo := New(store, log)
	ctx := context.Background()
	require.NoError(t, repo.Load(ctx))
	return repo, store, ctx
}

func rec(id, name string, created time.Time) domain.Recipe {
	return domain.Recipe{ID: id, Name: name, CreatedAt: created, State: domain.StateAwaitingImage}
}

func TestSaveTwiceKeepsOneRecord(t *testing.T) {
	repo, _, ctx := setupRepo(t)
	now := time.Now()

	require.NoError(t, repo.Save(ctx, rec("dup", "first", now)))
	require.NoError(t, repo.Save(ctx, rec("dup", "second", now)))

	snap := repo.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "dup", snap[0].ID)
	assert.Equal(t, "second", snap[0].Name)
}

func TestUpdateRequiresExisting(t *testing.T) {
	repo, _, ctx := setupRepo(t)

	err := repo.Update(ctx, rec("ghost", "x", time.Now()))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.Empty(t, repo.Snapshot())

	require.NoError(t, repo.Save(ctx, rec("real", "x", time.Now())))
	require.NoError(t, repo.Update(ctx, rec("real", "y", time.Now())))

	got, err := repo.Get("real")
	require.NoError(t, err)
	assert.Equal(t, "y", got.Name)
}

func TestDeleteAbsentIsNoop(t *testing.T) {
	repo, _, ctx := setupRepo(t)

	assert.NoError(t, repo.Delete(ctx, "nothing"))

	require.NoError(t, repo.Save(ctx, rec("a", "x", time.Now())))
	require.NoError(t, repo.Delete(ctx, "a"))
	_, err := repo.Get("a")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSnapshotAgreesWithStoreAfterEachWrite(t *testing.T) {
	repo, store, ctx := setupRepo(t)
	base := time.Now()

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Save(ctx, rec(id, id, base.Add(time.Duration(i)*time.Second))))

		stored, err := store.All(ctx)
		require.NoError(t, err)
		assert.Equal(t, stored, repo.Snapshot())
	}
	assert.Equal(t, "c", repo.Snapshot()[0].ID, "newest first")
}

func TestSnapshotIsCopy(t *testing.T) {
	repo, _, ctx := setupRepo(t)
	r := rec("a", "orig", time.Now())
	r.Tags = []string{"thai"}
	require.NoError(t, repo.Save(ctx, r))

	snap := repo.Snapshot()
	snap[0].Name = "mutated"
	snap[0].Tags[0] = "mutated"

	got, err := repo.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "orig", got.Name)
	assert.Equal(t, "thai", got.Tags[0])
}

func TestSubscribeReceivesFullSnapshots(t *testing.T) {
	repo, _, ctx := setupRepo(t)
	require.NoError(t, repo.Save(ctx, rec("pre", "x", time.Now())))

	ch, cancel := repo.Subscribe()
	defer cancel()

	first := <-ch
	require.Len(t, first, 1, "subscribe delivers the current snapshot")

	require.NoError(t, repo.Save(ctx, rec("post", "y", time.Now().Add(time.Second))))
	next := <-ch
	require.Len(t, next, 2, "emissions carry the full list, not a delta")

	require.NoError(t, repo.Delete(ctx, "pre"))
	last := <-ch
	require.Len(t, last, 1)
	assert.Equal(t, "post", last[0].ID)
}

func TestSlowSubscriberSeesLatest(t *testing.T) {
	repo, _, ctx := setupRepo(t)
	ch, cancel := repo.Subscribe()
	defer cancel()

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Save(ctx, rec("k", string(rune('a'+i)), time.Now())))
	}

	var latest []domain.Recipe
drain:
	for {
		select {
		case latest = <-ch:
		default:
			break drain
		}
	}
	require.Len(t, latest, 1)
	assert.Equal(t, "e", latest[0].Name)
}

func TestCancelClosesChannel(t *testing.T) {
	repo, _, ctx := setupRepo(t)
	ch, cancel := repo.Subscribe()
	<-ch
	cancel()
	cancel() // idempotent

	_, open := <-ch
	assert.False(t, open)
	require.NoError(t, repo.Save(ctx, rec("x", "x", time.Now())))
}

func TestConcurrentWritesDifferentIDs(t *testing.T) {
	repo, _, ctx := setupRepo(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i))
			assert.NoError(t, repo.Save(ctx, rec(id, id, time.Now())))
		}(i)
	}
	wg.Wait()

	assert.Len(t, repo.Snapshot(), 20)
}

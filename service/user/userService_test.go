package usersvc

import (
	"context"
	"sync"
	"testing"

	"tripbot/model"
	ledgerrepo "tripbot/repository/ledger"
	creditsvc "tripbot/service/credits"

	"github.com/stretchr/testify/require"
)

func TestBootstrap_CreatesOnce(t *testing.T) {
	ctx := context.Background()
	repo := ledgerrepo.NewMemory()
	svc := New(repo, creditsvc.New(repo))

	u, created, err := svc.Bootstrap(ctx, 123, model.Profile{FirstName: "Ada"})
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, int64(10), u.Credits)

	again, created, err := svc.Bootstrap(ctx, 123, model.Profile{FirstName: "Changed"})
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, u.ID, again.ID)
	require.Equal(t, "Ada", again.FirstName)

	hist, err := repo.ListHistory(ctx, u.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, hist, 1)
}

func TestBootstrap_Concurrent(t *testing.T) {
	ctx := context.Background()
	repo := ledgerrepo.NewMemory()
	svc := New(repo, creditsvc.New(repo))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, c, err := svc.Bootstrap(ctx, 55, model.Profile{})
			require.NoError(t, err)
			if c {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, created)

	n, err := repo.CountUsers(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestByTelegramID_NotFound(t *testing.T) {
	repo := ledgerrepo.NewMemory()
	_, err := New(repo, creditsvc.New(repo)).ByTelegramID(context.Background(), 1)
	require.ErrorIs(t, err, ErrNotFound)
}

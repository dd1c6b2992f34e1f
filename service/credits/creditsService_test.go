package creditsvc

import (
	"context"
	"testing"
	"time"

	"tripbot/model"
	ledgerrepo "tripbot/repository/ledger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// tickingClock returns strictly increasing timestamps so history order is
// deterministic.
func tickingClock() func() time.Time {
	t := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func newTestService() (*service, *ledgerrepo.Memory) {
	repo := ledgerrepo.NewMemory()
	return &service{r: repo, now: tickingClock()}, repo
}

func TestCreateUser_WelcomeBonus(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService()

	u, err := svc.CreateUser(ctx, 123, model.Profile{FirstName: "Ada", Username: "ada"})
	require.NoError(t, err)
	require.Equal(t, WelcomeBonus, u.Credits)
	require.Equal(t, int64(123), u.TelegramID)

	stored, err := repo.UserByTelegramID(ctx, 123)
	require.NoError(t, err)
	require.Equal(t, int64(10), stored.Credits)
	require.Equal(t, "ada", stored.Username)

	hist, err := svc.History(ctx, u.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	require.Equal(t, model.ActionWelcomeBonus, hist[0].Action)
	require.Equal(t, int64(10), hist[0].Amount)
	require.Equal(t, int64(10), hist[0].BalanceAfter)
}

func TestCreateUser_DuplicateTelegramID(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	_, err := svc.CreateUser(ctx, 5, model.Profile{})
	require.NoError(t, err)
	_, err = svc.CreateUser(ctx, 5, model.Profile{})
	require.ErrorIs(t, err, ErrUserExists)
}

func TestAdjustBalance_ClampsAtZero(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService()
	u, err := svc.CreateUser(ctx, 1, model.Profile{})
	require.NoError(t, err)

	bal, err := svc.AdjustBalance(ctx, u.ID, -25, "Refund: Basic Plan", Ref{ChargeID: "chg"})
	require.NoError(t, err)
	require.Equal(t, int64(0), bal)

	stored, err := repo.UserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, int64(0), stored.Credits)
	require.True(t, stored.LastActiveAt.After(stored.CreatedAt))

	hist, err := svc.History(ctx, u.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	require.Equal(t, int64(-25), hist[1].Amount)
	require.Equal(t, int64(0), hist[1].BalanceAfter)
	require.NotNil(t, hist[1].ChargeID)
	require.Equal(t, "chg", *hist[1].ChargeID)
}

func TestAdjustBalance_UserNotFound(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.AdjustBalance(context.Background(), uuid.New(), 5, "x", Ref{})
	require.ErrorIs(t, err, ErrUserNotFound)

	_, err = svc.Balance(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestHistory_ReconstructsBalance(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	u, err := svc.CreateUser(ctx, 9, model.Profile{})
	require.NoError(t, err)

	for _, amt := range []int64{30, -50, 7, -3, 100, -200, 12} {
		_, err := svc.AdjustBalance(ctx, u.ID, amt, "step", Ref{})
		require.NoError(t, err)
	}

	bal, err := svc.Balance(ctx, u.ID)
	require.NoError(t, err)
	require.GreaterOrEqual(t, bal, int64(0))

	hist, err := svc.History(ctx, u.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, hist, 8)
	require.Equal(t, bal, model.ReplayHistory(hist))
	require.Equal(t, int64(12), bal)
}

func TestSpend(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	u, err := svc.CreateUser(ctx, 2, model.Profile{})
	require.NoError(t, err)

	bal, err := svc.Spend(ctx, u.ID, 4, model.ActionItinerary, Ref{})
	require.NoError(t, err)
	require.Equal(t, int64(6), bal)

	_, err = svc.Spend(ctx, u.ID, 7, model.ActionItinerary, Ref{})
	require.ErrorIs(t, err, ErrInsufficientCredits)

	_, err = svc.Spend(ctx, u.ID, 0, model.ActionItinerary, Ref{})
	require.ErrorIs(t, err, ErrBadAmount)

	bal, err = svc.Balance(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, int64(6), bal)
}

func TestAdjustOnce(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	u, err := svc.CreateUser(ctx, 3, model.Profile{})
	require.NoError(t, err)

	ref := Ref{ChargeID: "task:abc"}
	bal, err := svc.Spend(ctx, u.ID, 5, model.ActionItinerary, ref)
	require.NoError(t, err)
	require.Equal(t, int64(5), bal)

	applied, err := svc.Applied(ctx, u.ID, ref.ChargeID, model.ActionItineraryRefund)
	require.NoError(t, err)
	require.False(t, applied)

	bal, err = svc.AdjustOnce(ctx, u.ID, 5, model.ActionItineraryRefund, ref)
	require.NoError(t, err)
	require.Equal(t, int64(10), bal)

	_, err = svc.AdjustOnce(ctx, u.ID, 5, model.ActionItineraryRefund, ref)
	require.ErrorIs(t, err, ErrAlreadyApplied)

	applied, err = svc.Applied(ctx, u.ID, ref.ChargeID, model.ActionItineraryRefund)
	require.NoError(t, err)
	require.True(t, applied)

	bal, err = svc.Balance(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, int64(10), bal)

	_, err = svc.AdjustOnce(ctx, u.ID, 5, model.ActionItineraryRefund, Ref{})
	require.ErrorIs(t, err, ErrMissingRef)
}

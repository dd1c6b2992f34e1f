package ledgerrepo

import (
	"context"
	"errors"
	"testing"
	"time"

	"tripbot/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func seedUser(t *testing.T, m *Memory, tgID int64) *model.User {
	t.Helper()
	now := time.Now().UTC()
	u := &model.User{ID: uuid.New(), TelegramID: tgID, Credits: 10, CreatedAt: now, LastActiveAt: now}
	require.NoError(t, m.WithTx(context.Background(), func(tx Tx) error {
		return tx.InsertUser(context.Background(), u)
	}))
	return u
}

func TestMemory_WithTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	u := seedUser(t, m, 1)

	boom := errors.New("boom")
	err := m.WithTx(ctx, func(tx Tx) error {
		require.NoError(t, tx.UpdateUserCredits(ctx, u.ID, 99, time.Now()))
		require.NoError(t, tx.InsertPurchase(ctx, &model.Purchase{ID: uuid.New(), UserID: u.ID, ChargeID: "c1", Price: 2}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := m.UserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, int64(10), got.Credits)

	_, err = m.PurchaseByChargeID(ctx, "c1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_UniqueConstraints(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	u := seedUser(t, m, 7)

	err := m.WithTx(ctx, func(tx Tx) error {
		return tx.InsertUser(ctx, &model.User{ID: uuid.New(), TelegramID: 7})
	})
	require.ErrorIs(t, err, ErrConflict)

	p := &model.Purchase{ID: uuid.New(), UserID: u.ID, ChargeID: "dup", Price: 2}
	require.NoError(t, m.WithTx(ctx, func(tx Tx) error { return tx.InsertPurchase(ctx, p) }))
	err = m.WithTx(ctx, func(tx Tx) error {
		return tx.InsertPurchase(ctx, &model.Purchase{ID: uuid.New(), UserID: u.ID, ChargeID: "dup", Price: 2})
	})
	require.ErrorIs(t, err, ErrConflict)

	r := &model.Refund{ID: uuid.New(), UserID: u.ID, ChargeID: "dup", PurchaseID: p.ID}
	require.NoError(t, m.WithTx(ctx, func(tx Tx) error { return tx.InsertRefund(ctx, r) }))
	err = m.WithTx(ctx, func(tx Tx) error {
		return tx.InsertRefund(ctx, &model.Refund{ID: uuid.New(), UserID: u.ID, ChargeID: "other", PurchaseID: p.ID})
	})
	require.ErrorIs(t, err, ErrConflict)
}

func TestMemory_ListHistory_OrderAndPaging(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	u := seedUser(t, m, 3)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, m.WithTx(ctx, func(tx Tx) error {
		for i, amt := range []int64{10, -3, 5} {
			e := &model.CreditHistoryEntry{UserID: u.ID, Action: "x", Amount: amt, CreatedAt: base.Add(time.Duration(2-i) * time.Minute)}
			if err := tx.InsertHistory(ctx, e); err != nil {
				return err
			}
		}
		return nil
	}))

	all, err := m.ListHistory(ctx, u.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, []int64{5, -3, 10}, []int64{all[0].Amount, all[1].Amount, all[2].Amount})

	page, err := m.ListHistory(ctx, u.ID, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, int64(-3), page[0].Amount)

	empty, err := m.ListHistory(ctx, u.ID, 10, 5)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestMemory_StatsAndDailyRevenue(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	u := seedUser(t, m, 4)
	day1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)

	refunded := &model.Purchase{ID: uuid.New(), UserID: u.ID, ChargeID: "a", Price: 5, CreatedAt: day1}
	require.NoError(t, m.WithTx(ctx, func(tx Tx) error {
		for _, p := range []*model.Purchase{
			refunded,
			{ID: uuid.New(), UserID: u.ID, ChargeID: "b", Price: 2, CreatedAt: day1.Add(time.Hour)},
			{ID: uuid.New(), UserID: u.ID, ChargeID: "c", Price: 10, CreatedAt: day2},
		} {
			if err := tx.InsertPurchase(ctx, p); err != nil {
				return err
			}
		}
		if err := tx.MarkPurchaseRefunded(ctx, refunded.ID); err != nil {
			return err
		}
		return tx.InsertRefund(ctx, &model.Refund{ID: uuid.New(), UserID: u.ID, ChargeID: "a", PurchaseID: refunded.ID})
	}))

	stats, err := m.PurchaseStats(ctx)
	require.NoError(t, err)
	require.Equal(t, model.PurchaseStats{GrossRevenue: 17, RefundedRevenue: 5, Purchases: 3, Refunds: 1}, stats)

	days, err := m.DailyRevenue(ctx, day1.Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, []model.DayRevenue{
		{Day: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), Revenue: 2},
		{Day: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), Revenue: 10},
	}, days)

	err = m.WithTx(ctx, func(tx Tx) error { return tx.MarkPurchaseRefunded(ctx, refunded.ID) })
	require.ErrorIs(t, err, ErrConflict)
}

func TestMemory_HistoryByCharge(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	u := seedUser(t, m, 11)
	charge := "task:1"

	entry := func(action string) *model.CreditHistoryEntry {
		c := charge
		return &model.CreditHistoryEntry{UserID: u.ID, Action: action, Amount: 5, BalanceAfter: 15, ChargeID: &c, CreatedAt: time.Now()}
	}

	_, err := m.HistoryByCharge(ctx, u.ID, charge, model.ActionItineraryRefund)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.WithTx(ctx, func(tx Tx) error { return tx.InsertHistory(ctx, entry(model.ActionItineraryRefund)) }))
	got, err := m.HistoryByCharge(ctx, u.ID, charge, model.ActionItineraryRefund)
	require.NoError(t, err)
	require.Equal(t, int64(5), got.Amount)

	err = m.WithTx(ctx, func(tx Tx) error { return tx.InsertHistory(ctx, entry(model.ActionItineraryRefund)) })
	require.ErrorIs(t, err, ErrConflict)

	// same charge under another action is a different entry
	require.NoError(t, m.WithTx(ctx, func(tx Tx) error { return tx.InsertHistory(ctx, entry(model.ActionItinerary)) }))
}

package dashboardsvc

import (
	"context"
	"time"

	"tripbot/model"
	ledgerrepo "tripbot/repository/ledger"
)

// WindowDays is the length of the revenue series.
const WindowDays = 30

type Summary struct {
	// TotalRevenue is net of refunds.
	TotalRevenue    int64              `json:"total_revenue"`
	GrossRevenue    int64              `json:"gross_revenue"`
	RefundedRevenue int64              `json:"refunded_revenue"`
	Purchases       int64              `json:"purchases"`
	Refunds         int64              `json:"refunds"`
	Users           int64              `json:"users"`
	Daily           []model.DayRevenue `json:"daily_revenue"`
}

type Service interface {
	Summary(ctx context.Context, now time.Time) (*Summary, error)
}

type service struct{ r ledgerrepo.Repo }

func New(r ledgerrepo.Repo) Service { return &service{r} }

func (s *service) Summary(ctx context.Context, now time.Time) (*Summary, error) {
	stats, err := s.r.PurchaseStats(ctx)
	if err != nil {
		return nil, err
	}
	users, err := s.r.CountUsers(ctx)
	if err != nil {
		return nil, err
	}

	today := day(now)
	start := today.AddDate(0, 0, -(WindowDays - 1))
	rows, err := s.r.DailyRevenue(ctx, start)
	if err != nil {
		return nil, err
	}
	byDay := make(map[time.Time]int64, len(rows))
	for _, r := range rows {
		byDay[day(r.Day)] += r.Revenue
	}

	series := make([]model.DayRevenue, 0, WindowDays)
	for d := start; !d.After(today); d = d.AddDate(0, 0, 1) {
		series = append(series, model.DayRevenue{Day: d, Revenue: byDay[d]})
	}

	return &Summary{
		TotalRevenue:    stats.GrossRevenue - stats.RefundedRevenue,
		GrossRevenue:    stats.GrossRevenue,
		RefundedRevenue: stats.RefundedRevenue,
		Purchases:       stats.Purchases,
		Refunds:         stats.Refunds,
		Users:           users,
		Daily:           series,
	}, nil
}

func day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

package ledgerrepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"tripbot/model"

	"github.com/google/uuid"
)

// Memory is an in-process Repo. Transactions are serialized by a single
// mutex and applied to a copy of the state, which replaces the live state
// only when fn returns nil.
type Memory struct {
	mu    sync.Mutex
	state *memState
}

func NewMemory() *Memory { return &Memory{state: newMemState()} }

type memState struct {
	users     map[uuid.UUID]model.User
	byTgID    map[int64]uuid.UUID
	history   []model.CreditHistoryEntry
	purchases map[string]model.Purchase
	refunds   map[string]model.Refund
	nextSeq   int64
}

func newMemState() *memState {
	return &memState{
		users:     make(map[uuid.UUID]model.User),
		byTgID:    make(map[int64]uuid.UUID),
		purchases: make(map[string]model.Purchase),
		refunds:   make(map[string]model.Refund),
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		users:     make(map[uuid.UUID]model.User, len(s.users)),
		byTgID:    make(map[int64]uuid.UUID, len(s.byTgID)),
		history:   append([]model.CreditHistoryEntry(nil), s.history...),
		purchases: make(map[string]model.Purchase, len(s.purchases)),
		refunds:   make(map[string]model.Refund, len(s.refunds)),
		nextSeq:   s.nextSeq,
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.byTgID {
		c.byTgID[k] = v
	}
	for k, v := range s.purchases {
		c.purchases[k] = v
	}
	for k, v := range s.refunds {
		c.refunds[k] = v
	}
	return c
}

func (m *Memory) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := m.state.clone()
	if err := fn(work); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *Memory) UserByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.UserByID(ctx, id)
}

func (m *Memory) UserByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.UserByTelegramID(ctx, telegramID)
}

func (m *Memory) PurchaseByChargeID(ctx context.Context, chargeID string) (*model.Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.PurchaseByChargeID(ctx, chargeID)
}

func (m *Memory) ListHistory(ctx context.Context, userID uuid.UUID, limit, offset int) ([]model.CreditHistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.CreditHistoryEntry
	for _, e := range m.state.history {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) HistoryByCharge(ctx context.Context, userID uuid.UUID, chargeID, action string) (*model.CreditHistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.HistoryByCharge(ctx, userID, chargeID, action)
}

func (m *Memory) PurchaseStats(ctx context.Context) (model.PurchaseStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var s model.PurchaseStats
	for _, p := range m.state.purchases {
		s.Purchases++
		s.GrossRevenue += p.Price
		if p.IsRefunded {
			s.RefundedRevenue += p.Price
		}
	}
	s.Refunds = int64(len(m.state.refunds))
	return s, nil
}

func (m *Memory) DailyRevenue(ctx context.Context, since time.Time) ([]model.DayRevenue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byDay := make(map[time.Time]int64)
	for _, p := range m.state.purchases {
		if p.IsRefunded || p.CreatedAt.Before(since) {
			continue
		}
		byDay[truncateDay(p.CreatedAt)] += p.Price
	}
	out := make([]model.DayRevenue, 0, len(byDay))
	for day, rev := range byDay {
		out = append(out, model.DayRevenue{Day: day, Revenue: rev})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}

func (m *Memory) CountUsers(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.state.users)), nil
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// memState implements Tx. Callers hold Memory.mu.

func (s *memState) UserByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (s *memState) LockUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return s.UserByID(ctx, id)
}

func (s *memState) UserByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	id, ok := s.byTgID[telegramID]
	if !ok {
		return nil, ErrNotFound
	}
	return s.UserByID(ctx, id)
}

func (s *memState) InsertUser(_ context.Context, u *model.User) error {
	if _, ok := s.byTgID[u.TelegramID]; ok {
		return ErrConflict
	}
	if _, ok := s.users[u.ID]; ok {
		return ErrConflict
	}
	s.users[u.ID] = *u
	s.byTgID[u.TelegramID] = u.ID
	return nil
}

func (s *memState) UpdateUserCredits(_ context.Context, id uuid.UUID, credits int64, activeAt time.Time) error {
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Credits = credits
	u.LastActiveAt = activeAt
	s.users[id] = u
	return nil
}

func (s *memState) InsertHistory(_ context.Context, e *model.CreditHistoryEntry) error {
	if _, ok := s.users[e.UserID]; !ok {
		return ErrNotFound
	}
	if e.ChargeID != nil {
		if _, err := s.HistoryByCharge(context.Background(), e.UserID, *e.ChargeID, e.Action); err == nil {
			return ErrConflict
		}
	}
	s.nextSeq++
	e.ID = s.nextSeq
	s.history = append(s.history, *e)
	return nil
}

func (s *memState) HistoryByCharge(_ context.Context, userID uuid.UUID, chargeID, action string) (*model.CreditHistoryEntry, error) {
	for i := range s.history {
		e := s.history[i]
		if e.UserID == userID && e.Action == action && e.ChargeID != nil && *e.ChargeID == chargeID {
			return &e, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memState) PurchaseByChargeID(_ context.Context, chargeID string) (*model.Purchase, error) {
	p, ok := s.purchases[chargeID]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (s *memState) LockPurchase(ctx context.Context, chargeID string) (*model.Purchase, error) {
	return s.PurchaseByChargeID(ctx, chargeID)
}

func (s *memState) InsertPurchase(_ context.Context, p *model.Purchase) error {
	if _, ok := s.purchases[p.ChargeID]; ok {
		return ErrConflict
	}
	if _, ok := s.users[p.UserID]; !ok {
		return ErrNotFound
	}
	s.purchases[p.ChargeID] = *p
	return nil
}

func (s *memState) MarkPurchaseRefunded(_ context.Context, id uuid.UUID) error {
	for k, p := range s.purchases {
		if p.ID != id {
			continue
		}
		if p.IsRefunded {
			return ErrConflict
		}
		p.IsRefunded = true
		s.purchases[k] = p
		return nil
	}
	return ErrNotFound
}

func (s *memState) InsertRefund(_ context.Context, r *model.Refund) error {
	if _, ok := s.refunds[r.ChargeID]; ok {
		return ErrConflict
	}
	for _, existing := range s.refunds {
		if existing.PurchaseID == r.PurchaseID {
			return ErrConflict
		}
	}
	s.refunds[r.ChargeID] = *r
	return nil
}

package creditsvc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tripbot/model"
	ledgerrepo "tripbot/repository/ledger"
	"tripbot/util/metrics"

	"github.com/google/uuid"
)

// WelcomeBonus is granted to every new account.
const WelcomeBonus int64 = 10

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrUserExists          = errors.New("user already exists")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrBadAmount           = errors.New("amount must be positive")
	// ErrAlreadyApplied means the ref already carries an entry for the action.
	ErrAlreadyApplied      = errors.New("credit adjustment already applied")
	ErrMissingRef          = errors.New("adjustment needs a charge ref")
)

// Ref links a history entry to the purchase or charge that caused it.
type Ref struct {
	PurchaseID *uuid.UUID
	ChargeID   string
}

type Service interface {
	CreateUser(ctx context.Context, telegramID int64, p model.Profile) (*model.User, error)

	// AdjustBalance applies a signed amount, clamping the result at zero,
	// and appends a history entry in the same transaction.
	AdjustBalance(ctx context.Context, userID uuid.UUID, amount int64, action string, ref Ref) (int64, error)
	// AdjustBalanceTx is AdjustBalance inside a transaction the caller owns.
	AdjustBalanceTx(ctx context.Context, tx ledgerrepo.Tx, userID uuid.UUID, amount int64, action string, ref Ref) (int64, error)
	// AdjustOnce is AdjustBalance keyed by (ref.ChargeID, action): a repeat
	// returns ErrAlreadyApplied and changes nothing.
	AdjustOnce(ctx context.Context, userID uuid.UUID, amount int64, action string, ref Ref) (int64, error)
	// Applied reports whether AdjustOnce already ran for chargeID and action.
	Applied(ctx context.Context, userID uuid.UUID, chargeID, action string) (bool, error)
	// Spend deducts cost only if the balance covers it.
	Spend(ctx context.Context, userID uuid.UUID, cost int64, action string, ref Ref) (int64, error)

	Balance(ctx context.Context, userID uuid.UUID) (int64, error)
	History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]model.CreditHistoryEntry, error)
}

type service struct {
	r   ledgerrepo.Repo
	now func() time.Time
}

func New(r ledgerrepo.Repo) Service { return &service{r: r, now: time.Now} }

func (s *service) CreateUser(ctx context.Context, telegramID int64, p model.Profile) (*model.User, error) {
	now := s.now().UTC()
	u := &model.User{
		ID:           uuid.New(),
		TelegramID:   telegramID,
		FirstName:    p.FirstName,
		LastName:     p.LastName,
		Username:     p.Username,
		Credits:      WelcomeBonus,
		CreatedAt:    now,
		LastActiveAt: now,
	}
	err := s.r.WithTx(ctx, func(tx ledgerrepo.Tx) error {
		if err := tx.InsertUser(ctx, u); err != nil {
			if errors.Is(err, ledgerrepo.ErrConflict) {
				return ErrUserExists
			}
			return err
		}
		return tx.InsertHistory(ctx, &model.CreditHistoryEntry{
			UserID:       u.ID,
			Action:       model.ActionWelcomeBonus,
			Amount:       WelcomeBonus,
			BalanceAfter: WelcomeBonus,
			CreatedAt:    now,
		})
	})
	if err != nil {
		return nil, err
	}
	metrics.CreditsGranted.WithLabelValues("welcome").Add(float64(WelcomeBonus))
	return u, nil
}

func (s *service) AdjustBalance(ctx context.Context, userID uuid.UUID, amount int64, action string, ref Ref) (int64, error) {
	var bal int64
	err := s.r.WithTx(ctx, func(tx ledgerrepo.Tx) error {
		var err error
		bal, err = s.AdjustBalanceTx(ctx, tx, userID, amount, action, ref)
		return err
	})
	return bal, err
}

func (s *service) AdjustBalanceTx(ctx context.Context, tx ledgerrepo.Tx, userID uuid.UUID, amount int64, action string, ref Ref) (int64, error) {
	u, err := tx.LockUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ledgerrepo.ErrNotFound) {
			return 0, ErrUserNotFound
		}
		return 0, err
	}
	return s.apply(ctx, tx, u, amount, action, ref)
}

func (s *service) AdjustOnce(ctx context.Context, userID uuid.UUID, amount int64, action string, ref Ref) (int64, error) {
	if ref.ChargeID == "" {
		return 0, ErrMissingRef
	}
	var bal int64
	err := s.r.WithTx(ctx, func(tx ledgerrepo.Tx) error {
		u, err := tx.LockUser(ctx, userID)
		if err != nil {
			if errors.Is(err, ledgerrepo.ErrNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		if _, err := tx.HistoryByCharge(ctx, userID, ref.ChargeID, action); err == nil {
			return ErrAlreadyApplied
		} else if !errors.Is(err, ledgerrepo.ErrNotFound) {
			return err
		}
		bal, err = s.apply(ctx, tx, u, amount, action, ref)
		if errors.Is(err, ledgerrepo.ErrConflict) {
			return ErrAlreadyApplied
		}
		return err
	})
	return bal, err
}

func (s *service) Applied(ctx context.Context, userID uuid.UUID, chargeID, action string) (bool, error) {
	_, err := s.r.HistoryByCharge(ctx, userID, chargeID, action)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ledgerrepo.ErrNotFound):
		return false, nil
	}
	return false, err
}

func (s *service) apply(ctx context.Context, tx ledgerrepo.Tx, u *model.User, amount int64, action string, ref Ref) (int64, error) {
	now := s.now().UTC()
	newBal := model.ClampedBalance(u.Credits, amount)
	if err := tx.UpdateUserCredits(ctx, u.ID, newBal, now); err != nil {
		return 0, err
	}
	e := &model.CreditHistoryEntry{
		UserID:       u.ID,
		Action:       action,
		Amount:       amount,
		BalanceAfter: newBal,
		PurchaseID:   ref.PurchaseID,
		CreatedAt:    now,
	}
	if ref.ChargeID != "" {
		charge := ref.ChargeID
		e.ChargeID = &charge
	}
	if err := tx.InsertHistory(ctx, e); err != nil {
		return 0, fmt.Errorf("append history: %w", err)
	}
	return newBal, nil
}

func (s *service) Spend(ctx context.Context, userID uuid.UUID, cost int64, action string, ref Ref) (int64, error) {
	if cost <= 0 {
		return 0, ErrBadAmount
	}
	var bal int64
	err := s.r.WithTx(ctx, func(tx ledgerrepo.Tx) error {
		u, err := tx.LockUser(ctx, userID)
		if err != nil {
			if errors.Is(err, ledgerrepo.ErrNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		if u.Credits < cost {
			return ErrInsufficientCredits
		}
		bal, err = s.apply(ctx, tx, u, -cost, action, ref)
		return err
	})
	return bal, err
}

func (s *service) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	u, err := s.r.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ledgerrepo.ErrNotFound) {
			return 0, ErrUserNotFound
		}
		return 0, err
	}
	return u.Credits, nil
}

func (s *service) History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]model.CreditHistoryEntry, error) {
	return s.r.ListHistory(ctx, userID, limit, offset)
}

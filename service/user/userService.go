package usersvc

import (
	"context"
	"errors"

	"tripbot/model"
	ledgerrepo "tripbot/repository/ledger"
	creditsvc "tripbot/service/credits"
)

var ErrNotFound = errors.New("user not found")

type Service interface {
	// Bootstrap returns the user for telegramID, creating it (with the
	// welcome bonus) on first sight. created reports which happened.
	Bootstrap(ctx context.Context, telegramID int64, p model.Profile) (u *model.User, created bool, err error)
	ByTelegramID(ctx context.Context, telegramID int64) (*model.User, error)
}

type service struct {
	r       ledgerrepo.Repo
	credits creditsvc.Service
}

func New(r ledgerrepo.Repo, credits creditsvc.Service) Service {
	return &service{r: r, credits: credits}
}

func (s *service) Bootstrap(ctx context.Context, telegramID int64, p model.Profile) (*model.User, bool, error) {
	u, err := s.ByTelegramID(ctx, telegramID)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	u, err = s.credits.CreateUser(ctx, telegramID, p)
	if errors.Is(err, creditsvc.ErrUserExists) {
		// lost a race with a concurrent bootstrap
		u, err = s.ByTelegramID(ctx, telegramID)
		return u, false, err
	}
	if err != nil {
		return nil, false, err
	}
	return u, true, nil
}

func (s *service) ByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	u, err := s.r.UserByTelegramID(ctx, telegramID)
	if err != nil {
		if errors.Is(err, ledgerrepo.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

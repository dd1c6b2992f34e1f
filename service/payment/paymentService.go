package paymentsvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tripbot/model"
	ledgerrepo "tripbot/repository/ledger"
	telegramrepo "tripbot/repository/telegram"
	creditsvc "tripbot/service/credits"
	"tripbot/util/metrics"

	"github.com/google/uuid"
)

type ErrCode string

const (
	ErrDuplicateCharge  ErrCode = "DUPLICATE_CHARGE"
	ErrPurchaseNotFound ErrCode = "PURCHASE_NOT_FOUND"
	ErrAlreadyRefunded  ErrCode = "ALREADY_REFUNDED"
	ErrValidation       ErrCode = "VALIDATION_ERROR"
	ErrTransport        ErrCode = "DOWNSTREAM_TRANSPORT_ERROR"
)

type codedError struct {
	code ErrCode
	msg  string
	err  error
}

func (e codedError) Error() string {
	if e.msg == "" {
		return string(e.code)
	}
	return string(e.code) + ": " + e.msg
}
func (e codedError) Code() ErrCode { return e.code }
func (e codedError) Unwrap() error { return e.err }

func makeErr(c ErrCode, msg string) error { return codedError{code: c, msg: msg} }
func wrapErr(c ErrCode, err error) error  { return codedError{code: c, msg: err.Error(), err: err} }

// Code extracts error code
func Code(err error) ErrCode {
	var ce interface{ Code() ErrCode }
	if errors.As(err, &ce) {
		return ce.Code()
	}
	return ""
}

// IsRedelivery reports errors caused by a repeated webhook delivery. They
// mean the ledger already holds the outcome and nothing was changed.
func IsRedelivery(err error) bool {
	c := Code(err)
	return c == ErrDuplicateCharge || c == ErrAlreadyRefunded
}

const (
	maxTxAttempts = 3
	retryBackoff  = 100 * time.Millisecond
)

type Service interface {
	// RecordPurchase stores the purchase and grants the item's credits in one
	// transaction. A second call with the same chargeID returns ErrDuplicateCharge.
	RecordPurchase(ctx context.Context, userID uuid.UUID, itemID, itemName string, price int64, chargeID string) (*model.Purchase, error)
	// RecordRefund moves a purchase to the refunded state and deducts the
	// credits it granted (clamped at zero).
	RecordRefund(ctx context.Context, userID uuid.UUID, chargeID string) (*model.Refund, error)

	CheckPreCheckout(q model.PreCheckoutQuery) error
	AnswerPreCheckout(ctx context.Context, queryID string, ok bool, errMsg string) error

	// RefundCharge returns the Stars through Telegram and then records the
	// refund. Failures are logged and reported as false.
	RefundCharge(ctx context.Context, userID uuid.UUID, telegramID int64, chargeID string) bool

	CreateInvoice(ctx context.Context, itemID string, telegramID int64) (string, error)
}

type service struct {
	r       ledgerrepo.Repo
	credits creditsvc.Service
	tg      telegramrepo.Repo
	log     *slog.Logger
	now     func() time.Time
}

func New(r ledgerrepo.Repo, credits creditsvc.Service, tg telegramrepo.Repo, log *slog.Logger) Service {
	if log == nil {
		log = slog.Default()
	}
	return &service{r: r, credits: credits, tg: tg, log: log, now: time.Now}
}

func (s *service) RecordPurchase(ctx context.Context, userID uuid.UUID, itemID, itemName string, price int64, chargeID string) (*model.Purchase, error) {
	id, err := model.ParseItemID(itemID)
	if err != nil {
		return nil, wrapErr(ErrValidation, err)
	}
	if price <= 0 {
		return nil, makeErr(ErrValidation, "price must be positive")
	}
	if chargeID == "" {
		return nil, makeErr(ErrValidation, "missing charge id")
	}
	if itemName == "" {
		itemName = id.Item().Name
	}

	var p *model.Purchase
	err = s.withRetry(ctx, func() error {
		p = &model.Purchase{
			ID:             uuid.New(),
			UserID:         userID,
			ItemID:         id,
			ItemName:       itemName,
			Price:          price,
			CreditsGranted: id.Item().Grant(),
			ChargeID:       chargeID,
			CreatedAt:      s.now().UTC(),
		}
		return s.r.WithTx(ctx, func(tx ledgerrepo.Tx) error {
			if _, err := tx.PurchaseByChargeID(ctx, chargeID); err == nil {
				return makeErr(ErrDuplicateCharge, chargeID)
			} else if !errors.Is(err, ledgerrepo.ErrNotFound) {
				return err
			}
			if _, err := tx.LockUser(ctx, userID); err != nil {
				if errors.Is(err, ledgerrepo.ErrNotFound) {
					return creditsvc.ErrUserNotFound
				}
				return err
			}
			if err := tx.InsertPurchase(ctx, p); err != nil {
				if errors.Is(err, ledgerrepo.ErrConflict) {
					return makeErr(ErrDuplicateCharge, chargeID)
				}
				return err
			}
			_, err := s.credits.AdjustBalanceTx(ctx, tx, userID, p.CreditsGranted,
				"Purchase: "+itemName, creditsvc.Ref{PurchaseID: &p.ID, ChargeID: chargeID})
			return err
		})
	})
	switch {
	case err == nil:
		metrics.Purchases.WithLabelValues("recorded").Inc()
		metrics.CreditsGranted.WithLabelValues("purchase").Add(float64(p.CreditsGranted))
		return p, nil
	case Code(err) == ErrDuplicateCharge:
		metrics.Purchases.WithLabelValues("duplicate").Inc()
	default:
		metrics.Purchases.WithLabelValues("failed").Inc()
	}
	return nil, err
}

func (s *service) RecordRefund(ctx context.Context, userID uuid.UUID, chargeID string) (*model.Refund, error) {
	var ref *model.Refund
	err := s.withRetry(ctx, func() error {
		return s.r.WithTx(ctx, func(tx ledgerrepo.Tx) error {
			p, err := tx.LockPurchase(ctx, chargeID)
			if err != nil {
				if errors.Is(err, ledgerrepo.ErrNotFound) {
					return makeErr(ErrPurchaseNotFound, chargeID)
				}
				return err
			}
			if p.UserID != userID {
				return makeErr(ErrPurchaseNotFound, chargeID)
			}
			if p.IsRefunded {
				return makeErr(ErrAlreadyRefunded, chargeID)
			}

			ref = &model.Refund{
				ID:         uuid.New(),
				UserID:     userID,
				ChargeID:   chargeID,
				PurchaseID: p.ID,
				CreatedAt:  s.now().UTC(),
			}
			if err := tx.InsertRefund(ctx, ref); err != nil {
				if errors.Is(err, ledgerrepo.ErrConflict) {
					return makeErr(ErrAlreadyRefunded, chargeID)
				}
				return err
			}
			if err := tx.MarkPurchaseRefunded(ctx, p.ID); err != nil {
				if errors.Is(err, ledgerrepo.ErrConflict) {
					return makeErr(ErrAlreadyRefunded, chargeID)
				}
				return err
			}
			_, err = s.credits.AdjustBalanceTx(ctx, tx, userID, -p.CreditsGranted,
				"Refund: "+p.ItemName, creditsvc.Ref{PurchaseID: &p.ID, ChargeID: chargeID})
			return err
		})
	})
	switch {
	case err == nil:
		metrics.Refunds.WithLabelValues("recorded").Inc()
		return ref, nil
	case Code(err) == ErrAlreadyRefunded:
		metrics.Refunds.WithLabelValues("duplicate").Inc()
	default:
		metrics.Refunds.WithLabelValues("failed").Inc()
	}
	return nil, err
}

// withRetry reruns fn on infrastructure errors. Domain outcomes (coded
// errors, unknown user) are final.
func (s *service) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = fn()
		if err == nil || Code(err) != "" || errors.Is(err, creditsvc.ErrUserNotFound) {
			return err
		}
		if attempt == maxTxAttempts {
			break
		}
		s.log.Warn("ledger transaction failed, retrying", "attempt", attempt, "err", err)
		select {
		case <-ctx.Done():
			return err
		case <-time.After(retryBackoff * time.Duration(attempt)):
		}
	}
	return err
}

func (s *service) CheckPreCheckout(q model.PreCheckoutQuery) error {
	if q.Currency != model.StarsCurrency {
		return makeErr(ErrValidation, "unsupported currency")
	}
	var payload model.InvoicePayload
	if err := json.Unmarshal([]byte(q.InvoicePayload), &payload); err != nil {
		return makeErr(ErrValidation, "malformed invoice payload")
	}
	id, err := model.ParseItemID(string(payload.ItemID))
	if err != nil {
		return wrapErr(ErrValidation, err)
	}
	if item := id.Item(); q.TotalAmount != item.Price {
		return makeErr(ErrValidation, fmt.Sprintf("price mismatch: got %d, want %d", q.TotalAmount, item.Price))
	}
	return nil
}

func (s *service) AnswerPreCheckout(ctx context.Context, queryID string, ok bool, errMsg string) error {
	if err := s.tg.AnswerPreCheckoutQuery(ctx, queryID, ok, errMsg); err != nil {
		return wrapErr(ErrTransport, err)
	}
	return nil
}

func (s *service) RefundCharge(ctx context.Context, userID uuid.UUID, telegramID int64, chargeID string) bool {
	log := s.log.With("charge_id", chargeID, "telegram_id", telegramID)

	p, err := s.r.PurchaseByChargeID(ctx, chargeID)
	if err != nil {
		log.Warn("refund requested for unknown charge", "err", err)
		return false
	}
	if p.UserID != userID {
		log.Warn("refund requested by non-owner")
		return false
	}
	if p.IsRefunded {
		log.Info("charge already refunded")
		return true
	}

	if err := s.tg.RefundStarPayment(ctx, telegramID, chargeID); err != nil {
		log.Error("telegram refund failed", "err", err)
		metrics.Refunds.WithLabelValues("transport_failed").Inc()
		return false
	}

	if _, err := s.RecordRefund(ctx, userID, chargeID); err != nil {
		if IsRedelivery(err) {
			return true
		}
		// Stars went back to the user but the ledger did not follow.
		log.Error("refund issued but not recorded", "err", err)
		return false
	}
	log.Info("refund recorded")
	return true
}

func (s *service) CreateInvoice(ctx context.Context, itemID string, telegramID int64) (string, error) {
	id, err := model.ParseItemID(itemID)
	if err != nil {
		return "", wrapErr(ErrValidation, err)
	}
	item := id.Item()
	payload, err := json.Marshal(model.InvoicePayload{ItemID: id, UserID: telegramID})
	if err != nil {
		return "", err
	}
	link, err := s.tg.CreateInvoiceLink(ctx, telegramrepo.InvoiceReq{
		Title:       item.Name,
		Description: item.Description,
		Payload:     string(payload),
		Currency:    model.StarsCurrency,
		Amount:      item.Price,
		Label:       item.Name,
	})
	if err != nil {
		return "", wrapErr(ErrTransport, err)
	}
	return link, nil
}

package paymentsvc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"tripbot/model"
	ledgerrepo "tripbot/repository/ledger"
	telegramrepo "tripbot/repository/telegram"
	creditsvc "tripbot/service/credits"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type tgMock struct {
	createInvoiceFn func(ctx context.Context, req telegramrepo.InvoiceReq) (string, error)
	answerFn        func(ctx context.Context, queryID string, ok bool, errMsg string) error
	refundFn        func(ctx context.Context, userID int64, chargeID string) error
}

var _ telegramrepo.Repo = (*tgMock)(nil)

func (m *tgMock) SendMessage(ctx context.Context, chatID int64, text string) error { return nil }
func (m *tgMock) SendWebAppButton(ctx context.Context, chatID int64, text string, btn telegramrepo.Button) error {
	return nil
}
func (m *tgMock) CreateInvoiceLink(ctx context.Context, req telegramrepo.InvoiceReq) (string, error) {
	return m.createInvoiceFn(ctx, req)
}
func (m *tgMock) AnswerPreCheckoutQuery(ctx context.Context, queryID string, ok bool, errMsg string) error {
	if m.answerFn == nil {
		return nil
	}
	return m.answerFn(ctx, queryID, ok, errMsg)
}
func (m *tgMock) RefundStarPayment(ctx context.Context, userID int64, chargeID string) error {
	if m.refundFn == nil {
		return nil
	}
	return m.refundFn(ctx, userID, chargeID)
}
func (m *tgMock) SetWebhook(ctx context.Context, url, secretToken string) error { return nil }

// flakyRepo fails the first n transactions with a driver-level error.
type flakyRepo struct {
	ledgerrepo.Repo
	mu    sync.Mutex
	fails int
	calls int
}

func (f *flakyRepo) WithTx(ctx context.Context, fn func(tx ledgerrepo.Tx) error) error {
	f.mu.Lock()
	f.calls++
	fail := f.fails > 0
	if fail {
		f.fails--
	}
	f.mu.Unlock()
	if fail {
		return errors.New("connection reset by peer")
	}
	return f.Repo.WithTx(ctx, fn)
}

type fixture struct {
	svc     *service
	repo    *ledgerrepo.Memory
	credits creditsvc.Service
	tg      *tgMock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := ledgerrepo.NewMemory()
	credits := creditsvc.New(repo)
	tg := &tgMock{}
	svc := New(repo, credits, tg, slog.New(slog.NewTextHandler(io.Discard, nil))).(*service)
	return &fixture{svc: svc, repo: repo, credits: credits, tg: tg}
}

func (f *fixture) user(t *testing.T, telegramID int64) *model.User {
	t.Helper()
	u, err := f.credits.CreateUser(context.Background(), telegramID, model.Profile{FirstName: "Test"})
	require.NoError(t, err)
	return u
}

func TestPurchaseThenRefund_BasicPlan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, 1001)

	p, err := f.svc.RecordPurchase(ctx, u.ID, "basic_plan", "Basic Plan", 2, "chg-basic")
	require.NoError(t, err)
	require.Equal(t, int64(30), p.CreditsGranted)
	require.False(t, p.IsRefunded)

	bal, err := f.credits.Balance(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, int64(40), bal)

	var refundedUser int64
	f.tg.refundFn = func(ctx context.Context, userID int64, chargeID string) error {
		refundedUser = userID
		return nil
	}
	require.True(t, f.svc.RefundCharge(ctx, u.ID, 1001, "chg-basic"))
	require.Equal(t, int64(1001), refundedUser)

	bal, err = f.credits.Balance(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, int64(10), bal)

	stored, err := f.repo.PurchaseByChargeID(ctx, "chg-basic")
	require.NoError(t, err)
	require.True(t, stored.IsRefunded)

	hist, err := f.credits.History(ctx, u.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, hist, 3)
	require.Equal(t, "Purchase: Basic Plan", hist[1].Action)
	require.Equal(t, "Refund: Basic Plan", hist[2].Action)
	require.Equal(t, int64(-30), hist[2].Amount)
	require.Equal(t, bal, model.ReplayHistory(hist))
}

func TestRecordPurchase_DuplicateCharge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, 7)

	_, err := f.svc.RecordPurchase(ctx, u.ID, "standard_plan", "Standard Plan", 5, "chg-dup")
	require.NoError(t, err)

	_, err = f.svc.RecordPurchase(ctx, u.ID, "standard_plan", "Standard Plan", 5, "chg-dup")
	require.Equal(t, ErrDuplicateCharge, Code(err))
	require.True(t, IsRedelivery(err))

	bal, err := f.credits.Balance(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, int64(10+85), bal)
}

func TestRecordPurchase_ConcurrentDeliveries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, 8)

	const n = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ok, dup int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.RecordPurchase(ctx, u.ID, "premium_plan", "Premium Plan", 10, "chg-race")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case Code(err) == ErrDuplicateCharge:
				dup++
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, ok)
	require.Equal(t, n-1, dup)
	bal, err := f.credits.Balance(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, int64(210), bal)
}

func TestRecordPurchase_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, 9)

	_, err := f.svc.RecordPurchase(ctx, u.ID, "gold_plan", "Gold", 2, "chg")
	require.Equal(t, ErrValidation, Code(err))
	require.ErrorIs(t, err, model.ErrUnknownItem)

	_, err = f.svc.RecordPurchase(ctx, u.ID, "basic_plan", "Basic Plan", 0, "chg")
	require.Equal(t, ErrValidation, Code(err))

	_, err = f.svc.RecordPurchase(ctx, uuid.New(), "basic_plan", "Basic Plan", 2, "chg")
	require.ErrorIs(t, err, creditsvc.ErrUserNotFound)

	_, err = f.repo.PurchaseByChargeID(ctx, "chg")
	require.ErrorIs(t, err, ledgerrepo.ErrNotFound)
}

func TestRecordPurchase_RetriesTransientFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, 10)

	flaky := &flakyRepo{Repo: f.repo, fails: 2}
	f.svc.r = flaky

	_, err := f.svc.RecordPurchase(ctx, u.ID, "basic_plan", "", 2, "chg-flaky")
	require.NoError(t, err)
	require.Equal(t, 3, flaky.calls)

	p, err := f.repo.PurchaseByChargeID(ctx, "chg-flaky")
	require.NoError(t, err)
	require.Equal(t, "Basic Plan", p.ItemName)

	flaky.fails = maxTxAttempts
	_, err = f.svc.RecordPurchase(ctx, u.ID, "basic_plan", "", 2, "chg-flaky-2")
	require.Error(t, err)
	require.Empty(t, Code(err))
}

func TestRecordRefund_Terminal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, 11)

	_, err := f.svc.RecordPurchase(ctx, u.ID, "basic_plan", "Basic Plan", 2, "chg-r")
	require.NoError(t, err)

	_, err = f.svc.RecordRefund(ctx, u.ID, "chg-r")
	require.NoError(t, err)

	_, err = f.svc.RecordRefund(ctx, u.ID, "chg-r")
	require.Equal(t, ErrAlreadyRefunded, Code(err))

	bal, err := f.credits.Balance(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, int64(10), bal)
}

func TestRecordRefund_NotFound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, 12)
	other := f.user(t, 13)

	_, err := f.svc.RecordRefund(ctx, owner.ID, "missing")
	require.Equal(t, ErrPurchaseNotFound, Code(err))

	_, err = f.svc.RecordPurchase(ctx, owner.ID, "basic_plan", "Basic Plan", 2, "chg-owner")
	require.NoError(t, err)
	_, err = f.svc.RecordRefund(ctx, other.ID, "chg-owner")
	require.Equal(t, ErrPurchaseNotFound, Code(err))
}

func TestRefund_ClampsAfterSpending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, 14)

	_, err := f.svc.RecordPurchase(ctx, u.ID, "basic_plan", "Basic Plan", 2, "chg-spent")
	require.NoError(t, err)
	_, err = f.credits.Spend(ctx, u.ID, 35, model.ActionItinerary, creditsvc.Ref{})
	require.NoError(t, err)

	_, err = f.svc.RecordRefund(ctx, u.ID, "chg-spent")
	require.NoError(t, err)

	bal, err := f.credits.Balance(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, int64(0), bal)
}

func TestRefundCharge_TransportFailureLeavesLedger(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, 15)

	_, err := f.svc.RecordPurchase(ctx, u.ID, "basic_plan", "Basic Plan", 2, "chg-t")
	require.NoError(t, err)

	f.tg.refundFn = func(ctx context.Context, userID int64, chargeID string) error {
		return &telegramrepo.APIError{Method: "refundStarPayment", Code: 400, Description: "Bad Request"}
	}
	require.False(t, f.svc.RefundCharge(ctx, u.ID, 15, "chg-t"))

	p, err := f.repo.PurchaseByChargeID(ctx, "chg-t")
	require.NoError(t, err)
	require.False(t, p.IsRefunded)
	bal, err := f.credits.Balance(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, int64(40), bal)
}

func TestRefundCharge_SkipsTransportWhenAlreadyRefunded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, 16)

	_, err := f.svc.RecordPurchase(ctx, u.ID, "basic_plan", "Basic Plan", 2, "chg-twice")
	require.NoError(t, err)

	calls := 0
	f.tg.refundFn = func(ctx context.Context, userID int64, chargeID string) error {
		calls++
		return nil
	}
	require.True(t, f.svc.RefundCharge(ctx, u.ID, 16, "chg-twice"))
	require.True(t, f.svc.RefundCharge(ctx, u.ID, 16, "chg-twice"))
	require.Equal(t, 1, calls)

	require.False(t, f.svc.RefundCharge(ctx, u.ID, 16, "unknown"))
	require.Equal(t, 1, calls)
}

func TestCheckPreCheckout(t *testing.T) {
	f := newFixture(t)

	good := model.PreCheckoutQuery{ID: "q", Currency: "XTR", TotalAmount: 5, InvoicePayload: `{"itemId":"standard_plan","userId":1}`}
	require.NoError(t, f.svc.CheckPreCheckout(good))

	cases := map[string]model.PreCheckoutQuery{
		"currency": {Currency: "USD", TotalAmount: 5, InvoicePayload: good.InvoicePayload},
		"price":    {Currency: "XTR", TotalAmount: 1, InvoicePayload: good.InvoicePayload},
		"item":     {Currency: "XTR", TotalAmount: 5, InvoicePayload: `{"itemId":"nope"}`},
		"payload":  {Currency: "XTR", TotalAmount: 5, InvoicePayload: `not json`},
	}
	for name, q := range cases {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, ErrValidation, Code(f.svc.CheckPreCheckout(q)))
		})
	}
}

func TestAnswerPreCheckout_TransportError(t *testing.T) {
	f := newFixture(t)
	f.tg.answerFn = func(ctx context.Context, queryID string, ok bool, errMsg string) error {
		return telegramrepo.ErrTransport
	}
	err := f.svc.AnswerPreCheckout(context.Background(), "q", true, "")
	require.Equal(t, ErrTransport, Code(err))
	require.ErrorIs(t, err, telegramrepo.ErrTransport)
}

func TestCreateInvoice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var got telegramrepo.InvoiceReq
	f.tg.createInvoiceFn = func(ctx context.Context, req telegramrepo.InvoiceReq) (string, error) {
		got = req
		return "https://t.me/$inv", nil
	}

	link, err := f.svc.CreateInvoice(ctx, "premium_plan", 42)
	require.NoError(t, err)
	require.Equal(t, "https://t.me/$inv", link)
	require.Equal(t, "XTR", got.Currency)
	require.Equal(t, int64(10), got.Amount)
	require.JSONEq(t, `{"itemId":"premium_plan","userId":42}`, got.Payload)

	_, err = f.svc.CreateInvoice(ctx, "bogus", 42)
	require.Equal(t, ErrValidation, Code(err))

	f.tg.createInvoiceFn = func(ctx context.Context, req telegramrepo.InvoiceReq) (string, error) {
		return "", telegramrepo.ErrTransport
	}
	_, err = f.svc.CreateInvoice(ctx, "basic_plan", 42)
	require.Equal(t, ErrTransport, Code(err))
}

func TestWithRetry_StopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	start := time.Now()
	err := f.svc.withRetry(ctx, func() error {
		calls++
		return errors.New("boom")
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
	require.Less(t, time.Since(start), retryBackoff)
}

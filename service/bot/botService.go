package botsvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"tripbot/model"
	telegramrepo "tripbot/repository/telegram"
	creditsvc "tripbot/service/credits"
	itinerarysvc "tripbot/service/itinerary"
	paymentsvc "tripbot/service/payment"
	usersvc "tripbot/service/user"
	"tripbot/util/metrics"
)

const (
	helpText = "Commands:\n/start - open the planner\n/balance - show your credits\n" +
		"/plan <trip> - plan a trip (5 credits)\n/refund <charge id> - refund a purchase"
	rejectText = "This item is no longer available. You have not been charged."
)

var ErrNoSender = errors.New("update has no sender")

type Service interface {
	// HandleUpdate processes one webhook update. Redelivered payments are
	// a logged no-op, not an error.
	HandleUpdate(ctx context.Context, u model.Update) error
}

type Deps struct {
	Users     usersvc.Service
	Credits   creditsvc.Service
	Payments  paymentsvc.Service
	Itinerary itinerarysvc.Service
	Telegram  telegramrepo.Repo
	Log       *slog.Logger
	WebAppURL string
}

type service struct{ Deps }

func New(d Deps) Service {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	return &service{d}
}

func (s *service) HandleUpdate(ctx context.Context, u model.Update) error {
	kind, err := s.dispatch(ctx, u)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.WebhookUpdates.WithLabelValues(kind, outcome).Inc()
	return err
}

func (s *service) dispatch(ctx context.Context, u model.Update) (string, error) {
	switch {
	case u.PreCheckoutQuery != nil:
		return "pre_checkout_query", s.preCheckout(ctx, u.PreCheckoutQuery)
	case u.Message != nil && u.Message.SuccessfulPayment != nil:
		return "successful_payment", s.successfulPayment(ctx, u.Message)
	case u.Message != nil && strings.HasPrefix(u.Message.Text, "/"):
		return "command", s.command(ctx, u.Message)
	}
	return "ignored", nil
}

func (s *service) preCheckout(ctx context.Context, q *model.PreCheckoutQuery) error {
	if err := s.Payments.CheckPreCheckout(*q); err != nil {
		s.Log.Warn("pre-checkout rejected", "query_id", q.ID, "from", q.From.ID, "err", err)
		return s.Payments.AnswerPreCheckout(ctx, q.ID, false, rejectText)
	}
	return s.Payments.AnswerPreCheckout(ctx, q.ID, true, "")
}

func (s *service) successfulPayment(ctx context.Context, m *model.Message) error {
	if m.From == nil {
		return ErrNoSender
	}
	sp := m.SuccessfulPayment
	log := s.Log.With("charge_id", sp.TelegramPaymentChargeID, "telegram_id", m.From.ID)

	var payload model.InvoicePayload
	if err := json.Unmarshal([]byte(sp.InvoicePayload), &payload); err != nil {
		return fmt.Errorf("decode invoice payload: %w", err)
	}
	id, err := model.ParseItemID(string(payload.ItemID))
	if err != nil {
		return err
	}
	item := id.Item()
	// Telegram has already taken the Stars, so a mismatch is recorded as paid.
	if sp.Currency != model.StarsCurrency || sp.TotalAmount != item.Price {
		log.Warn("successful_payment does not match catalog",
			"item_id", id, "currency", sp.Currency, "amount", sp.TotalAmount, "price", item.Price)
	}

	user, _, err := s.Users.Bootstrap(ctx, m.From.ID, m.From.Profile())
	if err != nil {
		return err
	}
	p, err := s.Payments.RecordPurchase(ctx, user.ID, string(id), item.Name, sp.TotalAmount, sp.TelegramPaymentChargeID)
	if err != nil {
		if paymentsvc.IsRedelivery(err) {
			log.Info("duplicate successful_payment ignored")
			return nil
		}
		return err
	}
	log.Info("purchase recorded", "item_id", id, "credits", p.CreditsGranted)

	bal, err := s.Credits.Balance(ctx, user.ID)
	if err != nil {
		return err
	}
	s.reply(ctx, m.Chat.ID, fmt.Sprintf("Thank you! %s added %d credits. Balance: %d.\nRefund id: %s",
		item.Name, p.CreditsGranted, bal, p.ChargeID))
	return nil
}

func (s *service) command(ctx context.Context, m *model.Message) error {
	if m.From == nil {
		return ErrNoSender
	}
	cmd, arg := parseCommand(m.Text)
	if cmd == "/help" {
		s.reply(ctx, m.Chat.ID, helpText)
		return nil
	}

	user, created, err := s.Users.Bootstrap(ctx, m.From.ID, m.From.Profile())
	if err != nil {
		return err
	}

	switch cmd {
	case "/start":
		text := fmt.Sprintf("Welcome back, %s! You have %d credits.", m.From.FirstName, user.Credits)
		if created {
			text = fmt.Sprintf("Welcome, %s! Here are %d free credits to plan your first trip.", m.From.FirstName, creditsvc.WelcomeBonus)
		}
		if s.WebAppURL == "" {
			s.reply(ctx, m.Chat.ID, text)
			return nil
		}
		if err := s.Telegram.SendWebAppButton(ctx, m.Chat.ID, text, telegramrepo.Button{Text: "Open planner", WebAppURL: s.WebAppURL}); err != nil {
			s.Log.Warn("send welcome failed", "chat_id", m.Chat.ID, "err", err)
		}
	case "/balance":
		s.reply(ctx, m.Chat.ID, fmt.Sprintf("You have %d credits.", user.Credits))
	case "/refund":
		if arg == "" {
			s.reply(ctx, m.Chat.ID, "Usage: /refund <charge id>")
			return nil
		}
		if s.Payments.RefundCharge(ctx, user.ID, m.From.ID, arg) {
			s.reply(ctx, m.Chat.ID, "Refund processed. The Stars are on their way back.")
		} else {
			s.reply(ctx, m.Chat.ID, "We could not process this refund.")
		}
	case "/plan":
		if len(arg) < 3 {
			s.reply(ctx, m.Chat.ID, "Usage: /plan <where and how long>")
			return nil
		}
		bal, err := s.Itinerary.Request(ctx, user.ID, m.Chat.ID, arg)
		switch {
		case errors.Is(err, creditsvc.ErrInsufficientCredits):
			s.reply(ctx, m.Chat.ID, fmt.Sprintf("A trip plan costs %d credits, you have %d.", itinerarysvc.Cost, user.Credits))
		case err != nil:
			s.reply(ctx, m.Chat.ID, "The planner is busy, please try again later.")
			return err
		default:
			s.reply(ctx, m.Chat.ID, fmt.Sprintf("Planning your trip... %d credits left.", bal))
		}
	default:
		s.reply(ctx, m.Chat.ID, helpText)
	}
	return nil
}

func (s *service) reply(ctx context.Context, chatID int64, text string) {
	if err := s.Telegram.SendMessage(ctx, chatID, text); err != nil {
		s.Log.Warn("send message failed", "chat_id", chatID, "err", err)
	}
}

// parseCommand splits "/cmd@bot arg..." into "/cmd" and the trimmed rest.
func parseCommand(text string) (string, string) {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(text), " ")
	cmd, _, _ = strings.Cut(cmd, "@")
	return strings.ToLower(cmd), strings.TrimSpace(arg)
}

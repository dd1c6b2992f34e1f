package telegram

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"tripbot/model"
	botsvc "tripbot/service/bot"
	"tripbot/util/metrics"

	"github.com/labstack/echo/v4"
)

// SecretHeader carries the secret_token given to setWebhook.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

const (
	maxBody       = 1 << 20
	handleTimeout = 25 * time.Second
)

type Controller struct {
	Svc    botsvc.Service
	Secret string
	Log    *slog.Logger
}

// Webhook receives Telegram updates
// @Summary      Telegram webhook
// @Description  Always answers 200 so Telegram does not retry; failures are logged.
// @Tags         telegram
// @Accept       json
// @Produce      json
// @Param        payload  body  model.Update  true  "Telegram Update"
// @Success      200  {object}  map[string]any
// @Router       /telegram [post]
func (h *Controller) Webhook(c echo.Context) error {
	rid := c.Response().Header().Get(echo.HeaderXRequestID)
	log := h.Log.With("req_id", rid)

	if h.Secret != "" {
		got := c.Request().Header.Get(SecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.Secret)) != 1 {
			log.Warn("webhook secret mismatch", "ip", c.RealIP())
			metrics.WebhookUpdates.WithLabelValues("unknown", "unauthorized").Inc()
			return ack(c)
		}
	}

	raw, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBody))
	if err != nil {
		log.Warn("webhook body read failed", "err", err)
		return ack(c)
	}
	var u model.Update
	if err := json.Unmarshal(raw, &u); err != nil {
		log.Warn("webhook body is not an update", "err", err)
		metrics.WebhookUpdates.WithLabelValues("unknown", "malformed").Inc()
		return ack(c)
	}

	// Telegram may drop the connection before we finish; the ledger write
	// must not be cut short by that.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), handleTimeout)
	defer cancel()
	if err := h.Svc.HandleUpdate(ctx, u); err != nil {
		log.Error("update processing failed", "update_id", u.UpdateID, "err", err)
	}
	return ack(c)
}

func ack(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

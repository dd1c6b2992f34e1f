package itinerary

import (
	"errors"
	"log/slog"
	"net/http"

	"tripbot/app/echoServer/jwtx"
	"tripbot/app/echoServer/validation"
	"tripbot/model"
	creditsvc "tripbot/service/credits"
	itinerarysvc "tripbot/service/itinerary"
	usersvc "tripbot/service/user"

	"github.com/labstack/echo/v4"
)

type Controller struct {
	Svc   itinerarysvc.Service
	Users usersvc.Service
	Log   *slog.Logger
}

// Create spends credits and schedules an itinerary, delivered in the bot chat
// @Summary      Request itinerary
// @Tags         itineraries
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body  model.ItineraryReq  true  "Trip description"
// @Success      202  {object}  map[string]any
// @Failure      400,401,404  {object}  map[string]any
// @Failure      402  {object}  map[string]any "not enough credits"
// @Failure      503  {object}  map[string]any
// @Router       /v1/me/itineraries [post]
func (h *Controller) Create(c echo.Context) error {
	tgID, err := jwtx.TelegramIDFromContext(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	var req model.ItineraryReq
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, echo.Map{"error": "validation error", "fields": validation.Fields(err)})
	}

	ctx := c.Request().Context()
	u, err := h.Users.ByTelegramID(ctx, tgID)
	if err != nil {
		if errors.Is(err, usersvc.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "user not found")
		}
		h.Log.Error("user lookup failed", "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	// private chat id equals the user's Telegram id
	bal, err := h.Svc.Request(ctx, u.ID, tgID, req.Prompt)
	switch {
	case errors.Is(err, creditsvc.ErrInsufficientCredits):
		return c.JSON(http.StatusPaymentRequired, echo.Map{
			"message": "not enough credits",
			"cost":    itinerarysvc.Cost,
			"balance": u.Credits,
		})
	case errors.Is(err, itinerarysvc.ErrQueueUnavailable):
		h.Log.Warn("itinerary queue unavailable", "err", err)
		return echo.NewHTTPError(http.StatusServiceUnavailable, "planner busy, credits returned")
	case err != nil:
		h.Log.Error("itinerary request failed", "err", err, "user_id", u.ID)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusAccepted, echo.Map{"message": "planning", "balance": bal})
}

package dashboard

import (
	"log/slog"
	"net/http"
	"time"

	dashboardsvc "tripbot/service/dashboard"

	"github.com/labstack/echo/v4"
)

type Controller struct {
	Svc dashboardsvc.Service
	Log *slog.Logger
	Now func() time.Time
}

// Summary
// @Summary      Dashboard aggregates
// @Description  Revenue (net of refunds), counts and a 30-day daily revenue series
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  dashboardsvc.Summary
// @Failure      401,403,500  {object}  map[string]any
// @Router       /admin/dashboard [get]
func (h *Controller) Summary(c echo.Context) error {
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	s, err := h.Svc.Summary(c.Request().Context(), now())
	if err != nil {
		h.Log.Error("dashboard summary failed", "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, s)
}

package user

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"tripbot/app/echoServer/jwtx"
	"tripbot/app/echoServer/validation"
	"tripbot/model"
	creditsvc "tripbot/service/credits"
	usersvc "tripbot/service/user"

	"github.com/labstack/echo/v4"
)

const maxPage = 100

type Controller struct {
	Svc     usersvc.Service
	Credits creditsvc.Service
	Log     *slog.Logger
}

// Bootstrap returns the user for a Telegram id, creating it on first call
// @Summary      Bootstrap user
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        payload  body  model.BootstrapReq  true  "Telegram profile"
// @Success      200  {object}  map[string]any "existing user"
// @Success      201  {object}  map[string]any "created with welcome bonus"
// @Failure      400  {object}  map[string]any
// @Failure      500  {object}  map[string]any
// @Router       /user [post]
func (ct *Controller) Bootstrap(c echo.Context) error {
	var req model.BootstrapReq
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		ct.Log.Warn("validation failed", "path", c.Path(), "err", err)
		return echo.NewHTTPError(http.StatusBadRequest, echo.Map{"error": "validation error", "fields": validation.Fields(err)})
	}

	u, created, err := ct.Svc.Bootstrap(c.Request().Context(), req.TelegramID, req.Profile())
	if err != nil {
		rid := c.Response().Header().Get(echo.HeaderXRequestID)
		ct.Log.Error("bootstrap failed", "err", err, "req_id", rid, "telegram_id", req.TelegramID)
		return echo.NewHTTPError(http.StatusInternalServerError, "bootstrap failed")
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return c.JSON(status, echo.Map{"user": u, "created": created})
}

// Me returns the session user
// @Summary      Current user
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  map[string]any
// @Failure      401,404  {object}  map[string]any
// @Router       /v1/me [get]
func (ct *Controller) Me(c echo.Context) error {
	u, err := ct.sessionUser(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"user": u})
}

// History lists credit history, oldest first
// @Summary      Credit history
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        limit   query  int  false  "page size (max 100)"
// @Param        offset  query  int  false  "offset"
// @Success      200  {object}  map[string]any
// @Failure      401,404  {object}  map[string]any
// @Router       /v1/me/history [get]
func (ct *Controller) History(c echo.Context) error {
	u, err := ct.sessionUser(c)
	if err != nil {
		return err
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if limit <= 0 || limit > maxPage {
		limit = maxPage
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := ct.Credits.History(c.Request().Context(), u.ID, limit, offset)
	if err != nil {
		ct.Log.Error("history failed", "err", err, "user_id", u.ID)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, echo.Map{"data": rows, "limit": limit, "offset": offset})
}

func (ct *Controller) sessionUser(c echo.Context) (*model.User, error) {
	tgID, err := jwtx.TelegramIDFromContext(c)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	u, err := ct.Svc.ByTelegramID(c.Request().Context(), tgID)
	if err != nil {
		if errors.Is(err, usersvc.ErrNotFound) {
			return nil, echo.NewHTTPError(http.StatusNotFound, "user not found")
		}
		ct.Log.Error("user lookup failed", "err", err, "telegram_id", tgID)
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return u, nil
}

// app/echoServer/controller/auth/authController.go
package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"tripbot/app/echoServer/validation"
	"tripbot/model"
	authsvc "tripbot/service/auth"

	"github.com/labstack/echo/v4"
)

type Controller struct {
	Svc authsvc.Service
	Log *slog.Logger
}

// Verify Mini-App launch data
// @Summary      Verify launch data
// @Description  Checks the initData signature and returns the Telegram user plus a session token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body  model.VerifyReq  true  "Launch data"
// @Success      200  {object}  map[string]any
// @Failure      400  {object}  map[string]any
// @Failure      401  {object}  map[string]any
// @Router       /auth/verify [post]
func (ct *Controller) Verify(c echo.Context) error {
	var req model.VerifyReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"valid": false, "error": "VALIDATION_ERROR"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"valid": false, "error": "VALIDATION_ERROR", "fields": validation.Fields(err)})
	}

	res, token, err := ct.Svc.VerifyLaunch(req.InitData)
	if err != nil {
		rid := c.Response().Header().Get(echo.HeaderXRequestID)
		ct.Log.Error("issue session failed", "err", err, "req_id", rid)
		return c.JSON(http.StatusInternalServerError, echo.Map{"valid": false, "error": "internal error"})
	}
	if !res.Valid {
		ct.Log.Warn("launch data rejected", "reason", res.Error, "ip", c.RealIP())
		return c.JSON(http.StatusUnauthorized, res)
	}

	out := echo.Map{"valid": true, "user": res.User}
	if token != "" {
		out["token"] = token
	}
	return c.JSON(http.StatusOK, out)
}

// AdminLogin
// @Summary      Admin login
// @Description  Username + password, returns an admin JWT for the dashboard
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        payload  body  model.AdminLoginReq  true  "Login payload"
// @Success      200  {object}  map[string]any
// @Failure      400  {object}  map[string]any
// @Failure      401  {object}  map[string]any
// @Router       /admin/login [post]
func (ct *Controller) AdminLogin(c echo.Context) error {
	var req model.AdminLoginReq
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, echo.Map{"error": "validation error", "fields": validation.Fields(err)})
	}

	token, err := ct.Svc.AdminLogin(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, authsvc.ErrInvalidCreds) {
			ct.Log.Warn("admin login failed", "username", req.Username, "ip", c.RealIP())
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid username or password")
		}
		ct.Log.Error("admin login failed", "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "login failed")
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message": "login success",
		"token":   token,
	})
}

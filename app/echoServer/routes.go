package echoServer

import (
	"net/http"

	"tripbot/app/echoServer/controller/auth"
	"tripbot/app/echoServer/controller/dashboard"
	"tripbot/app/echoServer/controller/invoice"
	"tripbot/app/echoServer/controller/itinerary"
	"tripbot/app/echoServer/controller/telegram"
	"tripbot/app/echoServer/controller/user"
	"tripbot/app/echoServer/jwtx"
	jwtutil "tripbot/util/jwt"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type C struct {
	Auth      *auth.Controller
	Telegram  *telegram.Controller
	Invoice   *invoice.Controller
	User      *user.Controller
	Itinerary *itinerary.Controller
	Dashboard *dashboard.Controller
	JWTSecret string
	// Ready reports whether dependencies (database) are reachable.
	Ready func() error
}

func Register(e *echo.Echo, c C) {
	e.GET("/health", func(ctx echo.Context) error {
		if c.Ready != nil {
			if err := c.Ready(); err != nil {
				return ctx.JSON(http.StatusServiceUnavailable, echo.Map{"status": "degraded"})
			}
		}
		return ctx.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Public
	e.POST("/telegram", c.Telegram.Webhook)
	e.POST("/createInvoice", c.Invoice.CreateInvoice)
	e.GET("/items", c.Invoice.Catalog)
	e.POST("/auth/verify", c.Auth.Verify)
	e.POST("/user", c.User.Bootstrap)
	e.POST("/admin/login", c.Auth.AdminLogin)

	// Mini-App session
	me := e.Group("/v1/me")
	me.Use(echojwt.WithConfig(echojwt.Config{
		SigningKey:    []byte(c.JWTSecret),
		NewClaimsFunc: func(echo.Context) jwt.Claims { return jwt.MapClaims{} },
		TokenLookup:   "header:Authorization:Bearer ",
		ContextKey:    jwtx.ContextKey,
	}))
	me.GET("", c.User.Me)
	me.GET("/history", c.User.History)
	me.POST("/itineraries", c.Itinerary.Create)

	// Admin
	admin := e.Group("/admin")
	admin.Use(JWTAuth(c.JWTSecret, jwtutil.RoleAdmin))
	admin.GET("/dashboard", c.Dashboard.Summary)
}

package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"tripbot/app/echoServer"
	authctrl "tripbot/app/echoServer/controller/auth"
	dashboardctrl "tripbot/app/echoServer/controller/dashboard"
	invoicectrl "tripbot/app/echoServer/controller/invoice"
	itineraryctrl "tripbot/app/echoServer/controller/itinerary"
	telegramctrl "tripbot/app/echoServer/controller/telegram"
	userctrl "tripbot/app/echoServer/controller/user"
	"tripbot/app/echoServer/validation"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
	echoSwagger "github.com/swaggo/echo-swagger"
)

const shutdownTimeout = 15 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and Telegram webhook",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := newLogger()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := build(ctx, cfg, log, queueLocal)
	if err != nil {
		log.Error("startup failed", "err", err)
		return err
	}

	// controllers
	e := echo.New()
	e.HideBanner = true
	echoServer.RegisterMiddlewares(e, log)
	e.Validator = validation.New()

	e.GET("/swagger/*", echoSwagger.WrapHandler)

	echoServer.Register(e, echoServer.C{
		Auth:      &authctrl.Controller{Svc: a.auth, Log: log},
		Telegram:  &telegramctrl.Controller{Svc: a.bot, Secret: cfg.WebhookSecret, Log: log},
		Invoice:   &invoicectrl.Controller{Svc: a.payments, Log: log},
		User:      &userctrl.Controller{Svc: a.users, Credits: a.credits, Log: log},
		Itinerary: &itineraryctrl.Controller{Svc: a.itinerary, Users: a.users, Log: log},
		Dashboard: &dashboardctrl.Controller{Svc: a.dashboard, Log: log},
		JWTSecret: cfg.JWTSecret,
		Ready:     a.ready,
	})

	errc := make(chan error, 1)
	go func() {
		log.Info("starting server", "port", cfg.Port, "env", cfg.Env)
		errc <- e.Start(":" + cfg.Port)
	}()

	select {
	case err = <-errc:
	case <-ctx.Done():
		log.Info("shutting down")
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := e.Shutdown(sctx); serr != nil {
		log.Warn("http shutdown", "err", serr)
	}
	a.close(sctx)

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

package cli

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"tripbot/config"
	ledgerrepo "tripbot/repository/ledger"
	plannerrepo "tripbot/repository/planner"
	telegramrepo "tripbot/repository/telegram"
	authsvc "tripbot/service/auth"
	botsvc "tripbot/service/bot"
	creditsvc "tripbot/service/credits"
	dashboardsvc "tripbot/service/dashboard"
	itinerarysvc "tripbot/service/itinerary"
	paymentsvc "tripbot/service/payment"
	usersvc "tripbot/service/user"
	"tripbot/util/database"
	"tripbot/util/httpx"
	"tripbot/util/taskqueue"
)

type app struct {
	cfg config.App
	log *slog.Logger

	db       *database.DB
	ledger   ledgerrepo.Repo
	telegram telegramrepo.Repo

	credits   creditsvc.Service
	users     usersvc.Service
	payments  paymentsvc.Service
	itinerary itinerarysvc.Service
	bot       botsvc.Service
	auth      authsvc.Service
	dashboard dashboardsvc.Service

	tasks *taskqueue.Mux
	// closers run in reverse order on shutdown
	closers []func(ctx context.Context) error
}

// queueMode picks how itinerary tasks leave the request path.
type queueMode int

const (
	queueLocal queueMode = iota // in-process worker pool, or AMQP publisher when AMQP_URL is set
	queueNone                   // consumer side: tasks only arrive from the broker
)

func build(ctx context.Context, cfg config.App, log *slog.Logger, mode queueMode) (*app, error) {
	a := &app{cfg: cfg, log: log}

	if cfg.DatabaseURL != "" {
		db, err := database.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.db = db
		a.ledger = ledgerrepo.New(db.Pool)
		a.closers = append(a.closers, func(context.Context) error { db.Close(); return nil })
	} else {
		log.Warn("DATABASE_URL not set, using in-memory ledger; data is lost on restart")
		a.ledger = ledgerrepo.NewMemory()
	}

	a.telegram = telegramrepo.NewHTTP(cfg.TelegramAPIURL, cfg.BotToken, httpx.Client())
	planner := plannerrepo.New(cfg.AIAPIKey, cfg.AIBaseURL, cfg.AIModel, httpx.New(httpx.PlannerTimeout))

	a.credits = creditsvc.New(a.ledger)
	a.users = usersvc.New(a.ledger, a.credits)
	a.payments = paymentsvc.New(a.ledger, a.credits, a.telegram, log)
	a.dashboard = dashboardsvc.New(a.ledger)
	a.auth = authsvc.New(authsvc.Options{
		BotToken:          cfg.BotToken,
		JWTSecret:         cfg.JWTSecret,
		MaxAge:            cfg.AuthMaxAge(),
		AdminUsername:     cfg.AdminUsername,
		AdminPasswordHash: cfg.AdminPasswordHash,
	})

	a.tasks = taskqueue.NewMux(log)
	submitter, err := a.submitter(mode)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	a.itinerary = itinerarysvc.New(a.credits, planner, a.telegram, submitter, log)
	a.tasks.Register(itinerarysvc.TaskKind, taskqueue.HandlerFunc(a.itinerary.Handle))

	a.bot = botsvc.New(botsvc.Deps{
		Users:     a.users,
		Credits:   a.credits,
		Payments:  a.payments,
		Itinerary: a.itinerary,
		Telegram:  a.telegram,
		Log:       log,
		WebAppURL: cfg.WebAppURL,
	})
	return a, nil
}

var errNoQueue = errors.New("task submission disabled in this process")

type rejectSubmitter struct{}

func (rejectSubmitter) Submit(context.Context, taskqueue.Task) error { return errNoQueue }

func (a *app) submitter(mode queueMode) (taskqueue.Submitter, error) {
	if mode == queueNone {
		return rejectSubmitter{}, nil
	}
	if a.cfg.AMQPURL != "" {
		pub, err := taskqueue.NewPublisher(a.cfg.AMQPURL, a.cfg.AMQPQueue, a.log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return pub.Close() })
		return pub, nil
	}
	pool := taskqueue.NewPool(a.cfg.TaskWorkers, a.cfg.TaskBuffer, a.tasks, a.log)
	a.closers = append(a.closers, pool.Close)
	return pool, nil
}

func (a *app) ready() error {
	if a.db == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return a.db.Pool.Ping(ctx)
}

func (a *app) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.log.Warn("shutdown step failed", "err", err)
		}
	}
	a.closers = nil
}

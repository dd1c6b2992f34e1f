package cli

import (
	"errors"
	"os/signal"
	"syscall"

	"tripbot/util/taskqueue"

	"github.com/spf13/cobra"
)

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume background tasks (itinerary generation) from RabbitMQ",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.AMQPURL == "" {
				return errors.New("AMQP_URL is required")
			}
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required: the worker refunds credits on failure")
			}
			log := newLogger()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := build(ctx, cfg, log, queueNone)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			c := taskqueue.NewConsumer(cfg.AMQPURL, cfg.AMQPQueue, cfg.TaskWorkers, a.tasks, log)
			log.Info("worker started", "queue", cfg.AMQPQueue, "workers", cfg.TaskWorkers)
			return c.Run(ctx)
		},
	}
}

package itinerarysvc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"tripbot/model"
	plannerrepo "tripbot/repository/planner"
	telegramrepo "tripbot/repository/telegram"
	creditsvc "tripbot/service/credits"
	"tripbot/util/taskqueue"

	"github.com/google/uuid"
)

// Cost is charged per generated itinerary.
const Cost int64 = 5

const TaskKind = "itinerary.generate"

var ErrQueueUnavailable = errors.New("itinerary queue unavailable")

type Job struct {
	UserID uuid.UUID `json:"user_id"`
	ChatID int64     `json:"chat_id"`
	Prompt string    `json:"prompt"`
}

type Service interface {
	// Request spends Cost credits and schedules generation. It returns the
	// remaining balance once the task is enqueued.
	Request(ctx context.Context, userID uuid.UUID, chatID int64, prompt string) (int64, error)
	// Handle is the task handler that generates and delivers the itinerary.
	Handle(ctx context.Context, t taskqueue.Task) error
}

type service struct {
	credits creditsvc.Service
	planner plannerrepo.Repo
	tg      telegramrepo.Repo
	queue   taskqueue.Submitter
	log     *slog.Logger
}

func New(credits creditsvc.Service, planner plannerrepo.Repo, tg telegramrepo.Repo, queue taskqueue.Submitter, log *slog.Logger) Service {
	if log == nil {
		log = slog.Default()
	}
	return &service{credits: credits, planner: planner, tg: tg, queue: queue, log: log}
}

// taskRef ties the spend and any refund of one task together, so a task
// redelivered by the broker cannot be refunded twice.
func taskRef(taskID string) creditsvc.Ref { return creditsvc.Ref{ChargeID: "task:" + taskID} }

func (s *service) Request(ctx context.Context, userID uuid.UUID, chatID int64, prompt string) (int64, error) {
	t, err := taskqueue.NewTask(TaskKind, Job{UserID: userID, ChatID: chatID, Prompt: prompt})
	if err != nil {
		return 0, err
	}
	ref := taskRef(t.ID)
	bal, err := s.credits.Spend(ctx, userID, Cost, model.ActionItinerary, ref)
	if err != nil {
		return 0, err
	}

	if err := s.queue.Submit(ctx, t); err != nil {
		s.log.Error("itinerary enqueue failed, refunding", "user_id", userID, "task_id", t.ID, "err", err)
		if _, rerr := s.credits.AdjustOnce(context.WithoutCancel(ctx), userID, Cost, model.ActionItineraryRefund, ref); rerr != nil {
			s.log.Error("itinerary refund failed", "user_id", userID, "task_id", t.ID, "err", rerr)
		}
		return 0, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	return bal, nil
}

// Handle generates the itinerary. On failure it refunds the task's spend
// once and returns the error; the task must not run again after that.
func (s *service) Handle(ctx context.Context, t taskqueue.Task) error {
	var job Job
	if err := t.Decode(&job); err != nil {
		return fmt.Errorf("decode job: %w", err)
	}
	log := s.log.With("task_id", t.ID, "user_id", job.UserID)
	ref := taskRef(t.ID)
	// ledger writes must survive cancellation of the task ctx
	lctx := context.WithoutCancel(ctx)

	refunded, err := s.credits.Applied(lctx, job.UserID, ref.ChargeID, model.ActionItineraryRefund)
	if err != nil {
		log.Warn("refund lookup failed", "err", err)
	}
	if refunded {
		log.Info("itinerary task already refunded, skipping")
		return nil
	}

	plan, err := s.planner.Plan(ctx, job.Prompt)
	if err != nil {
		log.Error("itinerary generation failed", "err", err)
		bal, rerr := s.credits.AdjustOnce(lctx, job.UserID, Cost, model.ActionItineraryRefund, ref)
		switch {
		case errors.Is(rerr, creditsvc.ErrAlreadyApplied):
			return err
		case rerr != nil:
			log.Error("itinerary refund failed", "err", rerr)
			return errors.Join(err, rerr)
		}
		s.notify(log, job.ChatID, fmt.Sprintf("Sorry, we could not plan this trip. %d credits were returned, balance: %d.", Cost, bal))
		return err
	}

	s.notify(log, job.ChatID, plan)
	return nil
}

func (s *service) notify(log *slog.Logger, chatID int64, text string) {
	if chatID == 0 {
		return
	}
	if err := s.tg.SendMessage(context.Background(), chatID, text); err != nil {
		log.Warn("send itinerary message failed", "err", err)
	}
}

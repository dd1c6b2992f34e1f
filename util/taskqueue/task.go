// Package taskqueue runs detached background work. Producers only learn
// whether a task was enqueued; handlers own their error handling.
package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tripbot/util/metrics"

	"github.com/google/uuid"
)

var (
	ErrQueueFull   = errors.New("taskqueue: queue full")
	ErrClosed      = errors.New("taskqueue: closed")
	ErrUnknownKind = errors.New("taskqueue: no handler for task kind")
)

type Task struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

func NewTask(kind string, payload any) (Task, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Task{}, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return Task{ID: uuid.NewString(), Kind: kind, Payload: b, CreatedAt: time.Now().UTC()}, nil
}

func (t Task) Decode(v any) error { return json.Unmarshal(t.Payload, v) }

type Submitter interface {
	Submit(ctx context.Context, t Task) error
}

type Handler interface {
	Handle(ctx context.Context, t Task) error
}

type HandlerFunc func(ctx context.Context, t Task) error

func (f HandlerFunc) Handle(ctx context.Context, t Task) error { return f(ctx, t) }

// Mux routes tasks to handlers by Kind and records the outcome.
type Mux struct {
	handlers map[string]Handler
	log      *slog.Logger
}

func NewMux(log *slog.Logger) *Mux {
	if log == nil {
		log = slog.Default()
	}
	return &Mux{handlers: make(map[string]Handler), log: log}
}

func (m *Mux) Register(kind string, h Handler) { m.handlers[kind] = h }

func (m *Mux) Handle(ctx context.Context, t Task) error {
	h, ok := m.handlers[t.Kind]
	if !ok {
		metrics.Tasks.WithLabelValues(t.Kind, "unknown").Inc()
		return fmt.Errorf("%w: %q", ErrUnknownKind, t.Kind)
	}
	start := time.Now()
	err := h.Handle(ctx, t)
	log := m.log.With("task_id", t.ID, "kind", t.Kind, "latency_ms", time.Since(start).Milliseconds())
	if err != nil {
		metrics.Tasks.WithLabelValues(t.Kind, "failed").Inc()
		log.Error("task failed", "err", err)
		return err
	}
	metrics.Tasks.WithLabelValues(t.Kind, "ok").Inc()
	log.Info("task done")
	return nil
}

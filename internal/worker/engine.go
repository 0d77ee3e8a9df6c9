package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/procura/internal/config"
	"github.com/Additional-Code/procura/internal/messaging"
	"github.com/Additional-Code/procura/internal/purchase"
)

const (
	defaultRetryDelay = 250 * time.Millisecond
	maxConsumeBackoff = 30 * time.Second
)

// HandlerRegistration binds message topics to handlers.
type HandlerRegistration struct {
	Topic   string
	Handler messaging.Handler
}

// Params collects dependencies via Fx.
type Params struct {
	fx.In

	Client        messaging.Client
	Logger        *zap.Logger
	Config        config.Config
	Registrations []HandlerRegistration `group:"worker.handlers"`
}

// Engine consumes the event topic with a fixed pool of workers and hands each
// message to the handler registered for its topic, retrying failed handlers
// up to the configured number of attempts.
type Engine struct {
	client        messaging.Client
	logger        *zap.Logger
	workers       config.Worker
	enabled       bool
	registrations map[string]messaging.Handler
	messages      metric.Int64Counter
	retryDelay    time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine constructs the worker Engine.
func NewEngine(p Params) (*Engine, error) {
	messages, err := otel.Meter("github.com/Additional-Code/procura/worker").Int64Counter(
		"worker.messages",
		metric.WithDescription("Consumed messages, by topic and outcome."),
	)
	if err != nil {
		return nil, fmt.Errorf("create worker messages counter: %w", err)
	}

	reg := make(map[string]messaging.Handler, len(p.Registrations))
	for _, r := range p.Registrations {
		if r.Topic != "" && r.Handler != nil {
			reg[r.Topic] = r.Handler
		}
	}

	workers := p.Config.Messaging.Workers
	workers.Concurrency = max(workers.Concurrency, 1)
	workers.MaxAttempts = max(workers.MaxAttempts, 1)
	if workers.PollInterval <= 0 {
		workers.PollInterval = time.Second
	}

	return &Engine{
		client:        p.Client,
		logger:        p.Logger.Named("worker"),
		workers:       workers,
		enabled:       p.Config.Messaging.Enabled && workers.Enabled,
		registrations: reg,
		messages:      messages,
		retryDelay:    defaultRetryDelay,
	}, nil
}

// Module wires the engine into Fx lifecycle.
var Module = fx.Options(
	fx.Provide(NewEngine),
	fx.Invoke(func(lc fx.Lifecycle, engine *Engine) {
		lc.Append(fx.StartStopHook(engine.start, engine.stop))
	}),
)

func (e *Engine) start(context.Context) error {
	switch {
	case !e.enabled:
		e.logger.Info("worker engine disabled")
		return nil
	case len(e.registrations) == 0:
		e.logger.Info("worker engine has no handlers; skipping")
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	for id := range e.workers.Concurrency {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.consumeLoop(runCtx, id)
		}()
	}

	e.logger.Info("worker engine started",
		zap.Int("workers", e.workers.Concurrency),
		zap.Int("max_attempts", e.workers.MaxAttempts),
	)
	return nil
}

func (e *Engine) stop(ctx context.Context) error {
	if e.cancel == nil {
		return nil
	}
	e.cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		e.logger.Info("worker engine stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// consumeLoop keeps a consumer attached to the bus. Reconnects start at the
// poll interval and double while the client keeps failing.
func (e *Engine) consumeLoop(ctx context.Context, workerID int) {
	backoff := e.workers.PollInterval
	for ctx.Err() == nil {
		err := e.client.Consume(ctx, func(msgCtx context.Context, msg messaging.Message) error {
			return e.dispatch(msgCtx, workerID, msg)
		})
		if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}

		e.logger.Error("consumer detached; reconnecting",
			zap.Int("worker", workerID),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff = min(backoff*2, maxConsumeBackoff)
	}
}

// dispatch runs the topic handler for msg. A handler error after the last
// attempt is returned so the message stays uncommitted.
func (e *Engine) dispatch(ctx context.Context, workerID int, msg messaging.Message) error {
	fields := messageFields(workerID, msg)

	handler, ok := e.registrations[msg.Topic]
	if !ok {
		e.logger.Warn("no handler for topic", fields...)
		e.count(ctx, msg.Topic, "skipped")
		return nil
	}

	var err error
	for attempt := 1; attempt <= e.workers.MaxAttempts; attempt++ {
		if err = handler(ctx, msg); err == nil {
			e.logger.Debug("message handled", append(fields, zap.Int("attempt", attempt))...)
			e.count(ctx, msg.Topic, "handled")
			return nil
		}
		if attempt == e.workers.MaxAttempts {
			break
		}
		e.logger.Warn("message handler failed; retrying",
			append(fields, zap.Int("attempt", attempt), zap.Error(err))...)
		select {
		case <-time.After(time.Duration(attempt) * e.retryDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	e.logger.Error("message handler gave up",
		append(fields, zap.Int("attempts", e.workers.MaxAttempts), zap.Error(err))...)
	e.count(ctx, msg.Topic, "failed")
	return err
}

func (e *Engine) count(ctx context.Context, topic, outcome string) {
	e.messages.Add(ctx, 1, metric.WithAttributes(
		attribute.String("topic", topic),
		attribute.String("outcome", outcome),
	))
}

func messageFields(workerID int, msg messaging.Message) []zap.Field {
	fields := []zap.Field{
		zap.Int("worker", workerID),
		zap.String("topic", msg.Topic),
		zap.Int64("offset", msg.Offset),
	}
	if id, ok := purchase.IDFromEventKey(msg.Key); ok {
		fields = append(fields, zap.String("purchase_id", id))
	} else if len(msg.Key) > 0 {
		fields = append(fields, zap.ByteString("key", msg.Key))
	}
	return fields
}

package purchase

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/procura/internal/cache"
	"github.com/Additional-Code/procura/internal/config"
	"github.com/Additional-Code/procura/internal/messaging"
	"github.com/Additional-Code/procura/internal/purchase"
	"github.com/Additional-Code/procura/internal/worker"
)

var workerTracer = otel.Tracer("github.com/Additional-Code/procura/worker/purchase")

// Module registers purchase event handlers with the worker engine.
var Module = fx.Module("worker_purchase",
	fx.Provide(
		fx.Annotate(
			NewEventHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
	),
)

// NewEventHandler logs every purchase event and evicts cached records that
// were deleted elsewhere.
func NewEventHandler(logger *zap.Logger, cfg config.Config, store cache.Store) worker.HandlerRegistration {
	handler := func(ctx context.Context, msg messaging.Message) error {
		ctx, span := workerTracer.Start(ctx, "worker.purchases.process", trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
			attribute.Int64("messaging.offset", msg.Offset),
		))
		defer span.End()

		var event purchase.Event
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.Error("failed to decode purchase event", zap.Error(err))

			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return err
		}
		span.SetAttributes(
			attribute.String("purchase.id", event.PurchaseID),
			attribute.String("purchase.event", string(event.Type)),
		)

		fields := []zap.Field{
			zap.String("type", string(event.Type)),
			zap.String("id", event.PurchaseID),
			zap.String("status", string(event.Status)),
			zap.Time("occurred_at", event.OccurredAt),
		}
		switch event.Type {
		case purchase.EventTransitioned:
			fields = append(fields, zap.String("role", string(event.Role)), zap.String("action", string(event.Action)))
		case purchase.EventDeleted:
			if err := store.Delete(ctx, cache.PurchaseKey(event.PurchaseID)); err != nil {
				span.RecordError(err)
				return fmt.Errorf("evict deleted purchase %s: %w", event.PurchaseID, err)
			}
		case purchase.EventCreated, purchase.EventFileReuploaded:
		default:
			logger.Warn("unknown purchase event skipped", fields...)
			return nil
		}

		logger.Info("purchase event processed", fields...)
		return nil
	}

	return worker.HandlerRegistration{
		Topic:   cfg.Messaging.Kafka.Topic,
		Handler: handler,
	}
}

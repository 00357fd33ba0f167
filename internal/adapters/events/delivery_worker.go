package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nimbusworks/console-identity-service/internal/domain"
	"github.com/nimbusworks/console-identity-service/internal/ports"
)

// DeliveryWorker drains the identity outbox. Code delivery records go to the
// SMS/email gateway, everything else is published as a plain event. Keeping
// delivery off the request path means a slow gateway cannot block SendCode.
type DeliveryWorker struct {
	logger     *slog.Logger
	outbox     ports.OutboxRepository
	publisher  ports.EventPublisher
	sender     ports.CodeSender
	interval   time.Duration
	batchSize  int
	claimTTL   time.Duration
	maxRetries int
}

func NewDeliveryWorker(
	logger *slog.Logger,
	outbox ports.OutboxRepository,
	publisher ports.EventPublisher,
	sender ports.CodeSender,
	interval time.Duration,
	batchSize int,
	claimTTL time.Duration,
	maxRetries int,
) *DeliveryWorker {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if claimTTL <= 0 {
		claimTTL = 30 * time.Second
	}
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &DeliveryWorker{
		logger:     logger,
		outbox:     outbox,
		publisher:  publisher,
		sender:     sender,
		interval:   interval,
		batchSize:  batchSize,
		claimTTL:   claimTTL,
		maxRetries: maxRetries,
	}
}

// Run executes the periodic drain loop until context cancellation.
func (w *DeliveryWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if err := w.processOnce(ctx); err != nil {
			w.logger.ErrorContext(ctx, "outbox iteration failed",
				"module", "events.delivery_worker",
				"layer", "adapter",
				"operation", "outbox_process_once",
				"outcome", "failure",
				"error", err,
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

type codeDeliveryPayload struct {
	Channel   domain.ProviderType `json:"channel"`
	Recipient string              `json:"recipient"`
	Code      string              `json:"code"`
	Purpose   domain.Purpose      `json:"purpose"`
}

func (w *DeliveryWorker) processOnce(ctx context.Context) error {
	claimToken := uuid.NewString()
	records, err := w.outbox.ClaimUnpublished(ctx, w.batchSize, claimToken, time.Now().UTC().Add(w.claimTTL))
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	published := 0
	failed := 0
	deadLettered := 0
	for _, rec := range records {
		if rec.RetryCount >= w.maxRetries {
			deadLettered++
			_ = w.outbox.MarkDeadLettered(ctx, rec.OutboxID, claimToken, "retry threshold reached before publish", now)
			continue
		}

		if err := w.dispatch(ctx, rec); err != nil {
			failed++
			retriesAfterFailure := rec.RetryCount + 1
			if retriesAfterFailure >= w.maxRetries {
				deadLettered++
				w.logger.ErrorContext(ctx, "outbox record moved to dlq",
					"module", "events.delivery_worker",
					"layer", "adapter",
					"operation", "dispatch_record",
					"outcome", "failure",
					"outbox_id", rec.OutboxID,
					"event_type", rec.EventType,
					"retry_count", retriesAfterFailure,
					"error", err,
				)
				_ = w.outbox.MarkDeadLettered(ctx, rec.OutboxID, claimToken, err.Error(), now)
				continue
			}

			w.logger.WarnContext(ctx, "outbox dispatch failed; retry scheduled",
				"module", "events.delivery_worker",
				"layer", "adapter",
				"operation", "dispatch_record",
				"outcome", "failure",
				"outbox_id", rec.OutboxID,
				"event_type", rec.EventType,
				"retry_count", retriesAfterFailure,
				"error", err,
			)
			_ = w.outbox.MarkFailed(ctx, rec.OutboxID, claimToken, err.Error(), now)
			continue
		}
		published++
		_ = w.outbox.MarkPublished(ctx, rec.OutboxID, claimToken, now)
	}
	if len(records) > 0 {
		w.logger.InfoContext(ctx, "outbox batch processed",
			"module", "events.delivery_worker",
			"layer", "adapter",
			"operation", "outbox_process_once",
			"outcome", "success",
			"batch_size", len(records),
			"published_count", published,
			"failed_count", failed,
			"dead_lettered_count", deadLettered,
		)
	}
	return nil
}

func (w *DeliveryWorker) dispatch(ctx context.Context, rec ports.OutboxRecord) error {
	if rec.EventType != "code.delivery" {
		return w.publisher.Publish(ctx, rec.EventType, rec.Payload)
	}
	var payload codeDeliveryPayload
	if err := json.Unmarshal(rec.Payload, &payload); err != nil {
		return err
	}
	return w.sender.Send(ctx, payload.Channel, payload.Recipient, payload.Code, payload.Purpose)
}

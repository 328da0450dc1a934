package listener

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/allosh/allosh-market-service/internal/apperror"
	"github.com/allosh/allosh-market-service/internal/inventory"
	"github.com/allosh/allosh-market-service/internal/inventory/dto"
	"github.com/allosh/allosh-market-service/pkg/cache"
	"github.com/allosh/allosh-market-service/pkg/logger"
)

const (
	EventOrderCreated   = "OrderCreated"
	EventOrderDelivered = "OrderDelivered"
	EventOrderCancelled = "OrderCancelled"

	processedTTL = 7 * 24 * time.Hour
)

// MessageReader is the part of the Kafka consumer the listener needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type InventoryListener struct {
	consumer     MessageReader
	uc           inventory.UseCase
	seen         cache.Store
	logger       logger.ZapLogger
	retryWait    time.Duration
	maxRetryWait time.Duration
}

func NewInventoryListener(consumer MessageReader, uc inventory.UseCase, seen cache.Store, logger logger.ZapLogger) *InventoryListener {
	return &InventoryListener{
		consumer:     consumer,
		uc:           uc,
		seen:         seen,
		logger:       logger,
		retryWait:    time.Second,
		maxRetryWait: 30 * time.Second,
	}
}

// Start consumes until ctx is done. An offset is committed only once its
// event has been applied or rejected.
func (l *InventoryListener) Start(ctx context.Context) {
	l.logger.Info("Starting inventory order listener")
	for {
		msg, err := l.consumer.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				l.logger.Info("Stopping inventory order listener")
				return
			}
			l.logger.Error("Failed to fetch kafka message", zap.Error(err))
			if !sleep(ctx, time.Second) {
				return
			}
			continue
		}

		if !l.handle(ctx, msg) {
			l.logger.Info("Stopping inventory order listener", zap.Int64("uncommitted_offset", msg.Offset))
			return
		}
		if err := l.consumer.CommitMessages(ctx, msg); err != nil {
			// redelivery is absorbed by the processed-event check
			l.logger.Warn("Failed to commit order event", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

// handle retries retryable failures in place with exponential backoff. It
// returns false if ctx ends before the event goes through.
func (l *InventoryListener) handle(ctx context.Context, msg kafka.Message) bool {
	wait := l.retryWait
	for {
		err := l.processMessage(ctx, msg.Value)
		if err == nil {
			return true
		}
		l.logger.Error("Failed to process order event, retrying",
			zap.Int64("offset", msg.Offset),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		if !sleep(ctx, wait) {
			return false
		}
		wait = min(wait*2, l.maxRetryWait)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

type OrderEvent struct {
	EventID   string       `json:"event_id"`
	EventType string       `json:"event_type"`
	Payload   OrderPayload `json:"payload"`
	Timestamp time.Time    `json:"timestamp"`
}

type OrderPayload struct {
	ID       string             `json:"id"`
	BranchID string             `json:"branch_id"`
	Items    []OrderItemPayload `json:"items"`
}

type OrderItemPayload struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (l *InventoryListener) processMessage(ctx context.Context, value []byte) error {
	var event OrderEvent
	if err := json.Unmarshal(value, &event); err != nil {
		l.logger.Warn("Dropping malformed order event", zap.Error(err))
		return nil
	}

	var apply func(context.Context, *dto.OrderStockInput) error
	switch event.EventType {
	case EventOrderCreated:
		apply = l.uc.ReserveOrder
	case EventOrderDelivered:
		apply = l.uc.FulfilOrder
	case EventOrderCancelled:
		apply = l.uc.ReleaseOrder
	default:
		return nil
	}

	dedupeKey := "events:processed:" + event.EventID
	if event.EventID != "" {
		var done bool
		if ok, err := l.seen.GetJSON(ctx, dedupeKey, &done); err == nil && ok {
			l.logger.Debug("Skipping duplicate order event", zap.String("event_id", event.EventID))
			return nil
		}
	}

	input := &dto.OrderStockInput{
		OrderID:  event.Payload.ID,
		BranchID: event.Payload.BranchID,
		Lines:    make([]dto.OrderLine, 0, len(event.Payload.Items)),
	}
	for _, item := range event.Payload.Items {
		input.Lines = append(input.Lines, dto.OrderLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	l.logger.Info("Processing order event",
		zap.String("event_type", event.EventType),
		zap.String("order_id", input.OrderID),
		zap.String("branch_id", input.BranchID),
	)
	if err := apply(ctx, input); err != nil {
		// A reservation that cannot be met is a business outcome, not a retry.
		if apperror.Retryable(err) {
			return err
		}
		l.logger.Warn("Order event rejected",
			zap.String("event_type", event.EventType),
			zap.String("order_id", input.OrderID),
			zap.Error(err),
		)
	}

	if event.EventID != "" {
		if err := l.seen.SetJSON(ctx, dedupeKey, true, processedTTL); err != nil {
			l.logger.Warn("Failed to mark event processed", zap.String("event_id", event.EventID), zap.Error(err))
		}
	}
	return nil
}

package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-stock-ledger/internal/model"
	"github.com/fekuna/omnipos-stock-ledger/internal/stock"
	"github.com/fekuna/omnipos-stock-ledger/internal/stock/dto"
	"github.com/fekuna/omnipos-stock-ledger/pkg/logger"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	EventOrderCreated     = "OrderCreated"
	EventOrderCancelled   = "OrderCancelled"
	EventPurchaseReceived = "PurchaseReceived"

	systemActor = "system"
)

// MessageReader is satisfied by *broker.KafkaConsumer.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

type StockListener struct {
	consumer MessageReader
	uc       stock.UseCase
	logger   logger.ZapLogger
}

func NewStockListener(consumer MessageReader, uc stock.UseCase, logger logger.ZapLogger) *StockListener {
	return &StockListener{
		consumer: consumer,
		uc:       uc,
		logger:   logger,
	}
}

func (l *StockListener) Start(ctx context.Context) {
	l.logger.Info("Starting Stock Kafka Listener")
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Stopping Stock Kafka Listener")
			return
		default:
			msg, err := l.consumer.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				l.logger.Error("Failed to read kafka message", zap.Error(err))
				time.Sleep(1 * time.Second)
				continue
			}
			l.processMessage(ctx, msg.Value)
		}
	}
}

type Event struct {
	EventID   string       `json:"event_id"`
	EventType string       `json:"event_type"`
	Payload   EventPayload `json:"payload"`
	Timestamp time.Time    `json:"timestamp"`
}

type EventPayload struct {
	ID       string             `json:"id"`
	TenantID string             `json:"tenant_id"`
	ActorID  string             `json:"actor_id"`
	Location string             `json:"location"`
	Items    []EventItemPayload `json:"items"`
}

type EventItemPayload struct {
	ItemID        string           `json:"item_id"`
	ReservationID string           `json:"reservation_id"`
	Quantity      int64            `json:"quantity"`
	UnitPrice     *decimal.Decimal `json:"unit_price"`
}

func (l *StockListener) processMessage(ctx context.Context, value []byte) {
	var event Event
	if err := json.Unmarshal(value, &event); err != nil {
		l.logger.Error("Failed to unmarshal event", zap.Error(err))
		return
	}

	var apply func(context.Context, *EventPayload, int, EventItemPayload) error
	switch event.EventType {
	case EventOrderCreated:
		apply = l.applyOrderItem
	case EventOrderCancelled:
		apply = l.cancelOrderItem
	case EventPurchaseReceived:
		apply = l.receivePurchaseItem
	default:
		return
	}

	l.logger.Info("Processing stock event",
		zap.String("event_type", event.EventType),
		zap.String("reference_id", event.Payload.ID),
		zap.Int("items", len(event.Payload.Items)),
	)

	for i, item := range event.Payload.Items {
		if err := apply(ctx, &event.Payload, i, item); err != nil {
			l.logger.Error("Failed to apply stock event item",
				zap.String("event_type", event.EventType),
				zap.String("reference_id", event.Payload.ID),
				zap.String("item_id", item.ItemID),
				zap.String("reservation_id", item.ReservationID),
				zap.Error(err),
			)
		}
	}
}

// applyOrderItem commits the hold taken at checkout, or records a plain
// SALE when the order line was never reserved.
func (l *StockListener) applyOrderItem(ctx context.Context, p *EventPayload, line int, item EventItemPayload) error {
	remarks := fmt.Sprintf("order %s", p.ID)
	if item.ReservationID != "" {
		_, err := l.uc.CommitReservation(ctx, &dto.CommitReservationInput{
			TenantID:      p.TenantID,
			ReservationID: item.ReservationID,
			ActorID:       actor(p),
			Location:      p.Location,
			Remarks:       remarks,
		})
		return err
	}
	_, err := l.uc.ApplyTransaction(ctx, &dto.ApplyTransactionInput{
		TenantID:  p.TenantID,
		ItemID:    item.ItemID,
		Type:      model.TxSale,
		Quantity:  item.Quantity,
		UnitPrice: item.UnitPrice,
		ActorID:   actor(p),
		Location:  p.Location,
		Remarks:   remarks,
		Reference: lineReference("order", p.ID, line),
	})
	return err
}

func (l *StockListener) cancelOrderItem(ctx context.Context, p *EventPayload, _ int, item EventItemPayload) error {
	if item.ReservationID == "" {
		return nil
	}
	_, err := l.uc.ReleaseReservation(ctx, p.TenantID, item.ReservationID)
	return err
}

func (l *StockListener) receivePurchaseItem(ctx context.Context, p *EventPayload, line int, item EventItemPayload) error {
	_, err := l.uc.ApplyTransaction(ctx, &dto.ApplyTransactionInput{
		TenantID:  p.TenantID,
		ItemID:    item.ItemID,
		Type:      model.TxPurchase,
		Quantity:  item.Quantity,
		UnitPrice: item.UnitPrice,
		ActorID:   actor(p),
		Location:  p.Location,
		Remarks:   fmt.Sprintf("purchase %s", p.ID),
		Reference: lineReference("purchase", p.ID, line),
	})
	return err
}

// lineReference keys a ledger entry on the event line it came from, so a
// redelivered event does not move stock twice.
func lineReference(kind, id string, line int) string {
	return fmt.Sprintf("%s/%s/%d", kind, id, line)
}

func actor(p *EventPayload) string {
	if p.ActorID == "" {
		return systemActor
	}
	return p.ActorID
}

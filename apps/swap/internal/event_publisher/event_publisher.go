package event_publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"go.uber.org/zap"

	"nexusswap/apps/swap/internal/events"
	"nexusswap/apps/swap/internal/model"
)

const (
	DefaultInterval  = 3 * time.Second
	defaultBatchSize = 100
)

// Outbox is the queue the publisher drains.
type Outbox interface {
	GetUnsentEventsForProcessing(limit int) []model.OutboxEvent
	MarkEventAsSent(sequence uint64)
	MarkEventAsFailed(sequence uint64)
	Stats() (pending, inFlight int, dropped uint64)
}

// producer is the subset of *kafka.Producer the publisher uses.
type producer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Close()
}

type EventPublisher struct {
	logger        *zap.Logger
	kafkaProducer producer
	kafkaTopic    string
	outbox        Outbox
	interval      time.Duration
	lastDropped   uint64
	mu            sync.Mutex
}

func NewEventPublisher(kafkaBroker, kafkaTopic string, interval time.Duration, outbox Outbox, logger *zap.Logger) (*EventPublisher, error) {
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": kafkaBroker,
		"acks":              "all",
		"retries":           3,
		"retry.backoff.ms":  100,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	return newEventPublisher(producer, kafkaTopic, interval, outbox, logger), nil
}

func newEventPublisher(p producer, kafkaTopic string, interval time.Duration, outbox Outbox, logger *zap.Logger) *EventPublisher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &EventPublisher{
		logger:        logger.Named("event_publisher"),
		kafkaProducer: p,
		kafkaTopic:    kafkaTopic,
		outbox:        outbox,
		interval:      interval,
	}
}

// Start drains the outbox on every tick until ctx is cancelled.
func (ep *EventPublisher) Start(ctx context.Context) {
	ep.logger.Info("Starting event publisher", zap.String("topic", ep.kafkaTopic), zap.Duration("interval", ep.interval))

	ticker := time.NewTicker(ep.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ep.publishUnsentEvents()
		}
	}
}

func (ep *EventPublisher) publishUnsentEvents() int {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	outboxEvents := ep.outbox.GetUnsentEventsForProcessing(defaultBatchSize)

	successCount := 0
	for i, event := range outboxEvents {
		if err := ep.publishEventToKafka(event); err != nil {
			ep.logger.Error("Failed to publish event to Kafka",
				zap.Uint64("sequence", event.Sequence),
				zap.String("order_id", event.OrderID),
				zap.String("event_type", event.EventType),
				zap.Error(err))

			// Requeue the rest in reverse so the batch keeps its order.
			for j := len(outboxEvents) - 1; j >= i; j-- {
				ep.outbox.MarkEventAsFailed(outboxEvents[j].Sequence)
			}
			break
		}

		ep.outbox.MarkEventAsSent(event.Sequence)
		successCount++
	}

	if successCount > 0 {
		ep.logger.Info("Published events to Kafka", zap.Int("success_count", successCount), zap.Int("attempted", len(outboxEvents)))
	}

	if pending, _, dropped := ep.outbox.Stats(); pending >= defaultBatchSize || dropped > ep.lastDropped {
		ep.logger.Warn("Outbox backlog",
			zap.Int("pending", pending),
			zap.Uint64("dropped", dropped),
			zap.Uint64("newly_dropped", dropped-ep.lastDropped))
		ep.lastDropped = dropped
	}

	return successCount
}

// toOrderEvent builds the wire message for an outbox event.
func toOrderEvent(event model.OutboxEvent, now time.Time) events.OrderEvent {
	return events.OrderEvent{
		EventType:      event.EventType,
		Sequence:       event.Sequence,
		OrderID:        event.OrderID,
		Status:         string(event.Status),
		PreviousStatus: string(event.PreviousStatus),
		Confirmations:  event.Confirmations,
		FromSymbol:     event.FromSymbol,
		ToSymbol:       event.ToSymbol,
		FromAmount:     event.FromAmount.String(),
		ToAmount:       event.ToAmount.String(),
		TxHash:         event.TxHash,
		OccurredAt:     event.CreatedAt,
		Timestamp:      now,
	}
}

func (ep *EventPublisher) publishEventToKafka(event model.OutboxEvent) error {
	msgBytes, err := json.Marshal(toOrderEvent(event, time.Now()))
	if err != nil {
		return err
	}

	deliveryChan := make(chan kafka.Event, 1)
	defer close(deliveryChan)

	err = ep.kafkaProducer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &ep.kafkaTopic, Partition: kafka.PartitionAny},
		Key:            []byte(event.OrderID), // per-order ordering within a partition
		Value:          msgBytes,
	}, deliveryChan)
	if err != nil {
		return err
	}

	e := <-deliveryChan
	switch ev := e.(type) {
	case *kafka.Message:
		if ev.TopicPartition.Error != nil {
			return ev.TopicPartition.Error
		}
		return nil
	default:
		return fmt.Errorf("unexpected kafka event type: %T", e)
	}
}

func (ep *EventPublisher) Close() error {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	if ep.kafkaProducer != nil {
		ep.kafkaProducer.Close()
	}
	return nil
}

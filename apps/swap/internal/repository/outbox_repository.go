package repository

import (
	"sync"

	"go.uber.org/zap"

	"nexusswap/apps/swap/internal/model"
)

// OutboxRepository is a bounded FIFO of order events awaiting publication.
// Events handed out by GetUnsentEventsForProcessing are in flight until marked
// sent or failed; failed events return to the front of the queue.
type OutboxRepository struct {
	mu       sync.Mutex
	capacity int
	pending  []model.OutboxEvent
	inFlight map[uint64]model.OutboxEvent
	nextSeq  uint64
	dropped  uint64
	logger   *zap.Logger
}

func NewOutboxRepository(capacity int, logger *zap.Logger) *OutboxRepository {
	if capacity <= 0 {
		capacity = 10000
	}
	return &OutboxRepository{
		capacity: capacity,
		inFlight: make(map[uint64]model.OutboxEvent),
		logger:   logger.Named("outbox"),
	}
}

// StoreOutboxEvent enqueues event. When the queue is full the oldest pending
// event is dropped.
func (o *OutboxRepository) StoreOutboxEvent(event model.OutboxEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.nextSeq++
	event.Sequence = o.nextSeq

	if len(o.pending) >= o.capacity {
		dropped := o.pending[0]
		o.pending = o.pending[1:]
		o.dropped++
		o.logger.Warn("Outbox full, dropping oldest event",
			zap.Uint64("sequence", dropped.Sequence),
			zap.String("order_id", dropped.OrderID),
			zap.String("event_type", dropped.EventType))
	}

	o.pending = append(o.pending, event)
}

// GetUnsentEventsForProcessing hands out up to limit pending events.
func (o *OutboxRepository) GetUnsentEventsForProcessing(limit int) []model.OutboxEvent {
	o.mu.Lock()
	defer o.mu.Unlock()

	if limit <= 0 || limit > len(o.pending) {
		limit = len(o.pending)
	}

	batch := make([]model.OutboxEvent, limit)
	copy(batch, o.pending[:limit])
	o.pending = o.pending[limit:]

	for _, event := range batch {
		o.inFlight[event.Sequence] = event
	}
	return batch
}

func (o *OutboxRepository) MarkEventAsSent(sequence uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, sequence)
}

// MarkEventAsFailed returns an in-flight event to the front of the queue.
func (o *OutboxRepository) MarkEventAsFailed(sequence uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	event, ok := o.inFlight[sequence]
	if !ok {
		return
	}
	delete(o.inFlight, sequence)
	o.pending = append([]model.OutboxEvent{event}, o.pending...)
}

// Stats returns the pending, in-flight and dropped counts.
func (o *OutboxRepository) Stats() (pending, inFlight int, dropped uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending), len(o.inFlight), o.dropped
}

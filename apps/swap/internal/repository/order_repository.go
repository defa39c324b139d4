package repository

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"nexusswap/apps/swap/internal/model"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrDuplicateOrder = errors.New("order id already issued")
)

// OrderRepository is the in-memory order store. Every read-modify-write runs
// under one lock, so mutations of the same order are serialized.
type OrderRepository struct {
	mu       sync.RWMutex
	orders   map[string]*model.Order
	sequence []string
	issued   map[string]struct{}
	logger   *zap.Logger
}

func NewOrderRepository(logger *zap.Logger) *OrderRepository {
	return &OrderRepository{
		orders: make(map[string]*model.Order),
		issued: make(map[string]struct{}),
		logger: logger.Named("order_repository"),
	}
}

// IsIDIssued reports whether id was ever stored, including evicted orders.
func (r *OrderRepository) IsIDIssued(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.issued[id]
	return ok
}

func (r *OrderRepository) CreateOrder(order model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.issued[order.ID]; exists {
		return fmt.Errorf("failed to create order %s: %w", order.ID, ErrDuplicateOrder)
	}

	stored := order.Clone()
	r.orders[order.ID] = &stored
	r.sequence = append(r.sequence, order.ID)
	r.issued[order.ID] = struct{}{}

	r.logger.Info("Created order",
		zap.String("order_id", order.ID),
		zap.String("from", order.FromSymbol),
		zap.String("to", order.ToSymbol),
		zap.String("status", string(order.Status)))
	return nil
}

// GetOrderByID returns a copy of the order, or nil when it does not exist.
func (r *OrderRepository) GetOrderByID(orderID string) (*model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[orderID]
	if !ok {
		return nil, nil
	}
	clone := order.Clone()
	return &clone, nil
}

// Mutate runs fn against the stored order under the write lock. When fn
// returns an error the stored order is left unchanged.
func (r *OrderRepository) Mutate(orderID string, fn func(*model.Order) error) (model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.orders[orderID]
	if !ok {
		return model.Order{}, fmt.Errorf("failed to mutate order %s: %w", orderID, ErrOrderNotFound)
	}

	working := current.Clone()
	if err := fn(&working); err != nil {
		return current.Clone(), err
	}

	r.orders[orderID] = &working
	return working.Clone(), nil
}

// ListOrders returns copies of all orders in creation order.
func (r *OrderRepository) ListOrders() []model.Order {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Order, 0, len(r.sequence))
	for _, id := range r.sequence {
		if order, ok := r.orders[id]; ok {
			out = append(out, order.Clone())
		}
	}
	return out
}

// Count returns the number of stored orders.
func (r *OrderRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.orders)
}

// DeleteOrdersWhere evicts every order matching evict, evaluated under the
// write lock, and returns the evicted orders. Their ids stay reserved.
func (r *OrderRepository) DeleteOrdersWhere(evict func(model.Order) bool) []model.Order {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []model.Order
	kept := r.sequence[:0]
	for _, id := range r.sequence {
		order, ok := r.orders[id]
		if !ok {
			continue
		}
		if evict(*order) {
			removed = append(removed, order.Clone())
			delete(r.orders, id)
			continue
		}
		kept = append(kept, id)
	}
	r.sequence = kept

	if len(removed) > 0 {
		r.logger.Info("Evicted orders", zap.Int("count", len(removed)))
	}
	return removed
}

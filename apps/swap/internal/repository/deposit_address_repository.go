package repository

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

var ErrAddressInUse = errors.New("deposit address already assigned")

// DepositAddressRepository maps each order's deposit address back to the order.
type DepositAddressRepository struct {
	mu        sync.RWMutex
	addresses map[string]string
	logger    *zap.Logger
}

func NewDepositAddressRepository(logger *zap.Logger) *DepositAddressRepository {
	return &DepositAddressRepository{
		addresses: make(map[string]string),
		logger:    logger.Named("deposit_addresses"),
	}
}

// normalize lower-cases hex addresses; base58 and bech32 are kept verbatim.
func normalize(address string) string {
	address = strings.TrimSpace(address)
	if strings.HasPrefix(address, "0x") || strings.HasPrefix(address, "0X") {
		return strings.ToLower(address)
	}
	return address
}

func (r *DepositAddressRepository) AddDepositAddress(address, orderID string) error {
	key := normalize(address)

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.addresses[key]; ok && existing != orderID {
		return fmt.Errorf("failed to assign %s to order %s: %w", address, orderID, ErrAddressInUse)
	}
	r.addresses[key] = orderID

	r.logger.Debug("Assigned deposit address",
		zap.String("deposit_address", address),
		zap.String("order_id", orderID))
	return nil
}

func (r *DepositAddressRepository) IsAddressAssigned(address string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.addresses[normalize(address)]
	return ok
}

func (r *DepositAddressRepository) GetOrderIDByAddress(address string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	orderID, ok := r.addresses[normalize(address)]
	return orderID, ok
}

func (r *DepositAddressRepository) RemoveDepositAddress(address string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.addresses, normalize(address))
}

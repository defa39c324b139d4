// Package order owns the swap order lifecycle: creation, lookup, replacement,
// observer-driven advancement, administrative overrides, reporting and
// retention.
package order

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"nexusswap/apps/swap/internal/assets"
	"nexusswap/apps/swap/internal/liquidity"
	"nexusswap/apps/swap/internal/model"
	"nexusswap/apps/swap/internal/partner"
	"nexusswap/apps/swap/internal/repository"
)

var (
	ErrOrderNotFound     = repository.ErrOrderNotFound
	ErrInvalidRequest    = errors.New("invalid order request")
	ErrInvalidStatus     = errors.New("invalid order status")
	ErrInvalidOrder      = errors.New("invalid order update")
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
	ErrLogLimit          = errors.New("order log limit reached")
	ErrTerminal          = errors.New("order is in a terminal state")

	errUnchanged = errors.New("order unchanged")
)

const (
	idLength      = 8
	maxIDAttempts = 16
	recentOrders  = 10
)

// Quoter prices a swap.
type Quoter interface {
	Quote(ctx context.Context, from, to string, amount decimal.Decimal) liquidity.Quote
	Mode() liquidity.Mode
}

// Settler opens settlements with the external exchange partner.
type Settler interface {
	Name() string
	CreateExchange(ctx context.Context, req partner.ExchangeRequest) (*partner.Exchange, error)
}

// PriceSource values pending orders in USD.
type PriceSource interface {
	PriceUSD(symbol string) (decimal.Decimal, bool)
}

// AddressGenerator creates synthetic deposit addresses.
type AddressGenerator interface {
	DepositAddress(symbol string) (string, error)
}

// EventRecorder receives lifecycle events for publishing.
type EventRecorder interface {
	StoreOutboxEvent(event model.OutboxEvent)
}

// Dependencies are the collaborators of a Manager. Settler and Events may be nil.
type Dependencies struct {
	Orders    *repository.OrderRepository
	Deposits  *repository.DepositAddressRepository
	Assets    *assets.Registry
	Quoter    Quoter
	Settler   Settler
	Prices    PriceSource
	Addresses AddressGenerator
	Events    EventRecorder
}

// Config bounds memory use.
type Config struct {
	// MaxLogEntries caps administrative log growth per order.
	MaxLogEntries int
	// Retention is how long terminal orders are kept after their last
	// activity. Zero keeps them forever.
	Retention time.Duration
}

// CreateOrderRequest is a validated swap request.
type CreateOrderRequest struct {
	FromSymbol         string
	ToSymbol           string
	FromAmount         string
	DestinationAddress string
}

// Summary is the admin dashboard aggregate.
type Summary struct {
	Total                int             `json:"total"`
	ActiveCount          int             `json:"activeCount"`
	NewLast24h           int             `json:"newLast24h"`
	PendingValueEstimate decimal.Decimal `json:"pendingValueEstimate"`
	Recent               []model.Order   `json:"recent"`
}

// Manager is the only component that creates orders.
type Manager struct {
	deps   Dependencies
	config Config
	now    func() time.Time
	newID  func() string
	logger *zap.Logger
}

// Option customises a Manager.
type Option func(*Manager)

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithIDGenerator sets the order id source.
func WithIDGenerator(newID func() string) Option {
	return func(m *Manager) { m.newID = newID }
}

func NewManager(deps Dependencies, config Config, logger *zap.Logger, opts ...Option) *Manager {
	if config.MaxLogEntries <= 0 {
		config.MaxLogEntries = 200
	}
	m := &Manager{
		deps:   deps,
		config: config,
		now:    time.Now,
		newID:  shortID,
		logger: logger.Named("order_manager"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// shortID returns 8 upper-case hex characters taken from a random UUID.
func shortID() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:idLength])
}

// CreateOrder quotes the swap and stores a new order awaiting deposit. In
// partner mode the settlement is opened with the partner first; partner
// failures fall back to the internal path.
func (m *Manager) CreateOrder(ctx context.Context, req CreateOrderRequest) (model.Order, error) {
	from := strings.ToUpper(strings.TrimSpace(req.FromSymbol))
	to := strings.ToUpper(strings.TrimSpace(req.ToSymbol))
	destination := strings.TrimSpace(req.DestinationAddress)

	if from == "" || to == "" || destination == "" || strings.TrimSpace(req.FromAmount) == "" {
		return model.Order{}, fmt.Errorf("%w: fromSymbol, toSymbol, fromAmount and destinationAddress are required", ErrInvalidRequest)
	}

	amount, err := model.ParseAmount(req.FromAmount)
	if err != nil {
		return model.Order{}, fmt.Errorf("%w: fromAmount: %v", ErrInvalidRequest, err)
	}
	if !amount.IsPositive() {
		return model.Order{}, fmt.Errorf("%w: fromAmount must be a positive decimal", ErrInvalidRequest)
	}

	for _, symbol := range []string{from, to} {
		if !m.deps.Assets.IsSupported(symbol) {
			m.logger.Warn("Order uses an unregistered asset, pricing degrades to parity",
				zap.String("symbol", symbol),
				zap.Strings("supported", m.deps.Assets.GetSupportedSymbols()))
		}
	}

	id, err := m.allocateID()
	if err != nil {
		return model.Order{}, err
	}

	quote := m.deps.Quoter.Quote(ctx, from, to, amount)
	now := m.now()

	order := model.Order{
		ID:                    id,
		FromSymbol:            from,
		ToSymbol:              to,
		FromAmount:            amount,
		ToAmount:              quote.EstimatedAmount,
		Rate:                  quote.Rate,
		DestinationAddress:    destination,
		Status:                model.StatusAwaitingDeposit,
		Confirmations:         0,
		RequiredConfirmations: m.deps.Assets.RequiredConfirmations(from),
		Provider:              quote.Provider,
		CreatedAt:             now.UnixMilli(),
	}
	order.AppendLog(now, model.LogInfo, "Order created and pending deposit.")
	if quote.IsStale {
		order.AppendLog(now, model.LogInfo, "Rate quoted from cached market data.")
	}

	if m.deps.Quoter.Mode() == liquidity.ModePartner && m.deps.Settler != nil {
		m.settleWithPartner(ctx, &order, now)
	}

	if order.DepositAddress == "" {
		address, err := m.allocateDepositAddress(from)
		if err != nil {
			return model.Order{}, err
		}
		order.DepositAddress = address
	}

	if err := m.deps.Orders.CreateOrder(order); err != nil {
		return model.Order{}, err
	}
	if err := m.deps.Deposits.AddDepositAddress(order.DepositAddress, order.ID); err != nil {
		m.logger.Warn("Deposit address not indexed", zap.String("order_id", order.ID), zap.Error(err))
	}

	m.record(model.EventOrderCreated, order, "")

	m.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.String("from", order.FromSymbol),
		zap.String("to", order.ToSymbol),
		zap.String("from_amount", order.FromAmount.String()),
		zap.String("to_amount", order.ToAmount.String()),
		zap.String("provider", order.Provider),
		zap.Bool("stale_quote", quote.IsStale))

	return order, nil
}

func (m *Manager) settleWithPartner(ctx context.Context, order *model.Order, now time.Time) {
	name := m.deps.Settler.Name()

	exchange, err := m.deps.Settler.CreateExchange(ctx, partner.ExchangeRequest{
		From:    order.FromSymbol,
		To:      order.ToSymbol,
		Amount:  order.FromAmount,
		Address: order.DestinationAddress,
	})
	if err != nil {
		m.logger.Warn("Partner settlement failed, falling back to internal liquidity",
			zap.String("order_id", order.ID),
			zap.String("partner", name),
			zap.Error(err))
		order.AppendLog(now, model.LogNetwork,
			fmt.Sprintf("Partner %s unavailable. Order routed to internal liquidity.", name))
		return
	}

	order.DepositAddress = exchange.PayinAddress
	order.ProviderID = exchange.ID
	order.Provider = name
	if exchange.Amount.IsPositive() {
		order.ToAmount = exchange.Amount.Round(6)
	}
	order.AppendLog(now, model.LogNetwork,
		fmt.Sprintf("Settlement routed to partner %s (ref %s).", name, exchange.ID))
}

func (m *Manager) allocateID() (string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id := m.newID()
		if id != "" && !m.deps.Orders.IsIDIssued(id) {
			return id, nil
		}
	}
	return "", errors.New("failed to allocate a unique order id")
}

func (m *Manager) allocateDepositAddress(symbol string) (string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		address, err := m.deps.Addresses.DepositAddress(symbol)
		if err != nil {
			return "", fmt.Errorf("failed to generate deposit address: %w", err)
		}
		if !m.deps.Deposits.IsAddressAssigned(address) {
			return address, nil
		}
	}
	return "", errors.New("failed to allocate a unique deposit address")
}

// GetOrder returns the order with id.
func (m *Manager) GetOrder(id string) (model.Order, error) {
	order, err := m.deps.Orders.GetOrderByID(strings.ToUpper(strings.TrimSpace(id)))
	if err != nil {
		return model.Order{}, err
	}
	if order == nil {
		return model.Order{}, ErrOrderNotFound
	}
	return *order, nil
}

// GetOrderByDepositAddress returns the order that owns address.
func (m *Manager) GetOrderByDepositAddress(address string) (model.Order, error) {
	id, ok := m.deps.Deposits.GetOrderIDByAddress(address)
	if !ok {
		return model.Order{}, ErrOrderNotFound
	}
	return m.GetOrder(id)
}

// GetAllOrders returns a snapshot of every stored order. Callers must not rely
// on its ordering.
func (m *Manager) GetAllOrders() []model.Order {
	return m.deps.Orders.ListOrders()
}

// ListOrders returns every order, newest first.
func (m *Manager) ListOrders() []model.Order {
	orders := m.deps.Orders.ListOrders()
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt > orders[j].CreatedAt
	})
	return orders
}

// UpdateOrder replaces the stored order with the same id. Replaying the same
// snapshot is a no-op. The replacement is held to the lifecycle rules of
// Advance: terminal orders cannot change, status moves at most one step and
// only with a new log entry, and the confirmation target is fixed.
func (m *Manager) UpdateOrder(order model.Order) error {
	if _, err := model.ParseStatus(string(order.Status)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidStatus, err)
	}
	if order.Confirmations < 0 || order.Confirmations > order.RequiredConfirmations {
		return fmt.Errorf("%w: confirmations %d outside [0, %d]", ErrInvalidOrder, order.Confirmations, order.RequiredConfirmations)
	}

	var previous model.Status
	_, err := m.deps.Orders.Mutate(order.ID, func(stored *model.Order) error {
		if stored.Status.IsTerminal() && !sameProgress(*stored, order) {
			return fmt.Errorf("%w: %w", ErrInvalidOrder, ErrTerminal)
		}
		if err := checkTransition(*stored, order); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidOrder, err)
		}
		previous = stored.Status
		*stored = order.Clone()
		return nil
	})
	if err != nil {
		return err
	}

	if previous != order.Status {
		m.record(model.EventOrderStatusChanged, order, previous)
	}
	return nil
}

// sameProgress reports whether b carries the same lifecycle position as a.
func sameProgress(a, b model.Order) bool {
	return a.Status == b.Status &&
		a.Confirmations == b.Confirmations &&
		a.RequiredConfirmations == b.RequiredConfirmations &&
		len(a.Logs) == len(b.Logs) &&
		a.TxHashIn == b.TxHashIn &&
		a.TxHashOut == b.TxHashOut
}

// Transition mutates an order in place and reports whether it changed. An
// error discards the mutation.
type Transition func(o *model.Order, now time.Time) (bool, error)

// Advance applies one automatic lifecycle step to the order with id. Terminal
// orders are never touched. The step may move status forward by exactly one
// state, must not lower confirmations or exceed the target, and must log
// every status change; otherwise the order is left unchanged.
func (m *Manager) Advance(id string, step Transition) (model.Order, bool, error) {
	var before model.Order
	now := m.now()

	updated, err := m.deps.Orders.Mutate(id, func(o *model.Order) error {
		if o.Status.IsTerminal() {
			return ErrTerminal
		}
		before = o.Clone()

		changed, err := step(o, now)
		if err != nil {
			return err
		}
		if !changed {
			return errUnchanged
		}
		return checkTransition(before, *o)
	})

	switch {
	case errors.Is(err, errUnchanged), errors.Is(err, ErrTerminal):
		return updated, false, nil
	case err != nil:
		return updated, false, err
	}

	if updated.Status != before.Status {
		m.record(model.EventOrderStatusChanged, updated, before.Status)
	} else if updated.Confirmations != before.Confirmations {
		m.record(model.EventOrderConfirmation, updated, before.Status)
	}
	return updated, true, nil
}

func checkTransition(before, after model.Order) error {
	if after.ID != before.ID {
		return fmt.Errorf("%w: id changed", ErrInvalidTransition)
	}
	if after.Status != before.Status {
		next, ok := before.Status.Next()
		if !ok || next != after.Status {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, before.Status, after.Status)
		}
		if len(after.Logs) <= len(before.Logs) {
			return fmt.Errorf("%w: status change without log entry", ErrInvalidTransition)
		}
	}
	if after.Confirmations < before.Confirmations || after.Confirmations > after.RequiredConfirmations {
		return fmt.Errorf("%w: confirmations %d -> %d (required %d)", ErrInvalidTransition,
			before.Confirmations, after.Confirmations, after.RequiredConfirmations)
	}
	if after.RequiredConfirmations != before.RequiredConfirmations {
		return fmt.Errorf("%w: required confirmations changed", ErrInvalidTransition)
	}
	if len(after.Logs) < len(before.Logs) {
		return fmt.Errorf("%w: log entries removed", ErrInvalidTransition)
	}
	return nil
}

// OverrideStatus is the operator escape hatch: it sets any valid status,
// bypassing the lifecycle, and records the override in the order log. On
// error the order is unchanged.
func (m *Manager) OverrideStatus(id, status, reason string) (model.Order, error) {
	target, err := model.ParseStatus(status)
	if err != nil {
		return model.Order{}, fmt.Errorf("%w: %v", ErrInvalidStatus, err)
	}

	var previous model.Status
	now := m.now()

	updated, err := m.deps.Orders.Mutate(strings.ToUpper(strings.TrimSpace(id)), func(o *model.Order) error {
		if len(o.Logs) >= m.config.MaxLogEntries {
			return ErrLogLimit
		}
		previous = o.Status
		o.Status = target

		message := fmt.Sprintf("Administrative override: %s -> %s.", previous, target)
		if reason = strings.TrimSpace(reason); reason != "" {
			message = fmt.Sprintf("%s Reason: %s", message, reason)
		}
		o.AppendLog(now, model.LogNetwork, message)
		return nil
	})
	if err != nil {
		m.logger.Warn("Status override rejected",
			zap.String("order_id", id),
			zap.String("status", status),
			zap.Error(err))
		return model.Order{}, err
	}

	m.record(model.EventOrderOverridden, updated, previous)
	m.logger.Info("Status overridden",
		zap.String("order_id", updated.ID),
		zap.String("from_status", string(previous)),
		zap.String("to_status", string(target)))

	return updated, nil
}

// GetSummary computes the dashboard aggregate on demand.
func (m *Manager) GetSummary() Summary {
	orders := m.ListOrders()
	cutoff := m.now().Add(-24 * time.Hour).UnixMilli()

	summary := Summary{
		Total:                len(orders),
		PendingValueEstimate: decimal.Zero,
	}

	for _, o := range orders {
		if o.CreatedAt >= cutoff {
			summary.NewLast24h++
		}
		if o.Status.IsTerminal() {
			continue
		}
		summary.ActiveCount++
		if m.deps.Prices != nil {
			if price, ok := m.deps.Prices.PriceUSD(o.FromSymbol); ok {
				summary.PendingValueEstimate = summary.PendingValueEstimate.Add(o.FromAmount.Mul(price))
			}
		}
	}
	summary.PendingValueEstimate = summary.PendingValueEstimate.Round(2)

	if len(orders) > recentOrders {
		orders = orders[:recentOrders]
	}
	summary.Recent = orders

	return summary
}

// SweepExpired evicts terminal orders whose last activity is older than the
// retention window. It returns the number of evicted orders.
func (m *Manager) SweepExpired(now time.Time) int {
	if m.config.Retention <= 0 {
		return 0
	}

	cutoff := now.Add(-m.config.Retention)
	evicted := m.deps.Orders.DeleteOrdersWhere(func(o model.Order) bool {
		return o.Status.IsTerminal() && o.LastActivity().Before(cutoff)
	})
	for _, o := range evicted {
		m.deps.Deposits.RemoveDepositAddress(o.DepositAddress)
	}

	if len(evicted) > 0 {
		m.logger.Info("Swept retained orders",
			zap.Int("evicted", len(evicted)),
			zap.Int("remaining", m.deps.Orders.Count()),
			zap.Duration("retention", m.config.Retention))
	}
	return len(evicted)
}

func (m *Manager) record(eventType string, order model.Order, previous model.Status) {
	if m.deps.Events == nil {
		return
	}
	m.deps.Events.StoreOutboxEvent(model.NewOutboxEvent(eventType, order, previous, m.now()))
}

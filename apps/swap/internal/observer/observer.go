package observer

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"nexusswap/apps/swap/internal/assets"
	"nexusswap/apps/swap/internal/model"
	"nexusswap/apps/swap/internal/order"
)

const DefaultInterval = 4 * time.Second

// Dice returns a value in [0, 1). A transition fires when the roll is below
// its probability.
type Dice interface {
	Roll() float64
}

type randomDice struct{}

func (randomDice) Roll() float64 { return rand.Float64() }

// Probabilities are the per-tick chances of each automatic transition.
type Probabilities struct {
	Deposit          float64
	ConfirmationSlow float64 // proof-of-work source assets
	ConfirmationFast float64
	Exchange         float64
	Settlement       float64
}

func DefaultProbabilities() Probabilities {
	return Probabilities{
		Deposit:          0.15,
		ConfirmationSlow: 0.5,
		ConfirmationFast: 0.85,
		Exchange:         0.6,
		Settlement:       0.6,
	}
}

// Orders is the slice of the order manager the observer drives.
type Orders interface {
	GetAllOrders() []model.Order
	Advance(id string, step order.Transition) (model.Order, bool, error)
}

// HashGenerator produces synthetic transaction hashes.
type HashGenerator interface {
	TxHash(symbol string) (string, error)
}

type Config struct {
	Interval      time.Duration
	Probabilities Probabilities
}

// Observer is the only source of automatic order progression.
type Observer struct {
	orders   Orders
	assets   *assets.Registry
	hashes   HashGenerator
	dice     Dice
	probs    Probabilities
	interval time.Duration
	running  sync.Mutex
	logger   *zap.Logger
}

type Option func(*Observer)

// WithDice replaces the random source.
func WithDice(d Dice) Option {
	return func(o *Observer) { o.dice = d }
}

func NewObserver(orders Orders, registry *assets.Registry, hashes HashGenerator, config Config, logger *zap.Logger, opts ...Option) *Observer {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.Probabilities == (Probabilities{}) {
		config.Probabilities = DefaultProbabilities()
	}

	o := &Observer{
		orders:   orders,
		assets:   registry,
		hashes:   hashes,
		dice:     randomDice{},
		probs:    config.Probabilities,
		interval: config.Interval,
		logger:   logger.Named("observer"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run ticks until ctx is cancelled.
func (o *Observer) Run(ctx context.Context) {
	o.logger.Info("Starting lifecycle observer", zap.Duration("interval", o.interval))

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("Lifecycle observer stopped")
			return
		case <-ticker.C:
			if err := o.Tick(ctx); err != nil {
				o.logger.Error("Tick finished with errors", zap.Error(err))
			}
		}
	}
}

// Tick advances every non-terminal order by at most one step. A tick that
// starts while another is still running is skipped. Failures are isolated per
// order and returned combined.
func (o *Observer) Tick(ctx context.Context) error {
	if !o.running.TryLock() {
		o.logger.Warn("Previous tick still running, skipping")
		return nil
	}
	defer o.running.Unlock()

	var errs error
	advanced := 0

	for _, snapshot := range o.orders.GetAllOrders() {
		if ctx.Err() != nil {
			return multierr.Append(errs, ctx.Err())
		}
		if snapshot.Status.IsTerminal() {
			continue
		}

		changed, err := o.advance(snapshot.ID)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if changed {
			advanced++
		}
	}

	if advanced > 0 {
		o.logger.Debug("Tick advanced orders", zap.Int("advanced", advanced))
	}
	return errs
}

func (o *Observer) advance(id string) (changed bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic advancing order %s: %v", id, r)
		}
	}()

	updated, changed, err := o.orders.Advance(id, o.step)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			// Evicted between snapshot and write.
			return false, nil
		}
		return false, fmt.Errorf("failed to advance order %s: %w", id, err)
	}

	if changed {
		o.logger.Debug("Order advanced",
			zap.String("order_id", updated.ID),
			zap.String("status", string(updated.Status)),
			zap.Int("confirmations", updated.Confirmations))
	}
	return changed, nil
}

func (o *Observer) roll(p float64) bool {
	return o.dice.Roll() < p
}

// step applies the transition rule for the order's current status.
func (o *Observer) step(ord *model.Order, now time.Time) (bool, error) {
	switch ord.Status {
	case model.StatusAwaitingDeposit:
		if !o.roll(o.probs.Deposit) {
			return false, nil
		}
		hash, err := o.hashes.TxHash(ord.FromSymbol)
		if err != nil {
			return false, fmt.Errorf("failed to generate inbound hash: %w", err)
		}
		ord.TxHashIn = hash
		ord.Status = model.StatusConfirming
		ord.AppendLog(now, model.LogNetwork,
			fmt.Sprintf("Deposit of %s %s detected in mempool. Tx: %s", ord.FromAmount, ord.FromSymbol, hash))
		return true, nil

	case model.StatusConfirming:
		if ord.Confirmations >= ord.RequiredConfirmations {
			ord.Status = model.StatusExchanging
			ord.AppendLog(now, model.LogSuccess,
				fmt.Sprintf("Required confirmations reached (%d/%d). Initiating exchange.", ord.Confirmations, ord.RequiredConfirmations))
			return true, nil
		}

		p := o.probs.ConfirmationFast
		if o.assets.Resolve(ord.FromSymbol).ProofOfWork {
			p = o.probs.ConfirmationSlow
		}
		if !o.roll(p) {
			return false, nil
		}
		ord.Confirmations++
		ord.AppendLog(now, model.LogNetwork,
			fmt.Sprintf("Block confirmation %d/%d received.", ord.Confirmations, ord.RequiredConfirmations))
		return true, nil

	case model.StatusExchanging:
		if !o.roll(o.probs.Exchange) {
			return false, nil
		}
		ord.Status = model.StatusSending
		ord.AppendLog(now, model.LogInfo,
			fmt.Sprintf("Routing %s -> %s through %s.", ord.FromSymbol, ord.ToSymbol, ord.Provider))
		ord.AppendLog(now, model.LogInfo,
			fmt.Sprintf("Ledger adjusted: %s %s reserved for payout.", ord.ToAmount, ord.ToSymbol))
		return true, nil

	case model.StatusSending:
		if !o.roll(o.probs.Settlement) {
			return false, nil
		}
		hash, err := o.hashes.TxHash(ord.ToSymbol)
		if err != nil {
			return false, fmt.Errorf("failed to generate outbound hash: %w", err)
		}
		ord.TxHashOut = hash
		ord.Status = model.StatusCompleted
		ord.AppendLog(now, model.LogNetwork, fmt.Sprintf("Payout broadcast. Tx: %s", hash))
		ord.AppendLog(now, model.LogSuccess,
			fmt.Sprintf("Settlement complete. %s %s sent to %s.", ord.ToAmount, ord.ToSymbol, ord.DestinationAddress))
		return true, nil
	}

	return false, nil
}

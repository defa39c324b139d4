package observer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"nexusswap/apps/swap/internal/assets"
	"nexusswap/apps/swap/internal/chain"
	"nexusswap/apps/swap/internal/liquidity"
	"nexusswap/apps/swap/internal/model"
	"nexusswap/apps/swap/internal/order"
	"nexusswap/apps/swap/internal/repository"
)

type fixedDice float64

func (d fixedDice) Roll() float64 { return float64(d) }

type failingHashes struct {
	HashGenerator
	symbol string
}

func (f failingHashes) TxHash(symbol string) (string, error) {
	if symbol == f.symbol {
		return "", errors.New("entropy exhausted")
	}
	return f.HashGenerator.TxHash(symbol)
}

type panickingOrders struct {
	Orders
	id string
}

func (p panickingOrders) Advance(id string, step order.Transition) (model.Order, bool, error) {
	if id == p.id {
		panic("corrupt order")
	}
	return p.Orders.Advance(id, step)
}

type fixture struct {
	manager   *order.Manager
	registry  *assets.Registry
	generator *chain.Generator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()
	registry := assets.NewDefaultRegistry()

	settings, err := liquidity.NewSettings(liquidity.SettingsSnapshot{})
	require.NoError(t, err)
	cache := liquidity.NewRateCache(registry, nil, liquidity.CacheConfig{}, logger)
	generator := chain.NewGenerator(registry, nil)

	manager := order.NewManager(order.Dependencies{
		Orders:    repository.NewOrderRepository(logger),
		Deposits:  repository.NewDepositAddressRepository(logger),
		Assets:    registry,
		Quoter:    liquidity.NewAggregator(cache, settings, nil, logger),
		Prices:    cache,
		Addresses: generator,
	}, order.Config{}, logger)

	return &fixture{manager: manager, registry: registry, generator: generator}
}

func (f *fixture) observer(dice Dice) *Observer {
	return NewObserver(f.manager, f.registry, f.generator, Config{}, zap.NewNop(), WithDice(dice))
}

func (f *fixture) create(t *testing.T, from, to, amount string) model.Order {
	t.Helper()
	o, err := f.manager.CreateOrder(context.Background(), order.CreateOrderRequest{
		FromSymbol:         from,
		ToSymbol:           to,
		FromAmount:         amount,
		DestinationAddress: "0xabc",
	})
	require.NoError(t, err)
	return o
}

func (f *fixture) get(t *testing.T, id string) model.Order {
	t.Helper()
	o, err := f.manager.GetOrder(id)
	require.NoError(t, err)
	return o
}

func TestLifecycleSequence(t *testing.T) {
	f := newFixture(t)
	obs := f.observer(fixedDice(0))
	created := f.create(t, "BTC", "ETH", "0.5")
	require.Equal(t, 3, created.RequiredConfirmations)

	seen := []model.Status{created.Status}
	lastConfirmations := 0
	for i := 0; i < 20; i++ {
		require.NoError(t, obs.Tick(context.Background()))
		o := f.get(t, created.ID)

		assert.GreaterOrEqual(t, o.Confirmations, lastConfirmations)
		assert.LessOrEqual(t, o.Confirmations, o.RequiredConfirmations)
		lastConfirmations = o.Confirmations

		if o.Status != seen[len(seen)-1] {
			seen = append(seen, o.Status)
		}
	}

	assert.Equal(t, []model.Status{
		model.StatusAwaitingDeposit,
		model.StatusConfirming,
		model.StatusExchanging,
		model.StatusSending,
		model.StatusCompleted,
	}, seen)

	done := f.get(t, created.ID)
	assert.Equal(t, 3, done.Confirmations)
	assert.NotEmpty(t, done.TxHashIn)
	assert.Regexp(t, `^0x[0-9a-f]{64}$`, done.TxHashOut)
	assert.Equal(t, model.LogSuccess, done.Logs[len(done.Logs)-1].Type)
}

func TestBTCReachesExchangingAfterThreeConfirmations(t *testing.T) {
	f := newFixture(t)
	obs := f.observer(fixedDice(0))
	created := f.create(t, "BTC", "ETH", "0.5")

	require.NoError(t, obs.Tick(context.Background())) // deposit
	for i := 1; i <= 3; i++ {
		require.NoError(t, obs.Tick(context.Background()))
		o := f.get(t, created.ID)
		assert.Equal(t, model.StatusConfirming, o.Status)
		assert.Equal(t, i, o.Confirmations)
	}

	require.NoError(t, obs.Tick(context.Background()))
	assert.Equal(t, model.StatusExchanging, f.get(t, created.ID).Status)
}

func TestConfirmationSpeedDependsOnAsset(t *testing.T) {
	f := newFixture(t)
	btc := f.create(t, "BTC", "ETH", "1")
	eth := f.create(t, "ETH", "BTC", "1")
	for _, id := range []string{btc.ID, eth.ID} {
		_, err := f.manager.OverrideStatus(id, "CONFIRMING", "")
		require.NoError(t, err)
	}

	// 0.6 sits between the proof-of-work and fast confirmation chances.
	require.NoError(t, f.observer(fixedDice(0.6)).Tick(context.Background()))

	assert.Equal(t, 0, f.get(t, btc.ID).Confirmations)
	assert.Equal(t, 1, f.get(t, eth.ID).Confirmations)
}

func TestNeverExpiresAutomatically(t *testing.T) {
	for _, dice := range []fixedDice{0, 0.5, 0.99} {
		f := newFixture(t)
		obs := f.observer(dice)
		created := f.create(t, "SOL", "USDT", "3")

		for i := 0; i < 30; i++ {
			require.NoError(t, obs.Tick(context.Background()))
			assert.NotEqual(t, model.StatusExpired, f.get(t, created.ID).Status)
		}
	}
}

func TestOverriddenOrderIsNotTouched(t *testing.T) {
	f := newFixture(t)
	obs := f.observer(fixedDice(0))
	created := f.create(t, "BTC", "ETH", "0.5")

	expired, err := f.manager.OverrideStatus(created.ID, "EXPIRED", "customer cancelled")
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, obs.Tick(context.Background()))
	}
	assert.Equal(t, expired, f.get(t, created.ID))
}

func TestOverlappingTickIsSkipped(t *testing.T) {
	f := newFixture(t)
	obs := f.observer(fixedDice(0))
	created := f.create(t, "ETH", "BTC", "1")

	obs.running.Lock()
	require.NoError(t, obs.Tick(context.Background()))
	obs.running.Unlock()
	assert.Equal(t, model.StatusAwaitingDeposit, f.get(t, created.ID).Status)

	require.NoError(t, obs.Tick(context.Background()))
	assert.Equal(t, model.StatusConfirming, f.get(t, created.ID).Status)
}

func TestFailuresAreIsolatedPerOrder(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		f := newFixture(t)
		broken := f.create(t, "BTC", "ETH", "1")
		healthy := f.create(t, "ETH", "BTC", "1")

		obs := NewObserver(f.manager, f.registry, failingHashes{HashGenerator: f.generator, symbol: "BTC"},
			Config{}, zap.NewNop(), WithDice(fixedDice(0)))

		err := obs.Tick(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), broken.ID)

		assert.Equal(t, model.StatusAwaitingDeposit, f.get(t, broken.ID).Status)
		assert.Len(t, f.get(t, broken.ID).Logs, len(broken.Logs))
		assert.Equal(t, model.StatusConfirming, f.get(t, healthy.ID).Status)
	})

	t.Run("Panic", func(t *testing.T) {
		f := newFixture(t)
		broken := f.create(t, "BTC", "ETH", "1")
		healthy := f.create(t, "ETH", "BTC", "1")

		obs := NewObserver(panickingOrders{Orders: f.manager, id: broken.ID}, f.registry, f.generator,
			Config{}, zap.NewNop(), WithDice(fixedDice(0)))

		err := obs.Tick(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "panic")
		assert.Equal(t, model.StatusConfirming, f.get(t, healthy.ID).Status)
	})
}

func TestTickStopsOnCancelledContext(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, "ETH", "BTC", "1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.observer(fixedDice(0)).Tick(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, model.StatusAwaitingDeposit, f.get(t, created.ID).Status)
}

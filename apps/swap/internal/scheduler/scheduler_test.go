package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingSweeper struct {
	calls atomic.Int32
}

func (c *countingSweeper) SweepExpired(time.Time) int {
	c.calls.Add(1)
	return 0
}

func TestRetentionSweepRuns(t *testing.T) {
	runner := New(context.Background(), zap.NewNop())
	sweeper := &countingSweeper{}

	_, err := runner.AddRetentionSweep("@every 1s", sweeper)
	require.NoError(t, err)
	assert.Equal(t, 1, runner.Entries())

	runner.Start()
	defer runner.Stop()

	assert.Eventually(t, func() bool { return sweeper.calls.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
}

func TestInvalidSpecIsRejected(t *testing.T) {
	runner := New(context.Background(), zap.NewNop())

	_, err := runner.Add("not a cron spec", func(context.Context) {})
	assert.Error(t, err)

	_, err = runner.AddRetentionSweep("", &countingSweeper{})
	assert.NoError(t, err)
}

func TestJobPanicsAreRecovered(t *testing.T) {
	runner := New(context.Background(), zap.NewNop())
	var after atomic.Int32

	_, err := runner.Add("@every 1s", func(context.Context) {
		after.Add(1)
		panic("boom")
	})
	require.NoError(t, err)

	runner.Start()
	defer runner.Stop()

	assert.Eventually(t, func() bool { return after.Load() >= 2 }, 4*time.Second, 50*time.Millisecond)
}

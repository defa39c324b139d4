package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	t.Run("AcceptsKnownStatusesCaseInsensitive", func(t *testing.T) {
		s, err := ParseStatus(" expired ")
		require.NoError(t, err)
		assert.Equal(t, StatusExpired, s)
	})

	t.Run("RejectsVariantsOutsideEnumeration", func(t *testing.T) {
		for _, v := range []string{"FAILED", "REFUNDED", ""} {
			_, err := ParseStatus(v)
			assert.Error(t, err, v)
		}
	})
}

func TestStatusNext(t *testing.T) {
	sequence := []Status{StatusAwaitingDeposit}
	current := StatusAwaitingDeposit
	for {
		next, ok := current.Next()
		if !ok {
			break
		}
		sequence = append(sequence, next)
		current = next
	}

	assert.Equal(t, []Status{
		StatusAwaitingDeposit,
		StatusConfirming,
		StatusExchanging,
		StatusSending,
		StatusCompleted,
	}, sequence)

	_, ok := StatusExpired.Next()
	assert.False(t, ok)
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusExpired.IsTerminal())
	assert.False(t, StatusSending.IsTerminal())
}

func TestOrderCloneDoesNotAliasLogs(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	order := Order{ID: "ABC12345", CreatedAt: now.UnixMilli()}
	order.AppendLog(now, LogInfo, "created")

	clone := order.Clone()
	clone.AppendLog(now.Add(time.Second), LogNetwork, "changed")
	clone.Logs[0].Message = "mutated"

	require.Len(t, order.Logs, 1)
	assert.Equal(t, "created", order.Logs[0].Message)
	assert.Equal(t, now.Add(time.Second), clone.LastActivity())
	assert.Equal(t, now, order.LastActivity())
}

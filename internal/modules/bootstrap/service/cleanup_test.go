package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"qbot/internal/models"
	"qbot/pkg/broker"
)

func TestCleanup(t *testing.T) {
	ctx := context.Background()
	b := broker.NewMemory()

	for i := 0; i < 150; i++ {
		require.NoError(t, b.Set(ctx, models.OrderKey(fmt.Sprintf("s%d", i)), "{}", time.Hour))
	}
	require.NoError(t, b.Push(ctx, models.InputQueue("s1"), "x"))
	require.NoError(t, b.Push(ctx, models.TradeQueue, "y"))
	require.NoError(t, b.Set(ctx, "OTHER:key", "keep", 0))

	n, err := NewCleaner(b, zaptest.NewLogger(t)).Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 152, n)

	left, err := b.Scan(ctx, models.KeyPrefix)
	require.NoError(t, err)
	assert.Empty(t, left)

	ok, err := b.Exists(ctx, "OTHER:key")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCleanup_Empty(t *testing.T) {
	n, err := NewCleaner(broker.NewMemory(), zaptest.NewLogger(t)).Cleanup(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

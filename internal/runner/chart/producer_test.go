package chart

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"qbot/internal/models"
	"qbot/pkg/broker"
)

type fakeSeries struct {
	bars []Bar
	err  error
}

func (f fakeSeries) Each(ctx context.Context, _ string, fn func(Bar) error) error {
	for _, b := range f.bars {
		if err := fn(b); err != nil {
			return err
		}
	}
	return f.err
}

func day(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }

func TestProducer_PushesThenSentinelThenDeletesOrder(t *testing.T) {
	ctx := context.Background()
	b := broker.NewMemory()
	q := models.SessionQueues("s1")
	require.NoError(t, b.Set(ctx, q.Order, "{}", time.Hour))

	series := fakeSeries{bars: []Bar{
		{Date: day(1), Open: 1.1234567, High: 2, Low: 1, Close: 1.5},
		{Date: day(2), Open: 1.5, High: 2.5, Low: 1.4, Close: 2.0000004},
	}}
	p := NewProducer(b, series, Config{TrimBound: 100}, zaptest.NewLogger(t))
	require.NoError(t, p.Run(ctx, "AAPL", q))

	var got []models.Candle
	for {
		item, ok, err := b.BPop(ctx, time.Millisecond, q.Input)
		require.NoError(t, err)
		if !ok {
			break
		}
		c, err := models.DecodeCandle(item.Value)
		require.NoError(t, err)
		got = append(got, c)
	}
	require.Len(t, got, 3)

	assert.Equal(t, models.MessageChart, got[0].Type)
	assert.Equal(t, float64(day(1).Unix()), got[0].Time)
	assert.Equal(t, 1.123457, got[0].Open)
	assert.Equal(t, 2.0, got[1].Close)
	assert.True(t, got[2].IsSentinel())

	alive, err := b.Exists(ctx, q.Order)
	require.NoError(t, err)
	assert.False(t, alive)
}

func TestProducer_TrimsInput(t *testing.T) {
	ctx := context.Background()
	b := broker.NewMemory()
	q := models.SessionQueues("s1")

	bars := make([]Bar, 10)
	for i := range bars {
		bars[i] = Bar{Date: day(i + 1), Close: float64(i + 1)}
	}
	p := NewProducer(b, fakeSeries{bars: bars}, Config{TrimBound: 4}, zaptest.NewLogger(t))
	require.NoError(t, p.Run(ctx, "AAPL", q))

	all, err := b.Range(ctx, q.Input, 0, -1)
	require.NoError(t, err)
	require.Len(t, all, 4)

	last, err := models.DecodeCandle(all[0])
	require.NoError(t, err)
	assert.True(t, last.IsSentinel())

	oldest, err := models.DecodeCandle(all[3])
	require.NoError(t, err)
	assert.Equal(t, 8.0, oldest.Close)
}

func TestProducer_Cadence(t *testing.T) {
	ctx := context.Background()
	b := broker.NewMemory()
	q := models.SessionQueues("s1")
	bars := []Bar{{Date: day(1), Close: 1}, {Date: day(2), Close: 2}, {Date: day(3), Close: 3}}

	p := NewProducer(b, fakeSeries{bars: bars}, Config{Frequency: 20 * time.Millisecond, TrimBound: 100}, zaptest.NewLogger(t))
	start := time.Now()
	require.NoError(t, p.Run(ctx, "AAPL", q))
	assert.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)
}

func TestProducer_CancelKeepsOrder(t *testing.T) {
	b := broker.NewMemory()
	q := models.SessionQueues("s1")
	require.NoError(t, b.Set(context.Background(), q.Order, "{}", time.Hour))

	bars := make([]Bar, 100)
	for i := range bars {
		bars[i] = Bar{Date: day(1), Close: 1}
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(30*time.Millisecond, cancel)

	p := NewProducer(b, fakeSeries{bars: bars}, Config{Frequency: 10 * time.Millisecond, TrimBound: 100}, zaptest.NewLogger(t))
	err := p.Run(ctx, "AAPL", q)
	assert.ErrorIs(t, err, context.Canceled)

	alive, err := b.Exists(context.Background(), q.Order)
	require.NoError(t, err)
	assert.True(t, alive)
}

func TestProducer_SeriesError(t *testing.T) {
	b := broker.NewMemory()
	q := models.SessionQueues("s1")
	boom := errors.New("no such table")

	p := NewProducer(b, fakeSeries{err: boom}, Config{TrimBound: 100}, zaptest.NewLogger(t))
	assert.ErrorIs(t, p.Run(context.Background(), "AAPL", q), boom)
}

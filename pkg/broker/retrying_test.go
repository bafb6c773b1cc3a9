package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flaky падает первые failN вызовов Get, дальше отдаёт из Memory.
type flaky struct {
	*Memory
	failN int
	calls int
}

func (f *flaky) Get(ctx context.Context, key string) (string, bool, error) {
	f.calls++
	if f.calls <= f.failN {
		return "", false, errors.New("connection reset by peer")
	}
	return f.Memory.Get(ctx, key)
}

var fastRetry = RetryConfig{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}

func TestRetrying_RecoversFromTransientErrors(t *testing.T) {
	ctx := context.Background()
	f := &flaky{Memory: NewMemory(), failN: 2}
	require.NoError(t, f.Set(ctx, "k", "v", 0))

	r := NewRetrying(f, fastRetry, nil)
	v, ok, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)
	assert.Equal(t, 3, f.calls)
}

func TestRetrying_GivesUpAfterMaxRetries(t *testing.T) {
	f := &flaky{Memory: NewMemory(), failN: 100}
	r := NewRetrying(f, fastRetry, nil)

	_, _, err := r.Get(context.Background(), "k")
	require.Error(t, err)
	assert.Equal(t, fastRetry.MaxRetries+1, f.calls)
}

func TestRetrying_DoesNotRetryClosedBroker(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Close())
	r := NewRetrying(m, fastRetry, nil)

	err := r.Push(context.Background(), "q", "x")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRetrying_PassesTimeoutThrough(t *testing.T) {
	r := NewRetrying(NewMemory(), fastRetry, nil)
	_, ok, err := r.BPop(context.Background(), 5*time.Millisecond, "q")
	require.NoError(t, err)
	assert.False(t, ok)
}

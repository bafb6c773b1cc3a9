package broker

import (
	"context"
	"errors"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"go.uber.org/zap"
)

type RetryConfig struct {
	MaxRetries     int           `mapstructure:"max_retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

var DefaultRetry = RetryConfig{
	MaxRetries:     5,
	InitialBackoff: 100 * time.Millisecond,
	MaxBackoff:     5 * time.Second,
}

// Retrying оборачивает брокер ограниченным ретраем с экспоненциальным бэкоффом.
// Отмена контекста и закрытый брокер не ретраятся.
type Retrying struct {
	inner Broker
	exec  failsafe.Executor[any]
}

func NewRetrying(inner Broker, cfg RetryConfig, log *zap.Logger) *Retrying {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultRetry.InitialBackoff
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	if log == nil {
		log = zap.NewNop()
	}

	policy := retrypolicy.NewBuilder[any]().
		HandleIf(func(_ any, err error) bool { return retryable(err) }).
		WithBackoff(cfg.InitialBackoff, cfg.MaxBackoff).
		WithMaxRetries(cfg.MaxRetries).
		OnRetry(func(e failsafe.ExecutionEvent[any]) {
			log.Warn("[BROKER] retry", zap.Int("attempt", e.Attempts()), zap.Error(e.LastError()))
		}).
		Build()

	return &Retrying{
		inner: inner,
		exec:  failsafe.With[any](policy),
	}
}

func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrClosed) {
		return false
	}
	return true
}

func (r *Retrying) run(ctx context.Context, fn func() error) error {
	err := r.exec.WithContext(ctx).Run(fn)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (r *Retrying) BPop(ctx context.Context, timeout time.Duration, keys ...string) (item Item, ok bool, err error) {
	err = r.run(ctx, func() error {
		var e error
		item, ok, e = r.inner.BPop(ctx, timeout, keys...)
		return e
	})
	return item, ok, err
}

func (r *Retrying) Push(ctx context.Context, key string, values ...string) error {
	return r.run(ctx, func() error { return r.inner.Push(ctx, key, values...) })
}

func (r *Retrying) Trim(ctx context.Context, key string, start, stop int64) error {
	return r.run(ctx, func() error { return r.inner.Trim(ctx, key, start, stop) })
}

func (r *Retrying) Range(ctx context.Context, key string, start, stop int64) (out []string, err error) {
	err = r.run(ctx, func() error {
		var e error
		out, e = r.inner.Range(ctx, key, start, stop)
		return e
	})
	return out, err
}

func (r *Retrying) Get(ctx context.Context, key string) (v string, ok bool, err error) {
	err = r.run(ctx, func() error {
		var e error
		v, ok, e = r.inner.Get(ctx, key)
		return e
	})
	return v, ok, err
}

func (r *Retrying) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.run(ctx, func() error { return r.inner.Set(ctx, key, value, ttl) })
}

func (r *Retrying) TTL(ctx context.Context, key string) (d time.Duration, err error) {
	err = r.run(ctx, func() error {
		var e error
		d, e = r.inner.TTL(ctx, key)
		return e
	})
	return d, err
}

func (r *Retrying) Del(ctx context.Context, keys ...string) error {
	return r.run(ctx, func() error { return r.inner.Del(ctx, keys...) })
}

func (r *Retrying) Exists(ctx context.Context, key string) (ok bool, err error) {
	err = r.run(ctx, func() error {
		var e error
		ok, e = r.inner.Exists(ctx, key)
		return e
	})
	return ok, err
}

func (r *Retrying) Scan(ctx context.Context, prefix string) (keys []string, err error) {
	err = r.run(ctx, func() error {
		var e error
		keys, e = r.inner.Scan(ctx, prefix)
		return e
	})
	return keys, err
}

func (r *Retrying) Ping(ctx context.Context) error {
	return r.run(ctx, func() error { return r.inner.Ping(ctx) })
}

func (r *Retrying) Close() error { return r.inner.Close() }

package broker

import (
	"context"
	"errors"
	"time"
)

var ErrClosed = errors.New("broker: closed")

// Item: элемент, снятый с одной из очередей BPop.
type Item struct {
	Key   string
	Value string
}

// Broker: узкий интерфейс к key-value/очередям (Valkey/Redis).
// Списки: Push кладёт в голову, BPop снимает с хвоста => FIFO.
type Broker interface {
	// BPop блокируется до timeout; ok == false значит таймаут, это не ошибка.
	// timeout == 0 — ждём, пока не отменят ctx.
	BPop(ctx context.Context, timeout time.Duration, keys ...string) (item Item, ok bool, err error)
	Push(ctx context.Context, key string, values ...string) error
	Trim(ctx context.Context, key string, start, stop int64) error
	Range(ctx context.Context, key string, start, stop int64) ([]string, error)

	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	TTL(ctx context.Context, key string) (time.Duration, error)
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	Scan(ctx context.Context, prefix string) ([]string, error)

	Ping(ctx context.Context) error
	Close() error
}

// PushTrim кладёт значения в голову списка и обрезает его до bound последних.
// Старые сообщения выпадают молча (drop-oldest).
func PushTrim(ctx context.Context, b Broker, key string, bound int64, values ...string) error {
	if err := b.Push(ctx, key, values...); err != nil {
		return err
	}
	if bound <= 0 {
		return nil
	}
	return b.Trim(ctx, key, 0, bound-1)
}

package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"qbot/internal/models"
	"qbot/pkg/broker"
)

var ErrIdle = errors.New("relay: output queue idle")

// Sink: клиентская сторона (websocket).
type Sink func(ctx context.Context, payload string) error

type Config struct {
	PopTimeout time.Duration
	Idle       time.Duration // 0 — ждать stop сколько угодно
}

// Relay перекладывает выходную очередь сессии в клиентский поток.
type Relay struct {
	broker broker.Broker
	cfg    Config
	log    *zap.Logger
}

func New(b broker.Broker, cfg Config, log *zap.Logger) *Relay {
	return &Relay{broker: b, cfg: cfg, log: log}
}

// Stream отдаёт всё из queue в sink и выходит после сообщения {"type":"stop"}.
// Стоп определяется по структуре, а не по длине.
func (r *Relay) Stream(ctx context.Context, queue string, sink Sink) error {
	log := r.log.With(zap.String("queue", queue))
	lastSeen := time.Now()
	sent := 0

	for {
		item, ok, err := r.broker.BPop(ctx, r.cfg.PopTimeout, queue)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("relay pop %s: %w", queue, err)
		}
		if !ok {
			if r.cfg.Idle > 0 && time.Since(lastSeen) > r.cfg.Idle {
				log.Warn("[RELAY] idle, giving up", zap.Int("sent", sent))
				return ErrIdle
			}
			continue
		}
		lastSeen = time.Now()

		if err := sink(ctx, item.Value); err != nil {
			return fmt.Errorf("relay send: %w", err)
		}
		sent++

		if isStop(item.Value) {
			log.Info("[RELAY] stop received", zap.Int("sent", sent))
			return nil
		}
	}
}

func isStop(raw string) bool {
	typ, err := models.MessageTypeOf(raw)
	return err == nil && typ == models.MessageStop
}

// TradeLister: закрытые сделки сессии по ордеру.
type TradeLister interface {
	ListClosedTrades(ctx context.Context, accountID, orderID string) ([]models.Trade, error)
}

// Replay отдаёт историю закрытых сделок в виде trade_history сообщений.
func Replay(ctx context.Context, trades TradeLister, accountID, orderID string, sink Sink) (int, error) {
	list, err := trades.ListClosedTrades(ctx, accountID, orderID)
	if err != nil {
		return 0, fmt.Errorf("list trades: %w", err)
	}
	for i, t := range list {
		raw, err := models.Encode(models.NewHistoryNotice(t))
		if err != nil {
			return i, err
		}
		if err := sink(ctx, raw); err != nil {
			return i, fmt.Errorf("relay send: %w", err)
		}
	}
	return len(list), nil
}

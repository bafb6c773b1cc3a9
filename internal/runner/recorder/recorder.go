package recorder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opentracing/opentracing-go"
	"go.uber.org/zap"

	"qbot/internal/metrics"
	"qbot/internal/models"
	"qbot/pkg/broker"
)

// HistoryStore: куда уходят закрытые сделки (таблица trades).
type HistoryStore interface {
	SaveTrade(ctx context.Context, t models.Trade) error
}

type Config struct {
	TradeTTL   time.Duration // срок жизни OPEN-записи
	TrimBound  int64
	PopTimeout time.Duration // 0 — ждать без таймаута
	ErrorPause time.Duration // пауза после ошибки брокера
}

// Recorder: единственный глобальный воркер очереди SESSION:TRADE.
// События обрабатываются строго по одному.
type Recorder struct {
	broker  broker.Broker
	store   HistoryStore
	cfg     Config
	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func New(b broker.Broker, store HistoryStore, cfg Config, log *zap.Logger, m *metrics.Metrics) *Recorder {
	return &Recorder{
		broker:  b,
		store:   store,
		cfg:     cfg,
		log:     log,
		metrics: m,
		now:     time.Now,
	}
}

// Run крутится до отмены ctx или закрытия брокера.
func (r *Recorder) Run(ctx context.Context) {
	r.log.Info("[RECORDER] started", zap.String("queue", models.TradeQueue))
	defer r.log.Info("[RECORDER] stopped")

	for {
		item, ok, err := r.broker.BPop(ctx, r.cfg.PopTimeout, models.TradeQueue)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, broker.ErrClosed) {
				return
			}
			r.log.Error("[RECORDER] pop failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.cfg.ErrorPause):
			}
			continue
		}
		if !ok {
			continue
		}
		if err := r.Handle(ctx, item.Value); err != nil {
			r.log.Error("[RECORDER] event failed", zap.Error(err))
		}
	}
}

// Handle обрабатывает одно событие из очереди.
func (r *Recorder) Handle(ctx context.Context, raw string) (err error) {
	ev, err := models.DecodeTradeEvent(raw)
	if err != nil {
		r.metrics.RecorderEvents.WithLabelValues("unknown", "malformed").Inc()
		r.log.Warn("[RECORDER] malformed event skipped", zap.String("payload", raw), zap.Error(err))
		return nil
	}

	span, ctx := opentracing.StartSpanFromContext(ctx, "recorder.event")
	span.SetTag("trade", ev.Data.ID)
	span.SetTag("type", string(ev.Type))
	defer span.Finish()

	result := "ok"
	defer func() {
		if err != nil {
			result = "error"
			span.SetTag("error", true)
		}
		r.metrics.RecorderEvents.WithLabelValues(string(ev.Type), result).Inc()
	}()

	switch ev.Type {
	case models.TradeOpen:
		return r.open(ctx, ev)
	case models.TradeClosed:
		found, err := r.close(ctx, ev)
		if err == nil && !found {
			result = "missing"
		}
		return err
	}
	return nil
}

func (r *Recorder) open(ctx context.Context, ev models.TradeEvent) error {
	t := ev.Data
	t.Status = models.TradeOpen
	if t.CreatedAt.IsZero() {
		t.CreatedAt = r.now()
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}

	raw, err := models.Encode(t)
	if err != nil {
		return fmt.Errorf("encode trade: %w", err)
	}
	if err := r.broker.Set(ctx, models.TradeKey(t.ID), raw, r.cfg.TradeTTL); err != nil {
		return fmt.Errorf("set %s: %w", models.TradeKey(t.ID), err)
	}

	r.log.Info("[RECORDER] open",
		zap.String("trade", t.ID),
		zap.String("order", t.OrderID),
		zap.String("side", string(t.OrderType)),
		zap.Float64("price", t.Price),
	)
	return r.notify(ctx, ev.OutputQueue, models.NewTradeNotice(t))
}

// close возвращает found=false, если OPEN-записи нет (истёк TTL или событие потерялось).
func (r *Recorder) close(ctx context.Context, ev models.TradeEvent) (bool, error) {
	key := models.TradeKey(ev.Data.ID)
	raw, ok, err := r.broker.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if !ok {
		r.log.Warn("[RECORDER] close without open record", zap.String("trade", ev.Data.ID))
		return false, nil
	}

	t, err := models.DecodeTrade(raw)
	if err != nil {
		_ = r.broker.Del(ctx, key)
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	t.Status = models.TradeClosed
	t.PnL = ev.Data.PnL
	t.Equity = ev.Data.Equity
	t.UpdatedAt = ev.Data.UpdatedAt
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = r.now()
	}

	if err := r.broker.Del(ctx, key); err != nil {
		return true, fmt.Errorf("del %s: %w", key, err)
	}

	// история в БД не должна блокировать уведомление клиента
	if r.store != nil {
		if err := r.store.SaveTrade(ctx, t); err != nil {
			r.log.Error("[RECORDER] save trade failed", zap.String("trade", t.ID), zap.Error(err))
		}
	}

	r.log.Info("[RECORDER] closed",
		zap.String("trade", t.ID),
		zap.Float64("pnl", t.PnL),
		zap.Float64("equity", t.Equity),
	)
	return true, r.notify(ctx, ev.OutputQueue, models.NewHistoryNotice(t))
}

func (r *Recorder) notify(ctx context.Context, queue string, msg any) error {
	if queue == "" {
		return nil
	}
	raw, err := models.Encode(msg)
	if err != nil {
		return fmt.Errorf("encode notice: %w", err)
	}
	if err := broker.PushTrim(ctx, r.broker, queue, r.cfg.TrimBound, raw); err != nil {
		return fmt.Errorf("push %s: %w", queue, err)
	}
	return nil
}

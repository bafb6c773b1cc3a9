package chart

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"qbot/internal/models"
	"qbot/pkg/broker"
)

// Bar: строка исторического ряда.
type Bar struct {
	Date  time.Time
	Open  float64
	High  float64
	Low   float64
	Close float64
}

// SeriesReader отдаёт ряд инструмента по строкам, в порядке хранения.
type SeriesReader interface {
	Each(ctx context.Context, symbol string, fn func(Bar) error) error
}

type Config struct {
	Frequency time.Duration // пауза между свечами
	TrimBound int64
}

// Producer проигрывает исторический ряд во входную очередь сессии.
type Producer struct {
	broker broker.Broker
	series SeriesReader
	cfg    Config
	log    *zap.Logger
}

func NewProducer(b broker.Broker, series SeriesReader, cfg Config, log *zap.Logger) *Producer {
	return &Producer{broker: b, series: series, cfg: cfg, log: log}
}

// Run пушит свечи с заданной частотой. По исчерпании ряда кладёт {"exit": true}
// и только потом удаляет ключ ордера.
func (p *Producer) Run(ctx context.Context, symbol string, q models.Queues) error {
	log := p.log.With(zap.String("symbol", symbol), zap.String("queue", q.Input))

	limit := rate.Inf
	if p.cfg.Frequency > 0 {
		limit = rate.Every(p.cfg.Frequency)
	}
	limiter := rate.NewLimiter(limit, 1)

	pushed := 0
	err := p.series.Each(ctx, symbol, func(b Bar) error {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		raw, err := models.Encode(toCandle(b))
		if err != nil {
			return fmt.Errorf("encode candle: %w", err)
		}
		if err := broker.PushTrim(ctx, p.broker, q.Input, p.cfg.TrimBound, raw); err != nil {
			return fmt.Errorf("push %s: %w", q.Input, err)
		}
		pushed++
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			log.Info("[CHART] stopped", zap.Int("pushed", pushed))
			return ctx.Err()
		}
		log.Error("[CHART] series failed", zap.Int("pushed", pushed), zap.Error(err))
		return err
	}

	// один такт паузы: воркер успевает разобрать последнюю свечу до удаления ключа
	if err := limiter.Wait(ctx); err != nil {
		return err
	}
	exit, err := models.Encode(models.ExitCandle())
	if err != nil {
		return err
	}
	if err := broker.PushTrim(ctx, p.broker, q.Input, p.cfg.TrimBound, exit); err != nil {
		return fmt.Errorf("push exit: %w", err)
	}
	if err := p.broker.Del(ctx, q.Order); err != nil {
		return fmt.Errorf("del %s: %w", q.Order, err)
	}
	log.Info("[CHART] series exhausted", zap.Int("pushed", pushed))
	return nil
}

func toCandle(b Bar) models.Candle {
	return models.Candle{
		Type:  models.MessageChart,
		Time:  float64(b.Date.Unix()),
		Open:  round6(b.Open),
		High:  round6(b.High),
		Low:   round6(b.Low),
		Close: round6(b.Close),
	}
}

func round6(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(6).Float64()
	return f
}

package sessions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"go.uber.org/zap"

	"qbot/internal/metrics"
	"qbot/internal/models"
	"qbot/internal/strategy"
	"qbot/pkg/broker"
)

const (
	tradeAmount = 1.0
	stopTimeout = 3 * time.Second
)

// Session: параметры одной торговой сессии, снятые с управляющего ключа.
type Session struct {
	ID            string
	Order         models.Order
	Queues        models.Queues
	InitialEquity float64
	MinEquity     float64
	MaxEquity     float64
}

// NewSession: стартовый equity = amount, границы = stop_loss/take_profit ордера.
func NewSession(id string, o models.Order) Session {
	return Session{
		ID:            id,
		Order:         o,
		Queues:        models.SessionQueues(id),
		InitialEquity: o.Amount,
		MinEquity:     o.StopLoss,
		MaxEquity:     o.TakeProfit,
	}
}

type Config struct {
	PopTimeout   time.Duration
	TrimBound    int64
	MaxMalformed int // подряд; <= 0 — без лимита
}

// Engine: воркер решений одной сессии: свечи из INPUT, сделки в TRADE, всё остальное в OUTPUT.
type Engine struct {
	sess    Session
	cfg     Config
	rules   RiskRules
	broker  broker.Broker
	agent   strategy.Agent
	log     *zap.Logger
	metrics *metrics.Metrics

	newID func() string
	now   func() time.Time

	state     BotState
	malformed int
}

func NewEngine(
	sess Session,
	cfg Config,
	rules RiskRules,
	b broker.Broker,
	agent strategy.Agent,
	log *zap.Logger,
	m *metrics.Metrics,
) *Engine {
	return &Engine{
		sess:    sess,
		cfg:     cfg,
		rules:   rules,
		broker:  b,
		agent:   agent,
		log:     log.With(zap.String("session", sess.ID), zap.String("order", sess.Order.OrderID)),
		metrics: m,
		newID:   uuid.NewString,
		now:     time.Now,
		state:   NewBotState(sess.InitialEquity),
	}
}

// State: снимок состояния; читать только после возврата Run.
func (e *Engine) State() BotState { return e.state }

// Run крутит цикл до терминального условия. Ошибка возвращается только для broker_error.
// На любом выходе в OUTPUT уходит {"type":"stop"}.
func (e *Engine) Run(ctx context.Context) (reason StopReason, err error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "engine.run")
	span.SetTag("session", e.sess.ID)
	span.SetTag("instrument", e.sess.Order.InstrumentSymbol)

	e.log.Info("[ENGINE] started",
		zap.Float64("equity", e.sess.InitialEquity),
		zap.Float64("min_equity", e.sess.MinEquity),
		zap.Float64("max_equity", e.sess.MaxEquity),
	)

	defer func() {
		e.emitStop(ctx)

		span.SetTag("reason", string(reason))
		span.SetTag("steps", e.state.Step)
		if err != nil {
			ext.Error.Set(span, true)
			span.LogKV("error", err.Error())
		}
		span.Finish()

		e.metrics.SessionStops.WithLabelValues(string(reason)).Inc()
		fields := []zap.Field{
			zap.String("reason", string(reason)),
			zap.Int("steps", e.state.Step),
			zap.Float64("equity", e.state.Equity),
			zap.Float64("balance", e.state.Balance),
		}
		if err != nil {
			e.log.Error("[ENGINE] stopped", append(fields, zap.Error(err))...)
			return
		}
		e.log.Info("[ENGINE] stopped", fields...)
	}()

	for {
		if ctx.Err() != nil {
			return ReasonInterrupted, nil
		}

		item, ok, err := e.broker.BPop(ctx, e.cfg.PopTimeout, e.sess.Queues.Input)
		if err != nil {
			if ctx.Err() != nil {
				return ReasonInterrupted, nil
			}
			return ReasonBrokerError, fmt.Errorf("pop %s: %w", e.sess.Queues.Input, err)
		}

		var candle models.Candle
		var decodeErr error
		if ok {
			candle, decodeErr = models.DecodeCandle(item.Value)
			// продюсер кладёт sentinel и сразу удаляет ключ ордера: это нормальный конец ряда
			if decodeErr == nil && candle.IsSentinel() {
				return ReasonSentinel, nil
			}
		}

		alive, err := e.broker.Exists(ctx, e.sess.Queues.Order)
		if err != nil {
			if ctx.Err() != nil {
				return ReasonInterrupted, nil
			}
			return ReasonBrokerError, fmt.Errorf("check %s: %w", e.sess.Queues.Order, err)
		}
		if !alive {
			return ReasonCancelled, nil
		}
		if !ok {
			continue
		}

		if decodeErr == nil && candle.Close <= 0 {
			decodeErr = fmt.Errorf("non-positive close %v", candle.Close)
		}
		if decodeErr != nil {
			e.metrics.Malformed.Inc()
			e.malformed++
			e.log.Warn("[ENGINE] malformed payload skipped",
				zap.String("payload", truncate(item.Value, 128)),
				zap.Int("in_row", e.malformed),
				zap.Error(decodeErr),
			)
			if e.cfg.MaxMalformed > 0 && e.malformed > e.cfg.MaxMalformed {
				return ReasonMalformed, nil
			}
			continue
		}
		e.malformed = 0

		stop, err := e.step(ctx, item.Value, candle)
		if err != nil {
			if ctx.Err() != nil {
				return ReasonInterrupted, nil
			}
			return ReasonBrokerError, err
		}
		if stop != "" {
			return stop, nil
		}
	}
}

// step: одна свеча: переоценка, решение агента, риск-правила, обучение, форвард.
func (e *Engine) step(ctx context.Context, raw string, c models.Candle) (StopReason, error) {
	st := &e.state
	price := c.Close
	e.metrics.ObserveCandle()

	before := st.Equity
	st.Mark(price)

	if !st.HasLast {
		st.LastClose, st.HasLast = price, true
		return "", e.forward(ctx, raw)
	}

	cur := e.agent.Discretize(st.LastClose, price, st.Sign())
	action := e.agent.SelectAction(cur)

	tr := st.Apply(action, price, e.rules, e.newID)
	switch {
	case tr.Opened != nil:
		if err := e.publishOpen(ctx, tr.Opened, c); err != nil {
			return "", err
		}
	case tr.Closed != nil:
		if err := e.publishClose(ctx, tr.Closed, tr.PnL, price); err != nil {
			return "", err
		}
	}

	st.Mark(price)

	if st.Flat() {
		switch {
		case st.Balance <= e.sess.MinEquity:
			e.log.Warn("[ENGINE] equity below min", zap.Float64("equity", st.Balance))
			return ReasonEquityMin, nil
		case st.Balance >= e.sess.MaxEquity:
			e.log.Info("[ENGINE] equity reached max", zap.Float64("equity", st.Balance))
			return ReasonEquityMax, nil
		}
	}

	next := e.agent.Discretize(st.LastClose, price, st.Sign())
	reward := st.Equity - before
	if tr.Closed != nil {
		reward *= 2
	}
	e.agent.Update(cur, action, reward, &next)

	st.LastClose = price
	st.Step++

	return "", e.forward(ctx, raw)
}

func (e *Engine) publishOpen(ctx context.Context, p *Position, c models.Candle) error {
	now := e.now()
	ev := models.TradeEvent{
		Type:        models.TradeOpen,
		OutputQueue: e.sess.Queues.Output,
		Data: models.Trade{
			ID:           p.ID,
			AccountID:    e.sess.Order.AccountID,
			InstrumentID: e.sess.Order.InstrumentID,
			OrderID:      e.sess.Order.OrderID,
			OrderType:    p.Direction.OrderType(),
			Status:       models.TradeOpen,
			Amount:       tradeAmount,
			Price:        p.Entry,
			CreatedAt:    candleTime(c, now),
			UpdatedAt:    now,
		},
	}
	e.log.Info("[ENGINE] open",
		zap.String("trade", p.ID),
		zap.String("side", string(ev.Data.OrderType)),
		zap.Float64("entry", p.Entry),
		zap.Float64("sl", p.StopLoss),
		zap.Float64("tp", p.TakeProfit),
	)
	return e.publishTrade(ctx, ev)
}

func (e *Engine) publishClose(ctx context.Context, p *Position, pnl, price float64) error {
	ev := models.TradeEvent{
		Type:        models.TradeClosed,
		OutputQueue: e.sess.Queues.Output,
		Data: models.Trade{
			ID:        p.ID,
			OrderType: p.Direction.OrderType(),
			Status:    models.TradeClosed,
			PnL:       pnl,
			Equity:    e.state.Balance,
			UpdatedAt: e.now(),
		},
	}
	e.log.Info("[ENGINE] close",
		zap.String("trade", p.ID),
		zap.Float64("exit", price),
		zap.Float64("pnl", pnl),
		zap.Float64("equity", e.state.Balance),
	)
	return e.publishTrade(ctx, ev)
}

func (e *Engine) publishTrade(ctx context.Context, ev models.TradeEvent) error {
	raw, err := models.Encode(ev)
	if err != nil {
		return fmt.Errorf("encode trade event: %w", err)
	}
	if err := broker.PushTrim(ctx, e.broker, e.sess.Queues.Trade, e.cfg.TrimBound, raw); err != nil {
		return fmt.Errorf("push %s: %w", e.sess.Queues.Trade, err)
	}
	e.metrics.Trades.WithLabelValues(string(ev.Type)).Inc()
	return nil
}

func (e *Engine) forward(ctx context.Context, raw string) error {
	if err := broker.PushTrim(ctx, e.broker, e.sess.Queues.Output, e.cfg.TrimBound, raw); err != nil {
		return fmt.Errorf("push %s: %w", e.sess.Queues.Output, err)
	}
	return nil
}

// emitStop: best effort, в том числе после отмены ctx.
func (e *Engine) emitStop(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()

	raw, _ := models.Encode(models.NewStop())
	if err := broker.PushTrim(ctx, e.broker, e.sess.Queues.Output, e.cfg.TrimBound, raw); err != nil {
		e.log.Warn("[ENGINE] stop message not delivered", zap.Error(err))
	}
}

func candleTime(c models.Candle, def time.Time) time.Time {
	if c.Time <= 0 {
		return def
	}
	sec := int64(c.Time)
	return time.Unix(sec, int64((c.Time-float64(sec))*1e9))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

package runner

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"qbot/internal/metrics"
	"qbot/internal/models"
	"qbot/internal/runner/chart"
	"qbot/internal/runner/recorder"
	"qbot/internal/runner/sessions"
	"qbot/internal/strategy"
	"qbot/pkg/broker"
)

type closesSeries struct {
	closes []float64
	delay  time.Duration
}

func (s closesSeries) Each(ctx context.Context, _ string, fn func(chart.Bar) error) error {
	for i, c := range s.closes {
		if s.delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.delay):
			}
		}
		if err := fn(chart.Bar{Date: time.Unix(int64(1700000000+i*86400), 0), Open: c, High: c, Low: c, Close: c}); err != nil {
			return err
		}
	}
	return nil
}

type opsLog struct {
	mu   sync.Mutex
	msgs []string
}

func (o *opsLog) Sendf(format string, args ...any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, fmt.Sprintf(format, args...))
}

func (o *opsLog) all() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.msgs...)
}

// buyOnce: первая же решаемая свеча — BUY, дальше HOLD.
type buyOnce struct {
	*strategy.QLearning
	done bool
}

func (a *buyOnce) SelectAction(strategy.State) models.Action {
	if a.done {
		return models.ActionHold
	}
	a.done = true
	return models.ActionBuy
}

type env struct {
	b   *broker.Memory
	m   *Manager
	met *metrics.Metrics
	ops *opsLog
}

func newEnv(t *testing.T, series chart.SeriesReader, maxSessions int) *env {
	b := broker.NewMemory()
	met := metrics.New(prometheus.NewRegistry())
	ops := &opsLog{}
	cfg := Config{
		MaxSessions: maxSessions,
		OrderTTL:    time.Hour,
		Engine:      sessions.Config{PopTimeout: 10 * time.Millisecond, TrimBound: 100, MaxMalformed: 10},
		Chart:       chart.Config{Frequency: 20 * time.Millisecond, TrimBound: 100},
		Strategy:    strategy.DefaultConfig(),
	}
	m := NewManager(b, series, cfg, zaptest.NewLogger(t), met, ops)
	m.newAgent = func(c strategy.Config) strategy.Agent {
		return &buyOnce{QLearning: strategy.NewQLearning(c, rand.New(rand.NewSource(1)))}
	}
	t.Cleanup(m.Shutdown)
	return &env{b: b, m: m, met: met, ops: ops}
}

func (e *env) putOrder(t *testing.T, sid string, status models.OrderStatus) {
	raw, err := models.Encode(models.Order{
		OrderID:          "o-" + sid,
		AccountID:        sid,
		InstrumentID:     1,
		InstrumentSymbol: "AAPL",
		StopLoss:         200,
		TakeProfit:       800,
		Amount:           500,
		Duration:         "1h",
		Status:           status,
	})
	require.NoError(t, err)
	require.NoError(t, e.b.Set(context.Background(), models.OrderKey(sid), raw, 30*time.Minute))
}

// start запускает сессию и сразу берёт её done-канал.
func (e *env) start(t *testing.T, ctx context.Context, sid string) <-chan struct{} {
	require.NoError(t, e.m.Start(ctx, sid))
	done := e.m.Done(sid)
	require.NotNil(t, done)
	return done
}

func (e *env) wait(t *testing.T, done <-chan struct{}) {
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish")
	}
}

func (e *env) output(t *testing.T, sid string) []string {
	all, err := e.b.Range(context.Background(), models.OutputQueue(sid), 0, -1)
	require.NoError(t, err)
	out := make([]string, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		out = append(out, all[i])
	}
	return out
}

func types(t *testing.T, msgs []string) []models.MessageType {
	res := make([]models.MessageType, 0, len(msgs))
	for _, raw := range msgs {
		typ, err := models.MessageTypeOf(raw)
		require.NoError(t, err)
		res = append(res, typ)
	}
	return res
}

func TestManager_RunsSessionToSentinel(t *testing.T) {
	e := newEnv(t, closesSeries{closes: []float64{100, 101, 99}}, 4)
	e.putOrder(t, "s1", models.OrderPending)

	done := e.start(t, context.Background(), "s1")
	assert.Equal(t, []string{"s1"}, e.m.Active())
	e.wait(t, done)

	msgs := types(t, e.output(t, "s1"))
	assert.Equal(t, []models.MessageType{models.MessageChart, models.MessageChart, models.MessageChart, models.MessageStop}, msgs)

	alive, err := e.b.Exists(context.Background(), models.OrderKey("s1"))
	require.NoError(t, err)
	assert.False(t, alive)

	require.Eventually(t, func() bool { return len(e.m.Active()) == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0.0, testutil.ToFloat64(e.met.SessionsActive))
	assert.Empty(t, e.ops.all())
}

func TestManager_FullPipelineWithRecorder(t *testing.T) {
	e := newEnv(t, closesSeries{closes: []float64{100, 101, 99}}, 4)
	rec := recorder.New(e.b, nil, recorder.Config{TradeTTL: time.Hour, TrimBound: 100, PopTimeout: 10 * time.Millisecond}, zaptest.NewLogger(t), e.met)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rec.Run(ctx)

	e.putOrder(t, "s1", models.OrderPending)
	done := e.start(t, ctx, "s1")
	e.wait(t, done)

	// уведомления рекордера приходят асинхронно, после stop
	require.Eventually(t, func() bool {
		seen := map[models.MessageType]bool{}
		for _, typ := range types(t, e.output(t, "s1")) {
			seen[typ] = true
		}
		return seen[models.MessageTrade] && seen[models.MessageTradeHistory] && seen[models.MessageStop]
	}, 2*time.Second, 10*time.Millisecond)

	for _, raw := range e.output(t, "s1") {
		typ, _ := models.MessageTypeOf(raw)
		if typ == models.MessageTradeHistory {
			assert.JSONEq(t, `{"type":"trade_history","time":1700086400,"order_type":"BUY","amount":1,"price":101,"pnl":-2}`, raw)
		}
	}
}

func TestManager_StartFlipsOrderToRunning(t *testing.T) {
	e := newEnv(t, closesSeries{closes: []float64{100, 101}, delay: 200 * time.Millisecond}, 4)
	e.putOrder(t, "s1", models.OrderPending)
	done := e.start(t, context.Background(), "s1")

	raw, ok, err := e.b.Get(context.Background(), models.OrderKey("s1"))
	require.NoError(t, err)
	require.True(t, ok)
	order, err := models.DecodeOrder(raw)
	require.NoError(t, err)
	assert.Equal(t, models.OrderRunning, order.Status)

	ttl, err := e.b.TTL(context.Background(), models.OrderKey("s1"))
	require.NoError(t, err)
	assert.LessOrEqual(t, ttl, 30*time.Minute)
	assert.Greater(t, ttl, 29*time.Minute)

	assert.ErrorIs(t, e.m.Start(context.Background(), "s1"), ErrSessionRunning)
	require.NoError(t, e.m.Cancel(context.Background(), "s1"))
	e.wait(t, done)
}

func TestManager_StartErrors(t *testing.T) {
	e := newEnv(t, closesSeries{closes: []float64{1}, delay: time.Second}, 1)

	assert.ErrorIs(t, e.m.Start(context.Background(), "nope"), ErrNoOrder)

	e.putOrder(t, "r", models.OrderRunning)
	assert.ErrorIs(t, e.m.Start(context.Background(), "r"), ErrSessionRunning)

	e.putOrder(t, "a", models.OrderPending)
	e.putOrder(t, "b", models.OrderPending)
	done := e.start(t, context.Background(), "a")
	assert.ErrorIs(t, e.m.Start(context.Background(), "b"), ErrTooManySessions)

	require.NoError(t, e.m.Cancel(context.Background(), "a"))
	e.wait(t, done)
}

func TestManager_CancelEmitsStop(t *testing.T) {
	e := newEnv(t, closesSeries{closes: []float64{100, 101, 102, 103}, delay: 100 * time.Millisecond}, 2)
	e.putOrder(t, "s1", models.OrderPending)
	done := e.start(t, context.Background(), "s1")

	require.NoError(t, e.m.Cancel(context.Background(), "s1"))
	e.wait(t, done)

	msgs := types(t, e.output(t, "s1"))
	require.NotEmpty(t, msgs)
	assert.Equal(t, models.MessageStop, msgs[len(msgs)-1])
	assert.Equal(t, 1.0, testutil.ToFloat64(e.met.SessionStops.WithLabelValues("cancelled")))
}

func TestManager_ShutdownStopsSessions(t *testing.T) {
	e := newEnv(t, closesSeries{closes: []float64{100, 101, 102}, delay: time.Second}, 2)
	e.putOrder(t, "s1", models.OrderPending)
	done := e.start(t, context.Background(), "s1")

	e.m.Shutdown()
	<-done

	msgs := types(t, e.output(t, "s1"))
	assert.Equal(t, []models.MessageType{models.MessageStop}, msgs)
	assert.Equal(t, 1.0, testutil.ToFloat64(e.met.SessionStops.WithLabelValues("interrupted")))
}

func TestManager_EquityBreachNotifiesOps(t *testing.T) {
	e := newEnv(t, closesSeries{closes: []float64{400, 400, 50, 60}}, 2)
	e.putOrder(t, "s1", models.OrderPending)
	done := e.start(t, context.Background(), "s1")
	e.wait(t, done)

	require.Eventually(t, func() bool { return len(e.ops.all()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Contains(t, e.ops.all()[0], "equity_min")
}

package runner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alitto/pond"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"qbot/internal/metrics"
	"qbot/internal/models"
	"qbot/internal/runner/chart"
	"qbot/internal/runner/sessions"
	"qbot/internal/strategy"
	"qbot/pkg/broker"
)

var (
	ErrNoOrder         = errors.New("runner: no order for session")
	ErrSessionRunning  = errors.New("runner: session already running")
	ErrTooManySessions = errors.New("runner: too many sessions")
)

// Notifier: ops-канал (Telegram или stdout).
type Notifier interface {
	Sendf(format string, args ...any)
}

type Config struct {
	MaxSessions int
	OrderTTL    time.Duration // если у ключа ордера нет срока
	Engine      sessions.Config
	Chart       chart.Config
	Strategy    strategy.Config
}

type handle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager запускает сессии: на каждую — задача в пуле, внутри продюсер свечей и воркер решений.
type Manager struct {
	mu      sync.Mutex
	running map[string]*handle

	ctx      context.Context
	cancel   context.CancelFunc
	pool     *pond.WorkerPool
	stopOnce sync.Once

	broker   broker.Broker
	series   chart.SeriesReader
	cfg      Config
	log      *zap.Logger
	metrics  *metrics.Metrics
	notifier Notifier

	newAgent func(strategy.Config) strategy.Agent
}

func NewManager(
	b broker.Broker,
	series chart.SeriesReader,
	cfg Config,
	log *zap.Logger,
	m *metrics.Metrics,
	n Notifier,
) *Manager {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	mgr := &Manager{
		running:  make(map[string]*handle),
		ctx:      ctx,
		cancel:   cancel,
		broker:   b,
		series:   series,
		cfg:      cfg,
		log:      log,
		metrics:  m,
		notifier: n,
		newAgent: strategy.NewAgent,
	}
	mgr.pool = pond.New(
		cfg.MaxSessions,
		cfg.MaxSessions,
		pond.MinWorkers(0),
		pond.IdleTimeout(time.Minute),
		pond.PanicHandler(func(p interface{}) {
			log.Error("[RUNNER] session panic recovered", zap.Any("panic", p))
		}),
	)
	return mgr
}

// Start переводит ордер PENDING -> RUNNING и запускает сессию.
func (m *Manager) Start(ctx context.Context, sessionID string) error {
	q := models.SessionQueues(sessionID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.running[sessionID]; ok {
		return ErrSessionRunning
	}
	if len(m.running) >= m.cfg.MaxSessions {
		return ErrTooManySessions
	}

	raw, ok, err := m.broker.Get(ctx, q.Order)
	if err != nil {
		return fmt.Errorf("get order: %w", err)
	}
	if !ok {
		return ErrNoOrder
	}
	order, err := models.DecodeOrder(raw)
	if err != nil {
		return fmt.Errorf("decode order: %w", err)
	}
	if order.Status == models.OrderRunning {
		return ErrSessionRunning
	}

	ttl, err := m.broker.TTL(ctx, q.Order)
	if err != nil {
		return fmt.Errorf("order ttl: %w", err)
	}
	if ttl <= 0 {
		ttl = order.TTL(m.cfg.OrderTTL)
	}
	order.Status = models.OrderRunning
	if raw, err = models.Encode(order); err != nil {
		return fmt.Errorf("encode order: %w", err)
	}
	if err := m.broker.Set(ctx, q.Order, raw, ttl); err != nil {
		return fmt.Errorf("set order: %w", err)
	}

	sctx, cancel := context.WithCancel(m.ctx)
	h := &handle{cancel: cancel, done: make(chan struct{})}
	sess := sessions.NewSession(sessionID, order)

	if !m.pool.TrySubmit(func() { m.runSession(sctx, sess, h) }) {
		cancel()
		return ErrTooManySessions
	}
	m.running[sessionID] = h
	m.metrics.SessionsActive.Inc()

	m.log.Info("[RUNNER] session started",
		zap.String("session", sessionID),
		zap.String("order", order.OrderID),
		zap.String("symbol", order.InstrumentSymbol),
		zap.Duration("ttl", ttl),
	)
	return nil
}

func (m *Manager) runSession(ctx context.Context, sess sessions.Session, h *handle) {
	defer close(h.done)
	defer h.cancel()

	log := m.log.With(zap.String("session", sess.ID))
	scfg := m.cfg.Strategy
	engine := sessions.NewEngine(
		sess,
		m.cfg.Engine,
		sessions.RiskRules{StopLossPct: scfg.StopLossPct, TakeProfitPct: scfg.TakeProfitPct},
		m.broker,
		m.newAgent(scfg),
		m.log,
		m.metrics,
	)
	producer := chart.NewProducer(m.broker, m.series, m.cfg.Chart, m.log)

	var (
		reason    sessions.StopReason
		engineErr error
		chartErr  error
	)

	g, gctx := errgroup.WithContext(ctx)
	chartCtx, stopChart := context.WithCancel(gctx)
	defer stopChart()

	g.Go(func() error {
		err := producer.Run(chartCtx, sess.Order.InstrumentSymbol, sess.Queues)
		if err != nil && chartCtx.Err() == nil {
			chartErr = err
			return err
		}
		return nil
	})
	g.Go(func() error {
		defer stopChart()
		reason, engineErr = engine.Run(gctx)
		return nil
	})
	_ = g.Wait()

	m.finish(sess, reason, engineErr, chartErr, log)
}

func (m *Manager) finish(sess sessions.Session, reason sessions.StopReason, engineErr, chartErr error, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := m.broker.Del(ctx, sess.Queues.Order); err != nil {
		log.Warn("[RUNNER] order key not removed", zap.Error(err))
	}

	m.mu.Lock()
	delete(m.running, sess.ID)
	m.mu.Unlock()
	m.metrics.SessionsActive.Dec()

	st := []zap.Field{zap.String("reason", string(reason))}
	if chartErr != nil {
		st = append(st, zap.NamedError("chart_error", chartErr))
	}
	if engineErr != nil {
		st = append(st, zap.NamedError("engine_error", engineErr))
	}
	log.Info("[RUNNER] session finished", st...)

	switch {
	case chartErr != nil:
		m.notifier.Sendf("⚠️ session %s (%s): chart feed failed: %v", sess.ID, sess.Order.InstrumentSymbol, chartErr)
	case reason.Abnormal():
		m.notifier.Sendf("⚠️ session %s (%s) stopped: %s", sess.ID, sess.Order.InstrumentSymbol, reason)
	}
}

// Cancel: кооперативная отмена: удаляем ключ ордера, воркер увидит это на следующей итерации.
func (m *Manager) Cancel(ctx context.Context, sessionID string) error {
	return m.broker.Del(ctx, models.OrderKey(sessionID))
}

// Done закрывается, когда сессия завершилась. nil — сессия не запущена.
func (m *Manager) Done(sessionID string) <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.running[sessionID]; ok {
		return h.done
	}
	return nil
}

func (m *Manager) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.running))
	for id := range m.running {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Shutdown гасит все сессии (каждая успеет отправить stop) и ждёт пул.
func (m *Manager) Shutdown() {
	m.stopOnce.Do(func() {
		m.cancel()
		m.pool.StopAndWait()
	})
}

package runner

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"qbot/internal/metrics"
	"qbot/internal/modules/config"
	"qbot/internal/runner/chart"
	"qbot/internal/runner/recorder"
	"qbot/internal/runner/relay"
	"qbot/internal/runner/sessions"
	"qbot/pkg/broker"
)

// NewConfig раскладывает секцию session по компонентам пайплайна.
func NewConfig(cfg *config.Config) Config {
	s := cfg.Session
	return Config{
		MaxSessions: s.MaxSessions,
		OrderTTL:    s.OrderTTL,
		Engine: sessions.Config{
			PopTimeout:   s.PopTimeout,
			TrimBound:    s.TrimBound,
			MaxMalformed: s.MaxMalformed,
		},
		Chart: chart.Config{
			Frequency: s.ChartFrequency,
			TrimBound: s.TrimBound,
		},
		Strategy: cfg.Strategy,
	}
}

func NewRecorder(b broker.Broker, store recorder.HistoryStore, cfg *config.Config, log *zap.Logger, m *metrics.Metrics) *recorder.Recorder {
	return recorder.New(b, store, recorder.Config{
		TradeTTL:   cfg.Session.TradeTTL,
		TrimBound:  cfg.Session.TrimBound,
		ErrorPause: cfg.Session.PopTimeout,
	}, log, m)
}

func NewRelay(b broker.Broker, cfg *config.Config, log *zap.Logger) *relay.Relay {
	return relay.New(b, relay.Config{
		PopTimeout: cfg.Session.PopTimeout,
		Idle:       cfg.Session.RelayIdle,
	}, log)
}

func Module() fx.Option {
	return fx.Module("runner",
		fx.Provide(
			func(reg prometheus.Registerer) *metrics.Metrics { return metrics.New(reg) },
			NewConfig,
			NewManager, // *Manager
			NewRecorder,
			NewRelay,
		),
		fx.Invoke(func(
			lc fx.Lifecycle,
			mgr *Manager,
			rec *recorder.Recorder,
			log *zap.Logger,
		) {
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					go func() {
						defer close(done)
						rec.Run(ctx)
					}()
					return nil
				},
				OnStop: func(stopCtx context.Context) error {
					// сначала сессии: каждая успевает отправить stop и последние сделки
					mgr.Shutdown()
					cancel()
					select {
					case <-done:
					case <-stopCtx.Done():
						log.Warn("[RUNNER] recorder did not stop in time")
					}
					return nil
				},
			})
		}),
	)
}

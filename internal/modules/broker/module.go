package broker

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"qbot/internal/modules/config"
	"qbot/pkg/broker"
)

// New собирает брокер по broker.backend и оборачивает его ретраями.
// Закрывается последним: OnStop идут в обратном порядке.
func New(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (broker.Broker, error) {
	var inner broker.Broker
	switch cfg.Broker.Backend {
	case config.BackendMemory:
		log.Warn("[BROKER] in-memory backend, sessions are process-local")
		inner = broker.NewMemory()
	case config.BackendRedis:
		r, err := broker.NewRedis(cfg.Broker.URL)
		if err != nil {
			return nil, fmt.Errorf("broker: %w", err)
		}
		inner = r
	default:
		return nil, fmt.Errorf("broker: unknown backend %q", cfg.Broker.Backend)
	}

	b := broker.NewRetrying(inner, cfg.Broker.Retry, log)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := b.Ping(ctx); err != nil {
				return fmt.Errorf("broker ping: %w", err)
			}
			log.Info("[BROKER] connected", zap.String("backend", cfg.Broker.Backend))
			return nil
		},
		OnStop: func(context.Context) error {
			return b.Close()
		},
	})
	return b, nil
}

func Module() fx.Option {
	return fx.Module("broker",
		fx.Provide(New),
	)
}

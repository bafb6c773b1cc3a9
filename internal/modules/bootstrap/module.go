package bootstrap

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	bootstrap "qbot/internal/modules/bootstrap/service"
	health "qbot/internal/modules/health/service"
)

func Module() fx.Option {
	return fx.Module("bootstrap",
		fx.Provide(
			bootstrap.NewCleaner, // -> *bootstrap.Cleaner
		),
		fx.Invoke(func(lc fx.Lifecycle, c *bootstrap.Cleaner, st *health.State, log *zap.Logger) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					// до готовности: API не должен принимать сессии, пока не вычищены старые ключи
					if _, err := c.Cleanup(ctx); err != nil {
						return err
					}
					st.SetReady(true)
					log.Info("[BOOT] ready")
					return nil
				},
				OnStop: func(context.Context) error {
					st.SetReady(false)
					return nil
				},
			})
		}),
	)
}

package accounts

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"qbot/internal/modules/accounts/service"
	"qbot/internal/modules/config"
	"qbot/internal/runner/recorder"
	"qbot/internal/runner/relay"
	"qbot/pkg/db"
)

func Module() fx.Option {
	return fx.Module("accounts",
		fx.Provide(
			func(m db.TxManager, cfg *config.Config, log *zap.Logger) *service.Store {
				return service.NewStore(m, cfg.Accounts, log)
			},
			func(s *service.Store) recorder.HistoryStore { return s },
			func(s *service.Store) relay.TradeLister { return s },
		),
		fx.Invoke(func(lc fx.Lifecycle, s *service.Store) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					return s.Migrate(ctx)
				},
			})
		}),
	)
}

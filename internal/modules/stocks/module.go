package stocks

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"qbot/internal/modules/config"
	"qbot/internal/modules/stocks/service"
	"qbot/internal/runner/chart"
	"qbot/pkg/sqlite"
)

func NewSeries(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*service.Series, error) {
	db, err := sqlite.Open(cfg.StocksDB, true)
	if err != nil {
		return nil, err
	}
	s := service.NewSeries(db)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			log.Info("[STOCKS] closing series db")
			return s.Close()
		},
	})
	return s, nil
}

func Module() fx.Option {
	return fx.Module("stocks",
		fx.Provide(
			NewSeries,
			func(s *service.Series) chart.SeriesReader { return s },
		),
	)
}

package tracing

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"qbot/internal/modules/config"
	"qbot/pkg/tracing"
)

// New ставит глобальный трейсер до старта воркеров; спаны берут его через opentracing.GlobalTracer.
func New(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (opentracing.Tracer, error) {
	tracing.SetServiceName("qbot")
	tracer, closer, err := tracing.InitTracer(cfg.Tracing)
	if err != nil {
		return nil, err
	}
	log.Info("[TRACING] initialized", zap.Bool("enabled", cfg.Tracing.Enabled))
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			closer()
			return nil
		},
	})
	return tracer, nil
}

func Module() fx.Option {
	return fx.Module("tracing",
		fx.Provide(New),
		// трейсер должен стоять до первых спанов, даже если его никто не просит явно
		fx.Invoke(func(opentracing.Tracer) {}),
	)
}

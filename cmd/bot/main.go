package main

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"qbot/internal/modules/accounts"
	"qbot/internal/modules/api"
	"qbot/internal/modules/bootstrap"
	brokermodule "qbot/internal/modules/broker"
	"qbot/internal/modules/config"
	"qbot/internal/modules/health"
	"qbot/internal/modules/postgres"
	"qbot/internal/modules/stocks"
	tracingmodule "qbot/internal/modules/tracing"
	"qbot/internal/notify"
	"qbot/internal/runner"
	"qbot/pkg/broker"
)

func main() {
	app := fx.New(
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		config.Module(),
		tracingmodule.Module(),
		brokermodule.Module(),
		postgres.Module(),
		accounts.Module(),
		stocks.Module(),
		health.Module(),
		bootstrap.Module(),
		runner.Module(),
		notify.Module(),
		api.Module(),
		fx.Provide(
			func(b broker.Broker) health.Pinger { return b },
			func(m *runner.Manager) health.Sessions { return m },
		),
	)
	// Run блокируется до SIGINT/SIGTERM; OnStop гасит сессии, каждая отправляет stop.
	app.Run()
}

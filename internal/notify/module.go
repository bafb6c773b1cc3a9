package notify

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"qbot/internal/modules/config"
	"qbot/internal/runner"
)

// New: есть токен — Telegram с командами, нет — всё в лог.
func New(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (Notifier, error) {
	if cfg.Telegram.Token == "" {
		log.Info("[TG] token is empty, ops messages go to log")
		return NewStdout(log), nil
	}

	tg, err := NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID, log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return tg.Start(context.Background())
		},
		OnStop: func(context.Context) error {
			tg.Stop()
			return nil
		},
	})
	return tg, nil
}

// attach: менеджер сам зависит от нотифайера, поэтому команды чата подключаем после сборки.
func attach(n Notifier, mgr *runner.Manager) {
	if tg, ok := n.(*Telegram); ok {
		tg.Attach(mgr)
	}
}

func Module() fx.Option {
	return fx.Module("notify",
		fx.Provide(
			New,
			func(n Notifier) runner.Notifier { return n },
		),
		fx.Invoke(attach),
	)
}

package config

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"qbot/pkg/logger"
)

// NewLogger: процессный логгер по log_level; он же ставит пакетные logger.Info/Error.
func NewLogger(cfg *Config) (*zap.Logger, error) {
	logger.SetServiceName("qbot")
	return logger.Init(cfg.LogLevel)
}

func Module() fx.Option {
	return fx.Module("config",
		fx.Provide(
			NewConfig,
			NewLogger,
		),
	)
}

package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"

	accounts "qbot/internal/modules/accounts/service"
	"qbot/internal/modules/api/service"
	"qbot/internal/modules/config"
	health "qbot/internal/modules/health/service"
	"qbot/internal/runner"
	"qbot/internal/runner/relay"
	"qbot/pkg/broker"
)

func NewHandler(
	store *accounts.Store,
	mgr *runner.Manager,
	rl *relay.Relay,
	b broker.Broker,
	st *health.State,
	cfg *config.Config,
	log *zap.Logger,
) *service.Handler {
	return service.NewHandler(store, mgr, rl, b, st, service.Config{
		OrderTTL:       cfg.Session.OrderTTL,
		AllowedOrigins: cfg.Service.AllowedOrigins,
		SecureCookie:   cfg.Service.SecureCookie,
	}, log)
}

func RunHTTP(lc fx.Lifecycle, cfg *config.Config, h *service.Handler, log *zap.Logger) {
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	addr := cfg.PublicAddr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			log.Info("[API] listening", zap.String("addr", addr))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("[API] serve failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

func Module() fx.Option {
	return fx.Module("api",
		fx.Provide(NewHandler),
		fx.Invoke(RunHTTP),
	)
}

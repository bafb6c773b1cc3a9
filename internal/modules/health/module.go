package health

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"qbot/internal/metrics"
	"qbot/internal/modules/config"
	"qbot/internal/modules/health/service"
)

const probeTimeout = 2 * time.Second

type Config struct {
	Addr string // например ":8080"
}

func NewConfig(cfg *config.Config) Config {
	return Config{Addr: cfg.AdminAddr()}
}

// Pinger: брокер; readyz без брокера не готов.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Sessions interface {
	Active() []string
}

type Probes struct {
	fx.In

	State    *service.State
	Broker   Pinger
	Sessions Sessions
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry
}

func NewMux(p Probes) *http.ServeMux {
	mux := http.NewServeMux()

	brokerErr := func(r *http.Request) error {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		defer cancel()
		return p.Broker.Ping(ctx)
	}

	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		// liveness: процесс жив
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		// readiness: стейл-сессии вычищены и брокер отвечает
		if !p.State.Ready() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		if err := brokerErr(r); err != nil {
			http.Error(w, "broker: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		// полезный JSON для отладки
		brokerStatus := "ok"
		if err := brokerErr(r); err != nil {
			brokerStatus = err.Error()
		}
		resp := map[string]any{
			"ready":          p.State.Ready(),
			"broker":         brokerStatus,
			"activeSessions": len(p.Sessions.Active()),
			"clients":        p.State.Clients(),
			"uptimeSec":      int64(p.State.Uptime().Seconds()),
			"lastCandleUnix": func() int64 {
				t := p.Metrics.LastCandle()
				if t.IsZero() {
					return 0
				}
				return t.Unix()
			}(),
		}
		raw, err := sonic.Marshal(resp)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(raw)
	})

	mux.Handle("/metrics", promhttp.HandlerFor(p.Registry, promhttp.HandlerOpts{}))

	return mux
}

// NewRegistry: свой реестр вместо глобального, чтобы тесты не делили счётчики.
func NewRegistry() (*prometheus.Registry, prometheus.Registerer) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, reg
}

func RunHTTP(lc fx.Lifecycle, cfg Config, mux *http.ServeMux, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", cfg.Addr)
			if err != nil {
				return err
			}
			log.Info("[HEALTH] listening", zap.String("addr", cfg.Addr))
			go func() { _ = srv.Serve(ln) }()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

func Module() fx.Option {
	return fx.Module("health",
		fx.Provide(
			service.NewState,
			NewConfig,
			NewRegistry,
			NewMux,
		),
		fx.Invoke(RunHTTP),
	)
}

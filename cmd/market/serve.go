package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"MiniMarket/internal/market"
	"MiniMarket/pkg/kit"
)

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			rt, err := setup(ctx, *configPath, reg)
			if err != nil {
				return err
			}
			defer rt.close()

			if err := rt.store.Ping(ctx); err != nil {
				rt.log.Warn("storage not ready at startup", zap.Error(err))
			}

			s := &market.Server{Store: rt.store, Log: rt.log}
			if rt.cfg.HTTP.CheckoutRateLimit > 0 {
				s.CheckoutLimiter = kit.NewIPRateLimiter(rt.cfg.HTTP.CheckoutRateLimit, rt.cfg.HTTP.CheckoutRateWindow)
			}

			h := market.NewHandler(s, market.HTTPDeps{
				Log:            rt.log,
				Service:        service,
				Registry:       reg,
				MetricsEnabled: rt.cfg.Metrics.Enabled,
				MetricsToken:   rt.cfg.Metrics.Token,
			})

			return kit.RunHTTPServer(ctx, rt.cfg.HTTP.Addr, h, rt.log, kit.ServerOptions{
				ShutdownTimeout: rt.cfg.HTTP.ShutdownTimeout,
			})
		},
	}
}

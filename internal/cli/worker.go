package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/davidroman0O/stagepipe"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func (a *app) workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "worker",
		Short:  "Run one pipeline read from stdin and report on stdout (process worker mode)",
		Args:   cobra.NoArgs,
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return stagepipe.ServeProcessWorker(cmd.Context(), a.registry, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func (a *app) serveWorkerCmd() *cobra.Command {
	var (
		addr        string
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "serve-worker",
		Short: "Serve pipeline runs over gRPC",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = a.cfg.Worker.GRPCAddress
			}
			if metricsAddr == "" {
				metricsAddr = a.cfg.MetricsAddress
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			metrics := stagepipe.NewMetrics(reg)
			notifier := stagepipe.NewNotifier()
			notifier.Subscribe(metrics)

			server := stagepipe.NewGRPCWorkerServer(a.registry,
				stagepipe.WithLogger(a.logger),
				stagepipe.WithNotifier(notifier),
				stagepipe.WithMiddleware(metrics.Middleware()),
			)
			if err := server.Listen(addr); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var httpServer *http.Server
			if metricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
				httpServer = &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
				go func() {
					if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						a.logger.Error("metrics server: %v", err)
					}
				}()
				a.logger.Info("Metrics on http://%s/metrics", metricsAddr)
			}

			go func() {
				<-ctx.Done()
				server.Stop()
				if httpServer != nil {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = httpServer.Shutdown(shutdownCtx)
				}
			}()

			fmt.Fprintf(cmd.OutOrStdout(), "worker listening on %s\n", server.Addr())
			return server.Serve()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address serving /metrics (default from config)")
	return cmd
}

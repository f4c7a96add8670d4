package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rahul/codemate/internal/agent"
	"github.com/rahul/codemate/internal/gateway"
	"github.com/rahul/codemate/internal/observability"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	heartbeatInterval time.Duration
	dashboard         bool
)

func init() {
	serveCmd.Flags().DurationVar(&heartbeatInterval, "heartbeat", 30*time.Second, "heartbeat interval")
	serveCmd.Flags().BoolVar(&dashboard, "dashboard", true, "draw the live status line when attached to a terminal")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Answer requests from chat gateways",
	Long: `Connect the enabled chat gateways (telegram, discord), expose Prometheus
metrics on metrics.addr and keep a live status line in the terminal.

Examples:
  codemate serve --config config.yaml
  codemate serve --dashboard=false`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := context.WithCancel(cmd.Context())
	defer stop()

	live := dashboard && observability.IsInteractive()
	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	messengers, err := buildMessengers(a)
	if err != nil {
		return err
	}
	if len(messengers) == 0 && a.Config.Metrics.Addr == "" {
		return errors.New("nothing to serve: enable a gateway or set metrics.addr")
	}

	if live {
		observability.PrintBanner(a.Config.App.Name, "serving chat gateways")
		observability.InitializeTerminal()
		defer observability.CleanupTerminal()
		go runDashboard(ctx)
	}

	scheduler := agent.NewScheduler(heartbeatInterval, a.Logger, agent.HeartbeatJob(a.Logger))
	observability.Heartbeat()
	go scheduler.Start(ctx)

	if addr := a.Config.Metrics.Addr; addr != "" {
		srv := &http.Server{Addr: addr, Handler: metricsMux(a), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			a.Logger.Info("metrics listening", zap.String("addr", addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.Logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	for _, m := range messengers {
		go func() {
			a.Logger.Info("gateway starting", zap.String("gateway", m.Name()))
			if err := m.Start(ctx); err != nil {
				a.Logger.Error("gateway stopped", zap.String("gateway", m.Name()), zap.Error(err))
				stop()
			}
		}()
	}

	<-ctx.Done()
	for _, m := range messengers {
		if err := m.Stop(); err != nil {
			a.Logger.Warn("gateway shutdown failed", zap.String("gateway", m.Name()), zap.Error(err))
		}
	}
	a.Logger.Info("shutting down")
	return nil
}

func buildMessengers(a *app) ([]gateway.Messenger, error) {
	var out []gateway.Messenger
	if gw, ok := a.Config.GetGatewayConfig("telegram"); ok {
		tg, err := gateway.NewTelegramGateway(gw.Token, a.Brain, a.Logger.Named("telegram"))
		if err != nil {
			return nil, err
		}
		out = append(out, tg)
	}
	if gw, ok := a.Config.GetGatewayConfig("discord"); ok {
		dc, err := gateway.NewDiscordGateway(gw.Token, a.Brain, a.Logger.Named("discord"))
		if err != nil {
			return nil, err
		}
		out = append(out, dc)
	}
	return out, nil
}

func metricsMux(a *app) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.Metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		role, task, lastHB := observability.GetStatus()
		fmt.Fprintf(w, "ok role=%s tasks=%d last_heartbeat=%s task=%q\n",
			role, observability.TasksRun(), lastHB.Format(time.RFC3339), task)
	})
	return mux
}

func runDashboard(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			observability.PrintLiveStatus()
		}
	}
}

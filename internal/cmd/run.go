package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mtconnect-org/agent/internal/agent"
	"github.com/mtconnect-org/agent/internal/config"
	"github.com/mtconnect-org/agent/internal/devicefile"
	"github.com/mtconnect-org/agent/internal/httpapi"
	"github.com/mtconnect-org/agent/internal/metrics"
)

var devicesPath string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the agent: adapter connectors plus the HTTP service",
	RunE:  runAgent,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&devicesPath, "devices", "devices.toml", "path to the device-model TOML file")
}

func runAgent(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	m, err := devicefile.Load(devicesPath)
	if err != nil {
		return fmt.Errorf("loading device model: %w", err)
	}

	reg := prometheus.NewRegistry()
	met := metrics.New(reg)

	a := agent.New(m, cfg.BufferCapacity(), cfg.CheckpointFrequency, cfg.MaxAssets, met, logger)
	for _, ac := range cfg.Adapters {
		a.AddAdapter(cfg.ToAdapterConfig(ac))
	}

	server := &httpapi.Server{
		Model:        a.Model,
		Buffer:       a.Buffer,
		Notifier:     a.Notifier,
		Assets:       a.Assets,
		Injector:     a,
		Metrics:      met,
		AllowPut:     cfg.AllowPut,
		AllowPutFrom: cfg.AllowPutFrom,
		Logger:       logger,
	}

	mux := http.NewServeMux()
	mux.Handle("/", server.Handler())
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.ServerIP, cfg.Port),
		Handler: mux,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Run(gctx) })
	g.Go(func() error {
		logger.Info("http service listening", "addr", httpServer.Addr)
		errCh := make(chan error, 1)
		go func() { errCh <- httpServer.ListenAndServe() }()
		select {
		case <-gctx.Done():
			return httpServer.Shutdown(context.Background())
		case err := <-errCh:
			if err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("http service: %w", err)
			}
			return nil
		}
	})

	return g.Wait()
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/xraph/tally"
	"github.com/xraph/tally/api"
	audithook "github.com/xraph/tally/audit_hook"
	"github.com/xraph/tally/auth"
	"github.com/xraph/tally/config"
	"github.com/xraph/tally/observability"
	"github.com/xraph/tally/store/memory"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the REST API over the in-memory store.

Configuration is read from --config, then TALLY_* environment variables.
The overdue invoice sweep runs on the configured cron schedule.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(rootOpts.ConfigPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTP.Addr = addr
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides http.addr")

	return cmd
}

// server bundles what runServe starts and stops.
type server struct {
	engine *tally.Tally
	http   *http.Server
}

func newServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*server, error) {
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("auth.jwt_secret is not configured")
	}
	am, err := auth.NewManager(cfg.Auth.JWTSecret,
		auth.WithIssuer(cfg.Auth.Issuer),
		auth.WithTTL(cfg.Auth.TokenTTL),
	)
	if err != nil {
		return nil, err
	}

	metrics := observability.NewPrometheusFactory(prometheus.NewRegistry())
	opts := append(cfg.EngineOptions(),
		tally.WithLogger(logger),
		tally.WithPlugin(observability.NewMetricsExtension(metrics)),
		tally.WithPlugin(audithook.New(audithook.LogRecorder(logger), audithook.WithLogger(logger))),
	)
	engine := tally.New(memory.New(), opts...)

	if err := engine.Start(ctx); err != nil {
		return nil, err
	}
	if err := cfg.SeedMembers(ctx, engine); err != nil {
		_ = engine.Stop()
		return nil, err
	}

	handlerOpts := []api.Option{api.WithLogger(logger)}
	if cfg.HTTP.Metrics {
		handlerOpts = append(handlerOpts, api.WithMetrics(metrics.Handler()))
	}
	h := api.NewHandler(engine, am, handlerOpts...)

	return &server{
		engine: engine,
		http: &http.Server{
			Addr:         cfg.HTTP.Addr,
			Handler:      h.Router(),
			ReadTimeout:  cfg.HTTP.ReadTimeout,
			WriteTimeout: cfg.HTTP.WriteTimeout,
			IdleTimeout:  cfg.HTTP.IdleTimeout,
		},
	}, nil
}

func runServe(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := cfg.Logger(os.Stderr)
	srv, err := newServer(ctx, cfg, logger)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.HTTP.Addr)
		if err := srv.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			_ = srv.engine.Stop()
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := srv.http.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := srv.engine.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("engine stop: %w", err))
	}
	return errors.Join(errs...)
}

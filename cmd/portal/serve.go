package main

import (
	"context"
	stderrors "errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/practicedesk/portal"
	"github.com/practicedesk/portal/internal/errors"
	"github.com/practicedesk/portal/internal/telemetry"
	"github.com/practicedesk/portal/pkg/auth/pgauth"
	"github.com/practicedesk/portal/pkg/middleware"
)

const shutdownTimeout = 15 * time.Second

func serveCmd(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the portal server",
		Long: `Run the portal HTTP server.

Examples:
  portal serve
  portal serve --addr 127.0.0.1:9000
  portal serve --config /etc/portal/portal.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts, cmd.Flags().Changed("config"), addr)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (overrides PORTAL_ADDR)")
	return cmd
}

func runServe(ctx context.Context, opts *rootOptions, explicitConfig bool, addr string) error {
	cfg, err := loadConfig(opts, explicitConfig)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Addr = addr
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	logger := newLogger(cfg.Log, os.Stderr)

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return errors.New("E203").Wrap(err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("trace flush failed", "error", err)
		}
	}()

	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()
	if err := b.requireDatabase(); err != nil {
		return err
	}

	provider, err := pgauth.New(b.db, pgauth.Config{SigningKey: []byte(cfg.SigningKey)},
		pgauth.WithLogger(logger),
	)
	if err != nil {
		return errors.FromError(err, "E123")
	}

	appCfg := portal.ConfigFromFile(cfg)
	appCfg.Logger = logger
	app, err := portal.New(appCfg, portal.Deps{
		Auth:           provider,
		Profiles:       b.profiles(cfg),
		Flags:          b.flags(cfg),
		Sessions:       b.sessionStore(cfg),
		Metrics:        middleware.NewMetrics(),
		TracerProvider: otel.GetTracerProvider(),
	})
	if err != nil {
		return err
	}
	defer app.Close()
	app.Start(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr, "version", version)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !stderrors.Is(err, http.ErrServerClosed) {
			return errors.New("E302").Wrap(err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.New("E302").Wrap(err)
	}
	return nil
}

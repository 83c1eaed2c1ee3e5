package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"k8s.io/utils/clock"

	"natsume/internal/config"
	"natsume/internal/database"
	"natsume/internal/handlers"
	"natsume/internal/metrics"
	"natsume/internal/registry"
)

const shutdownTimeout = 30 * time.Second

func NewServeCommand(configPath *string) (*cobra.Command, error) {
	opts := &RawServeOptions{ConfigPath: configPath}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the HTTP server that answers bind, report, sync and status requests
from kiosk clients and operators.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.Run(cmd.Context())
		},
	}
	return cmd, nil
}

type RawServeOptions struct {
	ConfigPath *string
}

type ValidatedServeOptions struct {
	Config *config.ServerConfig
}

type CompletedServeOptions struct {
	Config  *config.ServerConfig
	DB      *database.DB
	Handler http.Handler
}

func (o *RawServeOptions) Validate(ctx context.Context) (context.Context, *ValidatedServeOptions, error) {
	ctx, cfg, err := loadServerConfig(ctx, *o.ConfigPath)
	if err != nil {
		return ctx, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return ctx, &ValidatedServeOptions{Config: cfg}, nil
}

func (o *ValidatedServeOptions) Complete(ctx context.Context) (*CompletedServeOptions, error) {
	logger := logr.FromContextOrDiscard(ctx)

	db, err := database.NewDB(ctx, o.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	var m *metrics.Metrics
	var metricsHandler http.Handler
	if o.Config.EnableMetrics {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			metrics.NewStatusCollector(db, clock.RealClock{}, o.Config.StaleAfter, logger.WithName("metrics")),
		)
		m = metrics.New(reg)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
	}

	svc := registry.NewService(registry.PolicyFromConfig(o.Config), db, clock.RealClock{})
	h, err := handlers.NewHandler(o.Config, svc, m)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &CompletedServeOptions{
		Config:  o.Config,
		DB:      db,
		Handler: handlers.NewRouter(h, logger.WithName("http"), metricsHandler),
	}, nil
}

func (o *RawServeOptions) Run(ctx context.Context) error {
	ctx, validated, err := o.Validate(ctx)
	if err != nil {
		return err
	}
	completed, err := validated.Complete(ctx)
	if err != nil {
		return err
	}
	return completed.Run(ctx)
}

func (o *CompletedServeOptions) Run(ctx context.Context) error {
	logger := logr.FromContextOrDiscard(ctx)
	defer o.DB.Close()

	server := &http.Server{
		Addr:         o.Config.ListenAddress(),
		Handler:      o.Handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	logger.Info("natsume server starting",
		"address", o.Config.ListenAddress(),
		"driver", o.Config.DBDriver,
		"enableBind", o.Config.EnableBind,
		"enableBindUpdate", o.Config.EnableBindUpdate,
		"enableSync", o.Config.EnableSync,
		"syncEncryption", o.Config.SyncEncryption,
		"metrics", o.Config.EnableMetrics,
	)

	errChan := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server failed: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		logger.Info("server exited")
		return nil
	case err := <-errChan:
		return err
	}
}

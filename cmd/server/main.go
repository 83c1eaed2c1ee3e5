package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dusted-go/logging/prettylog"
	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"natsume/internal/config"
	"natsume/internal/version"
)

func main() {
	logger := createLogger(0)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var logVerbosity int
	var configPath string

	rootCmd := &cobra.Command{
		Use:     "natsume-server",
		Short:   "Device binding and credential sync server for contest kiosks",
		Version: version.Version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			ctx = logr.NewContext(ctx, createLogger(logVerbosity))
			cmd.SetContext(ctx)
		},
		SilenceUsage:     true,
		SilenceErrors:    true,
		TraverseChildren: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
	}

	rootCmd.PersistentFlags().IntVarP(&logVerbosity, "verbosity", "v", 0, "set the verbosity level")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to the env-style configuration file")

	for _, newCmd := range []func(*string) (*cobra.Command, error){
		NewServeCommand,
		NewLoadCommand,
		NewTokenCommand,
	} {
		cmd, err := newCmd(&configPath)
		if err != nil {
			logger.Error(err, "failed to create command")
			os.Exit(1)
		}
		rootCmd.AddCommand(cmd)
	}

	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Error(err, "command failed")
		os.Exit(1)
	}
}

func createLogger(verbosity int) logr.Logger {
	prettyHandler := prettylog.NewHandler(&slog.HandlerOptions{
		Level:       slog.Level(verbosity * -1),
		AddSource:   false,
		ReplaceAttr: nil,
	})
	return logr.FromSlogHandler(prettyHandler)
}

// loadServerConfig loads the configuration and raises the context logger's
// verbosity when LOG_LEVEL asks for more than the command line did.
func loadServerConfig(ctx context.Context, path string) (context.Context, *config.ServerConfig, error) {
	cfg, err := config.LoadServer(path)
	if err != nil {
		return ctx, nil, err
	}
	if cfg.LogLevel > 0 && !logr.FromContextOrDiscard(ctx).V(cfg.LogLevel).Enabled() {
		ctx = logr.NewContext(ctx, createLogger(cfg.LogLevel))
	}
	return ctx, cfg, nil
}

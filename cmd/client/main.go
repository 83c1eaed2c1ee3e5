package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dusted-go/logging/prettylog"
	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"natsume/internal/agent"
	"natsume/internal/client"
	"natsume/internal/config"
	"natsume/internal/netinfo"
	"natsume/internal/osexec"
	"natsume/internal/version"
)

func main() {
	logger := createLogger(0)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var logVerbosity int
	var configPath string

	rootCmd := &cobra.Command{
		Use:     "natsume-client",
		Short:   "Kiosk agent for natsume",
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
		NewBindCommand,
		NewSyncCommand,
		NewMonitorCommand,
		NewCheckCommand,
		NewSessionCommand,
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

func loadClientConfig(ctx context.Context, path string) (context.Context, *config.ClientConfig, error) {
	cfg, err := config.LoadClient(path)
	if err != nil {
		return ctx, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.LogLevel > 0 && !logr.FromContextOrDiscard(ctx).V(cfg.LogLevel).Enabled() {
		ctx = logr.NewContext(ctx, createLogger(cfg.LogLevel))
	}
	return ctx, cfg, nil
}

// newAgent wires the real network client, resolver and process runner.
func newAgent(cfg *config.ClientConfig) (*agent.Agent, error) {
	c, err := client.New(cfg)
	if err != nil {
		return nil, err
	}
	runner := osexec.NewRunner(cfg.CommandTimeout)
	return agent.New(cfg, agent.Deps{
		Server:   c,
		Resolver: netinfo.NewMACResolver(runner),
		Topology: netinfo.NewTopologyValidator(c),
		Runner:   runner,
	}), nil
}

// newLocalAgent runs host checks only and never contacts the server.
func newLocalAgent(cfg *config.ClientConfig) (*agent.Agent, error) {
	return agent.New(cfg, agent.Deps{Runner: osexec.NewRunner(cfg.CommandTimeout)}), nil
}

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"natsume/internal/agent"
	"natsume/internal/config"
)

func NewBindCommand(configPath *string) (*cobra.Command, error) {
	var id string
	var skipCheck bool

	cmd := &cobra.Command{
		Use:   "bind",
		Short: "Bind this device to a contestant identity",
		Long: `Bind this device's hardware address to a contestant identity on the server.

By default the command first checks that the server sees this device at one of its
own addresses and aborts when it does not, since NAT makes hardware-address
binding unreliable. Use --skip-check only in known-NAT deployments.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAgent(cmd.Context(), *configPath, newAgent, func(ctx context.Context, a *agent.Agent) error {
				return a.Bind(ctx, id, skipCheck)
			})
		},
	}

	cmd.Flags().StringVarP(&id, "id", "i", "", "contestant identity for this device")
	cmd.Flags().BoolVarP(&skipCheck, "skip-check", "s", false, "proceed even when the server-observed address is not local")
	if err := cmd.MarkFlagRequired("id"); err != nil {
		return nil, fmt.Errorf("failed to mark flag %q as required: %w", "id", err)
	}
	return cmd, nil
}

func NewSyncCommand(configPath *string) (*cobra.Command, error) {
	return &cobra.Command{
		Use:   "sync",
		Short: "Fetch this device's credentials and apply them to the reverse proxy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAgent(cmd.Context(), *configPath, newAgent, func(ctx context.Context, a *agent.Agent) error {
				return a.Sync(ctx)
			}, (*config.ClientConfig).RequireSync)
		},
	}, nil
}

func NewMonitorCommand(configPath *string) (*cobra.Command, error) {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Send a heartbeat to the server on a fixed interval until stopped",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAgent(cmd.Context(), *configPath, newAgent, func(ctx context.Context, a *agent.Agent) error {
				return a.Monitor(ctx)
			})
		},
	}, nil
}

var errChecksFailed = errors.New("prerequisite checks failed")

func NewCheckCommand(configPath *string) (*cobra.Command, error) {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the host prerequisites for sync and session management",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAgent(cmd.Context(), *configPath, newLocalAgent, func(ctx context.Context, a *agent.Agent) error {
				out := cmd.OutOrStdout()
				failed := 0
				for _, result := range a.Check(ctx) {
					if result.Err != nil {
						failed++
						fmt.Fprintf(out, "FAIL  %s: %v\n", result.Name, result.Err)
						continue
					}
					fmt.Fprintf(out, "ok    %s\n", result.Name)
				}
				if failed > 0 {
					return fmt.Errorf("%w: %d of the checks", errChecksFailed, failed)
				}
				return nil
			})
		},
	}, nil
}

func withAgent(ctx context.Context, configPath string, build func(*config.ClientConfig) (*agent.Agent, error), fn func(context.Context, *agent.Agent) error, requirements ...func(*config.ClientConfig) error) error {
	ctx, cfg, err := loadClientConfig(ctx, configPath)
	if err != nil {
		return err
	}
	for _, requirement := range requirements {
		if err := requirement(cfg); err != nil {
			return err
		}
	}
	a, err := build(cfg)
	if err != nil {
		return err
	}
	ctx = logr.NewContext(ctx, logr.FromContextOrDiscard(ctx).WithValues("server", cfg.ServerAddress))
	return fn(ctx, a)
}

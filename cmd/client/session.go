package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"natsume/internal/osexec"
	"natsume/internal/session"
)

func NewSessionCommand(configPath *string) (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Move the kiosk between contestants",
		Long: `Move the kiosk through its lifecycle:

  Locked  --enable-->  ReadyForContestant  --(login)-->  Active
  Locked  <--terminate--  ReadyForContestant / Active

reset recreates the contestant account and only runs while Locked.`,
	}

	var force bool
	reset := &cobra.Command{
		Use:   "reset",
		Short: "Delete and recreate the contestant account, wiping its home directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), *configPath, func(ctx context.Context, m *session.Manager) error {
				return m.Reset(ctx, force)
			})
		},
	}
	reset.Flags().BoolVar(&force, "force", false, "reset even when the kiosk is not locked")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "enable",
			Short: "Configure autologin for the contestant account",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withSession(cmd.Context(), *configPath, func(ctx context.Context, m *session.Manager) error {
					return m.EnableAutologin(ctx)
				})
			},
		},
		&cobra.Command{
			Use:   "terminate",
			Short: "Remove autologin and end the contestant's sessions",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withSession(cmd.Context(), *configPath, func(ctx context.Context, m *session.Manager) error {
					return m.Terminate(ctx)
				})
			},
		},
		reset,
		&cobra.Command{
			Use:   "status",
			Short: "Print the current kiosk state",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withSession(cmd.Context(), *configPath, func(ctx context.Context, m *session.Manager) error {
					state, err := m.State(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), state)
					return nil
				})
			},
		},
	)
	return cmd, nil
}

func withSession(ctx context.Context, configPath string, fn func(context.Context, *session.Manager) error) error {
	ctx, cfg, err := loadClientConfig(ctx, configPath)
	if err != nil {
		return err
	}
	if err := cfg.RequireSession(); err != nil {
		return err
	}
	return fn(ctx, session.NewManager(cfg, osexec.NewRunner(cfg.CommandTimeout)))
}

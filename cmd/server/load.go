package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"natsume/internal/database"
	"natsume/internal/loader"
)

func NewLoadCommand(configPath *string) (*cobra.Command, error) {
	var dataPath string

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load contestant credentials into the database",
		Long: `Load contestant credentials from a CSV file with the header id,username,password.

Existing identities are updated in place. A contestant's synced flag is reset only
when their username or password changed. The whole file is applied atomically.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(cmd.Context(), *configPath, dataPath)
		},
	}

	cmd.Flags().StringVarP(&dataPath, "data-path", "d", "", "CSV file containing id,username,password")
	if err := cmd.MarkFlagRequired("data-path"); err != nil {
		return nil, fmt.Errorf("failed to mark flag %q as required: %w", "data-path", err)
	}
	return cmd, nil
}

func runLoad(ctx context.Context, configPath, dataPath string) error {
	ctx, cfg, err := loadServerConfig(ctx, configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	db, err := database.NewDB(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	_, err = loader.LoadFile(ctx, db, dataPath)
	return err
}

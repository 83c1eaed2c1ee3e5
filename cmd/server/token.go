package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"natsume/internal/crypto"
)

const secretBytes = 32

func NewTokenCommand(_ *string) (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Generate shared secrets and their header digests",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "generate",
		Short: "Generate a random shared secret",
		Long: `Generate a random shared secret for SYNC_TOKEN or ADMIN_TOKEN.

The secret goes into the configuration file; callers present its digest in the
token header.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := crypto.GenerateSecret(secretBytes)
			if err != nil {
				return fmt.Errorf("failed to generate secret: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "secret: %s\n", secret)
			fmt.Fprintf(out, "digest: %s\n", crypto.TokenDigest(secret))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "digest <secret>",
		Short: "Print the token header value for a shared secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), crypto.TokenDigest(args[0]))
			return nil
		},
	})

	return cmd, nil
}

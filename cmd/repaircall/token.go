package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/repaircall/internal/auth"
	transporthttp "github.com/vovakirdan/repaircall/internal/transport/http"
)

func newTokenCmd(flags *rootFlags) *cobra.Command {
	var client string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a control API token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, _, err := flags.load()
			if err != nil {
				return err
			}
			if cfg.ControlSecret == "" {
				return errors.New("control_secret is not set; the control API is open")
			}
			token, err := auth.GenerateToken(transporthttp.ControlJWTConfig(cfg), client)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&client, "client", "cli", "client name embedded in the token")
	return cmd
}

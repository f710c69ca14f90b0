package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/repaircall/internal/api"
)

func newNotificationsCmd(flags *rootFlags) *cobra.Command {
	var (
		pageSize int
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "Print the notification feed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, logger, err := flags.load()
			if err != nil {
				return err
			}
			client := api.New(api.Options{BaseURL: cfg.APIURL, Token: cfg.APIToken, Logger: logger})

			items, err := client.Notifications(pageSize).All(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, n := range items {
				mark := " "
				if !n.Read {
					mark = "*"
				}
				fmt.Fprintf(out, "%s %s  %s\n", mark, n.CreatedAt.Local().Format(time.DateTime), n.Title)
				if n.Body != "" {
					fmt.Fprintf(out, "    %s\n", n.Body)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "entries per request")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum entries to print")
	return cmd
}

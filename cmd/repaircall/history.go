package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/repaircall/internal/elapsed"
	"github.com/vovakirdan/repaircall/internal/store/sqlite"
)

func newHistoryCmd(flags *rootFlags) *cobra.Command {
	var (
		limit  int
		before int64
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List finished calls, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, _, err := flags.load()
			if err != nil {
				return err
			}
			st, err := sqlite.New(cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer st.Close()

			var beforeID *int64
			if before > 0 {
				beforeID = &before
			}
			records, err := st.ListCalls(cmd.Context(), limit, beforeID)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tWHEN\tROLE\tWITH\tTALK\tENDED")
			for _, rec := range records {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
					rec.ID,
					rec.StartedAt.Local().Format(time.DateTime),
					rec.Role,
					rec.RemoteName,
					elapsed.Format(rec.Duration),
					rec.EndReason,
				)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of calls")
	cmd.Flags().Int64Var(&before, "before", 0, "only calls older than this id")
	return cmd
}

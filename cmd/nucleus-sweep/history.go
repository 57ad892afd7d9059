package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"nucleus-sweep/internal/store"
)

func newHistoryCmd(root *rootOptions) *cobra.Command {
	var (
		dbPath string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded sweep runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("db") {
				cfg.Output.DatabasePath = dbPath
			}
			if cfg.Output.DatabasePath == "" {
				return fmt.Errorf("no run history database configured; set output.database_path or --db")
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}

			st, err := store.Open(cfg.Output.DatabasePath, log)
			if err != nil {
				return err
			}
			defer st.Close()

			runs, err := st.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printRuns(cmd.OutOrStdout(), runs)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite run history database")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list, 0 for all")
	return cmd
}

func printRuns(w io.Writer, runs []store.Run) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tDURATION\tIMAGES\tCOMBOS\tPARETO\tIMAGES DIR")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d/%d\t%d\t%s\n",
			r.ID,
			r.StartedAt.Local().Format(time.DateTime),
			r.Duration.Round(time.Millisecond),
			r.ImageCount,
			r.Succeeded, r.Attempted,
			r.ParetoSize,
			r.ImagesDir,
		)
	}
	return tw.Flush()
}

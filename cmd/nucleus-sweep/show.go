package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"nucleus-sweep/internal/models"
	"nucleus-sweep/internal/persist"
)

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <pareto-file>",
		Short: "Print a saved Pareto front",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			combos, err := persist.Load(args[0])
			if err != nil {
				return err
			}
			return printCombos(cmd.OutOrStdout(), combos)
		},
	}
}

func printCombos(w io.Writer, combos []models.ThresholdCombo) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tGLOBAL\tLOCAL\tACCURACY\tDIFFERENCE\tJI")
	for _, c := range combos {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			c.Name, c.Global, c.Local,
			strconv.FormatFloat(c.Accuracy, 'f', 4, 64),
			strconv.FormatFloat(c.Difference, 'f', 2, 64),
			strconv.FormatFloat(c.JI, 'f', 4, 64),
		)
	}
	return tw.Flush()
}

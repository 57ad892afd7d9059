package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"nucleus-sweep/internal/processing/threshold"
)

func newMethodsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "methods",
		Short: "List the supported global and local threshold methods",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "global: %s\n", strings.Join(threshold.GlobalMethods(), ", "))
			fmt.Fprintf(out, "local:  %s\n", strings.Join(threshold.LocalMethods(), ", "))
			return nil
		},
	}
}

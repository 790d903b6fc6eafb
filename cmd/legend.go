package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var legendCmd = &cobra.Command{
	Use:   "legend <table> <column>",
	Short: "Print the legend of the last generated style",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		items, err := e.Gen.Legend(ctx, args[0], args[1])
		if err != nil {
			return eris.Wrap(err, "legend")
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(items)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "COLOR\tLABEL")
		for _, item := range items {
			fmt.Fprintf(w, "%s\t%s\n", item.Color, item.Label)
		}
		return w.Flush()
	},
}

func init() {
	legendCmd.Flags().Bool("json", false, "emit the legend as JSON")
	rootCmd.AddCommand(legendCmd)
}

package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/stylegen/internal/stats"
)

var columnsCmd = &cobra.Command{
	Use:   "columns <table>",
	Short: "List the styleable columns of a layer table",
	Long:  "Lists the columns of a layer table with their data types and whether each supports numeric classification.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		cols, err := e.Gen.Columns(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "columns")
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(cols)
		}

		formatColumns(os.Stdout, cols)
		return nil
	},
}

func formatColumns(w io.Writer, cols []stats.Column) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COLUMN\tTYPE\tNUMERIC")
	for _, c := range cols {
		numeric := "-"
		if c.Numeric {
			numeric = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Name, c.DataType, numeric)
	}
	tw.Flush()
}

func init() {
	columnsCmd.Flags().Bool("json", false, "emit columns as JSON")
	rootCmd.AddCommand(columnsCmd)
}

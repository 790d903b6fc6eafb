package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/stylegen/internal/palette"
)

var palettesCmd = &cobra.Command{
	Use:   "palettes",
	Short: "List the available ColorBrewer palettes",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			out := make(map[string][]string)
			for _, name := range palette.Names() {
				out[name] = palette.Preview(name)
			}
			return printJSON(out)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tCOLORS")
		for _, name := range palette.Names() {
			fmt.Fprintf(w, "%s\t%s\n", name, strings.Join(palette.Preview(name), " "))
		}
		return w.Flush()
	},
}

func init() {
	palettesCmd.Flags().Bool("json", false, "emit palettes as JSON")
	rootCmd.AddCommand(palettesCmd)
}

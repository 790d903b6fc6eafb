package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/stylegen/internal/model"
	"github.com/sells-group/stylegen/internal/store"
)

var stylesCmd = &cobra.Command{
	Use:   "styles",
	Short: "Inspect and manage persisted styles",
	Long:  "Commands for listing, viewing, auditing, and deleting style metadata records.",
}

// -- styles list --

var stylesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted styles",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		table, _ := cmd.Flags().GetString("table")
		workspace, _ := cmd.Flags().GetString("workspace")
		activeOnly, _ := cmd.Flags().GetBool("active")
		limit, _ := cmd.Flags().GetInt("limit")

		styles, err := st.ListStyles(ctx, store.StyleFilter{
			Workspace:  workspace,
			TableName:  table,
			ActiveOnly: activeOnly,
			Limit:      limit,
		})
		if err != nil {
			return eris.Wrap(err, "styles list")
		}

		if len(styles) == 0 {
			fmt.Fprintln(os.Stderr, "No styles found.")
			return nil
		}

		formatStylesList(os.Stdout, styles)
		return nil
	},
}

func formatStylesList(w io.Writer, styles []model.StyleMetadata) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTABLE\tCOLOR BY\tMETHOD\tCLASSES\tPALETTE\tLAST GENERATED")
	for _, sm := range styles {
		last := "-"
		if sm.LastGenerated != nil {
			last = sm.LastGenerated.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			sm.ID, sm.TableName, sm.ColorBy, sm.Method, sm.NumClasses, sm.Palette, last)
	}
	tw.Flush()
}

// -- styles show --

var stylesShowCmd = &cobra.Command{
	Use:   "show <style-id>",
	Short: "Show full details of a style, including its document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		sm, err := st.GetStyleByID(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "styles show")
		}
		return printJSON(sm)
	},
}

// -- styles audit --

var stylesAuditCmd = &cobra.Command{
	Use:   "audit <style-id>",
	Short: "Show the generation history of a style",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		limit, _ := cmd.Flags().GetInt("limit")
		entries, err := st.ListAudit(ctx, args[0], limit)
		if err != nil {
			return eris.Wrap(err, "styles audit")
		}

		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "No audit entries found.")
			return nil
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(entries)
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "VERSION\tACTION\tSTATUS\tACTOR\tWHEN\tERROR")
		for _, e := range entries {
			actor := e.Actor
			if actor == "" {
				actor = "-"
			}
			errMsg := e.ErrorMessage
			if errMsg == "" {
				errMsg = "-"
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
				e.Version, e.Action, e.Status, actor,
				e.CreatedAt.Format("2006-01-02 15:04:05"), errMsg)
		}
		return tw.Flush()
	},
}

// -- styles delete --

var stylesDeleteCmd = &cobra.Command{
	Use:   "delete <style-id>",
	Short: "Delete a style and its audit history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		if err := st.DeleteStyle(ctx, args[0]); err != nil {
			return eris.Wrap(err, "styles delete")
		}
		fmt.Printf("Deleted style %s\n", args[0])
		return nil
	},
}

func init() {
	stylesListCmd.Flags().String("table", "", "filter by table name")
	stylesListCmd.Flags().String("workspace", "", "filter by workspace")
	stylesListCmd.Flags().Bool("active", false, "only active styles")
	stylesListCmd.Flags().Int("limit", 50, "max number of styles to display")

	stylesAuditCmd.Flags().Int("limit", 20, "max number of audit entries to display")
	stylesAuditCmd.Flags().Bool("json", false, "emit audit entries as JSON")

	stylesCmd.AddCommand(stylesListCmd)
	stylesCmd.AddCommand(stylesShowCmd)
	stylesCmd.AddCommand(stylesAuditCmd)
	stylesCmd.AddCommand(stylesDeleteCmd)
	rootCmd.AddCommand(stylesCmd)
}

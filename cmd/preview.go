package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var previewCmd = &cobra.Command{
	Use:   "preview <table> <column>",
	Short: "Classify and build a style document without persisting it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		req, err := requestFromFlags(cmd, args)
		if err != nil {
			return err
		}

		res, err := e.Gen.Preview(ctx, req)
		if err != nil {
			return eris.Wrap(err, "preview")
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(res)
		}

		doc, err := res.Document.Encode()
		if err != nil {
			return eris.Wrap(err, "encode document")
		}
		fmt.Println(string(doc))
		return nil
	},
}

func init() {
	classificationFlags(previewCmd)
	rootCmd.AddCommand(previewCmd)
}

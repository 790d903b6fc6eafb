package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/stylegen/internal/model"
	"github.com/sells-group/stylegen/internal/styler"
)

var generateCmd = &cobra.Command{
	Use:   "generate <table> <column>",
	Short: "Generate a style for a table column and persist it",
	Long:  "Classifies the column, builds a Mapbox style document, records the result and an audit entry, and optionally publishes to GeoServer.",
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
		req.Publish, _ = cmd.Flags().GetBool("publish")
		req.Attach, _ = cmd.Flags().GetBool("attach")

		res, err := e.Gen.Generate(ctx, req)
		if err != nil {
			return eris.Wrap(err, "generate")
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(res)
		}

		fmt.Printf("Generated %s (version %d)\n", res.StyleName, res.Version)
		fmt.Printf("  method:  %s\n", res.Classification.Method)
		fmt.Printf("  classes: %d\n", res.Classification.NumClasses)
		if res.Published {
			fmt.Printf("  published: %s\n", res.StyleURL)
		}
		if res.Attached {
			fmt.Printf("  attached to layer %s\n", req.TableName)
		}
		for _, d := range res.Degraded {
			fmt.Fprintf(os.Stderr, "  warning: %s\n", d)
		}
		return nil
	},
}

// requestFromFlags builds a styler request from the classification flags
// shared by generate and preview.
func requestFromFlags(cmd *cobra.Command, args []string) (styler.Request, error) {
	method, _ := cmd.Flags().GetString("method")
	classes, _ := cmd.Flags().GetInt("classes")
	paletteName, _ := cmd.Flags().GetString("palette")
	colors, _ := cmd.Flags().GetStringSlice("colors")
	breaksArg, _ := cmd.Flags().GetString("breaks")
	geometry, _ := cmd.Flags().GetString("geometry")
	opacity, _ := cmd.Flags().GetFloat64("opacity")
	strokeColor, _ := cmd.Flags().GetString("stroke-color")
	strokeWidth, _ := cmd.Flags().GetFloat64("stroke-width")
	noCache, _ := cmd.Flags().GetBool("no-cache")
	actor, _ := cmd.Flags().GetString("actor")

	req := styler.Request{
		TableName:    args[0],
		ColorBy:      args[1],
		Method:       model.Method(method),
		NumClasses:   classes,
		Palette:      paletteName,
		CustomColors: colors,
		Geometry:     model.GeometryKind(geometry),
		StrokeColor:  strokeColor,
		StrokeWidth:  strokeWidth,
		NoCache:      noCache,
		Actor:        actor,
	}
	if cmd.Flags().Changed("opacity") {
		req.FillOpacity = &opacity
	}
	if breaksArg != "" {
		breaks, err := parseBreaks(breaksArg)
		if err != nil {
			return req, err
		}
		req.ManualBreaks = breaks
	}
	return req, nil
}

func parseBreaks(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	breaks := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "parse break %q", p)
		}
		breaks = append(breaks, v)
	}
	return breaks, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// classificationFlags registers the flags shared by generate and preview.
func classificationFlags(cmd *cobra.Command) {
	cmd.Flags().String("method", "quantile", "classification method (equal_interval, quantile, jenks, categorical, manual)")
	cmd.Flags().Int("classes", 0, "number of classes (default from config)")
	cmd.Flags().String("palette", "", "ColorBrewer palette name (default from config)")
	cmd.Flags().StringSlice("colors", nil, "explicit colors overriding the palette")
	cmd.Flags().String("breaks", "", "comma-separated manual breaks (manual method)")
	cmd.Flags().String("geometry", "", "geometry kind override (point, line, polygon, raster)")
	cmd.Flags().Float64("opacity", 0, "fill opacity")
	cmd.Flags().String("stroke-color", "", "stroke color")
	cmd.Flags().Float64("stroke-width", 0, "stroke width")
	cmd.Flags().Bool("no-cache", false, "bypass the column statistics cache")
	cmd.Flags().String("actor", "", "actor recorded in the audit log")
	cmd.Flags().Bool("json", false, "emit the full result as JSON")
}

func init() {
	classificationFlags(generateCmd)
	generateCmd.Flags().Bool("publish", false, "publish the style to GeoServer")
	generateCmd.Flags().Bool("attach", false, "set the published style as the layer default")
	rootCmd.AddCommand(generateCmd)
}

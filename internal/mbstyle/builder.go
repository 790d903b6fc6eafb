package mbstyle

import (
	"github.com/sells-group/stylegen/internal/model"
)

// Default colors used when an expression cannot be built from the
// classification (no colors at all) and for values outside the category
// list of a match expression.
const (
	FallbackColor     = "#cccccc"
	MatchDefaultColor = "#999999"
)

// BuildOptions carries everything besides the classification needed to
// assemble a style document.
type BuildOptions struct {
	StyleName    string
	ColorBy      string
	Geometry     model.GeometryKind
	FillOpacity  float64
	StrokeColor  string
	StrokeWidth  float64
	SourceLayer  string
	CircleRadius float64
}

// DefaultCircleRadius is used for point layers when no radius is set.
const DefaultCircleRadius = 6

// Build assembles a style document from a classification result.
// Polygons get a fill layer plus a constant outline; lines a single line
// layer; points a circle layer. Raster has no dedicated path and renders
// through the polygon branch.
func Build(opts BuildOptions, c *model.ClassificationResult) *Document {
	var layers []Layer
	switch opts.Geometry {
	case model.GeometryLine:
		layers = lineLayers(opts, c)
	case model.GeometryPoint:
		layers = pointLayers(opts, c)
	default:
		layers = polygonLayers(opts, c)
	}
	return &Document{
		Version: StyleVersion,
		Name:    opts.StyleName,
		Layers:  layers,
	}
}

func polygonLayers(opts BuildOptions, c *model.ClassificationResult) []Layer {
	return []Layer{
		{
			ID:          opts.StyleName + "-fill",
			Type:        "fill",
			SourceLayer: opts.SourceLayer,
			Paint: map[string]any{
				"fill-color":   ColorExpression(opts.ColorBy, c),
				"fill-opacity": opts.FillOpacity,
			},
		},
		{
			ID:          opts.StyleName + "-outline",
			Type:        "line",
			SourceLayer: opts.SourceLayer,
			Paint: map[string]any{
				"line-color": opts.StrokeColor,
				"line-width": opts.StrokeWidth,
			},
		},
	}
}

func lineLayers(opts BuildOptions, c *model.ClassificationResult) []Layer {
	return []Layer{
		{
			ID:          opts.StyleName + "-line",
			Type:        "line",
			SourceLayer: opts.SourceLayer,
			Paint: map[string]any{
				"line-color": ColorExpression(opts.ColorBy, c),
				"line-width": opts.StrokeWidth,
			},
		},
	}
}

func pointLayers(opts BuildOptions, c *model.ClassificationResult) []Layer {
	radius := opts.CircleRadius
	if radius <= 0 {
		radius = DefaultCircleRadius
	}
	return []Layer{
		{
			ID:          opts.StyleName + "-circle",
			Type:        "circle",
			SourceLayer: opts.SourceLayer,
			Paint: map[string]any{
				"circle-color":        ColorExpression(opts.ColorBy, c),
				"circle-opacity":      opts.FillOpacity,
				"circle-radius":       radius,
				"circle-stroke-color": opts.StrokeColor,
				"circle-stroke-width": opts.StrokeWidth,
			},
		},
	}
}

// ColorExpression builds the data-driven paint value for a
// classification: a match expression for categorical data, a step
// expression for numeric data, collapsing to a bare color for
// single-class results.
func ColorExpression(colorBy string, c *model.ClassificationResult) any {
	if c.Method == model.MethodCategorical {
		return matchExpression(colorBy, c)
	}
	return stepExpression(colorBy, c)
}

// stepExpression emits ["step", ["get", col], color0, break1, color1, ...].
// The first color covers everything below the first break; each pair
// raises the threshold. Without breaks the expression collapses to the
// bare color.
func stepExpression(colorBy string, c *model.ClassificationResult) any {
	if len(c.Colors) == 0 {
		return FallbackColor
	}
	if len(c.Breaks) == 0 {
		return c.Colors[0]
	}

	expr := make([]any, 0, 3+2*len(c.Breaks))
	expr = append(expr, "step", []any{"get", colorBy}, c.Colors[0])
	for i, b := range c.Breaks {
		expr = append(expr, b)
		if i+1 < len(c.Colors) {
			expr = append(expr, c.Colors[i+1])
		} else {
			// Colors exhausted; reuse the last one. Classification keeps
			// len(colors) == classes, so this only fires on bad inputs.
			expr = append(expr, c.Colors[len(c.Colors)-1])
		}
	}
	return expr
}

// matchExpression emits ["match", ["get", col], v1, color1, ..., default].
// The trailing default color covers values present in the data but
// missing from the category list.
func matchExpression(colorBy string, c *model.ClassificationResult) any {
	if len(c.Categories) == 0 || len(c.Colors) == 0 {
		return FallbackColor
	}

	expr := make([]any, 0, 3+2*len(c.Categories))
	expr = append(expr, "match", []any{"get", colorBy})
	for i, category := range c.Categories {
		expr = append(expr, category)
		if i < len(c.Colors) {
			expr = append(expr, c.Colors[i])
		} else {
			expr = append(expr, c.Colors[len(c.Colors)-1])
		}
	}
	return append(expr, MatchDefaultColor)
}

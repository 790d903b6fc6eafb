package mbstyle

import (
	"encoding/json"
	"strconv"

	"github.com/rotisserie/eris"
)

// LegendItem is one display row: a label, its color, and the numeric
// range it covers (nil bounds for categorical entries and open ends).
type LegendItem struct {
	Label    string   `json:"label"`
	Color    string   `json:"color"`
	MinValue *float64 `json:"min_value,omitempty"`
	MaxValue *float64 `json:"max_value,omitempty"`
}

// Legend inverts a style document's first data-driven color back into an
// ordered (value-or-range, color) list. It looks for the fill, line, or
// circle color of the document's layers in order.
func Legend(doc *Document) ([]LegendItem, error) {
	for _, layer := range doc.Layers {
		for _, key := range []string{"fill-color", "line-color", "circle-color"} {
			paint, ok := layer.Paint[key]
			if !ok {
				continue
			}
			items, err := DecodePaint(paint)
			if err != nil {
				return nil, err
			}
			return items, nil
		}
	}
	return nil, eris.New("mbstyle: document has no color paint to build a legend from")
}

// DecodePaint translates a single paint value: a bare color string, a
// step expression, or a match expression.
func DecodePaint(paint any) ([]LegendItem, error) {
	switch v := paint.(type) {
	case string:
		return []LegendItem{{Label: "all values", Color: v}}, nil
	case []any:
		if len(v) == 0 {
			return nil, eris.New("mbstyle: empty paint expression")
		}
		op, _ := v[0].(string)
		switch op {
		case "step":
			return decodeStep(v)
		case "match":
			return decodeMatch(v)
		}
		return nil, eris.Errorf("mbstyle: unsupported paint expression %q", op)
	}
	return nil, eris.Errorf("mbstyle: unsupported paint value of type %T", paint)
}

// decodeStep walks ["step", lookup, color0, break1, color1, ...] into
// range items: color0 covers everything below break1, the last color
// everything at or above the final break.
func decodeStep(expr []any) ([]LegendItem, error) {
	if len(expr) < 3 {
		return nil, eris.New("mbstyle: malformed step expression")
	}

	first, ok := expr[2].(string)
	if !ok {
		return nil, eris.New("mbstyle: step expression missing base color")
	}

	var breaks []float64
	var colors []string
	for i := 3; i+1 < len(expr); i += 2 {
		b, err := asFloat(expr[i])
		if err != nil {
			return nil, eris.Wrap(err, "mbstyle: step break")
		}
		color, ok := expr[i+1].(string)
		if !ok {
			return nil, eris.Errorf("mbstyle: step color at position %d is not a string", i+1)
		}
		breaks = append(breaks, b)
		colors = append(colors, color)
	}
	if len(breaks) == 0 {
		return []LegendItem{{Label: "all values", Color: first}}, nil
	}

	items := make([]LegendItem, 0, len(breaks)+1)
	items = append(items, LegendItem{
		Label:    "< " + formatBreak(breaks[0]),
		Color:    first,
		MaxValue: &breaks[0],
	})
	for i := range breaks {
		item := LegendItem{Color: colors[i], MinValue: &breaks[i]}
		if i+1 < len(breaks) {
			item.Label = formatBreak(breaks[i]) + " - " + formatBreak(breaks[i+1])
			item.MaxValue = &breaks[i+1]
		} else {
			item.Label = ">= " + formatBreak(breaks[i])
			item.MaxValue = nil
		}
		items = append(items, item)
	}
	return items, nil
}

// decodeMatch walks ["match", lookup, v1, color1, ..., default] into one
// item per category plus a trailing "other" entry for the default color.
func decodeMatch(expr []any) ([]LegendItem, error) {
	if len(expr) < 3 {
		return nil, eris.New("mbstyle: malformed match expression")
	}

	body := expr[2:]
	if len(body)%2 == 0 {
		return nil, eris.New("mbstyle: match expression missing default color")
	}

	var items []LegendItem
	for i := 0; i+1 < len(body); i += 2 {
		color, ok := body[i+1].(string)
		if !ok {
			return nil, eris.Errorf("mbstyle: match color for %v is not a string", body[i])
		}
		items = append(items, LegendItem{Label: asLabel(body[i]), Color: color})
	}

	defaultColor, ok := body[len(body)-1].(string)
	if !ok {
		return nil, eris.New("mbstyle: match default color is not a string")
	}
	return append(items, LegendItem{Label: "other", Color: defaultColor}), nil
}

func asFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	}
	return 0, eris.Errorf("not a number: %v (%T)", v, v)
}

func asLabel(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return formatBreak(s)
	}
	return ""
}

func formatBreak(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

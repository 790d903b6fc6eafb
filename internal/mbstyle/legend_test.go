package mbstyle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLegend_StepRoundTrip(t *testing.T) {
	// Build a document and read the legend back through JSON, the way a
	// stored style is reloaded.
	doc := Build(polygonOpts(), numericResult())
	raw, err := doc.Encode()
	require.NoError(t, err)
	decoded, err := Decode(raw)
	require.NoError(t, err)

	items, err := Legend(decoded)
	require.NoError(t, err)
	require.Len(t, items, 4)

	assert.Equal(t, "< 25", items[0].Label)
	assert.Equal(t, "#ffffcc", items[0].Color)
	assert.Nil(t, items[0].MinValue)
	assert.Equal(t, 25.0, *items[0].MaxValue)

	assert.Equal(t, "25 - 50", items[1].Label)
	assert.Equal(t, 25.0, *items[1].MinValue)
	assert.Equal(t, 50.0, *items[1].MaxValue)

	assert.Equal(t, ">= 75", items[3].Label)
	assert.Equal(t, "#e31a1c", items[3].Color)
	assert.Equal(t, 75.0, *items[3].MinValue)
	assert.Nil(t, items[3].MaxValue)
}

func TestLegend_Match(t *testing.T) {
	opts := polygonOpts()
	doc := Build(opts, categoricalResult())

	items, err := Legend(doc)
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, "commercial", items[0].Label)
	assert.Equal(t, "#66c2a5", items[0].Color)
	assert.Equal(t, "residential", items[1].Label)
	assert.Equal(t, "other", items[2].Label)
	assert.Equal(t, MatchDefaultColor, items[2].Color)
}

func TestLegend_BareColor(t *testing.T) {
	doc := &Document{
		Version: StyleVersion,
		Layers: []Layer{{
			Type:  "fill",
			Paint: map[string]any{"fill-color": "#aabbcc"},
		}},
	}

	items, err := Legend(doc)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "all values", items[0].Label)
	assert.Equal(t, "#aabbcc", items[0].Color)
}

func TestLegend_UsesFirstColorBearingLayer(t *testing.T) {
	doc := &Document{
		Version: StyleVersion,
		Layers: []Layer{
			{Type: "symbol", Paint: map[string]any{"text-halo-width": 1.0}},
			{Type: "circle", Paint: map[string]any{"circle-color": "#123456"}},
		},
	}

	items, err := Legend(doc)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "#123456", items[0].Color)
}

func TestLegend_NoPaint(t *testing.T) {
	doc := &Document{Version: StyleVersion}
	_, err := Legend(doc)
	assert.Error(t, err)
}

func TestDecodePaint_MalformedExpressions(t *testing.T) {
	_, err := DecodePaint([]any{})
	assert.Error(t, err)

	_, err = DecodePaint([]any{"interpolate", []any{"get", "v"}})
	assert.Error(t, err)

	_, err = DecodePaint(42)
	assert.Error(t, err)

	// Match body without a trailing default color.
	_, err = DecodePaint([]any{"match", []any{"get", "v"}, "a", "#fff"})
	assert.Error(t, err)
}

func TestDecodePaint_StepWithIntBreaks(t *testing.T) {
	// Break values hand-written as ints still decode.
	items, err := DecodePaint([]any{
		"step", []any{"get", "v"}, "#111", 10, "#222",
	})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "< 10", items[0].Label)
	assert.Equal(t, ">= 10", items[1].Label)
}

func TestBuildThenLegendAgree(t *testing.T) {
	// The legend of a freshly built document mirrors its classification.
	c := numericResult()
	doc := Build(polygonOpts(), c)

	items, err := Legend(doc)
	require.NoError(t, err)
	require.Len(t, items, c.NumClasses)
	for i, item := range items {
		assert.Equal(t, c.Colors[i], item.Color, "class %d", i)
	}
}

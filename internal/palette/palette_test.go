package palette

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColors_SequentialSamplesFullRange(t *testing.T) {
	colors, err := Colors("YlOrRd", 5)
	require.NoError(t, err)
	require.Len(t, colors, 5)

	// Endpoints anchor the ramp.
	assert.Equal(t, "#ffffcc", colors[0])
	assert.Equal(t, "#800026", colors[4])
}

func TestColors_FullRampReturnedVerbatim(t *testing.T) {
	colors, err := Colors("Blues", 9)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"#f7fbff", "#deebf7", "#c6dbef", "#9ecae1", "#6baed6",
		"#4292c6", "#2171b5", "#08519c", "#08306b",
	}, colors)
}

func TestColors_SingleClassUsesMidRamp(t *testing.T) {
	colors, err := Colors("Reds", 1)
	require.NoError(t, err)
	require.Len(t, colors, 1)
	assert.Equal(t, "#fb6a4a", colors[0])
}

func TestColors_CountBeyondRampCycles(t *testing.T) {
	colors, err := Colors("Set2", 10)
	require.NoError(t, err)
	require.Len(t, colors, 10)
	assert.Equal(t, colors[0], colors[8])
	assert.Equal(t, colors[1], colors[9])
}

func TestColors_QualitativeTakesFirstN(t *testing.T) {
	colors, err := Colors("Set1", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"#e41a1c", "#377eb8", "#4daf4a"}, colors)
}

func TestColors_UnknownNameFallsBackToDefault(t *testing.T) {
	got, err := Colors("NotAPalette", 5)
	require.NoError(t, err)
	want, err := Colors(DefaultName, 5)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestColors_InvalidCount(t *testing.T) {
	_, err := Colors("YlOrRd", 0)
	assert.Error(t, err)
	_, err = Colors("YlOrRd", -1)
	assert.Error(t, err)
}

func TestNames_SortedAndComplete(t *testing.T) {
	names := Names()
	require.NotEmpty(t, names)
	assert.IsIncreasing(t, names)
	assert.Contains(t, names, "YlOrRd")
	assert.Contains(t, names, "Spectral")
	assert.Contains(t, names, "Set3")
}

func TestPreview(t *testing.T) {
	assert.Len(t, Preview("RdBu"), 5)
	// Unknown names preview the default rather than nothing.
	assert.Len(t, Preview("bogus"), 5)
}

func TestKnown(t *testing.T) {
	assert.True(t, Known("Greens"))
	assert.False(t, Known("greens"))
}

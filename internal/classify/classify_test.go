package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/stylegen/internal/model"
)

func fptr(v float64) *float64 { return &v }

func TestClassify_EqualInterval(t *testing.T) {
	res, err := Classify(Request{
		Method:     model.MethodEqualInterval,
		NumClasses: 5,
		MinValue:   fptr(0),
		MaxValue:   fptr(100),
		Palette:    "YlOrRd",
	})
	require.NoError(t, err)

	assert.Equal(t, model.MethodEqualInterval, res.Method)
	assert.Equal(t, []float64{20, 40, 60, 80}, res.Breaks)
	assert.Len(t, res.Colors, 5)
	assert.Equal(t, 5, res.NumClasses)
	assert.Equal(t, 0.0, *res.MinValue)
	assert.Equal(t, 100.0, *res.MaxValue)
}

func TestClassify_EqualIntervalDegenerateDomain(t *testing.T) {
	res, err := Classify(Request{
		Method:     model.MethodEqualInterval,
		NumClasses: 5,
		MinValue:   fptr(42),
		MaxValue:   fptr(42),
		Palette:    "YlOrRd",
	})
	require.NoError(t, err)

	assert.Empty(t, res.Breaks)
	assert.Equal(t, 1, res.NumClasses)
	assert.Len(t, res.Colors, 1)
}

func TestClassify_QuantileFromValues(t *testing.T) {
	res, err := Classify(Request{
		Method:     model.MethodQuantile,
		NumClasses: 5,
		Values:     []float64{10, 3, 7, 1, 9, 5, 2, 8, 4, 6},
		Palette:    "YlOrRd",
	})
	require.NoError(t, err)

	assert.Equal(t, model.MethodQuantile, res.Method)
	assert.Equal(t, []float64{3, 5, 7, 9}, res.Breaks)
	assert.Equal(t, 5, res.NumClasses)
	assert.Equal(t, 1.0, *res.MinValue)
	assert.Equal(t, 10.0, *res.MaxValue)
}

func TestClassify_QuantileCollapsesDuplicateBoundaries(t *testing.T) {
	res, err := Classify(Request{
		Method:     model.MethodQuantile,
		NumClasses: 4,
		Values:     []float64{5, 5, 5, 5, 5, 5, 7, 7},
		Palette:    "YlOrRd",
	})
	require.NoError(t, err)

	assert.Equal(t, []float64{5, 7}, res.Breaks)
	assert.Equal(t, 3, res.NumClasses)
	assert.Len(t, res.Colors, 3)
}

func TestClassify_QuantileSingleValue(t *testing.T) {
	res, err := Classify(Request{
		Method:     model.MethodQuantile,
		NumClasses: 5,
		Values:     []float64{3, 3, 3},
		Palette:    "YlOrRd",
	})
	require.NoError(t, err)

	assert.Empty(t, res.Breaks)
	assert.Equal(t, 1, res.NumClasses)
}

func TestClassify_QuantileWithPrecomputedBreaks(t *testing.T) {
	res, err := Classify(Request{
		Method:            model.MethodQuantile,
		NumClasses:        4,
		PrecomputedBreaks: []float64{100, 250, 600},
		MinValue:          fptr(10),
		MaxValue:          fptr(900),
		Palette:           "Blues",
	})
	require.NoError(t, err)

	assert.Equal(t, []float64{100, 250, 600}, res.Breaks)
	assert.Equal(t, 4, res.NumClasses)
	assert.Len(t, res.Colors, 4)
	assert.Equal(t, 10.0, *res.MinValue)
}

func TestClassify_QuantileWithFewerPrecomputedBreaks(t *testing.T) {
	// Database-side dedupe may return fewer breaks than requested.
	res, err := Classify(Request{
		Method:            model.MethodQuantile,
		NumClasses:        5,
		PrecomputedBreaks: []float64{50, 80},
		Palette:           "YlOrRd",
	})
	require.NoError(t, err)

	assert.Equal(t, 3, res.NumClasses)
	assert.Len(t, res.Colors, 3)
}

func TestClassify_QuantileWithMorePrecomputedBreaksCyclesColors(t *testing.T) {
	// More breaks than requested classes keeps every break and repeats
	// the color ramp.
	res, err := Classify(Request{
		Method:            model.MethodQuantile,
		NumClasses:        3,
		PrecomputedBreaks: []float64{10, 20, 30, 40, 50},
		CustomColors:      []string{"#aaa", "#bbb", "#ccc"},
		Palette:           "YlOrRd",
	})
	require.NoError(t, err)

	assert.Equal(t, []float64{10, 20, 30, 40, 50}, res.Breaks)
	assert.Equal(t, 6, res.NumClasses)
	require.Len(t, res.Colors, 6)
	assert.Equal(t, res.Colors[0], res.Colors[3])
	assert.Equal(t, res.Colors[2], res.Colors[5])
}

func TestClassify_QuantileWithoutStatsFallsBackToEqualInterval(t *testing.T) {
	res, err := Classify(Request{
		Method:     model.MethodQuantile,
		NumClasses: 4,
		MinValue:   fptr(0),
		MaxValue:   fptr(40),
		Palette:    "YlOrRd",
	})
	require.NoError(t, err)

	assert.Equal(t, model.MethodEqualInterval, res.Method)
	assert.Equal(t, []float64{10, 20, 30}, res.Breaks)
}

func TestClassify_Jenks(t *testing.T) {
	res, err := Classify(Request{
		Method:     model.MethodJenks,
		NumClasses: 2,
		Values:     []float64{1, 1, 2, 2, 50, 51, 52},
		Palette:    "YlOrRd",
	})
	require.NoError(t, err)

	assert.Equal(t, model.MethodJenks, res.Method)
	assert.Equal(t, []float64{50}, res.Breaks)
	assert.Equal(t, 2, res.NumClasses)
	assert.Empty(t, res.Fallback)
}

func TestClassify_JenksTooFewDistinctValues(t *testing.T) {
	res, err := Classify(Request{
		Method:     model.MethodJenks,
		NumClasses: 5,
		Values:     []float64{1, 1, 2, 2, 3},
		Palette:    "YlOrRd",
	})
	require.NoError(t, err)

	assert.Empty(t, res.Breaks)
	assert.Equal(t, 1, res.NumClasses)
}

func TestClassify_Categorical(t *testing.T) {
	res, err := Classify(Request{
		Method:     model.MethodCategorical,
		Categories: []string{"commercial", "industrial", "residential"},
		Palette:    "Set2",
	})
	require.NoError(t, err)

	assert.Equal(t, model.MethodCategorical, res.Method)
	assert.Equal(t, []string{"commercial", "industrial", "residential"}, res.Categories)
	assert.Len(t, res.Colors, 3)
	assert.Equal(t, 3, res.NumClasses)
}

func TestClassify_CategoricalCustomColors(t *testing.T) {
	res, err := Classify(Request{
		Method:       model.MethodCategorical,
		Categories:   []string{"a", "b", "c"},
		CustomColors: []string{"#ff0000", "#00ff00", "#0000ff"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"#ff0000", "#00ff00", "#0000ff"}, res.Colors)
}

func TestClassify_Manual(t *testing.T) {
	res, err := Classify(Request{
		Method:       model.MethodManual,
		ManualBreaks: []float64{200, 50, 100},
		Palette:      "YlOrRd",
	})
	require.NoError(t, err)

	assert.Equal(t, model.MethodManual, res.Method)
	assert.Equal(t, []float64{50, 100, 200}, res.Breaks)
	assert.Equal(t, 4, res.NumClasses)
	assert.Len(t, res.Colors, 4)
}

func TestClassify_CustomColorsTrimmedToClassCount(t *testing.T) {
	res, err := Classify(Request{
		Method:       model.MethodEqualInterval,
		NumClasses:   3,
		MinValue:     fptr(0),
		MaxValue:     fptr(30),
		CustomColors: []string{"#111111", "#222222", "#333333", "#444444"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"#111111", "#222222", "#333333"}, res.Colors)
}

func TestClassify_InvalidInputs(t *testing.T) {
	_, err := Classify(Request{Method: "voronoi"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = Classify(Request{Method: model.MethodQuantile, NumClasses: 0})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = Classify(Request{Method: model.MethodJenks, NumClasses: -1})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

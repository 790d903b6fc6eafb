// Package classify computes class breaks and colors for map styling.
// It implements equal interval, quantile, Jenks natural breaks,
// categorical, and manual classification as pure functions over values
// supplied by the caller.
package classify

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/stylegen/internal/model"
	"github.com/sells-group/stylegen/internal/palette"
)

// ErrInvalidInput marks caller contract violations (bad method, non-positive
// class count). Check with errors.Is.
var ErrInvalidInput = eris.New("classify: invalid input")

// Request carries the inputs for one classification. Exactly one of
// Values, Categories, or PrecomputedBreaks is relevant per method; the
// caller supplies whichever its data source can produce.
type Request struct {
	Method     model.Method
	NumClasses int

	// Numeric inputs.
	Values            []float64 // raw sample (jenks, quantile without breaks)
	MinValue          *float64  // domain bounds (equal interval)
	MaxValue          *float64
	PrecomputedBreaks []float64 // e.g. database-computed percentiles (quantile)
	ManualBreaks      []float64 // manual method only

	// Categorical input.
	Categories []string

	// Color selection.
	Palette      string
	CustomColors []string // used when it has at least NumClasses entries
}

// Classify computes class breaks or categories plus one color per class.
// The realized class count may be lower than requested (deduplicated
// quantile breaks, degenerate single-value domains).
func Classify(req Request) (*model.ClassificationResult, error) {
	if !req.Method.Valid() {
		return nil, eris.Wrapf(ErrInvalidInput, "unknown method %q", req.Method)
	}

	switch req.Method {
	case model.MethodCategorical:
		colors, err := resolveColors(req, max(len(req.Categories), 1))
		if err != nil {
			return nil, err
		}
		return classifyCategorical(req.Categories, colors), nil

	case model.MethodManual:
		return classifyManual(req)

	case model.MethodEqualInterval:
		if err := checkClassCount(req.NumClasses); err != nil {
			return nil, err
		}
		colors, err := resolveColors(req, req.NumClasses)
		if err != nil {
			return nil, err
		}
		return classifyEqualInterval(req.NumClasses, bound(req.MinValue, 0), bound(req.MaxValue, 100), colors), nil

	case model.MethodQuantile:
		if err := checkClassCount(req.NumClasses); err != nil {
			return nil, err
		}
		colors, err := resolveColors(req, req.NumClasses)
		if err != nil {
			return nil, err
		}
		switch {
		case len(req.PrecomputedBreaks) > 0:
			return fromBreaks(model.MethodQuantile, req.PrecomputedBreaks, colors, req.MinValue, req.MaxValue), nil
		case len(req.Values) > 0:
			return classifyQuantile(req.NumClasses, req.Values, colors), nil
		default:
			// No statistics available at all; equal interval over the
			// assumed domain is the best remaining option.
			return classifyEqualInterval(req.NumClasses, bound(req.MinValue, 0), bound(req.MaxValue, 100), colors), nil
		}

	case model.MethodJenks:
		if err := checkClassCount(req.NumClasses); err != nil {
			return nil, err
		}
		colors, err := resolveColors(req, req.NumClasses)
		if err != nil {
			return nil, err
		}
		if len(req.Values) == 0 {
			return classifyEqualInterval(req.NumClasses, bound(req.MinValue, 0), bound(req.MaxValue, 100), colors), nil
		}
		return classifyJenks(req.NumClasses, req.Values, colors), nil
	}

	return nil, eris.Wrapf(ErrInvalidInput, "unhandled method %q", req.Method)
}

// fromBreaks wraps externally computed breaks, such as database
// percentiles, cycling the color list when the caller supplied more
// breaks than colors cover.
func fromBreaks(method model.Method, breaks []float64, colors []string, minVal, maxVal *float64) *model.ClassificationResult {
	realized := len(breaks) + 1
	if realized > len(colors) && len(colors) > 0 {
		cycled := make([]string, realized)
		for i := range cycled {
			cycled[i] = colors[i%len(colors)]
		}
		colors = cycled
	}
	return &model.ClassificationResult{
		Method:     method,
		Breaks:     breaks,
		Colors:     colors[:realized],
		MinValue:   minVal,
		MaxValue:   maxVal,
		NumClasses: realized,
	}
}

func checkClassCount(n int) error {
	if n <= 0 {
		return eris.Wrapf(ErrInvalidInput, "num_classes must be positive, got %d", n)
	}
	return nil
}

// resolveColors picks custom colors when enough are supplied, otherwise
// the named palette.
func resolveColors(req Request, n int) ([]string, error) {
	if len(req.CustomColors) >= n {
		return req.CustomColors[:n], nil
	}
	return palette.Colors(req.Palette, n)
}

func bound(v *float64, fallback float64) float64 {
	if v != nil {
		return *v
	}
	return fallback
}

// classifyCategorical assigns one class per distinct category in the
// order given, cycling colors when classes outnumber them.
func classifyCategorical(categories []string, colors []string) *model.ClassificationResult {
	out := make([]string, len(categories))
	for i := range categories {
		out[i] = colors[i%len(colors)]
	}
	return &model.ClassificationResult{
		Method:     model.MethodCategorical,
		Categories: categories,
		Colors:     out,
		NumClasses: len(categories),
	}
}

// classifyManual passes caller-supplied breaks through sorted. Duplicate
// breaks are preserved; callers supplying them get zero-width classes.
func classifyManual(req Request) (*model.ClassificationResult, error) {
	breaks := append([]float64(nil), req.ManualBreaks...)
	sort.Float64s(breaks)
	n := len(breaks) + 1

	colors, err := resolveColors(req, n)
	if err != nil {
		return nil, err
	}
	return &model.ClassificationResult{
		Method:     model.MethodManual,
		Breaks:     breaks,
		Colors:     colors[:n],
		MinValue:   req.MinValue,
		MaxValue:   req.MaxValue,
		NumClasses: n,
	}, nil
}

// classifyEqualInterval divides [min, max] into equal-width bins.
func classifyEqualInterval(n int, minVal, maxVal float64, colors []string) *model.ClassificationResult {
	if minVal == maxVal {
		return singleClass(model.MethodEqualInterval, minVal, maxVal, colors)
	}

	interval := (maxVal - minVal) / float64(n)
	breaks := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		breaks = append(breaks, minVal+interval*float64(i))
	}
	return &model.ClassificationResult{
		Method:     model.MethodEqualInterval,
		Breaks:     breaks,
		Colors:     colors[:n],
		MinValue:   &minVal,
		MaxValue:   &maxVal,
		NumClasses: n,
	}
}

// classifyQuantile places roughly equal feature counts in each class.
// Duplicate boundary values collapse, reducing the realized class count.
func classifyQuantile(n int, values []float64, colors []string) *model.ClassificationResult {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	if len(sorted) == 0 {
		return &model.ClassificationResult{
			Method:     model.MethodQuantile,
			Colors:     colors[:1],
			NumClasses: 1,
		}
	}

	minVal, maxVal := sorted[0], sorted[len(sorted)-1]
	if minVal == maxVal {
		return singleClass(model.MethodQuantile, minVal, maxVal, colors)
	}

	count := len(sorted)
	var breaks []float64
	for i := 1; i < n; i++ {
		idx := int(math.Round(float64(i) * float64(count) / float64(n)))
		if idx >= count {
			continue
		}
		v := sorted[idx]
		if len(breaks) > 0 && v == breaks[len(breaks)-1] {
			continue // collapse duplicate boundaries
		}
		breaks = append(breaks, v)
	}

	realized := len(breaks) + 1
	return &model.ClassificationResult{
		Method:     model.MethodQuantile,
		Breaks:     breaks,
		Colors:     colors[:realized],
		MinValue:   &minVal,
		MaxValue:   &maxVal,
		NumClasses: realized,
	}
}

// classifyJenks partitions a sample into n contiguous groups minimizing
// within-group variance. Degenerate samples collapse to one class; a DP
// failure falls back to quantile with the same inputs, recorded on the
// result rather than surfaced as an error.
func classifyJenks(n int, values []float64, colors []string) *model.ClassificationResult {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	if len(sorted) == 0 {
		return &model.ClassificationResult{
			Method:     model.MethodJenks,
			Colors:     colors[:1],
			NumClasses: 1,
		}
	}

	// Fewer distinct points than classes cannot support a k-way partition.
	minVal, maxVal := sorted[0], sorted[len(sorted)-1]
	if minVal == maxVal || distinctCount(sorted) <= n {
		return singleClass(model.MethodJenks, minVal, maxVal, colors)
	}

	breaks, err := jenksBreaks(sorted, n)
	if err != nil {
		zap.L().Warn("classify: jenks failed, falling back to quantile", zap.Error(err))
		result := classifyQuantile(n, sorted, colors)
		result.Fallback = "jenks failed: " + err.Error()
		return result
	}

	realized := len(breaks) + 1
	return &model.ClassificationResult{
		Method:     model.MethodJenks,
		Breaks:     breaks,
		Colors:     colors[:realized],
		MinValue:   &minVal,
		MaxValue:   &maxVal,
		NumClasses: realized,
	}
}

// distinctCount counts distinct values in a sorted slice.
func distinctCount(sorted []float64) int {
	n := 0
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			n++
		}
	}
	return n
}

func singleClass(method model.Method, minVal, maxVal float64, colors []string) *model.ClassificationResult {
	return &model.ClassificationResult{
		Method:     method,
		Colors:     colors[:1],
		MinValue:   &minVal,
		MaxValue:   &maxVal,
		NumClasses: 1,
	}
}

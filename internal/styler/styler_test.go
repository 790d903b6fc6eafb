package styler

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/stylegen/internal/model"
	"github.com/sells-group/stylegen/internal/stats"
	"github.com/sells-group/stylegen/internal/store"
)

// fakeStore is an in-memory store.Store.
type fakeStore struct {
	styles map[string]*model.StyleMetadata // by id
	audits []model.AuditEntry
	cache  map[string][]byte

	createCalls   int
	generatedSets int
	auditErr      error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		styles: make(map[string]*model.StyleMetadata),
		cache:  make(map[string][]byte),
	}
}

func (f *fakeStore) key(ws, table, colorBy string) string { return ws + "/" + table + "/" + colorBy }

func (f *fakeStore) CreateStyle(_ context.Context, sm *model.StyleMetadata) error {
	f.createCalls++
	if sm.ID == "" {
		sm.ID = "style-" + sm.TableName + "-" + sm.ColorBy
	}
	cp := *sm
	f.styles[sm.ID] = &cp
	return nil
}

func (f *fakeStore) GetStyle(_ context.Context, ws, table, colorBy string) (*model.StyleMetadata, error) {
	for _, sm := range f.styles {
		if f.key(sm.Workspace, sm.TableName, sm.ColorBy) == f.key(ws, table, colorBy) {
			cp := *sm
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) GetStyleByID(_ context.Context, id string) (*model.StyleMetadata, error) {
	sm, ok := f.styles[id]
	if !ok {
		return nil, eris.Errorf("style not found: %s", id)
	}
	cp := *sm
	return &cp, nil
}

func (f *fakeStore) ListStyles(_ context.Context, _ store.StyleFilter) ([]model.StyleMetadata, error) {
	var out []model.StyleMetadata
	for _, sm := range f.styles {
		out = append(out, *sm)
	}
	return out, nil
}

func (f *fakeStore) UpdateGenerated(_ context.Context, id string, info *model.GeneratedInfo) error {
	sm, ok := f.styles[id]
	if !ok {
		return eris.Errorf("style not found: %s", id)
	}
	f.generatedSets++
	sm.GeneratedName = info.StyleName
	sm.Document = info.Document
	if info.GeometryKind != "" {
		sm.GeometryKind = info.GeometryKind
	}
	sm.MinValue = info.MinValue
	sm.MaxValue = info.MaxValue
	sm.DistinctValues = info.DistinctValues
	sm.DataType = info.DataType
	now := time.Now().UTC()
	sm.LastGenerated = &now
	return nil
}

func (f *fakeStore) DeleteStyle(_ context.Context, id string) error {
	delete(f.styles, id)
	return nil
}

func (f *fakeStore) AppendAudit(_ context.Context, entry *model.AuditEntry) error {
	if f.auditErr != nil {
		return f.auditErr
	}
	version := 0
	for _, e := range f.audits {
		if e.StyleID == entry.StyleID && e.Version > version {
			version = e.Version
		}
	}
	entry.Version = version + 1
	f.audits = append(f.audits, *entry)
	return nil
}

func (f *fakeStore) ListAudit(_ context.Context, styleID string, _ int) ([]model.AuditEntry, error) {
	var out []model.AuditEntry
	for _, e := range f.audits {
		if e.StyleID == styleID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) GetCachedStats(_ context.Context, key string) ([]byte, error) {
	return f.cache[key], nil
}

func (f *fakeStore) SetCachedStats(_ context.Context, key, _ string, data []byte, _ time.Duration) error {
	f.cache[key] = data
	return nil
}

func (f *fakeStore) InvalidateStats(_ context.Context, _ string) (int, error) { return 0, nil }
func (f *fakeStore) DeleteExpiredStats(_ context.Context) (int, error)        { return 0, nil }
func (f *fakeStore) Ping(_ context.Context) error                             { return nil }
func (f *fakeStore) Migrate(_ context.Context) error                          { return nil }
func (f *fakeStore) Close() error                                             { return nil }

// fakeStats is a canned StatsProvider that counts queries.
type fakeStats struct {
	dataType string
	geometry model.GeometryKind
	geomErr  error
	min, max *float64
	breaks   []float64
	values   []float64
	distinct []string
	cols     []stats.Column

	calls int
}

func (f *fakeStats) Columns(_ context.Context, _ string) ([]stats.Column, error) {
	return f.cols, nil
}

func (f *fakeStats) ColumnDataType(_ context.Context, _, _ string) (string, error) {
	f.calls++
	return f.dataType, nil
}

func (f *fakeStats) GeometryKind(_ context.Context, _ string) (model.GeometryKind, error) {
	if f.geomErr != nil {
		return "", f.geomErr
	}
	return f.geometry, nil
}

func (f *fakeStats) NumericBounds(_ context.Context, _, _ string) (*float64, *float64, error) {
	f.calls++
	return f.min, f.max, nil
}

func (f *fakeStats) QuantileBreaks(_ context.Context, _, _ string, _ int) ([]float64, error) {
	f.calls++
	return f.breaks, nil
}

func (f *fakeStats) SampleValues(_ context.Context, _, _ string, _ int) ([]float64, error) {
	f.calls++
	return f.values, nil
}

func (f *fakeStats) DistinctValues(_ context.Context, _, _ string, _ int) ([]string, error) {
	f.calls++
	return f.distinct, nil
}

// fakePublisher records calls and optionally fails.
type fakePublisher struct {
	publishErr error
	attachErr  error
	published  []string
	attached   []string
}

func (f *fakePublisher) PublishStyle(_ context.Context, _, name string, _ []byte) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, name)
	return nil
}

func (f *fakePublisher) AttachToLayer(_ context.Context, _, layer, _ string) error {
	if f.attachErr != nil {
		return f.attachErr
	}
	f.attached = append(f.attached, layer)
	return nil
}

func (f *fakePublisher) StyleURL(ws, name string) string {
	return "http://geoserver/rest/workspaces/" + ws + "/styles/" + name
}

func ptr(v float64) *float64 { return &v }

func newTestGenerator(st *fakeStore, sp StatsProvider, pub Publisher) *Generator {
	return New(st, sp, pub, Config{Workspace: "topp"})
}

func TestGenerate_QuantileHappyPath(t *testing.T) {
	st := newFakeStore()
	sp := &fakeStats{
		dataType: "double precision",
		geometry: model.GeometryPolygon,
		min:      ptr(100), max: ptr(900),
		breaks: []float64{200, 400, 600, 800},
	}
	g := newTestGenerator(st, sp, nil)

	res, err := g.Generate(context.Background(), Request{
		TableName: "parcels",
		ColorBy:   "assessed_value",
		Method:    model.MethodQuantile,
	})
	require.NoError(t, err)

	assert.Equal(t, "parcels_assessed_value_style", res.StyleName)
	assert.Equal(t, 1, res.Version)
	assert.Equal(t, model.MethodQuantile, res.Classification.Method)
	assert.Equal(t, []float64{200, 400, 600, 800}, res.Classification.Breaks)
	assert.Equal(t, 5, res.Classification.NumClasses)
	assert.Empty(t, res.Degraded)
	require.NotNil(t, res.Document)
	require.Len(t, res.Document.Layers, 2) // fill + outline

	// Persisted.
	assert.Equal(t, 1, st.generatedSets)
	require.Len(t, st.audits, 1)
	assert.Equal(t, model.AuditActionGenerated, st.audits[0].Action)
	assert.Equal(t, model.AuditStatusSuccess, st.audits[0].Status)

	sm, err := st.GetStyle(context.Background(), "topp", "parcels", "assessed_value")
	require.NoError(t, err)
	require.NotNil(t, sm)
	assert.Equal(t, model.GeometryPolygon, sm.GeometryKind)
}

func TestGenerate_SecondRunReusesStyleAndBumpsVersion(t *testing.T) {
	st := newFakeStore()
	sp := &fakeStats{
		dataType: "integer",
		geometry: model.GeometryPolygon,
		min:      ptr(0), max: ptr(10),
		breaks: []float64{2, 4, 6, 8},
	}
	g := newTestGenerator(st, sp, nil)
	req := Request{TableName: "parcels", ColorBy: "floors", Method: model.MethodQuantile}

	first, err := g.Generate(context.Background(), req)
	require.NoError(t, err)
	second, err := g.Generate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, first.Version)
	assert.Equal(t, 2, second.Version)
	assert.Len(t, st.styles, 1)
}

func TestGenerate_StatsCacheSkipsRecompute(t *testing.T) {
	st := newFakeStore()
	sp := &fakeStats{
		dataType: "integer",
		geometry: model.GeometryPolygon,
		min:      ptr(0), max: ptr(10),
		breaks: []float64{2, 4, 6, 8},
	}
	g := newTestGenerator(st, sp, nil)
	req := Request{TableName: "parcels", ColorBy: "floors", Method: model.MethodQuantile}

	_, err := g.Generate(context.Background(), req)
	require.NoError(t, err)
	callsAfterFirst := sp.calls

	_, err = g.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, callsAfterFirst, sp.calls, "second run should hit the cache")

	// NoCache bypasses it.
	req.NoCache = true
	_, err = g.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Greater(t, sp.calls, callsAfterFirst)
}

func TestGenerate_CategoricalCacheSharedAcrossClassCounts(t *testing.T) {
	st := newFakeStore()
	sp := &fakeStats{
		dataType: "character varying",
		geometry: model.GeometryPolygon,
		distinct: []string{"commercial", "industrial", "residential"},
	}
	g := newTestGenerator(st, sp, nil)

	req := Request{TableName: "zoning", ColorBy: "zone_class", Method: model.MethodCategorical, NumClasses: 3}
	_, err := g.Generate(context.Background(), req)
	require.NoError(t, err)
	callsAfterFirst := sp.calls

	// The distinct-value scan depends only on the column, so a different
	// class count reuses the same cache entry.
	req.NumClasses = 6
	_, err = g.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, callsAfterFirst, sp.calls)
	assert.Len(t, st.cache, 1)
}

func TestGenerate_NonNumericColumnFallsBackToCategorical(t *testing.T) {
	st := newFakeStore()
	sp := &fakeStats{
		dataType: "character varying",
		geometry: model.GeometryPolygon,
		distinct: []string{"commercial", "industrial", "residential"},
	}
	g := newTestGenerator(st, sp, nil)

	res, err := g.Generate(context.Background(), Request{
		TableName: "zoning",
		ColorBy:   "zone_class",
		Method:    model.MethodQuantile,
	})
	require.NoError(t, err)

	assert.Equal(t, model.MethodCategorical, res.Classification.Method)
	assert.Equal(t, []string{"commercial", "industrial", "residential"}, res.Classification.Categories)
	require.NotEmpty(t, res.Degraded)
	assert.Contains(t, res.Degraded[0], "not numeric")
}

func TestGenerate_GeometryDetectionFailureDegrades(t *testing.T) {
	st := newFakeStore()
	sp := &fakeStats{
		dataType: "integer",
		geomErr:  eris.New("no geometry column"),
		min:      ptr(0), max: ptr(10),
		breaks: []float64{5},
	}
	g := newTestGenerator(st, sp, nil)

	res, err := g.Generate(context.Background(), Request{
		TableName: "parcels",
		ColorBy:   "floors",
		Method:    model.MethodQuantile,
		NumClasses: 2,
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Degraded)
	assert.Contains(t, res.Degraded[0], "geometry detection failed")

	sm, err := st.GetStyle(context.Background(), "topp", "parcels", "floors")
	require.NoError(t, err)
	assert.Equal(t, model.GeometryPolygon, sm.GeometryKind)
}

func TestGenerate_GeometryOverrideSkipsDetection(t *testing.T) {
	st := newFakeStore()
	sp := &fakeStats{
		dataType: "integer",
		geomErr:  eris.New("should not be called"),
		min:      ptr(0), max: ptr(10),
		breaks: []float64{5},
	}
	g := newTestGenerator(st, sp, nil)

	res, err := g.Generate(context.Background(), Request{
		TableName:  "stations",
		ColorBy:    "riders",
		Method:     model.MethodQuantile,
		NumClasses: 2,
		Geometry:   model.GeometryPoint,
	})
	require.NoError(t, err)
	assert.Empty(t, res.Degraded)
	require.Len(t, res.Document.Layers, 1)
	assert.Equal(t, "circle", res.Document.Layers[0].Type)
}

func TestGenerate_TooManyDistinctValuesFailsAndAudits(t *testing.T) {
	st := newFakeStore()
	distinct := make([]string, 101)
	for i := range distinct {
		distinct[i] = string(rune('a' + i%26))
	}
	sp := &fakeStats{
		dataType: "text",
		geometry: model.GeometryPolygon,
		distinct: distinct,
	}
	g := newTestGenerator(st, sp, nil)

	_, err := g.Generate(context.Background(), Request{
		TableName: "zoning",
		ColorBy:   "parcel_id",
		Method:    model.MethodCategorical,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "distinct values")

	require.Len(t, st.audits, 1)
	assert.Equal(t, model.AuditActionGenerationFailed, st.audits[0].Action)
	assert.Equal(t, model.AuditStatusFailed, st.audits[0].Status)
	assert.NotEmpty(t, st.audits[0].ErrorMessage)
}

func TestGenerate_PublishFailureDegradesNotFails(t *testing.T) {
	st := newFakeStore()
	sp := &fakeStats{
		dataType: "integer",
		geometry: model.GeometryPolygon,
		min:      ptr(0), max: ptr(10),
		breaks: []float64{5},
	}
	pub := &fakePublisher{publishErr: eris.New("geoserver unreachable")}
	g := newTestGenerator(st, sp, pub)

	res, err := g.Generate(context.Background(), Request{
		TableName:  "parcels",
		ColorBy:    "floors",
		Method:     model.MethodQuantile,
		NumClasses: 2,
		Publish:    true,
	})
	require.NoError(t, err)
	assert.False(t, res.Published)
	require.NotEmpty(t, res.Degraded)
	assert.Contains(t, res.Degraded[len(res.Degraded)-1], "publish failed")

	// The generation itself still succeeded and was audited as such.
	require.Len(t, st.audits, 1)
	assert.Equal(t, model.AuditStatusSuccess, st.audits[0].Status)
}

func TestGenerate_PublishAndAttach(t *testing.T) {
	st := newFakeStore()
	sp := &fakeStats{
		dataType: "integer",
		geometry: model.GeometryLine,
		min:      ptr(0), max: ptr(10),
		breaks: []float64{5},
	}
	pub := &fakePublisher{}
	g := newTestGenerator(st, sp, pub)

	res, err := g.Generate(context.Background(), Request{
		TableName:  "roads",
		ColorBy:    "lanes",
		Method:     model.MethodQuantile,
		NumClasses: 2,
		Publish:    true,
		Attach:     true,
	})
	require.NoError(t, err)
	assert.True(t, res.Published)
	assert.True(t, res.Attached)
	assert.Contains(t, res.StyleURL, "roads_lanes_style")
	assert.Equal(t, []string{"roads_lanes_style"}, pub.published)
	assert.Equal(t, []string{"roads"}, pub.attached)
}

func TestGenerate_PublishWithoutPublisherDegrades(t *testing.T) {
	st := newFakeStore()
	sp := &fakeStats{
		dataType: "integer",
		geometry: model.GeometryPolygon,
		min:      ptr(0), max: ptr(10),
		breaks: []float64{5},
	}
	g := newTestGenerator(st, sp, nil)

	res, err := g.Generate(context.Background(), Request{
		TableName:  "parcels",
		ColorBy:    "floors",
		Method:     model.MethodQuantile,
		NumClasses: 2,
		Publish:    true,
	})
	require.NoError(t, err)
	assert.False(t, res.Published)
	require.NotEmpty(t, res.Degraded)
	assert.Contains(t, res.Degraded[len(res.Degraded)-1], "no map server configured")
}

func TestPreview_DoesNotPersist(t *testing.T) {
	st := newFakeStore()
	sp := &fakeStats{
		dataType: "integer",
		geometry: model.GeometryPolygon,
		min:      ptr(0), max: ptr(10),
		breaks: []float64{5},
	}
	g := newTestGenerator(st, sp, nil)

	res, err := g.Preview(context.Background(), Request{
		TableName:  "parcels",
		ColorBy:    "floors",
		Method:     model.MethodQuantile,
		NumClasses: 2,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Document)

	assert.Equal(t, 0, st.createCalls)
	assert.Equal(t, 0, st.generatedSets)
	assert.Empty(t, st.audits)
	assert.Empty(t, st.styles)
}

func TestGenerate_ValidationErrors(t *testing.T) {
	g := newTestGenerator(newFakeStore(), &fakeStats{}, nil)
	ctx := context.Background()

	_, err := g.Generate(ctx, Request{ColorBy: "v"})
	require.Error(t, err)

	_, err = g.Generate(ctx, Request{TableName: "t", ColorBy: "v", Method: "voronoi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown method")

	_, err = g.Generate(ctx, Request{TableName: "t", ColorBy: "v", Method: model.MethodManual})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "manual method requires breaks")

	_, err = g.Generate(ctx, Request{TableName: "t", ColorBy: "v", NumClasses: -3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be positive")
}

func TestLegend_FromStoredDocument(t *testing.T) {
	st := newFakeStore()
	sp := &fakeStats{
		dataType: "integer",
		geometry: model.GeometryPolygon,
		min:      ptr(0), max: ptr(100),
		breaks: []float64{25, 50, 75},
	}
	g := newTestGenerator(st, sp, nil)

	_, err := g.Generate(context.Background(), Request{
		TableName:  "parcels",
		ColorBy:    "score",
		Method:     model.MethodQuantile,
		NumClasses: 4,
	})
	require.NoError(t, err)

	items, err := g.Legend(context.Background(), "parcels", "score")
	require.NoError(t, err)
	require.Len(t, items, 4)
	assert.Equal(t, "< 25", items[0].Label)
	assert.Equal(t, ">= 75", items[3].Label)
}

func TestLegend_MissingStyle(t *testing.T) {
	g := newTestGenerator(newFakeStore(), &fakeStats{}, nil)

	_, err := g.Legend(context.Background(), "parcels", "score")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no generated style")
}

func TestColumns(t *testing.T) {
	sp := &fakeStats{
		cols: []stats.Column{
			{Name: "gid", DataType: "integer", Numeric: true},
			{Name: "zone_class", DataType: "character varying"},
		},
	}
	g := newTestGenerator(newFakeStore(), sp, nil)

	cols, err := g.Columns(context.Background(), "zoning")
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.True(t, cols[0].Numeric)
	assert.False(t, cols[1].Numeric)

	_, err = g.Columns(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "table is required")
}

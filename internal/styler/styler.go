// Package styler orchestrates style generation: column statistics,
// classification, document assembly, persistence, audit, and publication.
package styler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/stylegen/internal/classify"
	"github.com/sells-group/stylegen/internal/mbstyle"
	"github.com/sells-group/stylegen/internal/model"
	"github.com/sells-group/stylegen/internal/stats"
	"github.com/sells-group/stylegen/internal/store"
)

// StatsProvider supplies column statistics for classification.
type StatsProvider interface {
	Columns(ctx context.Context, table string) ([]stats.Column, error)
	ColumnDataType(ctx context.Context, table, column string) (string, error)
	GeometryKind(ctx context.Context, table string) (model.GeometryKind, error)
	NumericBounds(ctx context.Context, table, column string) (*float64, *float64, error)
	QuantileBreaks(ctx context.Context, table, column string, numClasses int) ([]float64, error)
	SampleValues(ctx context.Context, table, column string, limit int) ([]float64, error)
	DistinctValues(ctx context.Context, table, column string, limit int) ([]string, error)
}

// Publisher uploads generated styles to the map server.
type Publisher interface {
	PublishStyle(ctx context.Context, workspace, name string, document []byte) error
	AttachToLayer(ctx context.Context, workspace, layer, styleName string) error
	StyleURL(workspace, name string) string
}

// Config holds generation defaults.
type Config struct {
	Workspace       string
	DefaultPalette  string
	DefaultClasses  int
	FillOpacity     float64
	StrokeColor     string
	StrokeWidth     float64
	CacheTTL        time.Duration
	JenksSampleSize int
	DistinctLimit   int
}

// Generator runs the generation pipeline. The publisher is optional; a
// nil publisher turns publish requests into degraded results rather than
// errors.
type Generator struct {
	store store.Store
	stats StatsProvider
	pub   Publisher
	cfg   Config
	log   *zap.Logger
}

// New creates a Generator.
func New(st store.Store, sp StatsProvider, pub Publisher, cfg Config) *Generator {
	if cfg.DefaultPalette == "" {
		cfg.DefaultPalette = "YlOrRd"
	}
	if cfg.DefaultClasses <= 0 {
		cfg.DefaultClasses = 5
	}
	if cfg.FillOpacity == 0 {
		cfg.FillOpacity = 0.7
	}
	if cfg.StrokeColor == "" {
		cfg.StrokeColor = "#333333"
	}
	if cfg.StrokeWidth == 0 {
		cfg.StrokeWidth = 1.0
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	if cfg.JenksSampleSize <= 0 {
		cfg.JenksSampleSize = 10000
	}
	if cfg.DistinctLimit <= 0 {
		cfg.DistinctLimit = 100
	}
	return &Generator{
		store: st,
		stats: sp,
		pub:   pub,
		cfg:   cfg,
		log:   zap.L().With(zap.String("component", "styler")),
	}
}

// Request describes one generation or preview.
type Request struct {
	TableName    string
	ColorBy      string
	Method       model.Method
	NumClasses   int
	Palette      string
	CustomColors []string
	ManualBreaks []float64
	Geometry     model.GeometryKind // optional override of detection

	FillOpacity *float64
	StrokeColor string
	StrokeWidth float64

	Publish bool
	Attach  bool
	NoCache bool
	Actor   string
}

// Result is the outcome of a generation.
type Result struct {
	Style          *model.StyleMetadata        `json:"style,omitempty"`
	StyleName      string                      `json:"style_name"`
	Document       *mbstyle.Document           `json:"document"`
	Classification *model.ClassificationResult `json:"classification"`
	Version        int                         `json:"version,omitempty"`

	Published bool   `json:"published"`
	Attached  bool   `json:"attached"`
	StyleURL  string `json:"style_url,omitempty"`

	// Degraded lists non-fatal substitutions made along the way, such as
	// geometry detection failing over to polygon or a publish failure on
	// an otherwise successful generation.
	Degraded []string `json:"degraded,omitempty"`
}

// StyleName derives the generated style name for a table and column.
func StyleName(table, colorBy string) string {
	return fmt.Sprintf("%s_%s_style", table, colorBy)
}

// Generate runs the full pipeline for one (table, color-by) pair and
// persists the outcome. Publish and attach failures degrade the result
// instead of failing it; every attempt lands in the audit log.
func (g *Generator) Generate(ctx context.Context, req Request) (*Result, error) {
	req, err := g.normalize(req)
	if err != nil {
		return nil, err
	}

	sm, err := g.resolveStyle(ctx, req)
	if err != nil {
		return nil, err
	}

	res, err := g.build(ctx, req, sm)
	if err != nil {
		g.audit(ctx, sm.ID, &model.AuditEntry{
			StyleID:      sm.ID,
			Action:       model.AuditActionGenerationFailed,
			Status:       model.AuditStatusFailed,
			ErrorMessage: err.Error(),
			Actor:        req.Actor,
		})
		return nil, err
	}

	doc, err := res.Document.Encode()
	if err != nil {
		return nil, eris.Wrap(err, "styler: encode document")
	}

	info := &model.GeneratedInfo{
		StyleName:      res.StyleName,
		Document:       doc,
		GeometryKind:   sm.GeometryKind,
		MinValue:       res.Classification.MinValue,
		MaxValue:       res.Classification.MaxValue,
		DistinctValues: res.Classification.Categories,
		DataType:       dataTypeOf(res.Classification),
	}
	if err := g.store.UpdateGenerated(ctx, sm.ID, info); err != nil {
		return nil, eris.Wrap(err, "styler: persist generated style")
	}

	entry := &model.AuditEntry{
		StyleID:  sm.ID,
		Action:   model.AuditActionGenerated,
		Document: doc,
		Status:   model.AuditStatusSuccess,
		Actor:    req.Actor,
	}
	if err := g.store.AppendAudit(ctx, entry); err != nil {
		return nil, eris.Wrap(err, "styler: append audit")
	}
	res.Version = entry.Version

	if req.Publish {
		g.doPublish(ctx, req, res, doc)
	}

	sm.GeneratedName = info.StyleName
	sm.Document = doc
	sm.MinValue = info.MinValue
	sm.MaxValue = info.MaxValue
	sm.DistinctValues = info.DistinctValues
	sm.DataType = info.DataType
	now := time.Now().UTC()
	sm.LastGenerated = &now
	res.Style = sm

	g.log.Info("style generated",
		zap.String("table", req.TableName),
		zap.String("color_by", req.ColorBy),
		zap.String("method", string(res.Classification.Method)),
		zap.Int("classes", res.Classification.NumClasses),
		zap.Int("version", res.Version))

	return res, nil
}

// Preview runs classification and document assembly without touching the
// store beyond the statistics cache and without publishing.
func (g *Generator) Preview(ctx context.Context, req Request) (*Result, error) {
	req, err := g.normalize(req)
	if err != nil {
		return nil, err
	}
	sm := g.styleFromRequest(req)
	return g.build(ctx, req, sm)
}

// Columns lists the columns of a layer table, annotated with whether
// each can drive a numeric classification.
func (g *Generator) Columns(ctx context.Context, table string) ([]stats.Column, error) {
	if table == "" {
		return nil, eris.New("styler: table is required")
	}
	return g.stats.Columns(ctx, table)
}

// Legend returns the legend of the last generated style for a table and
// column.
func (g *Generator) Legend(ctx context.Context, table, colorBy string) ([]mbstyle.LegendItem, error) {
	sm, err := g.store.GetStyle(ctx, g.cfg.Workspace, table, colorBy)
	if err != nil {
		return nil, err
	}
	if sm == nil || len(sm.Document) == 0 {
		return nil, eris.Errorf("styler: no generated style for %s.%s", table, colorBy)
	}
	doc, err := mbstyle.Decode(sm.Document)
	if err != nil {
		return nil, eris.Wrap(err, "styler: decode stored document")
	}
	return mbstyle.Legend(doc)
}

func (g *Generator) normalize(req Request) (Request, error) {
	if req.TableName == "" || req.ColorBy == "" {
		return req, eris.New("styler: table and color-by column are required")
	}
	if req.Method == "" {
		req.Method = model.MethodQuantile
	}
	if !req.Method.Valid() {
		return req, eris.Errorf("styler: unknown method %q", req.Method)
	}
	if req.NumClasses == 0 {
		req.NumClasses = g.cfg.DefaultClasses
	}
	if req.NumClasses < 0 {
		return req, eris.Errorf("styler: num classes must be positive, got %d", req.NumClasses)
	}
	if req.Palette == "" {
		req.Palette = g.cfg.DefaultPalette
	}
	if req.StrokeColor == "" {
		req.StrokeColor = g.cfg.StrokeColor
	}
	if req.StrokeWidth == 0 {
		req.StrokeWidth = g.cfg.StrokeWidth
	}
	if req.FillOpacity == nil {
		op := g.cfg.FillOpacity
		req.FillOpacity = &op
	}
	if req.Method == model.MethodManual && len(req.ManualBreaks) == 0 {
		return req, eris.New("styler: manual method requires breaks")
	}
	return req, nil
}

func (g *Generator) styleFromRequest(req Request) *model.StyleMetadata {
	return &model.StyleMetadata{
		Workspace:    g.cfg.Workspace,
		TableName:    req.TableName,
		ColorBy:      req.ColorBy,
		GeometryKind: req.Geometry,
		Method:       req.Method,
		NumClasses:   req.NumClasses,
		Palette:      req.Palette,
		CustomColors: req.CustomColors,
		FillOpacity:  *req.FillOpacity,
		StrokeColor:  req.StrokeColor,
		StrokeWidth:  req.StrokeWidth,
		ManualBreaks: req.ManualBreaks,
	}
}

// resolveStyle loads the existing metadata record for the key or creates
// one, then upserts the requested configuration onto it.
func (g *Generator) resolveStyle(ctx context.Context, req Request) (*model.StyleMetadata, error) {
	existing, err := g.store.GetStyle(ctx, g.cfg.Workspace, req.TableName, req.ColorBy)
	if err != nil {
		return nil, eris.Wrap(err, "styler: load style")
	}

	sm := g.styleFromRequest(req)
	if existing != nil {
		sm.ID = existing.ID
		sm.CreatedAt = existing.CreatedAt
		if sm.GeometryKind == "" {
			sm.GeometryKind = existing.GeometryKind
		}
	}
	if err := g.store.CreateStyle(ctx, sm); err != nil {
		return nil, eris.Wrap(err, "styler: save style")
	}
	return sm, nil
}

// build computes statistics, classifies, and assembles the document. It
// has no side effects beyond the statistics cache.
func (g *Generator) build(ctx context.Context, req Request, sm *model.StyleMetadata) (*Result, error) {
	res := &Result{StyleName: StyleName(req.TableName, req.ColorBy)}

	geometry := req.Geometry
	if geometry == "" {
		geometry = sm.GeometryKind
	}
	if geometry == "" {
		detected, err := g.stats.GeometryKind(ctx, req.TableName)
		if err != nil {
			res.Degraded = append(res.Degraded,
				fmt.Sprintf("geometry detection failed (%s), styling as polygon", eris.Cause(err)))
			g.log.Warn("geometry detection failed",
				zap.String("table", req.TableName), zap.Error(err))
			detected = model.GeometryPolygon
		}
		geometry = detected
	}
	if geometry == model.GeometryRaster {
		// Raster layers have no vector paint properties; the polygon
		// branch produces a usable placeholder.
		res.Degraded = append(res.Degraded, "raster layer styled with polygon layers")
		geometry = model.GeometryPolygon
	}
	sm.GeometryKind = geometry

	cs, err := g.columnStats(ctx, req)
	if err != nil {
		return nil, err
	}

	creq := classify.Request{
		Method:            req.Method,
		NumClasses:        req.NumClasses,
		Palette:           req.Palette,
		CustomColors:      req.CustomColors,
		ManualBreaks:      req.ManualBreaks,
		MinValue:          cs.Min,
		MaxValue:          cs.Max,
		PrecomputedBreaks: cs.Breaks,
		Values:            cs.Values,
		Categories:        cs.Distinct,
	}

	// A numeric method against a non-numeric column classifies the
	// distinct values instead.
	if req.Method.Numeric() && req.Method != model.MethodManual && cs.DataType != model.DataTypeNumeric {
		creq.Method = model.MethodCategorical
		res.Degraded = append(res.Degraded,
			fmt.Sprintf("column %s is not numeric, using categorical classification", req.ColorBy))
	}

	classification, err := classify.Classify(creq)
	if err != nil {
		return nil, eris.Wrapf(err, "styler: classify %s.%s", req.TableName, req.ColorBy)
	}
	if classification.Fallback != "" {
		res.Degraded = append(res.Degraded, classification.Fallback)
	}

	res.Classification = classification
	res.Document = mbstyle.Build(mbstyle.BuildOptions{
		StyleName:   res.StyleName,
		ColorBy:     req.ColorBy,
		Geometry:    geometry,
		FillOpacity: *req.FillOpacity,
		StrokeColor: req.StrokeColor,
		StrokeWidth: req.StrokeWidth,
		SourceLayer: req.TableName,
	}, classification)

	return res, nil
}

func (g *Generator) doPublish(ctx context.Context, req Request, res *Result, doc json.RawMessage) {
	if g.pub == nil {
		res.Degraded = append(res.Degraded, "publish requested but no map server configured")
		return
	}

	if err := g.pub.PublishStyle(ctx, g.cfg.Workspace, res.StyleName, doc); err != nil {
		res.Degraded = append(res.Degraded, fmt.Sprintf("publish failed: %s", eris.Cause(err)))
		g.log.Warn("style publish failed",
			zap.String("style", res.StyleName), zap.Error(err))
		return
	}
	res.Published = true
	res.StyleURL = g.pub.StyleURL(g.cfg.Workspace, res.StyleName)

	if !req.Attach {
		return
	}
	if err := g.pub.AttachToLayer(ctx, g.cfg.Workspace, req.TableName, res.StyleName); err != nil {
		res.Degraded = append(res.Degraded, fmt.Sprintf("attach failed: %s", eris.Cause(err)))
		g.log.Warn("style attach failed",
			zap.String("layer", req.TableName), zap.Error(err))
		return
	}
	res.Attached = true
}

func (g *Generator) audit(ctx context.Context, styleID string, entry *model.AuditEntry) {
	if err := g.store.AppendAudit(ctx, entry); err != nil {
		g.log.Warn("audit append failed",
			zap.String("style_id", styleID), zap.Error(err))
	}
}

func dataTypeOf(c *model.ClassificationResult) string {
	if c.Method == model.MethodCategorical {
		return model.DataTypeCategorical
	}
	return model.DataTypeNumeric
}

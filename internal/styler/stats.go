package styler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/stylegen/internal/model"
	"github.com/sells-group/stylegen/internal/stats"
)

// columnStats is the cached statistics payload for one classification
// request. Only the fields the requested method needs are populated.
type columnStats struct {
	DataType string    `json:"data_type"`
	Min      *float64  `json:"min,omitempty"`
	Max      *float64  `json:"max,omitempty"`
	Breaks   []float64 `json:"breaks,omitempty"`
	Values   []float64 `json:"values,omitempty"`
	Distinct []string  `json:"distinct,omitempty"`
}

func cacheKey(req Request) string {
	// The distinct-value list depends only on the column, so categorical
	// requests share one entry across class counts.
	if req.Method == model.MethodCategorical {
		return fmt.Sprintf("stats:%s:%s:distinct", req.TableName, req.ColorBy)
	}
	return fmt.Sprintf("stats:%s:%s:%s:%d", req.TableName, req.ColorBy, req.Method, req.NumClasses)
}

// columnStats fetches statistics for the request, consulting the TTL
// cache first. Cache failures are logged and bypassed, never fatal.
func (g *Generator) columnStats(ctx context.Context, req Request) (*columnStats, error) {
	key := cacheKey(req)

	if !req.NoCache {
		if data, err := g.store.GetCachedStats(ctx, key); err != nil {
			g.log.Warn("stat cache read failed", zap.String("key", key), zap.Error(err))
		} else if data != nil {
			var cs columnStats
			if err := json.Unmarshal(data, &cs); err == nil {
				g.log.Debug("stat cache hit", zap.String("key", key))
				return &cs, nil
			}
			g.log.Warn("stat cache entry corrupt", zap.String("key", key))
		}
	}

	cs, err := g.computeStats(ctx, req)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(cs); err == nil {
		if err := g.store.SetCachedStats(ctx, key, req.TableName, data, g.cfg.CacheTTL); err != nil {
			g.log.Warn("stat cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return cs, nil
}

func (g *Generator) computeStats(ctx context.Context, req Request) (*columnStats, error) {
	dataType, err := g.stats.ColumnDataType(ctx, req.TableName, req.ColorBy)
	if err != nil {
		return nil, eris.Wrapf(err, "styler: inspect %s.%s", req.TableName, req.ColorBy)
	}

	cs := &columnStats{DataType: model.DataTypeCategorical}
	if stats.IsNumericType(dataType) {
		cs.DataType = model.DataTypeNumeric
	}

	categorical := req.Method == model.MethodCategorical || cs.DataType != model.DataTypeNumeric
	if categorical {
		distinct, err := g.stats.DistinctValues(ctx, req.TableName, req.ColorBy, g.cfg.DistinctLimit)
		if err != nil {
			return nil, eris.Wrapf(err, "styler: distinct values of %s.%s", req.TableName, req.ColorBy)
		}
		if len(distinct) > g.cfg.DistinctLimit {
			return nil, eris.Errorf("styler: column %s has more than %d distinct values, not suitable for categorical styling",
				req.ColorBy, g.cfg.DistinctLimit)
		}
		cs.Distinct = distinct
		return cs, nil
	}

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		minVal, maxVal, err := g.stats.NumericBounds(egCtx, req.TableName, req.ColorBy)
		if err != nil {
			return eris.Wrap(err, "bounds")
		}
		cs.Min, cs.Max = minVal, maxVal
		return nil
	})

	switch req.Method {
	case model.MethodQuantile:
		eg.Go(func() error {
			breaks, err := g.stats.QuantileBreaks(egCtx, req.TableName, req.ColorBy, req.NumClasses)
			if err != nil {
				return eris.Wrap(err, "quantile breaks")
			}
			cs.Breaks = breaks
			return nil
		})
	case model.MethodJenks:
		eg.Go(func() error {
			values, err := g.stats.SampleValues(egCtx, req.TableName, req.ColorBy, g.cfg.JenksSampleSize)
			if err != nil {
				return eris.Wrap(err, "sample values")
			}
			cs.Values = values
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, eris.Wrapf(err, "styler: statistics for %s.%s", req.TableName, req.ColorBy)
	}
	return cs, nil
}

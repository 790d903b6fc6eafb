// Package stats computes column statistics against the layer database:
// data types, numeric bounds, quantile breaks, distinct values, and
// geometry kind detection for PostGIS tables.
package stats

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/stylegen/internal/db"
	"github.com/sells-group/stylegen/internal/model"
)

// identRe matches valid unquoted SQL identifiers. Table and column names
// arrive from CLI flags and API requests, so they are validated before
// being interpolated into statements.
var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ErrBadIdentifier is returned for table or column names that fail validation.
var ErrBadIdentifier = eris.New("stats: invalid identifier")

// numericTypes lists the PostgreSQL data types classified as numeric.
var numericTypes = map[string]bool{
	"smallint":         true,
	"integer":          true,
	"bigint":           true,
	"decimal":          true,
	"numeric":          true,
	"real":             true,
	"double precision": true,
}

// Provider computes statistics over tables in one schema.
type Provider struct {
	pool   db.Pool
	schema string
	log    *zap.Logger
}

// New creates a Provider for the given schema.
func New(pool db.Pool, schema string) *Provider {
	if schema == "" {
		schema = "public"
	}
	return &Provider{
		pool:   pool,
		schema: schema,
		log:    zap.L().With(zap.String("component", "stats")),
	}
}

// Column describes one column of a layer table.
type Column struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	UDTName  string `json:"udt_name"`
	Numeric  bool   `json:"numeric"`
}

// IsNumericType reports whether a PostgreSQL data type is numeric.
func IsNumericType(dataType string) bool {
	return numericTypes[strings.ToLower(dataType)]
}

func checkIdent(names ...string) error {
	for _, n := range names {
		if !identRe.MatchString(n) {
			return eris.Wrapf(ErrBadIdentifier, "%q", n)
		}
	}
	return nil
}

// Columns lists the columns of a table.
func (p *Provider) Columns(ctx context.Context, table string) ([]Column, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}

	rows, err := p.pool.Query(ctx,
		`SELECT column_name, data_type, udt_name
		 FROM information_schema.columns
		 WHERE table_schema = $1 AND table_name = $2
		 ORDER BY ordinal_position`,
		p.schema, table,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "stats: columns of %s", table)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var c Column
		if err := rows.Scan(&c.Name, &c.DataType, &c.UDTName); err != nil {
			return nil, eris.Wrap(err, "stats: scan column")
		}
		c.Numeric = IsNumericType(c.DataType)
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "stats: columns iterate")
	}
	if len(cols) == 0 {
		return nil, eris.Errorf("stats: table not found: %s.%s", p.schema, table)
	}
	return cols, nil
}

// ColumnDataType returns the PostgreSQL data type of one column.
func (p *Provider) ColumnDataType(ctx context.Context, table, column string) (string, error) {
	if err := checkIdent(table, column); err != nil {
		return "", err
	}

	var dataType string
	err := p.pool.QueryRow(ctx,
		`SELECT data_type FROM information_schema.columns
		 WHERE table_schema = $1 AND table_name = $2 AND column_name = $3`,
		p.schema, table, column,
	).Scan(&dataType)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", eris.Errorf("stats: column not found: %s.%s", table, column)
		}
		return "", eris.Wrapf(err, "stats: data type of %s.%s", table, column)
	}
	return dataType, nil
}

// GeometryColumn finds the geometry or raster column of a table. Returns
// the column name and whether it holds raster data.
func (p *Provider) GeometryColumn(ctx context.Context, table string) (string, bool, error) {
	if err := checkIdent(table); err != nil {
		return "", false, err
	}

	var name, udt string
	err := p.pool.QueryRow(ctx,
		`SELECT column_name, udt_name FROM information_schema.columns
		 WHERE table_schema = $1 AND table_name = $2 AND udt_name IN ('geometry', 'geography', 'raster')
		 ORDER BY ordinal_position LIMIT 1`,
		p.schema, table,
	).Scan(&name, &udt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, eris.Errorf("stats: no geometry column in %s.%s", p.schema, table)
		}
		return "", false, eris.Wrapf(err, "stats: geometry column of %s", table)
	}
	return name, udt == "raster", nil
}

// GeometryKind determines the geometry kind of a table. It consults
// geometry_columns first and falls back to decoding one sampled WKB
// geometry when the catalog entry is missing or generic.
func (p *Provider) GeometryKind(ctx context.Context, table string) (model.GeometryKind, error) {
	geomCol, isRaster, err := p.GeometryColumn(ctx, table)
	if err != nil {
		return "", err
	}
	if isRaster {
		return model.GeometryRaster, nil
	}

	var geomType string
	err = p.pool.QueryRow(ctx,
		`SELECT type FROM geometry_columns
		 WHERE f_table_schema = $1 AND f_table_name = $2 AND f_geometry_column = $3`,
		p.schema, table, geomCol,
	).Scan(&geomType)
	if err == nil {
		if kind, ok := kindFromTypeName(geomType); ok {
			return kind, nil
		}
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return "", eris.Wrapf(err, "stats: geometry_columns lookup for %s", table)
	}

	// Catalog entry missing or declared GEOMETRY. Sample one row.
	kind, err := p.sampleGeometryKind(ctx, table, geomCol)
	if err != nil {
		return "", err
	}
	p.log.Debug("geometry kind resolved by sampling",
		zap.String("table", table),
		zap.String("kind", string(kind)))
	return kind, nil
}

func (p *Provider) sampleGeometryKind(ctx context.Context, table, geomCol string) (model.GeometryKind, error) {
	var raw []byte
	err := p.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT ST_AsBinary(%s) FROM %s WHERE %s IS NOT NULL LIMIT 1`,
			quoteIdent(geomCol), p.qualify(table), quoteIdent(geomCol)),
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", eris.Errorf("stats: no geometries to sample in %s", table)
		}
		return "", eris.Wrapf(err, "stats: sample geometry of %s", table)
	}

	g, err := decodeWKB(raw)
	if err != nil {
		return "", eris.Wrapf(err, "stats: decode sampled geometry of %s", table)
	}
	return g, nil
}

func kindFromTypeName(geomType string) (model.GeometryKind, bool) {
	t := strings.ToUpper(geomType)
	switch {
	case strings.Contains(t, "POINT"):
		return model.GeometryPoint, true
	case strings.Contains(t, "LINE"):
		return model.GeometryLine, true
	case strings.Contains(t, "POLYGON"):
		return model.GeometryPolygon, true
	}
	return "", false
}

// NumericBounds returns the min and max of a numeric column, ignoring
// NULLs. Both are nil when the column holds no values.
func (p *Provider) NumericBounds(ctx context.Context, table, column string) (*float64, *float64, error) {
	if err := checkIdent(table, column); err != nil {
		return nil, nil, err
	}

	var minVal, maxVal *float64
	err := p.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT MIN(%s)::float8, MAX(%s)::float8 FROM %s WHERE %s IS NOT NULL`,
			quoteIdent(column), quoteIdent(column), p.qualify(table), quoteIdent(column)),
	).Scan(&minVal, &maxVal)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "stats: bounds of %s.%s", table, column)
	}
	return minVal, maxVal, nil
}

// QuantileBreaks computes the numClasses-1 interior quantile boundaries of
// a numeric column with percentile_cont, deduplicating equal neighbors.
func (p *Provider) QuantileBreaks(ctx context.Context, table, column string, numClasses int) ([]float64, error) {
	if err := checkIdent(table, column); err != nil {
		return nil, err
	}
	if numClasses < 2 {
		return nil, nil
	}

	fractions := make([]float64, 0, numClasses-1)
	for i := 1; i < numClasses; i++ {
		fractions = append(fractions, float64(i)/float64(numClasses))
	}

	var breaks []float64
	err := p.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT percentile_cont($1::float8[]) WITHIN GROUP (ORDER BY %s) FROM %s WHERE %s IS NOT NULL`,
			quoteIdent(column), p.qualify(table), quoteIdent(column)),
		fractions,
	).Scan(&breaks)
	if err != nil {
		return nil, eris.Wrapf(err, "stats: quantile breaks of %s.%s", table, column)
	}

	// percentile_cont over an empty set yields NULL.
	if breaks == nil {
		return nil, nil
	}

	deduped := breaks[:0]
	for i, b := range breaks {
		if i == 0 || b != deduped[len(deduped)-1] {
			deduped = append(deduped, b)
		}
	}
	return deduped, nil
}

// SampleValues fetches numeric column values. When the row count exceeds
// limit a random sample of limit rows is taken instead of a full scan.
func (p *Provider) SampleValues(ctx context.Context, table, column string, limit int) ([]float64, error) {
	if err := checkIdent(table, column); err != nil {
		return nil, err
	}

	var count int64
	err := p.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s IS NOT NULL`,
			p.qualify(table), quoteIdent(column)),
	).Scan(&count)
	if err != nil {
		return nil, eris.Wrapf(err, "stats: count of %s.%s", table, column)
	}

	query := fmt.Sprintf(`SELECT %s::float8 FROM %s WHERE %s IS NOT NULL`,
		quoteIdent(column), p.qualify(table), quoteIdent(column))
	var args []any
	if limit > 0 && count > int64(limit) {
		query += ` ORDER BY random() LIMIT $1`
		args = append(args, limit)
		p.log.Debug("sampling column values",
			zap.String("table", table),
			zap.String("column", column),
			zap.Int64("rows", count),
			zap.Int("sample", limit))
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "stats: sample values of %s.%s", table, column)
	}
	defer rows.Close()

	var values []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, eris.Wrap(err, "stats: scan value")
		}
		values = append(values, v)
	}
	return values, eris.Wrap(rows.Err(), "stats: sample values iterate")
}

// DistinctValues returns the distinct text values of a column in sorted
// order, up to limit+1 entries so callers can detect overflow.
func (p *Provider) DistinctValues(ctx context.Context, table, column string, limit int) ([]string, error) {
	if err := checkIdent(table, column); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := p.pool.Query(ctx,
		fmt.Sprintf(`SELECT DISTINCT %s::text FROM %s WHERE %s IS NOT NULL ORDER BY 1 LIMIT $1`,
			quoteIdent(column), p.qualify(table), quoteIdent(column)),
		limit+1,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "stats: distinct values of %s.%s", table, column)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, eris.Wrap(err, "stats: scan distinct value")
		}
		values = append(values, v)
	}
	return values, eris.Wrap(rows.Err(), "stats: distinct values iterate")
}

func (p *Provider) qualify(table string) string {
	return quoteIdent(p.schema) + "." + quoteIdent(table)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

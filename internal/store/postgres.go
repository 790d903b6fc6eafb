package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/stylegen/internal/db"
	"github.com/sells-group/stylegen/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot store operations.
var preparedStatements = map[string]string{
	"get_style":        `SELECT ` + styleColumns + ` FROM styles.style_metadata WHERE workspace = $1 AND table_name = $2 AND color_by = $3`,
	"get_cached_stats": `SELECT data FROM styles.stat_cache WHERE cache_key = $1 AND expires_at > now()`,
	"set_cached_stats": `INSERT INTO styles.stat_cache (id, cache_key, table_name, data, cached_at, expires_at) VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (cache_key) DO UPDATE SET data = $4, cached_at = $5, expires_at = $6`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need
// direct query access (e.g. column statistics).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE SCHEMA IF NOT EXISTS styles;

CREATE TABLE IF NOT EXISTS styles.style_metadata (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	workspace       TEXT NOT NULL,
	table_name      TEXT NOT NULL,
	color_by        TEXT NOT NULL,
	geometry_kind   TEXT,
	method          TEXT NOT NULL,
	num_classes     INTEGER NOT NULL DEFAULT 5,
	palette         TEXT NOT NULL DEFAULT 'YlOrRd',
	custom_colors   JSONB,
	fill_opacity    DOUBLE PRECISION NOT NULL DEFAULT 0.7,
	stroke_color    TEXT NOT NULL DEFAULT '#333333',
	stroke_width    DOUBLE PRECISION NOT NULL DEFAULT 1.0,
	manual_breaks   JSONB,
	generated_name  TEXT,
	document        JSONB,
	min_value       DOUBLE PRECISION,
	max_value       DOUBLE PRECISION,
	distinct_values JSONB,
	data_type       TEXT,
	last_generated  TIMESTAMPTZ,
	is_active       BOOLEAN NOT NULL DEFAULT true,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (workspace, table_name, color_by)
);

CREATE INDEX IF NOT EXISTS idx_style_metadata_table ON styles.style_metadata(table_name);
CREATE INDEX IF NOT EXISTS idx_style_metadata_active ON styles.style_metadata(is_active);

CREATE TABLE IF NOT EXISTS styles.style_audit_log (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	style_id      TEXT NOT NULL REFERENCES styles.style_metadata(id) ON DELETE CASCADE,
	action        TEXT NOT NULL,
	version       INTEGER NOT NULL,
	document      JSONB,
	status        TEXT NOT NULL,
	error_message TEXT,
	actor         TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_style_audit_style_id ON styles.style_audit_log(style_id);
CREATE INDEX IF NOT EXISTS idx_style_audit_created ON styles.style_audit_log(style_id, created_at DESC);

CREATE TABLE IF NOT EXISTS styles.stat_cache (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	cache_key  TEXT NOT NULL UNIQUE,
	table_name TEXT NOT NULL,
	data       JSONB NOT NULL,
	cached_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_stat_cache_table ON styles.stat_cache(table_name);
CREATE INDEX IF NOT EXISTS idx_stat_cache_expires_at ON styles.stat_cache(expires_at);
`

// styleColumns is the canonical column list shared by every style query.
const styleColumns = `id, workspace, table_name, color_by, geometry_kind, method, num_classes, palette, custom_colors, fill_opacity, stroke_color, stroke_width, manual_breaks, generated_name, document, min_value, max_value, distinct_values, data_type, last_generated, is_active, created_at, updated_at`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateStyle(ctx context.Context, sm *model.StyleMetadata) error {
	if sm.ID == "" {
		sm.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	sm.CreatedAt = now
	sm.UpdatedAt = now
	sm.IsActive = true

	customColors, err := marshalNullable(sm.CustomColors)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal custom colors")
	}
	manualBreaks, err := marshalNullable(sm.ManualBreaks)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal manual breaks")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO styles.style_metadata
		 (id, workspace, table_name, color_by, geometry_kind, method, num_classes, palette, custom_colors, fill_opacity, stroke_color, stroke_width, manual_breaks, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 ON CONFLICT (workspace, table_name, color_by) DO UPDATE SET
		   geometry_kind = $5, method = $6, num_classes = $7, palette = $8,
		   custom_colors = $9, fill_opacity = $10, stroke_color = $11,
		   stroke_width = $12, manual_breaks = $13, updated_at = $16`,
		sm.ID, sm.Workspace, sm.TableName, sm.ColorBy, nullString(string(sm.GeometryKind)),
		string(sm.Method), sm.NumClasses, sm.Palette, customColors,
		sm.FillOpacity, sm.StrokeColor, sm.StrokeWidth, manualBreaks,
		sm.IsActive, now, now,
	)
	return eris.Wrap(err, "postgres: insert style")
}

func (s *PostgresStore) GetStyle(ctx context.Context, workspace, tableName, colorBy string) (*model.StyleMetadata, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+styleColumns+` FROM styles.style_metadata
		 WHERE workspace = $1 AND table_name = $2 AND color_by = $3`,
		workspace, tableName, colorBy,
	)
	sm, err := scanStyle(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get style")
	}
	return sm, nil
}

func (s *PostgresStore) GetStyleByID(ctx context.Context, id string) (*model.StyleMetadata, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+styleColumns+` FROM styles.style_metadata WHERE id = $1`,
		id,
	)
	sm, err := scanStyle(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get style %s", id)
	}
	return sm, nil
}

func (s *PostgresStore) ListStyles(ctx context.Context, filter StyleFilter) ([]model.StyleMetadata, error) {
	query := `SELECT ` + styleColumns + ` FROM styles.style_metadata WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Workspace != "" {
		query += fmt.Sprintf(` AND workspace = $%d`, argIdx)
		args = append(args, filter.Workspace)
		argIdx++
	}
	if filter.TableName != "" {
		query += fmt.Sprintf(` AND table_name = $%d`, argIdx)
		args = append(args, filter.TableName)
		argIdx++
	}
	if filter.ActiveOnly {
		query += ` AND is_active`
	}
	query += ` ORDER BY table_name, color_by`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list styles")
	}
	defer rows.Close()

	var styles []model.StyleMetadata
	for rows.Next() {
		sm, err := scanStyle(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan style")
		}
		styles = append(styles, *sm)
	}
	return styles, eris.Wrap(rows.Err(), "postgres: list styles iterate")
}

func (s *PostgresStore) UpdateGenerated(ctx context.Context, id string, info *model.GeneratedInfo) error {
	distinct, err := marshalNullable(info.DistinctValues)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal distinct values")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE styles.style_metadata
		 SET generated_name = $1, document = $2, geometry_kind = $3, min_value = $4,
		     max_value = $5, distinct_values = $6, data_type = $7, last_generated = $8,
		     updated_at = $8
		 WHERE id = $9`,
		info.StyleName, []byte(info.Document), nullString(string(info.GeometryKind)),
		info.MinValue, info.MaxValue, distinct, info.DataType, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update generated %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("style not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) DeleteStyle(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM styles.style_metadata WHERE id = $1`,
		id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete style %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("style not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) AppendAudit(ctx context.Context, entry *model.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	entry.CreatedAt = time.Now().UTC()

	var doc []byte
	if len(entry.Document) > 0 {
		doc = []byte(entry.Document)
	}

	err := s.pool.QueryRow(ctx,
		`INSERT INTO styles.style_audit_log (id, style_id, action, version, document, status, error_message, actor, created_at)
		 VALUES ($1, $2, $3,
		   (SELECT COALESCE(MAX(version), 0) + 1 FROM styles.style_audit_log WHERE style_id = $2),
		   $4, $5, $6, $7, $8)
		 RETURNING version`,
		entry.ID, entry.StyleID, entry.Action, doc, entry.Status,
		nullString(entry.ErrorMessage), nullString(entry.Actor), entry.CreatedAt,
	).Scan(&entry.Version)
	return eris.Wrap(err, "postgres: append audit")
}

func (s *PostgresStore) ListAudit(ctx context.Context, styleID string, limit int) ([]model.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, style_id, action, version, document, status, error_message, actor, created_at
		 FROM styles.style_audit_log
		 WHERE style_id = $1
		 ORDER BY version DESC LIMIT $2`,
		styleID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list audit")
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		var doc []byte
		var errMsg, actor *string
		if err := rows.Scan(&e.ID, &e.StyleID, &e.Action, &e.Version,
			&doc, &e.Status, &errMsg, &actor, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan audit entry")
		}
		if doc != nil {
			e.Document = json.RawMessage(doc)
		}
		if errMsg != nil {
			e.ErrorMessage = *errMsg
		}
		if actor != nil {
			e.Actor = *actor
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list audit iterate")
}

func (s *PostgresStore) GetCachedStats(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM styles.stat_cache
		 WHERE cache_key = $1 AND expires_at > now()`,
		key,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get cached stats")
	}
	return data, nil
}

func (s *PostgresStore) SetCachedStats(ctx context.Context, key, tableName string, data []byte, ttl time.Duration) error {
	id := uuid.New().String()
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	_, err := s.pool.Exec(ctx,
		`INSERT INTO styles.stat_cache (id, cache_key, table_name, data, cached_at, expires_at) VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (cache_key) DO UPDATE SET data = $4, cached_at = $5, expires_at = $6`,
		id, key, tableName, data, now, expiresAt,
	)
	return eris.Wrap(err, "postgres: set cached stats")
}

func (s *PostgresStore) InvalidateStats(ctx context.Context, tableName string) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM styles.stat_cache WHERE table_name = $1`,
		tableName,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: invalidate stats %s", tableName)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) DeleteExpiredStats(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM styles.stat_cache WHERE expires_at <= now()`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired stats")
	}
	return int(tag.RowsAffected()), nil
}

// rowScanner is satisfied by pgx.Row, pgx.Rows, *sql.Row, and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanStyle reads one style_metadata row in styleColumns order.
func scanStyle(row rowScanner) (*model.StyleMetadata, error) {
	var sm model.StyleMetadata
	var geomKind, generatedName, dataType *string
	var customColors, manualBreaks, doc, distinct []byte

	err := row.Scan(
		&sm.ID, &sm.Workspace, &sm.TableName, &sm.ColorBy, &geomKind,
		&sm.Method, &sm.NumClasses, &sm.Palette, &customColors,
		&sm.FillOpacity, &sm.StrokeColor, &sm.StrokeWidth, &manualBreaks,
		&generatedName, &doc, &sm.MinValue, &sm.MaxValue, &distinct,
		&dataType, &sm.LastGenerated, &sm.IsActive, &sm.CreatedAt, &sm.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if geomKind != nil {
		sm.GeometryKind = model.GeometryKind(*geomKind)
	}
	if generatedName != nil {
		sm.GeneratedName = *generatedName
	}
	if dataType != nil {
		sm.DataType = *dataType
	}
	if doc != nil {
		sm.Document = json.RawMessage(doc)
	}
	if customColors != nil {
		if err := json.Unmarshal(customColors, &sm.CustomColors); err != nil {
			return nil, eris.Wrap(err, "unmarshal custom colors")
		}
	}
	if manualBreaks != nil {
		if err := json.Unmarshal(manualBreaks, &sm.ManualBreaks); err != nil {
			return nil, eris.Wrap(err, "unmarshal manual breaks")
		}
	}
	if distinct != nil {
		if err := json.Unmarshal(distinct, &sm.DistinctValues); err != nil {
			return nil, eris.Wrap(err, "unmarshal distinct values")
		}
	}
	return &sm, nil
}

// marshalNullable marshals a slice to JSON, returning nil (SQL NULL) for
// empty slices.
func marshalNullable[T any](v []T) ([]byte, error) {
	if len(v) == 0 {
		return nil, nil
	}
	return json.Marshal(v)
}

// nullString maps "" to SQL NULL.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/stylegen/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS style_metadata (
	id              TEXT PRIMARY KEY,
	workspace       TEXT NOT NULL,
	table_name      TEXT NOT NULL,
	color_by        TEXT NOT NULL,
	geometry_kind   TEXT,
	method          TEXT NOT NULL,
	num_classes     INTEGER NOT NULL DEFAULT 5,
	palette         TEXT NOT NULL DEFAULT 'YlOrRd',
	custom_colors   TEXT,
	fill_opacity    REAL NOT NULL DEFAULT 0.7,
	stroke_color    TEXT NOT NULL DEFAULT '#333333',
	stroke_width    REAL NOT NULL DEFAULT 1.0,
	manual_breaks   TEXT,
	generated_name  TEXT,
	document        TEXT,
	min_value       REAL,
	max_value       REAL,
	distinct_values TEXT,
	data_type       TEXT,
	last_generated  DATETIME,
	is_active       INTEGER NOT NULL DEFAULT 1,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (workspace, table_name, color_by)
);

CREATE INDEX IF NOT EXISTS idx_style_metadata_table ON style_metadata(table_name);
CREATE INDEX IF NOT EXISTS idx_style_metadata_active ON style_metadata(is_active);

CREATE TABLE IF NOT EXISTS style_audit_log (
	id            TEXT PRIMARY KEY,
	style_id      TEXT NOT NULL REFERENCES style_metadata(id) ON DELETE CASCADE,
	action        TEXT NOT NULL,
	version       INTEGER NOT NULL,
	document      TEXT,
	status        TEXT NOT NULL,
	error_message TEXT,
	actor         TEXT,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_style_audit_style_id ON style_audit_log(style_id);

CREATE TABLE IF NOT EXISTS stat_cache (
	id         TEXT PRIMARY KEY,
	cache_key  TEXT NOT NULL UNIQUE,
	table_name TEXT NOT NULL,
	data       TEXT NOT NULL,
	cached_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	expires_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_stat_cache_table ON stat_cache(table_name);
CREATE INDEX IF NOT EXISTS idx_stat_cache_expires_at ON stat_cache(expires_at);
`

const sqliteStyleColumns = `id, workspace, table_name, color_by, geometry_kind, method, num_classes, palette, custom_colors, fill_opacity, stroke_color, stroke_width, manual_breaks, generated_name, document, min_value, max_value, distinct_values, data_type, last_generated, is_active, created_at, updated_at`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateStyle(ctx context.Context, sm *model.StyleMetadata) error {
	if sm.ID == "" {
		sm.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	sm.CreatedAt = now
	sm.UpdatedAt = now
	sm.IsActive = true

	customColors, err := marshalNullable(sm.CustomColors)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal custom colors")
	}
	manualBreaks, err := marshalNullable(sm.ManualBreaks)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal manual breaks")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO style_metadata
		 (id, workspace, table_name, color_by, geometry_kind, method, num_classes, palette, custom_colors, fill_opacity, stroke_color, stroke_width, manual_breaks, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (workspace, table_name, color_by) DO UPDATE SET
		   geometry_kind = excluded.geometry_kind, method = excluded.method,
		   num_classes = excluded.num_classes, palette = excluded.palette,
		   custom_colors = excluded.custom_colors, fill_opacity = excluded.fill_opacity,
		   stroke_color = excluded.stroke_color, stroke_width = excluded.stroke_width,
		   manual_breaks = excluded.manual_breaks, updated_at = excluded.updated_at`,
		sm.ID, sm.Workspace, sm.TableName, sm.ColorBy, nullString(string(sm.GeometryKind)),
		string(sm.Method), sm.NumClasses, sm.Palette, customColors,
		sm.FillOpacity, sm.StrokeColor, sm.StrokeWidth, manualBreaks,
		sm.IsActive, now, now,
	)
	return eris.Wrap(err, "sqlite: insert style")
}

func (s *SQLiteStore) GetStyle(ctx context.Context, workspace, tableName, colorBy string) (*model.StyleMetadata, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteStyleColumns+` FROM style_metadata
		 WHERE workspace = ? AND table_name = ? AND color_by = ?`,
		workspace, tableName, colorBy,
	)
	sm, err := scanStyle(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: get style")
	}
	return sm, nil
}

func (s *SQLiteStore) GetStyleByID(ctx context.Context, id string) (*model.StyleMetadata, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteStyleColumns+` FROM style_metadata WHERE id = ?`,
		id,
	)
	sm, err := scanStyle(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get style %s", id)
	}
	return sm, nil
}

func (s *SQLiteStore) ListStyles(ctx context.Context, filter StyleFilter) ([]model.StyleMetadata, error) {
	query := `SELECT ` + sqliteStyleColumns + ` FROM style_metadata WHERE 1=1`
	var args []any

	if filter.Workspace != "" {
		query += ` AND workspace = ?`
		args = append(args, filter.Workspace)
	}
	if filter.TableName != "" {
		query += ` AND table_name = ?`
		args = append(args, filter.TableName)
	}
	if filter.ActiveOnly {
		query += ` AND is_active = 1`
	}
	query += ` ORDER BY table_name, color_by`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list styles")
	}
	defer rows.Close()

	var styles []model.StyleMetadata
	for rows.Next() {
		sm, err := scanStyle(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan style")
		}
		styles = append(styles, *sm)
	}
	return styles, eris.Wrap(rows.Err(), "sqlite: list styles iterate")
}

func (s *SQLiteStore) UpdateGenerated(ctx context.Context, id string, info *model.GeneratedInfo) error {
	distinct, err := marshalNullable(info.DistinctValues)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal distinct values")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE style_metadata
		 SET generated_name = ?, document = ?, geometry_kind = ?, min_value = ?,
		     max_value = ?, distinct_values = ?, data_type = ?, last_generated = ?,
		     updated_at = ?
		 WHERE id = ?`,
		info.StyleName, string(info.Document), nullString(string(info.GeometryKind)),
		info.MinValue, info.MaxValue, distinct, info.DataType,
		time.Now().UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update generated %s", id)
	}
	return checkRowsAffected(res, "style", id)
}

func (s *SQLiteStore) DeleteStyle(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM style_metadata WHERE id = ?`,
		id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete style %s", id)
	}
	return checkRowsAffected(res, "style", id)
}

func (s *SQLiteStore) AppendAudit(ctx context.Context, entry *model.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	entry.CreatedAt = time.Now().UTC()

	var doc *string
	if len(entry.Document) > 0 {
		d := string(entry.Document)
		doc = &d
	}

	err := s.db.QueryRowContext(ctx,
		`INSERT INTO style_audit_log (id, style_id, action, version, document, status, error_message, actor, created_at)
		 VALUES (?, ?, ?,
		   (SELECT COALESCE(MAX(version), 0) + 1 FROM style_audit_log WHERE style_id = ?),
		   ?, ?, ?, ?, ?)
		 RETURNING version`,
		entry.ID, entry.StyleID, entry.Action, entry.StyleID, doc, entry.Status,
		nullString(entry.ErrorMessage), nullString(entry.Actor), entry.CreatedAt,
	).Scan(&entry.Version)
	return eris.Wrap(err, "sqlite: append audit")
}

func (s *SQLiteStore) ListAudit(ctx context.Context, styleID string, limit int) ([]model.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, style_id, action, version, document, status, error_message, actor, created_at
		 FROM style_audit_log
		 WHERE style_id = ?
		 ORDER BY version DESC LIMIT ?`,
		styleID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list audit")
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		var doc []byte
		var errMsg, actor *string
		if err := rows.Scan(&e.ID, &e.StyleID, &e.Action, &e.Version,
			&doc, &e.Status, &errMsg, &actor, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan audit entry")
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
	return entries, eris.Wrap(rows.Err(), "sqlite: list audit iterate")
}

func (s *SQLiteStore) GetCachedStats(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM stat_cache
		 WHERE cache_key = ? AND expires_at > datetime('now')`,
		key,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: get cached stats")
	}
	return data, nil
}

func (s *SQLiteStore) SetCachedStats(ctx context.Context, key, tableName string, data []byte, ttl time.Duration) error {
	id := uuid.New().String()
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stat_cache (id, cache_key, table_name, data, cached_at, expires_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (cache_key) DO UPDATE SET data = excluded.data, cached_at = excluded.cached_at, expires_at = excluded.expires_at`,
		id, key, tableName, string(data), now, expiresAt,
	)
	return eris.Wrap(err, "sqlite: set cached stats")
}

func (s *SQLiteStore) InvalidateStats(ctx context.Context, tableName string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM stat_cache WHERE table_name = ?`,
		tableName,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: invalidate stats %s", tableName)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return int(n), nil
}

func (s *SQLiteStore) DeleteExpiredStats(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM stat_cache WHERE expires_at <= datetime('now')`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired stats")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return int(n), nil
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

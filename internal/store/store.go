package store

import (
	"context"
	"time"

	"github.com/sells-group/stylegen/internal/model"
)

// StyleFilter specifies criteria for listing style metadata.
type StyleFilter struct {
	Workspace  string `json:"workspace,omitempty"`
	TableName  string `json:"table_name,omitempty"`
	ActiveOnly bool   `json:"active_only,omitempty"`
	Limit      int    `json:"limit,omitempty"`
	Offset     int    `json:"offset,omitempty"`
}

// Store defines the persistence interface for style metadata, the audit
// log, and the column statistics cache.
type Store interface {
	// Style metadata
	CreateStyle(ctx context.Context, sm *model.StyleMetadata) error
	GetStyle(ctx context.Context, workspace, tableName, colorBy string) (*model.StyleMetadata, error)
	GetStyleByID(ctx context.Context, id string) (*model.StyleMetadata, error)
	ListStyles(ctx context.Context, filter StyleFilter) ([]model.StyleMetadata, error)
	UpdateGenerated(ctx context.Context, id string, info *model.GeneratedInfo) error
	DeleteStyle(ctx context.Context, id string) error

	// Audit log. AppendAudit assigns the next per-style version and writes
	// it back onto the entry.
	AppendAudit(ctx context.Context, entry *model.AuditEntry) error
	ListAudit(ctx context.Context, styleID string, limit int) ([]model.AuditEntry, error)

	// Statistics cache
	GetCachedStats(ctx context.Context, key string) ([]byte, error)
	SetCachedStats(ctx context.Context, key, tableName string, data []byte, ttl time.Duration) error
	InvalidateStats(ctx context.Context, tableName string) (int, error)
	DeleteExpiredStats(ctx context.Context) (int, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// Package store persists regulation records and the append-only audit log.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/petvoyage/regsync/internal/model"
)

// IdentityFields are the record fields owned by hand curation. The publisher
// strips them from every patch so a pipeline run can never overwrite them.
var IdentityFields = []string{"natural_key", "slug", "display_name", "created_at", "updated_at"}

// Store defines the persistence interface for the ingestion pipeline.
type Store interface {
	// GetRecord returns the record for a natural key, or nil if none exists.
	GetRecord(ctx context.Context, naturalKey string) (*model.Record, error)

	// UpsertRecord applies a partial-update patch keyed by the document's
	// natural key, creating the record on first publish.
	UpsertRecord(ctx context.Context, doc *model.Document, patch map[string]any) (*model.PublishResult, error)

	// InsertAudit appends an audit record and returns its id. Audit records
	// are never mutated after write.
	InsertAudit(ctx context.Context, rec *model.AuditRecord) (string, error)

	// FindLatestAudit returns the most recent audit record for a natural
	// key, or nil if none exists.
	FindLatestAudit(ctx context.Context, naturalKey string) (*model.AuditRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Open creates a Store for the configured driver.
func Open(ctx context.Context, driver, dsn string, poolCfg *PoolConfig) (Store, error) {
	switch driver {
	case "postgres":
		return NewPostgres(ctx, dsn, poolCfg)
	case "sqlite":
		return NewSQLite(dsn)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}

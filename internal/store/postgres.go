package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/petvoyage/regsync/internal/db"
	"github.com/petvoyage/regsync/internal/model"
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

// preparedStatements lists queries to prepare on each new connection for the
// most frequently used store operations.
var preparedStatements = map[string]string{
	"get_record":        `SELECT natural_key, domain, slug, display_name, doc, created_at, updated_at FROM records WHERE natural_key = $1`,
	"insert_audit":      `INSERT INTO audit_log (id, natural_key, domain, dry_run, stage, record, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
	"find_latest_audit": `SELECT record FROM audit_log WHERE natural_key = $1 ORDER BY created_at DESC LIMIT 1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

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

const postgresMigration = `
CREATE TABLE IF NOT EXISTS records (
	natural_key  TEXT PRIMARY KEY,
	domain       TEXT NOT NULL,
	slug         TEXT,
	display_name TEXT,
	doc          JSONB NOT NULL DEFAULT '{}',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS audit_log (
	id          TEXT PRIMARY KEY,
	natural_key TEXT NOT NULL,
	domain      TEXT NOT NULL,
	dry_run     BOOLEAN NOT NULL DEFAULT false,
	stage       TEXT NOT NULL,
	record      JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_records_domain ON records(domain);
CREATE INDEX IF NOT EXISTS idx_audit_log_key_created ON audit_log(natural_key, created_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) GetRecord(ctx context.Context, naturalKey string) (*model.Record, error) {
	var r model.Record
	var key, domain string
	var slug, displayName *string
	var docJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT natural_key, domain, slug, display_name, doc, created_at, updated_at FROM records WHERE natural_key = $1`,
		naturalKey,
	).Scan(&key, &domain, &slug, &displayName, &docJSON, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get record %s", naturalKey)
	}

	if err := json.Unmarshal(docJSON, &r.Document); err != nil {
		return nil, eris.Wrapf(err, "postgres: unmarshal record %s", naturalKey)
	}
	// Key columns are authoritative over whatever the doc claims.
	r.NaturalKey = key
	r.Domain = model.Domain(domain)
	if slug != nil {
		r.Slug = *slug
	}
	if displayName != nil {
		r.DisplayName = *displayName
	}
	return &r, nil
}

func (s *PostgresStore) UpsertRecord(ctx context.Context, doc *model.Document, patch map[string]any) (*model.PublishResult, error) {
	docJSON, err := json.Marshal(doc)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal document")
	}
	patchJSON, err := json.Marshal(patch)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal patch")
	}

	now := time.Now().UTC()
	var inserted bool
	err = s.pool.QueryRow(ctx,
		`INSERT INTO records (natural_key, domain, doc, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $4)
		 ON CONFLICT (natural_key) DO UPDATE SET doc = records.doc || $5, updated_at = $4
		 RETURNING (xmax = 0)`,
		doc.NaturalKey, string(doc.Domain), docJSON, now, patchJSON,
	).Scan(&inserted)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: upsert record %s", doc.NaturalKey)
	}

	res := &model.PublishResult{Modified: 1}
	if inserted {
		res.UpsertedKey = doc.NaturalKey
	} else {
		res.Matched = 1
	}
	return res, nil
}

func (s *PostgresStore) InsertAudit(ctx context.Context, rec *model.AuditRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	recJSON, err := json.Marshal(rec)
	if err != nil {
		return "", eris.Wrap(err, "postgres: marshal audit record")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO audit_log (id, natural_key, domain, dry_run, stage, record, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.NaturalKey, string(rec.Domain), rec.DryRun, rec.Stage, recJSON, rec.CreatedAt,
	)
	if err != nil {
		return "", eris.Wrapf(err, "postgres: insert audit for %s", rec.NaturalKey)
	}
	return rec.ID, nil
}

func (s *PostgresStore) FindLatestAudit(ctx context.Context, naturalKey string) (*model.AuditRecord, error) {
	var recJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT record FROM audit_log WHERE natural_key = $1 ORDER BY created_at DESC LIMIT 1`,
		naturalKey,
	).Scan(&recJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: find latest audit %s", naturalKey)
	}

	var rec model.AuditRecord
	if err := json.Unmarshal(recJSON, &rec); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal audit record")
	}
	return &rec, nil
}

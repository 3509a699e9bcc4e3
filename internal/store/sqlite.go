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

	"github.com/petvoyage/regsync/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite, for local and dev
// runs where a Postgres instance is not worth standing up.
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
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS records (
	natural_key  TEXT PRIMARY KEY,
	domain       TEXT NOT NULL,
	slug         TEXT,
	display_name TEXT,
	doc          TEXT NOT NULL DEFAULT '{}',
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS audit_log (
	id          TEXT PRIMARY KEY,
	natural_key TEXT NOT NULL,
	domain      TEXT NOT NULL,
	dry_run     INTEGER NOT NULL DEFAULT 0,
	stage       TEXT NOT NULL,
	record      TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_records_domain ON records(domain);
CREATE INDEX IF NOT EXISTS idx_audit_log_key_created ON audit_log(natural_key, created_at DESC);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetRecord(ctx context.Context, naturalKey string) (*model.Record, error) {
	var r model.Record
	var key, domain string
	var slug, displayName sql.NullString
	var docJSON string

	err := s.db.QueryRowContext(ctx,
		`SELECT natural_key, domain, slug, display_name, doc, created_at, updated_at FROM records WHERE natural_key = ?`,
		naturalKey,
	).Scan(&key, &domain, &slug, &displayName, &docJSON, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get record %s", naturalKey)
	}

	if err := json.Unmarshal([]byte(docJSON), &r.Document); err != nil {
		return nil, eris.Wrapf(err, "sqlite: unmarshal record %s", naturalKey)
	}
	r.NaturalKey = key
	r.Domain = model.Domain(domain)
	r.Slug = slug.String
	r.DisplayName = displayName.String
	return &r, nil
}

func (s *SQLiteStore) UpsertRecord(ctx context.Context, doc *model.Document, patch map[string]any) (*model.PublishResult, error) {
	docJSON, err := json.Marshal(doc)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal document")
	}
	patchJSON, err := json.Marshal(patch)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal patch")
	}

	var exists int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE natural_key = ?`, doc.NaturalKey,
	).Scan(&exists)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: check record %s", doc.NaturalKey)
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (natural_key, domain, doc, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(natural_key) DO UPDATE SET doc = json_patch(records.doc, ?), updated_at = ?`,
		doc.NaturalKey, string(doc.Domain), string(docJSON), now, now, string(patchJSON), now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: upsert record %s", doc.NaturalKey)
	}

	res := &model.PublishResult{Modified: 1}
	if exists == 0 {
		res.UpsertedKey = doc.NaturalKey
	} else {
		res.Matched = 1
	}
	return res, nil
}

func (s *SQLiteStore) InsertAudit(ctx context.Context, rec *model.AuditRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	recJSON, err := json.Marshal(rec)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal audit record")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, natural_key, domain, dry_run, stage, record, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.NaturalKey, string(rec.Domain), rec.DryRun, rec.Stage, string(recJSON), rec.CreatedAt,
	)
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: insert audit for %s", rec.NaturalKey)
	}
	return rec.ID, nil
}

func (s *SQLiteStore) FindLatestAudit(ctx context.Context, naturalKey string) (*model.AuditRecord, error) {
	var recJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM audit_log WHERE natural_key = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		naturalKey,
	).Scan(&recJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: find latest audit %s", naturalKey)
	}

	var rec model.AuditRecord
	if err := json.Unmarshal([]byte(recJSON), &rec); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal audit record")
	}
	return &rec, nil
}

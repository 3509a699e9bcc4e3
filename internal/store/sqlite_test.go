package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petvoyage/regsync/internal/db"
	"github.com/petvoyage/regsync/internal/model"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLite(filepath.Join(t.TempDir(), "regsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLiteUpsertAndGet(t *testing.T) {
	st := newSQLiteStore(t)
	ctx := context.Background()

	missing, err := st.GetRecord(ctx, "Japan")
	require.NoError(t, err)
	assert.Nil(t, missing)

	doc := &model.Document{
		NaturalKey:    "Japan",
		Domain:        model.DomainCountry,
		Summary:       "Strict import regime",
		OfficialLinks: []model.Link{{URL: "https://www.maff.go.jp/aqs"}},
	}
	patch := map[string]any{
		"domain":         "country",
		"summary":        doc.Summary,
		"official_links": []map[string]any{{"url": "https://www.maff.go.jp/aqs"}},
	}

	res, err := st.UpsertRecord(ctx, doc, patch)
	require.NoError(t, err)
	assert.Equal(t, "Japan", res.UpsertedKey)
	assert.Equal(t, int64(0), res.Matched)

	rec, err := st.GetRecord(ctx, "Japan")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Strict import regime", rec.Summary)
	assert.Len(t, rec.OfficialLinks, 1)
}

func TestSQLiteUpsert_PatchPreservesUnpatchedFields(t *testing.T) {
	st := newSQLiteStore(t)
	ctx := context.Background()

	first := &model.Document{
		NaturalKey: "Japan",
		Domain:     model.DomainCountry,
		Summary:    "Original summary",
		Categories: map[string]model.CategoryDetail{
			"dogs": {Description: "180 day process"},
		},
	}
	_, err := st.UpsertRecord(ctx, first, map[string]any{"summary": first.Summary})
	require.NoError(t, err)

	// Second publish patches only the summary; categories must survive.
	second := &model.Document{NaturalKey: "Japan", Domain: model.DomainCountry, Summary: "Updated summary"}
	res, err := st.UpsertRecord(ctx, second, map[string]any{"summary": "Updated summary"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Matched)
	assert.Empty(t, res.UpsertedKey)

	rec, err := st.GetRecord(ctx, "Japan")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Updated summary", rec.Summary)
	assert.Contains(t, rec.Categories, "dogs")
}

// A run that reverses a governing flag to "no" must clear the stale
// dependent detail in the stored document, not just in its own output.
func TestSQLiteUpsert_FlagReversalClearsStoredDetails(t *testing.T) {
	st := newSQLiteStore(t)
	ctx := context.Background()

	first := &model.Document{
		NaturalKey:          "Ireland",
		Domain:              model.DomainCountry,
		Summary:             "Quarantine on arrival.",
		QuarantineRequired:  model.Yes,
		QuarantineDetails:   "Ten days at the border",
		VaccinationRequired: model.Yes,
		Vaccinations:        []string{"rabies"},
	}
	patch, err := db.BuildPatch(first, IdentityFields)
	require.NoError(t, err)
	_, err = st.UpsertRecord(ctx, first, patch)
	require.NoError(t, err)

	reversed := &model.Document{
		NaturalKey:          "Ireland",
		Domain:              model.DomainCountry,
		Summary:             "No quarantine since 2012.",
		QuarantineRequired:  model.No,
		QuarantineDetails:   "",
		VaccinationRequired: model.No,
		Vaccinations:        []string{},
	}
	patch, err = db.BuildPatch(reversed, IdentityFields)
	require.NoError(t, err)
	_, err = st.UpsertRecord(ctx, reversed, patch)
	require.NoError(t, err)

	rec, err := st.GetRecord(ctx, "Ireland")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, model.No, rec.QuarantineRequired)
	assert.Empty(t, rec.QuarantineDetails)
	assert.Equal(t, model.No, rec.VaccinationRequired)
	assert.Empty(t, rec.Vaccinations)
}

func TestSQLiteAuditRoundTrip(t *testing.T) {
	st := newSQLiteStore(t)
	ctx := context.Background()

	none, err := st.FindLatestAudit(ctx, "Japan")
	require.NoError(t, err)
	assert.Nil(t, none)

	older := &model.AuditRecord{
		NaturalKey: "Japan",
		Domain:     model.DomainCountry,
		Stage:      "FAILED",
		Error:      "VALIDATE: validation_failed",
		CreatedAt:  time.Now().UTC().Add(-time.Hour),
	}
	_, err = st.InsertAudit(ctx, older)
	require.NoError(t, err)

	newer := &model.AuditRecord{
		NaturalKey: "Japan",
		Domain:     model.DomainCountry,
		Stage:      "DONE",
		CreatedAt:  time.Now().UTC(),
	}
	newerID, err := st.InsertAudit(ctx, newer)
	require.NoError(t, err)
	assert.NotEmpty(t, newerID)

	latest, err := st.FindLatestAudit(ctx, "Japan")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "DONE", latest.Stage)
	assert.Equal(t, newerID, latest.ID)
}

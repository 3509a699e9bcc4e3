package normalize

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petvoyage/regsync/internal/model"
)

func TestApply_NewRecord(t *testing.T) {
	draft := &model.Draft{
		NaturalKey:          "Japan",
		Domain:              "country",
		Summary:             "Strict import regime",
		Categories:          json.RawMessage(`{"dogs": {"description": "180 day process", "allowed": "yes"}}`),
		OfficialLinks:       []model.Link{{URL: "https://www.maff.go.jp/aqs", Name: "AQS"}},
		QuarantineRequired:  "yes",
		QuarantineDetails:   "Up to 180 days without titer test",
		VaccinationRequired: "yes",
		Vaccinations:        []string{"rabies"},
		PermitRequired:      "not specified",
	}
	findings := &model.ResearchFindings{
		OfficialLinks: []model.Link{{URL: "https://www.maff.go.jp/aqs/english", Name: "AQS English"}},
		SourceDates:   []model.SourceDate{{URL: "https://www.maff.go.jp/aqs", Date: "2026-01-15"}},
	}

	doc := Apply(nil, draft, findings, false)

	assert.Equal(t, "Japan", doc.NaturalKey)
	assert.Equal(t, model.DomainCountry, doc.Domain)
	assert.Equal(t, "Strict import regime", doc.Summary)
	assert.Equal(t, model.Yes, doc.QuarantineRequired)
	assert.Equal(t, "Up to 180 days without titer test", doc.QuarantineDetails)
	assert.Equal(t, model.Yes, doc.VaccinationRequired)
	assert.Equal(t, []string{"rabies"}, doc.Vaccinations)
	assert.Equal(t, model.NotSpecified, doc.PermitRequired)
	assert.Len(t, doc.OfficialLinks, 2)
	require.Len(t, doc.SourceDates, 1)
	assert.Equal(t, "2026-01-15", doc.SourceDates[0].Date)
}

func TestApply_MergesOverExisting(t *testing.T) {
	existing := &model.Record{Document: model.Document{
		NaturalKey: "Japan",
		Domain:     model.DomainCountry,
		Summary:    "Old summary",
		Categories: map[string]model.CategoryDetail{
			"dogs": {Description: "Old rules", Allowed: model.Yes},
		},
		OfficialLinks:       []model.Link{{URL: "https://www.maff.go.jp/aqs", Name: "AQS"}},
		QuarantineRequired:  model.Yes,
		QuarantineDetails:   "180 days",
		VaccinationRequired: model.Yes,
		Vaccinations:        []string{"rabies"},
		PermitRequired:      model.NotSpecified,
	}}
	draft := &model.Draft{
		NaturalKey: "Japan",
		Domain:     "country",
		// Empty summary and not_specified flags must not clobber.
		QuarantineRequired: "not specified",
		Categories:         json.RawMessage(`{"cats": {"description": "Same as dogs"}}`),
	}

	doc := Apply(existing, draft, nil, false)

	assert.Equal(t, "Old summary", doc.Summary)
	assert.Equal(t, model.Yes, doc.QuarantineRequired)
	assert.Equal(t, "180 days", doc.QuarantineDetails)
	assert.Len(t, doc.Categories, 2)
	assert.Equal(t, "Old rules", doc.Categories["dogs"].Description)
	assert.Len(t, doc.OfficialLinks, 1)
}

func TestApply_FlagReversalClearsDependents(t *testing.T) {
	existing := &model.Record{Document: model.Document{
		NaturalKey:          "Ireland",
		Domain:              model.DomainCountry,
		QuarantineRequired:  model.Yes,
		QuarantineDetails:   "Old quarantine details",
		VaccinationRequired: model.Yes,
		Vaccinations:        []string{"rabies"},
		PermitRequired:      model.Yes,
		PermitNotes:         "Permit form 77",
	}}
	draft := &model.Draft{
		NaturalKey:          "Ireland",
		Domain:              "country",
		QuarantineRequired:  "no",
		VaccinationRequired: "no",
		PermitRequired:      "no",
	}

	doc := Apply(existing, draft, nil, false)

	assert.Equal(t, model.No, doc.QuarantineRequired)
	assert.Empty(t, doc.QuarantineDetails)
	assert.Equal(t, model.No, doc.VaccinationRequired)
	assert.Empty(t, doc.Vaccinations)
	assert.Equal(t, model.No, doc.PermitRequired)
	assert.Empty(t, doc.PermitNotes)
}

func TestApply_RelaxedRunAdmitsNonOfficialLinks(t *testing.T) {
	draft := &model.Draft{NaturalKey: "Brazil", Domain: "country"}
	findings := &model.ResearchFindings{
		OfficialLinks:    []model.Link{{URL: "https://www.gov.br/agricultura"}},
		NonOfficialLinks: []model.Link{{URL: "https://petblog.example.com/brazil"}},
	}

	doc := Apply(nil, draft, findings, true)

	require.Len(t, doc.OfficialLinks, 1)
	require.Len(t, doc.NonOfficialLinks, 1)
	assert.Equal(t, "https://petblog.example.com/brazil", doc.NonOfficialLinks[0].URL)
}

func TestApply_StrictRunDropsIncomingNonOfficialLinks(t *testing.T) {
	existing := &model.Record{Document: model.Document{
		NaturalKey:       "Brazil",
		Domain:           model.DomainCountry,
		NonOfficialLinks: []model.Link{{URL: "https://forum.example.com/brazil"}},
	}}
	draft := &model.Draft{
		NaturalKey:       "Brazil",
		Domain:           "country",
		NonOfficialLinks: []model.Link{{URL: "https://petblog.example.com/brazil"}},
	}
	findings := &model.ResearchFindings{
		OfficialLinks:    []model.Link{{URL: "https://www.gov.br/agricultura"}},
		NonOfficialLinks: []model.Link{{URL: "https://tips.example.com/brazil"}},
	}

	doc := Apply(existing, draft, findings, false)

	// Incoming secondary sources are dropped outside relaxed runs; the ones
	// already persisted on the record survive.
	require.Len(t, doc.NonOfficialLinks, 1)
	assert.Equal(t, "https://forum.example.com/brazil", doc.NonOfficialLinks[0].URL)
}

func TestApply_SourceDateLaterWins(t *testing.T) {
	existing := &model.Record{Document: model.Document{
		NaturalKey:  "Japan",
		Domain:      model.DomainCountry,
		SourceDates: []model.SourceDate{{URL: "https://gov.example/a", Date: "2025-01-01"}},
	}}
	draft := &model.Draft{
		NaturalKey:  "Japan",
		Domain:      "country",
		SourceDates: []model.SourceDate{{URL: "https://gov.example/a", Date: "2026-06-01"}},
	}

	doc := Apply(existing, draft, nil, false)
	require.Len(t, doc.SourceDates, 1)
	assert.Equal(t, "2026-06-01", doc.SourceDates[0].Date)
}

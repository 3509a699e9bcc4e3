package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseYesNo(t *testing.T) {
	tests := []struct {
		in   string
		want YesNo
	}{
		{"yes", Yes},
		{"YES", Yes},
		{" Required ", Yes},
		{"true", Yes},
		{"no", No},
		{"Not Required", No},
		{"false", No},
		{"", NotSpecified},
		{"maybe", NotSpecified},
		{"unknown", NotSpecified},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseYesNo(tt.in), "input %q", tt.in)
	}
}

func TestCanonicalKey(t *testing.T) {
	assert.Equal(t, "New Zealand", CanonicalKey(DomainCountry, "new zealand"))
	assert.Equal(t, "France", CanonicalKey(DomainCountry, "  FRANCE "))
	assert.Equal(t, "LH", CanonicalKey(DomainAirline, "lh"))
	assert.Equal(t, "QF", CanonicalKey(DomainAirline, " qf "))
}

func TestDomainValid(t *testing.T) {
	assert.True(t, DomainCountry.Valid())
	assert.True(t, DomainAirline.Valid())
	assert.False(t, Domain("hotel").Valid())
	assert.False(t, Domain("").Valid())
}

func TestDocumentEmpty(t *testing.T) {
	var nilDoc *Document
	assert.True(t, nilDoc.Empty())
	assert.True(t, (&Document{}).Empty())

	withLink := &Document{OfficialLinks: []Link{{URL: "https://gov.example/a"}}}
	assert.False(t, withLink.Empty())

	fallbackOnly := &Document{Categories: map[string]CategoryDetail{
		GeneralCategory: {Description: FallbackDescription},
	}}
	assert.True(t, fallbackOnly.Empty())

	withContent := &Document{Categories: map[string]CategoryDetail{
		"dogs": {Description: "Rabies vaccination required"},
	}}
	assert.False(t, withContent.Empty())

	withRequirements := &Document{Categories: map[string]CategoryDetail{
		"cats": {Description: FallbackDescription, Requirements: []string{"microchip"}},
	}}
	assert.False(t, withRequirements.Empty())
}

func TestRecordSeedURLs(t *testing.T) {
	var nilRec *Record
	assert.Nil(t, nilRec.SeedURLs())

	rec := &Record{Document: Document{
		OfficialLinks: []Link{
			{URL: "https://gov.example/a"},
			{URL: "https://gov.example/b"},
			{URL: "https://gov.example/a"},
			{URL: ""},
		},
	}}
	assert.Equal(t, []string{"https://gov.example/a", "https://gov.example/b"}, rec.SeedURLs())
}

func TestParseDraft_RecordsUnrecognizedKeys(t *testing.T) {
	raw := []byte(`{
		"natural_key": "Japan",
		"summary": "summary",
		"quarantine_required": "Yes",
		"surprise_field": 1,
		"another": "x"
	}`)
	d, err := ParseDraft(raw)
	assert.NoError(t, err)
	assert.Equal(t, "Japan", d.NaturalKey)
	assert.ElementsMatch(t, []string{"surprise_field", "another"}, d.Unrecognized)
}

func TestParseDraft_CleanDraftHasNoUnrecognized(t *testing.T) {
	raw := []byte(`{
		"natural_key": "Japan",
		"domain": "country",
		"summary": "s",
		"official_links": [{"url": "https://gov.example/a", "name": "Ministry"}],
		"vaccination_required": "yes",
		"vaccinations": ["rabies"]
	}`)
	d, err := ParseDraft(raw)
	assert.NoError(t, err)
	assert.Empty(t, d.Unrecognized)
	assert.Len(t, d.OfficialLinks, 1)
}

func TestParseResearchMode(t *testing.T) {
	assert.Equal(t, ModeProvidedOnly, ParseResearchMode("provided_only"))
	assert.Equal(t, ModeDeep, ParseResearchMode(" DEEP "))
	assert.Equal(t, ModeDeepRelaxed, ParseResearchMode("deep_relaxed"))
	assert.Equal(t, ModeSeedFirst, ParseResearchMode(""))
	assert.Equal(t, ModeSeedFirst, ParseResearchMode("bogus"))
}

package model

import "encoding/json"

// Draft is the mutable candidate document produced by the extractor. Flags
// are still loose strings and Categories is still shape-ambiguous; the
// normalizer and validator turn a Draft into a Document.
type Draft struct {
	NaturalKey string `json:"natural_key"`
	Domain     string `json:"domain"`
	Summary    string `json:"summary"`

	// Categories may arrive as a key→detail mapping, a list of pairs, or a
	// bare scalar. The normalizer coerces it into the canonical container
	// exactly once.
	Categories json.RawMessage `json:"categories,omitempty"`

	OfficialLinks    []Link       `json:"official_links,omitempty"`
	NonOfficialLinks []Link       `json:"non_official_links,omitempty"`
	SourceDates      []SourceDate `json:"source_dates,omitempty"`

	QuarantineRequired  string   `json:"quarantine_required,omitempty"`
	QuarantineDetails   string   `json:"quarantine_details,omitempty"`
	VaccinationRequired string   `json:"vaccination_required,omitempty"`
	Vaccinations        []string `json:"vaccinations,omitempty"`
	PermitRequired      string   `json:"permit_required,omitempty"`
	PermitNotes         string   `json:"permit_notes,omitempty"`

	// Unrecognized lists top-level keys in the extractor output that are not
	// part of the schema. The validator rejects drafts carrying any.
	Unrecognized []string `json:"unrecognized,omitempty"`
}

// draftFields enumerates the known top-level keys of the draft schema.
var draftFields = map[string]bool{
	"natural_key":          true,
	"domain":               true,
	"summary":              true,
	"categories":           true,
	"official_links":       true,
	"non_official_links":   true,
	"source_dates":         true,
	"quarantine_required":  true,
	"quarantine_details":   true,
	"vaccination_required": true,
	"vaccinations":         true,
	"permit_required":      true,
	"permit_notes":         true,
}

// ParseDraft decodes a raw JSON object into a Draft, recording any unknown
// top-level keys instead of silently dropping them.
func ParseDraft(raw []byte) (*Draft, error) {
	var d Draft
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, err
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return nil, err
	}
	for k := range keys {
		if !draftFields[k] {
			d.Unrecognized = append(d.Unrecognized, k)
		}
	}
	return &d, nil
}

// AllLinks returns every link in the draft, official and non-official,
// including per-category links once categories are normalized separately.
// Used by the post-merge URL re-scan gate.
func (d *Draft) AllLinks() []Link {
	links := make([]Link, 0, len(d.OfficialLinks)+len(d.NonOfficialLinks))
	links = append(links, d.OfficialLinks...)
	links = append(links, d.NonOfficialLinks...)
	return links
}

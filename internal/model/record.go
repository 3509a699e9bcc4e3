// Package model defines the data types shared across the ingestion pipeline:
// persisted records, research findings, drafts, validated documents, and
// audit records.
package model

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Domain identifies which regulation domain a record belongs to.
type Domain string

const (
	DomainCountry Domain = "country"
	DomainAirline Domain = "airline"
)

// Valid reports whether d is a known domain.
func (d Domain) Valid() bool {
	return d == DomainCountry || d == DomainAirline
}

// YesNo is the canonical two-valued flag with an explicit "not specified"
// default. Loose string flags are coerced once at the ingestion boundary via
// ParseYesNo; downstream code only ever sees this enum.
type YesNo string

const (
	Yes          YesNo = "yes"
	No           YesNo = "no"
	NotSpecified YesNo = "not specified"
)

// ParseYesNo coerces a loose flag value into the YesNo enum. Unrecognized
// values map to NotSpecified rather than erroring; the validator treats
// NotSpecified as "governing flag absent" and leaves dependent fields alone.
func ParseYesNo(s string) YesNo {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "true", "required":
		return Yes
	case "no", "n", "false", "not required":
		return No
	default:
		return NotSpecified
	}
}

// Link is a named URL. Name is the first-seen display text for the URL and is
// preserved across merges.
type Link struct {
	URL  string `json:"url"`
	Name string `json:"name,omitempty"`
}

// SourceDate annotates a source URL with the effective date of the
// information obtained from it.
type SourceDate struct {
	URL  string `json:"url"`
	Date string `json:"date"`
	Note string `json:"note,omitempty"`
}

// CategoryDetail is the canonical per-category container. For countries the
// category key is a pet type (dogs, cats, birds); for airlines it is a
// carriage class (in_cabin, checked_baggage, cargo).
type CategoryDetail struct {
	Description  string   `json:"description"`
	Requirements []string `json:"requirements"`
	Links        []Link   `json:"links"`
	Allowed      YesNo    `json:"allowed"`
}

// FallbackDescription is used when a category entry arrives malformed or as a
// bare scalar and has to be wrapped into the General bucket.
const FallbackDescription = "Not specified"

// GeneralCategory is the bucket malformed or scalar category entries are
// normalized into.
const GeneralCategory = "General"

// Document is a validated regulation document: the only form ever handed to
// the publisher. Field order mirrors the persisted JSONB shape.
type Document struct {
	NaturalKey string                    `json:"natural_key"`
	Domain     Domain                    `json:"domain"`
	Summary    string                    `json:"summary"`
	Categories map[string]CategoryDetail `json:"categories"`

	OfficialLinks    []Link       `json:"official_links"`
	NonOfficialLinks []Link       `json:"non_official_links,omitempty"`
	SourceDates      []SourceDate `json:"source_dates,omitempty"`

	// Dependent fields deliberately carry no omitempty: a flag reversed to
	// "no" has to push its cleared value all the way into the stored
	// document, and a value the patch never mentions can never be cleared.
	QuarantineRequired  YesNo    `json:"quarantine_required"`
	QuarantineDetails   string   `json:"quarantine_details"`
	VaccinationRequired YesNo    `json:"vaccination_required"`
	Vaccinations        []string `json:"vaccinations"`
	PermitRequired      YesNo    `json:"permit_required"`
	PermitNotes         string   `json:"permit_notes"`
}

// Record is the durable entity: a Document plus identity fields owned by
// hand curation, never written by the pipeline.
type Record struct {
	Document

	Slug        string    `json:"slug,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PublishResult reports the outcome of an upsert.
type PublishResult struct {
	Matched     int64  `json:"matched"`
	Modified    int64  `json:"modified"`
	UpsertedKey string `json:"upserted_key,omitempty"`
}

var titleCaser = cases.Title(language.English)

// CanonicalKey normalizes a natural key for lookup and upsert: country names
// are title cased ("new zealand" → "New Zealand"), airline codes upper cased.
func CanonicalKey(domain Domain, key string) string {
	key = strings.TrimSpace(key)
	if domain == DomainAirline {
		return strings.ToUpper(key)
	}
	return titleCaser.String(strings.ToLower(key))
}

// SeedURLs extracts the seed URLs from a record's own official links: the
// previously validated sources research biases toward.
func (r *Record) SeedURLs() []string {
	if r == nil {
		return nil
	}
	seen := make(map[string]bool, len(r.OfficialLinks))
	var urls []string
	for _, l := range r.OfficialLinks {
		if l.URL == "" || seen[l.URL] {
			continue
		}
		seen[l.URL] = true
		urls = append(urls, l.URL)
	}
	return urls
}

// Empty reports whether the document carries no usable content: no populated
// category entry and no official link. The publish gate protects previously
// rich records from being overwritten by an empty one.
func (d *Document) Empty() bool {
	if d == nil {
		return true
	}
	if len(d.OfficialLinks) > 0 {
		return false
	}
	for _, c := range d.Categories {
		if c.Description != "" && c.Description != FallbackDescription {
			return false
		}
		if len(c.Requirements) > 0 || len(c.Links) > 0 {
			return false
		}
	}
	return true
}

// Package validate performs the hard pre-publish checks on a merged document.
// Validation is purely deterministic; the optional LLM explainer only
// annotates a failure, it never decides one.
package validate

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/petvoyage/regsync/internal/model"
	"github.com/petvoyage/regsync/internal/normalize"
	"github.com/petvoyage/regsync/internal/policy"
)

// Error describes one validation failure: the offending field and, where the
// failure concerns a link, the first offending URL.
type Error struct {
	Field  string
	URL    string
	Reason string
}

func (e *Error) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("validation failed on %s: %s (%s)", e.Field, e.Reason, e.URL)
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// Hard runs every deterministic pre-publish check and returns the first
// failure. wantKey is the canonical key the run was started for; the document
// is not allowed to drift from it.
func Hard(doc *model.Document, draft *model.Draft, wantKey string, hosts *policy.HostSet) error {
	if doc == nil {
		return &Error{Field: "document", Reason: "missing"}
	}

	if draft != nil && len(draft.Unrecognized) > 0 {
		return &Error{
			Field:  draft.Unrecognized[0],
			Reason: fmt.Sprintf("unrecognized keys in draft: %s", strings.Join(draft.Unrecognized, ", ")),
		}
	}

	if doc.NaturalKey != wantKey {
		return &Error{
			Field:  "natural_key",
			Reason: fmt.Sprintf("document key %q does not match requested key %q", doc.NaturalKey, wantKey),
		}
	}
	if !doc.Domain.Valid() {
		return &Error{Field: "domain", Reason: fmt.Sprintf("unknown domain %q", doc.Domain)}
	}

	if err := checkFlags(doc); err != nil {
		return err
	}

	if u := firstDuplicate(doc.OfficialLinks); u != "" {
		return &Error{Field: "official_links", URL: u, Reason: "duplicate url"}
	}
	if u := firstDuplicate(doc.NonOfficialLinks); u != "" {
		return &Error{Field: "non_official_links", URL: u, Reason: "duplicate url"}
	}

	// Official links and per-category links must be well formed absolute
	// URLs and clear the allowlist. Malformed URLs are reported as such,
	// before the allowlist pass; a garbage URL has no host to judge.
	// Non-official links are exempt from the allowlist but still have to be
	// well formed.
	if u := firstMalformed(doc.OfficialLinks); u != "" {
		return &Error{Field: "official_links", URL: u, Reason: "malformed url"}
	}
	if u := firstDisallowed(doc.OfficialLinks, hosts); u != "" {
		return &Error{Field: "official_links", URL: u, Reason: "host not in allowed set"}
	}
	for _, name := range normalize.SortedKeys(doc.Categories) {
		cat := doc.Categories[name]
		field := "categories." + name + ".links"
		if u := firstDuplicate(cat.Links); u != "" {
			return &Error{Field: field, URL: u, Reason: "duplicate url"}
		}
		if u := firstMalformed(cat.Links); u != "" {
			return &Error{Field: field, URL: u, Reason: "malformed url"}
		}
		if u := firstDisallowed(cat.Links, hosts); u != "" {
			return &Error{Field: field, URL: u, Reason: "host not in allowed set"}
		}
	}
	for _, l := range doc.NonOfficialLinks {
		if !wellFormed(l.URL) {
			return &Error{Field: "non_official_links", URL: l.URL, Reason: "malformed url"}
		}
	}

	return nil
}

func checkFlags(doc *model.Document) error {
	for _, f := range []model.YesNo{doc.QuarantineRequired, doc.VaccinationRequired, doc.PermitRequired} {
		switch f {
		case model.Yes, model.No, model.NotSpecified:
		default:
			return &Error{Field: "flags", Reason: fmt.Sprintf("uncoerced flag value %q", f)}
		}
	}
	if doc.QuarantineRequired == model.No && doc.QuarantineDetails != "" {
		return &Error{Field: "quarantine_details", Reason: `populated while quarantine_required is "no"`}
	}
	if doc.VaccinationRequired == model.No && len(doc.Vaccinations) > 0 {
		return &Error{Field: "vaccinations", Reason: `populated while vaccination_required is "no"`}
	}
	if doc.PermitRequired == model.No && doc.PermitNotes != "" {
		return &Error{Field: "permit_notes", Reason: `populated while permit_required is "no"`}
	}
	return nil
}

func firstDuplicate(links []model.Link) string {
	seen := make(map[string]bool, len(links))
	for _, l := range links {
		key := normalize.CanonicalURL(l.URL)
		if seen[key] {
			return l.URL
		}
		seen[key] = true
	}
	return ""
}

func firstMalformed(links []model.Link) string {
	for _, l := range links {
		if !wellFormed(l.URL) {
			return l.URL
		}
	}
	return ""
}

func firstDisallowed(links []model.Link, hosts *policy.HostSet) string {
	for _, l := range links {
		if !hosts.Allowed(l.URL) {
			return l.URL
		}
	}
	return ""
}

func wellFormed(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || !u.IsAbs() || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

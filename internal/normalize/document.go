package normalize

import (
	"strings"

	"github.com/petvoyage/regsync/internal/model"
)

// Apply merges a draft and the run's findings over the existing record and
// returns the candidate final document. Merging is deterministic and
// additive: incoming concrete values win over existing ones, not_specified
// and empty values never clobber concrete existing ones, and link sets union.
//
// allowSecondary admits the run's incoming non-official links into the
// document. Only relaxed runs pass true; otherwise secondary sources stay in
// the findings and the audit record, and the document only ever carries links
// whose hosts cleared the allowlist. Non-official links already persisted on
// the existing record survive either way.
func Apply(existing *model.Record, draft *model.Draft, findings *model.ResearchFindings, allowSecondary bool) model.Document {
	var doc model.Document
	if existing != nil {
		doc = existing.Document
	}

	doc.NaturalKey = draft.NaturalKey
	if d := model.Domain(draft.Domain); d.Valid() {
		doc.Domain = d
	}
	if s := strings.TrimSpace(draft.Summary); s != "" {
		doc.Summary = s
	}

	doc.Categories = MergeCategories(doc.Categories, Categories(draft.Categories))

	incoming := draft.OfficialLinks
	var incomingNonOfficial []model.Link
	if allowSecondary {
		incomingNonOfficial = append(incomingNonOfficial, draft.NonOfficialLinks...)
	}
	var dates []model.SourceDate
	dates = append(dates, draft.SourceDates...)
	if findings != nil {
		incoming = append(incoming, findings.OfficialLinks...)
		incoming = append(incoming, findings.ChildLinks...)
		if allowSecondary {
			incomingNonOfficial = append(incomingNonOfficial, findings.NonOfficialLinks...)
		}
		dates = append(dates, findings.SourceDates...)
	}
	doc.OfficialLinks = MergeLinks(doc.OfficialLinks, incoming)
	doc.NonOfficialLinks = MergeLinks(doc.NonOfficialLinks, incomingNonOfficial)
	doc.SourceDates = mergeSourceDates(doc.SourceDates, dates)

	applyFlag(&doc.QuarantineRequired, draft.QuarantineRequired)
	if s := strings.TrimSpace(draft.QuarantineDetails); s != "" {
		doc.QuarantineDetails = s
	}
	applyFlag(&doc.VaccinationRequired, draft.VaccinationRequired)
	doc.Vaccinations = dedupeStrings(append(doc.Vaccinations, draft.Vaccinations...))
	applyFlag(&doc.PermitRequired, draft.PermitRequired)
	if s := strings.TrimSpace(draft.PermitNotes); s != "" {
		doc.PermitNotes = s
	}

	clearDependents(&doc)
	return doc
}

// applyFlag coerces the loose flag once and writes it only when concrete.
func applyFlag(dst *model.YesNo, raw string) {
	if v := model.ParseYesNo(raw); v != model.NotSpecified {
		*dst = v
	}
	if *dst == "" {
		*dst = model.NotSpecified
	}
}

// clearDependents enforces flag consistency: a governing flag of "no" empties
// its dependent fields so a stale detail never survives a reversal. The
// cleared list stays non-nil so it marshals as an explicit empty value and
// overwrites whatever the store holds.
func clearDependents(doc *model.Document) {
	if doc.QuarantineRequired == model.No {
		doc.QuarantineDetails = ""
	}
	if doc.VaccinationRequired == model.No {
		doc.Vaccinations = []string{}
	}
	if doc.PermitRequired == model.No {
		doc.PermitNotes = ""
	}
}

// mergeSourceDates unions by canonical URL; a later date for the same URL
// replaces an earlier one.
func mergeSourceDates(existing, incoming []model.SourceDate) []model.SourceDate {
	var out []model.SourceDate
	index := make(map[string]int)
	add := func(sd model.SourceDate) {
		sd.URL = strings.TrimSpace(sd.URL)
		if sd.URL == "" {
			return
		}
		key := CanonicalURL(sd.URL)
		if i, ok := index[key]; ok {
			if sd.Date > out[i].Date {
				out[i] = sd
			}
			return
		}
		index[key] = len(out)
		out = append(out, sd)
	}
	for _, sd := range existing {
		add(sd)
	}
	for _, sd := range incoming {
		add(sd)
	}
	return out
}

package model

import "strings"

// ResearchMode controls how the researcher gathers sources.
type ResearchMode string

const (
	// ModeProvidedOnly explores only the manual URLs and their same-host
	// child links. No open-ended discovery.
	ModeProvidedOnly ResearchMode = "provided_only"

	// ModeSeedFirst explores seed URLs first and broadens to open-ended
	// discovery only when the seed-derived findings are sparse.
	ModeSeedFirst ResearchMode = "seed_first"

	// ModeDeep always performs both seed-based and open-ended discovery.
	ModeDeep ResearchMode = "deep"

	// ModeDeepRelaxed permits secondary sources as a fallback when official
	// sources are hard to reach. Non-official findings stay in their own
	// bucket and are never promoted to official.
	ModeDeepRelaxed ResearchMode = "deep_relaxed"
)

// ParseResearchMode coerces a loose mode string, defaulting to seed_first.
func ParseResearchMode(s string) ResearchMode {
	switch ResearchMode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeProvidedOnly:
		return ModeProvidedOnly
	case ModeDeep:
		return ModeDeep
	case ModeDeepRelaxed:
		return ModeDeepRelaxed
	default:
		return ModeSeedFirst
	}
}

// ResearchFindings is the ephemeral per-run output of the researcher. It is
// discarded after the run except as archived inside the audit record.
type ResearchFindings struct {
	OfficialLinks    []Link       `json:"official_links"`
	ChildLinks       []Link       `json:"child_links,omitempty"`
	NonOfficialLinks []Link       `json:"non_official_links,omitempty"`
	SourceDates      []SourceDate `json:"source_dates,omitempty"`
	Notes            string       `json:"notes,omitempty"`
	Warnings         []string     `json:"warnings,omitempty"`

	// Synthetic marks findings fabricated from a caller-supplied baseline
	// document on the refine fast path; no fresh research was performed.
	Synthetic bool `json:"synthetic,omitempty"`
}

// HasSources reports whether the findings contain at least one usable link.
// Non-official links count only because deep_relaxed explicitly permits them
// as fallback; they still land in their own bucket downstream.
func (f *ResearchFindings) HasSources() bool {
	if f == nil {
		return false
	}
	return len(f.OfficialLinks) > 0 || len(f.ChildLinks) > 0 || len(f.NonOfficialLinks) > 0
}

// ContentLength approximates how much findings text research produced; the
// seed_first mode uses it to decide whether to broaden.
func (f *ResearchFindings) ContentLength() int {
	if f == nil {
		return 0
	}
	n := len(f.Notes)
	for _, s := range f.SourceDates {
		n += len(s.Note)
	}
	return n
}

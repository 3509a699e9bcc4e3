package model

import "time"

// AuditRecord is the immutable, append-only record of one pipeline run. One
// is written per terminal transition, success or failure, with whatever
// partial artifacts exist at that point.
type AuditRecord struct {
	ID         string `json:"id"`
	NaturalKey string `json:"natural_key"`
	Domain     Domain `json:"domain"`
	DryRun     bool   `json:"dry_run"`

	// Stage is the state the run terminated in.
	Stage string `json:"stage"`

	Findings      *ResearchFindings `json:"findings,omitempty"`
	Draft         *Draft            `json:"draft,omitempty"`
	FinalDocument *Document         `json:"final_document,omitempty"`
	PublishResult *PublishResult    `json:"publish_result,omitempty"`
	Error         string            `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Package extract turns research findings into a structured draft document
// using an LLM, under a strict ground-or-inherit rule: every stated fact must
// come from the findings or the existing record.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/petvoyage/regsync/internal/model"
	"github.com/petvoyage/regsync/internal/resilience"
	"github.com/petvoyage/regsync/pkg/anthropic"
)

const (
	defaultModel     = "claude-sonnet-4-5"
	defaultMaxTokens = 8192
)

// Config tunes the extractor.
type Config struct {
	Model       string
	MaxTokens   int64
	Temperature float64
}

// Request carries everything the extractor may ground a draft on.
type Request struct {
	NaturalKey    string
	Domain        model.Domain
	Findings      *model.ResearchFindings
	Existing      *model.Record
	OperatorNotes string
}

// Extractor produces drafts from findings.
type Extractor struct {
	llm anthropic.Client
	cfg Config
}

// New creates an Extractor.
func New(llm anthropic.Client, cfg Config) *Extractor {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	return &Extractor{llm: llm, cfg: cfg}
}

// Extract asks the LLM to produce a draft grounded in the findings and the
// existing record. The draft keeps the loose shapes the model emits; the
// normalizer and validator deal with those. Structural emptiness is the
// orchestrator's concern, not an error here.
func (e *Extractor) Extract(ctx context.Context, req Request) (*model.Draft, error) {
	prompt, err := e.userPrompt(req)
	if err != nil {
		return nil, err
	}

	msgReq := anthropic.MessageRequest{
		Model:     e.cfg.Model,
		MaxTokens: e.cfg.MaxTokens,
		System:    systemPrompt(req.Domain),
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	}
	if e.cfg.Temperature > 0 {
		msgReq.Temperature = &e.cfg.Temperature
	}

	resp, err := resilience.DoVal(ctx, resilience.RetryConfig{
		MaxAttempts: 3,
		ShouldRetry: resilience.IsTransient,
	}, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return e.llm.CreateMessage(ctx, msgReq)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "extract: create message for %s", req.NaturalKey)
	}
	resp.Usage.LogUsage(e.cfg.Model, "extract")

	raw := anthropic.CleanJSON(resp.Text())
	draft, err := model.ParseDraft([]byte(raw))
	if err != nil {
		return nil, eris.Wrapf(err, "extract: parse draft for %s", req.NaturalKey)
	}

	// The model does not get to rename the record it was asked about.
	draft.NaturalKey = req.NaturalKey
	draft.Domain = string(req.Domain)

	zap.L().Debug("draft extracted",
		zap.String("natural_key", req.NaturalKey),
		zap.Int("official_links", len(draft.OfficialLinks)),
		zap.Int("unrecognized_keys", len(draft.Unrecognized)))
	return draft, nil
}

// IsEmpty reports whether a draft carries no usable content at all: the
// structural emptiness the extract gate trips on.
func IsEmpty(d *model.Draft) bool {
	if d == nil {
		return true
	}
	if strings.TrimSpace(d.Summary) != "" {
		return false
	}
	if len(d.OfficialLinks) > 0 || len(d.NonOfficialLinks) > 0 {
		return false
	}
	cats := strings.TrimSpace(string(d.Categories))
	return cats == "" || cats == "null" || cats == "{}" || cats == "[]"
}

// SyntheticFindings fabricates findings from an already published document so
// a refine run can re-extract without fresh research. The result is marked
// synthetic and carries the document's own links and content as notes.
func SyntheticFindings(doc *model.Document, operatorNotes string) *model.ResearchFindings {
	f := &model.ResearchFindings{Synthetic: true}
	if doc == nil {
		return f
	}
	f.OfficialLinks = append(f.OfficialLinks, doc.OfficialLinks...)
	f.NonOfficialLinks = append(f.NonOfficialLinks, doc.NonOfficialLinks...)
	f.SourceDates = append(f.SourceDates, doc.SourceDates...)

	var b strings.Builder
	b.WriteString("## Current published document\n\n")
	if body, err := json.MarshalIndent(doc, "", "  "); err == nil {
		b.Write(body)
		b.WriteString("\n")
	}
	if operatorNotes != "" {
		fmt.Fprintf(&b, "\n## Operator refinement notes\n\n%s\n", operatorNotes)
	}
	f.Notes = b.String()
	return f
}

func systemPrompt(domain model.Domain) string {
	subject := "pet import regulations for a destination country"
	categories := `pet types such as "dogs", "cats", "birds"`
	if domain == model.DomainAirline {
		subject = "an airline's pet travel policy"
		categories = `carriage classes such as "in_cabin", "checked_baggage", "cargo"`
	}
	return fmt.Sprintf(`You extract %s into JSON.

Rules:
- State only facts present in the research material or the existing record below. Never invent requirements, dates, or links. When the material does not specify something, use "not specified".
- Output exactly one JSON object, no prose, with only these keys:
  "natural_key", "domain", "summary",
  "categories" (object keyed by %s, each value an object with "description", "requirements" (array of strings), "links" (array of {"url","name"}), "allowed" ("yes"/"no"/"not specified")),
  "official_links" (array of {"url","name"}),
  "source_dates" (array of {"url","date","note"}),
  "quarantine_required", "quarantine_details",
  "vaccination_required", "vaccinations" (array of strings),
  "permit_required", "permit_notes".
- Flag fields take "yes", "no" or "not specified". When a flag is "no", leave its detail field empty.
- Do not add keys that are not listed.`, subject, categories)
}

func (e *Extractor) userPrompt(req Request) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Natural key: %s\nDomain: %s\n\n", req.NaturalKey, req.Domain)

	if req.Existing != nil {
		body, err := json.MarshalIndent(req.Existing.Document, "", "  ")
		if err != nil {
			return "", eris.Wrap(err, "extract: marshal existing record")
		}
		fmt.Fprintf(&b, "# Existing record\n\n%s\n\n", body)
	}

	if f := req.Findings; f != nil {
		b.WriteString("# Research findings\n\n")
		writeLinks(&b, "Official sources", f.OfficialLinks)
		writeLinks(&b, "Child pages", f.ChildLinks)
		writeLinks(&b, "Secondary sources", f.NonOfficialLinks)
		if f.Notes != "" {
			fmt.Fprintf(&b, "## Content\n\n%s\n", f.Notes)
		}
	}

	if req.OperatorNotes != "" {
		fmt.Fprintf(&b, "# Operator notes\n\n%s\n", req.OperatorNotes)
	}
	return b.String(), nil
}

func writeLinks(b *strings.Builder, heading string, links []model.Link) {
	if len(links) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", heading)
	for _, l := range links {
		if l.Name != "" {
			fmt.Fprintf(b, "- %s (%s)\n", l.URL, l.Name)
		} else {
			fmt.Fprintf(b, "- %s\n", l.URL)
		}
	}
	b.WriteString("\n")
}

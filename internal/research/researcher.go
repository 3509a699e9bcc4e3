// Package research gathers regulation sources for a natural key: fetching
// seed and manual URLs through the reader, broadening to search-grounded
// discovery when the mode calls for it, and filtering every discovered link
// through the allowed host set.
package research

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/petvoyage/regsync/internal/model"
	"github.com/petvoyage/regsync/internal/normalize"
	"github.com/petvoyage/regsync/internal/policy"
	"github.com/petvoyage/regsync/internal/resilience"
	"github.com/petvoyage/regsync/pkg/perplexity"
)

// Config tunes the researcher.
type Config struct {
	// Model is the Perplexity model used for open-ended discovery.
	Model string

	// MinContentLength is the sparse threshold: seed_first broadens to
	// open-ended discovery when seed-derived findings fall below it.
	MinContentLength int

	// MaxChildLinks caps how many same-host child links a single fetched
	// page may contribute.
	MaxChildLinks int

	// MaxNoteChars caps how much page text a single fetch contributes to
	// the findings notes.
	MaxNoteChars int

	// FetchesPerSecond rate-limits reader fetches.
	FetchesPerSecond float64

	// FetchTimeout bounds a single reader fetch.
	FetchTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MinContentLength <= 0 {
		c.MinContentLength = 1500
	}
	if c.MaxChildLinks <= 0 {
		c.MaxChildLinks = 8
	}
	if c.MaxNoteChars <= 0 {
		c.MaxNoteChars = 6000
	}
	if c.FetchesPerSecond <= 0 {
		c.FetchesPerSecond = 1
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 45 * time.Second
	}
	return c
}

// Request describes one research run.
type Request struct {
	NaturalKey    string
	Domain        model.Domain
	Mode          model.ResearchMode
	ManualURLs    []string
	SeedURLs      []string
	OperatorNotes string
	Hosts         *policy.HostSet
}

// Researcher executes research requests.
type Researcher struct {
	search  perplexity.Client
	reader  Reader
	cfg     Config
	limiter *rate.Limiter
}

// New creates a Researcher.
func New(search perplexity.Client, reader Reader, cfg Config) *Researcher {
	cfg = cfg.withDefaults()
	return &Researcher{
		search:  search,
		reader:  reader,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.FetchesPerSecond), 1),
	}
}

// Research gathers findings for the request according to its mode. It returns
// an error only when research itself broke down (every fetch and the
// discovery call failed); an empty but clean result is returned as findings
// with no links, which the orchestrator gates on.
func (r *Researcher) Research(ctx context.Context, req Request) (*model.ResearchFindings, error) {
	log := zap.L().With(
		zap.String("natural_key", req.NaturalKey),
		zap.String("mode", string(req.Mode)),
	)

	findings := &model.ResearchFindings{}
	var failures []error

	if req.Mode == model.ModeProvidedOnly {
		if len(req.ManualURLs) == 0 {
			findings.Warnings = append(findings.Warnings, "provided_only mode with no manual urls: nothing to research")
			return findings, nil
		}
		if err := r.explore(ctx, req, req.ManualURLs, findings); err != nil {
			failures = append(failures, err)
		}
		return r.finish(req, findings, failures, log)
	}

	seeds := dedupeURLs(append(append([]string{}, req.ManualURLs...), req.SeedURLs...))
	if len(seeds) > 0 {
		if err := r.explore(ctx, req, seeds, findings); err != nil {
			failures = append(failures, err)
		}
	}

	broaden := false
	switch req.Mode {
	case model.ModeDeep, model.ModeDeepRelaxed:
		broaden = true
	default:
		// seed_first broadens only when the seeds produced too little.
		broaden = findings.ContentLength() < r.cfg.MinContentLength
		if broaden {
			log.Info("seed findings sparse, broadening to discovery",
				zap.Int("content_length", findings.ContentLength()),
				zap.Int("threshold", r.cfg.MinContentLength))
		}
	}

	if broaden {
		if err := r.discover(ctx, req, findings); err != nil {
			failures = append(failures, err)
		}
	}

	return r.finish(req, findings, failures, log)
}

// finish dedupes buckets, applies mode warnings, and decides between a
// findings result and a hard research failure.
func (r *Researcher) finish(req Request, f *model.ResearchFindings, failures []error, log *zap.Logger) (*model.ResearchFindings, error) {
	dedupeBuckets(f)

	if req.Mode == model.ModeDeepRelaxed &&
		len(f.OfficialLinks) == 0 && len(f.ChildLinks) == 0 && len(f.NonOfficialLinks) > 0 {
		f.Warnings = append(f.Warnings, "no official sources reachable; relying on secondary sources")
	}

	if !f.HasSources() && len(failures) > 0 {
		return nil, eris.Wrapf(joinErrors(failures), "research: all sources failed for %s", req.NaturalKey)
	}

	log.Info("research complete",
		zap.Int("official_links", len(f.OfficialLinks)),
		zap.Int("child_links", len(f.ChildLinks)),
		zap.Int("non_official_links", len(f.NonOfficialLinks)),
		zap.Int("content_length", f.ContentLength()))
	return f, nil
}

// explore fetches each URL through the reader and buckets the page and its
// outbound links by trust.
func (r *Researcher) explore(ctx context.Context, req Request, urls []string, f *model.ResearchFindings) error {
	var failures []error
	fetched := 0

	for _, u := range dedupeURLs(urls) {
		if err := r.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "research: rate limit wait")
		}

		page, err := r.fetch(ctx, u)
		if err != nil {
			zap.L().Warn("research fetch failed", zap.String("url", u), zap.Error(err))
			f.Warnings = append(f.Warnings, fmt.Sprintf("fetch failed: %s", u))
			failures = append(failures, err)
			continue
		}
		fetched++

		link := model.Link{URL: u, Name: strings.TrimSpace(page.Title)}
		if req.Hosts.Allowed(u) {
			f.OfficialLinks = append(f.OfficialLinks, link)
		} else {
			f.NonOfficialLinks = append(f.NonOfficialLinks, link)
		}

		r.bucketChildLinks(req, u, page.Links, f)

		if content := strings.TrimSpace(page.Content); content != "" {
			f.Notes += fmt.Sprintf("## %s (%s)\n\n%s\n\n",
				page.Title, u, truncate(content, r.cfg.MaxNoteChars))
		}
	}

	if fetched == 0 && len(failures) > 0 {
		return joinErrors(failures)
	}
	return nil
}

func (r *Researcher) fetch(ctx context.Context, u string) (*Page, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, r.cfg.FetchTimeout)
	defer cancel()
	return resilience.DoVal(fetchCtx, resilience.RetryConfig{
		MaxAttempts: 3,
		ShouldRetry: resilience.IsTransient,
	}, func(ctx context.Context) (*Page, error) {
		return r.reader.ReadPage(ctx, u)
	})
}

// bucketChildLinks sorts a fetched page's outbound links: same-host children
// into the child bucket (capped per page), allowed cross-host links into
// official, everything else into non-official.
func (r *Researcher) bucketChildLinks(req Request, pageURL string, links map[string]string, f *model.ResearchFindings) {
	if len(links) == 0 {
		return
	}
	pageHost := hostOf(pageURL)
	children := 0
	for name, raw := range links {
		raw = strings.TrimSpace(raw)
		if raw == "" || !strings.HasPrefix(raw, "http") {
			continue
		}
		if name == raw {
			name = ""
		}
		link := model.Link{URL: raw, Name: strings.TrimSpace(name)}
		switch {
		case hostOf(raw) == pageHost && pageHost != "":
			if children >= r.cfg.MaxChildLinks {
				continue
			}
			children++
			f.ChildLinks = append(f.ChildLinks, link)
		case req.Hosts.Allowed(raw):
			f.OfficialLinks = append(f.OfficialLinks, link)
		default:
			f.NonOfficialLinks = append(f.NonOfficialLinks, link)
		}
	}
}

// discover runs open-ended search-grounded discovery. Outside deep_relaxed
// the search is constrained to the allowed hosts where the API permits it.
func (r *Researcher) discover(ctx context.Context, req Request, f *model.ResearchFindings) error {
	chatReq := perplexity.ChatCompletionRequest{
		Model: r.cfg.Model,
		Messages: []perplexity.Message{
			{Role: "system", Content: discoverySystemPrompt(req.Domain)},
			{Role: "user", Content: discoveryUserPrompt(req)},
		},
		SearchRecencyFilter: "year",
	}
	if req.Mode != model.ModeDeepRelaxed {
		chatReq.SearchDomainFilter = domainFilter(req.Hosts)
	}

	resp, err := resilience.DoVal(ctx, resilience.RetryConfig{
		MaxAttempts: 3,
		ShouldRetry: resilience.IsTransient,
	}, func(ctx context.Context) (*perplexity.ChatCompletionResponse, error) {
		return r.search.ChatCompletion(ctx, chatReq)
	})
	if err != nil {
		f.Warnings = append(f.Warnings, "open-ended discovery failed")
		return eris.Wrap(err, "research: discovery")
	}

	for _, c := range resp.Citations {
		link := model.Link{URL: c}
		if req.Hosts.Allowed(c) {
			f.OfficialLinks = append(f.OfficialLinks, link)
		} else {
			f.NonOfficialLinks = append(f.NonOfficialLinks, link)
		}
	}

	text := resp.Text()
	body, dates := splitSourceDates(text)
	f.SourceDates = append(f.SourceDates, dates...)
	if body != "" {
		f.Notes += "## Discovery summary\n\n" + body + "\n\n"
	}
	return nil
}

// domainFilter converts the host set into a search domain filter, capped at
// the API's limit of 10 entries. An empty set returns nil so search stays
// unconstrained rather than matching nothing.
func domainFilter(hs *policy.HostSet) []string {
	hosts := hs.Hosts()
	if len(hosts) == 0 {
		return nil
	}
	if len(hosts) > 10 {
		hosts = hosts[:10]
	}
	return hosts
}

func discoverySystemPrompt(domain model.Domain) string {
	subject := "government pet import regulations"
	if domain == model.DomainAirline {
		subject = "airline pet travel policies"
	}
	return fmt.Sprintf(`You are a research assistant gathering %s from official sources.
Summarize the regulations you find: quarantine rules, vaccination requirements, permits, and per-category rules.
Prefer primary official sources. After the summary, output a line containing only SOURCES: followed by a JSON array of objects with "url", "date" (ISO date the information is current as of, best effort) and "note" fields.`, subject)
}

func discoveryUserPrompt(req Request) string {
	var b strings.Builder
	switch req.Domain {
	case model.DomainAirline:
		fmt.Fprintf(&b, "Find the official pet travel policy for airline %s.", req.NaturalKey)
	default:
		fmt.Fprintf(&b, "Find the official pet import regulations for %s.", req.NaturalKey)
	}
	if req.OperatorNotes != "" {
		fmt.Fprintf(&b, "\n\nOperator notes: %s", req.OperatorNotes)
	}
	return b.String()
}

// splitSourceDates separates the SOURCES: trailer from the summary body and
// parses it. A malformed trailer is dropped silently; source dates are an
// annotation, never load-bearing.
func splitSourceDates(text string) (body string, dates []model.SourceDate) {
	idx := strings.LastIndex(text, "SOURCES:")
	if idx < 0 {
		return strings.TrimSpace(text), nil
	}
	body = strings.TrimSpace(text[:idx])
	trailer := strings.TrimSpace(text[idx+len("SOURCES:"):])
	trailer = strings.TrimPrefix(trailer, "```json")
	trailer = strings.TrimPrefix(trailer, "```")
	trailer = strings.TrimSuffix(trailer, "```")
	trailer = strings.TrimSpace(trailer)

	var parsed []model.SourceDate
	if err := json.Unmarshal([]byte(trailer), &parsed); err != nil {
		return body, nil
	}
	for _, sd := range parsed {
		if strings.TrimSpace(sd.URL) != "" {
			dates = append(dates, sd)
		}
	}
	return body, dates
}

// dedupeBuckets enforces bucket precedence after all gathering: a URL seen as
// official never also appears as child or non-official, and a child never
// reappears as non-official.
func dedupeBuckets(f *model.ResearchFindings) {
	seen := make(map[string]bool)
	keep := func(links []model.Link) []model.Link {
		var out []model.Link
		for _, l := range links {
			key := normalize.CanonicalURL(l.URL)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, l)
		}
		return out
	}
	f.OfficialLinks = keep(f.OfficialLinks)
	f.ChildLinks = keep(f.ChildLinks)
	f.NonOfficialLinks = keep(f.NonOfficialLinks)
}

func dedupeURLs(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	var out []string
	for _, u := range urls {
		u = strings.TrimSpace(u)
		key := normalize.CanonicalURL(u)
		if u == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, u)
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

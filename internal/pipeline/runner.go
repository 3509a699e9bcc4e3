// Package pipeline orchestrates one ingestion run as an explicit state
// machine: preflight, research, extract, normalize and merge, validate, then
// dry-run or publish. Every terminal transition writes exactly one audit
// record.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/petvoyage/regsync/internal/db"
	"github.com/petvoyage/regsync/internal/extract"
	"github.com/petvoyage/regsync/internal/model"
	"github.com/petvoyage/regsync/internal/normalize"
	"github.com/petvoyage/regsync/internal/policy"
	"github.com/petvoyage/regsync/internal/preflight"
	"github.com/petvoyage/regsync/internal/research"
	"github.com/petvoyage/regsync/internal/store"
	"github.com/petvoyage/regsync/internal/validate"
)

// Config carries the per-stage time budgets.
type Config struct {
	ResearchTimeout time.Duration
	ExtractTimeout  time.Duration
	ValidateTimeout time.Duration
	ExplainTimeout  time.Duration
	PublishTimeout  time.Duration

	// AuditReuseWindow bounds how old an audit record may be for the
	// dry-run reuse fast path.
	AuditReuseWindow time.Duration

	// RecentRunWindow is how far back a prior run for the same key counts
	// as concurrent. Concurrent runs are last-write-wins; a warning is the
	// only arbitration.
	RecentRunWindow time.Duration

	// SkipReachability turns off the preflight reachability probes. Format
	// checks on manual URLs still run.
	SkipReachability bool
}

func (c Config) withDefaults() Config {
	def := func(d *time.Duration, v time.Duration) {
		if *d <= 0 {
			*d = v
		}
	}
	def(&c.ResearchTimeout, 5*time.Minute)
	def(&c.ExtractTimeout, 3*time.Minute)
	def(&c.ValidateTimeout, 30*time.Second)
	def(&c.ExplainTimeout, 30*time.Second)
	def(&c.PublishTimeout, 20*time.Second)
	def(&c.AuditReuseWindow, 24*time.Hour)
	def(&c.RecentRunWindow, 10*time.Minute)
	return c
}

// RunRequest describes one requested run.
type RunRequest struct {
	NaturalKey    string
	Domain        model.Domain
	Mode          model.ResearchMode
	ManualURLs    []string
	OperatorNotes string

	// DryRun runs the full pipeline but stops short of publishing.
	DryRun bool

	// Force overrides the no-sources and empty-draft gates. Preflight and
	// validation failures are never overridable.
	Force bool

	// RefineFromCurrent skips research and re-extracts from the already
	// published document plus the operator notes.
	RefineFromCurrent bool

	// ReuseAudit lets a dry run replay the most recent audited run instead
	// of doing fresh work, when a fresh enough one exists.
	ReuseAudit bool
}

// RunResult is the outcome of a completed run.
type RunResult struct {
	NaturalKey string
	Stage      Stage
	DryRun     bool
	Reused     bool
	Document   *model.Document
	Findings   *model.ResearchFindings

	// Draft is returned even on validation failure so the operator can
	// correct and resubmit it.
	Draft      *model.Draft
	Publish    *model.PublishResult
	Warnings   []string
	AuditID    string
}

// Runner executes runs.
type Runner struct {
	store      store.Store
	checker    *preflight.Checker
	researcher *research.Researcher
	extractor  *extract.Extractor
	explainer  validate.Explainer
	pol        *policy.Policy
	cfg        Config
	sink       ProgressSink
}

// NewRunner wires a Runner from its stage components.
func NewRunner(st store.Store, checker *preflight.Checker, researcher *research.Researcher, extractor *extract.Extractor, pol *policy.Policy, cfg Config) *Runner {
	return &Runner{
		store:      st,
		checker:    checker,
		researcher: researcher,
		extractor:  extractor,
		pol:        pol,
		cfg:        cfg.withDefaults(),
	}
}

// WithExplainer attaches the optional validation explainer.
func (r *Runner) WithExplainer(e validate.Explainer) *Runner {
	r.explainer = e
	return r
}

// WithProgress attaches a progress sink.
func (r *Runner) WithProgress(sink ProgressSink) *Runner {
	r.sink = sink
	return r
}

// runState accumulates the artifacts of one run so the terminal audit record
// can archive whatever exists at the point the run ends.
type runState struct {
	req RunRequest
	key string

	existing *model.Record
	hosts    *policy.HostSet
	findings *model.ResearchFindings
	draft    *model.Draft
	doc      *model.Document
	publish  *model.PublishResult

	result *RunResult
}

// Run executes one run end to end. The returned RunResult is populated even
// on failure, with whatever artifacts and the audit id that were produced.
func (r *Runner) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	key := model.CanonicalKey(req.Domain, req.NaturalKey)
	state := &runState{
		req:    req,
		key:    key,
		result: &RunResult{NaturalKey: key, DryRun: req.DryRun},
	}

	err := r.execute(ctx, state)
	r.finalize(ctx, state, err)
	return state.result, err
}

func (r *Runner) execute(ctx context.Context, s *runState) error {
	req := s.req
	log := zap.L().With(zap.String("natural_key", s.key), zap.String("domain", string(req.Domain)))
	r.step(s, StageStart, "run started")

	if !req.Domain.Valid() {
		return &StageError{
			Stage: StagePreflight,
			Code:  CodePreflightInvalid,
			Field: "domain",
			Err:   eris.Errorf("pipeline: unknown domain %q", req.Domain),
		}
	}

	existing, err := r.store.GetRecord(ctx, s.key)
	if err != nil {
		return eris.Wrapf(err, "pipeline: load record %s", s.key)
	}
	s.existing = existing

	r.warnIfConcurrent(ctx, s, log)

	if req.DryRun && req.ReuseAudit {
		if req.OperatorNotes != "" {
			s.result.Warnings = append(s.result.Warnings, "operator notes supplied; running fresh instead of reusing an audit")
			log.Info("operator notes supplied, skipping audit reuse")
		} else if done := r.tryReuseAudit(ctx, s, log); done {
			return nil
		}
	}

	refine := req.RefineFromCurrent && existing != nil && !existing.Document.Empty()
	var cleaned []string
	if refine {
		log.Info("refining from published document, skipping research")
		s.findings = extract.SyntheticFindings(&existing.Document, req.OperatorNotes)
	} else {
		r.step(s, StagePreflight, "checking manual urls")
		res := r.checker.Check(ctx, req.ManualURLs, !r.cfg.SkipReachability)
		if len(res.InvalidFormat) > 0 {
			return &StageError{
				Stage: StagePreflight,
				Code:  CodePreflightInvalid,
				URLs:  res.InvalidFormat,
				Err:   eris.New("pipeline: manual urls malformed"),
			}
		}
		if len(res.Unreachable) > 0 {
			return &StageError{
				Stage: StagePreflight,
				Code:  CodePreflightUnreachable,
				URLs:  res.Unreachable,
				Err:   eris.New("pipeline: manual urls unreachable"),
			}
		}
		cleaned = res.Cleaned
	}

	s.hosts = policy.NewHostSet(r.pol, req.Domain, existing, cleaned)

	if !refine {
		r.step(s, StageResearch, "gathering sources")
		researchCtx, cancel := context.WithTimeout(ctx, r.cfg.ResearchTimeout)
		findings, err := r.researcher.Research(researchCtx, research.Request{
			NaturalKey:    s.key,
			Domain:        req.Domain,
			Mode:          req.Mode,
			ManualURLs:    cleaned,
			SeedURLs:      existing.SeedURLs(),
			OperatorNotes: req.OperatorNotes,
			Hosts:         s.hosts,
		})
		cancel()
		if err != nil {
			return &StageError{Stage: StageResearch, Code: CodeResearchFailed, Err: err}
		}
		s.findings = findings
		s.result.Warnings = append(s.result.Warnings, findings.Warnings...)

		if !usableSources(req.Mode, findings) {
			if !req.Force {
				return &StageError{
					Stage: StageResearch,
					Code:  CodeResearchNoSources,
					Err:   eris.Errorf("pipeline: no usable sources for %s", s.key),
				}
			}
			s.result.Warnings = append(s.result.Warnings, "forced past no-sources gate")
			log.Warn("forcing past no-sources gate")
		}
	}

	r.step(s, StageExtract, "extracting draft")
	extractCtx, cancel := context.WithTimeout(ctx, r.cfg.ExtractTimeout)
	draft, err := r.extractor.Extract(extractCtx, extract.Request{
		NaturalKey:    s.key,
		Domain:        req.Domain,
		Findings:      s.findings,
		Existing:      existing,
		OperatorNotes: req.OperatorNotes,
	})
	cancel()
	if err != nil {
		return &StageError{
			Stage: StageExtract,
			Code:  CodeExtractFailed,
			Err:   eris.Wrap(err, "pipeline: extract stage"),
		}
	}
	s.draft = draft
	s.result.Draft = draft

	if extract.IsEmpty(draft) {
		if !req.Force {
			return &StageError{
				Stage: StageExtract,
				Code:  CodeExtractEmpty,
				Err:   eris.Errorf("pipeline: extractor produced an empty draft for %s", s.key),
			}
		}
		s.result.Warnings = append(s.result.Warnings, "forced past empty-draft gate")
		log.Warn("forcing past empty-draft gate")
	}

	r.step(s, StageNormalizeMerge, "merging with existing record")
	doc := normalize.Apply(existing, draft, s.findings, req.Mode == model.ModeDeepRelaxed)
	s.doc = &doc
	if doc.Empty() && !req.Force {
		return &StageError{
			Stage: StageNormalizeMerge,
			Code:  CodeExtractEmpty,
			Err:   eris.Errorf("pipeline: merged document for %s carries no content", s.key),
		}
	}

	r.step(s, StageValidate, "validating")
	if verr := validate.Hard(&doc, draft, s.key, s.hosts); verr != nil {
		se := &StageError{Stage: StageValidate, Code: CodeValidationFailed, Err: verr}
		var ve *validate.Error
		if errors.As(verr, &ve) {
			se.Field = ve.Field
			if ve.URL != "" {
				se.URLs = []string{ve.URL}
			}
		}
		r.explain(ctx, s, verr, log)
		return se
	}

	if req.DryRun {
		r.step(s, StageDryRun, "dry run, skipping publish")
		s.result.Stage = StageDryRun
		s.result.Document = &doc
		s.result.Findings = s.findings
		return nil
	}

	r.step(s, StagePublish, "publishing")
	patch, err := db.BuildPatch(&doc, store.IdentityFields)
	if err != nil {
		return &StageError{Stage: StagePublish, Code: CodePublishFailed, Err: err}
	}
	publishCtx, cancel := context.WithTimeout(ctx, r.cfg.PublishTimeout)
	pub, err := r.store.UpsertRecord(publishCtx, &doc, patch)
	cancel()
	if err != nil {
		code := CodePublishFailed
		if errors.Is(err, context.DeadlineExceeded) {
			code = CodePublishTimeout
		}
		return &StageError{Stage: StagePublish, Code: code, Err: err}
	}
	s.publish = pub

	s.result.Stage = StageDone
	s.result.Document = &doc
	s.result.Findings = s.findings
	s.result.Publish = pub
	log.Info("run published",
		zap.Int64("matched", pub.Matched),
		zap.Int64("modified", pub.Modified),
		zap.String("upserted_key", pub.UpsertedKey))
	return nil
}

// usableSources is the no-sources gate. Only deep_relaxed counts secondary
// sources as usable; other modes require at least one official or child link.
func usableSources(mode model.ResearchMode, f *model.ResearchFindings) bool {
	if f == nil {
		return false
	}
	if len(f.OfficialLinks) > 0 || len(f.ChildLinks) > 0 {
		return true
	}
	return mode == model.ModeDeepRelaxed && len(f.NonOfficialLinks) > 0
}

// warnIfConcurrent flags a probably concurrent run on the same key. Runs are
// last-write-wins; merging makes that safe, so this only warns.
func (r *Runner) warnIfConcurrent(ctx context.Context, s *runState, log *zap.Logger) {
	latest, err := r.store.FindLatestAudit(ctx, s.key)
	if err != nil || latest == nil {
		return
	}
	if age := time.Since(latest.CreatedAt); age < r.cfg.RecentRunWindow {
		log.Warn("recent run detected for key, continuing last-write-wins",
			zap.String("audit_id", latest.ID),
			zap.Duration("age", age))
		s.result.Warnings = append(s.result.Warnings, "another run for this key finished recently; last write wins")
	}
}

// tryReuseAudit serves a dry run from the latest audited run when it is fresh
// enough, ended in a clean terminal stage, and carries a final document.
// Returns true when the run was served. Failed runs are never reusable: they
// archive whatever document was in flight when the run died, including ones
// that failed validation.
func (r *Runner) tryReuseAudit(ctx context.Context, s *runState, log *zap.Logger) bool {
	latest, err := r.store.FindLatestAudit(ctx, s.key)
	if err != nil {
		log.Warn("audit lookup failed, running fresh", zap.Error(err))
		return false
	}
	reusable := latest != nil && latest.FinalDocument != nil &&
		(latest.Stage == string(StageDone) || latest.Stage == string(StageDryRun)) &&
		time.Since(latest.CreatedAt) <= r.cfg.AuditReuseWindow
	if !reusable {
		s.result.Warnings = append(s.result.Warnings, "no reusable audit record, running fresh")
		return false
	}

	log.Info("dry run served from audit record", zap.String("audit_id", latest.ID))
	s.findings = latest.Findings
	s.draft = latest.Draft
	s.doc = latest.FinalDocument
	s.result.Stage = StageDryRun
	s.result.Reused = true
	s.result.Document = latest.FinalDocument
	s.result.Findings = latest.Findings
	s.result.Draft = latest.Draft
	return true
}

// explain asks the optional explainer to annotate a validation failure. A
// failing explainer never replaces or masks the primary error.
func (r *Runner) explain(ctx context.Context, s *runState, cause error, log *zap.Logger) {
	if r.explainer == nil || s.doc == nil {
		return
	}
	explainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.ExplainTimeout)
	defer cancel()
	text, err := r.explainer.Explain(explainCtx, s.doc, cause)
	if err != nil {
		log.Warn("validation explainer failed", zap.Error(err))
		return
	}
	s.result.Warnings = append(s.result.Warnings, "validation: "+text)
	log.Info("validation failure explained", zap.String("explanation", text))
}

// finalize records the terminal transition: exactly one audit record per run,
// written even when the run's own context has already expired.
func (r *Runner) finalize(ctx context.Context, s *runState, runErr error) {
	terminal := s.result.Stage
	if runErr != nil {
		terminal = StageFailed
		s.result.Stage = StageFailed
	}
	emit(r.sink, Event{NaturalKey: s.key, Stage: terminal, Message: "run finished"})

	rec := &model.AuditRecord{
		ID:            uuid.NewString(),
		NaturalKey:    s.key,
		Domain:        s.req.Domain,
		DryRun:        s.req.DryRun,
		Stage:         string(terminal),
		Findings:      s.findings,
		Draft:         s.draft,
		FinalDocument: s.doc,
		PublishResult: s.publish,
		CreatedAt:     time.Now().UTC(),
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}

	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	id, err := r.store.InsertAudit(auditCtx, rec)
	if err != nil {
		zap.L().Error("audit write failed", zap.String("natural_key", s.key), zap.Error(err))
		return
	}
	s.result.AuditID = id
}

// step emits a progress event for a newly entered stage.
func (r *Runner) step(s *runState, stage Stage, msg string) {
	zap.L().Debug("stage", zap.String("natural_key", s.key), zap.String("stage", string(stage)))
	emit(r.sink, Event{NaturalKey: s.key, Stage: stage, Message: msg})
}

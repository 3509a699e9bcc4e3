package pipeline

import (
	"errors"
	"fmt"
)

// Stage names a state of the run state machine. Transitions are strictly
// forward; every run terminates in StageDone or StageFailed.
type Stage string

const (
	StageStart          Stage = "START"
	StagePreflight      Stage = "PREFLIGHT"
	StageResearch       Stage = "RESEARCH"
	StageExtract        Stage = "EXTRACT"
	StageNormalizeMerge Stage = "NORMALIZE_MERGE"
	StageValidate       Stage = "VALIDATE"
	StageDryRun         Stage = "DRY_RUN"
	StagePublish        Stage = "PUBLISH"
	StageDone           Stage = "DONE"
	StageFailed         Stage = "FAILED"
)

// FailureCode classifies why a run failed. Codes are stable strings: they end
// up in audit records and operator tooling matches on them.
type FailureCode string

const (
	CodePreflightInvalid     FailureCode = "preflight_invalid"
	CodePreflightUnreachable FailureCode = "preflight_unreachable"
	CodeResearchFailed       FailureCode = "research_failed"
	CodeResearchNoSources    FailureCode = "research_no_sources"
	CodeExtractFailed        FailureCode = "extract_failed"
	CodeExtractEmpty         FailureCode = "extract_empty"
	CodeValidationFailed     FailureCode = "validation_failed"
	CodePublishTimeout       FailureCode = "publish_timeout"
	CodePublishFailed        FailureCode = "publish_failed"
)

// StageError is the failure type every run error surfaces as: which stage
// broke, the failure code, and where applicable the offending URLs or field.
type StageError struct {
	Stage Stage
	Code  FailureCode
	URLs  []string
	Field string
	Err   error
}

func (e *StageError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Stage, e.Code)
	if e.Field != "" {
		msg += fmt.Sprintf(" (field %s)", e.Field)
	}
	if len(e.URLs) > 0 {
		msg += fmt.Sprintf(" (urls %v)", e.URLs)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StageError) Unwrap() error { return e.Err }

// AsStageError unwraps err to a StageError if one is in the chain.
func AsStageError(err error) (*StageError, bool) {
	var se *StageError
	ok := errors.As(err, &se)
	return se, ok
}

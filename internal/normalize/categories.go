// Package normalize coerces ambiguous draft shapes into the canonical
// category container and merges link sets across runs.
package normalize

import (
	"encoding/json"
	"strings"

	"github.com/petvoyage/regsync/internal/model"
)

// Shape tags the representation a raw categories value arrived in. Shape is
// detected exactly once at the ingestion boundary; nothing downstream
// re-sniffs it.
type Shape int

const (
	ShapeEmpty Shape = iota
	ShapeMapping
	ShapePairList
	ShapeScalar
)

// DetectShape classifies a raw categories value.
func DetectShape(raw json.RawMessage) Shape {
	trimmed := strings.TrimSpace(string(raw))
	switch {
	case trimmed == "" || trimmed == "null":
		return ShapeEmpty
	case strings.HasPrefix(trimmed, "{"):
		return ShapeMapping
	case strings.HasPrefix(trimmed, "["):
		return ShapePairList
	default:
		return ShapeScalar
	}
}

// categoryPair is one entry of the list-of-pairs representation.
type categoryPair struct {
	Category string          `json:"category"`
	Name     string          `json:"name"`
	Detail   json.RawMessage `json:"detail"`
}

// Categories coerces any of {key→detail mapping, list of pairs, bare scalar}
// into the canonical map. Malformed entries and bare scalars are wrapped into
// the General bucket with a safe fallback description instead of being
// dropped.
func Categories(raw json.RawMessage) map[string]model.CategoryDetail {
	out := make(map[string]model.CategoryDetail)

	switch DetectShape(raw) {
	case ShapeEmpty:
		return out

	case ShapeMapping:
		var mapping map[string]json.RawMessage
		if err := json.Unmarshal(raw, &mapping); err != nil {
			out[model.GeneralCategory] = scalarDetail(string(raw))
			return out
		}
		for key, detail := range mapping {
			key = strings.TrimSpace(key)
			if key == "" {
				key = model.GeneralCategory
			}
			out[key] = coerceDetail(detail)
		}

	case ShapePairList:
		var pairs []categoryPair
		if err := json.Unmarshal(raw, &pairs); err != nil {
			out[model.GeneralCategory] = scalarDetail(string(raw))
			return out
		}
		for _, p := range pairs {
			key := strings.TrimSpace(p.Category)
			if key == "" {
				key = strings.TrimSpace(p.Name)
			}
			if key == "" {
				key = model.GeneralCategory
			}
			out[key] = coerceDetail(p.Detail)
		}

	case ShapeScalar:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			s = strings.Trim(string(raw), `"`)
		}
		out[model.GeneralCategory] = scalarDetail(s)
	}

	return out
}

// coerceDetail turns a raw detail value into a CategoryDetail. Detail objects
// decode directly; anything else becomes a description in a canonical shell.
func coerceDetail(raw json.RawMessage) model.CategoryDetail {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return scalarDetail("")
	}

	if strings.HasPrefix(trimmed, "{") {
		var d looseDetail
		if err := json.Unmarshal(raw, &d); err == nil {
			return model.CategoryDetail{
				Description:  orFallback(d.Description),
				Requirements: dedupeStrings(d.Requirements),
				Links:        d.Links,
				Allowed:      model.ParseYesNo(d.Allowed),
			}
		}
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		s = trimmed
	}
	return scalarDetail(s)
}

// looseDetail tolerates the loose flag typing drafts arrive with.
type looseDetail struct {
	Description  string       `json:"description"`
	Requirements []string     `json:"requirements"`
	Links        []model.Link `json:"links"`
	Allowed      string       `json:"allowed"`
}

func scalarDetail(s string) model.CategoryDetail {
	return model.CategoryDetail{
		Description: orFallback(strings.TrimSpace(s)),
		Allowed:     model.NotSpecified,
	}
}

func orFallback(s string) string {
	if s == "" {
		return model.FallbackDescription
	}
	return s
}

func dedupeStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[strings.ToLower(s)] {
			continue
		}
		seen[strings.ToLower(s)] = true
		out = append(out, s)
	}
	return out
}

package normalize

import (
	"net/url"
	"sort"
	"strings"

	"github.com/petvoyage/regsync/internal/model"
)

// CanonicalURL reduces a URL to its comparison form: lowercase scheme and
// host, no trailing slash, no fragment. Query strings are preserved since
// government portals frequently key content on them.
func CanonicalURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return strings.TrimRight(strings.TrimSpace(raw), "/")
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	return u.String()
}

// MergeLinks unions existing and incoming link sets. Identity is the
// canonical URL; the first-seen name for a URL wins, except that an empty
// name is filled in by a later non-empty one. Existing order is preserved and
// new links append in first-appearance order, so merging is idempotent.
func MergeLinks(existing, incoming []model.Link) []model.Link {
	var out []model.Link
	index := make(map[string]int)

	add := func(l model.Link) {
		l.URL = strings.TrimSpace(l.URL)
		l.Name = strings.TrimSpace(l.Name)
		if l.URL == "" {
			return
		}
		key := CanonicalURL(l.URL)
		if i, ok := index[key]; ok {
			if out[i].Name == "" && l.Name != "" {
				out[i].Name = l.Name
			}
			return
		}
		index[key] = len(out)
		out = append(out, l)
	}

	for _, l := range existing {
		add(l)
	}
	for _, l := range incoming {
		add(l)
	}
	return out
}

// MergeCategories folds incoming categories over existing ones. Incoming
// descriptions and flags replace existing ones unless they are empty or
// not_specified; requirements and links union.
func MergeCategories(existing, incoming map[string]model.CategoryDetail) map[string]model.CategoryDetail {
	out := make(map[string]model.CategoryDetail, len(existing)+len(incoming))
	for k, v := range existing {
		out[k] = v
	}
	for k, inc := range incoming {
		cur, ok := out[k]
		if !ok {
			out[k] = inc
			continue
		}
		if inc.Description != "" && inc.Description != model.FallbackDescription {
			cur.Description = inc.Description
		}
		if inc.Allowed != model.NotSpecified {
			cur.Allowed = inc.Allowed
		}
		cur.Requirements = dedupeStrings(append(cur.Requirements, inc.Requirements...))
		cur.Links = MergeLinks(cur.Links, inc.Links)
		out[k] = cur
	}
	return out
}

// SortedKeys returns category names in a stable order for logging and tests.
func SortedKeys(m map[string]model.CategoryDetail) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

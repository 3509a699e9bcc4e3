package db

import (
	"encoding/json"

	"github.com/rotisserie/eris"
)

// BuildPatch converts a document into a partial-update patch map. Identity
// and ownership fields listed in strip are removed. Only null values are
// dropped: an explicit empty string or list is a deliberate clear (a reversed
// flag emptying its dependent field) and must reach the stored document,
// while a null means the source never spoke about the field.
func BuildPatch(doc any, strip []string) (map[string]any, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, eris.Wrap(err, "db: marshal patch source")
	}

	var patch map[string]any
	if err := json.Unmarshal(raw, &patch); err != nil {
		return nil, eris.Wrap(err, "db: unmarshal patch source")
	}

	for _, f := range strip {
		delete(patch, f)
	}
	for k, v := range patch {
		if v == nil {
			delete(patch, k)
		}
	}
	return patch, nil
}

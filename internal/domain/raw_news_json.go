package domain

import (
	"encoding/json"

	"gorm.io/datatypes"
)

// rawNewsKeys are the JSON keys bound to RawNewsRecord fields. Any other
// top-level key of an incoming record is a source-provided extra.
var rawNewsKeys = map[string]struct{}{
	"original_link": {},
	"link":          {},
	"title":         {},
	"description":   {},
	"source":        {},
	"published_at":  {},
	"collected_at":  {},
	"extra":         {},
}

// rawNewsFields has the fields of RawNewsRecord without its JSON methods.
type rawNewsFields RawNewsRecord

// UnmarshalJSON decodes the known fields and folds every other top-level key
// into Extra. A key present both at the top level and inside "extra" keeps
// the nested value.
func (r *RawNewsRecord) UnmarshalJSON(data []byte) error {
	var f rawNewsFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for k, raw := range all {
		if _, known := rawNewsKeys[k]; known {
			continue
		}
		if _, nested := f.Extra[k]; nested {
			continue
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		if f.Extra == nil {
			f.Extra = datatypes.JSONMap{}
		}
		f.Extra[k] = v
	}
	*r = RawNewsRecord(f)
	return nil
}

// MarshalJSON writes Extra back out as top-level keys, the shape the record
// arrived in. Extras whose names clash with a field stay under "extra".
func (r RawNewsRecord) MarshalJSON() ([]byte, error) {
	f := rawNewsFields(r)
	var flat map[string]any
	if len(r.Extra) > 0 {
		flat = make(map[string]any, len(r.Extra))
		f.Extra = nil
		for k, v := range r.Extra {
			if _, known := rawNewsKeys[k]; known {
				if f.Extra == nil {
					f.Extra = datatypes.JSONMap{}
				}
				f.Extra[k] = v
				continue
			}
			flat[k] = v
		}
	}

	base, err := json.Marshal(f)
	if err != nil || len(flat) == 0 {
		return base, err
	}

	var out map[string]json.RawMessage
	if err := json.Unmarshal(base, &out); err != nil {
		return nil, err
	}
	for k, v := range flat {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		out[k] = b
	}
	return json.Marshal(out)
}

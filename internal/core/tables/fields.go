package tables

import "github.com/JonMunkholm/storesync/internal/core"

// required declares columns that must be non-null on insert.
func required(names ...string) []core.FieldSpec {
	out := make([]core.FieldSpec, len(names))
	for i, n := range names {
		out[i] = core.FieldSpec{Name: n, Required: true}
	}
	return out
}

// optional declares nullable columns.
func optional(names ...string) []core.FieldSpec {
	out := make([]core.FieldSpec, len(names))
	for i, n := range names {
		out[i] = core.FieldSpec{Name: n}
	}
	return out
}

func fields(groups ...[]core.FieldSpec) []core.FieldSpec {
	var out []core.FieldSpec
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

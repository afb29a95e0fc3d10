package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveIdentity(t *testing.T) {
	keys := []IdentityKey{{"ingreso_id", "sucursal"}, {"codigo"}}

	tests := []struct {
		name    string
		rec     *Record
		wantKey IdentityKey
		wantOK  bool
	}{
		{
			name:    "primary key wins",
			rec:     RecordOf("ingreso_id", 4, "sucursal", "1", "codigo", "X"),
			wantKey: IdentityKey{"ingreso_id", "sucursal"},
			wantOK:  true,
		},
		{
			name:    "falls back when a component is null",
			rec:     RecordOf("ingreso_id", 4, "sucursal", nil, "codigo", "X"),
			wantKey: IdentityKey{"codigo"},
			wantOK:  true,
		},
		{
			name:    "falls back when a component is absent",
			rec:     RecordOf("sucursal", "1", "codigo", "X"),
			wantKey: IdentityKey{"codigo"},
			wantOK:  true,
		},
		{
			name:   "no usable key",
			rec:    RecordOf("sucursal", "1"),
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := ResolveIdentity(tt.rec, keys)
			require.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantKey, id.Key)
		})
	}
}

func TestResolveIdentity_FilterValues(t *testing.T) {
	id, ok := ResolveIdentity(RecordOf("ingreso_id", 4, "sucursal", "1"), []IdentityKey{{"ingreso_id", "sucursal"}})
	require.True(t, ok)

	assert.Equal(t, Filter{
		{Field: "ingreso_id", Value: "4"},
		{Field: "sucursal", Value: "1"},
	}, id.Filter)
	assert.Equal(t, []string{"ingreso_id", "sucursal"}, id.Filter.Fields())
	assert.True(t, id.Contains("sucursal"))
	assert.False(t, id.Contains("codigo"))
}

func TestAllIdentities(t *testing.T) {
	keys := []IdentityKey{{"dni"}, {"id"}, {"email"}}
	rec := RecordOf("dni", "D1", "id", 7)

	ids := AllIdentities(rec, keys)

	require.Len(t, ids, 2)
	assert.Equal(t, IdentityKey{"dni"}, ids[0].Key)
	assert.Equal(t, IdentityKey{"id"}, ids[1].Key)
	assert.Empty(t, AllIdentities(RecordOf("nombre", "x"), keys))
}

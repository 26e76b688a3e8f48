package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeGrant(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "already normal", input: "admin", want: "admin"},
		{name: "upper case", input: "ADMIN", want: "admin"},
		{name: "surrounding space", input: "  read  ", want: "read"},
		{name: "inner spaces", input: "Simons Observatory", want: "simons_observatory"},
		{name: "empty", input: "   ", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeGrant(tt.input))
		})
	}
}

func TestGrantSet_AddRemoveHas(t *testing.T) {
	g := NewGrantSet()

	assert.True(t, g.Add("Admin"))
	assert.False(t, g.Add("admin"), "duplicate after normalization")
	assert.False(t, g.Add(""), "empty grant is ignored")
	assert.True(t, g.Has("ADMIN"))

	assert.True(t, g.Remove("admin"))
	assert.False(t, g.Remove("admin"))
	assert.False(t, g.Has("admin"))
}

func TestGrantSet_Union(t *testing.T) {
	a := NewGrantSet("read", "write")
	b := NewGrantSet("write", "admin")

	u := a.Union(b)
	assert.Equal(t, []string{"admin", "read", "write"}, u.Slice())
	assert.Len(t, a, 2, "union does not mutate receiver")
}

func TestParseGrants(t *testing.T) {
	g := ParseGrants("  read WRITE\tadmin read ")
	assert.Equal(t, "admin read write", g.String())
}

func TestGrantSet_JSON(t *testing.T) {
	data, err := json.Marshal(NewGrantSet("b", "a"))
	require.NoError(t, err)
	assert.JSONEq(t, `["a","b"]`, string(data))

	var g GrantSet
	require.NoError(t, json.Unmarshal([]byte(`["X", "y"]`), &g))
	assert.True(t, g.Has("x"))
	assert.True(t, g.Has("y"))
}

func TestGrantSet_ValueScan(t *testing.T) {
	v, err := NewGrantSet("admin", "read").Value()
	require.NoError(t, err)
	assert.Equal(t, `["admin","read"]`, v)

	tests := []struct {
		name  string
		input any
		want  []string
	}{
		{name: "bytes", input: []byte(`["read"]`), want: []string{"read"}},
		{name: "string", input: `["admin","read"]`, want: []string{"admin", "read"}},
		{name: "nil", input: nil, want: []string{}},
		{name: "empty bytes", input: []byte{}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var g GrantSet
			require.NoError(t, g.Scan(tt.input))
			assert.Equal(t, tt.want, g.Slice())
		})
	}

	var g GrantSet
	assert.Error(t, g.Scan(42))
}

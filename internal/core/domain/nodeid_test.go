package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeNodeID(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  string
	}{
		{"integer", 1770661344, "!698535e0"},
		{"json number", float64(1770661344), "!698535e0"},
		{"uint32", uint32(0xAABBCCDD), "!aabbccdd"},
		{"bang prefixed", "!698535E0", "!698535e0"},
		{"bang prefixed malformed hex kept", "!not-hex", "!not-hex"},
		{"0x prefixed", "0x698535e0", "!698535e0"},
		{"0X prefixed upper", "0X698535E0", "!698535e0"},
		{"plain hex", "698535e0", "!698535e0"},
		{"all-decimal digits parse as hex", "12345678", "!12345678"},
		{"garbage lowercased last resort", "NoDe-X", "!node-x"},
		{"whitespace trimmed", "  !AB12  ", "!ab12"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := NormalizeNodeID(tc.input)
			require.NotNil(t, got)
			assert.Equal(t, tc.want, *got)
		})
	}
}

func TestNormalizeNodeID_Absent(t *testing.T) {
	assert.Nil(t, NormalizeNodeID(nil))
	assert.Nil(t, NormalizeNodeID(""))
	assert.Nil(t, NormalizeNodeID("   "))
}

// Every output must start with '!': the function is total and never panics.
func TestNormalizeNodeID_Total(t *testing.T) {
	inputs := []any{0, -1, uint64(1) << 40, 3.9, "0x", "0xzz", "!", "!!", "ffffffff", true}
	for _, in := range inputs {
		got := NormalizeNodeID(in)
		if got == nil {
			continue
		}
		assert.Equal(t, byte('!'), (*got)[0], "input %v produced %q", in, *got)
	}
}

func TestNormalizeDestination_Broadcast(t *testing.T) {
	for _, in := range []any{uint32(4294967295), float64(4294967295), "4294967295", "0xffffffff", "0xFFFFFFFF", "!ffffffff", "!FFFFFFFF", "ffffffff"} {
		got := NormalizeDestination(in)
		require.NotNil(t, got, "input %v", in)
		assert.Equal(t, Broadcast, *got, "input %v", in)
	}
}

func TestNormalizeDestination_Regular(t *testing.T) {
	got := NormalizeDestination("!aabbccdd")
	require.NotNil(t, got)
	assert.Equal(t, "!aabbccdd", *got)

	assert.Nil(t, NormalizeDestination(nil))
}

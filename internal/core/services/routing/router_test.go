package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshgram/meshgram/internal/core/domain"
)

func TestResolve_Precedence(t *testing.T) {
	r := New("msh", domain.ModeAll)

	tests := []struct {
		topic    string
		mode     domain.RoutingMode
		userID   int64
		wantUser bool
	}{
		{"msh/private/42/group/2/json/!aa", domain.ModePrivateGroup, 42, true},
		{"msh/private/42/2/json/!aa", domain.ModePrivate, 42, true},
		{"msh/group/2/json/!aa", domain.ModeGroup, 0, false},
		{"msh/2/json/!aa", domain.ModeAll, 0, false},
		{"msh/x", domain.ModeAll, 0, false},
	}

	for _, tc := range tests {
		t.Run(tc.topic, func(t *testing.T) {
			mode, user := r.Resolve(tc.topic)
			assert.Equal(t, tc.mode, mode)
			if tc.wantUser {
				require.NotNil(t, user)
				assert.Equal(t, tc.userID, *user)
			} else {
				assert.Nil(t, user)
			}
		})
	}
}

func TestResolve_UnmatchedTopicFallsBack(t *testing.T) {
	r := New("msh", domain.ModeGroup)
	mode, user := r.Resolve("other/2/json/!aa")
	assert.Equal(t, domain.ModeGroup, mode)
	assert.Nil(t, user)
}

func TestResolveEffective_Override(t *testing.T) {
	r := New("msh", domain.ModeAll)
	r.SetUserMode(42, domain.ModePrivate)

	// Override replaces the topic-derived mode entirely.
	mode, user := r.ResolveEffective("msh/private/42/group/2/json/!aa", nil)
	assert.Equal(t, domain.ModePrivate, mode)
	require.NotNil(t, user)
	assert.Equal(t, int64(42), *user)

	// Cleared override restores topic resolution.
	r.ClearUserMode(42)
	mode, _ = r.ResolveEffective("msh/private/42/group/2/json/!aa", nil)
	assert.Equal(t, domain.ModePrivateGroup, mode)
}

func TestResolveEffective_ExplicitUserWins(t *testing.T) {
	r := New("msh", domain.ModeAll)
	r.SetUserMode(7, domain.ModeGroup)

	known := int64(7)
	mode, user := r.ResolveEffective("msh/2/json/!aa", &known)
	assert.Equal(t, domain.ModeGroup, mode)
	require.NotNil(t, user)
	assert.Equal(t, int64(7), *user)
}

func TestUserModeRoundTrip(t *testing.T) {
	r := New("msh", domain.ModeAll)

	_, ok := r.GetUserMode(1)
	assert.False(t, ok)

	r.SetUserMode(1, domain.ModePrivateGroup)
	mode, ok := r.GetUserMode(1)
	assert.True(t, ok)
	assert.Equal(t, domain.ModePrivateGroup, mode)
}

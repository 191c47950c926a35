package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReceptionGroup_AddObserver(t *testing.T) {
	base := time.Now()
	g := &ReceptionGroup{MessageID: "100", CreatedAt: base, LastUpdated: base}

	added := g.AddObserver(Observation{NodeID: "!aa", SeenAt: base.Add(time.Second)})
	assert.True(t, added)
	assert.Len(t, g.ObservedBy, 1)

	// Same node again: no growth, and never a LastUpdated side effect.
	added = g.AddObserver(Observation{NodeID: "!aa", SeenAt: base.Add(time.Hour)})
	assert.False(t, added)
	assert.Len(t, g.ObservedBy, 1)
	assert.Equal(t, base, g.LastUpdated)

	added = g.AddObserver(Observation{NodeID: "!bb", SeenAt: base.Add(2 * time.Second)})
	assert.True(t, added)
	assert.Len(t, g.ObservedBy, 2)
}

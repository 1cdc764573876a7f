package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeRing_RemembersAndEvicts(t *testing.T) {
	r := newDedupeRing(3)

	assert.True(t, r.remember("a"))
	assert.True(t, r.remember("b"))
	assert.True(t, r.remember("c"))

	assert.False(t, r.remember("a"))
	assert.False(t, r.remember("b"))

	// "d" evicts "a", the oldest entry
	assert.True(t, r.remember("d"))
	assert.True(t, r.remember("a"))
	assert.False(t, r.remember("c"))
}

func TestDedupeRing_DefaultCapacity(t *testing.T) {
	r := newDedupeRing(0)
	assert.Len(t, r.order, 512)
}

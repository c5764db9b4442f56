package elementid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpacesNeverCollide(t *testing.T) {
	a := NewAllocator()
	seen := make(map[ID]bool)
	for i := 0; i < 1000; i++ {
		for _, space := range []Space{SpacePublic, SpaceGhost, SpaceInternal} {
			id := a.Next(space)
			assert.False(t, seen[id], "id %d handed out twice", id)
			seen[id] = true
			assert.Equal(t, space, SpaceOf(id))
		}
	}
}

func TestNextIsMonotonic(t *testing.T) {
	a := NewAllocator()
	prev := a.Next(SpacePublic)
	for i := 0; i < 100; i++ {
		id := a.Next(SpacePublic)
		assert.Greater(t, id, prev)
		prev = id
	}
}

func TestReserveSkipsReservedID(t *testing.T) {
	a := NewAllocator()
	a.Reserve(SpacePublic, 3)
	for i := 0; i < 10; i++ {
		assert.NotEqual(t, ID(3), a.Next(SpacePublic))
	}
	assert.True(t, a.IsReserved(3))
}

func TestReserveAdvancesCounter(t *testing.T) {
	a := NewAllocator()
	a.Reserve(SpacePublic, 100)
	assert.Equal(t, ID(101), a.Next(SpacePublic))
}

func TestInvalidIDIsZero(t *testing.T) {
	var id ID
	assert.Equal(t, InvalidID, id)
}

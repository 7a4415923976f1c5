package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRing_PushBelowCapacity(t *testing.T) {
	r := newRing[int](5)
	r.Push(1)
	r.Push(2)
	r.Push(3)

	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []int{1, 2, 3}, r.Tail(10))
}

func TestRing_EvictsOldest(t *testing.T) {
	r := newRing[int](3)
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}

	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []int{3, 4, 5}, r.Tail(3))
	assert.Equal(t, []int{4, 5}, r.Tail(2), "tail returns the most recent n")
}

func TestRing_TailEmpty(t *testing.T) {
	r := newRing[string](3)
	assert.Nil(t, r.Tail(2))
	assert.Nil(t, r.Tail(0))
}

func TestRing_Reset(t *testing.T) {
	r := newRing[int](2)
	r.Push(1)
	r.Push(2)
	r.Push(3)
	r.Reset()

	assert.Equal(t, 0, r.Len())
	r.Push(9)
	assert.Equal(t, []int{9}, r.Tail(5))
}

func TestRing_CapacityClamped(t *testing.T) {
	r := newRing[int](0)
	r.Push(1)
	r.Push(2)
	assert.Equal(t, []int{2}, r.Tail(5))
}

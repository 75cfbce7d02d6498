package dsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPushPopRoundTrip(t *testing.T) {
	s := NewSyncBuffer(16)
	s.PushBack([]int16{1, 2, 3, 4})
	assert.Equal(t, 4, s.Available())

	dst := make([]int16, 4)
	n := s.PopFront(dst)
	assert.Equal(t, 4, n)
	assert.Equal(t, []int16{1, 2, 3, 4}, dst)
	assert.Equal(t, 0, s.Available())
}

func TestPopFrontUnderrun(t *testing.T) {
	s := NewSyncBuffer(16)
	s.PushBack([]int16{1, 2})
	dst := make([]int16, 5)
	n := s.PopFront(dst)
	assert.Equal(t, 2, n)
}

func TestPushBackDropsOldestOnOverrun(t *testing.T) {
	s := NewSyncBuffer(4)
	s.PushBack([]int16{1, 2, 3, 4, 5, 6})
	assert.Equal(t, 4, s.Available())

	dst := make([]int16, 4)
	s.PopFront(dst)
	assert.Equal(t, []int16{3, 4, 5, 6}, dst)
}

func TestTailReturnsLastNWithoutConsuming(t *testing.T) {
	s := NewSyncBuffer(16)
	s.PushBack([]int16{1, 2, 3, 4, 5})
	tail := s.Tail(3)
	assert.Equal(t, []int16{3, 4, 5}, tail)
	assert.Equal(t, 5, s.Available(), "Tail must not consume")
}

func TestTailClampsToAvailable(t *testing.T) {
	s := NewSyncBuffer(16)
	s.PushBack([]int16{1, 2})
	assert.Equal(t, []int16{1, 2}, s.Tail(10))
}

func TestResetClearsState(t *testing.T) {
	s := NewSyncBuffer(8)
	s.PushBack([]int16{1, 2, 3})
	s.Reset()
	assert.Equal(t, 0, s.Available())
	assert.Nil(t, s.Tail(3))
}

func TestCapacityFixed(t *testing.T) {
	s := NewSyncBuffer(10)
	assert.Equal(t, 10, s.Capacity())
}

package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pushOffsets(c *MessageCache, from, to uint64) {
	for offset := from; offset <= to; offset++ {
		c.Push(&Message{Offset: offset})
	}
}

func TestMessageCache_PushAndRange(t *testing.T) {
	cache := NewMessageCache(10)
	pushOffsets(cache, 0, 4)

	assert.Equal(t, 5, cache.Len())
	assert.Equal(t, uint64(0), cache.First().Offset)
	assert.Equal(t, uint64(4), cache.Last().Offset)
	assert.True(t, cache.Covers(1, 3))

	msgs := cache.Range(1, 3)
	require.Len(t, msgs, 3)
	assert.Equal(t, uint64(1), msgs[0].Offset)
	assert.Equal(t, uint64(3), msgs[2].Offset)
}

func TestMessageCache_OverwritesOldest(t *testing.T) {
	cache := NewMessageCache(3)
	pushOffsets(cache, 0, 6)

	assert.Equal(t, 3, cache.Len())
	assert.Equal(t, 3, cache.Capacity())
	assert.Equal(t, uint64(4), cache.First().Offset)
	assert.Equal(t, uint64(6), cache.Last().Offset)

	assert.False(t, cache.Covers(3, 5))
	assert.True(t, cache.Covers(4, 6))

	msgs := cache.Range(4, 6)
	require.Len(t, msgs, 3)
	for i, msg := range msgs {
		assert.Equal(t, uint64(4+i), msg.Offset)
	}
}

func TestMessageCache_Empty(t *testing.T) {
	cache := NewMessageCache(0)

	assert.Equal(t, 1, cache.Capacity())
	assert.Nil(t, cache.First())
	assert.Nil(t, cache.Last())
	assert.False(t, cache.Covers(0, 0))
	assert.Empty(t, cache.Range(0, 10))
}

func TestMessageCache_Clear(t *testing.T) {
	cache := NewMessageCache(4)
	pushOffsets(cache, 10, 13)

	cache.Clear()
	assert.Equal(t, 0, cache.Len())

	pushOffsets(cache, 20, 21)
	assert.Equal(t, uint64(20), cache.First().Offset)
	assert.Equal(t, 2, cache.Len())
}

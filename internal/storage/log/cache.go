package log

// MessageCache is a fixed-capacity ring of the most recently appended messages.
// Pushing into a full cache overwrites the oldest message. Messages are stored in
// ascending offset order, so the cache always covers a contiguous offset run.
//
// MessageCache is not safe for concurrent mutation; the owning partition serializes
// writers and lets readers share it under a read lock.
type MessageCache struct {
	buf  []*Message
	head int // index of the oldest message
	size int
}

// NewMessageCache creates an empty cache with the given capacity
func NewMessageCache(capacity uint32) *MessageCache {
	if capacity == 0 {
		capacity = 1
	}
	return &MessageCache{
		buf: make([]*Message, capacity),
	}
}

// Push appends a message, evicting the oldest one when the cache is full
func (c *MessageCache) Push(msg *Message) {
	capacity := len(c.buf)
	if c.size < capacity {
		c.buf[(c.head+c.size)%capacity] = msg
		c.size++
		return
	}
	c.buf[c.head] = msg
	c.head = (c.head + 1) % capacity
}

// Clear drops every cached message so the cache can be refilled
func (c *MessageCache) Clear() {
	for i := range c.buf {
		c.buf[i] = nil
	}
	c.head = 0
	c.size = 0
}

// Len returns the number of cached messages
func (c *MessageCache) Len() int {
	return c.size
}

// Capacity returns the maximum number of cached messages
func (c *MessageCache) Capacity() int {
	return len(c.buf)
}

// At returns the i-th oldest cached message
func (c *MessageCache) At(i int) *Message {
	return c.buf[(c.head+i)%len(c.buf)]
}

// First returns the oldest cached message, or nil when empty
func (c *MessageCache) First() *Message {
	if c.size == 0 {
		return nil
	}
	return c.At(0)
}

// Last returns the newest cached message, or nil when empty
func (c *MessageCache) Last() *Message {
	if c.size == 0 {
		return nil
	}
	return c.At(c.size - 1)
}

// Covers reports whether every offset in [from, to] is cached
func (c *MessageCache) Covers(from, to uint64) bool {
	first, last := c.First(), c.Last()
	if first == nil {
		return false
	}
	return first.Offset <= from && to <= last.Offset
}

// Range returns the cached messages with offsets in [from, to]
func (c *MessageCache) Range(from, to uint64) []*Message {
	first := c.First()
	if first == nil || from > to {
		return nil
	}

	start := 0
	if from > first.Offset {
		start = int(from - first.Offset)
	}
	if start >= c.size {
		return nil
	}

	result := make([]*Message, 0, min(c.size-start, int(to-from+1)))
	for i := start; i < c.size; i++ {
		msg := c.At(i)
		if msg.Offset > to {
			break
		}
		result = append(result, msg)
	}
	return result
}

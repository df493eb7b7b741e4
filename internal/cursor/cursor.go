// Package cursor provides ByteCursor, a small position-tracking view over a
// byte slice fed to the parser in successive chunks.
package cursor

// ByteCursor tracks a read position within the current chunk plus running
// counters for bytes read and bytes remaining in a framed unit (a syslog
// frame's octet count). It does not own or copy the chunk; callers pass a
// fresh slice to Reset for each call to feed().
type ByteCursor struct {
	buf []byte
	pos int

	read      uint32
	remaining uint32
}

// Reset points the cursor at a new chunk without touching the read/remaining
// counters, so counters survive across chunk boundaries within one frame.
func (c *ByteCursor) Reset(chunk []byte) {
	c.buf = chunk
	c.pos = 0
}

// SetRemaining establishes how many more bytes belong to the current frame.
func (c *ByteCursor) SetRemaining(n uint32) {
	c.remaining = n
}

// BeginFrame starts accounting for a new framed unit of n bytes, resetting
// both Read and Remaining.
func (c *ByteCursor) BeginFrame(n uint32) {
	c.read = 0
	c.remaining = n
}

// Remaining returns the number of frame bytes not yet consumed.
func (c *ByteCursor) Remaining() uint32 {
	return c.remaining
}

// Read returns the total number of frame bytes consumed so far.
func (c *ByteCursor) Read() uint32 {
	return c.read
}

// Pos returns the current offset within the active chunk.
func (c *ByteCursor) Pos() int {
	return c.pos
}

// Len returns the number of unconsumed bytes left in the active chunk.
func (c *ByteCursor) Len() int {
	return len(c.buf) - c.pos
}

// Done reports whether the active chunk has been fully consumed.
func (c *ByteCursor) Done() bool {
	return c.pos >= len(c.buf)
}

// Bytes returns the unconsumed portion of the active chunk. The returned
// slice aliases the caller-supplied chunk and is only valid until the next
// Reset.
func (c *ByteCursor) Bytes() []byte {
	return c.buf[c.pos:]
}

// Peek returns the next unconsumed byte without advancing, and false if the
// chunk is exhausted.
func (c *ByteCursor) Peek() (byte, bool) {
	if c.Done() {
		return 0, false
	}
	return c.buf[c.pos], true
}

// Advance consumes n bytes from the chunk without touching the frame
// counters. Used while scanning bytes that aren't yet known to belong to a
// framed unit, e.g. the octet-count prefix before the message length is
// known. It does not bounds-check beyond the active chunk; callers must not
// advance past Len().
func (c *ByteCursor) Advance(n int) {
	c.pos += n
}

// AdvanceFrame consumes n bytes from the chunk and accounts them against the
// current frame: Read increases and Remaining decreases by n.
func (c *ByteCursor) AdvanceFrame(n int) {
	c.pos += n
	c.read += uint32(n)
	if uint32(n) <= c.remaining {
		c.remaining -= uint32(n)
	} else {
		c.remaining = 0
	}
}


// ABOUTME: Fixed-capacity circular byte buffer for interleaved PCM frames
// ABOUTME: Exposes wrap-aware cursor arithmetic for zero-copy producers and consumers
package ring

// Buffer is a fixed-capacity circular byte buffer.
//
// Cursors are free-running counters; the physical cursor is the counter
// modulo capacity, so a full buffer (Used == Cap) is distinct from an empty
// one. Buffer is not safe for concurrent use: the owner serializes access.
type Buffer struct {
	buf  []byte
	size uint64
	rpos uint64 // total bytes consumed
	wpos uint64 // total bytes produced
}

// New creates a buffer holding capacity bytes
func New(capacity int) *Buffer {
	if capacity <= 0 {
		panic("ring: capacity must be positive")
	}
	return &Buffer{
		buf:  make([]byte, capacity),
		size: uint64(capacity),
	}
}

// Cap returns the fixed capacity in bytes
func (b *Buffer) Cap() int {
	return int(b.size)
}

// Used returns the number of unread bytes
func (b *Buffer) Used() int {
	return int(b.wpos - b.rpos)
}

// Free returns the number of writable bytes
func (b *Buffer) Free() int {
	return int(b.size - (b.wpos - b.rpos))
}

// ReadCursor returns the read position in [0, Cap)
func (b *Buffer) ReadCursor() int {
	return int(b.rpos % b.size)
}

// WriteCursor returns the write position in [0, Cap)
func (b *Buffer) WriteCursor() int {
	return int(b.wpos % b.size)
}

// ReadTotal returns the absolute number of bytes ever consumed
func (b *Buffer) ReadTotal() uint64 {
	return b.rpos
}

// WriteTotal returns the absolute number of bytes ever produced
func (b *Buffer) WriteTotal() uint64 {
	return b.wpos
}

// BytesUntilReadWrap returns the contiguous run from the read cursor to the
// end of the backing array, regardless of how much of it is filled
func (b *Buffer) BytesUntilReadWrap() int {
	return int(b.size - b.rpos%b.size)
}

// BytesUntilWriteWrap returns the contiguous run from the write cursor to the
// end of the backing array
func (b *Buffer) BytesUntilWriteWrap() int {
	return int(b.size - b.wpos%b.size)
}

// Readable returns the contiguous unread bytes starting at the read cursor.
// The slice aliases the buffer and is valid until the next write.
func (b *Buffer) Readable() []byte {
	n := b.Used()
	if w := b.BytesUntilReadWrap(); w < n {
		n = w
	}
	start := b.ReadCursor()
	return b.buf[start : start+n]
}

// Writable returns the contiguous free bytes starting at the write cursor
func (b *Buffer) Writable() []byte {
	n := b.Free()
	if w := b.BytesUntilWriteWrap(); w < n {
		n = w
	}
	start := b.WriteCursor()
	return b.buf[start : start+n]
}

// AdvanceRead consumes n bytes, clamped to Used. Returns the bytes consumed.
func (b *Buffer) AdvanceRead(n int) int {
	if n <= 0 {
		return 0
	}
	if used := b.Used(); n > used {
		n = used
	}
	b.rpos += uint64(n)
	return n
}

// AdvanceWrite commits n bytes previously filled through Writable, clamped
// to Free. Returns the bytes committed.
func (b *Buffer) AdvanceWrite(n int) int {
	if n <= 0 {
		return 0
	}
	if free := b.Free(); n > free {
		n = free
	}
	b.wpos += uint64(n)
	return n
}

// Write appends up to len(p) bytes, splitting the copy at the wrap
// boundary. Returns the bytes actually written.
func (b *Buffer) Write(p []byte) int {
	written := 0
	for len(p) > 0 {
		dst := b.Writable()
		if len(dst) == 0 {
			break
		}
		n := copy(dst, p)
		b.wpos += uint64(n)
		p = p[n:]
		written += n
	}
	return written
}

// Read copies up to len(p) unread bytes into p and consumes them
func (b *Buffer) Read(p []byte) int {
	read := 0
	for len(p) > 0 {
		src := b.Readable()
		if len(src) == 0 {
			break
		}
		n := copy(p, src)
		b.rpos += uint64(n)
		p = p[n:]
		read += n
	}
	return read
}

// Reset discards all unread data. Absolute totals stay monotonic.
func (b *Buffer) Reset() {
	b.rpos = b.wpos
}

package interleave

import "encoding/binary"

// pcmCursor reads interleaved 16-bit little-endian samples front to back.
type pcmCursor struct {
	buf []byte
	pos int
}

func newPCMCursor(buf []byte) pcmCursor {
	return pcmCursor{buf: buf}
}

// remaining returns the number of whole samples left. A trailing odd byte is
// never read.
func (c *pcmCursor) remaining() int {
	return (len(c.buf) - c.pos) / 2
}

// read fills dst with up to len(dst) samples and zeroes the rest. It returns
// the number of samples read.
func (c *pcmCursor) read(dst []int16) int {
	n := c.remaining()
	if n > len(dst) {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		dst[i] = int16(binary.LittleEndian.Uint16(c.buf[c.pos+2*i:]))
	}
	clear(dst[n:])
	c.pos += 2 * n
	return n
}

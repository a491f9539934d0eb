// Package nalframe splits an unframed Annex-B byte stream into access units
// using only start code scanning.
package nalframe

// MinUnitLen is the shortest span that can be an access unit. Anything shorter
// is a resync artifact.
const MinUnitLen = 4

// NextUnit returns the length of the unit at the start of buf. The scan starts
// at offset 3 to skip the unit's own start code and stops at the first
// 00 00 01 or 00 00 00 01 pattern. When 3 or fewer bytes remain unscanned the
// whole buffer is returned as the final unit.
func NextUnit(buf []byte) int {
	size := len(buf)
	for pos := 3; size-pos > 3; pos++ {
		if buf[pos] == 0 && buf[pos+1] == 0 && buf[pos+2] == 1 {
			return pos
		}
		if buf[pos] == 0 && buf[pos+1] == 0 && buf[pos+2] == 0 && buf[pos+3] == 1 {
			return pos
		}
	}
	return size
}

// StartCodeLen returns 3 or 4 if buf begins with a start code, otherwise 0.
func StartCodeLen(buf []byte) int {
	switch {
	case len(buf) >= 3 && buf[0] == 0 && buf[1] == 0 && buf[2] == 1:
		return 3
	case len(buf) >= 4 && buf[0] == 0 && buf[1] == 0 && buf[2] == 0 && buf[3] == 1:
		return 4
	}
	return 0
}

// Unit is one access unit, including its start code.
type Unit struct {
	// Offset of the unit within the scanned buffer
	Offset int
	Data   []byte
}

// Scanner walks a buffer one unit at a time. It is not restartable.
type Scanner struct {
	buf     []byte
	pos     int
	skipped int
	unit    Unit
}

// NewScanner returns a scanner over buf. buf is never modified.
func NewScanner(buf []byte) *Scanner {
	return &Scanner{buf: buf}
}

// Next advances to the next unit, skipping resync bytes on the way. It returns
// false once the buffer is consumed.
func (s *Scanner) Next() bool {
	for s.pos < len(s.buf) {
		rem := s.buf[s.pos:]
		if rem[0] == 0 && StartCodeLen(rem) == 0 {
			// stray leading zero in front of a start code, or zero padding
			s.resync()
			continue
		}
		n := NextUnit(rem)
		if n < MinUnitLen {
			s.resync()
			continue
		}
		s.unit = Unit{Offset: s.pos, Data: rem[:n]}
		s.pos += n
		return true
	}
	s.unit = Unit{}
	return false
}

func (s *Scanner) resync() {
	s.pos++
	s.skipped++
}

// Unit returns the unit found by the last successful call to Next.
func (s *Scanner) Unit() Unit {
	return s.unit
}

// Skipped returns the number of single-byte resyncs performed so far.
func (s *Scanner) Skipped() int {
	return s.skipped
}

// Offset returns the number of bytes consumed so far.
func (s *Scanner) Offset() int {
	return s.pos
}

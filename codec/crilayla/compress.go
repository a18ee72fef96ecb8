/*
NAME
  compress.go - the CRILAYLA compressor.

AUTHOR
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package crilayla

import (
	"bytes"

	"github.com/icza/bitio"
)

const minMatch = 3

// Compress encodes b as a CRILAYLA blob. The last 0x100 bytes of b are
// stored verbatim as the tail; the rest is searched greedily for the
// longest backreference within an 8192-byte window, matching the bit
// grammar decode expects.
func Compress(b []byte) []byte {
	out := make([]byte, headerSize)
	copy(out, Magic)
	putLE32(out[8:12], uint32(len(b)))

	if len(b) <= tailSize {
		// Nothing to compress; body is just the tail (possibly short).
		putLE32(out[12:16], uint32(len(b)))
		return append(out, b...)
	}

	body := encodeBody(b, len(b)-tailSize)
	putLE32(out[12:16], uint32(len(body)+tailSize))
	out = append(out, body...)
	out = append(out, b[len(b)-tailSize:]...)
	return out
}

// encodeBody encodes data[:prefixLen], processing positions from prefixLen
// towards 0 (mirroring decode's fill direction). Backreferences may point
// into data[prefixLen:] (the verbatim tail), exactly as decode's out array
// already holds the tail before it starts filling the body. It returns the
// reversed byte stream decode expects.
func encodeBody(data []byte, prefixLen int) []byte {
	var buf bytes.Buffer
	bw := bitio.NewWriter(&buf)

	pos := prefixLen
	for pos > 0 {
		bestLen, bestOff := findMatch(data, pos)
		if bestLen >= minMatch {
			bw.WriteBool(true)
			bw.WriteBits(uint64(bestOff-3), 13)
			writeLength(bw, bestLen-3)
			pos -= bestLen
		} else {
			bw.WriteBool(false)
			bw.WriteByte(data[pos-1])
			pos--
		}
	}
	bw.Close()

	encoded := buf.Bytes()
	reversed := make([]byte, len(encoded))
	for i, v := range encoded {
		reversed[len(encoded)-1-i] = v
	}
	return reversed
}

// findMatch looks, backwards from pos, for the longest run of bytes ending
// at pos that is duplicated at some offset >= 3 (and <= 8194) further into
// data (i.e. at higher indices, the part decode will have already produced
// by the time it reaches this position). It returns the longest match's
// length and offset, which may be shorter than minMatch, or (0,0) if no
// byte matches at any offset.
func findMatch(data []byte, pos int) (length, offset int) {
	maxOffset := 8194
	for off := 3; off <= maxOffset; off++ {
		srcEnd := pos + off
		if srcEnd > len(data) {
			break
		}
		l := 0
		for pos-l > 0 && srcEnd-l > 0 && data[pos-l-1] == data[srcEnd-l-1] {
			l++
			if pos-l == 0 {
				break
			}
		}
		if l > length {
			length = l
			offset = off
		}
	}
	return length, offset
}

// writeLength writes the variable-length code for n (length-3) per the
// CRILAYLA bit grammar: 2 bits, extended to 3, 5 and repeated 8-bit groups.
func writeLength(bw *bitio.Writer, n int) {
	lvl0 := n
	if lvl0 > 3 {
		lvl0 = 3
	}
	bw.WriteBits(uint64(lvl0), 2)
	n -= lvl0
	if lvl0 < 3 {
		return
	}

	lvl1 := n
	if lvl1 > 7 {
		lvl1 = 7
	}
	bw.WriteBits(uint64(lvl1), 3)
	n -= lvl1
	if lvl1 < 7 {
		return
	}

	lvl2 := n
	if lvl2 > 31 {
		lvl2 = 31
	}
	bw.WriteBits(uint64(lvl2), 5)
	n -= lvl2
	if lvl2 < 31 {
		return
	}

	for n >= 255 {
		bw.WriteBits(255, 8)
		n -= 255
	}
	bw.WriteBits(uint64(n), 8)
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

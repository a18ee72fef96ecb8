/*
NAME
  byteio.go - scalar readers/writers and CRC-16 for the CRI wire formats.

AUTHOR
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package byteio provides big- and little-endian scalar reads/writes over a
// plain byte slice, plus the CRC-16/XMODEM checksum used by HCA headers and
// frames. Every CRI container format in this module is parsed from a fully
// buffered []byte rather than streamed, so these helpers work against an
// index into a slice rather than an io.Reader.
package byteio

import "encoding/binary"

// Cursor is a read position into a byte slice. It does not copy the
// underlying data.
type Cursor struct {
	Buf []byte
	Pos int
}

// NewCursor returns a Cursor positioned at the start of buf.
func NewCursor(buf []byte) *Cursor { return &Cursor{Buf: buf} }

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int { return len(c.Buf) - c.Pos }

// Skip advances the cursor by n bytes.
func (c *Cursor) Skip(n int) { c.Pos += n }

// Peek returns the next n bytes without advancing the cursor.
func (c *Cursor) Peek(n int) []byte { return c.Buf[c.Pos : c.Pos+n] }

// Take returns the next n bytes and advances the cursor.
func (c *Cursor) Take(n int) []byte {
	b := c.Buf[c.Pos : c.Pos+n]
	c.Pos += n
	return b
}

// U8 reads a single unsigned byte.
func (c *Cursor) U8() uint8 {
	v := c.Buf[c.Pos]
	c.Pos++
	return v
}

// BE16 reads a big-endian uint16.
func (c *Cursor) BE16() uint16 {
	v := binary.BigEndian.Uint16(c.Buf[c.Pos:])
	c.Pos += 2
	return v
}

// BE32 reads a big-endian uint32.
func (c *Cursor) BE32() uint32 {
	v := binary.BigEndian.Uint32(c.Buf[c.Pos:])
	c.Pos += 4
	return v
}

// BE64 reads a big-endian uint64.
func (c *Cursor) BE64() uint64 {
	v := binary.BigEndian.Uint64(c.Buf[c.Pos:])
	c.Pos += 8
	return v
}

// LE16 reads a little-endian uint16.
func (c *Cursor) LE16() uint16 {
	v := binary.LittleEndian.Uint16(c.Buf[c.Pos:])
	c.Pos += 2
	return v
}

// LE32 reads a little-endian uint32.
func (c *Cursor) LE32() uint32 {
	v := binary.LittleEndian.Uint32(c.Buf[c.Pos:])
	c.Pos += 4
	return v
}

// LE64 reads a little-endian uint64.
func (c *Cursor) LE64() uint64 {
	v := binary.LittleEndian.Uint64(c.Buf[c.Pos:])
	c.Pos += 8
	return v
}

// AlignUp rounds n up to the next multiple of align. align must be a power
// of two greater than zero; CRI formats always use power-of-two alignment
// (0x8, 0x20, 0x800, ...).
func AlignUp(n, align int) int {
	if align <= 0 {
		return n
	}
	return (n + align - 1) &^ (align - 1)
}

// PutBE16 appends a big-endian uint16 to buf.
func PutBE16(buf []byte, v uint16) []byte {
	return append(buf, byte(v>>8), byte(v))
}

// PutBE32 appends a big-endian uint32 to buf.
func PutBE32(buf []byte, v uint32) []byte {
	return append(buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// PutBE64 appends a big-endian uint64 to buf.
func PutBE64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

// PutLE16 appends a little-endian uint16 to buf.
func PutLE16(buf []byte, v uint16) []byte {
	return append(buf, byte(v), byte(v>>8))
}

// PutLE32 appends a little-endian uint32 to buf.
func PutLE32(buf []byte, v uint32) []byte {
	return append(buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

// PutLE64 appends a little-endian uint64 to buf.
func PutLE64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

/*
NAME
  afs2.go - the AFS2/AWB audio-bank container.

AUTHOR
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package afs2 reads and writes AFS2 (AWB) banks: a flat, little-endian
// header of fixed-width file entries followed by the files themselves,
// each padded up to a byte alignment boundary. AWB banks hold the actual
// ADX/HCA waveform bytes an ACB cue table points into.
//
// Header layout (all fields little-endian):
//
//	offset 0x00  magic        "AFS2"
//	offset 0x04  version      u8
//	offset 0x05  offset_size  u8   (2, 4 or 8 - width of each entry in the
//	                                offset table)
//	offset 0x06  id_align     u16  (width of each entry in the id table;
//	                                always 2 in practice)
//	offset 0x08  file_count   u32
//	offset 0x0C  align        u16  (byte alignment each file is padded to)
//	offset 0x0E  subkey       u16  (AWB decryption subkey; 0 if none)
//	offset 0x10  ids[]        file_count * 2 bytes
//	...          offsets[]    (file_count+1) * offset_size bytes
//	...          padding to align(header_size, align)
//	...          file bodies, each padded up to align
package afs2

import (
	"encoding/binary"

	"github.com/ausocean/cricodec/pkg/byteio"
	"github.com/ausocean/cricodec/pkg/cerr"
)

// Magic is the AFS2 chunk header.
var Magic = []byte("AFS2")

const fixedHeaderSize = 16

// Entry is one file stored in a bank.
type Entry struct {
	ID   uint16
	Data []byte
}

// Bank is a parsed AFS2/AWB container.
type Bank struct {
	Version uint8
	Align   uint16
	Subkey  uint16
	Entries []Entry
}

// Parse reads a bank from b.
func Parse(b []byte) (*Bank, error) {
	if len(b) < fixedHeaderSize || string(b[:4]) != string(Magic) {
		got := b
		if len(got) > 4 {
			got = got[:4]
		}
		return nil, cerr.Magic(0, Magic, got)
	}

	version := b[4]
	offsetSize := int(b[5])
	fileCount := int(binary.LittleEndian.Uint32(b[8:12]))
	align := binary.LittleEndian.Uint16(b[12:14])
	subkey := binary.LittleEndian.Uint16(b[14:16])

	if offsetSize != 2 && offsetSize != 4 && offsetSize != 8 {
		return nil, cerr.At(cerr.InvalidData, 5, "unsupported offset width", nil)
	}

	cur := byteio.NewCursor(b)
	cur.Skip(fixedHeaderSize)

	if cur.Remaining() < 2*fileCount {
		return nil, cerr.At(cerr.InvalidData, int64(cur.Pos), "truncated id table", nil)
	}
	ids := make([]uint16, fileCount)
	for i := range ids {
		ids[i] = cur.LE16()
	}

	if cur.Remaining() < offsetSize*(fileCount+1) {
		return nil, cerr.At(cerr.InvalidData, int64(cur.Pos), "truncated offset table", nil)
	}
	offs := make([]uint64, fileCount+1)
	for i := range offs {
		offs[i] = alignUp64(readOffset(cur, offsetSize), uint64(align))
	}

	entries := make([]Entry, fileCount)
	for i := 0; i < fileCount; i++ {
		start, end := offs[i], offs[i+1]
		if end > uint64(len(b)) || start > end {
			return nil, cerr.At(cerr.InvalidData, int64(start), "entry offset out of range", nil)
		}
		entries[i] = Entry{ID: ids[i], Data: b[start:end]}
	}

	return &Bank{Version: version, Align: align, Subkey: subkey, Entries: entries}, nil
}

func readOffset(cur *byteio.Cursor, width int) uint64 {
	switch width {
	case 2:
		return uint64(cur.LE16())
	case 4:
		return uint64(cur.LE32())
	default:
		return cur.LE64()
	}
}

func alignUp64(v, align uint64) uint64 {
	if align == 0 || v%align == 0 {
		return v
	}
	return v + (align - v%align)
}

// Build serialises bank into an AFS2/AWB blob. Offset width is chosen as
// the smallest of 4 or 8 bytes that can hold the total stored size (AWB
// never uses a 2-byte offset table in practice, matching the reference
// builder, which only ever emits 4 or 8).
func Build(bank *Bank) []byte {
	align := int(bank.Align)
	if align == 0 {
		align = 0x20
	}
	n := len(bank.Entries)

	paddedSizes := make([]int, n)
	total := 0
	for i, e := range bank.Entries {
		total += byteio.AlignUp(len(e.Data), align)
		paddedSizes[i] = total
	}

	offsetSize := 4
	headerSize := fixedHeaderSize + offsetSize*(n+1) + 2*n
	headerSize = byteio.AlignUp(headerSize, align)
	if uint64(headerSize+total) > 0xFFFFFFFF {
		offsetSize = 8
		headerSize = fixedHeaderSize + offsetSize*(n+1) + 2*n
		headerSize = byteio.AlignUp(headerSize, align)
	}

	out := make([]byte, fixedHeaderSize)
	copy(out[:4], Magic)
	out[4] = bank.Version
	out[5] = byte(offsetSize)
	binary.LittleEndian.PutUint16(out[6:8], 2)
	binary.LittleEndian.PutUint32(out[8:12], uint32(n))
	binary.LittleEndian.PutUint16(out[12:14], uint16(align))
	binary.LittleEndian.PutUint16(out[14:16], bank.Subkey)

	for _, e := range bank.Entries {
		out = byteio.PutLE16(out, e.ID)
	}

	offs := make([]uint64, n+1)
	offs[0] = uint64(headerSize)
	for i := 0; i < n; i++ {
		offs[i+1] = uint64(headerSize + paddedSizes[i])
	}
	for _, o := range offs {
		out = putOffset(out, o, offsetSize)
	}

	for len(out) < headerSize {
		out = append(out, 0)
	}

	for _, e := range bank.Entries {
		out = append(out, e.Data...)
		padded := byteio.AlignUp(len(e.Data), align)
		for j := len(e.Data); j < padded; j++ {
			out = append(out, 0)
		}
	}
	return out
}

func putOffset(b []byte, v uint64, width int) []byte {
	switch width {
	case 4:
		return byteio.PutLE32(b, uint32(v))
	default:
		return byteio.PutLE64(b, v)
	}
}

// Offsets returns the absolute byte offset of each entry, plus a trailing
// offset equal to the total stored size (property 4: "AFS2 offset
// monotonicity"), by rebuilding bank and reading its offset table back.
func Offsets(bank *Bank) []uint64 {
	built := Build(bank)
	parsedOffsetSize := int(built[5])
	n := len(bank.Entries)
	cur := byteio.NewCursor(built)
	cur.Skip(fixedHeaderSize + 2*n)
	offs := make([]uint64, n+1)
	for i := range offs {
		offs[i] = readOffset(cur, parsedOffsetSize)
	}
	return offs
}

/*
NAME
  utf.go - the @UTF tabular metadata format.

AUTHOR
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package utf provides reading and writing of CRIWARE's @UTF tabular
// metadata format: a schema plus rows plus a string pool plus a binary
// pool, all inside a self-described big-endian header. @UTF tables are the
// backbone of every other container in this module - CPK's TOC/ITOC/ETOC/
// GTOC, ACB's nested cue/waveform tables, and USM's CRID/HDRINFO/SEEKINFO
// metadata are all @UTF tables.
//
// Header layout (the storage flags are documented on Storage, below):
//
//	offset 0x00  magic        "@UTF" (or 1F 9E F3 F5 for the encrypted form)
//	offset 0x04  table_size   u32, excludes magic and this field
//	offset 0x08  rows_offset  u32, relative to offset 0x08
//	offset 0x0C  string_offset
//	offset 0x10  data_offset  (start of binary pool)
//	offset 0x14  name_offset  string-pool offset of the table name
//	offset 0x18  column_count u16
//	offset 0x1A  row_length   u16
//	offset 0x1C  row_count    u32
//	offset 0x20  columns...   column_count column descriptors
//	...          rows...      row_count * row_length bytes
//	...          string pool
//	...          binary pool
package utf

import (
	"bytes"
	"encoding/binary"

	"github.com/ausocean/cricodec/pkg/cerr"
)

// Magic is the plain (unencrypted) @UTF chunk magic.
var Magic = []byte("@UTF")

// EncryptedMagic is the magic of an XOR-masked @UTF chunk.
var EncryptedMagic = []byte{0x1F, 0x9E, 0xF3, 0xF5}

// headerSize is the size of the fixed @UTF header, magic included.
const headerSize = 0x20

// Type is a @UTF column's scalar type code.
type Type uint8

// Column type codes, per the @UTF format.
const (
	TypeU8 Type = iota
	TypeI8
	TypeU16
	TypeI16
	TypeU32
	TypeI32
	TypeU64
	TypeI64
	TypeF32
	TypeF64
	TypeString
	TypeBytes
)

// Storage is a @UTF column's per-row storage mode.
type Storage uint8

// Storage flag values, shifted into the top nibble of a column's flag byte.
//
//	0x1  no value stored at all; implicitly the type's zero value ("<NULL>"
//	     for strings). Used when every row shares this column's zero value.
//	0x3  one value stored inline in the column descriptor, shared by every
//	     row. Used when every row shares a non-zero value for this column.
//	0x5  no value in the descriptor; each row carries its own value in the
//	     row section.
const (
	StorageZero     Storage = 0x1
	StorageConstant Storage = 0x3
	StoragePerRow   Storage = 0x5
)

// size returns the in-row or in-descriptor byte width of t, where
// applicable. string and bytes have no fixed "value" width in this sense:
// string stores one 4-byte pool offset, bytes stores two.
func (t Type) size() int {
	switch t {
	case TypeU8, TypeI8:
		return 1
	case TypeU16, TypeI16:
		return 2
	case TypeU32, TypeI32, TypeF32:
		return 4
	case TypeU64, TypeI64, TypeF64:
		return 8
	case TypeString:
		return 4
	case TypeBytes:
		return 8
	default:
		return 0
	}
}

// Cell is a single typed value: a column's constant, or one row's value for
// that column. Exactly one of the fields is meaningful, selected by Type.
type Cell struct {
	Type  Type
	U     uint64 // backs U8/U16/U32/U64 and, bit-for-bit, I8/I16/I32/I64/F32/F64.
	Str   string
	Bytes []byte
}

// U8 returns the cell's value as a uint8.
func (c Cell) U8() uint8 { return uint8(c.U) }

// I8 returns the cell's value as an int8.
func (c Cell) I8() int8 { return int8(c.U) }

// U16 returns the cell's value as a uint16.
func (c Cell) U16() uint16 { return uint16(c.U) }

// I16 returns the cell's value as an int16.
func (c Cell) I16() int16 { return int16(c.U) }

// U32 returns the cell's value as a uint32.
func (c Cell) U32() uint32 { return uint32(c.U) }

// I32 returns the cell's value as an int32.
func (c Cell) I32() int32 { return int32(c.U) }

// U64 returns the cell's value as a uint64.
func (c Cell) U64() uint64 { return c.U }

// I64 returns the cell's value as an int64.
func (c Cell) I64() int64 { return int64(c.U) }

// Column describes one @UTF column.
type Column struct {
	Name     string
	Type     Type
	Storage  Storage
	Constant Cell // only meaningful when Storage == StorageConstant.
}

// Table is a parsed @UTF table.
type Table struct {
	Name    string
	Columns []Column
	Rows    [][]Cell // Rows[r][c] is the cell for row r, column c.
}

// Cell returns the cell at (row, columnName), or false if columnName isn't
// a column of t.
func (t *Table) Cell(row int, columnName string) (Cell, bool) {
	for i, c := range t.Columns {
		if c.Name == columnName {
			if c.Storage == StorageConstant {
				return c.Constant, true
			}
			return t.Rows[row][i], true
		}
	}
	return Cell{}, false
}

// ColumnIndex returns the index of the column named name, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Parse reads a @UTF table (plain or XOR-encrypted) from b. b may contain
// trailing data after the table; Parse only consumes table_size+8 bytes.
func Parse(b []byte) (*Table, error) {
	if len(b) >= 4 && bytes.Equal(b[:4], EncryptedMagic) {
		dec := Decrypt(b)
		return parsePlain(dec)
	}
	if len(b) >= 4 && bytes.Equal(b[:4], Magic) {
		return parsePlain(b)
	}
	got := b
	if len(got) > 4 {
		got = got[:4]
	}
	return nil, cerr.Magic(0, Magic, got)
}

// Decrypt reverses the whole-table XOR mask applied to an encrypted @UTF
// blob. The keystream is generated independently of content: byte i is
// XORed with (m & 0xFF), then m = (m*t) & 0xFFFFFFFF, starting from
// m=0x655F, t=0x4115. XOR is an involution, so Decrypt also encrypts.
func Decrypt(b []byte) []byte {
	out := make([]byte, len(b))
	const m0 = 0x655F
	const t = 0x4115
	m := uint32(m0)
	for i, v := range b {
		out[i] = v ^ byte(m&0xFF)
		m = (m * t) & 0xFFFFFFFF
	}
	return out
}

func parsePlain(b []byte) (*Table, error) {
	if len(b) < headerSize || !bytes.Equal(b[:4], Magic) {
		got := b
		if len(got) > 4 {
			got = got[:4]
		}
		return nil, cerr.Magic(0, Magic, got)
	}

	tableSize := binary.BigEndian.Uint32(b[4:8])
	rowsOffset := binary.BigEndian.Uint32(b[8:12])
	stringOffset := binary.BigEndian.Uint32(b[12:16])
	dataOffset := binary.BigEndian.Uint32(b[16:20])
	nameOffset := binary.BigEndian.Uint32(b[20:24])
	columnCount := binary.BigEndian.Uint16(b[24:26])
	rowLength := binary.BigEndian.Uint16(b[26:28])
	rowCount := binary.BigEndian.Uint32(b[28:32])

	end := int(tableSize) + 8
	if end > len(b) {
		return nil, cerr.At(cerr.InvalidData, int64(len(b)), "table_size overruns input", nil)
	}

	pool := &pools{buf: b, stringBase: int(stringOffset) + 8, dataBase: int(dataOffset) + 8}

	cursor := headerSize
	cols := make([]Column, columnCount)
	for i := range cols {
		if cursor >= len(b) {
			return nil, cerr.At(cerr.InvalidData, int64(cursor), "column descriptor past end of table", nil)
		}
		flag := b[cursor]
		cursor++
		col := Column{
			Storage: Storage(flag >> 4),
			Type:    Type(flag & 0xF),
		}
		nameOff := binary.BigEndian.Uint32(b[cursor : cursor+4])
		cursor += 4
		name, err := pool.string(int(nameOff))
		if err != nil {
			return nil, err
		}
		col.Name = name

		switch col.Storage {
		case StorageConstant:
			cell, n, err := readValue(b[cursor:], col.Type, pool)
			if err != nil {
				return nil, err
			}
			cursor += n
			col.Constant = cell
		case StorageZero:
			col.Constant = zeroCell(col.Type)
		}
		cols[i] = col
	}

	name, err := pool.string(int(nameOffset))
	if err != nil {
		return nil, err
	}

	rowsBase := int(rowsOffset) + 8
	rows := make([][]Cell, rowCount)
	for r := 0; r < int(rowCount); r++ {
		rowOff := rowsBase + r*int(rowLength)
		if rowOff+int(rowLength) > len(b) {
			return nil, cerr.At(cerr.InvalidData, int64(rowOff), "row past end of table", nil)
		}
		rowBuf := b[rowOff : rowOff+int(rowLength)]
		row := make([]Cell, len(cols))
		off := 0
		for i, col := range cols {
			if col.Storage == StorageConstant {
				row[i] = col.Constant
				continue
			}
			if col.Storage == StorageZero {
				row[i] = zeroCell(col.Type)
				continue
			}
			cell, n, err := readValue(rowBuf[off:], col.Type, pool)
			if err != nil {
				return nil, err
			}
			off += n
			row[i] = cell
		}
		if off != int(rowLength) {
			return nil, cerr.At(cerr.InvalidData, int64(rowOff), "row footprint does not match row_length", nil)
		}
		rows[r] = row
	}

	return &Table{Name: name, Columns: cols, Rows: rows}, nil
}

// readValue reads one cell of the given type from b (a per-row or
// constant-descriptor value slot), returning the cell and the number of
// bytes consumed from b.
func readValue(b []byte, t Type, pool *pools) (Cell, int, error) {
	switch t {
	case TypeU8, TypeI8:
		return Cell{Type: t, U: uint64(b[0])}, 1, nil
	case TypeU16, TypeI16:
		return Cell{Type: t, U: uint64(binary.BigEndian.Uint16(b))}, 2, nil
	case TypeU32, TypeI32:
		return Cell{Type: t, U: uint64(binary.BigEndian.Uint32(b))}, 4, nil
	case TypeF32:
		return Cell{Type: t, U: uint64(binary.BigEndian.Uint32(b))}, 4, nil
	case TypeU64, TypeI64:
		return Cell{Type: t, U: binary.BigEndian.Uint64(b)}, 8, nil
	case TypeF64:
		return Cell{Type: t, U: binary.BigEndian.Uint64(b)}, 8, nil
	case TypeString:
		off := binary.BigEndian.Uint32(b)
		s, err := pool.string(int(off))
		if err != nil {
			return Cell{}, 0, err
		}
		return Cell{Type: t, Str: s}, 4, nil
	case TypeBytes:
		off := binary.BigEndian.Uint32(b)
		length := binary.BigEndian.Uint32(b[4:8])
		data, err := pool.bytes(int(off), int(length))
		if err != nil {
			return Cell{}, 0, err
		}
		return Cell{Type: t, Bytes: data}, 8, nil
	default:
		return Cell{}, 0, cerr.New(cerr.InvalidData, "unknown @UTF column type code", nil)
	}
}

// nullString is the sentinel stored (and recognised) in place of an actual
// pool string for a StorageZero string column, matching the convention the
// reference CRI tooling uses for "no value" string cells.
const nullString = "<NULL>"

func zeroCell(t Type) Cell {
	if t == TypeString {
		return Cell{Type: t, Str: nullString}
	}
	if t == TypeBytes {
		return Cell{Type: t, Bytes: nil}
	}
	return Cell{Type: t, U: 0}
}

// pools resolves string and binary pool references against the owning
// table's raw bytes, without copying the pools up front.
type pools struct {
	buf        []byte
	stringBase int
	dataBase   int
}

// string resolves a string-pool offset (relative to stringBase) to the
// NUL-terminated string starting there.
func (p *pools) string(off int) (string, error) {
	start := p.stringBase + off
	if start < 0 || start > len(p.buf) {
		return "", cerr.At(cerr.InvalidData, int64(start), "string offset past pool end", nil)
	}
	end := start
	for end < len(p.buf) && p.buf[end] != 0 {
		end++
	}
	if end >= len(p.buf) {
		return "", cerr.At(cerr.InvalidData, int64(start), "unterminated string in pool", nil)
	}
	return string(p.buf[start:end]), nil
}

// bytes resolves a binary-pool (offset, length) pair (offset relative to
// dataBase) to the referenced slice.
func (p *pools) bytes(off, length int) ([]byte, error) {
	start := p.dataBase + off
	if start < 0 || start+length > len(p.buf) {
		return nil, cerr.At(cerr.InvalidData, int64(start), "bytes reference past binary pool end", nil)
	}
	return p.buf[start : start+length], nil
}

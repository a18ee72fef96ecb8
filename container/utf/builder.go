/*
NAME
  builder.go - serialises a Table back into @UTF bytes.

AUTHOR
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package utf

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/ausocean/cricodec/pkg/cerr"
)

// Build serialises t into a plain (unencrypted) @UTF blob.
//
// A column is written with StorageZero when every row (and the column has
// at least one row) shares the type's zero value; with StorageConstant when
// the table has two or more rows and every row shares one non-zero value;
// otherwise with StoragePerRow, so a single-row table stores each non-zero
// cell per row. A column with no rows at all (t.Rows is empty) is always
// written as StoragePerRow with Constant left at the caller's zero value.
func Build(t *Table) ([]byte, error) {
	return build(t, false)
}

// BuildEncrypted serialises t and applies the whole-table XOR mask.
func BuildEncrypted(t *Table) ([]byte, error) {
	return build(t, true)
}

func build(t *Table, encrypt bool) ([]byte, error) {
	sp := newStringPool()
	sp.add(t.Name)
	bp := &bytesPool{}

	storages := make([]Storage, len(t.Columns))
	for i, col := range t.Columns {
		storages[i] = columnStorage(t, i, col)
		sp.add(col.Name)
	}

	for ci, col := range t.Columns {
		if storages[ci] == StorageConstant {
			addCellStrings(sp, col.Constant)
		}
	}
	for _, row := range t.Rows {
		for ci, col := range t.Columns {
			if storages[ci] == StoragePerRow {
				addCellStrings(sp, row[ci])
			}
		}
	}
	for _, row := range t.Rows {
		for ci, col := range t.Columns {
			if storages[ci] == StoragePerRow && col.Type == TypeBytes {
				bp.add(row[ci].Bytes)
			}
		}
	}
	for ci, col := range t.Columns {
		if storages[ci] == StorageConstant && col.Type == TypeBytes {
			bp.add(col.Constant.Bytes)
		}
	}

	var columnData bytes.Buffer
	for ci, col := range t.Columns {
		storage := storages[ci]
		flag := byte(storage)<<4 | byte(col.Type)
		columnData.WriteByte(flag)
		writeBE32(&columnData, uint32(sp.offset(col.Name)))
		if storage == StorageConstant {
			if err := writeCellValue(&columnData, col.Type, col.Constant, sp, bp); err != nil {
				return nil, err
			}
		}
	}

	var rowData bytes.Buffer
	rowWidth := 0
	for ci, col := range t.Columns {
		if storages[ci] != StoragePerRow {
			continue
		}
		rowWidth += col.Type.size()
	}
	for _, row := range t.Rows {
		for ci, col := range t.Columns {
			if storages[ci] != StoragePerRow {
				continue
			}
			if err := writeCellValue(&rowData, col.Type, row[ci], sp, bp); err != nil {
				return nil, err
			}
		}
	}

	stringBytes := sp.bytes()
	binaryBytes := bp.bytes()

	dataLen := headerSize - 8 + columnData.Len() + rowData.Len() + len(stringBytes) + len(binaryBytes)
	dataOffset := dataLen
	if dataOffset%8 != 0 {
		dataOffset += 8 - dataOffset%8
	}
	binaryOffset := dataOffset
	if len(binaryBytes) != 0 {
		binaryOffset = dataLen - len(binaryBytes)
	}

	out := make([]byte, headerSize)
	copy(out[:4], Magic)
	binary.BigEndian.PutUint32(out[4:8], uint32(dataOffset))
	binary.BigEndian.PutUint32(out[8:12], uint32(headerSize-8+columnData.Len()))
	binary.BigEndian.PutUint32(out[12:16], uint32(dataLen-len(stringBytes)-len(binaryBytes)))
	binary.BigEndian.PutUint32(out[16:20], uint32(binaryOffset))
	binary.BigEndian.PutUint32(out[20:24], uint32(sp.offset(t.Name)))
	binary.BigEndian.PutUint16(out[24:26], uint16(len(t.Columns)))
	binary.BigEndian.PutUint16(out[26:28], uint16(rowWidth))
	binary.BigEndian.PutUint32(out[28:32], uint32(len(t.Rows)))

	out = append(out, columnData.Bytes()...)
	out = append(out, rowData.Bytes()...)
	out = append(out, stringBytes...)
	out = append(out, binaryBytes...)

	if len(out)%8 != 0 {
		padded := make([]byte, 8, dataOffset+8)
		copy(padded, out[:8])
		padded = append(padded, out[8:]...)
		for len(padded) < dataOffset+8 {
			padded = append(padded, 0)
		}
		out = padded
	}

	if encrypt {
		out = Decrypt(out) // XOR is its own inverse.
	}
	return out, nil
}

// columnStorage decides which Storage mode to use for column index ci,
// following the same rule the reference table builder uses: in a
// single-row table a zero cell is StorageZero and any other is
// StoragePerRow; with more rows, constant columns collapse to StorageZero
// (if the shared value is the type's zero value) or StorageConstant, and
// anything that varies (or a table with no rows) is StoragePerRow.
func columnStorage(t *Table, ci int, col Column) Storage {
	if len(t.Rows) == 0 {
		return StoragePerRow
	}
	first := t.Rows[0][ci]
	if len(t.Rows) == 1 {
		if cellIsZero(first) {
			return StorageZero
		}
		return StoragePerRow
	}
	for _, row := range t.Rows[1:] {
		if !cellEqual(row[ci], first) {
			return StoragePerRow
		}
	}
	if cellIsZero(first) {
		return StorageZero
	}
	return StorageConstant
}

func cellEqual(a, b Cell) bool {
	if a.Type != b.Type {
		return false
	}
	switch a.Type {
	case TypeString:
		return a.Str == b.Str
	case TypeBytes:
		return bytes.Equal(a.Bytes, b.Bytes)
	default:
		return a.U == b.U
	}
}

func cellIsZero(c Cell) bool {
	switch c.Type {
	case TypeString:
		return c.Str == nullString
	case TypeBytes:
		return len(c.Bytes) == 0
	default:
		return c.U == 0
	}
}

func addCellStrings(sp *stringPool, c Cell) {
	if c.Type == TypeString && c.Str != nullString {
		sp.add(c.Str)
	}
}

func writeCellValue(buf *bytes.Buffer, t Type, c Cell, sp *stringPool, bp *bytesPool) error {
	switch t {
	case TypeU8, TypeI8:
		buf.WriteByte(byte(c.U))
	case TypeU16, TypeI16:
		writeBE16(buf, uint16(c.U))
	case TypeU32, TypeI32, TypeF32:
		writeBE32(buf, uint32(c.U))
	case TypeU64, TypeI64, TypeF64:
		writeBE64(buf, c.U)
	case TypeString:
		if c.Str == nullString {
			writeBE32(buf, uint32(sp.offset(nullString)))
			return nil
		}
		writeBE32(buf, uint32(sp.offset(c.Str)))
	case TypeBytes:
		writeBE32(buf, uint32(bp.offset(c.Bytes)))
		writeBE32(buf, uint32(len(c.Bytes)))
	default:
		return cerr.New(cerr.InvalidData, fmt.Sprintf("unsupported column type %d", t), nil)
	}
	return nil
}

func writeBE16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeBE32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeBE64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

// stringPool accumulates distinct strings (table name, column names, string
// cell values) into one NUL-joined, NUL-terminated blob, in first-seen
// order, and resolves each back to its byte offset within that blob.
// "<NULL>" is always forced to the front, matching the convention that
// StorageZero string columns point at it.
type stringPool struct {
	order  []string
	seen   map[string]bool
	hasNul bool
}

func newStringPool() *stringPool {
	return &stringPool{seen: map[string]bool{}, hasNul: true}
}

func (sp *stringPool) add(s string) {
	if s == nullString {
		sp.hasNul = true
		return
	}
	if sp.seen[s] {
		return
	}
	sp.seen[s] = true
	sp.order = append(sp.order, s)
}

// bytes renders the pool. Call only after every add.
func (sp *stringPool) bytes() []byte {
	strs := sp.order
	if sp.hasNul {
		strs = append([]string{nullString}, strs...)
	}
	var buf bytes.Buffer
	for _, s := range strs {
		buf.WriteString(s)
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

// offset returns s's byte offset within the pool returned by bytes.
func (sp *stringPool) offset(s string) int {
	strs := sp.order
	if sp.hasNul {
		strs = append([]string{nullString}, strs...)
	}
	off := 0
	for _, v := range strs {
		if v == s {
			return off
		}
		off += len(v) + 1
	}
	return 0
}

// bytesPool accumulates distinct byte blobs (bytes-column values) into one
// concatenated blob, in first-seen order, deduplicating identical slices
// exactly as the reference builder does.
type bytesPool struct {
	order [][]byte
}

func (bp *bytesPool) add(b []byte) {
	for _, v := range bp.order {
		if bytes.Equal(v, b) {
			return
		}
	}
	bp.order = append(bp.order, b)
}

func (bp *bytesPool) bytes() []byte {
	var buf bytes.Buffer
	for _, b := range bp.order {
		buf.Write(b)
	}
	return buf.Bytes()
}

func (bp *bytesPool) offset(b []byte) int {
	off := 0
	for _, v := range bp.order {
		if bytes.Equal(v, b) {
			return off
		}
		off += len(v)
	}
	return 0
}

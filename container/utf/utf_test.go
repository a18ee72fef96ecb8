/*
NAME
  utf_test.go

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
	"testing"

	"github.com/google/go-cmp/cmp"
)

func exTable() *Table {
	return &Table{
		Name: "Ex",
		Columns: []Column{
			{Name: "Id", Type: TypeU32, Storage: StoragePerRow},
		},
		Rows: [][]Cell{
			{{Type: TypeU32, U: 1}},
			{{Type: TypeU32, U: 2}},
		},
	}
}

// TestBuildMinimal covers the two-row, one-column table.
func TestBuildMinimal(t *testing.T) {
	b, err := Build(exTable())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !bytes.Equal(b[:4], Magic) {
		t.Fatalf("magic = %q, want %q", b[:4], Magic)
	}

	got, err := Parse(b)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(got.Columns) != 1 {
		t.Fatalf("column_count = %d, want 1", len(got.Columns))
	}
	if len(got.Rows) != 2 {
		t.Fatalf("row_count = %d, want 2", len(got.Rows))
	}
	cell, ok := got.Cell(1, "Id")
	if !ok {
		t.Fatal("column Id not found")
	}
	if cell.U32() != 2 {
		t.Fatalf("rows[1].Id = %d, want 2", cell.U32())
	}
}

// TestBuildParseRoundTrip exercises a richer table mixing per-row,
// constant and zero-valued columns across several scalar types (u32, u8,
// u16) plus string and bytes columns.
func TestBuildParseRoundTrip(t *testing.T) {
	table := &Table{
		Name: "Cues",
		Columns: []Column{
			{Name: "CueId", Type: TypeU32, Storage: StoragePerRow},
			{Name: "Name", Type: TypeString, Storage: StoragePerRow},
			{Name: "Flags", Type: TypeU8, Storage: StorageZero},
			{Name: "Version", Type: TypeU16, Storage: StorageConstant, Constant: Cell{Type: TypeU16, U: 7}},
			{Name: "Payload", Type: TypeBytes, Storage: StoragePerRow},
		},
		Rows: [][]Cell{
			{
				{Type: TypeU32, U: 1},
				{Type: TypeString, Str: "intro"},
				{Type: TypeU8, U: 0},
				{Type: TypeU16, U: 7},
				{Type: TypeBytes, Bytes: []byte{0xDE, 0xAD}},
			},
			{
				{Type: TypeU32, U: 2},
				{Type: TypeString, Str: "loop"},
				{Type: TypeU8, U: 0},
				{Type: TypeU16, U: 7},
				{Type: TypeBytes, Bytes: []byte{0xBE, 0xEF, 0x00}},
			},
		},
	}

	b, err := Build(table)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	got, err := Parse(b)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if got.Name != table.Name {
		t.Fatalf("table name = %q, want %q", got.Name, table.Name)
	}
	for r := range table.Rows {
		for _, col := range []string{"CueId", "Name", "Flags", "Version", "Payload"} {
			want, _ := table.Cell(r, col)
			have, ok := got.Cell(r, col)
			if !ok {
				t.Fatalf("row %d: column %s missing after round trip", r, col)
			}
			if diff := cmp.Diff(want, have); diff != "" {
				t.Errorf("row %d column %s mismatch (-want +got):\n%s", r, col, diff)
			}
		}
	}
}

// TestEncryptionRoundTrip checks property 2: decrypt(encrypt(bytes)) ==
// bytes, using the fixed (0x655F, 0x4115) keystream.
func TestEncryptionRoundTrip(t *testing.T) {
	plain, err := Build(exTable())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	encrypted, err := BuildEncrypted(exTable())
	if err != nil {
		t.Fatalf("BuildEncrypted: %v", err)
	}
	if bytes.Equal(encrypted[:4], Magic) {
		t.Fatal("encrypted table still begins with the plain magic")
	}
	if !bytes.Equal(encrypted[:4], EncryptedMagic) {
		t.Fatalf("encrypted magic = %x, want %x", encrypted[:4], EncryptedMagic)
	}

	got, err := Parse(encrypted)
	if err != nil {
		t.Fatalf("Parse(encrypted): %v", err)
	}
	want, err := Parse(plain)
	if err != nil {
		t.Fatalf("Parse(plain): %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("decrypted table mismatch (-want +got):\n%s", diff)
	}

	if !bytes.Equal(Decrypt(Decrypt(plain)), plain) {
		t.Error("Decrypt is not its own inverse")
	}
}

func TestParseInvalidMagic(t *testing.T) {
	_, err := Parse([]byte("not a table"))
	if err == nil {
		t.Fatal("expected error for invalid magic")
	}
}

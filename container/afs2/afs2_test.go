/*
NAME
  afs2_test.go

AUTHOR
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package afs2

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ausocean/cricodec/pkg/byteio"
)

// TestBuildOffsets covers S2: two entries, align=0x20, the header itself
// already a multiple of 0x20 with a 4-byte offset table.
func TestBuildOffsets(t *testing.T) {
	bank := &Bank{
		Align: 0x20,
		Entries: []Entry{
			{ID: 0, Data: []byte("AA")},
			{ID: 1, Data: []byte("BBBB")},
		},
	}
	offs := Offsets(bank)
	headerSize := byteio.AlignUp(16+2*2+4*3, 0x20)
	want := []uint64{uint64(headerSize), uint64(headerSize + 0x20), uint64(headerSize + 0x40)}
	if diff := cmp.Diff(want, offs); diff != "" {
		t.Errorf("offsets mismatch (-want +got):\n%s", diff)
	}
}

// TestOffsetMonotonicity covers property 4: offsets are strictly
// non-decreasing and the final entry equals the total stored size.
func TestOffsetMonotonicity(t *testing.T) {
	bank := &Bank{
		Align: 0x10,
		Entries: []Entry{
			{ID: 0, Data: []byte("x")},
			{ID: 1, Data: []byte("short")},
			{ID: 2, Data: bytes.Repeat([]byte{0x7F}, 100)},
		},
	}
	built := Build(bank)
	offs := Offsets(bank)
	for i := 1; i < len(offs); i++ {
		if offs[i] < offs[i-1] {
			t.Fatalf("offsets[%d]=%d < offsets[%d]=%d", i, offs[i], i-1, offs[i-1])
		}
	}
	if int(offs[len(offs)-1]) != len(built) {
		t.Fatalf("offsets[count]=%d, want total stored size %d", offs[len(offs)-1], len(built))
	}
}

func TestParseBuildRoundTrip(t *testing.T) {
	// Align 1 keeps every entry's stored length equal to its original
	// length, so the round trip doesn't pick up zero-padding AWB would
	// otherwise (harmlessly) bake into the stored bytes.
	bank := &Bank{
		Version: 2,
		Align:   1,
		Subkey:  0,
		Entries: []Entry{
			{ID: 10, Data: []byte("HCA-DATA")},
			{ID: 11, Data: bytes.Repeat([]byte{0xAB}, 40)},
		},
	}
	built := Build(bank)
	got, err := Parse(built)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if diff := cmp.Diff(bank, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestParseInvalidMagic(t *testing.T) {
	_, err := Parse(bytes.Repeat([]byte{0}, 32))
	if err == nil {
		t.Fatal("expected error for invalid magic")
	}
}

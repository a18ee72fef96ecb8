/*
NAME
  acb_test.go

AUTHOR
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package acb

import (
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/ausocean/cricodec/container/afs2"
	"github.com/ausocean/cricodec/container/utf"
)

func u8(v uint8) utf.Cell     { return utf.Cell{Type: utf.TypeU8, U: uint64(v)} }
func u16(v uint16) utf.Cell   { return utf.Cell{Type: utf.TypeU16, U: uint64(v)} }
func u32(v uint32) utf.Cell   { return utf.Cell{Type: utf.TypeU32, U: uint64(v)} }
func str(v string) utf.Cell   { return utf.Cell{Type: utf.TypeString, Str: v} }
func bts(v []byte) utf.Cell   { return utf.Cell{Type: utf.TypeBytes, Bytes: v} }
func be16(vs ...uint16) []byte {
	b := make([]byte, len(vs)*2)
	for i, v := range vs {
		binary.BigEndian.PutUint16(b[i*2:], v)
	}
	return b
}

func buildTable(t *testing.T, name string, cols []utf.Column, rows [][]utf.Cell) []byte {
	t.Helper()
	tbl := &utf.Table{Name: name, Columns: cols, Rows: rows}
	b, err := utf.Build(tbl)
	if err != nil {
		t.Fatalf("building %s: %v", name, err)
	}
	return b
}

// buildSampleACB constructs a root ACB table with two direct waveform cues
// and one sequence cue referencing both waveforms, plus an embedded AWB
// bank holding the two waveforms' bytes.
func buildSampleACB(t *testing.T) []byte {
	t.Helper()

	waveformTable := buildTable(t, "WaveformTable",
		[]utf.Column{{Name: "MemoryAwbId", Type: utf.TypeU16}, {Name: "EncodeType", Type: utf.TypeU8}},
		[][]utf.Cell{
			{u16(1), u8(2)},
			{u16(2), u8(2)},
		})

	cueTable := buildTable(t, "CueTable",
		[]utf.Column{{Name: "ReferenceType", Type: utf.TypeU8}, {Name: "ReferenceIndex", Type: utf.TypeU16}},
		[][]utf.Cell{
			{u8(1), u16(0)},
			{u8(1), u16(1)},
			{u8(3), u16(0)},
		})

	sequenceTable := buildTable(t, "SequenceTable",
		[]utf.Column{{Name: "TrackIndex", Type: utf.TypeBytes}},
		[][]utf.Cell{
			{bts(be16(0, 1))},
		})

	cueNameTable := buildTable(t, "CueNameTable",
		[]utf.Column{{Name: "CueName", Type: utf.TypeString}, {Name: "CueIndex", Type: utf.TypeU32}},
		[][]utf.Cell{
			{str("cue_a"), u32(0)},
			{str("cue_b"), u32(1)},
			{str("cue_seq"), u32(2)},
		})

	bank := &afs2.Bank{
		Align: 0x20,
		Entries: []afs2.Entry{
			{ID: 1, Data: []byte("waveform one bytes")},
			{ID: 2, Data: []byte("waveform two bytes, a bit longer")},
		},
	}
	awbBytes := afs2.Build(bank)

	root := buildTable(t, "Header",
		[]utf.Column{
			{Name: "AwbFile", Type: utf.TypeBytes},
			{Name: "Name", Type: utf.TypeString},
			{Name: "CueNameTable", Type: utf.TypeBytes},
			{Name: "CueTable", Type: utf.TypeBytes},
			{Name: "WaveformTable", Type: utf.TypeBytes},
			{Name: "SequenceTable", Type: utf.TypeBytes},
		},
		[][]utf.Cell{{
			bts(awbBytes), str("root"), bts(cueNameTable), bts(cueTable), bts(waveformTable), bts(sequenceTable),
		}})
	return root
}

func TestResolveWaveformAndSequenceCues(t *testing.T) {
	root := buildSampleACB(t)
	a, err := Resolve(root, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(a.Skipped) != 0 {
		t.Errorf("Skipped = %v, want none", a.Skipped)
	}

	// The bank is 0x20-aligned, so each entry's stored bytes run up to the
	// next 0x20 boundary: the 18-byte first waveform carries 14 zero bytes
	// of padding, the 32-byte second one none.
	one := append([]byte("waveform one bytes"), make([]byte, 14)...)
	two := []byte("waveform two bytes, a bit longer")
	want := []File{
		{Name: "cue_a", Data: one, EncodeType: 2},
		{Name: "cue_b", Data: two, EncodeType: 2},
		{Name: "cue_seq_0", Data: one, EncodeType: 2},
		{Name: "cue_seq_1", Data: two, EncodeType: 2},
	}
	if diff := cmp.Diff(want, a.Files, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveSkipsUnsupportedReferenceTypes(t *testing.T) {
	waveformTable := buildTable(t, "WaveformTable",
		[]utf.Column{{Name: "MemoryAwbId", Type: utf.TypeU16}, {Name: "EncodeType", Type: utf.TypeU8}},
		[][]utf.Cell{{u16(1), u8(2)}})

	cueTable := buildTable(t, "CueTable",
		[]utf.Column{{Name: "ReferenceType", Type: utf.TypeU8}, {Name: "ReferenceIndex", Type: utf.TypeU16}},
		[][]utf.Cell{
			{u8(2), u16(0)}, // synth, unsupported
			{u8(8), u16(0)}, // block, unsupported
		})

	cueNameTable := buildTable(t, "CueNameTable",
		[]utf.Column{{Name: "CueName", Type: utf.TypeString}, {Name: "CueIndex", Type: utf.TypeU32}},
		[][]utf.Cell{
			{str("synth_cue"), u32(0)},
			{str("block_cue"), u32(1)},
		})

	bank := &afs2.Bank{Entries: []afs2.Entry{{ID: 1, Data: []byte("x")}}}
	awbBytes := afs2.Build(bank)

	root := buildTable(t, "Header",
		[]utf.Column{
			{Name: "AwbFile", Type: utf.TypeBytes},
			{Name: "Name", Type: utf.TypeString},
			{Name: "CueNameTable", Type: utf.TypeBytes},
			{Name: "CueTable", Type: utf.TypeBytes},
			{Name: "WaveformTable", Type: utf.TypeBytes},
		},
		[][]utf.Cell{{bts(awbBytes), str("root"), bts(cueNameTable), bts(cueTable), bts(waveformTable)}})

	a, err := Resolve(root, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(a.Files) != 0 {
		t.Errorf("Files = %v, want none", a.Files)
	}
	want := []string{"synth_cue", "block_cue"}
	if diff := cmp.Diff(want, a.Skipped); diff != "" {
		t.Errorf("Skipped mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveMissingAwbFileUsesSibling(t *testing.T) {
	waveformTable := buildTable(t, "WaveformTable",
		[]utf.Column{{Name: "MemoryAwbId", Type: utf.TypeU16}, {Name: "EncodeType", Type: utf.TypeU8}},
		[][]utf.Cell{{u16(5), u8(0)}})
	cueTable := buildTable(t, "CueTable",
		[]utf.Column{{Name: "ReferenceType", Type: utf.TypeU8}, {Name: "ReferenceIndex", Type: utf.TypeU16}},
		[][]utf.Cell{{u8(1), u16(0)}})
	cueNameTable := buildTable(t, "CueNameTable",
		[]utf.Column{{Name: "CueName", Type: utf.TypeString}, {Name: "CueIndex", Type: utf.TypeU32}},
		[][]utf.Cell{{str("only_cue"), u32(0)}})

	bank := &afs2.Bank{Entries: []afs2.Entry{{ID: 5, Data: []byte("sibling data")}}}
	awbBytes := afs2.Build(bank)

	root := buildTable(t, "Header",
		[]utf.Column{
			{Name: "Name", Type: utf.TypeString},
			{Name: "CueNameTable", Type: utf.TypeBytes},
			{Name: "CueTable", Type: utf.TypeBytes},
			{Name: "WaveformTable", Type: utf.TypeBytes},
		},
		[][]utf.Cell{{str("bank01"), bts(cueNameTable), bts(cueTable), bts(waveformTable)}})

	var loadedName string
	a, err := Resolve(root, func(name string) ([]byte, error) {
		loadedName = name
		return awbBytes, nil
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if loadedName != "bank01.awb" {
		t.Errorf("loaded sibling name = %q, want %q", loadedName, "bank01.awb")
	}
	// afs2.Build defaults to 0x20 alignment, so the stored entry is the 12
	// data bytes plus 20 zero bytes of padding.
	if len(a.Files) != 1 || string(a.Files[0].Data) != "sibling data"+string(make([]byte, 20)) {
		t.Errorf("Files = %+v, want one file with sibling data", a.Files)
	}
}

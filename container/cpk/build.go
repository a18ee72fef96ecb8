/*
NAME
  build.go - assembles a CPK archive from an Archive value.

AUTHOR
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package cpk

import (
	"bytes"
	"encoding/binary"

	"github.com/ausocean/cricodec/container/utf"
	"github.com/ausocean/cricodec/pkg/byteio"
	"github.com/ausocean/cricodec/pkg/cerr"
)

const defaultAlign = 0x800

var criMarker = []byte("(c)CRI")

func u8Cell(v uint8) utf.Cell    { return utf.Cell{Type: utf.TypeU8, U: uint64(v)} }
func u16Cell(v uint16) utf.Cell  { return utf.Cell{Type: utf.TypeU16, U: uint64(v)} }
func u32Cell(v uint32) utf.Cell  { return utf.Cell{Type: utf.TypeU32, U: uint64(v)} }
func u64Cell(v uint64) utf.Cell  { return utf.Cell{Type: utf.TypeU64, U: v} }
func strCell(v string) utf.Cell { return utf.Cell{Type: utf.TypeString, Str: v} }
func bytesCell(v []byte) utf.Cell {
	return utf.Cell{Type: utf.TypeBytes, Bytes: v}
}

// chunk wraps body in a 16-byte CPK chunk header: magic(4), unk04(u32,
// zero), packet_size(u32, len(body)), unk0C(u32, zero).
func chunk(magic string, body []byte) []byte {
	out := make([]byte, chunkHeaderSize+len(body))
	copy(out[:4], magic)
	binary.LittleEndian.PutUint32(out[8:12], uint32(len(body)))
	copy(out[chunkHeaderSize:], body)
	return out
}

// padRegion pads b up to the next multiple of align, inserting marker
// immediately before the zero padding when non-nil.
func padRegion(b []byte, align int, marker []byte) []byte {
	if marker != nil {
		b = append(b, marker...)
	}
	target := byteio.AlignUp(len(b), align)
	if target > len(b) {
		b = append(b, make([]byte, target-len(b))...)
	}
	return b
}

// Build serialises a into CPK bytes. Mode must be ModeITOC or ModeTOC; ETOC
// and GTOC regions are never emitted (see DESIGN.md).
func Build(a *Archive) ([]byte, error) {
	align := int(a.Align)
	if align == 0 {
		align = defaultAlign
	}

	switch a.Mode {
	case ModeTOC:
		return buildTOC(a.Files, align)
	case ModeITOC:
		return buildITOC(a.Files, align)
	default:
		return nil, cerr.New(cerr.UnsupportedFormat, "cpk: Build only supports ModeITOC and ModeTOC", nil)
	}
}

func buildTOC(files []File, align int) ([]byte, error) {
	sorted := append([]File{}, files...)
	sortFiles(sorted)

	const tocOffset = 0x800
	tocTable := &utf.Table{
		Name: "CpkTocInfo",
		Columns: []utf.Column{
			{Name: "DirName", Type: utf.TypeString},
			{Name: "FileName", Type: utf.TypeString},
			{Name: "FileSize", Type: utf.TypeU32},
			{Name: "ExtractSize", Type: utf.TypeU32},
			{Name: "FileOffset", Type: utf.TypeU64},
			{Name: "ID", Type: utf.TypeU32},
			{Name: "UserString", Type: utf.TypeString},
		},
	}

	// FileOffset is relative to tocOffset, so it can't be finalised until
	// the (padded) TOC region's size is known. Build the table first with
	// distinct non-zero placeholder offsets (so the column's @UTF storage
	// mode - zero/constant/per-row - is already whatever the real offsets
	// will need), measure it, then patch the real offsets in without
	// changing that storage mode or the table's overall size.
	for i, f := range sorted {
		tocTable.Rows = append(tocTable.Rows, []utf.Cell{
			strCell(f.Dir), strCell(f.Name), u32Cell(uint32(len(f.Data))),
			u32Cell(uint32(len(f.Data))), u64Cell(uint64(i + 1)), u32Cell(uint32(f.ID)), strCell("<NULL>"),
		})
	}
	measured, err := utf.Build(tocTable)
	if err != nil {
		return nil, cerr.Wrap(err, "building TOC table")
	}
	tocBodySize := len(measured)
	tocRegion := padRegion(chunk("TOC ", measured), align, nil)
	contentOffset := tocOffset + len(tocRegion)

	contentOffsetFromToc := contentOffset - tocOffset
	running := contentOffsetFromToc
	for i, f := range sorted {
		tocTable.Rows[i][4] = u64Cell(uint64(running))
		running += byteio.AlignUp(len(f.Data), align)
	}
	finalUTF, err := utf.Build(tocTable)
	if err != nil {
		return nil, cerr.Wrap(err, "building TOC table")
	}
	if len(finalUTF) != tocBodySize {
		return nil, cerr.New(cerr.InvalidData, "cpk: TOC size changed after offset patch", nil)
	}
	tocRegion = padRegion(chunk("TOC ", finalUTF), align, nil)

	var content bytes.Buffer
	for _, f := range sorted {
		content.Write(f.Data)
		pad := byteio.AlignUp(len(f.Data), align) - len(f.Data)
		content.Write(make([]byte, pad))
	}

	headerRow := cpkHeaderRow(1, map[string]utf.Cell{
		"TocOffset": u64Cell(uint64(tocOffset)),
		"TocSize":   u64Cell(uint64(chunkHeaderSize + tocBodySize)),
		"Files":     u32Cell(uint32(len(sorted))),
		"Align":     u16Cell(uint16(align)),
	})
	headerRegion, err := buildHeaderRegion(headerRow)
	if err != nil {
		return nil, err
	}

	out := append([]byte{}, headerRegion...)
	out = append(out, tocRegion...)
	out = append(out, content.Bytes()...)
	return out, nil
}

func buildITOC(files []File, align int) ([]byte, error) {
	type entry struct {
		id          int
		size, extra uint64
	}
	var dataL, dataH []entry
	for _, f := range files {
		e := entry{id: f.ID, size: uint64(len(f.Data)), extra: uint64(len(f.Data))}
		if e.size > 0xFFFF {
			dataH = append(dataH, e)
		} else {
			dataL = append(dataL, e)
		}
	}
	// A zero-row DataL/DataH sub-table is a valid, empty @UTF table, so
	// unlike the reference builder this doesn't pad an empty side with a
	// dummy row: a dummy row with ID 0 would collide with a genuine file
	// ID 0 stored on the other side and be picked up by filesFromITOC's
	// dataH-first lookup.
	buildSubtable := func(name string, entries []entry, wide bool) ([]byte, error) {
		sizeType, idType := utf.TypeU16, utf.TypeU16
		if wide {
			sizeType = utf.TypeU32
		}
		t := &utf.Table{
			Name: name,
			Columns: []utf.Column{
				{Name: "ID", Type: idType},
				{Name: "FileSize", Type: sizeType},
				{Name: "ExtractSize", Type: sizeType},
			},
		}
		for _, e := range entries {
			var sizeCell, extraCell utf.Cell
			if wide {
				sizeCell, extraCell = u32Cell(uint32(e.size)), u32Cell(uint32(e.extra))
			} else {
				sizeCell, extraCell = u16Cell(uint16(e.size)), u16Cell(uint16(e.extra))
			}
			t.Rows = append(t.Rows, []utf.Cell{u16Cell(uint16(e.id)), sizeCell, extraCell})
		}
		return utf.Build(t)
	}

	dataLBytes, err := buildSubtable("CpkItocL", dataL, false)
	if err != nil {
		return nil, cerr.Wrap(err, "building ITOC DataL")
	}
	dataHBytes, err := buildSubtable("CpkItocH", dataH, true)
	if err != nil {
		return nil, cerr.Wrap(err, "building ITOC DataH")
	}

	itocTable := &utf.Table{
		Name: "CpkItocInfo",
		Columns: []utf.Column{
			{Name: "FilesL", Type: utf.TypeU32},
			{Name: "FilesH", Type: utf.TypeU32},
			{Name: "DataL", Type: utf.TypeBytes},
			{Name: "DataH", Type: utf.TypeBytes},
		},
		Rows: [][]utf.Cell{{
			u32Cell(uint32(len(dataL))), u32Cell(uint32(len(dataH))),
			bytesCell(dataLBytes), bytesCell(dataHBytes),
		}},
	}
	itocBody, err := utf.Build(itocTable)
	if err != nil {
		return nil, cerr.Wrap(err, "building ITOC table")
	}

	const itocOffset = 0x800
	itocRegion := padRegion(chunk("ITOC", itocBody), align, nil)
	contentOffset := itocOffset + len(itocRegion)

	sorted := append([]File{}, files...)
	sortFilesByID(sorted)

	var content bytes.Buffer
	for _, f := range sorted {
		content.Write(f.Data)
		pad := byteio.AlignUp(len(f.Data), align) - len(f.Data)
		content.Write(make([]byte, pad))
	}

	headerRow := cpkHeaderRow(0, map[string]utf.Cell{
		"ItocOffset":    u64Cell(uint64(itocOffset)),
		"ItocSize":      u64Cell(uint64(chunkHeaderSize + len(itocBody))),
		"ContentOffset": u64Cell(uint64(contentOffset)),
		"Files":         u32Cell(uint32(len(files))),
		"Align":         u16Cell(uint16(align)),
	})
	headerRegion, err := buildHeaderRegion(headerRow)
	if err != nil {
		return nil, err
	}

	out := append([]byte{}, headerRegion...)
	out = append(out, itocRegion...)
	out = append(out, content.Bytes()...)
	return out, nil
}

func sortFilesByID(files []File) {
	for i := 1; i < len(files); i++ {
		for j := i; j > 0 && files[j].ID < files[j-1].ID; j-- {
			files[j], files[j-1] = files[j-1], files[j]
		}
	}
}

// cpkHeaderRow builds the CpkHeader table's single row for the given mode,
// zeroing every offset/size field the mode doesn't use, then overlaying the
// fields the caller supplies.
func cpkHeaderRow(mode uint16, fields map[string]utf.Cell) map[string]utf.Cell {
	row := map[string]utf.Cell{
		"CpkMode":       u16Cell(mode),
		"TocOffset":     u64Cell(0),
		"TocSize":       u64Cell(0),
		"ItocOffset":    u64Cell(0),
		"ItocSize":      u64Cell(0),
		"EtocOffset":    u64Cell(0),
		"EtocSize":      u64Cell(0),
		"GtocOffset":    u64Cell(0),
		"GtocSize":      u64Cell(0),
		"ContentOffset": u64Cell(0),
		"Files":         u32Cell(0),
		"Align":         u16Cell(defaultAlign),
	}
	for k, v := range fields {
		row[k] = v
	}
	return row
}

func buildHeaderRegion(fields map[string]utf.Cell) ([]byte, error) {
	names := []string{
		"CpkMode", "TocOffset", "TocSize", "ItocOffset", "ItocSize",
		"EtocOffset", "EtocSize", "GtocOffset", "GtocSize", "ContentOffset",
		"Files", "Align",
	}
	t := &utf.Table{Name: "CpkHeader"}
	row := make([]utf.Cell, len(names))
	for i, n := range names {
		c := fields[n]
		t.Columns = append(t.Columns, utf.Column{Name: n, Type: c.Type})
		row[i] = c
	}
	t.Rows = [][]utf.Cell{row}

	body, err := utf.Build(t)
	if err != nil {
		return nil, cerr.Wrap(err, "building CpkHeader table")
	}
	region := padRegion(chunk("CPK ", body), 0x800, criMarker)
	if len(region) != 0x800 {
		return nil, cerr.New(cerr.InvalidData, "cpk: CpkHeader table too large for the fixed 0x800-byte region", nil)
	}
	return region, nil
}

/*
NAME
  cpk.go - the CPK archive container.

AUTHOR
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package cpk reads and writes CPK archives: a 16-byte chunk header, an
// @UTF "CpkHeader" table carrying absolute offsets to sibling TOC/ITOC/
// ETOC/GTOC tables (each itself a 16-byte chunk header plus an @UTF
// table), and a content region of packed, Align-padded files, optionally
// CRILAYLA-compressed per file.
//
// Parse follows whichever of TOC/ITOC is present (a real CPK always has
// at least one); Build emits CpkMode 0 (ITOC-only, numeric filenames) or
// CpkMode 1 (TOC, directory tree preserved). ETOC and GTOC are read
// through (their tables are reachable via Archive.Raw) but this package
// does not synthesize them - see DESIGN.md.
package cpk

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"github.com/ausocean/cricodec/codec/crilayla"
	"github.com/ausocean/cricodec/container/utf"
	"github.com/ausocean/cricodec/pkg/byteio"
	"github.com/ausocean/cricodec/pkg/cerr"
)

const chunkHeaderSize = 16 // magic(4) + unk04(u32) + packet_size(u32) + unk0C(u32), little-endian.

// Mode selects which index table(s) an archive is organised around.
type Mode int

const (
	// ModeITOC uses only an ITOC, numeric filenames, no directory tree.
	ModeITOC Mode = 0
	// ModeTOC is the general case: a TOC with names and a directory tree.
	ModeTOC Mode = 1
)

// File is one packed file, already decompressed if it was stored
// CRILAYLA-compressed.
type File struct {
	ID   int
	Name string // empty in ModeITOC.
	Dir  string // empty in ModeITOC.
	Data []byte
}

// Archive is a parsed or to-be-built CPK.
type Archive struct {
	Mode  Mode
	Align uint16
	Files []File
	// Raw holds every @UTF table Parse found, keyed by chunk magic ("CPK",
	// "TOC ", "ITOC", "ETOC", "GTOC" - whichever are present), so a caller
	// can inspect sibling tables this package doesn't interpret. HTOC and
	// HGTOC are not read.
	Raw map[string]*utf.Table
}

func readChunkHeader(b []byte, wantMagic string) (packetSize uint32, err error) {
	if len(b) < chunkHeaderSize || string(b[:4]) != wantMagic {
		got := b
		if len(got) > 4 {
			got = got[:4]
		}
		return 0, cerr.Magic(0, []byte(wantMagic), got)
	}
	return binary.LittleEndian.Uint32(b[8:12]), nil
}

// Parse reads a complete CPK archive from b.
func Parse(b []byte) (*Archive, error) {
	if len(b) < 0x800 {
		return nil, cerr.At(cerr.InvalidData, int64(len(b)), "input shorter than CPK's fixed 0x800-byte header", nil)
	}
	if _, err := readChunkHeader(b, "CPK "); err != nil {
		return nil, err
	}
	cpkTable, err := utf.Parse(b[chunkHeaderSize:0x800])
	if err != nil {
		return nil, cerr.Wrap(err, "parsing CpkHeader")
	}

	raw := map[string]*utf.Table{"CPK": cpkTable}
	a := &Archive{Raw: raw}

	cell := func(name string) (utf.Cell, bool) { return cpkTable.Cell(0, name) }
	u64 := func(name string) uint64 {
		if c, ok := cell(name); ok {
			return c.U64()
		}
		return 0
	}

	if align, ok := cell("Align"); ok {
		a.Align = align.U16()
	}
	if m, ok := cell("CpkMode"); ok {
		a.Mode = Mode(m.U16())
	}

	loadSibling := func(name, offsetField, sizeField string) (*utf.Table, uint64, error) {
		offset := u64(offsetField)
		size := u64(sizeField)
		if offset == 0 {
			return nil, 0, nil
		}
		if offset+size > uint64(len(b)) {
			return nil, 0, cerr.At(cerr.InvalidData, int64(offset), fmt.Sprintf("%s overruns input", name), nil)
		}
		chunk := b[offset : offset+size]
		if _, err := readChunkHeader(chunk, name); err != nil {
			return nil, 0, err
		}
		t, err := utf.Parse(chunk[chunkHeaderSize:])
		if err != nil {
			return nil, 0, cerr.Wrap(err, fmt.Sprintf("parsing %s", name))
		}
		raw[name] = t
		return t, offset, nil
	}

	tocTable, tocOffset, err := loadSibling("TOC ", "TocOffset", "TocSize")
	if err != nil {
		return nil, err
	}
	itocTable, _, err := loadSibling("ITOC", "ItocOffset", "ItocSize")
	if err != nil {
		return nil, err
	}
	if _, _, err := loadSibling("ETOC", "EtocOffset", "EtocSize"); err != nil {
		return nil, err
	}
	if _, _, err := loadSibling("GTOC", "GtocOffset", "GtocSize"); err != nil {
		return nil, err
	}

	switch {
	case tocTable != nil:
		a.Mode = ModeTOC
		a.Files, err = filesFromTOC(b, tocTable, tocOffset)
	case itocTable != nil:
		a.Mode = ModeITOC
		a.Files, err = filesFromITOC(b, itocTable, u64("Files"), uint16(a.Align), u64("ContentOffset"))
	default:
		return nil, cerr.New(cerr.InvalidData, "CPK has neither a TOC nor an ITOC", nil)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func filesFromTOC(b []byte, t *utf.Table, tocOffset uint64) ([]File, error) {
	n := len(t.Rows)
	files := make([]File, n)
	for i := 0; i < n; i++ {
		name, _ := t.Cell(i, "FileName")
		dir, _ := t.Cell(i, "DirName")
		fileSize, _ := t.Cell(i, "FileSize")
		extractSize, _ := t.Cell(i, "ExtractSize")
		fileOffset, _ := t.Cell(i, "FileOffset")
		id, _ := t.Cell(i, "ID")

		start := tocOffset + fileOffset.U64()
		end := start + fileSize.U64()
		if end > uint64(len(b)) {
			return nil, cerr.At(cerr.InvalidData, int64(start), "TOC entry overruns input", nil)
		}
		data := b[start:end]
		if extractSize.U64() > fileSize.U64() {
			decompressed, err := crilayla.Decompress(data)
			if err != nil {
				return nil, cerr.Wrap(err, "decompressing TOC entry")
			}
			data = decompressed
		}
		files[i] = File{ID: int(id.I32()), Name: name.Str, Dir: dir.Str, Data: data}
	}
	return files, nil
}

func filesFromITOC(b []byte, itoc *utf.Table, fileCount uint64, align uint16, contentOffset uint64) ([]File, error) {
	dataLCell, ok := itoc.Cell(0, "DataL")
	if !ok {
		return nil, cerr.New(cerr.InvalidData, "ITOC missing DataL", nil)
	}
	dataHCell, ok := itoc.Cell(0, "DataH")
	if !ok {
		return nil, cerr.New(cerr.InvalidData, "ITOC missing DataH", nil)
	}
	dataL, err := utf.Parse(dataLCell.Bytes)
	if err != nil {
		return nil, cerr.Wrap(err, "parsing ITOC DataL")
	}
	dataH, err := utf.Parse(dataHCell.Bytes)
	if err != nil {
		return nil, cerr.Wrap(err, "parsing ITOC DataH")
	}

	byID := func(t *utf.Table, id int) (fileSize, extractSize uint64, ok bool) {
		for i := range t.Rows {
			c, _ := t.Cell(i, "ID")
			if int(c.I32()) != id {
				continue
			}
			fs, _ := t.Cell(i, "FileSize")
			es, _ := t.Cell(i, "ExtractSize")
			return fs.U64(), es.U64(), true
		}
		return 0, 0, false
	}

	if align == 0 {
		align = 0x800
	}
	files := make([]File, 0, fileCount)
	offset := contentOffset
	for id := 0; uint64(id) < fileCount; id++ {
		fileSize, extractSize, found := byID(dataH, id)
		if !found {
			fileSize, extractSize, found = byID(dataL, id)
		}
		if !found {
			continue
		}
		start := offset
		end := start + fileSize
		if end > uint64(len(b)) {
			return nil, cerr.At(cerr.InvalidData, int64(start), "ITOC entry overruns input", nil)
		}
		data := b[start:end]
		if extractSize > fileSize {
			decompressed, err := crilayla.Decompress(data)
			if err != nil {
				return nil, cerr.Wrap(err, "decompressing ITOC entry")
			}
			data = decompressed
		}
		files = append(files, File{ID: id, Data: data})
		offset += uint64(byteio.AlignUp(int(fileSize), int(align)))
	}
	return files, nil
}

// sortKey maps a path segment to a sort key where '_' sorts after 'z',
// matching the builder's case-insensitive, underscore-last ordering.
func sortKey(name string) string {
	lower := strings.ToLower(name)
	var sb strings.Builder
	for _, r := range lower {
		if r == '_' {
			sb.WriteRune('{') // one past 'z' in ASCII.
		} else {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func sortFiles(files []File) {
	sort.SliceStable(files, func(i, j int) bool {
		di, dj := sortKey(files[i].Dir), sortKey(files[j].Dir)
		if di != dj {
			return di < dj
		}
		return sortKey(files[i].Name) < sortKey(files[j].Name)
	})
}

/*
NAME
  acb.go - the ACB cue-to-waveform resolver.

AUTHOR
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package acb resolves an ACB's cue names to the waveform bytes an AWB
// bank stores. An ACB is itself one @UTF table whose interesting columns
// are themselves @UTF tables stored as bytes cells (CueNameTable,
// CueTable, WaveformTable, SequenceTable, ...); this package unwraps
// those on demand rather than eagerly flattening the whole tree, since
// only a handful of them matter for name resolution.
package acb

import (
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/ausocean/cricodec/container/afs2"
	"github.com/ausocean/cricodec/container/utf"
	"github.com/ausocean/cricodec/pkg/cerr"
)

// referenceType values CueTable rows carry; only Waveform and Sequence are
// resolved here.
const (
	referenceWaveform = 1
	referenceSynth    = 2
	referenceSequence = 3
	referenceBlock    = 8
)

// File is one resolved cue: a name and the waveform bytes it points at,
// still in their stored form (ADX or HCA, raw or AFS2-padded).
type File struct {
	Name       string
	Data       []byte
	EncodeType int
}

// Archive is a fully resolved ACB/AWB pair.
type Archive struct {
	Files []File
	// Subkey is the AWB bank's HCA decryption subkey (0 if unset).
	Subkey uint16
	// Skipped records cue names whose CueTable row carried a ReferenceType
	// this package doesn't resolve (anything but 1 "waveform" or 3
	// "sequence", e.g. 2 "synth" or 8 "block"), so a caller
	// can report them without the whole resolve failing.
	Skipped []string
}

// SiblingLoader fetches a sibling AWB file by name (just the base file
// name with ".awb" appended - no directory has been joined in).
type SiblingLoader func(name string) ([]byte, error)

// Resolve parses root as an ACB and resolves every cue it can to waveform
// bytes. root's row 0 Name cell plus loadAWB together recover the AWB
// bank when it isn't embedded directly in an AwbFile cell.
func Resolve(root []byte, loadAWB SiblingLoader) (*Archive, error) {
	rootTable, err := utf.Parse(root)
	if err != nil {
		return nil, cerr.Wrap(err, "parsing ACB root table")
	}
	if len(rootTable.Rows) == 0 {
		return nil, cerr.New(cerr.InvalidData, "ACB root table has no rows", nil)
	}

	bank, err := locateAWB(rootTable, loadAWB)
	if err != nil {
		return nil, err
	}

	cueNameTable, err := subTable(rootTable, "CueNameTable")
	if err != nil {
		return nil, err
	}
	cueTable, err := subTable(rootTable, "CueTable")
	if err != nil {
		return nil, err
	}
	waveformTable, err := subTable(rootTable, "WaveformTable")
	if err != nil {
		return nil, err
	}
	sequenceTable, _ := subTable(rootTable, "SequenceTable") // optional; nil if absent or empty.

	a := &Archive{Subkey: bank.Subkey}
	for i := range cueNameTable.Rows {
		cueName, _ := cueNameTable.Cell(i, "CueName")
		cueIndexCell, _ := cueNameTable.Cell(i, "CueIndex")
		cueIndex := int(cueIndexCell.U32())
		if cueIndex < 0 || cueIndex >= len(cueTable.Rows) {
			return nil, cerr.At(cerr.InvalidData, int64(cueIndex), "CueIndex out of range", nil)
		}

		refTypeCell, _ := cueTable.Cell(cueIndex, "ReferenceType")
		refIndexCell, _ := cueTable.Cell(cueIndex, "ReferenceIndex")
		refType := int(refTypeCell.U8())
		refIndex := int(refIndexCell.U16())

		switch refType {
		case referenceWaveform:
			f, err := resolveWaveform(waveformTable, bank, refIndex, cueName.Str)
			if err != nil {
				return nil, err
			}
			if f != nil {
				a.Files = append(a.Files, *f)
			}
		case referenceSequence:
			if sequenceTable == nil {
				return nil, cerr.New(cerr.InvalidData, "ReferenceType 3 with no SequenceTable", nil)
			}
			files, err := resolveSequence(sequenceTable, waveformTable, bank, refIndex, cueName.Str)
			if err != nil {
				return nil, err
			}
			a.Files = append(a.Files, files...)
		case referenceSynth, referenceBlock:
			a.Skipped = append(a.Skipped, cueName.Str)
		default:
			a.Skipped = append(a.Skipped, cueName.Str)
		}
	}
	return a, nil
}

func locateAWB(rootTable *utf.Table, loadAWB SiblingLoader) (*afs2.Bank, error) {
	awbFile, _ := rootTable.Cell(0, "AwbFile")
	if len(awbFile.Bytes) > 0 {
		return afs2.Parse(awbFile.Bytes)
	}
	nameCell, ok := rootTable.Cell(0, "Name")
	if !ok {
		return nil, cerr.New(cerr.InvalidData, "ACB has neither an embedded AwbFile nor a Name to derive a sibling path", nil)
	}
	b, err := loadAWB(nameCell.Str + ".awb")
	if err != nil {
		return nil, cerr.Wrap(err, "loading sibling AWB")
	}
	return afs2.Parse(b)
}

// subTable unwraps a bytes cell holding a nested @UTF table. Returns
// (nil, nil) if the column is absent or empty, matching fields that only
// some ACB versions carry.
func subTable(t *utf.Table, column string) (*utf.Table, error) {
	c, ok := t.Cell(0, column)
	if !ok || len(c.Bytes) == 0 {
		return nil, nil
	}
	sub, err := utf.Parse(c.Bytes)
	if err != nil {
		return nil, cerr.Wrap(err, fmt.Sprintf("parsing %s", column))
	}
	return sub, nil
}

func waveformAwbID(waveformTable *utf.Table, row int) (uint16, int, error) {
	if row < 0 || row >= len(waveformTable.Rows) {
		return 0, 0, cerr.At(cerr.InvalidData, int64(row), "WaveformTable index out of range", nil)
	}
	var id utf.Cell
	var ok bool
	id, ok = waveformTable.Cell(row, "MemoryAwbId")
	if !ok {
		id, ok = waveformTable.Cell(row, "Id")
	}
	if !ok {
		return 0, 0, cerr.New(cerr.InvalidData, "WaveformTable row has neither MemoryAwbId nor Id", nil)
	}
	encodeType := 0
	if et, ok := waveformTable.Cell(row, "EncodeType"); ok {
		encodeType = int(et.U8())
	}
	return id.U16(), encodeType, nil
}

func findByID(bank *afs2.Bank, id uint16) ([]byte, bool) {
	for _, e := range bank.Entries {
		if e.ID == id {
			return e.Data, true
		}
	}
	return nil, false
}

func resolveWaveform(waveformTable *utf.Table, bank *afs2.Bank, row int, name string) (*File, error) {
	id, encodeType, err := waveformAwbID(waveformTable, row)
	if err != nil {
		return nil, err
	}
	data, found := findByID(bank, id)
	if !found {
		return nil, nil
	}
	return &File{Name: name, Data: data, EncodeType: encodeType}, nil
}

func resolveSequence(sequenceTable, waveformTable *utf.Table, bank *afs2.Bank, row int, name string) ([]File, error) {
	if row < 0 || row >= len(sequenceTable.Rows) {
		return nil, cerr.At(cerr.InvalidData, int64(row), "SequenceTable index out of range", nil)
	}
	trackIndex, _ := sequenceTable.Cell(row, "TrackIndex")
	if len(trackIndex.Bytes)%2 != 0 {
		return nil, cerr.New(cerr.InvalidData, "TrackIndex is not a whole number of u16 entries", nil)
	}
	var files []File
	for off := 0; off < len(trackIndex.Bytes); off += 2 {
		n := int(binary.BigEndian.Uint16(trackIndex.Bytes[off : off+2]))
		f, err := resolveWaveform(waveformTable, bank, n, name+"_"+strconv.Itoa(n))
		if err != nil {
			return nil, err
		}
		if f != nil {
			files = append(files, *f)
		}
	}
	return files, nil
}

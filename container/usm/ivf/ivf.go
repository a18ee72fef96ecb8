/*
NAME
  ivf.go - a minimal IVF/VP9 frame reader for the USM builder.

AUTHOR
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package ivf reads just enough of a DKIF/IVF container to drive USM's
// video-frame interleaving: the fixed 32-byte file header and each frame's
// (size, timestamp) record plus payload. It does not parse the VP9
// bitstream itself - container/usm only needs frame boundaries, timestamps
// and a best-effort keyframe flag, matching spec.md's DSP-boundary scope
// (VP9 decode is as far out of scope here as ADX/HCA sample decode).
package ivf

import (
	"encoding/binary"

	"github.com/ausocean/cricodec/pkg/cerr"
)

// Magic is the IVF file header magic.
var Magic = []byte("DKIF")

// vp9Codec is the only fourCC this package accepts, matching spec.md §4.8's
// "non-VP9 IVF for USM build" UnsupportedFormat case.
var vp9Codec = []byte("VP90")

// keyframeMarker is the byte sequence the reference USM builder checks for
// at the start of a frame record (header included) to flag it a keyframe.
// It is a convenience heuristic from the source, not a real VP9 superframe
// parse.
var keyframeMarker = []byte{0x82, 0x49, 0x83, 0x42}

const (
	fileHeaderSize  = 32
	frameHeaderSize = 12 // size(u32 LE) + timestamp(u64 LE)
)

// File is a parsed IVF header plus the frame data region.
type File struct {
	Version                           uint16
	HeaderSize                        uint16
	Width, Height                     uint16
	TimeBaseDenominator, TimeBaseNum  uint32
	FrameCount                        uint32

	body []byte // everything after HeaderSize, i.e. the frame records.
}

// Frame is one decoded frame record: the raw bytes include the 12-byte
// per-frame header, matching the reference reader (which re-includes it
// when handing frame data to the USM builder).
type Frame struct {
	Size      uint32
	Timestamp uint64
	Index     int
	Data      []byte // frameHeaderSize + Size bytes, header included.
	Keyframe  bool
}

// Parse reads the IVF header from b and keeps the remainder for Frames.
func Parse(b []byte) (*File, error) {
	if len(b) < fileHeaderSize || string(b[:4]) != string(Magic) {
		got := b
		if len(got) > 4 {
			got = got[:4]
		}
		return nil, cerr.Magic(0, Magic, got)
	}
	version := binary.LittleEndian.Uint16(b[4:6])
	headerLen := binary.LittleEndian.Uint16(b[6:8])
	codec := b[8:12]
	if string(codec) != string(vp9Codec) {
		return nil, cerr.Unsupported("IVF codec " + string(codec) + " (only VP90 is supported for USM muxing)")
	}
	width := binary.LittleEndian.Uint16(b[12:14])
	height := binary.LittleEndian.Uint16(b[14:16])
	tbd := binary.LittleEndian.Uint32(b[16:20])
	tbn := binary.LittleEndian.Uint32(b[20:24])
	numFrames := binary.LittleEndian.Uint32(b[24:28])

	if int(headerLen) > len(b) {
		return nil, cerr.At(cerr.InvalidData, int64(len(b)), "IVF header_size overruns input", nil)
	}

	return &File{
		Version:             version,
		HeaderSize:          headerLen,
		Width:               width,
		Height:              height,
		TimeBaseDenominator: tbd,
		TimeBaseNum:         tbn,
		FrameCount:          numFrames,
		body:                b[headerLen:],
	}, nil
}

// Header returns the raw HeaderSize bytes of the IVF file header, the
// verbatim blob USM's first SFV packet prefixes its first frame with.
func (f *File) Header(original []byte) []byte {
	return original[:f.HeaderSize]
}

// Frames returns every frame record in order. Unlike the reference reader's
// generator, this is a finite, restartable slice - the whole file is
// already buffered in memory (spec.md §5's synchronous, fully-buffered
// parsing model).
func (f *File) Frames() ([]Frame, error) {
	frames := make([]Frame, 0, f.FrameCount)
	pos := 0
	for i := 0; i < int(f.FrameCount); i++ {
		if pos+frameHeaderSize > len(f.body) {
			return nil, cerr.At(cerr.InvalidData, int64(pos), "truncated IVF frame header", nil)
		}
		size := binary.LittleEndian.Uint32(f.body[pos : pos+4])
		ts := binary.LittleEndian.Uint64(f.body[pos+4 : pos+12])
		total := frameHeaderSize + int(size)
		if pos+total > len(f.body) {
			return nil, cerr.At(cerr.InvalidData, int64(pos), "truncated IVF frame payload", nil)
		}
		data := f.body[pos : pos+total]
		frames = append(frames, Frame{
			Size:      size,
			Timestamp: ts,
			Index:     i,
			Data:      data,
			Keyframe:  len(data) >= len(keyframeMarker) && string(data[:len(keyframeMarker)]) == string(keyframeMarker),
		})
		pos += total
	}
	return frames, nil
}

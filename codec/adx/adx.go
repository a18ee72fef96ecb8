/*
NAME
  adx.go - the ADX ADPCM header, loop block and footer.

AUTHOR
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package adx parses and emits the 20-byte ADX header, its optional
// version-4 history block, optional 24-byte loop block, and the trailing
// footer chunk. It does not decode the ADPCM sample data itself - callers
// needing PCM should treat the region between DataOffset and end-of-file
// as opaque ADPCM bytes.
package adx

import (
	"github.com/ausocean/cricodec/pkg/byteio"
	"github.com/ausocean/cricodec/pkg/cerr"
)

// magic is the two leading bytes of every ADX file.
const magic = 0x8000

// footerMagic marks the trailing zero-padded footer chunk.
const footerMagic = 0x8001

const headerSize = 20
const loopHeaderSize = 24

// Loop describes an ADX loop block. LoopCount == 1 enables looping.
type Loop struct {
	AlignmentSamples uint16
	LoopCount        uint16
	LoopNum          uint16
	LoopType         uint16
	LoopStartSample  uint32
	LoopStartByte    uint32
	LoopEndSample    uint32
	LoopEndByte      uint32
}

// Header is a parsed ADX header, with any loop block if present.
type Header struct {
	DataOffset      uint16
	Encoding        uint8
	BlockSize       uint8
	SampleBitdepth  uint8
	Channels        uint8
	SampleRate      uint32
	SampleCount     uint32
	HighpassFreq    uint16
	Version         uint8
	Flags           uint8
	Loop            *Loop
}

// Parse reads an ADX header (and loop block, if present) from the start of
// b. It does not validate the footer or sample data.
func Parse(b []byte) (*Header, error) {
	if len(b) < headerSize {
		return nil, cerr.At(cerr.InvalidData, int64(len(b)), "input shorter than ADX header", nil)
	}
	cur := byteio.NewCursor(b)
	gotMagic := cur.BE16()
	if gotMagic != magic {
		return nil, cerr.Magic(0, []byte{0x80, 0x00}, b[:2])
	}

	h := &Header{}
	h.DataOffset = cur.BE16()
	h.Encoding = cur.U8()
	h.BlockSize = cur.U8()
	h.SampleBitdepth = cur.U8()
	h.Channels = cur.U8()
	h.SampleRate = cur.BE32()
	h.SampleCount = cur.BE32()
	h.HighpassFreq = cur.BE16()
	h.Version = cur.U8()
	h.Flags = cur.U8()

	if err := validate(h); err != nil {
		return nil, err
	}

	if h.Version == 4 {
		skip := 4 + 4*int(h.Channels)
		if cur.Remaining() < skip {
			return nil, cerr.At(cerr.InvalidData, int64(cur.Pos), "truncated version-4 history block", nil)
		}
		cur.Skip(skip)
	}

	if int(h.DataOffset)-2-cur.Pos >= loopHeaderSize {
		if cur.Remaining() < loopHeaderSize {
			return nil, cerr.At(cerr.InvalidData, int64(cur.Pos), "truncated loop block", nil)
		}
		l := &Loop{}
		l.AlignmentSamples = cur.BE16()
		l.LoopCount = cur.BE16()
		l.LoopNum = cur.BE16()
		l.LoopType = cur.BE16()
		l.LoopStartSample = cur.BE32()
		l.LoopStartByte = cur.BE32()
		l.LoopEndSample = cur.BE32()
		l.LoopEndByte = cur.BE32()
		h.Loop = l
	}

	return h, nil
}

func validate(h *Header) error {
	if h.Version == 6 || h.Encoding == 0x10 || h.Encoding == 0x11 {
		return cerr.Unsupported("AHX (version 6 / encoding 0x10-0x11) is not an ADX stream")
	}
	if h.SampleBitdepth != 4 {
		return cerr.New(cerr.UnsupportedFormat, "only 4-bit ADPCM is supported", nil)
	}
	if h.Flags == 8 || h.Flags == 9 {
		return cerr.New(cerr.UnsupportedFormat, "encrypted ADX/AHX streams are not supported", nil)
	}
	return nil
}

// EncodeHeader serialises h back into the 20-byte header plus any version-4
// history placeholder and loop block, mirroring Parse byte for byte
// (property 6: parse(EncodeHeader(h)) == h for every supported
// (version, encoding, channels, loop) combination).
func EncodeHeader(h *Header) ([]byte, error) {
	if err := validate(h); err != nil {
		return nil, err
	}
	out := make([]byte, 0, headerSize)
	out = byteio.PutBE16(out, magic)
	out = byteio.PutBE16(out, h.DataOffset)
	out = append(out, h.Encoding, h.BlockSize, h.SampleBitdepth, h.Channels)
	out = byteio.PutBE32(out, h.SampleRate)
	out = byteio.PutBE32(out, h.SampleCount)
	out = byteio.PutBE16(out, h.HighpassFreq)
	out = append(out, h.Version, h.Flags)

	if h.Version == 4 {
		out = append(out, make([]byte, 4+4*int(h.Channels))...)
	}
	if h.Loop != nil {
		l := h.Loop
		out = byteio.PutBE16(out, l.AlignmentSamples)
		out = byteio.PutBE16(out, l.LoopCount)
		out = byteio.PutBE16(out, l.LoopNum)
		out = byteio.PutBE16(out, l.LoopType)
		out = byteio.PutBE32(out, l.LoopStartSample)
		out = byteio.PutBE32(out, l.LoopStartByte)
		out = byteio.PutBE32(out, l.LoopEndSample)
		out = byteio.PutBE32(out, l.LoopEndByte)
	}
	return out, nil
}

// Footer returns the trailing ADX footer chunk: magic 0x8001, a size field
// equal to blockSize-4, followed by that many zero bytes.
func Footer(blockSize uint8) []byte {
	pad := int(blockSize) - 4
	if pad < 0 {
		pad = 0
	}
	out := make([]byte, 0, 4+pad)
	out = byteio.PutBE16(out, footerMagic)
	out = byteio.PutBE16(out, uint16(pad))
	out = append(out, make([]byte, pad)...)
	return out
}

// AlignmentSamples rounds startSample up to a multiple of (blockSize-2)*2
// and returns how many samples were added, the value LoopBytes expects as
// its alignment term (spec §4.4 / scenario S4).
func AlignmentSamples(startSample uint32, blockSize uint8) uint32 {
	step := uint32(blockSize-2) * 2
	if step == 0 {
		return 0
	}
	aligned := byteio.AlignUp(int(startSample), int(step))
	return uint32(aligned) - startSample
}

// LoopBytes computes loop_start_byte/loop_end_byte from a sample position,
// following §4.4's formula exactly (integer division, not float, per the
// DESIGN NOTES open question about the source's possible off-by-one).
func LoopBytes(sample uint32, blockSize, channels uint8, dataOffset uint16) uint32 {
	samplesPerBlock := uint32(blockSize-2) * uint32(channels)
	if samplesPerBlock == 0 {
		return uint32(dataOffset) + 4
	}
	return (sample/samplesPerBlock)*uint32(blockSize)*uint32(channels) +
		uint32(dataOffset) + 4 +
		(sample%samplesPerBlock)*uint32(channels)
}

/*
NAME
  hca.go - the HCA subchunk header: fmt, comp/dec, loop, vbr, ath, rva,
  ciph and padding, closed off by a CRC-16.

AUTHOR
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package hca parses and emits the HCA container header - a chain of
// named subchunks terminated by padding and a CRC-16 - and implements the
// frame cipher (table construction for cipher types 0, 1 and 56, and
// in-place apply over one frame body). It does not implement MDCT decode;
// that's a DSP concern left to an external decoder, matching the source
// library's own native-extension boundary.
//
// Subchunk tags are matched with their top bit stripped from every byte
// (tag & 0x7F7F7F7F), since an "obfuscated" HCA persists tags with the top
// bit of each byte set - the underlying bytes are otherwise identical.
package hca

import (
	"math"

	"github.com/ausocean/cricodec/pkg/byteio"
	"github.com/ausocean/cricodec/pkg/cerr"
)

// Magic identifies a plain HCA file; EncryptedMagic an obfuscated one
// whose subchunk tags (but never their payload bytes) have the top bit of
// each byte set.
var (
	Magic          = []byte("HCA\x00")
	EncryptedMagic = []byte{0xC8, 0xC3, 0xC1, 0x80}
)

const outerHeaderSize = 8 // magic(4) + version(u16) + header_size(u16)

func tagMask(tag uint32) uint32 { return tag & 0x7F7F7F7F }

func tagOf(s string) uint32 {
	return uint32(s[0])<<24 | uint32(s[1])<<16 | uint32(s[2])<<8 | uint32(s[3])
}

var (
	tagFmt  = tagOf("fmt\x00")
	tagComp = tagOf("comp")
	tagDec  = tagOf("dec\x00")
	tagLoop = tagOf("loop")
	tagVbr  = tagOf("vbr\x00")
	tagAth  = tagOf("ath\x00")
	tagRva  = tagOf("rva\x00")
	tagCiph = tagOf("ciph")
	tagPad  = tagOf("pad\x00")
)

// Fmt carries the stream's channel layout and frame accounting.
type Fmt struct {
	Channels       uint8
	SampleRate     uint32
	FrameCount     uint32
	EncoderDelay   uint16
	EncoderPadding uint16
}

func (f Fmt) encode(out []byte) []byte {
	out = append(out, tagString(tagFmt)...)
	out = append(out, f.Channels)
	out = byteio.PutBE32(out, f.SampleRate)
	out = byteio.PutBE32(out, f.FrameCount)
	out = byteio.PutBE16(out, f.EncoderDelay)
	out = byteio.PutBE16(out, f.EncoderPadding)
	return out
}

func decodeFmt(cur *byteio.Cursor) Fmt {
	return Fmt{
		Channels:       cur.U8(),
		SampleRate:     cur.BE32(),
		FrameCount:     cur.BE32(),
		EncoderDelay:   cur.BE16(),
		EncoderPadding: cur.BE16(),
	}
}

// Comp carries frame-decode parameters; the same shape is reused for the
// older "dec" subchunk name.
type Comp struct {
	FrameSize        uint16
	MinResolution    uint8
	MaxResolution    uint8
	TrackCount       uint8
	ChannelConfig    uint8
	TotalBandCount   uint8
	BaseBandCount    uint8
	StereoBandCount  uint8
	BandsPerHfrGroup uint8
	Reserved         uint16
}

func (c Comp) encode(out []byte, tag uint32) []byte {
	out = append(out, tagString(tag)...)
	out = byteio.PutBE16(out, c.FrameSize)
	out = append(out, c.MinResolution, c.MaxResolution, c.TrackCount, c.ChannelConfig,
		c.TotalBandCount, c.BaseBandCount, c.StereoBandCount, c.BandsPerHfrGroup)
	out = byteio.PutBE16(out, c.Reserved)
	return out
}

func decodeComp(cur *byteio.Cursor) *Comp {
	return &Comp{
		FrameSize:        cur.BE16(),
		MinResolution:    cur.U8(),
		MaxResolution:    cur.U8(),
		TrackCount:       cur.U8(),
		ChannelConfig:    cur.U8(),
		TotalBandCount:   cur.U8(),
		BaseBandCount:    cur.U8(),
		StereoBandCount:  cur.U8(),
		BandsPerHfrGroup: cur.U8(),
		Reserved:         cur.BE16(),
	}
}

// Loop marks a repeat region in frame units.
type Loop struct {
	StartFrame uint32
	EndFrame   uint32
	StartDelay uint16
	EndPadding uint16
}

func (l Loop) encode(out []byte) []byte {
	out = append(out, tagString(tagLoop)...)
	out = byteio.PutBE32(out, l.StartFrame)
	out = byteio.PutBE32(out, l.EndFrame)
	out = byteio.PutBE16(out, l.StartDelay)
	out = byteio.PutBE16(out, l.EndPadding)
	return out
}

func decodeLoop(cur *byteio.Cursor) *Loop {
	return &Loop{
		StartFrame: cur.BE32(),
		EndFrame:   cur.BE32(),
		StartDelay: cur.BE16(),
		EndPadding: cur.BE16(),
	}
}

// Ath selects the auditory-threshold curve used by the decoder.
type Ath struct {
	Type uint16
}

// Vbr carries variable-bitrate frame-size bookkeeping.
type Vbr struct {
	MaxFrameSize uint16
	NoiseLevel   uint16
}

// Rva is a linear volume scalar applied to decoded PCM; see
// codec/wavutil.ApplyVolume.
type Rva struct {
	Volume float32
}

// Ciph names which frame cipher protects the stream's frame bodies: 0
// plain, 1 static/keyless, 56 keyed.
type Ciph struct {
	Type uint16
}

// Header is a parsed HCA container header.
type Header struct {
	Version    uint16
	Encrypted  bool
	Fmt        Fmt
	Comp       *Comp
	Dec        *Comp
	Loop       *Loop
	Ath        *Ath
	Vbr        *Vbr
	Rva        *Rva
	Ciph       Ciph
	HeaderSize uint16 // total persisted size, including the trailing CRC-16.
}

// Parse reads a complete HCA header, including its trailing CRC-16, and
// validates it against the preceding header bytes.
func Parse(b []byte) (*Header, error) {
	if len(b) < outerHeaderSize {
		return nil, cerr.At(cerr.InvalidData, int64(len(b)), "input shorter than HCA outer header", nil)
	}
	var encrypted bool
	switch {
	case string(b[:4]) == string(Magic):
		encrypted = false
	case b[0] == EncryptedMagic[0] && b[1] == EncryptedMagic[1] && b[2] == EncryptedMagic[2] && b[3] == EncryptedMagic[3]:
		encrypted = true
	default:
		return nil, cerr.Magic(0, Magic, b[:4])
	}

	cur := byteio.NewCursor(b)
	cur.Skip(4)
	version := cur.BE16()
	headerSize := cur.BE16()
	if int(headerSize) > len(b) || headerSize < outerHeaderSize+2 {
		return nil, cerr.At(cerr.InvalidData, int64(len(b)), "invalid header_size", nil)
	}

	h := &Header{Version: version, Encrypted: encrypted, HeaderSize: headerSize}
	haveFmt := false
	for cur.Pos < int(headerSize)-2 {
		if cur.Remaining() < 4 {
			return nil, cerr.At(cerr.InvalidData, int64(cur.Pos), "truncated subchunk tag", nil)
		}
		tagBytes := cur.Peek(4)
		tag := tagMask(uint32(tagBytes[0])<<24 | uint32(tagBytes[1])<<16 | uint32(tagBytes[2])<<8 | uint32(tagBytes[3]))
		if tag == tagPad {
			break
		}
		switch tag {
		case tagFmt:
			cur.Skip(4)
			h.Fmt = decodeFmt(cur)
			haveFmt = true
		case tagComp:
			cur.Skip(4)
			h.Comp = decodeComp(cur)
		case tagDec:
			cur.Skip(4)
			h.Dec = decodeComp(cur)
		case tagLoop:
			cur.Skip(4)
			h.Loop = decodeLoop(cur)
		case tagVbr:
			cur.Skip(4)
			h.Vbr = &Vbr{MaxFrameSize: cur.BE16(), NoiseLevel: cur.BE16()}
		case tagAth:
			cur.Skip(4)
			h.Ath = &Ath{Type: cur.BE16()}
		case tagRva:
			cur.Skip(4)
			h.Rva = &Rva{Volume: math.Float32frombits(cur.BE32())}
		case tagCiph:
			cur.Skip(4)
			h.Ciph = Ciph{Type: cur.BE16()}
		default:
			// Anything else (including a run we don't recognise) is
			// treated as the start of the padding region.
			goto donePad
		}
	}
donePad:
	if !haveFmt {
		return nil, cerr.New(cerr.InvalidData, "HCA header missing fmt subchunk", nil)
	}
	if cur.Pos > int(headerSize)-2 {
		return nil, cerr.At(cerr.InvalidData, int64(cur.Pos), "subchunks overran header_size", nil)
	}
	padLen := int(headerSize) - 2 - cur.Pos
	cur.Skip(padLen)

	crc := cur.BE16()
	want := byteio.CRC16(b[:int(headerSize)-2])
	if crc != want {
		return nil, cerr.At(cerr.InvalidData, int64(cur.Pos)-2, "HCA header CRC-16 mismatch", nil)
	}
	return h, nil
}

// Encode serialises h back into its full persisted form, including the
// trailing CRC-16 computed over the bytes that precede it (property 8).
// tagsObfuscated controls whether subchunk tag bytes are written with
// their top bit set; payload bytes are never affected.
func Encode(h *Header, tagsObfuscated bool) ([]byte, error) {
	if h.Comp == nil && h.Dec == nil {
		return nil, cerr.New(cerr.InvalidData, "HCA header needs a comp or dec subchunk", nil)
	}
	if h.Comp != nil && h.Dec != nil {
		return nil, cerr.New(cerr.InvalidData, "HCA header cannot carry both comp and dec", nil)
	}

	magic := Magic
	if h.Encrypted {
		magic = EncryptedMagic
	}
	body := make([]byte, 0, 128)
	body = h.Fmt.encode(body)
	if h.Comp != nil {
		body = h.Comp.encode(body, tagComp)
	} else {
		body = h.Dec.encode(body, tagDec)
	}
	if h.Loop != nil {
		body = h.Loop.encode(body)
	}
	if h.Vbr != nil {
		body = append(body, tagString(tagVbr)...)
		body = byteio.PutBE16(body, h.Vbr.MaxFrameSize)
		body = byteio.PutBE16(body, h.Vbr.NoiseLevel)
	}
	if h.Ath != nil {
		body = append(body, tagString(tagAth)...)
		body = byteio.PutBE16(body, h.Ath.Type)
	}
	if h.Rva != nil {
		body = append(body, tagString(tagRva)...)
		body = byteio.PutBE32(body, math.Float32bits(h.Rva.Volume))
	}
	body = append(body, tagString(tagCiph)...)
	body = byteio.PutBE16(body, h.Ciph.Type)

	headerSize := outerHeaderSize + len(body) + 2
	if h.HeaderSize != 0 && int(h.HeaderSize) > headerSize {
		want := int(h.HeaderSize)
		need := want - headerSize
		if need < 4 {
			return nil, cerr.New(cerr.InvalidData, "requested HeaderSize leaves no room for a pad subchunk", nil)
		}
		body = append(body, tagString(tagPad)...)
		body = append(body, make([]byte, need-4)...)
		headerSize = want
	}

	out := make([]byte, 0, headerSize)
	out = append(out, magic...)
	out = byteio.PutBE16(out, h.Version)
	out = byteio.PutBE16(out, uint16(headerSize))
	out = append(out, body...)
	if tagsObfuscated {
		obfuscateTags(out[outerHeaderSize:])
	}
	crc := byteio.CRC16(out)
	out = byteio.PutBE16(out, crc)
	return out, nil
}

func tagString(tag uint32) []byte {
	return []byte{byte(tag >> 24), byte(tag >> 16), byte(tag >> 8), byte(tag)}
}

// obfuscateTags sets the top bit of every subchunk tag byte in the body
// region (everything after the outer 8-byte header, before the CRC). It
// walks the same subchunk layout Parse does, since only tag bytes - never
// payload bytes - are affected.
func obfuscateTags(body []byte) {
	i := 0
	for i+4 <= len(body) {
		masked := tagMask(uint32(body[i])<<24 | uint32(body[i+1])<<16 | uint32(body[i+2])<<8 | uint32(body[i+3]))
		size, ok := subchunkSize(masked)
		if !ok {
			break
		}
		for j := 0; j < 4; j++ {
			body[i+j] |= 0x80
		}
		i += size
	}
}

func subchunkSize(tag uint32) (int, bool) {
	switch tag {
	case tagFmt:
		return 4 + 13, true
	case tagComp, tagDec:
		return 4 + 12, true
	case tagLoop:
		return 4 + 12, true
	case tagVbr:
		return 4 + 4, true
	case tagAth:
		return 4 + 2, true
	case tagRva:
		return 4 + 4, true
	case tagCiph:
		return 4 + 2, true
	default:
		return 0, false
	}
}

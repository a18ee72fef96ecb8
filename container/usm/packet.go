/*
NAME
  packet.go - the 0x20-byte USM packet header shared by every chunk kind.

AUTHOR
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package usm reads and writes SofDec2 USM containers: a stream of
// 0x20-aligned packets, each either the root CRID directory, a @UTF
// metadata table, a section-end sentinel, or a slice of one track's
// payload, optionally XOR-masked by a key derived from an 8-byte cipher
// key. It does not decode VP9/ADX/HCA payload bytes - those are
// container/usm/ivf's and codec/adx's and codec/hca's concerns; this
// package only knows how to cut the interleaved stream into per-track
// byte runs and back.
package usm

import (
	"strconv"

	"github.com/ausocean/cricodec/pkg/byteio"
	"github.com/ausocean/cricodec/pkg/cerr"
)

// Packet magics. CRID always opens the file; the rest name a payload or
// metadata track. Mux only ever produces CRID/@SFV/@SFA; Demux reads the
// others back too (see DESIGN.md).
const (
	MagicCRID = "CRID"
	MagicSFV  = "@SFV"
	MagicSFA  = "@SFA"
	MagicALP  = "@ALP"
	MagicSBT  = "@SBT"
	MagicCUE  = "@CUE"
	MagicAHX  = "@AHX"
	MagicUSR  = "@USR"
	MagicPST  = "@PST"
)

// Packet kinds, carried in the header's packet_kind byte.
const (
	KindPayload    uint8 = 0
	KindHeader     uint8 = 1
	KindSectionEnd uint8 = 2
	KindMetadata   uint8 = 3
)

// AudioCodec values an AUDIO_HDRINFO table's audio_codec cell carries.
// Only ADX payloads are ever AudioMask-scrambled; HCA's own frame cipher
// (codec/hca's Ciph) covers HCA instead.
const (
	AudioCodecADX uint8 = 2
	AudioCodecHCA uint8 = 4
)

const (
	packetHeaderSize = 0x20
	// chunkSizeBias is subtracted from both the chunk_size and data_offset
	// header fields before use: each is measured from byte 0x08 (right
	// after magic+chunk_size), so subtracting 0x18 gives a value measured
	// from the end of the 0x20-byte header.
	chunkSizeBias = 0x18
)

// The fixed 32-byte bodies of the three section-end sentinel packets.
var (
	headerEndBody   = []byte("#HEADER END     ===============\x00")
	metadataEndBody = []byte("#METADATA END   ===============\x00")
	contentsEndBody = []byte("#CONTENTS END   ===============\x00")
)

type packetHeader struct {
	Magic      string
	ChunkSize  uint32
	DataOffset uint8
	Padding    uint16
	Channel    uint8
	Kind       uint8
	FrameTime  uint32
	TimeUnit   uint32
}

func readPacketHeader(cur *byteio.Cursor) (packetHeader, error) {
	if cur.Remaining() < packetHeaderSize {
		return packetHeader{}, cerr.At(cerr.InvalidData, int64(cur.Pos), "truncated USM packet header", nil)
	}
	h := packetHeader{}
	h.Magic = string(cur.Take(4))
	h.ChunkSize = cur.BE32()
	cur.Skip(1) // reserved
	h.DataOffset = cur.U8()
	h.Padding = cur.BE16()
	h.Channel = cur.U8()
	cur.Skip(2) // reserved
	h.Kind = cur.U8()
	h.FrameTime = cur.BE32()
	h.TimeUnit = cur.BE32()
	cur.Skip(8) // reserved
	return h, nil
}

// buildPacket assembles one complete, 0x20-aligned packet: header, payload,
// then enough zero padding to round the packet up to a multiple of 0x20.
func buildPacket(magic string, channel, kind uint8, frameTime, timeUnit uint32, payload []byte) []byte {
	padded := byteio.AlignUp(len(payload), packetHeaderSize)
	padding := padded - len(payload)

	out := make([]byte, 0, packetHeaderSize+padded)
	out = append(out, magic...)
	out = byteio.PutBE32(out, uint32(padded)+chunkSizeBias)
	out = append(out, 0, chunkSizeBias) // reserved, data_offset
	out = byteio.PutBE16(out, uint16(padding))
	out = append(out, channel, 0, 0, kind)
	out = byteio.PutBE32(out, frameTime)
	out = byteio.PutBE32(out, timeUnit)
	out = byteio.PutBE32(out, 0)
	out = byteio.PutBE32(out, 0)
	out = append(out, payload...)
	out = append(out, make([]byte, padding)...)
	return out
}

func streamKey(magic string, channel uint8) string {
	return magic + "/" + strconv.Itoa(int(channel))
}

func padTo(b []byte, size int) []byte {
	if len(b) >= size {
		return b
	}
	out := make([]byte, size)
	copy(out, b)
	return out
}

/*
NAME
  demux.go - unpacks a USM byte stream into its directory, metadata and
  per-track payload streams.

AUTHOR
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package usm

import (
	"github.com/ausocean/cricodec/container/utf"
	"github.com/ausocean/cricodec/pkg/byteio"
	"github.com/ausocean/cricodec/pkg/cerr"
)

// Stream is one payload track's reassembled bytes, keyed by its magic and
// channel number exactly as declared in CRIUSF_DIR_STREAM.
type Stream struct {
	Magic   string
	Channel uint8
	Data    []byte
}

// MetaEntry is one kind-1 or kind-3 @UTF packet: recorded so a caller can
// inspect VIDEO_HDRINFO/AUDIO_HDRINFO/VIDEO_SEEKINFO/AUDIO_HEADER and the
// rest, but never interpreted further by Demux itself beyond the
// AUDIO_HDRINFO audio_codec cell it needs for AudioMask gating.
type MetaEntry struct {
	Magic string
	Kind  uint8
	Table *utf.Table
}

// Demuxed is a fully unpacked USM.
type Demuxed struct {
	// Dir is the root CRIUSF_DIR_STREAM table.
	Dir      *utf.Table
	Metadata []MetaEntry
	Streams  []Stream
}

// Stream looks up a demuxed payload stream by magic and channel.
func (d *Demuxed) Stream(magic string, channel uint8) ([]byte, bool) {
	for _, s := range d.Streams {
		if s.Magic == magic && s.Channel == channel {
			return s.Data, true
		}
	}
	return nil, false
}

// Demux unpacks data into its CRID directory, recorded metadata and
// reassembled payload streams. key reverses the XOR mask on @SFV/@ALP
// payloads (always, when non-nil) and @SFA payloads (only when the
// stream's AUDIO_HDRINFO declared ADX coding); pass nil for an
// unencrypted USM.
func Demux(data []byte, key *Key) (*Demuxed, error) {
	if len(data) < packetHeaderSize {
		return nil, cerr.At(cerr.InvalidData, int64(len(data)), "input shorter than one USM packet header", nil)
	}

	cur := byteio.NewCursor(data)
	first, err := readPacketHeader(cur)
	if err != nil {
		return nil, err
	}
	if first.Magic != MagicCRID {
		return nil, cerr.Magic(0, []byte(MagicCRID), []byte(first.Magic))
	}
	if first.Kind != KindHeader {
		return nil, cerr.At(cerr.InvalidData, 0, "USM root CRID packet is not kind 1", nil)
	}
	dirBody, err := readPacketBody(cur, first)
	if err != nil {
		return nil, err
	}
	dir, err := utf.Parse(dirBody)
	if err != nil {
		return nil, cerr.Wrap(err, "parsing CRIUSF_DIR_STREAM")
	}

	d := &Demuxed{Dir: dir}
	audioCodec := map[uint8]uint8{} // channel -> audio_codec, from AUDIO_HDRINFO.
	streamIndex := map[string]int{} // "magic/channel" -> index into d.Streams.

	appendPayload := func(magic string, channel uint8, payload []byte) {
		sk := streamKey(magic, channel)
		if i, ok := streamIndex[sk]; ok {
			d.Streams[i].Data = append(d.Streams[i].Data, payload...)
			return
		}
		streamIndex[sk] = len(d.Streams)
		d.Streams = append(d.Streams, Stream{Magic: magic, Channel: channel, Data: append([]byte{}, payload...)})
	}

	for cur.Remaining() > 0 {
		h, err := readPacketHeader(cur)
		if err != nil {
			return nil, err
		}
		body, err := readPacketBody(cur, h)
		if err != nil {
			return nil, err
		}

		switch h.Kind {
		case KindPayload:
			switch h.Magic {
			case MagicSFV, MagicALP:
				if key != nil {
					body = key.VideoMask(body)
				}
			case MagicSFA:
				if key != nil && audioCodec[h.Channel] == AudioCodecADX {
					body = key.AudioMask(body)
				}
			}
			appendPayload(h.Magic, h.Channel, body)
		case KindHeader, KindMetadata:
			t, err := utf.Parse(body)
			if err != nil {
				return nil, cerr.Wrap(err, "parsing USM metadata packet")
			}
			if h.Magic == MagicSFA {
				if c, ok := t.Cell(0, "audio_codec"); ok {
					audioCodec[h.Channel] = c.U8()
				}
			}
			d.Metadata = append(d.Metadata, MetaEntry{Magic: h.Magic, Kind: h.Kind, Table: t})
		case KindSectionEnd:
			// #HEADER END / #METADATA END / #CONTENTS END sentinel: nothing to record.
		}
	}
	return d, nil
}

// readPacketBody reads a packet's declared chunk_size bytes, applies its
// data_offset skip and trims its trailing padding, leaving the packet's
// actual content.
func readPacketBody(cur *byteio.Cursor, h packetHeader) ([]byte, error) {
	payloadLen := int(h.ChunkSize) - chunkSizeBias
	if payloadLen < 0 || cur.Remaining() < payloadLen {
		return nil, cerr.At(cerr.InvalidData, int64(cur.Pos), "USM packet overruns input", nil)
	}
	raw := cur.Take(payloadLen)

	dataOff := int(h.DataOffset) - chunkSizeBias
	if dataOff < 0 || dataOff > len(raw) {
		dataOff = 0
	}
	body := raw[dataOff:]

	if int(h.Padding) > len(body) {
		return nil, cerr.At(cerr.InvalidData, int64(cur.Pos), "USM packet padding exceeds payload", nil)
	}
	return body[:len(body)-int(h.Padding)], nil
}
